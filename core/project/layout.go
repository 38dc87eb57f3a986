package project

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Layout directories relative to the project root. state/resolved holds the
// manifests written by the resolver.
var layoutDirs = []string{
	"packs",
	"providers",
	"tenants",
	filepath.Join("state", "resolved"),
}

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// ValidName reports whether a tenant or team name is acceptable as a path
// segment and as a manifest file stem.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// InitProject creates the standard project layout under root. Existing
// directories and files are left alone, so init is safe to re-run.
func InitProject(root string) error {
	for _, dir := range layoutDirs {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	readme := filepath.Join(root, "README.md")
	return writeIfMissing(readme, []byte(starterReadme))
}

const starterReadme = `# gridpack project

- packs/      application packs (directories with pack.yaml, or .tgz bundles)
- providers/  provider packs grouped by domain, e.g. providers/events/
- tenants/    per-tenant access rules (tenant.gmap) and teams/<team>/team.gmap
- state/      resolver output; state/resolved/ holds one manifest per tenant or team
`

func writeIfMissing(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
