package project

import (
	"fmt"
	"os"
	"path/filepath"
)

const starterTenantGmap = `# access rules for this tenant
# examples:
#   _ = public            grant everything
#   sales/_ = public      grant one pack and all its flows
`

const starterTeamGmap = `# team overlay; any matching rule here overrides the tenant file
`

// AddTenant creates tenants/<name> with a starter tenant.gmap. Re-adding an
// existing tenant is a no-op.
func AddTenant(root, name string) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid tenant name %q", name)
	}
	dir := filepath.Join(root, "tenants", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create tenant dir: %w", err)
	}
	return writeIfMissing(filepath.Join(dir, "tenant.gmap"), []byte(starterTenantGmap))
}

// RemoveTenant deletes the tenant directory and any resolved manifests for
// the tenant or its teams.
func RemoveTenant(root, name string) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid tenant name %q", name)
	}
	if err := os.RemoveAll(filepath.Join(root, "tenants", name)); err != nil {
		return fmt.Errorf("remove tenant dir: %w", err)
	}
	return removeResolved(root, name)
}

// AddTeam creates tenants/<tenant>/teams/<team> with a starter team.gmap.
// The tenant must already exist.
func AddTeam(root, tenant, team string) error {
	if !ValidName(tenant) || !ValidName(team) {
		return fmt.Errorf("invalid team ref %q/%q", tenant, team)
	}
	if _, err := os.Stat(filepath.Join(root, "tenants", tenant)); err != nil {
		return fmt.Errorf("tenant %s: %w", tenant, ErrTenantNotFound)
	}
	dir := filepath.Join(root, "tenants", tenant, "teams", team)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create team dir: %w", err)
	}
	return writeIfMissing(filepath.Join(dir, "team.gmap"), []byte(starterTeamGmap))
}

// RemoveTeam deletes the team directory and its resolved manifest.
func RemoveTeam(root, tenant, team string) error {
	if !ValidName(tenant) || !ValidName(team) {
		return fmt.Errorf("invalid team ref %q/%q", tenant, team)
	}
	if err := os.RemoveAll(filepath.Join(root, "tenants", tenant, "teams", team)); err != nil {
		return fmt.Errorf("remove team dir: %w", err)
	}
	path := ManifestPath(root, tenant, team)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// removeResolved drops the tenant manifest plus every <tenant>.<team>.yaml
// under state/resolved.
func removeResolved(root, tenant string) error {
	dir := filepath.Join(root, "state", "resolved")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if name == tenant+".yaml" || (len(name) > len(tenant)+1 && name[:len(tenant)+1] == tenant+".") {
			if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}
