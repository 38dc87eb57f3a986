package project

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Tenant is one tenant directory and its teams.
type Tenant struct {
	Name  string   `json:"name" yaml:"name"`
	Teams []string `json:"teams,omitempty" yaml:"teams,omitempty"`
}

// Scan is a point-in-time enumeration of the project catalog: provider
// packs grouped by domain, application packs, and tenants with teams. All
// slices are sorted so repeated scans of the same tree are identical.
type Scan struct {
	Providers map[string][]string `json:"providers" yaml:"providers"`
	Packs     []string            `json:"packs" yaml:"packs"`
	Tenants   []Tenant            `json:"tenants" yaml:"tenants"`
}

// ScanProject enumerates the catalog under root. Missing directories are
// treated as empty, not as errors, so a freshly initialized project scans
// cleanly.
func ScanProject(root string) (*Scan, error) {
	providers, err := scanProviders(root)
	if err != nil {
		return nil, err
	}
	packs, err := scanPacks(root)
	if err != nil {
		return nil, err
	}
	tenants, err := scanTenants(root)
	if err != nil {
		return nil, err
	}
	return &Scan{Providers: providers, Packs: packs, Tenants: tenants}, nil
}

func scanProviders(root string) (map[string][]string, error) {
	providers := map[string][]string{}
	providersRoot := filepath.Join(root, "providers")
	entries, err := os.ReadDir(providersRoot)
	if os.IsNotExist(err) {
		return providers, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read providers dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		domain := entry.Name()
		domainDir := filepath.Join(providersRoot, domain)
		packEntries, err := os.ReadDir(domainDir)
		if err != nil {
			return nil, fmt.Errorf("read provider domain %s: %w", domain, err)
		}
		var packs []string
		for _, pack := range packEntries {
			path := filepath.Join(domainDir, pack.Name())
			if isPackRef(path, pack.IsDir()) {
				packs = append(packs, relativePath(root, path))
			}
		}
		sort.Strings(packs)
		providers[domain] = packs
	}
	return providers, nil
}

func scanPacks(root string) ([]string, error) {
	packs := []string{}
	packsRoot := filepath.Join(root, "packs")
	entries, err := os.ReadDir(packsRoot)
	if os.IsNotExist(err) {
		return packs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read packs dir: %w", err)
	}
	for _, entry := range entries {
		path := filepath.Join(packsRoot, entry.Name())
		if isPackRef(path, entry.IsDir()) {
			packs = append(packs, relativePath(root, path))
		}
	}
	sort.Strings(packs)
	return packs, nil
}

func scanTenants(root string) ([]Tenant, error) {
	tenants := []Tenant{}
	tenantsRoot := filepath.Join(root, "tenants")
	entries, err := os.ReadDir(tenantsRoot)
	if os.IsNotExist(err) {
		return tenants, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tenants dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		teams := []string{}
		teamsRoot := filepath.Join(tenantsRoot, name, "teams")
		teamEntries, err := os.ReadDir(teamsRoot)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read teams for tenant %s: %w", name, err)
		}
		for _, team := range teamEntries {
			if team.IsDir() {
				teams = append(teams, team.Name())
			}
		}
		sort.Strings(teams)
		tenants = append(tenants, Tenant{Name: name, Teams: teams})
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Name < tenants[j].Name })
	return tenants, nil
}

// isPackRef reports whether a catalog entry is an installable pack: either
// a directory carrying a pack.yaml descriptor or a .tgz bundle.
func isPackRef(path string, isDir bool) bool {
	if isDir {
		if _, err := os.Stat(filepath.Join(path, "pack.yaml")); err == nil {
			return true
		}
		_, err := os.Stat(filepath.Join(path, "pack.yml"))
		return err == nil
	}
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".tgz") || strings.HasSuffix(lower, ".tar.gz")
}

func relativePath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// RenderReport writes a scan report in the requested format.
func RenderReport(w io.Writer, scan *Scan, format string) error {
	switch format {
	case "", "text":
		fmt.Fprintf(w, "providers: %d domain(s)\n", len(scan.Providers))
		domains := make([]string, 0, len(scan.Providers))
		for domain := range scan.Providers {
			domains = append(domains, domain)
		}
		sort.Strings(domains)
		for _, domain := range domains {
			fmt.Fprintf(w, "  %s: %d pack(s)\n", domain, len(scan.Providers[domain]))
		}
		fmt.Fprintf(w, "packs: %d\n", len(scan.Packs))
		fmt.Fprintf(w, "tenants: %d\n", len(scan.Tenants))
		for _, tenant := range scan.Tenants {
			if len(tenant.Teams) == 0 {
				fmt.Fprintf(w, "  %s\n", tenant.Name)
				continue
			}
			fmt.Fprintf(w, "  %s: teams %s\n", tenant.Name, strings.Join(tenant.Teams, ", "))
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(scan)
	default:
		return fmt.Errorf("unknown scan format %q", format)
	}
}
