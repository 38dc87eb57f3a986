package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gridpack/gridpack/core/audit"
	"github.com/gridpack/gridpack/core/gmap"
	"github.com/gridpack/gridpack/core/infra/locks"
	"github.com/gridpack/gridpack/core/infra/logging"
	"github.com/gridpack/gridpack/core/infra/metrics"
)

const (
	// ManifestVersion is the schema version stamped into every manifest.
	ManifestVersion = "1"

	resolveLockTTL   = 30 * time.Second
	resolveLockRetry = 50 * time.Millisecond
)

var (
	ErrTenantNotFound = errors.New("tenant_not_found")
	ErrTeamNotFound   = errors.New("team_not_found")
	ErrManifestWrite  = errors.New("manifest_write_failed")
)

// envPassthrough names environment variables copied into every manifest so
// runtimes launched from it inherit them.
var envPassthrough = []string{
	"OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_RESOURCE_ATTRIBUTES",
	"GRIDPACK_LOG_FORMAT",
}

// Manifest is the resolver output for one (tenant, team) pair: the catalog
// view plus the policy sources and the recorded global verdict.
type Manifest struct {
	Version        string              `yaml:"version"`
	Tenant         string              `yaml:"tenant"`
	Team           string              `yaml:"team,omitempty"`
	ProjectRoot    string              `yaml:"project_root"`
	Providers      map[string][]string `yaml:"providers"`
	Packs          []string            `yaml:"packs"`
	EnvPassthrough []string            `yaml:"env_passthrough,omitempty"`
	Policy         PolicySection       `yaml:"policy"`
}

// PolicySection records where the access rules came from and what the
// global verdict was at resolve time. The verdict is informational: a
// forbidden verdict still produces a manifest.
type PolicySection struct {
	Source  PolicySource `yaml:"source"`
	Default string       `yaml:"default"`
	Verdict string       `yaml:"verdict"`
}

type PolicySource struct {
	TenantGmap string `yaml:"tenant_gmap"`
	TeamGmap   string `yaml:"team_gmap,omitempty"`
}

// Key returns the manifest file stem: <tenant> or <tenant>.<team>.
func (m *Manifest) Key() string {
	return manifestKey(m.Tenant, m.Team)
}

func manifestKey(tenant, team string) string {
	if team == "" {
		return tenant
	}
	return tenant + "." + team
}

// ManifestPath returns state/resolved/<tenant>[.<team>].yaml under root.
func ManifestPath(root, tenant, team string) string {
	return filepath.Join(root, "state", "resolved", manifestKey(tenant, team)+".yaml")
}

// LoadManifest reads a previously resolved manifest from disk.
func LoadManifest(root, tenant, team string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(root, tenant, team))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", manifestKey(tenant, team), err)
	}
	return &m, nil
}

// Resolver computes and writes manifests. A lock store serializes resolves
// per (tenant, team) pair; writes are temp-file-plus-rename so readers never
// observe a partial manifest.
type Resolver struct {
	root    string
	owner   string
	locker  locks.Store
	sink    audit.Sink
	metrics metrics.ResolverMetrics
}

func NewResolver(root string, store locks.Store, sink audit.Sink, m metrics.ResolverMetrics) *Resolver {
	if store == nil {
		store = locks.NewMemoryStore()
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	if m == nil {
		m = metrics.NoopResolver{}
	}
	host, _ := os.Hostname()
	return &Resolver{
		root:    root,
		owner:   fmt.Sprintf("resolver@%s/%d", host, os.Getpid()),
		locker:  store,
		sink:    sink,
		metrics: m,
	}
}

// Resolve builds and atomically replaces the manifest for one pair.
func (r *Resolver) Resolve(ctx context.Context, tenant, team string) (*Manifest, error) {
	if !ValidName(tenant) || (team != "" && !ValidName(team)) {
		r.metrics.IncResolve("invalid")
		return nil, fmt.Errorf("invalid pair %q/%q", tenant, team)
	}
	if _, err := os.Stat(filepath.Join(r.root, "tenants", tenant)); err != nil {
		r.metrics.IncResolve("tenant_not_found")
		return nil, fmt.Errorf("tenant %s: %w", tenant, ErrTenantNotFound)
	}
	if team != "" {
		if _, err := os.Stat(filepath.Join(r.root, "tenants", tenant, "teams", team)); err != nil {
			r.metrics.IncResolve("team_not_found")
			return nil, fmt.Errorf("team %s/%s: %w", tenant, team, ErrTeamNotFound)
		}
	}

	resource := "resolve:" + manifestKey(tenant, team)
	if err := r.acquire(ctx, resource); err != nil {
		r.metrics.IncResolve("lock_failed")
		return nil, err
	}
	defer r.locker.Release(context.Background(), resource, r.owner)

	manifest, err := r.build(tenant, team)
	if err != nil {
		r.metrics.IncResolve("error")
		return nil, err
	}
	if err := r.write(manifest); err != nil {
		r.metrics.IncResolve("write_failed")
		return nil, err
	}
	r.metrics.IncResolve("ok")
	r.sink.Emit(ctx, audit.Stamp(audit.Event{
		Name:   audit.EventManifestResolved,
		Tenant: tenant,
		Team:   team,
		Fields: map[string]any{
			"packs":   len(manifest.Packs),
			"verdict": manifest.Policy.Verdict,
		},
	}))
	logging.Info("resolver", "manifest resolved",
		"pair", manifest.Key(), "packs", len(manifest.Packs), "verdict", manifest.Policy.Verdict)
	return manifest, nil
}

// ResolveAll resolves every pair found by a scan: tenants without teams get
// a tenant manifest, tenants with teams get one manifest per team. The
// first error stops the walk.
func (r *Resolver) ResolveAll(ctx context.Context) ([]*Manifest, error) {
	scan, err := ScanProject(r.root)
	if err != nil {
		return nil, err
	}
	var out []*Manifest
	for _, tenant := range scan.Tenants {
		if len(tenant.Teams) == 0 {
			m, err := r.Resolve(ctx, tenant.Name, "")
			if err != nil {
				return out, err
			}
			out = append(out, m)
			continue
		}
		for _, team := range tenant.Teams {
			m, err := r.Resolve(ctx, tenant.Name, team)
			if err != nil {
				return out, err
			}
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *Resolver) acquire(ctx context.Context, resource string) error {
	for {
		_, ok, err := r.locker.Acquire(ctx, resource, r.owner, locks.ModeExclusive, resolveLockTTL)
		if err != nil {
			return fmt.Errorf("acquire %s: %w", resource, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("acquire %s: %w", resource, ctx.Err())
		case <-time.After(resolveLockRetry):
		}
	}
}

func (r *Resolver) build(tenant, team string) (*Manifest, error) {
	scan, err := ScanProject(r.root)
	if err != nil {
		return nil, err
	}

	tenantGmap := filepath.Join("tenants", tenant, "tenant.gmap")
	tenantDoc, err := gmap.LoadFile(filepath.Join(r.root, tenantGmap))
	if err != nil {
		return nil, err
	}
	var teamDoc *gmap.Document
	teamGmap := ""
	if team != "" {
		teamGmap = filepath.Join("tenants", tenant, "teams", team, "team.gmap")
		teamDoc, err = gmap.LoadFile(filepath.Join(r.root, teamGmap))
		if err != nil {
			return nil, err
		}
	}

	packs := scan.Packs
	verdict := string(gmap.PolicyForbidden)
	policy, matched := gmap.Evaluate(tenantDoc, teamDoc, gmap.Path{})
	if matched {
		verdict = string(policy)
		if policy == gmap.PolicyForbidden {
			// An explicit global forbidden empties the effective catalog;
			// the default-deny fallback only affects ingress decisions.
			packs = []string{}
		}
	}

	return &Manifest{
		Version:        ManifestVersion,
		Tenant:         tenant,
		Team:           team,
		ProjectRoot:    r.root,
		Providers:      scan.Providers,
		Packs:          packs,
		EnvPassthrough: append([]string{}, envPassthrough...),
		Policy: PolicySection{
			Source:  PolicySource{TenantGmap: filepath.ToSlash(tenantGmap), TeamGmap: filepath.ToSlash(teamGmap)},
			Default: string(gmap.PolicyForbidden),
			Verdict: verdict,
		},
	}, nil
}

func (r *Resolver) write(m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrManifestWrite, m.Key(), err)
	}
	dir := filepath.Join(r.root, "state", "resolved")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrManifestWrite, err)
	}
	tmp, err := os.CreateTemp(dir, "."+m.Key()+"-*.yaml")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrManifestWrite, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrManifestWrite, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrManifestWrite, err)
	}
	if err := os.Rename(tmpName, ManifestPath(r.root, m.Tenant, m.Team)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrManifestWrite, err)
	}
	return nil
}
