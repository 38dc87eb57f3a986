package project

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// addPackDir creates packs/<name>/pack.yaml so the scanner counts it.
func addPackDir(t *testing.T, root, name string) {
	t.Helper()
	writeFile(t, filepath.Join(root, "packs", name, "pack.yaml"), "pack:\n  id: "+name+"\n")
}

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := InitProject(root); err != nil {
		t.Fatalf("init: %v", err)
	}
	return root
}

func TestInitProjectIdempotent(t *testing.T) {
	root := newProject(t)
	for _, dir := range []string{"packs", "providers", "tenants", "state/resolved"} {
		if _, err := os.Stat(filepath.Join(root, dir)); err != nil {
			t.Fatalf("missing %s: %v", dir, err)
		}
	}
	writeFile(t, filepath.Join(root, "README.md"), "edited\n")
	if err := InitProject(root); err != nil {
		t.Fatalf("re-init: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "README.md"))
	if string(data) != "edited\n" {
		t.Fatalf("re-init clobbered README: %q", data)
	}
}

func TestScanProject(t *testing.T) {
	root := newProject(t)
	addPackDir(t, root, "sales")
	writeFile(t, filepath.Join(root, "packs", "billing.tgz"), "not a real archive")
	writeFile(t, filepath.Join(root, "packs", "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, "providers", "events", "webhooks.tgz"), "x")
	if err := AddTenant(root, "acme"); err != nil {
		t.Fatalf("add tenant: %v", err)
	}
	if err := AddTeam(root, "acme", "core"); err != nil {
		t.Fatalf("add team: %v", err)
	}

	scan, err := ScanProject(root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	wantPacks := []string{"packs/billing.tgz", "packs/sales"}
	if len(scan.Packs) != 2 || scan.Packs[0] != wantPacks[0] || scan.Packs[1] != wantPacks[1] {
		t.Fatalf("packs = %v, want %v", scan.Packs, wantPacks)
	}
	if got := scan.Providers["events"]; len(got) != 1 || got[0] != "providers/events/webhooks.tgz" {
		t.Fatalf("events providers = %v", got)
	}
	if len(scan.Tenants) != 1 || scan.Tenants[0].Name != "acme" || len(scan.Tenants[0].Teams) != 1 {
		t.Fatalf("tenants = %+v", scan.Tenants)
	}
}

func TestScanEmptyTree(t *testing.T) {
	scan, err := ScanProject(t.TempDir())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scan.Packs) != 0 || len(scan.Providers) != 0 || len(scan.Tenants) != 0 {
		t.Fatalf("expected empty scan, got %+v", scan)
	}
}

func TestRenderReport(t *testing.T) {
	root := newProject(t)
	addPackDir(t, root, "sales")
	if err := AddTenant(root, "acme"); err != nil {
		t.Fatalf("add tenant: %v", err)
	}
	scan, err := ScanProject(root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	var text bytes.Buffer
	if err := RenderReport(&text, scan, "text"); err != nil {
		t.Fatalf("render text: %v", err)
	}
	if !strings.Contains(text.String(), "packs: 1") || !strings.Contains(text.String(), "acme") {
		t.Fatalf("unexpected text report: %q", text.String())
	}

	var buf bytes.Buffer
	if err := RenderReport(&buf, scan, "json"); err != nil {
		t.Fatalf("render json: %v", err)
	}
	var decoded Scan
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode json report: %v", err)
	}
	if len(decoded.Packs) != 1 {
		t.Fatalf("json report packs = %v", decoded.Packs)
	}

	if err := RenderReport(&buf, scan, "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestResolveWritesManifest(t *testing.T) {
	root := newProject(t)
	addPackDir(t, root, "sales")
	if err := AddTenant(root, "acme"); err != nil {
		t.Fatalf("add tenant: %v", err)
	}
	writeFile(t, filepath.Join(root, "tenants", "acme", "tenant.gmap"), "_ = public\n")

	r := NewResolver(root, nil, nil, nil)
	m, err := r.Resolve(context.Background(), "acme", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.Version != ManifestVersion {
		t.Fatalf("version = %q", m.Version)
	}
	if len(m.Packs) != 1 || m.Packs[0] != "packs/sales" {
		t.Fatalf("packs = %v", m.Packs)
	}
	if m.Policy.Verdict != "public" || m.Policy.Default != "forbidden" {
		t.Fatalf("policy = %+v", m.Policy)
	}
	if m.Policy.Source.TenantGmap != "tenants/acme/tenant.gmap" {
		t.Fatalf("tenant gmap source = %q", m.Policy.Source.TenantGmap)
	}

	loaded, err := LoadManifest(root, "acme", "")
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if loaded.Tenant != "acme" || loaded.Team != "" || len(loaded.Packs) != 1 {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestResolveEnvPassthroughComplete(t *testing.T) {
	root := newProject(t)
	if err := AddTenant(root, "acme"); err != nil {
		t.Fatalf("add tenant: %v", err)
	}
	writeFile(t, filepath.Join(root, "tenants", "acme", "tenant.gmap"), "_ = public\n")

	// The manifest carries the whole passthrough list whether or not the
	// variables are present in the resolver's environment.
	os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	t.Setenv("GRIDPACK_LOG_FORMAT", "json")

	r := NewResolver(root, nil, nil, nil)
	m, err := r.Resolve(context.Background(), "acme", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_RESOURCE_ATTRIBUTES", "GRIDPACK_LOG_FORMAT"}
	if len(m.EnvPassthrough) != len(want) {
		t.Fatalf("env passthrough = %v", m.EnvPassthrough)
	}
	for i, name := range want {
		if m.EnvPassthrough[i] != name {
			t.Fatalf("env passthrough[%d] = %q, want %q", i, m.EnvPassthrough[i], name)
		}
	}
}

func TestResolveTenantNotFound(t *testing.T) {
	root := newProject(t)
	r := NewResolver(root, nil, nil, nil)
	_, err := r.Resolve(context.Background(), "ghost", "")
	if !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("err = %v, want ErrTenantNotFound", err)
	}
	if _, statErr := os.Stat(ManifestPath(root, "ghost", "")); !os.IsNotExist(statErr) {
		t.Fatal("manifest written for unknown tenant")
	}
}

func TestResolveTeamNotFound(t *testing.T) {
	root := newProject(t)
	if err := AddTenant(root, "acme"); err != nil {
		t.Fatalf("add tenant: %v", err)
	}
	r := NewResolver(root, nil, nil, nil)
	_, err := r.Resolve(context.Background(), "acme", "ghost")
	if !errors.Is(err, ErrTeamNotFound) {
		t.Fatalf("err = %v, want ErrTeamNotFound", err)
	}
}

func TestResolveGlobalForbiddenEmptiesPacks(t *testing.T) {
	root := newProject(t)
	addPackDir(t, root, "sales")
	if err := AddTenant(root, "acme"); err != nil {
		t.Fatalf("add tenant: %v", err)
	}
	writeFile(t, filepath.Join(root, "tenants", "acme", "tenant.gmap"), "_ = forbidden\n")

	r := NewResolver(root, nil, nil, nil)
	m, err := r.Resolve(context.Background(), "acme", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(m.Packs) != 0 {
		t.Fatalf("packs = %v, want empty", m.Packs)
	}
	if m.Policy.Verdict != "forbidden" {
		t.Fatalf("verdict = %q", m.Policy.Verdict)
	}
}

func TestResolveTeamOverlayWins(t *testing.T) {
	root := newProject(t)
	addPackDir(t, root, "sales")
	if err := AddTenant(root, "acme"); err != nil {
		t.Fatalf("add tenant: %v", err)
	}
	if err := AddTeam(root, "acme", "core"); err != nil {
		t.Fatalf("add team: %v", err)
	}
	writeFile(t, filepath.Join(root, "tenants", "acme", "tenant.gmap"), "_ = forbidden\n")
	writeFile(t, filepath.Join(root, "tenants", "acme", "teams", "core", "team.gmap"), "_ = public\n")

	r := NewResolver(root, nil, nil, nil)
	m, err := r.Resolve(context.Background(), "acme", "core")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.Policy.Verdict != "public" {
		t.Fatalf("verdict = %q, want public", m.Policy.Verdict)
	}
	if len(m.Packs) != 1 {
		t.Fatalf("packs = %v", m.Packs)
	}
	if m.Policy.Source.TeamGmap != "tenants/acme/teams/core/team.gmap" {
		t.Fatalf("team gmap source = %q", m.Policy.Source.TeamGmap)
	}
	if got := ManifestPath(root, "acme", "core"); filepath.Base(got) != "acme.core.yaml" {
		t.Fatalf("manifest path = %q", got)
	}
}

func TestResolveBadGmapFailsWhole(t *testing.T) {
	root := newProject(t)
	if err := AddTenant(root, "acme"); err != nil {
		t.Fatalf("add tenant: %v", err)
	}
	writeFile(t, filepath.Join(root, "tenants", "acme", "tenant.gmap"), "sales = public\nbroken line\n")

	r := NewResolver(root, nil, nil, nil)
	if _, err := r.Resolve(context.Background(), "acme", ""); err == nil {
		t.Fatal("expected parse error")
	}
	if _, statErr := os.Stat(ManifestPath(root, "acme", "")); !os.IsNotExist(statErr) {
		t.Fatal("manifest written despite parse failure")
	}
}

func TestResolveAll(t *testing.T) {
	root := newProject(t)
	for _, tenant := range []string{"acme", "globex"} {
		if err := AddTenant(root, tenant); err != nil {
			t.Fatalf("add tenant: %v", err)
		}
	}
	for _, team := range []string{"core", "data"} {
		if err := AddTeam(root, "globex", team); err != nil {
			t.Fatalf("add team: %v", err)
		}
	}

	r := NewResolver(root, nil, nil, nil)
	manifests, err := r.ResolveAll(context.Background())
	if err != nil {
		t.Fatalf("resolve all: %v", err)
	}
	// acme has no teams so it gets a tenant manifest; globex gets one per team.
	if len(manifests) != 3 {
		t.Fatalf("manifest count = %d, want 3", len(manifests))
	}
	keys := map[string]bool{}
	for _, m := range manifests {
		keys[m.Key()] = true
	}
	for _, want := range []string{"acme", "globex.core", "globex.data"} {
		if !keys[want] {
			t.Fatalf("missing manifest %s (got %v)", want, keys)
		}
	}
	if keys["globex"] {
		t.Fatal("tenant-level manifest written for tenant with teams")
	}
}

func TestRemoveTenantDropsManifests(t *testing.T) {
	root := newProject(t)
	if err := AddTenant(root, "acme"); err != nil {
		t.Fatalf("add tenant: %v", err)
	}
	if err := AddTeam(root, "acme", "core"); err != nil {
		t.Fatalf("add team: %v", err)
	}
	r := NewResolver(root, nil, nil, nil)
	if _, err := r.Resolve(context.Background(), "acme", "core"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := RemoveTenant(root, "acme"); err != nil {
		t.Fatalf("remove tenant: %v", err)
	}
	if _, err := os.Stat(ManifestPath(root, "acme", "core")); !os.IsNotExist(err) {
		t.Fatal("team manifest survived tenant removal")
	}
	if _, err := os.Stat(filepath.Join(root, "tenants", "acme")); !os.IsNotExist(err) {
		t.Fatal("tenant dir survived removal")
	}
}

func TestValidName(t *testing.T) {
	for _, ok := range []string{"acme", "acme-1", "a.b_c"} {
		if !ValidName(ok) {
			t.Fatalf("ValidName(%q) = false", ok)
		}
	}
	for _, bad := range []string{"", "Acme", "../etc", "a b", ".hidden"} {
		if ValidName(bad) {
			t.Fatalf("ValidName(%q) = true", bad)
		}
	}
}
