package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNoopImplementsInterfaces(t *testing.T) {
	var _ Metrics = Noop{}
	var _ ResolverMetrics = NoopResolver{}
	// Must not panic.
	Noop{}.IncRegistryLoaded("hook", 3)
	Noop{}.IncHookInvoked("post_ingress", "c")
	Noop{}.IncDirectiveApplied("deny")
	Noop{}.IncDirectiveParseError("post_ingress")
	NoopResolver{}.IncResolve("ok")
}

func TestPromCounters(t *testing.T) {
	p := NewProm("gridpack_test")
	p.IncRegistryLoaded("hook", 2)
	p.IncHookInvoked("post_ingress", "gridpack.hook.control.v1")
	p.IncDirectiveApplied("deny")
	p.IncDirectiveApplied("deny")
	p.IncDirectiveParseError("post_ingress")

	if got := testutil.ToFloat64(p.registryLoaded.WithLabelValues("hook")); got != 2 {
		t.Fatalf("registry loaded = %v", got)
	}
	if got := testutil.ToFloat64(p.directives.WithLabelValues("deny")); got != 2 {
		t.Fatalf("directives = %v", got)
	}
	if got := testutil.ToFloat64(p.parseErrors.WithLabelValues("post_ingress")); got != 1 {
		t.Fatalf("parse errors = %v", got)
	}
}

func TestResolverProm(t *testing.T) {
	r := NewResolverProm("gridpack_test_resolver")
	r.IncResolve("ok")
	r.IncResolve("ok")
	rp := r.(*resolverProm)
	if got := testutil.ToFloat64(rp.resolves.WithLabelValues("ok")); got != 2 {
		t.Fatalf("resolves = %v", got)
	}
}
