package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics defines counters for the offer registry and hook pipeline.
type Metrics interface {
	IncRegistryLoaded(kind string, count int)
	IncHookInvoked(stage, contract string)
	IncDirectiveApplied(action string)
	IncDirectiveParseError(stage string)
}

// ResolverMetrics captures manifest resolution outcomes.
type ResolverMetrics interface {
	IncResolve(outcome string)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncRegistryLoaded(string, int) {}
func (Noop) IncHookInvoked(string, string) {}
func (Noop) IncDirectiveApplied(string)    {}
func (Noop) IncDirectiveParseError(string) {}

// NoopResolver implements ResolverMetrics without emitting anything.
type NoopResolver struct{}

func (NoopResolver) IncResolve(string) {}

// Prom implements Metrics backed by Prometheus counters.
type Prom struct {
	registryLoaded *prometheus.CounterVec
	hooksInvoked   *prometheus.CounterVec
	directives     *prometheus.CounterVec
	parseErrors    *prometheus.CounterVec
	once           sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		registryLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_offers_loaded_total",
			Help:      "Offers loaded into the registry by kind",
		}, []string{"kind"}),
		hooksInvoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hooks_invoked_total",
			Help:      "Hook invocations by stage and contract",
		}, []string{"stage", "contract"}),
		directives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directives_applied_total",
			Help:      "Control directives applied by action",
		}, []string{"action"}),
		parseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directive_parse_errors_total",
			Help:      "Hook results that failed directive decoding per stage",
		}, []string{"stage"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.registryLoaded, p.hooksInvoked, p.directives, p.parseErrors)
	})
}

func (p *Prom) IncRegistryLoaded(kind string, count int) {
	p.registryLoaded.WithLabelValues(kind).Add(float64(count))
}

func (p *Prom) IncHookInvoked(stage, contract string) {
	p.hooksInvoked.WithLabelValues(stage, contract).Inc()
}

func (p *Prom) IncDirectiveApplied(action string) {
	p.directives.WithLabelValues(action).Inc()
}

func (p *Prom) IncDirectiveParseError(stage string) {
	p.parseErrors.WithLabelValues(stage).Inc()
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// --- Resolver metrics ---

type resolverProm struct {
	resolves *prometheus.CounterVec
	once     sync.Once
}

// NewResolverProm constructs a ResolverMetrics with a resolve counter.
func NewResolverProm(namespace string) ResolverMetrics {
	r := &resolverProm{
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manifest_resolves_total",
			Help:      "Manifest resolutions by outcome",
		}, []string{"outcome"}),
	}
	r.once.Do(func() {
		prometheus.MustRegister(r.resolves)
	})
	return r
}

func (r *resolverProm) IncResolve(outcome string) {
	r.resolves.WithLabelValues(outcome).Inc()
}
