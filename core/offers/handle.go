package offers

import (
	"context"
	"sync/atomic"

	"github.com/gridpack/gridpack/core/audit"
	"github.com/gridpack/gridpack/core/infra/logging"
	"github.com/gridpack/gridpack/core/infra/metrics"
)

// Handle is the live registry pointer shared by readers. Reload builds a
// fresh snapshot and swaps it in; on any load error the previous snapshot
// stays active.
type Handle struct {
	root    string
	current atomic.Pointer[Registry]
	loads   atomic.Uint64
	sink    audit.Sink
	metrics metrics.Metrics
}

func NewHandle(root string, sink audit.Sink, m metrics.Metrics) *Handle {
	if sink == nil {
		sink = audit.NopSink{}
	}
	if m == nil {
		m = metrics.Noop{}
	}
	h := &Handle{root: root, sink: sink, metrics: m}
	h.current.Store(&Registry{offers: map[string]Offer{}, packRefs: map[string]string{}})
	return h
}

// Snapshot returns the active registry. The result is immutable and safe to
// use across goroutines.
func (h *Handle) Snapshot() *Registry {
	return h.current.Load()
}

// Reload rescans the catalog and swaps in a new snapshot. A failed load
// keeps the old snapshot and returns the error.
func (h *Handle) Reload(ctx context.Context) error {
	refs, err := DiscoverPacks(h.root)
	if err != nil {
		return err
	}
	generation := h.loads.Add(1)
	reg, err := LoadRegistry(h.root, refs, generation)
	if err != nil {
		logging.Warn("offers", "registry reload failed, keeping previous snapshot",
			"generation", generation, "error", err.Error())
		return err
	}
	h.current.Store(reg)
	stats := reg.Stats()
	for kind, count := range stats.KindCounts {
		h.metrics.IncRegistryLoaded(kind, count)
	}
	h.sink.Emit(ctx, audit.Stamp(audit.Event{
		Name: audit.EventRegistryLoaded,
		Fields: map[string]any{
			"generation": stats.Generation,
			"packs":      stats.PacksTotal,
			"offers":     stats.OffersTotal,
		},
	}))
	logging.Info("offers", "registry loaded",
		"generation", stats.Generation, "packs", stats.PacksTotal, "offers", stats.OffersTotal)
	return nil
}
