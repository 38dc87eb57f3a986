// Package offers maintains the registry of capabilities advertised by
// installed packs. A registry is an immutable snapshot: loads build a fresh
// one and swap it in whole, so readers never see a half-updated view.
package offers

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
)

// Offer kinds.
const (
	KindHook       = "hook"
	KindSubs       = "subs"
	KindCapability = "capability"
)

// DefaultPriority applies when a descriptor omits the priority field.
// Lower values are selected first.
const DefaultPriority = 100

// ErrOfferConflict marks duplicate pack IDs or duplicate offer keys across
// the catalog. A conflict fails the whole load.
var ErrOfferConflict = errors.New("offer_conflict")

// Offer is one registered capability.
type Offer struct {
	PackID    string
	PackRef   string
	ID        string
	Kind      string
	Stage     string
	Contract  string
	Domain    string
	Operation string
	Priority  int
}

// Key returns the registry-wide identity <packID>::<offerID>.
func (o Offer) Key() string {
	return o.PackID + "::" + o.ID
}

// Registry is an immutable offer snapshot.
type Registry struct {
	generation uint64
	offers     map[string]Offer
	ordered    []Offer
	packRefs   map[string]string
}

// Stats summarizes a registry snapshot. Hook counts key on
// "<stage>/<contract>", subs counts on the contract.
type Stats struct {
	Generation  uint64         `json:"generation"`
	PacksTotal  int            `json:"packs_total"`
	OffersTotal int            `json:"offers_total"`
	KindCounts  map[string]int `json:"kind_counts"`
	HookCounts  map[string]int `json:"hook_counts,omitempty"`
	SubsCounts  map[string]int `json:"subs_counts,omitempty"`
}

// LoadRegistry reads every pack reference and builds a snapshot. Refs are
// catalog-relative; root anchors them. Any descriptor error or conflict
// fails the load and leaves the caller's previous snapshot untouched.
func LoadRegistry(root string, refs []string, generation uint64) (*Registry, error) {
	reg := &Registry{
		generation: generation,
		offers:     map[string]Offer{},
		packRefs:   map[string]string{},
	}
	sorted := append([]string{}, refs...)
	sort.Strings(sorted)
	for _, ref := range sorted {
		desc, err := LoadDescriptor(filepath.Join(root, filepath.FromSlash(ref)))
		if err != nil {
			return nil, err
		}
		if prev, dup := reg.packRefs[desc.Pack.ID]; dup {
			return nil, fmt.Errorf("%w: pack id %s claimed by %s and %s", ErrOfferConflict, desc.Pack.ID, prev, ref)
		}
		reg.packRefs[desc.Pack.ID] = ref
		for _, spec := range desc.Offers {
			offer := Offer{
				PackID:    desc.Pack.ID,
				PackRef:   ref,
				ID:        spec.ID,
				Kind:      spec.Kind,
				Stage:     spec.Stage,
				Contract:  spec.Contract,
				Domain:    spec.Domain,
				Operation: spec.Operation,
				Priority:  DefaultPriority,
			}
			if spec.Priority != nil {
				offer.Priority = *spec.Priority
			}
			if _, dup := reg.offers[offer.Key()]; dup {
				return nil, fmt.Errorf("%w: duplicate offer %s", ErrOfferConflict, offer.Key())
			}
			reg.offers[offer.Key()] = offer
			reg.ordered = append(reg.ordered, offer)
		}
	}
	sort.Slice(reg.ordered, func(i, j int) bool {
		a, b := reg.ordered[i], reg.ordered[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Key() < b.Key()
	})
	return reg, nil
}

// Generation returns the snapshot's load counter.
func (r *Registry) Generation() uint64 { return r.generation }

// Get looks up one offer by its <packID>::<offerID> key.
func (r *Registry) Get(key string) (Offer, bool) {
	offer, ok := r.offers[key]
	return offer, ok
}

// PackRef returns the catalog reference a pack ID was loaded from.
func (r *Registry) PackRef(packID string) (string, bool) {
	ref, ok := r.packRefs[packID]
	return ref, ok
}

// Select returns all offers of one kind ordered by priority then key.
func (r *Registry) Select(kind string) []Offer {
	var out []Offer
	for _, offer := range r.ordered {
		if offer.Kind == kind {
			out = append(out, offer)
		}
	}
	return out
}

// SelectHooks returns hook offers for a stage and contract, in invocation
// order.
func (r *Registry) SelectHooks(stage, contract string) []Offer {
	var out []Offer
	for _, offer := range r.ordered {
		if offer.Kind == KindHook && offer.Stage == stage && offer.Contract == contract {
			out = append(out, offer)
		}
	}
	return out
}

// SelectSubs returns subscription offers in priority order, optionally
// filtered by contract.
func (r *Registry) SelectSubs(contract string) []Offer {
	var out []Offer
	for _, offer := range r.ordered {
		if offer.Kind != KindSubs {
			continue
		}
		if contract != "" && offer.Contract != contract {
			continue
		}
		out = append(out, offer)
	}
	return out
}

// Stats computes summary counts for the snapshot.
func (r *Registry) Stats() Stats {
	stats := Stats{
		Generation:  r.generation,
		PacksTotal:  len(r.packRefs),
		OffersTotal: len(r.ordered),
		KindCounts:  map[string]int{},
		HookCounts:  map[string]int{},
		SubsCounts:  map[string]int{},
	}
	for _, offer := range r.ordered {
		stats.KindCounts[offer.Kind]++
		switch offer.Kind {
		case KindHook:
			stats.HookCounts[offer.Stage+"/"+offer.Contract]++
		case KindSubs:
			stats.SubsCounts[offer.Contract]++
		}
	}
	return stats
}
