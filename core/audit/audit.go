// Package audit defines the observability events the operator core emits.
// The events are consumed by an external collaborator; the core only
// guarantees that degraded conditions surface here rather than as failures.
package audit

import (
	"context"
	"time"

	"github.com/gridpack/gridpack/core/infra/logging"
)

// Event names emitted by the operator core.
const (
	EventRegistryLoaded   = "offer.registry.loaded"
	EventHookInvoked      = "hook.invoked"
	EventDirectiveApplied = "hook.directive.applied"
	EventParseError       = "hook.directive.parse_error"
	EventManifestResolved = "manifest.resolved"
)

// Event is a single audit record.
type Event struct {
	Name          string         `json:"event"`
	Time          time.Time      `json:"time"`
	Tenant        string         `json:"tenant,omitempty"`
	Team          string         `json:"team,omitempty"`
	Domain        string         `json:"domain,omitempty"`
	Provider      string         `json:"provider,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
}

// Sink consumes audit events. Implementations must not fail the caller.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// LogSink writes events through the operator logger.
type LogSink struct {
	Component string
}

func (s LogSink) Emit(_ context.Context, event Event) {
	component := s.Component
	if component == "" {
		component = "audit"
	}
	kv := []interface{}{"event", event.Name}
	if event.Tenant != "" {
		kv = append(kv, "tenant", event.Tenant)
	}
	if event.Team != "" {
		kv = append(kv, "team", event.Team)
	}
	if event.Domain != "" {
		kv = append(kv, "domain", event.Domain)
	}
	if event.Provider != "" {
		kv = append(kv, "provider", event.Provider)
	}
	if event.CorrelationID != "" {
		kv = append(kv, "correlation_id", event.CorrelationID)
	}
	for key, value := range event.Fields {
		kv = append(kv, key, value)
	}
	if event.Name == EventParseError {
		logging.Warn(component, "audit", kv...)
		return
	}
	logging.Info(component, "audit", kv...)
}

// MultiSink fans an event out to several sinks.
type MultiSink []Sink

func (s MultiSink) Emit(ctx context.Context, event Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}

// Stamp fills the event time when unset and returns the event.
func Stamp(event Event) Event {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	return event
}
