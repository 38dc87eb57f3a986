package hooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridpack/gridpack/core/audit"
	"github.com/gridpack/gridpack/core/infra/logging"
	"github.com/gridpack/gridpack/core/infra/metrics"
	"github.com/gridpack/gridpack/core/offers"
)

// ErrInvocationFailed marks a hook call that errored or timed out. Callers
// running a hook chain treat it as a degraded Continue.
var ErrInvocationFailed = errors.New("hook_invocation_failed")

// Invoker executes one pack operation. Implementations carry the actual
// runtime transport; tests stub it.
type Invoker interface {
	Invoke(ctx context.Context, packRef, operation string, payload []byte) ([]byte, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, packRef, operation string, payload []byte) ([]byte, error)

func (f InvokerFunc) Invoke(ctx context.Context, packRef, operation string, payload []byte) ([]byte, error) {
	return f(ctx, packRef, operation, payload)
}

// Meta identifies the message a hook chain runs for.
type Meta struct {
	Tenant        string
	Team          string
	Domain        string
	Provider      string
	CorrelationID string
}

// Result is the outcome of one hook in a chain.
type Result struct {
	Offer     offers.Offer
	Directive Directive
	// Degraded is set when the directive is a synthesized Continue after an
	// invocation or decode failure.
	Degraded bool
	Err      error
}

// Runner walks the hook offers for a stage in priority order.
type Runner struct {
	handle  *offers.Handle
	invoker Invoker
	sink    audit.Sink
	metrics metrics.Metrics
	timeout time.Duration
}

func NewRunner(handle *offers.Handle, invoker Invoker, sink audit.Sink, m metrics.Metrics, timeout time.Duration) *Runner {
	if sink == nil {
		sink = audit.NopSink{}
	}
	if m == nil {
		m = metrics.Noop{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{handle: handle, invoker: invoker, sink: sink, metrics: m, timeout: timeout}
}

// Run invokes each hook registered for the stage and contract, in priority
// order, stopping at the first directive that is not Continue. Failures
// never abort the chain: a hook that errors, times out, or returns garbage
// is audited and counts as Continue. The returned directive is the one that
// ended the chain, or Continue when every hook fell through.
func (r *Runner) Run(ctx context.Context, stage, contract string, payload []byte, meta Meta) (Directive, []Result) {
	if meta.CorrelationID == "" {
		meta.CorrelationID = uuid.NewString()
	}
	chain := r.handle.Snapshot().SelectHooks(stage, contract)
	results := make([]Result, 0, len(chain))
	for _, offer := range chain {
		result := r.invokeOne(ctx, offer, stage, contract, payload, meta)
		results = append(results, result)
		if result.Directive.Action != ActionContinue {
			return result.Directive, results
		}
	}
	return Directive{Action: ActionContinue}, results
}

func (r *Runner) invokeOne(ctx context.Context, offer offers.Offer, stage, contract string, payload []byte, meta Meta) Result {
	r.metrics.IncHookInvoked(stage, contract)
	r.sink.Emit(ctx, audit.Stamp(audit.Event{
		Name:          audit.EventHookInvoked,
		Tenant:        meta.Tenant,
		Team:          meta.Team,
		Domain:        meta.Domain,
		Provider:      meta.Provider,
		CorrelationID: meta.CorrelationID,
		Fields:        map[string]any{"offer": offer.Key(), "stage": stage},
	}))

	raw, err := r.invoke(ctx, offer, payload)
	if err != nil {
		logging.Warn("hooks", "hook invocation failed, continuing",
			"offer", offer.Key(), "error", err.Error())
		r.metrics.IncDirectiveParseError(stage)
		r.sink.Emit(ctx, audit.Stamp(audit.Event{
			Name:          audit.EventParseError,
			Tenant:        meta.Tenant,
			Team:          meta.Team,
			CorrelationID: meta.CorrelationID,
			Fields:        map[string]any{"offer": offer.Key(), "stage": stage, "error": err.Error()},
		}))
		return Result{Offer: offer, Directive: Directive{Action: ActionContinue}, Degraded: true, Err: err}
	}

	directive, err := ParseDirective(raw)
	if err != nil {
		r.metrics.IncDirectiveParseError(stage)
		r.sink.Emit(ctx, audit.Stamp(audit.Event{
			Name:          audit.EventParseError,
			Tenant:        meta.Tenant,
			Team:          meta.Team,
			CorrelationID: meta.CorrelationID,
			Fields:        map[string]any{"offer": offer.Key(), "stage": stage, "error": err.Error()},
		}))
		return Result{Offer: offer, Directive: Directive{Action: ActionContinue}, Degraded: true, Err: err}
	}

	r.metrics.IncDirectiveApplied(string(directive.Action))
	r.sink.Emit(ctx, audit.Stamp(audit.Event{
		Name:          audit.EventDirectiveApplied,
		Tenant:        meta.Tenant,
		Team:          meta.Team,
		CorrelationID: meta.CorrelationID,
		Fields:        map[string]any{"offer": offer.Key(), "action": string(directive.Action)},
	}))
	return Result{Offer: offer, Directive: directive}
}

// invoke runs one hook under the runner timeout.
func (r *Runner) invoke(ctx context.Context, offer offers.Offer, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	operation := offer.Operation
	if operation == "" {
		operation = offer.ID
	}
	raw, err := r.invoker.Invoke(ctx, offer.PackRef, operation, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvocationFailed, offer.Key(), err)
	}
	return raw, nil
}
