// Package ingress runs the post-ingress control pipeline: inbound messages
// pass through the hook chain and come out with exactly one decision.
package ingress

import (
	"context"
	"os"
	"path/filepath"

	"github.com/gridpack/gridpack/core/gmap"
	"github.com/gridpack/gridpack/core/hooks"
	"github.com/gridpack/gridpack/core/infra/logging"
	"github.com/gridpack/gridpack/core/project"
)

// State names the pipeline phases. A message ends in exactly one of the
// four terminal states.
type State string

const (
	StateAwaitingHooks  State = "awaiting_hooks"
	StateDeciding       State = "deciding"
	StateDispatching    State = "dispatching"
	StateResponding     State = "responding"
	StateDenying        State = "denying"
	StateFallingThrough State = "falling_through"
)

// DomainEvents is the provider domain gated behind the event-hooks switch.
const DomainEvents = "events"

// Statuses reported with terminal decisions.
const (
	StatusDispatchAccepted = 202
)

// Message is one inbound item entering the pipeline.
type Message struct {
	Tenant        string
	Team          string
	Domain        string
	Provider      string
	CorrelationID string
	Payload       []byte
}

// Decision is the single terminal outcome for a message.
type Decision struct {
	State     State
	Status    int
	Body      string
	NeedsUser bool
	Reason    string
	Target    *hooks.DispatchTarget
}

// Options gate the pipeline. Both default to off when constructed from a
// zero value; wire them from config.
type Options struct {
	HooksEnabled      bool
	EventHooksEnabled bool
}

// Pipeline applies the hook chain and maps the winning directive to a
// terminal state.
type Pipeline struct {
	root   string
	runner *hooks.Runner
	opts   Options
}

func NewPipeline(root string, runner *hooks.Runner, opts Options) *Pipeline {
	return &Pipeline{root: root, runner: runner, opts: opts}
}

// Process runs one message through the pipeline. Hook failures never bubble
// up: the worst case is falling through to default routing.
func (p *Pipeline) Process(ctx context.Context, msg Message) Decision {
	if !p.opts.HooksEnabled {
		return Decision{State: StateFallingThrough, Reason: "hooks disabled"}
	}
	if msg.Domain == DomainEvents && !p.opts.EventHooksEnabled {
		return Decision{State: StateFallingThrough, Reason: "event hooks disabled"}
	}

	directive, _ := p.runner.Run(ctx, hooks.StagePostIngress, hooks.ContractControlV1, msg.Payload, hooks.Meta{
		Tenant:        msg.Tenant,
		Team:          msg.Team,
		Domain:        msg.Domain,
		Provider:      msg.Provider,
		CorrelationID: msg.CorrelationID,
	})

	switch directive.Action {
	case hooks.ActionDeny:
		return Decision{
			State:     StateDenying,
			Status:    directive.DenyStatus(),
			Body:      directive.Reply.Text,
			NeedsUser: directive.NeedsUser(),
			Reason:    directive.Reply.ReasonCode,
		}
	case hooks.ActionRespond:
		return Decision{
			State:     StateResponding,
			Status:    directive.RespondStatus(),
			Body:      directive.Reply.Text,
			NeedsUser: directive.NeedsUser(),
			Reason:    directive.Reply.ReasonCode,
		}
	case hooks.ActionDispatch:
		return p.dispatch(directive)
	default:
		return Decision{State: StateFallingThrough}
	}
}

// dispatch vets the target before accepting: the target pair must have a
// resolved manifest and the target path must be publicly allowed by the
// pair's access rules. A target that fails vetting falls through instead of
// erroring, matching the degrade-never-fail stance of the hook chain.
func (p *Pipeline) dispatch(directive hooks.Directive) Decision {
	target := directive.Target
	if target == nil {
		return Decision{State: StateFallingThrough, Reason: "dispatch without target"}
	}
	if err := target.Validate(); err != nil {
		logging.Warn("ingress", "dispatch target rejected", "target", target.String(), "error", err.Error())
		return Decision{State: StateFallingThrough, Reason: "invalid dispatch target"}
	}
	if _, err := project.LoadManifest(p.root, target.Tenant, target.Team); err != nil {
		logging.Warn("ingress", "dispatch target has no manifest", "target", target.String())
		return Decision{State: StateFallingThrough, Reason: "no manifest for dispatch target"}
	}
	allowed, err := p.targetAllowed(target)
	if err != nil {
		logging.Warn("ingress", "dispatch policy check failed", "target", target.String(), "error", err.Error())
		return Decision{State: StateFallingThrough, Reason: "policy check failed"}
	}
	if !allowed {
		return Decision{State: StateFallingThrough, Reason: "dispatch target forbidden"}
	}
	return Decision{
		State:  StateDispatching,
		Status: StatusDispatchAccepted,
		Target: target,
	}
}

// targetAllowed evaluates the target path against the target pair's access
// rules. Unmatched paths follow the default and stay forbidden.
func (p *Pipeline) targetAllowed(target *hooks.DispatchTarget) (bool, error) {
	tenantDoc, err := gmap.LoadFile(filepath.Join(p.root, "tenants", target.Tenant, "tenant.gmap"))
	if err != nil {
		return false, err
	}
	var teamDoc *gmap.Document
	if target.Team != "" {
		teamPath := filepath.Join(p.root, "tenants", target.Tenant, "teams", target.Team, "team.gmap")
		if _, statErr := os.Stat(filepath.Dir(teamPath)); statErr == nil {
			teamDoc, err = gmap.LoadFile(teamPath)
			if err != nil {
				return false, err
			}
		}
	}
	policy, matched := gmap.Evaluate(tenantDoc, teamDoc, gmap.Path{
		Pack: target.Pack,
		Flow: target.Flow,
		Node: target.Node,
	})
	if !matched {
		return false, nil
	}
	return policy == gmap.PolicyPublic, nil
}
