package ingress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gridpack/gridpack/core/infra/bus"
	"github.com/gridpack/gridpack/core/infra/logging"
)

const (
	// SubjectIngress is the wildcard subject inbound messages arrive on.
	SubjectIngress = "gridpack.ingress.>"
	// SubjectDecisionPrefix carries decisions for callers that did not use
	// request/reply.
	SubjectDecisionPrefix = "gridpack.decision."

	consumerQueue = "gridpack-operators"
)

// inboundMessage is the wire shape of one ingress item.
type inboundMessage struct {
	Tenant        string          `json:"tenant"`
	Team          string          `json:"team,omitempty"`
	Domain        string          `json:"domain,omitempty"`
	Provider      string          `json:"provider,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// decisionReply is the wire shape of a pipeline decision.
type decisionReply struct {
	State         string `json:"state"`
	Status        int    `json:"status,omitempty"`
	Body          string `json:"body,omitempty"`
	NeedsUser     bool   `json:"needs_user,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Target        string `json:"target,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Consumer feeds bus messages through the pipeline and answers with the
// decision. Requesters get the decision as the reply; fire-and-forget
// senders with a correlation id get it on the decision subject.
type Consumer struct {
	Bus      *bus.NatsBus
	Pipeline *Pipeline
}

// Start subscribes on the ingress subject. Subscription lives until the bus
// connection closes.
func (c *Consumer) Start(ctx context.Context) error {
	return c.Bus.Subscribe(SubjectIngress, consumerQueue, func(subject string, data []byte) ([]byte, error) {
		var inbound inboundMessage
		if err := json.Unmarshal(data, &inbound); err != nil {
			return nil, fmt.Errorf("decode ingress message on %s: %w", subject, err)
		}
		decision := c.Pipeline.Process(ctx, Message{
			Tenant:        inbound.Tenant,
			Team:          inbound.Team,
			Domain:        inbound.Domain,
			Provider:      inbound.Provider,
			CorrelationID: inbound.CorrelationID,
			Payload:       inbound.Payload,
		})
		reply := decisionReply{
			State:         string(decision.State),
			Status:        decision.Status,
			Body:          decision.Body,
			NeedsUser:     decision.NeedsUser,
			Reason:        decision.Reason,
			CorrelationID: inbound.CorrelationID,
		}
		if decision.Target != nil {
			reply.Target = decision.Target.String()
		}
		encoded, err := json.Marshal(reply)
		if err != nil {
			return nil, err
		}
		if inbound.CorrelationID != "" {
			if err := c.Bus.Publish(SubjectDecisionPrefix+inbound.CorrelationID, reply); err != nil {
				logging.Warn("ingress", "decision publish failed",
					"correlation_id", inbound.CorrelationID, "error", err.Error())
			}
		}
		return encoded, nil
	})
}
