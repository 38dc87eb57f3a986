// Package bus carries operator audit events over NATS for external
// observability consumers.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gridpack/gridpack/core/audit"
)

const subjectPrefix = "gridpack.audit."

var (
	errNilBus       = errors.New("nats bus not initialized")
	errEmptySubject = errors.New("empty subject")
)

// NatsBus is a thin wrapper over a NATS connection that publishes
// JSON-encoded audit events.
type NatsBus struct {
	nc *nats.Conn
}

// NewNatsBus dials NATS at the provided URL.
func NewNatsBus(url string) (*NatsBus, error) {
	opts := []nats.Option{
		nats.Name("gridpack-audit"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("[BUS] disconnected from NATS: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[BUS] reconnected to NATS at %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("[BUS] connection closed")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsBus{nc: nc}, nil
}

// Close shuts down the underlying NATS connection.
func (b *NatsBus) Close() {
	if b != nil && b.nc != nil {
		b.nc.Close()
	}
}

// Publish sends a JSON-encoded payload on the given subject.
func (b *NatsBus) Publish(subject string, payload any) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if subject == "" {
		return errEmptySubject
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return b.nc.Publish(subject, data)
}

// Subscribe attaches a queue subscription. A non-nil reply from the handler
// is sent back when the message carries a reply subject; handler errors are
// logged and the message dropped.
func (b *NatsBus) Subscribe(subject, queue string, handler func(subject string, data []byte) ([]byte, error)) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if subject == "" {
		return errEmptySubject
	}
	if handler == nil {
		return errors.New("nil handler")
	}
	_, err := b.nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		reply, err := handler(msg.Subject, msg.Data)
		if err != nil {
			log.Printf("[BUS] handler error subject=%s err=%v", msg.Subject, err)
			return
		}
		if reply != nil && msg.Reply != "" {
			if err := b.nc.Publish(msg.Reply, reply); err != nil {
				log.Printf("[BUS] reply publish failed subject=%s err=%v", msg.Subject, err)
			}
		}
	})
	return err
}

// Request performs a request/reply roundtrip with raw bytes.
func (b *NatsBus) Request(subject string, payload []byte, timeout time.Duration) ([]byte, error) {
	if b == nil || b.nc == nil {
		return nil, errNilBus
	}
	if subject == "" {
		return nil, errEmptySubject
	}
	msg, err := b.nc.Request(subject, payload, timeout)
	if err != nil {
		return nil, err
	}
	return msg.Data, nil
}

// AuditSink adapts the bus to the audit.Sink interface. Publish failures are
// logged, never surfaced; audit is observability signal, not control flow.
type AuditSink struct {
	Bus *NatsBus
}

func (s AuditSink) Emit(_ context.Context, event audit.Event) {
	event = audit.Stamp(event)
	if err := s.Bus.Publish(subjectPrefix+sanitizeSubject(event.Name), event); err != nil {
		log.Printf("[BUS] audit publish failed event=%s err=%v", event.Name, err)
	}
}

func sanitizeSubject(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
