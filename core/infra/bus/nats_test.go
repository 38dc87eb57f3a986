package bus

import (
	"errors"
	"testing"
)

func TestPublishNilBus(t *testing.T) {
	var b *NatsBus
	if err := b.Publish("gridpack.audit.test", map[string]any{}); !errors.Is(err, errNilBus) {
		t.Fatalf("expected errNilBus, got %v", err)
	}
}

func TestPublishEmptySubject(t *testing.T) {
	b := &NatsBus{}
	if err := b.Publish("", nil); !errors.Is(err, errNilBus) {
		t.Fatalf("expected errNilBus for unconnected bus, got %v", err)
	}
}

func TestSanitizeSubject(t *testing.T) {
	if got := sanitizeSubject(" offer registry loaded "); got != "offer_registry_loaded" {
		t.Fatalf("unexpected subject: %s", got)
	}
	if got := sanitizeSubject("hook.invoked"); got != "hook.invoked" {
		t.Fatalf("unexpected subject: %s", got)
	}
}
