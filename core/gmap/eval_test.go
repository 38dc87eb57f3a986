package gmap

import (
	"os"
	"testing"
)

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}

func mustParse(t *testing.T, text string) *Document {
	t.Helper()
	doc, err := Parse(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestEvalSpecificity(t *testing.T) {
	doc := mustParse(t, "_ = forbidden\nsales = public\nsales/_ = forbidden\nsales/checkout = forbidden\nsales/checkout/submit = public\n")
	cases := []struct {
		target string
		want   Policy
	}{
		{"sales/checkout/submit", PolicyPublic},    // node rule wins
		{"sales/checkout/cancel", PolicyForbidden}, // flow rule
		{"sales/other", PolicyPublic},              // pack rule beats wildcard
		{"other/flow", PolicyForbidden},            // global fallback
	}
	for _, tc := range cases {
		target := mustPath(t, tc.target)
		got, ok := doc.Eval(target)
		if !ok {
			t.Fatalf("%s: expected a match", tc.target)
		}
		if got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.target, got, tc.want)
		}
	}
}

func TestEvalNoMatch(t *testing.T) {
	doc := mustParse(t, "sales = public\n")
	if _, ok := doc.Eval(mustPath(t, "billing/main")); ok {
		t.Fatalf("expected no match")
	}
	var nilDoc *Document
	if _, ok := nilDoc.Eval(mustPath(t, "billing/main")); ok {
		t.Fatalf("nil document must not match")
	}
}

func TestEvalWildcardBeatsGlobal(t *testing.T) {
	doc := mustParse(t, "_ = forbidden\nsales/_ = public\n")
	got, ok := doc.Eval(mustPath(t, "sales/checkout/submit"))
	if !ok || got != PolicyPublic {
		t.Fatalf("expected public via pack wildcard, got %s ok=%v", got, ok)
	}
}

func TestEvalLaterRuleWinsAtEqualSpecificity(t *testing.T) {
	doc := mustParse(t, "sales = forbidden\nsales = public\n")
	got, ok := doc.Eval(mustPath(t, "sales/x"))
	if !ok || got != PolicyPublic {
		t.Fatalf("expected later rule to win, got %s ok=%v", got, ok)
	}
}

func TestOverlayTeamWinsRegardlessOfSpecificity(t *testing.T) {
	tenant := mustParse(t, "billing/main/submit = public\n")
	team := mustParse(t, "billing = forbidden\n")
	got, ok := Evaluate(tenant, team, mustPath(t, "billing/main/submit"))
	if !ok || got != PolicyForbidden {
		t.Fatalf("team opinion must win, got %s ok=%v", got, ok)
	}
}

func TestOverlayEqualSpecificity(t *testing.T) {
	tenant := mustParse(t, "billing/main = public\n")
	team := mustParse(t, "billing/main = forbidden\n")
	got, ok := Evaluate(tenant, team, mustPath(t, "billing/main"))
	if !ok || got != PolicyForbidden {
		t.Fatalf("expected forbidden from team overlay, got %s ok=%v", got, ok)
	}
}

func TestOverlayFallsBackToTenant(t *testing.T) {
	tenant := mustParse(t, "sales = public\n")
	team := mustParse(t, "billing = forbidden\n")
	got, ok := Evaluate(tenant, team, mustPath(t, "sales/checkout"))
	if !ok || got != PolicyPublic {
		t.Fatalf("expected tenant verdict, got %s ok=%v", got, ok)
	}
	if _, ok := Evaluate(tenant, team, mustPath(t, "other")); ok {
		t.Fatalf("expected no match from either document")
	}
}

func TestOverlayNilTeam(t *testing.T) {
	tenant := mustParse(t, "sales = public\n")
	got, ok := Evaluate(tenant, nil, mustPath(t, "sales/checkout"))
	if !ok || got != PolicyPublic {
		t.Fatalf("expected tenant verdict with nil team, got %s ok=%v", got, ok)
	}
}
