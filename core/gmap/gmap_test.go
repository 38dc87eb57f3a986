package gmap

import (
	"errors"
	"strings"
	"testing"
)

func TestParseBasicRules(t *testing.T) {
	doc, err := Parse("# comment\n\n_ = forbidden\nsales/_ = public\nbilling/main/submit = public\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(doc.Rules))
	}
	if !doc.Rules[0].Path.IsGlobal() || doc.Rules[0].Policy != PolicyForbidden {
		t.Fatalf("unexpected first rule: %+v", doc.Rules[0])
	}
	if doc.Rules[1].Path.String() != "sales/_" {
		t.Fatalf("unexpected second path: %s", doc.Rules[1].Path)
	}
	if doc.Rules[2].Line != 5 {
		t.Fatalf("expected line 5, got %d", doc.Rules[2].Line)
	}
}

func TestParseFailsWholeDocument(t *testing.T) {
	cases := []struct {
		name string
		text string
		line int
	}{
		{"missing equals", "sales public", 1},
		{"missing policy", "sales =", 1},
		{"unknown policy", "_ = sometimes", 1},
		{"too many segments", "ok = public\na/b/c/d = public", 2},
		{"empty path", " = public", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.text)
			if err == nil {
				t.Fatalf("expected parse error")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParseError, got %T", err)
			}
			if perr.Line != tc.line {
				t.Fatalf("expected line %d, got %d", tc.line, perr.Line)
			}
			if perr.Text == "" {
				t.Fatalf("expected raw text in error")
			}
		})
	}
}

func TestSerializeCanonicalOrder(t *testing.T) {
	doc, err := Parse("zeta/f/n = public\nalpha/f = forbidden\nzeta/_ = public\nbeta = public\n_ = forbidden\nalpha = public\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := Serialize(doc)
	want := strings.Join([]string{
		"_ = forbidden",
		"alpha = public",
		"beta = public",
		"zeta/_ = public",
		"alpha/f = forbidden",
		"zeta/f/n = public",
	}, "\n") + "\n"
	if got != want {
		t.Fatalf("canonical order mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	text := "_ = forbidden\nbilling = public\nsales/_ = public\nbilling/main = forbidden\nbilling/main/submit = public\n"
	doc, err := Parse(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	serialized := Serialize(doc)
	again, err := Parse(serialized)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if Serialize(again) != serialized {
		t.Fatalf("round trip changed document:\n%s\nvs\n%s", Serialize(again), serialized)
	}
	if len(again.Rules) != len(doc.Rules) {
		t.Fatalf("rule count changed: %d vs %d", len(again.Rules), len(doc.Rules))
	}
	for i := range again.Rules {
		if again.Rules[i].Path != doc.Rules[i].Path || again.Rules[i].Policy != doc.Rules[i].Policy {
			t.Fatalf("rule %d changed: %+v vs %+v", i, again.Rules[i], doc.Rules[i])
		}
	}
}

func TestEditInsertAndReplace(t *testing.T) {
	doc := &Document{}
	path := mustPath(t, "sales/checkout")
	doc = Edit(doc, path, PolicyPublic)
	if len(doc.Rules) != 1 || doc.Rules[0].Policy != PolicyPublic {
		t.Fatalf("expected inserted rule, got %+v", doc.Rules)
	}
	doc = Edit(doc, path, PolicyForbidden)
	if len(doc.Rules) != 1 || doc.Rules[0].Policy != PolicyForbidden {
		t.Fatalf("expected replaced rule, got %+v", doc.Rules)
	}
}

func TestEditIdempotent(t *testing.T) {
	doc, err := Parse("_ = forbidden\nsales = public\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	path := mustPath(t, "sales/checkout/submit")
	once := Serialize(Edit(doc, path, PolicyPublic))
	twice := Serialize(Edit(Edit(doc, path, PolicyPublic), path, PolicyPublic))
	if once != twice {
		t.Fatalf("edit not idempotent:\n%s\nvs\n%s", once, twice)
	}
}

func TestUpsertFileIdempotent(t *testing.T) {
	path := t.TempDir() + "/tenant.gmap"
	rule := mustPath(t, "billing/main")
	if err := UpsertFile(path, rule, PolicyPublic); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	first, err := readFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := UpsertFile(path, rule, PolicyPublic); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	second, err := readFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if first != second {
		t.Fatalf("upsert not byte-identical:\n%s\nvs\n%s", first, second)
	}
}

func mustPath(t *testing.T, raw string) Path {
	t.Helper()
	path, err := ParsePath(raw)
	if err != nil {
		t.Fatalf("parse path %s: %v", raw, err)
	}
	return path
}
