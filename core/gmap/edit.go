package gmap

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Canonical serialization group order. Differs from eval specificity: the
// serialized file lists pack rules before pack wildcards.
func canonicalGroup(p Path) int {
	switch {
	case p.IsGlobal():
		return 0
	case p.Flow == "":
		return 1
	case p.Flow == "_":
		return 2
	case p.Node == "":
		return 3
	default:
		return 4
	}
}

func sortCanonical(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i].Path, rules[j].Path
		if ga, gb := canonicalGroup(a), canonicalGroup(b); ga != gb {
			return ga < gb
		}
		if a.Pack != b.Pack {
			return a.Pack < b.Pack
		}
		if a.Flow != b.Flow {
			return a.Flow < b.Flow
		}
		return a.Node < b.Node
	})
}

// Edit returns a new document with the rule for path set to policy,
// replacing an existing rule for the exact same path. Applying the same
// edit twice yields an identical document.
func Edit(doc *Document, path Path, policy Policy) *Document {
	out := &Document{Rules: make([]Rule, 0, len(doc.Rules)+1)}
	replaced := false
	for _, rule := range doc.Rules {
		if rule.Path == path {
			rule.Policy = policy
			replaced = true
		}
		out.Rules = append(out.Rules, rule)
	}
	if !replaced {
		out.Rules = append(out.Rules, Rule{Path: path, Policy: policy})
	}
	sortCanonical(out.Rules)
	return out
}

// LoadFile parses the rule file at path. A missing file is an empty
// document.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read gmap %s: %w", path, err)
	}
	doc, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse gmap %s: %w", path, err)
	}
	return doc, nil
}

// SaveFile writes the document in canonical form using a temp file and
// rename so readers never observe a partial document.
func SaveFile(path string, doc *Document) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create gmap dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".gmap-*")
	if err != nil {
		return fmt.Errorf("create gmap temp: %w", err)
	}
	if _, err := tmp.WriteString(Serialize(doc)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write gmap: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close gmap temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace gmap %s: %w", path, err)
	}
	return nil
}

// UpsertFile applies an Edit to the rule file at path, creating the file
// when missing. The operation is idempotent: repeating it leaves the file
// byte-identical.
func UpsertFile(path string, rulePath Path, policy Policy) error {
	doc, err := LoadFile(path)
	if err != nil {
		return err
	}
	return SaveFile(path, Edit(doc, rulePath, policy))
}
