// Package gmap implements the line-oriented access rule language used by
// tenant and team policy documents. A rule maps a hierarchical path
// (pack/flow/node, with `_` as the global pattern and a `_` flow segment as
// a pack-level wildcard) to a policy value.
package gmap

import (
	"fmt"
	"strings"
)

// Policy is the closed set of access verdicts a rule may carry.
type Policy string

const (
	PolicyPublic    Policy = "public"
	PolicyForbidden Policy = "forbidden"
)

// Path identifies a rule pattern or a query target. Empty fields mean the
// segment is absent; a Path with all fields empty is the global pattern `_`.
// A Flow of "_" is the pack-level wildcard.
type Path struct {
	Pack string
	Flow string
	Node string
}

// IsGlobal reports whether the path is the global `_` pattern.
func (p Path) IsGlobal() bool {
	return p.Pack == "" && p.Flow == "" && p.Node == ""
}

func (p Path) String() string {
	switch {
	case p.IsGlobal():
		return "_"
	case p.Flow == "":
		return p.Pack
	case p.Node == "":
		return p.Pack + "/" + p.Flow
	default:
		return p.Pack + "/" + p.Flow + "/" + p.Node
	}
}

// Rule is a single parsed policy rule.
type Rule struct {
	Path   Path
	Policy Policy
	// Line is the 1-based source line, or 0 for rules created by Edit.
	Line int
}

// Document is an ordered policy rule set for one tenant or team.
type Document struct {
	Rules []Rule
}

// ParseError describes a malformed rule line. The whole document fails to
// parse; there is no partial result.
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("gmap line %d: %s (%q)", e.Line, e.Reason, e.Text)
}

// Parse reads a rule document. Blank lines and #-comments are ignored.
func Parse(text string) (*Document, error) {
	doc := &Document{}
	for idx, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		rule, err := parseRuleLine(trimmed, idx+1)
		if err != nil {
			return nil, err
		}
		doc.Rules = append(doc.Rules, rule)
	}
	return doc, nil
}

func parseRuleLine(line string, lineNo int) (Rule, error) {
	rawPath, rawPolicy, found := strings.Cut(line, "=")
	if !found {
		return Rule{}, &ParseError{Line: lineNo, Text: line, Reason: "expected <path> = <policy>"}
	}
	rawPath = strings.TrimSpace(rawPath)
	rawPolicy = strings.TrimSpace(rawPolicy)
	if rawPath == "" {
		return Rule{}, &ParseError{Line: lineNo, Text: line, Reason: "missing path"}
	}
	if rawPolicy == "" {
		return Rule{}, &ParseError{Line: lineNo, Text: line, Reason: "missing policy"}
	}
	path, err := parsePathAt(rawPath, lineNo, line)
	if err != nil {
		return Rule{}, err
	}
	policy, ok := ParsePolicy(rawPolicy)
	if !ok {
		return Rule{}, &ParseError{Line: lineNo, Text: line, Reason: "unknown policy " + rawPolicy}
	}
	return Rule{Path: path, Policy: policy, Line: lineNo}, nil
}

// ParsePath parses a rule path or query target such as "_", "pack",
// "pack/_", "pack/flow" or "pack/flow/node".
func ParsePath(raw string) (Path, error) {
	return parsePathAt(raw, 0, raw)
}

func parsePathAt(raw string, lineNo int, text string) (Path, error) {
	if raw == "_" {
		return Path{}, nil
	}
	var segments []string
	for _, seg := range strings.Split(raw, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return Path{}, &ParseError{Line: lineNo, Text: text, Reason: "empty path"}
	}
	if len(segments) > 3 {
		return Path{}, &ParseError{Line: lineNo, Text: text, Reason: "too many path segments"}
	}
	path := Path{Pack: segments[0]}
	if len(segments) > 1 {
		path.Flow = segments[1]
	}
	if len(segments) > 2 {
		path.Node = segments[2]
	}
	return path, nil
}

// ParsePolicy maps a policy token to its value.
func ParsePolicy(raw string) (Policy, bool) {
	switch strings.TrimSpace(raw) {
	case "public":
		return PolicyPublic, true
	case "forbidden":
		return PolicyForbidden, true
	default:
		return "", false
	}
}

// Serialize renders the document in canonical order: the global rule first,
// then pack rules, pack wildcards, pack/flow rules and pack/flow/node rules,
// each group sorted lexically. Serializing the same document always yields
// byte-identical output so repeated edits keep diffs stable.
func Serialize(doc *Document) string {
	rules := make([]Rule, len(doc.Rules))
	copy(rules, doc.Rules)
	sortCanonical(rules)
	var b strings.Builder
	for _, rule := range rules {
		b.WriteString(rule.Path.String())
		b.WriteString(" = ")
		b.WriteString(string(rule.Policy))
		b.WriteString("\n")
	}
	return b.String()
}
