// Package hooks invokes pack hook offers and decodes the control directives
// they return. A directive that cannot be decoded never fails the caller:
// it degrades to Continue and surfaces as an audit event.
package hooks

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Contract constants for the ingress control hook point.
const (
	StagePostIngress  = "post_ingress"
	ContractControlV1 = "gridpack.hook.control.v1"
)

// Default reply status codes.
const (
	DefaultRespondStatus = 200
	DefaultDenyStatus    = 403
)

// Action is the closed set of control decisions a hook may return.
type Action string

const (
	ActionContinue Action = "continue"
	ActionDispatch Action = "dispatch"
	ActionRespond  Action = "respond"
	ActionDeny     Action = "deny"
)

var ErrBadDirective = errors.New("bad_directive")

// DispatchTarget addresses a flow to hand the message to. The team is
// optional: an empty team addresses the tenant-level manifest.
type DispatchTarget struct {
	Tenant string `json:"tenant"`
	Team   string `json:"team,omitempty"`
	Pack   string `json:"pack"`
	Flow   string `json:"flow,omitempty"`
	Node   string `json:"node,omitempty"`
}

func (t DispatchTarget) String() string {
	parts := []string{t.Tenant, t.Team, t.Pack}
	if t.Flow != "" {
		parts = append(parts, t.Flow)
		if t.Node != "" {
			parts = append(parts, t.Node)
		}
	}
	return strings.Join(parts, "/")
}

// ParseDispatchTarget parses the shorthand tenant/team/pack[/flow[/node]].
// Three to five non-empty segments are required.
func ParseDispatchTarget(raw string) (DispatchTarget, error) {
	segments := strings.Split(raw, "/")
	if len(segments) < 3 || len(segments) > 5 {
		return DispatchTarget{}, fmt.Errorf("%w: target %q needs 3-5 segments", ErrBadDirective, raw)
	}
	for _, seg := range segments {
		if !safeSegment(seg) {
			return DispatchTarget{}, fmt.Errorf("%w: target segment %q", ErrBadDirective, seg)
		}
	}
	target := DispatchTarget{Tenant: segments[0], Team: segments[1], Pack: segments[2]}
	if len(segments) > 3 {
		target.Flow = segments[3]
	}
	if len(segments) > 4 {
		target.Node = segments[4]
	}
	return target, nil
}

// Validate re-checks every populated segment. Tenant and pack are required;
// team, flow and node are optional, but a node needs a flow.
func (t DispatchTarget) Validate() error {
	for _, seg := range []string{t.Tenant, t.Pack} {
		if !safeSegment(seg) {
			return fmt.Errorf("%w: target segment %q", ErrBadDirective, seg)
		}
	}
	if t.Flow == "" && t.Node != "" {
		return fmt.Errorf("%w: target node without flow", ErrBadDirective)
	}
	for _, seg := range []string{t.Team, t.Flow, t.Node} {
		if seg != "" && !safeSegment(seg) {
			return fmt.Errorf("%w: target segment %q", ErrBadDirective, seg)
		}
	}
	return nil
}

// safeSegment rejects empty segments and anything usable for path
// traversal when the target is mapped onto the filesystem or a subject.
func safeSegment(seg string) bool {
	if seg == "" || seg == "." || seg == ".." {
		return false
	}
	for _, r := range seg {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}

// Reason is the structured deny reason map.
type Reason struct {
	Code string `json:"code,omitempty"`
	Text string `json:"text,omitempty"`
}

// Reply carries the synchronous answer for respond and deny directives.
// Card is an opaque structured value passed through untouched.
type Reply struct {
	Text       string          `json:"text,omitempty"`
	Card       json.RawMessage `json:"card,omitempty"`
	Status     int             `json:"status,omitempty"`
	ReasonCode string          `json:"reason_code,omitempty"`
	NeedsUser  *bool           `json:"needs_user,omitempty"`
}

// Directive is one decoded control decision.
type Directive struct {
	Action Action
	Target *DispatchTarget
	// Params and Hints are opaque dispatch attachments.
	Params map[string]any
	Hints  map[string]any
	Reply  Reply
}

// RespondStatus returns the reply status with the respond default applied.
func (d Directive) RespondStatus() int {
	if d.Reply.Status != 0 {
		return d.Reply.Status
	}
	return DefaultRespondStatus
}

// DenyStatus returns the reply status with the deny default applied.
func (d Directive) DenyStatus() int {
	if d.Reply.Status != 0 {
		return d.Reply.Status
	}
	return DefaultDenyStatus
}

// NeedsUser defaults to true: a respond reply is shown to the end user
// unless the hook explicitly says otherwise.
func (d Directive) NeedsUser() bool {
	if d.Reply.NeedsUser == nil {
		return true
	}
	return *d.Reply.NeedsUser
}

// ParseDirective decodes a hook result payload. The payload is either the
// directive object itself or an envelope map whose values hold the
// base64-encoded directive; both shapes occur in the wild, so each string
// value is tried in key order until one decodes. Unknown or mistyped
// optional fields are ignored, not errors; only a missing or unknown
// action fails the decode.
func ParseDirective(payload []byte) (Directive, error) {
	object, err := decodeObject(payload)
	if err != nil {
		return Directive{}, err
	}
	if action := actionField(object); action == "" {
		if inner, ok := decodeEnvelope(object); ok {
			object = inner
		}
	}

	action := actionField(object)
	switch Action(action) {
	case ActionContinue:
		return Directive{Action: ActionContinue}, nil
	case ActionDispatch:
		return buildDispatch(object)
	case ActionRespond:
		return Directive{Action: ActionRespond, Reply: buildReply(object, false)}, nil
	case ActionDeny:
		return Directive{Action: ActionDeny, Reply: buildReply(object, true)}, nil
	case "":
		return Directive{}, fmt.Errorf("%w: no action found", ErrBadDirective)
	default:
		return Directive{}, fmt.Errorf("%w: unknown action %q", ErrBadDirective, action)
	}
}

func decodeObject(payload []byte) (map[string]json.RawMessage, error) {
	var object map[string]json.RawMessage
	if err := json.Unmarshal(payload, &object); err != nil {
		return nil, fmt.Errorf("%w: not a json object", ErrBadDirective)
	}
	return object, nil
}

// decodeEnvelope scans string values for a base64-encoded directive object.
func decodeEnvelope(object map[string]json.RawMessage) (map[string]json.RawMessage, bool) {
	keys := make([]string, 0, len(object))
	for key := range object {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		var encoded string
		if err := json.Unmarshal(object[key], &encoded); err != nil {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(decoded, &inner); err == nil && actionField(inner) != "" {
			return inner, true
		}
	}
	return nil, false
}

func buildDispatch(object map[string]json.RawMessage) (Directive, error) {
	raw, ok := object["target"]
	if !ok {
		return Directive{}, fmt.Errorf("%w: dispatch without target", ErrBadDirective)
	}
	target, err := parseTargetValue(raw)
	if err != nil {
		return Directive{}, err
	}
	return Directive{
		Action: ActionDispatch,
		Target: &target,
		Params: mapField(object, "params"),
		Hints:  mapField(object, "hints"),
	}, nil
}

// parseTargetValue accepts the shorthand string or the structured record.
func parseTargetValue(raw json.RawMessage) (DispatchTarget, error) {
	var shorthand string
	if err := json.Unmarshal(raw, &shorthand); err == nil {
		return ParseDispatchTarget(shorthand)
	}
	var target DispatchTarget
	if err := json.Unmarshal(raw, &target); err != nil {
		return DispatchTarget{}, fmt.Errorf("%w: malformed target", ErrBadDirective)
	}
	target.Tenant = strings.TrimSpace(target.Tenant)
	target.Team = strings.TrimSpace(target.Team)
	target.Pack = strings.TrimSpace(target.Pack)
	target.Flow = strings.TrimSpace(target.Flow)
	target.Node = strings.TrimSpace(target.Node)
	if err := target.Validate(); err != nil {
		return DispatchTarget{}, err
	}
	return target, nil
}

// buildReply assembles the reply from the wire fields: response_text,
// response_card, needs_user, status_code, reason_code and the structured
// reason map. A deny without response_text falls back to the reason text.
func buildReply(object map[string]json.RawMessage, deny bool) Reply {
	reply := Reply{
		Text:       stringField(object, "response_text"),
		Card:       object["response_card"],
		Status:     intField(object, "status_code"),
		ReasonCode: stringField(object, "reason_code"),
		NeedsUser:  boolField(object, "needs_user"),
	}
	var reason Reason
	if raw, ok := object["reason"]; ok {
		_ = json.Unmarshal(raw, &reason)
	}
	if reply.ReasonCode == "" {
		reply.ReasonCode = reason.Code
	}
	if deny && reply.Text == "" {
		reply.Text = reason.Text
	}
	return reply
}

// Field accessors tolerate absent or mistyped values.

func actionField(object map[string]json.RawMessage) string {
	return strings.ToLower(strings.TrimSpace(stringField(object, "action")))
}

func stringField(object map[string]json.RawMessage, key string) string {
	raw, ok := object[key]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return value
}

func intField(object map[string]json.RawMessage, key string) int {
	raw, ok := object[key]
	if !ok {
		return 0
	}
	var value int
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0
	}
	return value
}

func boolField(object map[string]json.RawMessage, key string) *bool {
	raw, ok := object[key]
	if !ok {
		return nil
	}
	var value bool
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	return &value
}

func mapField(object map[string]json.RawMessage, key string) map[string]any {
	raw, ok := object[key]
	if !ok {
		return nil
	}
	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	return value
}
