// Package redact strips or masks credential-bearing fields from exported
// payloads before they reach the commit builder. The policy is a declarative
// table supplied by each content type's collaborator; the core stays
// type-agnostic.
package redact

import (
	"path"
	"strings"
)

// Action says what happens to a field matched by the policy.
type Action int

const (
	// ActionMask replaces the field's value with Placeholder.
	ActionMask Action = iota

	// ActionDrop removes the field entirely.
	ActionDrop
)

// String returns a human-readable name for the action.
func (a Action) String() string {
	switch a {
	case ActionMask:
		return "mask"
	case ActionDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// Placeholder is the fixed value masked fields are replaced with.
const Placeholder = "*****"

// Rule maps a field name pattern to an action. Patterns are matched
// case-insensitively and support "*" globs ("*password*", "api_*").
type Rule struct {
	Pattern string
	Action  Action
}

// builtinSensitive are field name fragments treated as sensitive regardless
// of policy. A field the policy says nothing about but that looks
// credential-bearing is masked, never passed through: fail safe, not open.
var builtinSensitive = []string{
	"password",
	"passphrase",
	"token",
	"secret",
	"apikey",
	"api_key",
	"privatekey",
	"private_key",
	"credential",
}

// Policy is the redaction table for one run.
type Policy struct {
	// Rules are evaluated in order; the first match wins.
	Rules []Rule

	// Flagged holds field names explicitly flagged sensitive by the content
	// collaborator (ContentItem.SensitiveFields, aggregated per run).
	Flagged []string

	// KnownSecrets are literal credential values that must never appear in
	// the output tree, wherever they occur. The remote credential always
	// belongs here; the structural pass adds every value it redacts.
	KnownSecrets [][]byte
}

// Decide returns the action for a field name, and whether the field is
// sensitive at all. Explicit rules win; otherwise flagged fields and
// builtin credential-shaped names default to mask.
func (p *Policy) Decide(field string) (Action, bool) {
	lower := strings.ToLower(field)

	for _, rule := range p.Rules {
		if matchPattern(lower, strings.ToLower(rule.Pattern)) {
			return rule.Action, true
		}
	}

	for _, flagged := range p.Flagged {
		if strings.EqualFold(field, flagged) {
			return ActionMask, true
		}
	}

	for _, frag := range builtinSensitive {
		if strings.Contains(lower, frag) {
			return ActionMask, true
		}
	}

	return ActionMask, false
}

// matchPattern matches name against a lowercase glob pattern. Invalid
// patterns are treated as non-matching rather than failing the run.
func matchPattern(name, pattern string) bool {
	if !strings.ContainsAny(pattern, "*?[") {
		return name == pattern
	}
	ok, err := path.Match(pattern, name)
	if err != nil {
		return false
	}
	if ok {
		return true
	}
	// "*password*" style patterns are the common case in redaction tables;
	// path.Match handles them, but be permissive about bare substrings too.
	trimmed := strings.Trim(pattern, "*")
	return trimmed != pattern && trimmed != "" && strings.Contains(name, trimmed)
}
