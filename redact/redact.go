package redact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/soarsync/gitsync/content"
)

// minScrubLength guards the literal scrub against degenerate one or two byte
// "secrets" that would shred unrelated content.
const minScrubLength = 4

// ErrNotStructured is returned by inspectors for payloads they cannot parse.
// Such files skip structural redaction; the literal scrub still applies.
var ErrNotStructured = errors.New("payload is not structured")

// Inspector knows how to walk one payload format and rewrite sensitive
// fields. Implementations are supplied per content type by the collaborator
// that produces the payloads; JSONInspector covers the default case.
type Inspector interface {
	// Inspect rewrites payload according to decide, returning the rewritten
	// bytes and every value it masked or dropped (so the caller can scrub
	// residual literal occurrences).
	Inspect(payload []byte, decide func(field string) (Action, bool)) (out []byte, removed [][]byte, err error)
}

// Redactor applies a Policy to a FileTree.
type Redactor struct {
	// Policy is the redaction table for this run.
	Policy Policy

	// Inspectors overrides the payload inspector per content type.
	// Types without an entry use JSONInspector.
	Inspectors map[content.Type]Inspector
}

// Redact returns a copy of tree with sensitive fields masked or dropped and
// all known credential values scrubbed. The input tree is never mutated.
// When this succeeds, no byte sequence equal to a detected live credential
// value survives anywhere in the returned tree.
func (r *Redactor) Redact(tree *content.FileTree) (*content.FileTree, error) {
	out := content.NewFileTree()
	secrets := append([][]byte(nil), r.Policy.KnownSecrets...)

	err := tree.Walk(func(p string, data []byte) error {
		rewritten, removed, inspectErr := r.inspectFile(p, data)
		if inspectErr != nil {
			if errors.Is(inspectErr, ErrNotStructured) {
				// Unparseable payloads pass through; the literal scrub
				// below is the remaining line of defense.
				out.Put(p, append([]byte(nil), data...))
				return nil
			}
			return fmt.Errorf("redacting %q: %w", p, inspectErr)
		}
		secrets = append(secrets, removed...)
		out.Put(p, rewritten)
		return nil
	})
	if err != nil {
		return nil, err
	}

	scrubTree(out, secrets)
	return out, nil
}

func (r *Redactor) inspectFile(p string, data []byte) ([]byte, [][]byte, error) {
	typ, ok := content.TypeForPath(p)
	if !ok {
		// Repository-level files (README, metadata) carry no payload fields.
		return append([]byte(nil), data...), nil, nil
	}

	inspector, ok := r.Inspectors[typ]
	if !ok {
		inspector = JSONInspector{}
	}
	return inspector.Inspect(data, r.Policy.Decide)
}

// scrubTree replaces every literal occurrence of each secret with the
// placeholder, across all files. This catches credentials embedded in
// unflagged fields, comments, or free text.
func scrubTree(tree *content.FileTree, secrets [][]byte) {
	placeholder := []byte(Placeholder)
	for _, secret := range secrets {
		if len(secret) < minScrubLength {
			continue
		}
		for _, p := range tree.Paths() {
			data, _ := tree.Get(p)
			if bytes.Contains(data, secret) {
				tree.Put(p, bytes.ReplaceAll(data, secret, placeholder))
			}
		}
	}
}

// JSONInspector structurally redacts JSON documents. Objects are walked
// recursively through arrays and nested objects; field decisions are made on
// the object key.
type JSONInspector struct{}

// Inspect implements Inspector. Non-JSON payloads return ErrNotStructured.
func (JSONInspector) Inspect(payload []byte, decide func(field string) (Action, bool)) ([]byte, [][]byte, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return append([]byte(nil), payload...), nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, ErrNotStructured
	}

	var removed [][]byte
	doc = redactValue(doc, decide, &removed)

	out, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, nil, fmt.Errorf("re-encoding redacted payload: %w", err)
	}
	return append(out, '\n'), removed, nil
}

func redactValue(v any, decide func(field string) (Action, bool), removed *[][]byte) any {
	switch val := v.(type) {
	case map[string]any:
		for key, child := range val {
			action, sensitive := decide(key)
			if !sensitive {
				val[key] = redactValue(child, decide, removed)
				continue
			}
			collectSecretValues(child, removed)
			switch action {
			case ActionDrop:
				delete(val, key)
			default:
				val[key] = Placeholder
			}
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = redactValue(child, decide, removed)
		}
		return val
	default:
		return v
	}
}

// collectSecretValues records every string leaf under a redacted value so
// residual copies elsewhere in the tree can be scrubbed.
func collectSecretValues(v any, removed *[][]byte) {
	switch val := v.(type) {
	case string:
		if val != "" {
			*removed = append(*removed, []byte(val))
		}
	case map[string]any:
		for _, child := range val {
			collectSecretValues(child, removed)
		}
	case []any:
		for _, child := range val {
			collectSecretValues(child, removed)
		}
	}
}
