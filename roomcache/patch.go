package roomcache

import (
	"encoding/json"
	"fmt"
)

// Patch is a single board mutation: set value at path. Path elements
// are object keys (string) or array indexes (number); JSON decoding
// delivers indexes as float64.
type Patch struct {
	Path  []any           `json:"path"`
	Value json.RawMessage `json:"value"`
}

// applyPatch deterministically applies p to the payload document and
// returns the re-encoded result. A structurally inapplicable patch
// (missing intermediate, index out of range, non-container on the
// path) is a semantic error distinct from any concurrency outcome —
// retrying it against the same payload can never succeed.
func applyPatch(payload json.RawMessage, p Patch) (json.RawMessage, error) {
	if len(p.Path) == 0 {
		// Whole-document replacement.
		if len(p.Value) == 0 {
			return nil, fmt.Errorf("patch has no value")
		}
		return append(json.RawMessage(nil), p.Value...), nil
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var value any
	if err := json.Unmarshal(p.Value, &value); err != nil {
		return nil, fmt.Errorf("decode patch value: %w", err)
	}

	doc, err := setAtPath(doc, p.Path, value)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return out, nil
}

// setAtPath walks all but the last path element, requiring each step to
// exist, then sets the leaf. Object leaves may be created; array leaves
// must be in range.
func setAtPath(node any, path []any, value any) (any, error) {
	elem := path[0]
	last := len(path) == 1

	switch container := node.(type) {
	case map[string]any:
		key, ok := elem.(string)
		if !ok {
			return nil, fmt.Errorf("object step needs a string key, got %T", elem)
		}
		if last {
			container[key] = value
			return container, nil
		}
		child, ok := container[key]
		if !ok {
			return nil, fmt.Errorf("path element %q does not exist", key)
		}
		updated, err := setAtPath(child, path[1:], value)
		if err != nil {
			return nil, err
		}
		container[key] = updated
		return container, nil

	case []any:
		idx, err := pathIndex(elem)
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(container) {
			return nil, fmt.Errorf("index %d out of range (len %d)", idx, len(container))
		}
		if last {
			container[idx] = value
			return container, nil
		}
		updated, err := setAtPath(container[idx], path[1:], value)
		if err != nil {
			return nil, err
		}
		container[idx] = updated
		return container, nil

	default:
		return nil, fmt.Errorf("cannot descend into %T", node)
	}
}

func pathIndex(elem any) (int, error) {
	switch v := elem.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("array index %v is not an integer", v)
		}
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("array step needs an integer index, got %T", elem)
	}
}
