package routing

import (
	"encoding/json"
	"fmt"
)

// Transform rewrites an outgoing payload. Steps are applied in a fixed
// order: include, exclude, rename, inject.
type Transform struct {
	Include []string          `json:"include,omitempty"`
	Exclude []string          `json:"exclude,omitempty"`
	Rename  map[string]string `json:"rename,omitempty"`
	Inject  map[string]any    `json:"inject,omitempty"`
}

// Apply runs the transform over the top-level fields of a JSON object payload.
func (t *Transform) Apply(payload []byte) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("transform requires a JSON object payload: %w", err)
	}

	if len(t.Include) > 0 {
		kept := make(map[string]any, len(t.Include))
		for _, field := range t.Include {
			if val, ok := doc[field]; ok {
				kept[field] = val
			}
		}
		doc = kept
	}

	for _, field := range t.Exclude {
		delete(doc, field)
	}

	for from, to := range t.Rename {
		if val, ok := doc[from]; ok {
			delete(doc, from)
			doc[to] = val
		}
	}

	for field, val := range t.Inject {
		doc[field] = val
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transformed payload: %w", err)
	}

	return out, nil
}
