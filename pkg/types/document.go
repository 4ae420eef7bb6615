package types

import (
	"encoding/json"
	"strings"
)

// Document is a structured key/value payload used for record context and
// findings. It is a plain JSON object tree; the typed accessors below let
// readers pull common shapes out without sprinkling type assertions at every
// call site.
type Document map[string]any

// String returns the string value at key, or "" when absent or not a string.
func (d Document) String(key string) string {
	if d == nil {
		return ""
	}
	if s, ok := d[key].(string); ok {
		return s
	}
	return ""
}

// StringSlice returns the list of strings at key. JSON unmarshalling yields
// []any, so both []string and []any element-wise strings are handled.
func (d Document) StringSlice(key string) []string {
	if d == nil {
		return nil
	}
	switch v := d[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Len returns the number of elements in the list at key, or 0.
func (d Document) Len(key string) int {
	if d == nil {
		return 0
	}
	switch v := d[key].(type) {
	case []string:
		return len(v)
	case []any:
		return len(v)
	}
	return 0
}

// Has reports whether key is present with a non-empty value.
func (d Document) Has(key string) bool {
	if d == nil {
		return false
	}
	v, ok := d[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	}
	return true
}

// ContainsFold reports whether the serialized document contains substr,
// case-insensitively. Used by pattern-based resolution to match against
// context payloads the way the summary text is matched.
func (d Document) ContainsFold(substr string) bool {
	if len(d) == 0 || substr == "" {
		return false
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(raw)), strings.ToLower(substr))
}
