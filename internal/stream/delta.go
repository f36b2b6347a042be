// Package stream holds the typed fragment model for streamed completions and
// the merge rules that fold fragments into one accumulated result.
package stream

import (
	"fmt"
	"maps"
)

// Delta is one streamed fragment, or the accumulation of many.
//
// The named fields cover the keys every provider emits. Extra carries any
// other key; its values may be strings, nested map[string]any, or scalars.
type Delta struct {
	Message  string         `json:"message,omitempty"`
	Language string         `json:"language,omitempty"`
	Code     string         `json:"code,omitempty"`
	Output   string         `json:"output,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// IsEmpty reports whether d carries no keys at all. Providers use an empty
// fragment to mark end-of-stream.
func (d Delta) IsEmpty() bool {
	return d.Message == "" && d.Language == "" && d.Code == "" && d.Output == "" && len(d.Extra) == 0
}

// HasCode reports whether the accumulated result asks for code execution.
func (d Delta) HasCode() bool { return d.Code != "" }

// MergeConflictError is returned when a fragment value cannot be merged into
// the value already accumulated under the same key.
type MergeConflictError struct {
	Key      string
	Existing any
	Incoming any
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict on %q: cannot merge %T into %T", e.Key, e.Incoming, e.Existing)
}

// Merge folds frag into acc and returns the result. acc is never mutated.
//
// String values concatenate; nested maps merge key by key; non-string
// scalars in Extra take the latest non-nil value. A mismatch between value
// kinds returns a *MergeConflictError.
func Merge(acc, frag Delta) (Delta, error) {
	out := Delta{
		Message:  acc.Message + frag.Message,
		Language: acc.Language + frag.Language,
		Code:     acc.Code + frag.Code,
		Output:   acc.Output + frag.Output,
	}

	if len(acc.Extra) == 0 && len(frag.Extra) == 0 {
		return out, nil
	}

	extra, err := mergeMap("", cloneMap(acc.Extra), frag.Extra)
	if err != nil {
		return acc, err
	}
	out.Extra = extra
	return out, nil
}

// MergeAll folds frags into acc in order.
func MergeAll(acc Delta, frags ...Delta) (Delta, error) {
	var err error
	for _, f := range frags {
		if acc, err = Merge(acc, f); err != nil {
			return acc, err
		}
	}
	return acc, nil
}

// FromMap converts an untyped provider fragment into a Delta. The known
// keys must hold strings.
func FromMap(m map[string]any) (Delta, error) {
	var d Delta
	for k, v := range m {
		var target *string
		switch k {
		case "message":
			target = &d.Message
		case "language":
			target = &d.Language
		case "code":
			target = &d.Code
		case "output":
			target = &d.Output
		default:
			if d.Extra == nil {
				d.Extra = make(map[string]any)
			}
			d.Extra[k] = cloneValue(v)
			continue
		}
		s, ok := v.(string)
		if !ok {
			return Delta{}, &MergeConflictError{Key: k, Existing: "", Incoming: v}
		}
		*target = s
	}
	return d, nil
}

// dst is owned by the caller and is modified in place.
func mergeMap(prefix string, dst, src map[string]any) (map[string]any, error) {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, in := range src {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		cur, exists := dst[k]
		if !exists || cur == nil {
			dst[k] = cloneValue(in)
			continue
		}

		switch c := cur.(type) {
		case string:
			s, ok := in.(string)
			if !ok {
				return nil, &MergeConflictError{Key: key, Existing: cur, Incoming: in}
			}
			dst[k] = c + s
		case map[string]any:
			m, ok := in.(map[string]any)
			if !ok {
				return nil, &MergeConflictError{Key: key, Existing: cur, Incoming: in}
			}
			merged, err := mergeMap(key, c, m)
			if err != nil {
				return nil, err
			}
			dst[k] = merged
		default:
			switch in.(type) {
			case string, map[string]any:
				return nil, &MergeConflictError{Key: key, Existing: cur, Incoming: in}
			case nil:
			default:
				dst[k] = in
			}
		}
	}
	return dst, nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	if m, ok := v.(map[string]any); ok {
		return cloneMap(m)
	}
	return v
}

// Keys returns the populated keys of d, for logging.
func (d Delta) Keys() []string {
	var keys []string
	if d.Message != "" {
		keys = append(keys, "message")
	}
	if d.Language != "" {
		keys = append(keys, "language")
	}
	if d.Code != "" {
		keys = append(keys, "code")
	}
	if d.Output != "" {
		keys = append(keys, "output")
	}
	for k := range maps.Keys(d.Extra) {
		keys = append(keys, k)
	}
	return keys
}
