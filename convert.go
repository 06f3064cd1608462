package replicant

import (
	"encoding/json"
	"fmt"
)

// box converts a plain, JSON-compatible Go value (map[string]any, []any,
// or a scalar) into the raw Object/Array graph a Replicant stores
// internally. Values that are already *Object, *Array, or a *Node
// (obtained from a Get on some Replicant's value) pass through: a *Node
// is unwrapped to its raw underlying composite so ownership can be
// checked by the caller before box is invoked.
func box(v any) (any, error) {
	switch t := v.(type) {
	case *Node:
		return t.raw, nil
	case *Object, *Array:
		return t, nil
	case map[string]any:
		obj := NewObject()
		for k, val := range t {
			bv, err := box(val)
			if err != nil {
				return nil, err
			}
			obj.set(k, bv)
		}
		return obj, nil
	case []any:
		arr := NewArray()
		arr.items = make([]any, len(t))
		for i, val := range t {
			bv, err := box(val)
			if err != nil {
				return nil, err
			}
			arr.items[i] = bv
		}
		return arr, nil
	case nil, bool, string, float64, int, int64, json.Number:
		return normalizeScalar(t), nil
	default:
		return nil, fmt.Errorf("replicant: value of type %T is not JSON-compatible", v)
	}
}

// toPlain deep-converts a raw Object/Array/scalar graph into a plain
// JSON-compatible Go value (map[string]any / []any / scalar), suitable
// for schema validation or wire serialization.
func toPlain(raw any) any {
	switch t := raw.(type) {
	case *Object:
		out := make(map[string]any, len(t.order))
		for _, k := range t.Keys() {
			v, _ := t.get(k)
			out[k] = toPlain(v)
		}
		return out
	case *Array:
		items := t.snapshot()
		out := make([]any, len(items))
		for i, v := range items {
			out[i] = toPlain(v)
		}
		return out
	default:
		return t
	}
}

// deepCloneRaw produces a structurally identical, freshly allocated raw
// graph (new *Object/*Array pointers, not registered with any registry).
// Used to build the schema dry-run clone a proposed mutation is checked
// against before it is ever applied to the live value.
func deepCloneRaw(raw any) any {
	switch t := raw.(type) {
	case *Object:
		clone := NewObject()
		for _, k := range t.Keys() {
			v, _ := t.get(k)
			clone.set(k, deepCloneRaw(v))
		}
		return clone
	case *Array:
		items := t.snapshot()
		clone := NewArray()
		clone.items = make([]any, len(items))
		for i, v := range items {
			clone.items[i] = deepCloneRaw(v)
		}
		return clone
	default:
		return t
	}
}

func normalizeScalar(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return n
	}
}
