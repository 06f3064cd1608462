package replicant

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// resolveContainer walks root by the unescaped key sequence in path and
// returns the composite found there. It is used both to navigate the
// live raw graph for inbound remote operations and to navigate a schema
// dry-run clone.
func resolveContainer(root any, path string) (any, error) {
	cur := root
	for _, seg := range SplitPath(path) {
		switch t := cur.(type) {
		case *Object:
			v, ok := t.get(seg)
			if !ok {
				return nil, fmt.Errorf("replicant: path segment %q not found", seg)
			}
			cur = v
		case *Array:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, fmt.Errorf("replicant: invalid array index segment %q", seg)
			}
			v, ok := t.get(idx)
			if !ok {
				return nil, fmt.Errorf("replicant: array index %d out of range", idx)
			}
			cur = v
		default:
			return nil, fmt.Errorf("replicant: cannot descend into scalar at %q", path)
		}
	}
	return cur, nil
}

// setContainerProp assigns value at prop within container, which must be
// an *Object (prop is a key) or an *Array (prop is a stringified index;
// an index equal to the array's current length appends).
func setContainerProp(container any, prop string, value any) error {
	switch c := container.(type) {
	case *Object:
		c.set(prop, value)
		return nil
	case *Array:
		idx, err := strconv.Atoi(prop)
		if err != nil {
			return fmt.Errorf("replicant: invalid array index %q", prop)
		}
		switch {
		case idx == c.len():
			c.items = append(c.items, value)
		case idx >= 0 && idx < c.len():
			c.items[idx] = value
		default:
			return fmt.Errorf("replicant: array index %d out of range", idx)
		}
		return nil
	default:
		return fmt.Errorf("replicant: cannot set a property on a scalar value")
	}
}

// deleteContainerProp removes prop from container. For an *Array the
// element at that index is set to nil and the length is kept.
func deleteContainerProp(container any, prop string) {
	switch c := container.(type) {
	case *Object:
		c.delete(prop)
	case *Array:
		if idx, err := strconv.Atoi(prop); err == nil && idx >= 0 && idx < c.len() {
			c.items[idx] = nil
		}
	}
}

// valuesStrictEqual implements the Write contract's "no-op when
// strict-equal to existing value" check. Composite values compare by
// pointer identity; scalars compare by Go equality.
func valuesStrictEqual(existing, incoming any) bool {
	switch existing.(type) {
	case *Object, *Array:
		return existing == incoming
	default:
		return existing == incoming
	}
}

// mutateArray applies one of the sequence-mutator methods to a with the
// given literal arguments, returning any removed elements (as plain
// values, for Pop/Shift/Splice).
func mutateArray(a *Array, method Method, margs []any) ([]any, error) {
	switch method {
	case MethodPush:
		for _, v := range margs {
			bv, err := box(v)
			if err != nil {
				return nil, err
			}
			a.items = append(a.items, bv)
		}
		return nil, nil

	case MethodPop:
		if len(a.items) == 0 {
			return nil, nil
		}
		last := a.items[len(a.items)-1]
		a.items = a.items[:len(a.items)-1]
		return []any{toPlain(last)}, nil

	case MethodShift:
		if len(a.items) == 0 {
			return nil, nil
		}
		first := a.items[0]
		a.items = a.items[1:]
		return []any{toPlain(first)}, nil

	case MethodUnshift:
		boxed := make([]any, len(margs))
		for i, v := range margs {
			bv, err := box(v)
			if err != nil {
				return nil, err
			}
			boxed[i] = bv
		}
		a.items = append(boxed, a.items...)
		return nil, nil

	case MethodSplice:
		if len(margs) < 2 {
			return nil, fmt.Errorf("replicant: splice requires start and deleteCount arguments")
		}
		start := toInt(margs[0])
		deleteCount := toInt(margs[1])
		items := margs[2:]

		s := normIndex(len(a.items), start)
		dc := deleteCount
		if dc < 0 {
			dc = 0
		}
		if s+dc > len(a.items) {
			dc = len(a.items) - s
		}

		removedRaw := make([]any, dc)
		copy(removedRaw, a.items[s:s+dc])
		removed := make([]any, len(removedRaw))
		for i, v := range removedRaw {
			removed[i] = toPlain(v)
		}

		boxedItems := make([]any, len(items))
		for i, v := range items {
			bv, err := box(v)
			if err != nil {
				return nil, err
			}
			boxedItems[i] = bv
		}
		tail := append([]any{}, a.items[s+dc:]...)
		a.items = append(append(a.items[:s:s], boxedItems...), tail...)
		return removed, nil

	case MethodSort:
		sort.SliceStable(a.items, func(i, j int) bool {
			return fmt.Sprint(toPlain(a.items[i])) < fmt.Sprint(toPlain(a.items[j]))
		})
		return nil, nil

	case MethodReverse:
		for i, j := 0, len(a.items)-1; i < j; i, j = i+1, j-1 {
			a.items[i], a.items[j] = a.items[j], a.items[i]
		}
		return nil, nil

	case MethodFill:
		if len(margs) < 3 {
			return nil, fmt.Errorf("replicant: fill requires value, start, and end arguments")
		}
		bv, err := box(margs[0])
		if err != nil {
			return nil, err
		}
		s := normIndex(len(a.items), toInt(margs[1]))
		e := normIndex(len(a.items), toInt(margs[2]))
		for i := s; i < e && i < len(a.items); i++ {
			a.items[i] = bv
		}
		return nil, nil

	case MethodCopyWithin:
		if len(margs) < 3 {
			return nil, fmt.Errorf("replicant: copyWithin requires target, start, and end arguments")
		}
		length := len(a.items)
		t := normIndex(length, toInt(margs[0]))
		s := normIndex(length, toInt(margs[1]))
		e := normIndex(length, toInt(margs[2]))
		if s >= e {
			return nil, nil
		}
		segment := make([]any, e-s)
		copy(segment, a.items[s:e])
		for i, v := range segment {
			if t+i >= length {
				break
			}
			a.items[t+i] = v
		}
		return nil, nil

	default:
		panicUnknownMethod(method)
		return nil, nil // unreachable
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// lastPathSegment returns the final, unescaped segment of path, or "" for
// the root path.
func lastPathSegment(path string) string {
	if path == "" {
		return ""
	}
	idx := strings.LastIndexByte(path, '/')
	seg := path[idx+1:]
	return UnescapePathSegment(seg)
}
