package replicant

import (
	"fmt"
	"sort"
	"strconv"
)

// Node is a handle onto one object or array reachable from a Replicant's
// value. Go has no property-access interception, so every deep mutation
// goes through an explicit Node method call instead of
// `replicant.value.users[3].name = "x"`. A Node carries the owning
// Replicant, its path from the value's root, and a reference to the raw
// underlying composite.
type Node struct {
	owner *Replicant
	raw   any // *Object or *Array
	path  string
}

// Path returns the node's path from its Replicant's root.
func (n *Node) Path() string { return n.path }

// IsObject reports whether this node wraps a JSON object.
func (n *Node) IsObject() bool { _, ok := n.raw.(*Object); return ok }

// IsArray reports whether this node wraps a JSON array.
func (n *Node) IsArray() bool { _, ok := n.raw.(*Array); return ok }

// Keys returns the object's keys in insertion order. Panics if the node
// does not wrap an object (a programmer error, like calling a map method
// on a slice).
func (n *Node) Keys() []string {
	obj, ok := n.raw.(*Object)
	if !ok {
		panic("replicant: Keys called on a non-object Node")
	}
	return obj.Keys()
}

// Len returns the array's length. Panics if the node does not wrap an
// array.
func (n *Node) Len() int {
	arr, ok := n.raw.(*Array)
	if !ok {
		panic("replicant: Len called on a non-array Node")
	}
	return arr.len()
}

// Get reads a property. If the value is a composite it is returned as a
// *Node re-wrapped (or freshly wrapped) at this node's path joined with
// key; scalars are returned as-is. ok is false if key is absent.
func (n *Node) Get(key string) (any, bool) {
	obj, isObj := n.raw.(*Object)
	if !isObj {
		panic("replicant: Get called on a non-object Node")
	}
	v, ok := obj.get(key)
	if !ok {
		return nil, false
	}
	if isComposite(v) {
		return n.owner.wrapChild(v, JoinPath(n.path, key)), true
	}
	return v, true
}

// Index reads an array element by position. Negative indices are not
// supported (JSON arrays have no negative addressing); use Len to bound
// your own loops.
func (n *Node) Index(i int) (any, bool) {
	arr, isArr := n.raw.(*Array)
	if !isArr {
		panic("replicant: Index called on a non-array Node")
	}
	v, ok := arr.get(i)
	if !ok {
		return nil, false
	}
	if isComposite(v) {
		return n.owner.wrapChild(v, JoinPath(n.path, strconv.Itoa(i))), true
	}
	return v, true
}

// Set assigns v to key: a no-op if v strictly equals the current value,
// otherwise a schema dry-run, enqueue of an add/update Operation, and
// (authoritative side only) a write-through to the raw target.
func (n *Node) Set(key string, v any) error {
	obj, isObj := n.raw.(*Object)
	if !isObj {
		panic("replicant: Set called on a non-object Node")
	}
	return n.owner.writeProperty(obj, n.path, key, v)
}

// SetIndex assigns v to the array element at position i. This is an
// add/update Operation keyed by the stringified index.
func (n *Node) SetIndex(i int, v any) error {
	arr, isArr := n.raw.(*Array)
	if !isArr {
		panic("replicant: SetIndex called on a non-array Node")
	}
	if i < 0 || i >= arr.len() {
		return fmt.Errorf("replicant: index %d out of range", i)
	}
	return n.owner.writeProperty(arr, n.path, strconv.Itoa(i), v)
}

// Delete removes key.
func (n *Node) Delete(key string) error {
	obj, isObj := n.raw.(*Object)
	if !isObj {
		panic("replicant: Delete called on a non-object Node")
	}
	return n.owner.deleteProperty(obj, n.path, key)
}

// -----------------------------------------------------------------------
// Array mutators
// -----------------------------------------------------------------------

func (n *Node) mustArray() *Array {
	arr, ok := n.raw.(*Array)
	if !ok {
		panic("replicant: array mutator called on a non-array Node")
	}
	return arr
}

// Push appends values and returns the new length.
func (n *Node) Push(values ...any) (int, error) {
	arr := n.mustArray()
	args := map[string]any{"mutatorArgs": values}
	if err := n.owner.runArrayMutator(arr, n.path, MethodPush, args, func(a *Array) {
		for _, v := range values {
			bv, _ := box(v)
			a.items = append(a.items, bv)
		}
	}); err != nil {
		return 0, err
	}
	return arr.len(), nil
}

// Pop removes and returns the last element, or (nil, nil) if empty.
func (n *Node) Pop() (any, error) {
	arr := n.mustArray()
	var removed any
	var had bool
	err := n.owner.runArrayMutator(arr, n.path, MethodPop, nil, func(a *Array) {
		if len(a.items) == 0 {
			return
		}
		had = true
		removed = a.items[len(a.items)-1]
		a.items = a.items[:len(a.items)-1]
	})
	if err != nil {
		return nil, err
	}
	if !had {
		return nil, nil
	}
	return toPlain(removed), nil
}

// Shift removes and returns the first element, or (nil, nil) if empty.
func (n *Node) Shift() (any, error) {
	arr := n.mustArray()
	var removed any
	var had bool
	err := n.owner.runArrayMutator(arr, n.path, MethodShift, nil, func(a *Array) {
		if len(a.items) == 0 {
			return
		}
		had = true
		removed = a.items[0]
		a.items = a.items[1:]
	})
	if err != nil {
		return nil, err
	}
	if !had {
		return nil, nil
	}
	return toPlain(removed), nil
}

// Unshift prepends values and returns the new length.
func (n *Node) Unshift(values ...any) (int, error) {
	arr := n.mustArray()
	args := map[string]any{"mutatorArgs": values}
	if err := n.owner.runArrayMutator(arr, n.path, MethodUnshift, args, func(a *Array) {
		boxed := make([]any, len(values))
		for i, v := range values {
			boxed[i], _ = box(v)
		}
		a.items = append(boxed, a.items...)
	}); err != nil {
		return 0, err
	}
	return arr.len(), nil
}

// Splice removes deleteCount elements starting at start and inserts
// items in their place, returning the removed elements (as plain
// values).
func (n *Node) Splice(start, deleteCount int, items ...any) ([]any, error) {
	arr := n.mustArray()
	var removed []any
	args := map[string]any{"mutatorArgs": append([]any{start, deleteCount}, items...)}
	err := n.owner.runArrayMutator(arr, n.path, MethodSplice, args, func(a *Array) {
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
		for _, v := range removedRaw {
			removed = append(removed, toPlain(v))
		}
		boxedItems := make([]any, len(items))
		for i, v := range items {
			boxedItems[i], _ = box(v)
		}
		tail := append([]any{}, a.items[s+dc:]...)
		a.items = append(append(a.items[:s], boxedItems...), tail...)
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Sort sorts the array's scalar elements by their string representation,
// the JSON-serializable default JS Array.prototype.sort() uses. A custom
// comparator cannot be carried over the wire as an Operation argument, so
// Sort takes none; reorder via Splice for anything else.
func (n *Node) Sort() error {
	arr := n.mustArray()
	return n.owner.runArrayMutator(arr, n.path, MethodSort, nil, func(a *Array) {
		sort.SliceStable(a.items, func(i, j int) bool {
			return fmt.Sprint(toPlain(a.items[i])) < fmt.Sprint(toPlain(a.items[j]))
		})
	})
}

// Reverse reverses the array in place.
func (n *Node) Reverse() error {
	arr := n.mustArray()
	return n.owner.runArrayMutator(arr, n.path, MethodReverse, nil, func(a *Array) {
		for i, j := 0, len(a.items)-1; i < j; i, j = i+1, j-1 {
			a.items[i], a.items[j] = a.items[j], a.items[i]
		}
	})
}

// Fill sets every element in [start, end) to value.
func (n *Node) Fill(value any, start, end int) error {
	arr := n.mustArray()
	args := map[string]any{"mutatorArgs": []any{value, start, end}}
	return n.owner.runArrayMutator(arr, n.path, MethodFill, args, func(a *Array) {
		s := normIndex(len(a.items), start)
		e := normIndex(len(a.items), end)
		bv, _ := box(value)
		for i := s; i < e && i < len(a.items); i++ {
			a.items[i] = bv
		}
	})
}

// CopyWithin copies the sequence of elements [start, end) over the
// elements starting at target, per Array.prototype.copyWithin. The
// array's length does not change; elements that would land past the end
// are dropped.
func (n *Node) CopyWithin(target, start, end int) error {
	arr := n.mustArray()
	args := map[string]any{"mutatorArgs": []any{target, start, end}}
	return n.owner.runArrayMutator(arr, n.path, MethodCopyWithin, args, func(a *Array) {
		length := len(a.items)
		t := normIndex(length, target)
		s := normIndex(length, start)
		e := normIndex(length, end)
		if s >= e {
			return
		}
		segment := make([]any, e-s)
		copy(segment, a.items[s:e])
		for i, v := range segment {
			if t+i >= length {
				break
			}
			a.items[t+i] = v
		}
	})
}

// normIndex clamps a JS-style possibly-negative index into [0, length].
func normIndex(length, i int) int {
	if i < 0 {
		i += length
	}
	if i < 0 {
		return 0
	}
	if i > length {
		return length
	}
	return i
}
