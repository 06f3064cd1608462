package replicant

import (
	"context"
	"reflect"
	"testing"
)

func flushAndCapture(t *testing.T, r *Replicant, mutate func(*Node)) []Operation {
	t.Helper()
	var captured []Operation
	r.On("change", func(_, _ any, ops []Operation) {
		captured = ops
	})
	mutate(r.Value().(*Node))
	r.Flush(context.Background())
	return captured
}

func TestScenario_NestedArrayIndexUpdate(t *testing.T) {
	r := newDeclaredReplicant(t, map[string]any{"a": map[string]any{"b": []any{1, 2}}})

	ops := flushAndCapture(t, r, func(root *Node) {
		aAny, _ := root.Get("a")
		bAny, _ := aAny.(*Node).Get("b")
		if err := bAny.(*Node).SetIndex(1, 9); err != nil {
			t.Fatalf("SetIndex() error = %v", err)
		}
	})

	want := []Operation{
		{Path: "/a/b", Method: MethodUpdate, Args: map[string]any{"prop": "1", "newValue": float64(9)}},
	}
	if !reflect.DeepEqual(ops, want) {
		t.Errorf("got ops %+v, want %+v", ops, want)
	}
	if r.Revision() != 1 {
		t.Errorf("expected revision 1, got %d", r.Revision())
	}

	aAny, _ := r.Value().(*Node).Get("a")
	bAny, _ := aAny.(*Node).Get("b")
	b := bAny.(*Node)
	v0, _ := b.Index(0)
	v1, _ := b.Index(1)
	if v0 != float64(1) || v1 != float64(9) {
		t.Errorf("expected b == [1, 9], got [%v, %v]", v0, v1)
	}
}

func TestScenario_ArrayMutatorPush(t *testing.T) {
	r := newDeclaredReplicant(t, map[string]any{"xs": []any{1, 2, 3}})

	ops := flushAndCapture(t, r, func(root *Node) {
		xsAny, _ := root.Get("xs")
		if _, err := xsAny.(*Node).Push(4, 5); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	})

	want := []Operation{
		{Path: "/xs", Method: MethodPush, Args: map[string]any{"prop": "xs", "mutatorArgs": []any{4, 5}}},
	}
	if !reflect.DeepEqual(ops, want) {
		t.Errorf("got ops %+v, want %+v", ops, want)
	}

	xsAny, _ := r.Value().(*Node).Get("xs")
	xs := xsAny.(*Node)
	if xs.Len() != 5 {
		t.Errorf("expected length 5, got %d", xs.Len())
	}
}

func TestScenario_KeyEscaping(t *testing.T) {
	r := newDeclaredReplicant(t, map[string]any{})

	ops := flushAndCapture(t, r, func(root *Node) {
		if err := root.Set("a/b", 1); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	})

	want := []Operation{
		{Path: "/a~1b", Method: MethodAdd, Args: map[string]any{"prop": "a/b", "newValue": float64(1)}},
	}
	if !reflect.DeepEqual(ops, want) {
		t.Errorf("got ops %+v, want %+v", ops, want)
	}
}

func TestScenario_ObjectKeyDeleteUsesLeafPath(t *testing.T) {
	r := newDeclaredReplicant(t, map[string]any{"a/b": 1})

	ops := flushAndCapture(t, r, func(root *Node) {
		if err := root.Delete("a/b"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
	})

	want := []Operation{
		{Path: "/a~1b", Method: MethodDelete, Args: map[string]any{"prop": "a/b"}},
	}
	if !reflect.DeepEqual(ops, want) {
		t.Errorf("got ops %+v, want %+v", ops, want)
	}
}

func TestScenario_OnceFiresImmediatelyInDeclaredStateAndNeverRearms(t *testing.T) {
	r := newDeclaredReplicant(t, map[string]any{"n": 0})

	var onceCalls int
	var onceValue any
	r.Once("change", func(newValue, oldValue any, ops []Operation) {
		onceCalls++
		onceValue = newValue
		if oldValue != nil || ops != nil {
			t.Errorf("expected nil oldValue/ops on synchronous fire, got %v / %v", oldValue, ops)
		}
	})
	if onceCalls != 1 {
		t.Fatalf("expected Once to fire immediately once, got %d calls", onceCalls)
	}
	node, ok := onceValue.(*Node)
	if !ok {
		t.Fatalf("expected the current value, got %T", onceValue)
	}
	n, _ := node.Get("n")
	if n != float64(0) {
		t.Errorf("expected current value {n:0}, got n=%v", n)
	}

	var onCalls int
	r.On("change", func(any, any, []Operation) { onCalls++ })
	if onCalls != 1 {
		t.Fatalf("expected On to also fire immediately once, got %d calls", onCalls)
	}

	root := r.Value().(*Node)
	if err := root.Set("n", 1); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	r.Flush(context.Background())

	if onceCalls != 1 {
		t.Errorf("expected the once listener to never rearm, got %d calls", onceCalls)
	}
	if onCalls != 2 {
		t.Errorf("expected the persistent listener to fire again on mutation, got %d calls", onCalls)
	}
}

func TestScenario_OnDoesNotFireSynchronouslyBeforeDeclared(t *testing.T) {
	reg := newRegistry()
	r := newReplicant("ns", "pending", true, Opts{DefaultValue: map[string]any{"n": 0}}, reg, nil)
	r.syncMode = true

	var calls int
	r.On("change", func(any, any, []Operation) { calls++ })
	if calls != 0 {
		t.Fatalf("expected no synchronous call before declaration, got %d", calls)
	}

	if err := r.declare(context.Background(), nil, "", nil, false); err != nil {
		t.Fatalf("declare() error = %v", err)
	}
	if calls != 0 {
		t.Errorf("expected declaring to not itself fire change listeners, got %d calls", calls)
	}
}

func TestApplyRemoteOperation_ObjectKeyAddUpdateDelete(t *testing.T) {
	r := newDeclaredReplicant(t, map[string]any{})

	if err := r.applyRemoteOperation(Operation{
		Path: "/a~1b", Method: MethodAdd, Args: map[string]any{"prop": "a/b", "newValue": float64(1)},
	}); err != nil {
		t.Fatalf("remote add error = %v", err)
	}
	node := r.Value().(*Node)
	v, ok := node.Get("a/b")
	if !ok || v != float64(1) {
		t.Fatalf("expected a/b == 1 after remote add, got %v, %v", v, ok)
	}

	if err := r.applyRemoteOperation(Operation{
		Path: "/a~1b", Method: MethodUpdate, Args: map[string]any{"prop": "a/b", "newValue": float64(2)},
	}); err != nil {
		t.Fatalf("remote update error = %v", err)
	}
	v, _ = r.Value().(*Node).Get("a/b")
	if v != float64(2) {
		t.Errorf("expected a/b == 2 after remote update, got %v", v)
	}

	if err := r.applyRemoteOperation(Operation{
		Path: "/a~1b", Method: MethodDelete, Args: map[string]any{"prop": "a/b"},
	}); err != nil {
		t.Fatalf("remote delete error = %v", err)
	}
	if _, ok := r.Value().(*Node).Get("a/b"); ok {
		t.Error("expected a/b to be gone after remote delete")
	}
}

func TestApplyRemoteOperation_ArrayIndexUpdateUsesContainerPath(t *testing.T) {
	r := newDeclaredReplicant(t, map[string]any{"a": map[string]any{"b": []any{1, 2}}})

	if err := r.applyRemoteOperation(Operation{
		Path: "/a/b", Method: MethodUpdate, Args: map[string]any{"prop": "1", "newValue": float64(9)},
	}); err != nil {
		t.Fatalf("remote array-index update error = %v", err)
	}

	aAny, _ := r.Value().(*Node).Get("a")
	bAny, _ := aAny.(*Node).Get("b")
	v1, _ := bAny.(*Node).Index(1)
	if v1 != float64(9) {
		t.Errorf("expected b[1] == 9, got %v", v1)
	}
}

func TestApplyRemoteOperation_ObjectKeyUpdateReplacingArrayValue(t *testing.T) {
	r := newDeclaredReplicant(t, map[string]any{"list": []any{1, 2, 3}})

	if err := r.applyRemoteOperation(Operation{
		Path: "/list", Method: MethodUpdate, Args: map[string]any{"prop": "list", "newValue": []any{9}},
	}); err != nil {
		t.Fatalf("remote object-key update error = %v", err)
	}

	listAny, _ := r.Value().(*Node).Get("list")
	list := listAny.(*Node)
	if list.Len() != 1 {
		t.Fatalf("expected replaced array of length 1, got %d", list.Len())
	}
	v0, _ := list.Index(0)
	if v0 != float64(9) {
		t.Errorf("expected list[0] == 9, got %v", v0)
	}
}
