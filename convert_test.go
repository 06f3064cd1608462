package replicant

import "testing"

func TestBox_Scalars(t *testing.T) {
	got, err := box(3)
	if err != nil {
		t.Fatalf("box() error = %v", err)
	}
	if got != float64(3) {
		t.Errorf("expected int to normalize to float64, got %#v", got)
	}
}

func TestBox_NestedMap(t *testing.T) {
	v := map[string]any{"a": map[string]any{"b": 1}, "c": []any{1, 2}}
	boxed, err := box(v)
	if err != nil {
		t.Fatalf("box() error = %v", err)
	}
	obj, ok := boxed.(*Object)
	if !ok {
		t.Fatalf("expected *Object, got %T", boxed)
	}
	nested, ok := obj.get("a")
	if !ok {
		t.Fatal("expected key 'a'")
	}
	if _, ok := nested.(*Object); !ok {
		t.Errorf("expected nested value to be *Object, got %T", nested)
	}
	arrVal, ok := obj.get("c")
	if !ok {
		t.Fatal("expected key 'c'")
	}
	if _, ok := arrVal.(*Array); !ok {
		t.Errorf("expected value to be *Array, got %T", arrVal)
	}
}

func TestBox_UnsupportedType(t *testing.T) {
	if _, err := box(make(chan int)); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestBox_NodeUnwraps(t *testing.T) {
	raw := NewObject()
	node := &Node{raw: raw}
	got, err := box(node)
	if err != nil {
		t.Fatalf("box() error = %v", err)
	}
	if got != any(raw) {
		t.Errorf("expected box(*Node) to unwrap to its raw composite")
	}
}

func TestToPlain_RoundTrip(t *testing.T) {
	v := map[string]any{"a": float64(1), "b": []any{float64(2), "x"}}
	boxed, err := box(v)
	if err != nil {
		t.Fatalf("box() error = %v", err)
	}
	plain := toPlain(boxed)
	m, ok := plain.(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any, got %T", plain)
	}
	if m["a"] != float64(1) {
		t.Errorf("got %#v", m["a"])
	}
	arr, ok := m["b"].([]any)
	if !ok || len(arr) != 2 || arr[0] != float64(2) || arr[1] != "x" {
		t.Errorf("got %#v", m["b"])
	}
}

func TestDeepCloneRaw_IsIndependent(t *testing.T) {
	obj := NewObject()
	obj.set("a", float64(1))
	inner := NewArray()
	inner.items = []any{float64(1), float64(2)}
	obj.set("arr", inner)

	clone := deepCloneRaw(obj).(*Object)
	if clone == obj {
		t.Fatal("expected a distinct pointer")
	}
	cloneArr := clone.fields["arr"].(*Array)
	if cloneArr == inner {
		t.Fatal("expected nested array to be cloned too")
	}

	cloneArr.items[0] = float64(99)
	if inner.items[0] != float64(1) {
		t.Error("mutating the clone must not affect the original")
	}
}
