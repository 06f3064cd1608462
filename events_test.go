package replicant

import "testing"

func TestEmitter_OnReceivesEveryEmit(t *testing.T) {
	e := newEmitter()
	var calls int
	e.on(func(newValue, oldValue any, ops []Operation) {
		calls++
	}, false)

	e.emit(1, 0, nil)
	e.emit(2, 1, nil)

	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestEmitter_OnceFiresOnlyOnce(t *testing.T) {
	e := newEmitter()
	var calls int
	e.on(func(newValue, oldValue any, ops []Operation) {
		calls++
	}, true)

	e.emit(1, 0, nil)
	e.emit(2, 1, nil)

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestEmitter_Unsubscribe(t *testing.T) {
	e := newEmitter()
	var calls int
	unsubscribe := e.on(func(newValue, oldValue any, ops []Operation) {
		calls++
	}, false)

	unsubscribe()
	e.emit(1, 0, nil)

	if calls != 0 {
		t.Errorf("expected 0 calls after unsubscribe, got %d", calls)
	}
}

func TestEmitter_PassesValuesAndOps(t *testing.T) {
	e := newEmitter()
	var gotNew, gotOld any
	var gotOps []Operation
	e.on(func(newValue, oldValue any, ops []Operation) {
		gotNew, gotOld, gotOps = newValue, oldValue, ops
	}, false)

	wantOps := []Operation{{Path: "/x", Method: MethodAdd}}
	e.emit("new", "old", wantOps)

	if gotNew != "new" || gotOld != "old" {
		t.Errorf("got new=%v old=%v", gotNew, gotOld)
	}
	if len(gotOps) != 1 || gotOps[0].Path != "/x" {
		t.Errorf("got ops=%v", gotOps)
	}
}

func TestEmitter_MultipleHandlersAllFire(t *testing.T) {
	e := newEmitter()
	var a, b int
	e.on(func(any, any, []Operation) { a++ }, false)
	e.on(func(any, any, []Operation) { b++ }, false)

	e.emit(nil, nil, nil)

	if a != 1 || b != 1 {
		t.Errorf("expected both handlers to fire, got a=%d b=%d", a, b)
	}
}
