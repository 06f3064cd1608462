package replicant

import (
	"context"
	"testing"
	"time"
)

type recordingBroadcaster struct {
	calls []FlushMessage
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, msg FlushMessage) error {
	b.calls = append(b.calls, msg)
	return nil
}

type failingBroadcaster struct {
	failures int
	calls    int
}

func (b *failingBroadcaster) Broadcast(context.Context, FlushMessage) error {
	b.calls++
	if b.calls <= b.failures {
		return errFakeBroadcast
	}
	return nil
}

var errFakeBroadcast = &InvalidDeclarationError{Reason: "fake broadcast failure"}

func TestNew_DefaultsAreUsable(t *testing.T) {
	rep := New()
	if rep.broadcaster == nil || rep.store == nil {
		t.Fatal("expected Noop defaults to be set")
	}
}

func TestWithBroadcaster_ReceivesFlushedBatches(t *testing.T) {
	b := &recordingBroadcaster{}
	rep := New(WithBroadcaster(b), WithSyncMode())

	ctx := context.Background()
	r, err := rep.FindOrDeclare(ctx, "ns", "value", Opts{DefaultValue: "x"})
	if err != nil {
		t.Fatalf("FindOrDeclare() error = %v", err)
	}
	if err := r.SetValue("y"); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	r.Flush(ctx)

	if len(b.calls) != 1 {
		t.Fatalf("expected 1 broadcast call, got %d", len(b.calls))
	}
	if b.calls[0].Namespace != "ns" || b.calls[0].Name != "value" {
		t.Errorf("unexpected flush message: %+v", b.calls[0])
	}
}

func TestWithBroadcastRetry_RetriesOnFailure(t *testing.T) {
	b := &failingBroadcaster{failures: 2}
	rep := New(WithBroadcaster(b), WithBroadcastRetry(3), WithSyncMode())

	ctx := context.Background()
	r, err := rep.FindOrDeclare(ctx, "ns", "value", Opts{DefaultValue: "x"})
	if err != nil {
		t.Fatalf("FindOrDeclare() error = %v", err)
	}
	if err := r.SetValue("y"); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	r.Flush(ctx)

	if b.calls != 3 {
		t.Errorf("expected 3 attempts (2 failures + 1 success), got %d", b.calls)
	}
}

func TestWithSyncMode_DisablesAutomaticFlush(t *testing.T) {
	rep := New(WithSyncMode())
	ctx := context.Background()
	r, err := rep.FindOrDeclare(ctx, "ns", "value", Opts{DefaultValue: map[string]any{"a": 0}})
	if err != nil {
		t.Fatalf("FindOrDeclare() error = %v", err)
	}
	node := r.Value().(*Node)
	if err := node.Set("a", 1); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if r.Revision() != 0 {
		t.Errorf("expected no automatic flush in sync mode, got revision %d", r.Revision())
	}

	r.Flush(ctx)
	if r.Revision() != 1 {
		t.Errorf("expected explicit Flush to advance revision, got %d", r.Revision())
	}
}
