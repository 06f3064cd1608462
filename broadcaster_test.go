package replicant

import (
	"context"
	"testing"
)

func TestNoopBroadcaster_BroadcastAlwaysSucceeds(t *testing.T) {
	var b NoopBroadcaster
	err := b.Broadcast(context.Background(), FlushMessage{Namespace: "ns", Name: "name"})
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
