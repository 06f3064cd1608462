package replicant

import "context"

// FlushMessage is the wire payload a Broadcaster delivers to remote peers
// after a Replicant's operation queue is flushed.
type FlushMessage struct {
	Namespace string      `json:"namespace"`
	Name      string      `json:"name"`
	Revision  int64       `json:"revision"`
	Ops       []Operation `json:"ops"`
}

// Broadcaster delivers flushed operation batches to remote subscribers.
// pkg/wsbroadcast and pkg/redis provide reference implementations; the
// Socket.IO transport used in a live production deployment is an external
// collaborator, not something this module implements.
type Broadcaster interface {
	// Broadcast delivers msg to every subscriber of msg.Namespace/msg.Name.
	Broadcast(ctx context.Context, msg FlushMessage) error
}

// NoopBroadcaster discards every message. It is the default for a
// Replicator constructed without WithBroadcaster, so a Replicant is fully
// usable standalone (see the end-to-end examples in the package doc).
type NoopBroadcaster struct{}

// Broadcast implements Broadcaster by doing nothing.
func (NoopBroadcaster) Broadcast(context.Context, FlushMessage) error { return nil }

var _ Broadcaster = NoopBroadcaster{}
