package replicant

import (
	"context"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/pipz"
)

// flushRequest carries one flushed operation batch through a Replicator's
// broadcast pipeline.
type flushRequest struct {
	Replicant *Replicant
	Revision  int64
	Ops       []Operation
	Value     any
}

// replicatorConfig holds configuration options for a Replicator.
type replicatorConfig struct {
	clock                clockz.Clock
	syncMode             bool
	flushDebounce        time.Duration
	broadcaster          Broadcaster
	store                PersistentStore
	schemaSource         SchemaSource
	codec                Codec
	maxBufferedRemoteOps int
	bufferWait           time.Duration
	broadcastWrap        []func(pipz.Chainable[*flushRequest]) pipz.Chainable[*flushRequest]
}

// Option configures a Replicator.
type Option func(*replicatorConfig)

// WithClock sets a custom clock for flush debouncing and buffered-op wait
// timing. Use clockz.NewFakeClock() for deterministic tests.
func WithClock(clock clockz.Clock) Option {
	return func(c *replicatorConfig) { c.clock = clock }
}

// WithSyncMode disables the end-of-turn flush timer: Replicants created
// by this Replicator queue operations and flush automatically only when
// the queue reaches MaxQueueDepth. Call Replicant.Flush explicitly, for
// deterministic tests.
func WithSyncMode() Option {
	return func(c *replicatorConfig) { c.syncMode = true }
}

// WithFlushDebounce sets how long a Replicant waits after its first queued
// operation in a turn before flushing. The default, zero, flushes on the
// next scheduler tick, which is normally indistinguishable from "the
// current synchronous call stack unwinding" for a live event loop.
func WithFlushDebounce(d time.Duration) Option {
	return func(c *replicatorConfig) { c.flushDebounce = d }
}

// WithBroadcaster sets the Broadcaster flushed operation batches are
// delivered to. Default: NoopBroadcaster.
func WithBroadcaster(b Broadcaster) Option {
	return func(c *replicatorConfig) { c.broadcaster = b }
}

// WithPersistentStore sets the durable store for Replicants declared with
// Opts.Persistent. Default: NoopPersistentStore.
func WithPersistentStore(s PersistentStore) Option {
	return func(c *replicatorConfig) { c.store = s }
}

// WithSchemaSource sets the SchemaSource used to resolve Opts.SchemaPath
// at declaration time. Only the first document the source emits is
// compiled; later emissions are not applied to a declared Replicant.
func WithSchemaSource(s SchemaSource) Option {
	return func(c *replicatorConfig) { c.schemaSource = s }
}

// WithCodec sets the Codec used to parse schema documents into JSON before
// compilation. Default: JSONCodec.
func WithCodec(codec Codec) Option {
	return func(c *replicatorConfig) { c.codec = codec }
}

// WithMaxBufferedRemoteOps bounds how many inbound operation batches are
// buffered for a (namespace, name) pair that has not yet been declared
// locally. Default: 256.
func WithMaxBufferedRemoteOps(n int) Option {
	return func(c *replicatorConfig) { c.maxBufferedRemoteOps = n }
}

// WithBufferWait bounds how long Apply waits for an undeclared Replicant
// to be declared before giving up with UnknownReplicantError. Default: 5s.
func WithBufferWait(d time.Duration) Option {
	return func(c *replicatorConfig) { c.bufferWait = d }
}

// -----------------------------------------------------------------------
// Broadcast pipeline resilience options
// -----------------------------------------------------------------------
// These wrap the broadcast leg of the flush pipeline only; persistence
// failures use their own debounced-retry-on-next-tick model instead
// (see PersistenceError).

// WithBroadcastRetry retries a failed broadcast immediately, up to
// maxAttempts times.
func WithBroadcastRetry(maxAttempts int) Option {
	return func(c *replicatorConfig) {
		c.broadcastWrap = append(c.broadcastWrap, func(p pipz.Chainable[*flushRequest]) pipz.Chainable[*flushRequest] {
			return pipz.NewRetry(pipz.NewIdentity("broadcast-retry", "retries a failed broadcast"), p, maxAttempts)
		})
	}
}

// WithBroadcastBackoff retries a failed broadcast with exponential
// backoff starting at baseDelay.
func WithBroadcastBackoff(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *replicatorConfig) {
		c.broadcastWrap = append(c.broadcastWrap, func(p pipz.Chainable[*flushRequest]) pipz.Chainable[*flushRequest] {
			return pipz.NewBackoff(pipz.NewIdentity("broadcast-backoff", "retries a failed broadcast with exponential backoff"), p, maxAttempts, baseDelay)
		})
	}
}

// WithBroadcastTimeout bounds how long a single broadcast attempt may run.
func WithBroadcastTimeout(d time.Duration) Option {
	return func(c *replicatorConfig) {
		c.broadcastWrap = append(c.broadcastWrap, func(p pipz.Chainable[*flushRequest]) pipz.Chainable[*flushRequest] {
			return pipz.NewTimeout(pipz.NewIdentity("broadcast-timeout", "bounds how long a single broadcast attempt may run"), p, d)
		})
	}
}

// WithBroadcastCircuitBreaker opens the broadcast leg after a run of
// consecutive failures, rejecting further attempts until recovery elapses.
func WithBroadcastCircuitBreaker(failures int, recovery time.Duration) Option {
	return func(c *replicatorConfig) {
		c.broadcastWrap = append(c.broadcastWrap, func(p pipz.Chainable[*flushRequest]) pipz.Chainable[*flushRequest] {
			return pipz.NewCircuitBreaker(pipz.NewIdentity("broadcast-circuit-breaker", "opens the broadcast leg after a run of consecutive failures"), p, failures, recovery)
		})
	}
}

// WithBroadcastFallback tries each fallback, in order, if the primary
// broadcast leg fails.
func WithBroadcastFallback(fallbacks ...pipz.Chainable[*flushRequest]) Option {
	return func(c *replicatorConfig) {
		c.broadcastWrap = append(c.broadcastWrap, func(p pipz.Chainable[*flushRequest]) pipz.Chainable[*flushRequest] {
			all := append([]pipz.Chainable[*flushRequest]{p}, fallbacks...)
			return pipz.NewFallback(pipz.NewIdentity("broadcast-fallback", "tries each fallback broadcast leg in order after the primary fails"), all...)
		})
	}
}

// broadcastEffect wraps a Broadcaster as the terminal step of the flush
// pipeline.
func broadcastEffect(b Broadcaster) pipz.Chainable[*flushRequest] {
	return pipz.Effect(pipz.NewIdentity("broadcast", "delivers a flush's operations to the configured Broadcaster"), func(ctx context.Context, req *flushRequest) error {
		return b.Broadcast(ctx, FlushMessage{
			Namespace: req.Replicant.namespace,
			Name:      req.Replicant.name,
			Revision:  req.Revision,
			Ops:       req.Ops,
		})
	})
}
