// Package redis provides Redis-backed replicant.PersistentStore and
// replicant.Broadcaster implementations, plus a Bridge that forwards
// published flush messages into a local Replicator so a fleet of
// processes can share Replicant state through Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/zoobzio/replicant"
)

const defaultChannelPrefix = "replicant:flush:"
const defaultKeyPrefix = "replicant:value:"

// storedValue is the JSON envelope a Store persists under a value's key.
type storedValue struct {
	Value    any   `json:"value"`
	Revision int64 `json:"revision"`
}

// Store implements replicant.PersistentStore over a Redis client, keying
// each Replicant's durable value by namespace and name.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithKeyPrefix overrides the default "replicant:value:" key prefix.
func WithKeyPrefix(prefix string) StoreOption {
	return func(s *Store) { s.keyPrefix = prefix }
}

// NewStore constructs a Store over client.
func NewStore(client *redis.Client, opts ...StoreOption) *Store {
	s := &Store{client: client, keyPrefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(namespace, name string) string {
	return s.keyPrefix + namespace + ":" + name
}

// Load implements replicant.PersistentStore.
func (s *Store) Load(ctx context.Context, namespace, name string) (any, bool, error) {
	raw, err := s.client.Get(ctx, s.key(namespace, name)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: load %s/%s: %w", namespace, name, err)
	}
	var sv storedValue
	if err := json.Unmarshal(raw, &sv); err != nil {
		return nil, false, fmt.Errorf("redis: decode %s/%s: %w", namespace, name, err)
	}
	return sv.Value, true, nil
}

// Save implements replicant.PersistentStore.
func (s *Store) Save(ctx context.Context, namespace, name string, value any, revision int64) error {
	raw, err := json.Marshal(storedValue{Value: value, Revision: revision})
	if err != nil {
		return fmt.Errorf("redis: encode %s/%s: %w", namespace, name, err)
	}
	if err := s.client.Set(ctx, s.key(namespace, name), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis: save %s/%s: %w", namespace, name, err)
	}
	return nil
}

var _ replicant.PersistentStore = (*Store)(nil)

// Broadcaster implements replicant.Broadcaster by publishing each flushed
// batch on a per-namespace Redis pub/sub channel. Pair it with a Bridge on
// every other process that needs to receive those batches.
type Broadcaster struct {
	client        *redis.Client
	channelPrefix string
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithChannelPrefix overrides the default "replicant:flush:" channel prefix.
func WithChannelPrefix(prefix string) BroadcasterOption {
	return func(b *Broadcaster) { b.channelPrefix = prefix }
}

// NewBroadcaster constructs a Broadcaster over client.
func NewBroadcaster(client *redis.Client, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{client: client, channelPrefix: defaultChannelPrefix}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Broadcast implements replicant.Broadcaster.
func (b *Broadcaster) Broadcast(ctx context.Context, msg replicant.FlushMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis: encode flush message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channelPrefix+msg.Namespace, raw).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", msg.Namespace, err)
	}
	return nil
}

var _ replicant.Broadcaster = (*Broadcaster)(nil)

// Bridge subscribes to the channel a Broadcaster publishes on and applies
// every received batch to a local Replicator, so remote flushes reach
// Replicants declared in this process.
type Bridge struct {
	client        *redis.Client
	rep           *replicant.Replicator
	channelPrefix string
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithBridgeChannelPrefix overrides the default "replicant:flush:" channel
// prefix. It must match the prefix the peer's Broadcaster publishes on.
func WithBridgeChannelPrefix(prefix string) BridgeOption {
	return func(b *Bridge) { b.channelPrefix = prefix }
}

// NewBridge constructs a Bridge delivering into rep.
func NewBridge(client *redis.Client, rep *replicant.Replicator, opts ...BridgeOption) *Bridge {
	b := &Bridge{client: client, rep: rep, channelPrefix: defaultChannelPrefix}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run subscribes to namespace's flush channel and applies every received
// batch to the Bridge's Replicator until ctx is canceled.
func (b *Bridge) Run(ctx context.Context, namespace string) error {
	pubsub := b.client.Subscribe(ctx, b.channelPrefix+namespace)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe %s: %w", namespace, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg replicant.FlushMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				continue
			}
			_ = b.rep.Apply(ctx, msg.Namespace, msg.Name, msg.Revision, msg.Ops)
		}
	}
}
