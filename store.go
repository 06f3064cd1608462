package replicant

import (
	"context"
	"sync"

	"github.com/zoobzio/clockz"
)

// PersistentStore durably stores and retrieves the value of a Replicant
// declared with Opts.Persistent. pkg/postgres and pkg/redis provide
// reference implementations.
type PersistentStore interface {
	// Load returns the last persisted value for namespace/name, or
	// found=false if none exists.
	Load(ctx context.Context, namespace, name string) (value any, found bool, err error)

	// Save durably writes value at the given revision.
	Save(ctx context.Context, namespace, name string, value any, revision int64) error
}

// NoopPersistentStore never finds a value and discards every write. It is
// the default for a Replicator constructed without WithPersistentStore.
type NoopPersistentStore struct{}

// Load implements PersistentStore by always reporting not-found.
func (NoopPersistentStore) Load(context.Context, string, string) (any, bool, error) {
	return nil, false, nil
}

// Save implements PersistentStore by doing nothing.
func (NoopPersistentStore) Save(context.Context, string, string, any, int64) error { return nil }

var _ PersistentStore = NoopPersistentStore{}

// persistenceState is the per-Replicant debounce bookkeeping a Replicator
// uses to coalesce durable writes over Opts.PersistenceInterval.
type persistenceState struct {
	mu       sync.Mutex
	timer    clockz.Timer
	pending  any
	revision int64
	errs     *errorRing
}

func newPersistenceState() *persistenceState {
	return &persistenceState{errs: newErrorRing(16)}
}
