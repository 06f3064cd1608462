package replicant

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/pipz"
)

// DefaultMaxBufferedRemoteOps bounds how many inbound batches Apply will
// buffer for a Replicant that has not yet been declared locally.
const DefaultMaxBufferedRemoteOps = 256

// DefaultBufferWait bounds how long Apply waits for a Replicant to be
// declared before giving up.
const DefaultBufferWait = 5 * time.Second

func repKey(namespace, name string) string { return namespace + "\x00" + name }

type bufferedBatch struct {
	revision int64
	ops      []Operation
}

// Replicator is a (namespace, name) -> Replicant directory. It declares
// Replicants (seeding them from a PersistentStore and compiling their
// schema), dispatches locally flushed operations to a Broadcaster and the
// PersistentStore, and applies inbound remote operation batches in
// arrival order.
type Replicator struct {
	reg   *registry
	clock clockz.Clock

	syncMode      bool
	flushDebounce time.Duration

	broadcaster Broadcaster
	store       PersistentStore

	schemaSource SchemaSource
	codec        Codec

	broadcastPipeline pipz.Chainable[*flushRequest]

	maxBufferedRemoteOps int
	bufferWait           time.Duration

	mu         sync.RWMutex
	replicants map[string]*Replicant

	pendingMu sync.Mutex
	pending   map[string][]bufferedBatch
	waiters   map[string][]chan struct{}

	persistenceMu sync.Mutex
	persistence   map[*Replicant]*persistenceState
}

// New constructs a Replicator with the given options.
func New(opts ...Option) *Replicator {
	cfg := &replicatorConfig{
		clock:                clockz.RealClock,
		broadcaster:          NoopBroadcaster{},
		store:                NoopPersistentStore{},
		codec:                JSONCodec{},
		maxBufferedRemoteOps: DefaultMaxBufferedRemoteOps,
		bufferWait:           DefaultBufferWait,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	pipeline := broadcastEffect(cfg.broadcaster)
	for _, wrap := range cfg.broadcastWrap {
		pipeline = wrap(pipeline)
	}

	return &Replicator{
		reg:                  newRegistry(),
		clock:                cfg.clock,
		syncMode:             cfg.syncMode,
		flushDebounce:        cfg.flushDebounce,
		broadcaster:          cfg.broadcaster,
		store:                cfg.store,
		schemaSource:         cfg.schemaSource,
		codec:                cfg.codec,
		broadcastPipeline:    pipeline,
		maxBufferedRemoteOps: cfg.maxBufferedRemoteOps,
		bufferWait:           cfg.bufferWait,
		replicants:           make(map[string]*Replicant),
		pending:              make(map[string][]bufferedBatch),
		waiters:              make(map[string][]chan struct{}),
		persistence:          make(map[*Replicant]*persistenceState),
	}
}

// Get returns the Replicant registered under namespace/name, if any.
func (rep *Replicator) Get(namespace, name string) (*Replicant, bool) {
	rep.mu.RLock()
	defer rep.mu.RUnlock()
	r, ok := rep.replicants[repKey(namespace, name)]
	return r, ok
}

// FindOrDeclare returns the existing Replicant for namespace/name, or
// declares a new one: it resolves opts.SchemaPath via the configured
// SchemaSource, loads a persisted value if opts.Persistent, and seeds the
// value before transitioning to StatusDeclared.
func (rep *Replicator) FindOrDeclare(ctx context.Context, namespace, name string, opts Opts) (*Replicant, error) {
	if namespace == "" || name == "" {
		return nil, &InvalidDeclarationError{Namespace: namespace, Name: name, Reason: "namespace and name must be non-empty"}
	}
	if err := opts.validated(); err != nil {
		return nil, err
	}

	key := repKey(namespace, name)

	rep.mu.Lock()
	if existing, ok := rep.replicants[key]; ok {
		rep.mu.Unlock()
		return existing, nil
	}
	r := newReplicant(namespace, name, true, opts, rep.reg, rep.clock)
	r.replicator = rep
	r.syncMode = rep.syncMode
	r.flushDebounce = rep.flushDebounce
	rep.replicants[key] = r
	rep.mu.Unlock()

	var schema *compiledSchema
	if opts.SchemaPath != "" {
		s, err := rep.resolveSchema(ctx, opts.SchemaPath)
		if err != nil {
			rep.forget(key)
			return nil, err
		}
		schema = s
	}

	var persisted any
	var persistedFound bool
	if opts.Persistent {
		v, found, err := rep.store.Load(ctx, namespace, name)
		if err != nil {
			capitan.Emit(ctx, ReplicantPersistenceFailed,
				KeyNamespace.Field(namespace), KeyName.Field(name), KeyError.Field(err.Error()))
		} else {
			persisted, persistedFound = v, found
		}
	}

	if err := r.declare(ctx, schema, opts.SchemaPath, persisted, persistedFound); err != nil {
		rep.forget(key)
		return nil, err
	}

	rep.drainPending(ctx, key, r)
	return r, nil
}

func (rep *Replicator) forget(key string) {
	rep.mu.Lock()
	r := rep.replicants[key]
	delete(rep.replicants, key)
	rep.mu.Unlock()
	if r != nil {
		rep.reg.forgetOwner(r)
	}
}

func (rep *Replicator) resolveSchema(ctx context.Context, path string) (*compiledSchema, error) {
	if rep.schemaSource == nil {
		return nil, fmt.Errorf("replicant: opts.SchemaPath set but no SchemaSource configured")
	}
	changes, err := rep.schemaSource.Watch(ctx)
	if err != nil {
		return nil, fmt.Errorf("replicant: watch schema %q: %w", path, err)
	}
	raw, ok := <-changes
	if !ok {
		return nil, fmt.Errorf("replicant: schema source closed before emitting %q", path)
	}
	jsonBytes, err := rep.codec.ToJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("replicant: normalize schema %q: %w", path, err)
	}
	return compileSchema(jsonBytes)
}

// Apply applies an inbound remote operation batch to the local Replicant
// for namespace/name. If the Replicant is not yet declared locally, the
// batch is buffered (bounded by WithMaxBufferedRemoteOps) until it is, up
// to WithBufferWait, after which UnknownReplicantError is returned.
func (rep *Replicator) Apply(ctx context.Context, namespace, name string, revision int64, ops []Operation) error {
	key := repKey(namespace, name)

	rep.mu.RLock()
	r, ok := rep.replicants[key]
	rep.mu.RUnlock()

	if ok && r.Status() == StatusDeclared {
		return rep.applyToReplicant(ctx, r, ops)
	}

	return rep.bufferAndWait(ctx, key, namespace, name, revision, ops)
}

func (rep *Replicator) bufferAndWait(ctx context.Context, key, namespace, name string, revision int64, ops []Operation) error {
	rep.pendingMu.Lock()
	if len(rep.pending[key]) >= rep.maxBufferedRemoteOps {
		rep.pendingMu.Unlock()
		capitan.Emit(ctx, ReplicatorOperationDropped, KeyNamespace.Field(namespace), KeyName.Field(name))
		return &UnknownReplicantError{Namespace: namespace, Name: name}
	}
	rep.pending[key] = append(rep.pending[key], bufferedBatch{revision: revision, ops: ops})
	wake := make(chan struct{})
	rep.waiters[key] = append(rep.waiters[key], wake)
	rep.pendingMu.Unlock()

	capitan.Emit(ctx, ReplicatorOperationBuffered, KeyNamespace.Field(namespace), KeyName.Field(name))

	timer := rep.clock.NewTimer(rep.bufferWait)
	defer timer.Stop()

	select {
	case <-wake:
		rep.mu.RLock()
		r, ok := rep.replicants[key]
		rep.mu.RUnlock()
		if ok && r.Status() == StatusDeclared {
			return nil
		}
		return &UndeclaredReplicantError{Namespace: namespace, Name: name}
	case <-timer.C():
		rep.pendingMu.Lock()
		for i, w := range rep.waiters[key] {
			if w == wake {
				rep.waiters[key] = append(rep.waiters[key][:i], rep.waiters[key][i+1:]...)
				rep.pending[key] = append(rep.pending[key][:i], rep.pending[key][i+1:]...)
				break
			}
		}
		rep.pendingMu.Unlock()
		capitan.Emit(ctx, ReplicatorOperationDropped, KeyNamespace.Field(namespace), KeyName.Field(name))
		return &UnknownReplicantError{Namespace: namespace, Name: name}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drainPending applies every operation batch buffered for key, in arrival
// order, then wakes every goroutine blocked in bufferAndWait for it.
func (rep *Replicator) drainPending(ctx context.Context, key string, r *Replicant) {
	rep.pendingMu.Lock()
	batches := rep.pending[key]
	waiters := rep.waiters[key]
	delete(rep.pending, key)
	delete(rep.waiters, key)
	rep.pendingMu.Unlock()

	for _, b := range batches {
		_ = rep.applyToReplicant(ctx, r, b.ops)
	}
	for _, w := range waiters {
		close(w)
	}
}

// applyToReplicant applies ops to r under r.applyMu, guaranteeing batches
// for the same Replicant are never interleaved, and fires change
// listeners with the before/after snapshot.
func (rep *Replicator) applyToReplicant(ctx context.Context, r *Replicant, ops []Operation) error {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	r.mu.Lock()
	oldValue := toPlain(r.root)
	r.mu.Unlock()

	for _, op := range ops {
		if err := r.applyRemoteOperation(op); err != nil {
			return err
		}
	}

	r.mu.Lock()
	newValue := toPlain(r.root)
	newRevision := r.revision.Add(1)
	r.mu.Unlock()

	capitan.Emit(ctx, ReplicatorOperationApplied,
		KeyNamespace.Field(r.namespace),
		KeyName.Field(r.name),
		KeyRevision.Field(int(newRevision)),
		KeyOperationCount.Field(len(ops)),
	)

	r.emitter.emit(newValue, oldValue, ops)
	return nil
}

// dispatchFlush hands a locally flushed batch to the broadcast pipeline
// and, if the Replicant is persistent, schedules a debounced durable
// write.
func (rep *Replicator) dispatchFlush(ctx context.Context, r *Replicant, revision int64, ops []Operation, value any) {
	req := &flushRequest{Replicant: r, Revision: revision, Ops: ops, Value: value}
	if _, err := rep.broadcastPipeline.Process(ctx, req); err != nil {
		capitan.Emit(ctx, ReplicatorBroadcastFailed,
			KeyNamespace.Field(r.namespace),
			KeyName.Field(r.name),
			KeyError.Field(err.Error()),
		)
	}

	if r.opts.Persistent {
		rep.schedulePersist(r, value, revision)
	}
}

func (rep *Replicator) schedulePersist(r *Replicant, value any, revision int64) {
	interval := r.opts.PersistenceInterval
	if interval <= 0 {
		interval = DefaultPersistenceInterval
	}

	rep.persistenceMu.Lock()
	ps, ok := rep.persistence[r]
	if !ok {
		ps = newPersistenceState()
		rep.persistence[r] = ps
	}
	rep.persistenceMu.Unlock()

	ps.mu.Lock()
	ps.pending = value
	ps.revision = revision
	startTimer := ps.timer == nil
	if startTimer {
		ps.timer = rep.clock.NewTimer(interval)
	}
	timer := ps.timer
	ps.mu.Unlock()

	if startTimer {
		go func() {
			<-timer.C()
			rep.flushPersist(r, ps)
		}()
	}
}

func (rep *Replicator) flushPersist(r *Replicant, ps *persistenceState) {
	ps.mu.Lock()
	value := ps.pending
	revision := ps.revision
	ps.timer = nil
	ps.mu.Unlock()

	ctx := context.Background()
	if err := rep.store.Save(ctx, r.namespace, r.name, value, revision); err != nil {
		ps.errs.push(err)
		capitan.Emit(ctx, ReplicantPersistenceFailed,
			KeyNamespace.Field(r.namespace),
			KeyName.Field(r.name),
			KeyError.Field(err.Error()),
		)
		interval := r.opts.PersistenceInterval
		if interval <= 0 {
			interval = DefaultPersistenceInterval
		}
		ps.mu.Lock()
		if ps.timer == nil {
			timer := rep.clock.NewTimer(interval)
			ps.timer = timer
			go func() {
				<-timer.C()
				rep.flushPersist(r, ps)
			}()
		}
		ps.mu.Unlock()
	}
}

// applyRemoteOperation applies one already-validated Operation directly to
// r's raw value tree. It never re-runs the schema gate: schema validation
// is the originating side's responsibility before it ever broadcasts an
// operation.
func (r *Replicant) applyRemoteOperation(op Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reg.suspend(r)
	defer r.reg.resume(r)

	switch op.Method {
	case MethodOverwrite:
		boxed, err := box(op.Args["newValue"])
		if err != nil {
			return err
		}
		old := r.root
		r.root = boxed
		if isComposite(old) {
			r.reg.release(old)
		}
		return r.wrapIfCompositeLocked(boxed, "")

	case MethodAdd, MethodUpdate:
		prop, _ := op.Args["prop"].(string)
		container, containerPath, err := resolveMutationContainer(r.root, op.Path, prop)
		if err != nil {
			return err
		}
		boxed, err := box(op.Args["newValue"])
		if err != nil {
			return err
		}
		existing := existingProp(container, prop)
		if err := setContainerProp(container, prop, boxed); err != nil {
			return err
		}
		if isComposite(existing) {
			r.reg.release(existing)
		}
		return r.wrapIfCompositeLocked(boxed, JoinPath(containerPath, prop))

	case MethodDelete:
		prop, _ := op.Args["prop"].(string)
		container, _, err := resolveMutationContainer(r.root, op.Path, prop)
		if err != nil {
			return err
		}
		existing := existingProp(container, prop)
		deleteContainerProp(container, prop)
		if isComposite(existing) {
			r.reg.release(existing)
		}
		return nil

	default:
		if !op.Method.IsArrayMutator() {
			panicUnknownMethod(op.Method)
		}
		target, err := resolveContainer(r.root, op.Path)
		if err != nil {
			return err
		}
		arr, ok := target.(*Array)
		if !ok {
			return fmt.Errorf("replicant: remote array mutator applied to a non-array")
		}
		var margs []any
		if v, ok := op.Args["mutatorArgs"].([]any); ok {
			margs = v
		}
		if _, err := mutateArray(arr, op.Method, margs); err != nil {
			return err
		}
		return r.rewrapArrayChildrenLocked(arr, op.Path)
	}
}

// resolveMutationContainer resolves the container and container path a
// MethodAdd/MethodUpdate/MethodDelete Operation applies against. An
// array-index write leaves Operation.Path pointing at the array itself
// (prop is the index, distinct from the array's own key in its parent),
// while an object-key write joins prop into Operation.Path (see
// writeProperty/deleteProperty). The two conventions are told apart by
// whether the operation's own path already ends in prop: if it does, path
// is the full leaf path and the container is its parent; if it doesn't,
// path is the container path already.
func resolveMutationContainer(root any, path, prop string) (container any, containerPath string, err error) {
	if lastPathSegment(path) == prop {
		containerPath = parentPath(path)
		container, err = resolveContainer(root, containerPath)
		return container, containerPath, err
	}
	container, err = resolveContainer(root, path)
	return container, path, err
}

func parentPath(path string) string {
	segs := SplitPath(path)
	if len(segs) <= 1 {
		return ""
	}
	parent := ""
	for _, s := range segs[:len(segs)-1] {
		parent = JoinPath(parent, s)
	}
	return parent
}

func existingProp(container any, prop string) any {
	switch c := container.(type) {
	case *Object:
		v, _ := c.get(prop)
		return v
	case *Array:
		if idx, err := strconv.Atoi(prop); err == nil {
			v, _ := c.get(idx)
			return v
		}
	}
	return nil
}
