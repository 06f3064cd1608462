package replicant

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultPersistenceInterval is the debounce window applied to durable
// writes when Opts.PersistenceInterval is left zero.
const DefaultPersistenceInterval = 2 * time.Second

// validate is the shared validator instance for Opts.
var validate = validator.New()

// Opts configures a Replicant at declaration time.
type Opts struct {
	// Persistent marks the value for durable storage via the owning
	// Replicator's PersistentStore, debounced by PersistenceInterval.
	Persistent bool

	// PersistenceInterval is the debounce window between durable writes.
	// Ignored unless Persistent is set. Defaults to DefaultPersistenceInterval.
	PersistenceInterval time.Duration `validate:"omitempty,min=0"`

	// SchemaPath, if non-empty, names a schema this value must satisfy.
	// The Replicator resolves it via its configured SchemaSource.
	SchemaPath string

	// DefaultValue seeds the value when no persisted value is found (or
	// Persistent is false). Must be JSON-compatible.
	DefaultValue any
}

func (o Opts) validated() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("replicant: invalid opts: %w", err)
	}
	return nil
}

// Replicant is a named, namespaced, schema-validated observable value with
// deep mutation tracking. Every mutation, however deeply nested, is
// intercepted, validated against the value's schema before being applied,
// and queued as an Operation for delivery to subscribers at end of turn.
//
// The zero value is not usable; construct one via Replicator.FindOrDeclare.
type Replicant struct {
	namespace     string
	name          string
	authoritative bool
	reg           *registry
	clock         clockz.Clock
	syncMode      bool
	flushDebounce time.Duration
	replicator    *Replicator

	status   atomic.Int32
	revision atomic.Int64

	// applyMu serializes Replicator.Apply for this Replicant, guaranteeing
	// inbound remote operation batches are applied in arrival order and
	// never interleaved with one another.
	applyMu sync.Mutex

	mu               sync.Mutex
	root             any // *Object, *Array, a scalar, or nil (undeclared)
	schema           *compiledSchema
	schemaPath       string
	validationErrors []ValidationErrorDetail

	queue        []Operation
	pendingFlush bool
	turnOldValue any
	flushTimer   clockz.Timer

	opts Opts

	emitter *emitter
}

func newReplicant(namespace, name string, authoritative bool, opts Opts, reg *registry, clock clockz.Clock) *Replicant {
	r := &Replicant{
		namespace:     namespace,
		name:          name,
		authoritative: authoritative,
		reg:           reg,
		clock:         clock,
		flushDebounce: 0,
		opts:          opts,
		emitter:       newEmitter(),
	}
	r.status.Store(int32(StatusUndeclared))
	return r
}

// Namespace returns the Replicant's namespace.
func (r *Replicant) Namespace() string { return r.namespace }

// Name returns the Replicant's name.
func (r *Replicant) Name() string { return r.name }

// Status returns the current declaration-lifecycle status.
func (r *Replicant) Status() Status { return Status(r.status.Load()) }

// Revision returns the current revision number. It is zero until the
// first non-empty flush or applied remote operation batch.
func (r *Replicant) Revision() int64 { return r.revision.Load() }

// ValidationErrors returns the errors from the most recent failed
// validation, or an empty slice if the value has never failed validation.
func (r *Replicant) ValidationErrors() []ValidationErrorDetail {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ValidationErrorDetail, len(r.validationErrors))
	copy(out, r.validationErrors)
	return out
}

// Value returns the current value: a *Node if it is an object or array
// (through which nested mutations are made), or the scalar/nil value
// itself otherwise.
func (r *Replicant) Value() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.valueLocked()
}

func (r *Replicant) valueLocked() any {
	if isComposite(r.root) {
		return r.wrapChildLocked(r.root, "")
	}
	return r.root
}

// setStatus transitions status, emitting ReplicantStatusChanged and, on
// reaching StatusDeclared, ReplicantDeclared.
func (r *Replicant) setStatus(ctx context.Context, s Status) {
	old := Status(r.status.Swap(int32(s)))
	if old == s {
		return
	}
	capitan.Emit(ctx, ReplicantStatusChanged,
		KeyNamespace.Field(r.namespace),
		KeyName.Field(r.name),
		KeyOldStatus.Field(old.String()),
		KeyNewStatus.Field(s.String()),
	)
	if s == StatusDeclared {
		capitan.Emit(ctx, ReplicantDeclared,
			KeyNamespace.Field(r.namespace),
			KeyName.Field(r.name),
		)
	}
}

// declare seeds the initial value (from persisted if found and it
// validates against schema, falling back to opts.DefaultValue otherwise),
// takes ownership of any composites in it, and transitions to
// StatusDeclared.
func (r *Replicant) declare(ctx context.Context, schema *compiledSchema, schemaPath string, persisted any, persistedFound bool) error {
	r.setStatus(ctx, StatusDeclaring)

	r.mu.Lock()
	r.schema = schema
	r.schemaPath = schemaPath

	initial := r.opts.DefaultValue
	if persistedFound {
		boxedPersisted, err := box(persisted)
		if err == nil {
			if schema == nil || len(schema.validate(toPlain(boxedPersisted))) == 0 {
				initial = persisted
			} else {
				capitan.Emit(ctx, ReplicantPersistedValueRejected,
					KeyNamespace.Field(r.namespace),
					KeyName.Field(r.name),
				)
			}
		}
	}

	boxed, err := box(initial)
	if err != nil {
		r.mu.Unlock()
		return &InvalidDeclarationError{Namespace: r.namespace, Name: r.name, Reason: err.Error()}
	}
	r.root = boxed
	r.mu.Unlock()

	if err := r.wrapIfComposite(boxed, ""); err != nil {
		return &InvalidDeclarationError{Namespace: r.namespace, Name: r.name, Reason: err.Error()}
	}

	r.setStatus(ctx, StatusDeclared)
	return nil
}

// On registers fn to run after every flush and returns an unsubscribe
// function. If the Replicant is already declared, fn is also invoked
// synchronously right away with the current value and no oldValue/ops.
func (r *Replicant) On(event string, fn ChangeHandler) func() {
	if event != "change" {
		return func() {}
	}
	unsubscribe := r.emitter.on(fn, false)
	if r.Status() == StatusDeclared {
		fn(r.Value(), nil, nil)
	}
	return unsubscribe
}

// Once registers fn to run after the next flush only. If the Replicant is
// already declared, fn is invoked synchronously right away with the
// current value and no oldValue/ops, and is never rearmed for a later
// flush.
func (r *Replicant) Once(event string, fn ChangeHandler) func() {
	if event != "change" {
		return func() {}
	}
	if r.Status() == StatusDeclared {
		fn(r.Value(), nil, nil)
		return func() {}
	}
	return r.emitter.on(fn, true)
}

// Update calls fn with the value's root Node, so multiple mutations can be
// made in a single synchronous pass. All mutations made inside fn are
// coalesced by the ordinary end-of-turn flush.
func (r *Replicant) Update(fn func(*Node)) error {
	v := r.Value()
	node, ok := v.(*Node)
	if !ok {
		return fmt.Errorf("replicant: %s/%s does not hold an object or array", r.namespace, r.name)
	}
	fn(node)
	return nil
}

// SetValue replaces the entire value, per the overwrite Method: a schema
// dry-run against the candidate, then (on success) an enqueue that
// truncates every other queued operation for this turn.
func (r *Replicant) SetValue(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	boxed, err := box(v)
	if err != nil {
		return err
	}
	if isComposite(boxed) {
		if err := r.reg.checkOwnership(r, boxed); err != nil {
			return err
		}
	}

	if r.schema != nil {
		if err := r.validateClone(boxed); err != nil {
			capitan.Emit(context.Background(), ReplicantValidationFailed,
				KeyNamespace.Field(r.namespace),
				KeyName.Field(r.name),
			)
			return err
		}
	}

	r.enqueueLocked(Operation{Path: "", Method: MethodOverwrite, Args: map[string]any{"newValue": toPlain(boxed)}})

	if r.authoritative {
		old := r.root
		r.root = boxed
		if isComposite(old) {
			r.reg.release(old)
		}
		if err := r.wrapIfCompositeLocked(boxed, ""); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks candidate against the value's schema without mutating
// anything. If throwOnInvalid is false, ok reports validity and err is
// always nil; if true, err is a *SchemaValidationError on failure.
func (r *Replicant) Validate(candidate any, throwOnInvalid bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.schema == nil {
		return true, nil
	}
	boxed, err := box(candidate)
	if err != nil {
		if throwOnInvalid {
			return false, err
		}
		return false, nil
	}
	if err := r.validateClone(boxed); err != nil {
		if throwOnInvalid {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *Replicant) validateClone(root any) error {
	plain := toPlain(root)
	if errs := r.schema.validate(plain); len(errs) > 0 {
		r.validationErrors = errs
		return &SchemaValidationError{Namespace: r.namespace, Name: r.name, Errors: errs}
	}
	return nil
}

// -----------------------------------------------------------------------
// Node call-throughs
// -----------------------------------------------------------------------

func (r *Replicant) wrapChild(raw any, path string) *Node {
	return &Node{owner: r, raw: raw, path: path}
}

func (r *Replicant) wrapChildLocked(raw any, path string) *Node {
	return r.wrapChild(raw, path)
}

// writeProperty implements the Write contract for a single object key or
// array index: no-op on strict equality, then dry-run validate, enqueue,
// and (authoritative side only) write-through.
func (r *Replicant) writeProperty(container any, path, prop string, incoming any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	boxed, err := box(incoming)
	if err != nil {
		return err
	}
	if isComposite(boxed) {
		if err := r.reg.checkOwnership(r, boxed); err != nil {
			capitan.Emit(context.Background(), ReplicantOwnershipRejected,
				KeyNamespace.Field(r.namespace),
				KeyName.Field(r.name),
			)
			return err
		}
	}

	var existing any
	var existed bool
	switch c := container.(type) {
	case *Object:
		existing, existed = c.get(prop)
	case *Array:
		idx, convErr := strconv.Atoi(prop)
		if convErr != nil {
			return fmt.Errorf("replicant: invalid array index %q", prop)
		}
		existing, existed = c.get(idx)
	}

	if existed && valuesStrictEqual(existing, boxed) {
		return nil
	}

	if r.reg.isSuspended(r) {
		if err := setContainerProp(container, prop, boxed); err != nil {
			return err
		}
		return r.wrapIfCompositeLocked(boxed, JoinPath(path, prop))
	}

	if err := r.dryRunPropertyWrite(path, prop, boxed); err != nil {
		capitan.Emit(context.Background(), ReplicantValidationFailed,
			KeyNamespace.Field(r.namespace),
			KeyName.Field(r.name),
			KeyPath.Field(path),
		)
		return err
	}

	method := MethodAdd
	if existed {
		method = MethodUpdate
	}
	opPath := path
	if _, isObject := container.(*Object); isObject {
		opPath = JoinPath(path, prop)
	}
	r.enqueueLocked(Operation{Path: opPath, Method: method, Args: map[string]any{"prop": prop, "newValue": toPlain(boxed)}})

	if !r.authoritative {
		return nil
	}

	if existed && isComposite(existing) {
		r.reg.release(existing)
	}
	if err := setContainerProp(container, prop, boxed); err != nil {
		return err
	}
	return r.wrapIfCompositeLocked(boxed, JoinPath(path, prop))
}

// deleteProperty implements the Delete contract for an object key.
func (r *Replicant) deleteProperty(container any, path, prop string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := container.(*Object)
	if !ok {
		return fmt.Errorf("replicant: delete is only supported on objects")
	}
	existing, existed := obj.get(prop)
	if !existed {
		return nil
	}

	if r.reg.isSuspended(r) {
		deleteContainerProp(container, prop)
		if isComposite(existing) {
			r.reg.release(existing)
		}
		return nil
	}

	if err := r.dryRunPropertyDelete(path, prop); err != nil {
		capitan.Emit(context.Background(), ReplicantValidationFailed,
			KeyNamespace.Field(r.namespace),
			KeyName.Field(r.name),
			KeyPath.Field(path),
		)
		return err
	}

	r.enqueueLocked(Operation{Path: JoinPath(path, prop), Method: MethodDelete, Args: map[string]any{"prop": prop}})

	if !r.authoritative {
		return nil
	}

	deleteContainerProp(container, prop)
	if isComposite(existing) {
		r.reg.release(existing)
	}
	return nil
}

// runArrayMutator implements the array-mutator Write contract: dry-run
// against a clone using the generic mutatorArgs from args, enqueue, and
// (authoritative side only) apply mutateFn to the live array and re-wrap
// its children.
func (r *Replicant) runArrayMutator(arr *Array, path string, method Method, args map[string]any, mutateFn func(*Array)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reg.isSuspended(r) {
		mutateFn(arr)
		return r.rewrapArrayChildrenLocked(arr, path)
	}

	var margs []any
	if args != nil {
		if v, ok := args["mutatorArgs"].([]any); ok {
			margs = v
		}
	}
	if err := r.dryRunArrayMutator(path, method, margs); err != nil {
		capitan.Emit(context.Background(), ReplicantValidationFailed,
			KeyNamespace.Field(r.namespace),
			KeyName.Field(r.name),
			KeyPath.Field(path),
			KeyMethod.Field(string(method)),
		)
		return err
	}

	prop := lastPathSegment(path)
	opArgs := map[string]any{"prop": prop}
	if margs != nil {
		opArgs["mutatorArgs"] = margs
	}
	r.enqueueLocked(Operation{Path: path, Method: method, Args: opArgs})

	if !r.authoritative {
		return nil
	}

	mutateFn(arr)
	return r.rewrapArrayChildrenLocked(arr, path)
}

// -----------------------------------------------------------------------
// Dry-run validation (schema gate)
// -----------------------------------------------------------------------

func (r *Replicant) dryRunPropertyWrite(path, prop string, boxedValue any) error {
	if r.schema == nil {
		return nil
	}
	cloneRoot := deepCloneRaw(r.root)
	container, err := resolveContainer(cloneRoot, path)
	if err != nil {
		return err
	}
	if err := setContainerProp(container, prop, deepCloneRaw(boxedValue)); err != nil {
		return err
	}
	return r.validateClone(cloneRoot)
}

func (r *Replicant) dryRunPropertyDelete(path, prop string) error {
	if r.schema == nil {
		return nil
	}
	cloneRoot := deepCloneRaw(r.root)
	container, err := resolveContainer(cloneRoot, path)
	if err != nil {
		return err
	}
	deleteContainerProp(container, prop)
	return r.validateClone(cloneRoot)
}

func (r *Replicant) dryRunArrayMutator(path string, method Method, margs []any) error {
	if r.schema == nil {
		return nil
	}
	cloneRoot := deepCloneRaw(r.root)
	target, err := resolveContainer(cloneRoot, path)
	if err != nil {
		return err
	}
	arr, ok := target.(*Array)
	if !ok {
		return fmt.Errorf("replicant: path %q is not an array", path)
	}
	if _, err := mutateArray(arr, method, margs); err != nil {
		return err
	}
	return r.validateClone(cloneRoot)
}

// -----------------------------------------------------------------------
// Ownership wrapping
// -----------------------------------------------------------------------

func (r *Replicant) wrapIfComposite(v any, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wrapIfCompositeLocked(v, path)
}

func (r *Replicant) wrapIfCompositeLocked(v any, path string) error {
	if !isComposite(v) {
		return nil
	}
	if err := r.reg.wrap(r, v, path); err != nil {
		return err
	}
	switch t := v.(type) {
	case *Object:
		for _, k := range t.Keys() {
			child, _ := t.get(k)
			if isComposite(child) {
				if err := r.wrapIfCompositeLocked(child, JoinPath(path, k)); err != nil {
					return err
				}
			}
		}
	case *Array:
		for i, child := range t.snapshot() {
			if isComposite(child) {
				if err := r.wrapIfCompositeLocked(child, JoinPath(path, strconv.Itoa(i))); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (r *Replicant) rewrapArrayChildrenLocked(arr *Array, path string) error {
	for i, v := range arr.snapshot() {
		if isComposite(v) {
			if err := r.wrapIfCompositeLocked(v, JoinPath(path, strconv.Itoa(i))); err != nil {
				return err
			}
		}
	}
	return nil
}

// -----------------------------------------------------------------------
// Queue and flush
// -----------------------------------------------------------------------

// MaxQueueDepth is the number of queued operations at which a Replicant
// starts an immediate flush on a new goroutine instead of waiting for the
// normal end-of-turn debounce, bounding memory use under sustained write
// bursts. The mutating call does not wait for that flush.
const MaxQueueDepth = 10000

// enqueueLocked appends op to the pending queue, applying the overwrite
// coalescing rule (an overwrite discards every other pending op for the
// subtree it replaces) and scheduling (or forcing) a flush. r.mu must be
// held.
func (r *Replicant) enqueueLocked(op Operation) {
	if len(r.queue) == 0 {
		r.turnOldValue = toPlain(deepCloneRaw(r.root))
	}

	if op.Method == MethodOverwrite {
		kept := r.queue[:0]
		for _, existing := range r.queue {
			if !isUnderOrEqualPath(existing.Path, op.Path) {
				kept = append(kept, existing)
			}
		}
		r.queue = kept
	}
	r.queue = append(r.queue, op)

	forceSync := len(r.queue) >= MaxQueueDepth

	if !r.pendingFlush {
		r.pendingFlush = true
		if !r.syncMode && !forceSync {
			r.scheduleFlushLocked()
		}
	}

	if forceSync {
		go r.Flush(context.Background())
	}
}

func isUnderOrEqualPath(path, root string) bool {
	if root == "" {
		return true
	}
	return path == root || len(path) > len(root) && path[:len(root)+1] == root+"/"
}

func (r *Replicant) scheduleFlushLocked() {
	clock := r.clock
	if clock == nil {
		clock = clockz.RealClock
	}
	timer := clock.NewTimer(r.flushDebounce)
	r.flushTimer = timer
	go func() {
		<-timer.C()
		r.Flush(context.Background())
	}()
}

// Flush processes the pending operation queue: it advances the revision,
// hands the batch to the owning Replicator for persistence and broadcast
// (if any), and fires change listeners. Flush is normally called
// automatically at end of turn; call it directly when running in sync
// mode (see WithSyncMode).
func (r *Replicant) Flush(ctx context.Context) {
	r.mu.Lock()
	if len(r.queue) == 0 {
		r.pendingFlush = false
		r.flushTimer = nil
		r.mu.Unlock()
		return
	}
	ops := r.queue
	r.queue = nil
	oldValue := r.turnOldValue
	r.turnOldValue = nil
	r.pendingFlush = false
	r.flushTimer = nil
	newRevision := r.revision.Add(1)
	newValue := toPlain(r.root)
	replicatorRef := r.replicator
	r.mu.Unlock()

	capitan.Emit(ctx, ReplicantFlushed,
		KeyNamespace.Field(r.namespace),
		KeyName.Field(r.name),
		KeyRevision.Field(int(newRevision)),
		KeyOperationCount.Field(len(ops)),
	)

	if replicatorRef != nil {
		replicatorRef.dispatchFlush(ctx, r, newRevision, ops, newValue)
	}

	r.emitter.emit(newValue, oldValue, ops)
}
