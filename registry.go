package replicant

import "sync"

// Object is the raw underlying storage for a JSON object reachable from a
// Replicant's value. It is addressed by pointer identity, which stands in
// for a weak-keyed "raw -> metadata" registry: Go has no proxy traps and
// no weak maps, so ownership is tracked explicitly instead (see DESIGN.md).
type Object struct {
	mu     sync.RWMutex
	fields map[string]any
	order  []string
}

// NewObject constructs an empty Object.
func NewObject() *Object {
	return &Object{fields: make(map[string]any)}
}

func (o *Object) has(key string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.fields[key]
	return ok
}

func (o *Object) get(key string) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.fields[key]
	return v, ok
}

func (o *Object) set(key string, v any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.fields[key]; !exists {
		o.order = append(o.order, key)
	}
	o.fields[key] = v
}

func (o *Object) delete(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.fields[key]; !exists {
		return
	}
	delete(o.fields, key)
	for i, k := range o.order {
		if k == key {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

// Keys returns the object's keys in insertion order.
func (o *Object) Keys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// Array is the raw underlying storage for a JSON array reachable from a
// Replicant's value.
type Array struct {
	mu    sync.RWMutex
	items []any
}

// NewArray constructs an empty Array.
func NewArray() *Array {
	return &Array{}
}

func (a *Array) len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.items)
}

func (a *Array) get(i int) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if i < 0 || i >= len(a.items) {
		return nil, false
	}
	return a.items[i], true
}

func (a *Array) snapshot() []any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]any, len(a.items))
	copy(out, a.items)
	return out
}

// ownerMeta is the metadata a registry keeps per raw composite: which
// Replicant owns it and its current path from that Replicant's root.
type ownerMeta struct {
	owner *Replicant
	path  string
}

// registry is the set of bookkeeping structures backing single-owner
// enforcement and path tracking, scoped process-wide by default or to one
// Replicator when constructed explicitly. It is safe for concurrent use.
type registry struct {
	mu        sync.Mutex
	owners    map[any]*ownerMeta   // raw composite -> owner + path
	suspended map[*Replicant]bool  // replicants with interception suppressed
}

// newRegistry constructs an empty registry.
func newRegistry() *registry {
	return &registry{
		owners:    make(map[any]*ownerMeta),
		suspended: make(map[*Replicant]bool),
	}
}

// defaultRegistry is a process-wide registry. Nothing in this package
// hands it out: every Replicator builds its own with newRegistry, and
// newReplicant takes its registry as a parameter.
var defaultRegistry = newRegistry()

// wrap registers raw as owned by owner at path, or, if raw is already
// owned by owner, updates its stored path (the mechanism by which moving
// a subtree reassigns its paths). It fails with CrossOwnershipError if raw
// is already owned by a different Replicant.
func (r *registry) wrap(owner *Replicant, raw any, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, exists := r.owners[raw]
	if !exists {
		r.owners[raw] = &ownerMeta{owner: owner, path: path}
		return nil
	}
	if meta.owner != owner {
		return &CrossOwnershipError{
			TargetNamespace: owner.namespace,
			TargetName:      owner.name,
			OwnerNamespace:  meta.owner.namespace,
			OwnerName:       meta.owner.name,
		}
	}
	meta.path = path
	return nil
}

// checkOwnership reports a CrossOwnershipError if raw, or anything
// composite reachable from it, is already owned by a Replicant other than
// owner. It performs no writes: ownership is only recorded once the
// mutation that grafts the value actually goes through.
func (r *registry) checkOwnership(owner *Replicant, raw any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkOwnershipLocked(owner, raw)
}

func (r *registry) checkOwnershipLocked(owner *Replicant, raw any) error {
	if meta, ok := r.owners[raw]; ok && meta.owner != owner {
		return &CrossOwnershipError{
			TargetNamespace: owner.namespace,
			TargetName:      owner.name,
			OwnerNamespace:  meta.owner.namespace,
			OwnerName:       meta.owner.name,
		}
	}
	switch t := raw.(type) {
	case *Object:
		for _, k := range t.Keys() {
			if v, ok := t.get(k); ok && isComposite(v) {
				if err := r.checkOwnershipLocked(owner, v); err != nil {
					return err
				}
			}
		}
	case *Array:
		for _, v := range t.snapshot() {
			if isComposite(v) {
				if err := r.checkOwnershipLocked(owner, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// pathOf returns the currently registered path for raw, if any.
func (r *registry) pathOf(raw any) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta, ok := r.owners[raw]
	if !ok {
		return "", false
	}
	return meta.path, true
}

// ownerOf returns the Replicant that owns raw, if any.
func (r *registry) ownerOf(raw any) (*Replicant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta, ok := r.owners[raw]
	if !ok {
		return nil, false
	}
	return meta.owner, true
}

// release removes raw and everything transitively owned by owner rooted
// at raw from the registry. Called whenever a subtree is detached from
// its Replicant's value, most commonly by an overwrite.
func (r *registry) release(raw any) {
	r.mu.Lock()
	delete(r.owners, raw)
	r.mu.Unlock()

	switch t := raw.(type) {
	case *Object:
		for _, k := range t.Keys() {
			if v, ok := t.get(k); ok {
				if isComposite(v) {
					r.release(v)
				}
			}
		}
	case *Array:
		for _, v := range t.snapshot() {
			if isComposite(v) {
				r.release(v)
			}
		}
	}
}

// forgetOwner drops every registry entry owned by owner, used when a
// Replicator forgets a Replicant entirely.
func (r *registry) forgetOwner(owner *Replicant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for raw, meta := range r.owners {
		if meta.owner == owner {
			delete(r.owners, raw)
		}
	}
}

// suspend disables interception for owner. Nested suspension on the same
// Replicant is not supported.
func (r *registry) suspend(owner *Replicant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspended[owner] = true
}

// resume re-enables interception for owner.
func (r *registry) resume(owner *Replicant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.suspended, owner)
}

// isSuspended reports whether interception is currently suppressed for
// owner.
func (r *registry) isSuspended(owner *Replicant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.suspended[owner]
}

// withSuspended brackets fn with suspend/resume on owner, guaranteeing
// resumption on every exit path including panics.
func (r *registry) withSuspended(owner *Replicant, fn func()) {
	r.suspend(owner)
	defer r.resume(owner)
	fn()
}

func isComposite(v any) bool {
	switch v.(type) {
	case *Object, *Array:
		return true
	default:
		return false
	}
}
