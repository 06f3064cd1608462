/*
Package replicant provides named, namespaced, schema-validated observable
values with deep mutation tracking, for synchronizing live application
state across processes.

A Replicant wraps a JSON-compatible value tree. Every mutation, however
deeply nested, goes through the value's Node handle rather than a direct
assignment, so it can be validated against the value's schema before it is
ever applied and queued as an Operation for delivery to subscribers.

# Declaring a value

Replicants are declared through a Replicator, which resolves the value's
schema, loads any persisted value, and hands back a ready-to-use handle:

	rep := replicant.New(
	    replicant.WithBroadcaster(broadcaster),
	    replicant.WithPersistentStore(store),
	)

	scoreboard, err := rep.FindOrDeclare(ctx, "match-42", "scoreboard", replicant.Opts{
	    DefaultValue: map[string]any{"home": 0, "away": 0},
	})

# Mutating a value

Scalars are read and replaced directly with Value/SetValue. Objects and
arrays are read and mutated through the *Node handle Value returns:

	node := scoreboard.Value().(*replicant.Node)
	home, _ := node.Get("home")
	_ = node.Set("home", home.(float64)+1)

Multiple mutations made synchronously inside Update are coalesced into a
single flush:

	scoreboard.Update(func(n *replicant.Node) {
	    _ = n.Set("home", 1)
	    _ = n.Set("away", 0)
	})

# Change notification

	unsubscribe := scoreboard.On("change", func(newValue, oldValue any, ops []replicant.Operation) {
	    log.Printf("scoreboard now %v (was %v)", newValue, oldValue)
	})
	defer unsubscribe()

# Schema validation

A Replicant declared with a SchemaPath rejects any mutation that would
leave its value in a state that fails the schema, before that mutation is
ever applied:

	events, err := rep.FindOrDeclare(ctx, "match-42", "events", replicant.Opts{
	    SchemaPath:   "events.schema.json",
	    DefaultValue: []any{},
	})
	// _, err = events.Value().(*replicant.Node).Push(map[string]any{"bad": true})
	// returns a *replicant.SchemaValidationError; events is unchanged.

# Ownership

A composite value (an object or array) can be owned by only one
Replicant at a time. Assigning a value already owned elsewhere fails with
CrossOwnershipError rather than silently aliasing state between two
Replicants.

# Remote synchronization

Replicator.Apply feeds inbound operation batches (received over whatever
transport a deployment uses; Socket.IO in a live broadcast production
system) into the matching local Replicant, buffering batches that arrive
before their Replicant has been declared. Locally flushed batches are
handed to a Broadcaster for outbound delivery. pkg/wsbroadcast and
pkg/redis provide reference Broadcaster implementations; pkg/postgres and
pkg/redis provide reference PersistentStore implementations; pkg/file
provides a filesystem-backed SchemaSource with hot-reload.

The package is built on top of:
  - capitan: for structured lifecycle and error signals
  - clockz: for injectable time in flush debouncing and persistence
  - pipz: for the composable broadcast delivery pipeline
  - jsonschema-go: for the schema validation gate
*/
package replicant
