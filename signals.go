package replicant

import "github.com/zoobzio/capitan"

// Replicant lifecycle signals.
var (
	// ReplicantDeclared is emitted when a Replicant reaches StatusDeclared.
	ReplicantDeclared = capitan.NewSignal(
		"replicant.declared",
		"Replicant declared",
	)

	// ReplicantStatusChanged is emitted when a Replicant transitions between
	// statuses.
	ReplicantStatusChanged = capitan.NewSignal(
		"replicant.status.changed",
		"Replicant status transition",
	)

	// ReplicantFlushed is emitted when a non-empty operation queue is
	// flushed and the revision advances.
	ReplicantFlushed = capitan.NewSignal(
		"replicant.flushed",
		"Operation queue flushed",
	)
)

// Validation and ownership signals.
var (
	// ReplicantValidationFailed is emitted when a proposed mutation fails
	// schema validation.
	ReplicantValidationFailed = capitan.NewSignal(
		"replicant.validation.failed",
		"Schema validation failed",
	)

	// ReplicantOwnershipRejected is emitted when a composite already owned
	// by another Replicant is grafted into this one.
	ReplicantOwnershipRejected = capitan.NewSignal(
		"replicant.ownership.rejected",
		"Cross-ownership graft rejected",
	)

	// ReplicantPersistedValueRejected is emitted when a persisted value
	// fails validation at declare time and defaultValue is used instead.
	ReplicantPersistedValueRejected = capitan.NewSignal(
		"replicant.persisted_value.rejected",
		"Persisted value failed validation at declare",
	)
)

// Persistence and dispatch signals.
var (
	// ReplicantPersistenceFailed is emitted when a durable write fails.
	ReplicantPersistenceFailed = capitan.NewSignal(
		"replicant.persistence.failed",
		"Durable store write failed",
	)

	// ReplicatorBroadcastFailed is emitted when delivering a flushed batch
	// to a Broadcaster fails (after any configured retries).
	ReplicatorBroadcastFailed = capitan.NewSignal(
		"replicator.broadcast.failed",
		"Broadcast delivery failed",
	)

	// ReplicatorOperationApplied is emitted after an inbound remote
	// operation batch has been applied to a Replicant.
	ReplicatorOperationApplied = capitan.NewSignal(
		"replicator.operation.applied",
		"Remote operation batch applied",
	)

	// ReplicatorOperationBuffered is emitted when an inbound operation
	// batch is buffered because its Replicant is not yet known/declared.
	ReplicatorOperationBuffered = capitan.NewSignal(
		"replicator.operation.buffered",
		"Remote operation batch buffered pending declaration",
	)

	// ReplicatorOperationDropped is emitted when an inbound operation batch
	// is dropped, either because the buffer for its Replicant is full or
	// because the bounded wait for declaration expired.
	ReplicatorOperationDropped = capitan.NewSignal(
		"replicator.operation.dropped",
		"Buffered operation batch dropped",
	)
)
