package replicant

import "github.com/zoobzio/capitan"

// Field keys for Replicant and Replicator events.
var (
	// KeyNamespace is the namespace of the affected Replicant.
	KeyNamespace = capitan.NewStringKey("namespace")

	// KeyName is the name of the affected Replicant.
	KeyName = capitan.NewStringKey("name")

	// KeyOldStatus is the previous status before a transition.
	KeyOldStatus = capitan.NewStringKey("old_status")

	// KeyNewStatus is the new status after a transition.
	KeyNewStatus = capitan.NewStringKey("new_status")

	// KeyRevision is the revision number after a flush.
	KeyRevision = capitan.NewIntKey("revision")

	// KeyOperationCount is the number of operations in a flushed batch.
	KeyOperationCount = capitan.NewIntKey("operation_count")

	// KeyMethod is the Method of an emitted or applied Operation.
	KeyMethod = capitan.NewStringKey("method")

	// KeyPath is the Path of an emitted or applied Operation.
	KeyPath = capitan.NewStringKey("path")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyOwnerNamespace is the namespace of a Replicant that already owns a
	// composite value, reported on a CrossOwnershipError.
	KeyOwnerNamespace = capitan.NewStringKey("owner_namespace")

	// KeyOwnerName is the name of a Replicant that already owns a composite
	// value, reported on a CrossOwnershipError.
	KeyOwnerName = capitan.NewStringKey("owner_name")

	// KeyPersistenceInterval is the configured persistence debounce window.
	KeyPersistenceInterval = capitan.NewDurationKey("persistence_interval")

	// KeySchemaSum is the content hash of a compiled schema.
	KeySchemaSum = capitan.NewStringKey("schema_sum")
)
