package replicant

import "fmt"

// ValidationErrorDetail describes one JSON-Schema failure.
type ValidationErrorDetail struct {
	Field    string `json:"field"`
	Message  string `json:"message"`
	Expected string `json:"expected,omitempty"`
	Value    any    `json:"value,omitempty"`
}

// SchemaValidationError reports that a proposed mutation would leave the
// value in a state that violates its schema. The live value is never
// mutated when this error is returned.
type SchemaValidationError struct {
	Namespace string
	Name      string
	Errors    []ValidationErrorDetail
}

func (e *SchemaValidationError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("replicant: schema validation failed for %s/%s", e.Namespace, e.Name)
	}
	return fmt.Sprintf("replicant: schema validation failed for %s/%s: %s", e.Namespace, e.Name, e.Errors[0].Message)
}

// CrossOwnershipError reports that a composite value already owned by one
// Replicant was assigned into another.
type CrossOwnershipError struct {
	TargetNamespace string
	TargetName      string
	OwnerNamespace  string
	OwnerName       string
}

func (e *CrossOwnershipError) Error() string {
	return fmt.Sprintf(
		"replicant: cannot graft value owned by %s/%s into %s/%s",
		e.OwnerNamespace, e.OwnerName, e.TargetNamespace, e.TargetName,
	)
}

// InvalidDeclarationError reports an empty name/namespace or an initial
// value that cannot be taken into a Replicant. Redeclaring an existing
// name is not checked for conflicting options: FindOrDeclare returns the
// existing Replicant.
type InvalidDeclarationError struct {
	Namespace string
	Name      string
	Reason    string
}

func (e *InvalidDeclarationError) Error() string {
	return fmt.Sprintf("replicant: invalid declaration for %s/%s: %s", e.Namespace, e.Name, e.Reason)
}

// UnknownReplicantError reports that a remote operation referenced a
// (namespace, name) pair this side has never heard of, and the bounded
// wait for it to be declared expired.
type UnknownReplicantError struct {
	Namespace string
	Name      string
}

func (e *UnknownReplicantError) Error() string {
	return fmt.Sprintf("replicant: unknown replicant %s/%s", e.Namespace, e.Name)
}

// UndeclaredReplicantError reports that a remote operation arrived for a
// Replicant that exists locally but has not yet reached StatusDeclared.
type UndeclaredReplicantError struct {
	Namespace string
	Name      string
}

func (e *UndeclaredReplicantError) Error() string {
	return fmt.Sprintf("replicant: undeclared replicant %s/%s", e.Namespace, e.Name)
}

// PersistenceError reports a durable-store write failure. It is
// recoverable: in-memory mutation is never blocked by it, and the write
// is retried on the next persistence tick.
type PersistenceError struct {
	Namespace string
	Name      string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("replicant: persistence failed for %s/%s: %v", e.Namespace, e.Name, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UnknownOperationMethodError reports a Method that no code path knows how
// to apply. This is a fatal programmer error: it is never returned from a
// public API, only passed to a panic (see panicUnknownMethod).
type UnknownOperationMethodError struct {
	Method Method
}

func (e *UnknownOperationMethodError) Error() string {
	return fmt.Sprintf("replicant: unknown operation method %q", e.Method)
}

func panicUnknownMethod(m Method) {
	panic(&UnknownOperationMethodError{Method: m})
}
