package replicant

// Status represents the declaration lifecycle of a Replicant.
type Status int32

const (
	// StatusUndeclared indicates the Replicant has been constructed but has
	// not yet completed the declare handshake with its Replicator.
	StatusUndeclared Status = iota

	// StatusDeclaring indicates a declare handshake is in flight. Remote
	// operation batches that arrive in this state are buffered by
	// Replicator.Apply and applied once StatusDeclared is reached.
	StatusDeclaring

	// StatusDeclared is the terminal state: the Replicant has an
	// authoritative initial value and revision and accepts mutations.
	StatusDeclared
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusUndeclared:
		return "undeclared"
	case StatusDeclaring:
		return "declaring"
	case StatusDeclared:
		return "declared"
	default:
		return "unknown"
	}
}
