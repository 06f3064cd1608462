package replicant

import "context"

// SchemaSource observes an external location for a JSON-Schema document
// and emits raw bytes whenever the document changes. Implementations must
// emit the current contents immediately upon Watch() being called: a
// Replicator compiles that first document at declaration time and does
// not apply later emissions.
//
// pkg/file implements SchemaSource over the local filesystem via fsnotify.
type SchemaSource interface {
	// Watch begins observing the source and returns a channel that emits
	// raw bytes when the schema document changes. The channel is closed
	// when the context is canceled or an unrecoverable error occurs.
	Watch(ctx context.Context) (<-chan []byte, error)
}
