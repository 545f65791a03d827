// Package memory persists chat sessions.
//
// A Store is a flat key-value namespace over some medium; Snapshots layers
// named session snapshots on top of it. A snapshot captures the committed
// token history and turn structure of a session so it can be restored
// later with /load. Snapshots are encoded as deterministic CBOR and
// compressed with zstd.
package memory

import "context"

// Store translates between external storage and the key-value namespace.
// Implementations are stateless apart from the medium itself.
type Store interface {
	// List returns all available keys in the store.
	List(ctx context.Context) ([]string, error)
	// Load retrieves entries for the specified keys.
	Load(ctx context.Context, keys ...string) ([]Entry, error)
	// Save persists entries to storage, creating or overwriting as needed.
	Save(ctx context.Context, entries ...Entry) error
	// Delete removes entries from storage. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// Entry is a key-value pair. Keys are /-separated paths and values are
// raw bytes.
type Entry struct {
	Key   string
	Value []byte
}
