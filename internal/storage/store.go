package storage

import "context"

// StoredObject identifies a persisted artifact and where the outside world
// can fetch it.
type StoredObject struct {
	ID        string
	Key       string
	PublicURL string
	Bytes     int64
}

// Store is the artifact storage collaborator. Save either succeeds or
// returns an error matching domain.ErrCapacityExceeded when the backend is
// full; callers check EnsureCapacity before large uploads since backends
// differ in whether they reject proactively or after transfer.
type Store interface {
	Save(ctx context.Context, data []byte, filename, mimeType, destination string) (StoredObject, error)
	Read(ctx context.Context, key string) ([]byte, error)
	EnsureCapacity(ctx context.Context, size int64) error
}
