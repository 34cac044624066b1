package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no object exists at the requested path.
var ErrNotFound = errors.New("blob not found")

// Store is the narrow object-storage contract the pipeline depends on.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the full contents of the object at path.
	Get(ctx context.Context, path string) ([]byte, error)

	// Put writes data at path and returns the resulting storage location.
	// Writing to an existing path overwrites it.
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
}
