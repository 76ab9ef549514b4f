// Package archive keeps a copy of every downloaded attachment before it is
// uploaded to the case-management backend, so a failed journalization can be
// replayed without re-downloading from the form source.
package archive

import (
	"context"
	"io"
)

// StorageDriver defines how archived attachment bytes are stored.
type StorageDriver interface {
	// Save writes the content under the given key.
	Save(ctx context.Context, key string, body io.Reader) error

	// Get returns a ReadCloser to stream an archived file back.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an archived file.
	Delete(ctx context.Context, key string) error
}
