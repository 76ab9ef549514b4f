package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
)

// Archiver stores attachment copies keyed by form id and filename.
type Archiver struct {
	Driver StorageDriver
}

// NewArchiver creates an archiver on top of a storage driver.
func NewArchiver(driver StorageDriver) *Archiver {
	return &Archiver{Driver: driver}
}

// Archive saves one attachment's bytes and returns the archive key. The
// archive is a convenience copy, not the system of record; callers may log
// a failure and continue.
func (a *Archiver) Archive(ctx context.Context, formID, filename string, data []byte) (string, error) {
	key := fmt.Sprintf("%s/%s", formID, filename)
	if err := a.Driver.Save(ctx, key, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", key, err)
	}
	slog.DebugContext(ctx, "attachment archived", "key", key, "size", len(data))
	return key, nil
}
