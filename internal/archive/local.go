package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalDriver implements StorageDriver on the local filesystem. Keys contain
// the form id as their first path segment, so each form's attachments land in
// their own directory.
type LocalDriver struct {
	BaseDir string
}

// NewLocalDriver creates a local archive rooted at baseDir.
func NewLocalDriver(baseDir string) (*LocalDriver, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalDriver{BaseDir: baseDir}, nil
}

func (d *LocalDriver) Save(ctx context.Context, key string, body io.Reader) error {
	fullPath := filepath.Join(d.BaseDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("failed to create archive subdirectory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, body); err != nil {
		file.Close()
		os.Remove(fullPath)
		return fmt.Errorf("failed to write archive file: %w", err)
	}
	return nil
}

func (d *LocalDriver) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(d.BaseDir, filepath.FromSlash(key)))
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (d *LocalDriver) Delete(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(d.BaseDir, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
