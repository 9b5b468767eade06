package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/aegiscore/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileStore keeps the alert snapshot in a single JSON document. It is the
// durable copy used whenever the primary store is unreachable.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore for path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot location.
func (f *FileStore) Path() string { return f.path }

// Load reads the snapshot. A missing file surfaces as an os.ErrNotExist error.
func (f *FileStore) Load() ([]schemas.AlertRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	records := make([]schemas.AlertRecord, 0)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", f.path, err)
	}
	return records, nil
}

// Save replaces the snapshot. The document is written to a temporary file in
// the same directory and renamed over the old one, so readers never observe a
// partial write.
func (f *FileStore) Save(records []schemas.AlertRecord) error {
	if records == nil {
		records = []schemas.AlertRecord{}
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace snapshot %s: %w", f.path, err)
	}
	return nil
}
