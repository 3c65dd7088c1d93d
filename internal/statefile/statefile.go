// Package statefile persists small JSON state files with atomic writes.
//
// Writes go to a temporary file in the target directory which is then
// renamed over the destination, so a crash mid-write never leaves a
// truncated file behind. Loads are tolerant: a missing or corrupt file is
// reported but never fatal, callers fall back to an empty state.
package statefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrPersist wraps every write failure so callers can detect it with errors.Is.
var ErrPersist = errors.New("statefile: persist failed")

// Load decodes the JSON file at path into v.
// It returns found=false with a nil error when the file does not exist,
// and found=false with a non-nil error when the file exists but cannot be
// decoded. v is left untouched in both cases.
func Load(path string, v any) (found bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("statefile: read %s: %w", path, err)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("statefile: decode %s: %w", path, err)
	}
	return true, nil
}

// Save atomically writes v as indented JSON to path, creating the parent
// directory if needed.
func Save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrPersist, path, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: create directory %s: %w", ErrPersist, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %w", ErrPersist, path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %w", ErrPersist, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: sync %s: %w", ErrPersist, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %w", ErrPersist, tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: rename %s: %w", ErrPersist, path, err)
	}
	return nil
}
