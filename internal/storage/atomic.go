// Package storage provides the atomic JSON file idiom shared by the rule
// store, the action logs, and the undo log: temp file in the same directory
// followed by rename, so a reader observes either the old state or the new
// one and never a partial write.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joshsymonds/mailsweep/internal/errs"
)

// LoadJSON reads path into out and reports whether it succeeded. A missing
// or unreadable file is not an error; neither is corrupt JSON — the caller
// falls back to its zero state. out may be partially populated after a
// failed decode and must be discarded when LoadJSON returns false.
func LoadJSON(path string, out any) bool {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the config dir
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// SaveJSON atomically replaces path with the JSON encoding of v.
func SaveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// WriteFileAtomic writes data to a sibling temp file and renames it over
// path. Failures are reported as errs.ErrStorage.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errs.Storagef(err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errs.Storagef(err, "create temp for %s", path)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errs.Storagef(err, "write temp for %s", path)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errs.Storagef(err, "close temp for %s", path)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return errs.Storagef(err, "chmod temp for %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errs.Storagef(err, "replace %s", path)
	}
	return nil
}
