// Package store implements the on-disk record discipline shared by every
// piece of bluecap state: typed JSON reads, atomic replace-by-rename writes
// and the set merge used for option, persistence and trust lists.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// ErrNotFound is returned by Read when the record does not exist.
var ErrNotFound = errors.New("record not found")

// MalformedError is returned by Read when a record exists but cannot be
// decoded into the requested type.
type MalformedError struct {
	Path string
	Err  error
}

func (e *MalformedError) Error() string {
	return "malformed record " + e.Path + ": " + e.Err.Error()
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// Read decodes the record at path into a new T. Records are allowed to carry
// comments and trailing commas, since some of them (the defaults record in
// particular) are edited by hand.
func Read[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, err
	}
	v := new(T)
	if err := json.Unmarshal(jsonc.ToJSON(data), v); err != nil {
		return nil, &MalformedError{Path: path, Err: err}
	}
	return v, nil
}

// WriteAtomic replaces the file at path with data. The content is written to
// a hidden sibling file, synced, and renamed over the target, so a reader
// sees either the old or the new content and never a partial write. A crash
// before the rename leaves only an orphaned temporary file behind.
//
// Concurrent writers are not excluded; the last rename wins.
func WriteAtomic(path string, data []byte, perm os.FileMode) (Err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*")
	if err != nil {
		return err
	}
	tmpName := f.Name()
	defer func() {
		if Err != nil {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(perm); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// WriteJSON marshals v with indentation and writes it atomically to path.
func WriteJSON(path string, v any, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return WriteAtomic(path, data, perm)
}

// MergeSet returns the union of existing and delta, or existing minus delta
// when remove is set. Duplicates are dropped. The result is a set: callers
// must not rely on its ordering.
func MergeSet(existing, delta []string, remove bool) []string {
	drop := make(map[string]struct{}, len(delta))
	if remove {
		for _, d := range delta {
			drop[d] = struct{}{}
		}
	}
	seen := make(map[string]struct{}, len(existing)+len(delta))
	result := make([]string, 0, len(existing)+len(delta))
	add := func(s string) {
		if _, ok := drop[s]; ok {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		result = append(result, s)
	}
	for _, s := range existing {
		add(s)
	}
	if !remove {
		for _, s := range delta {
			add(s)
		}
	}
	return result
}
