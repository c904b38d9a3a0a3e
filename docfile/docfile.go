// Package docfile keeps a single JSON value in a file.
//
// A Handle is read once on Open, mutated in memory by its owner, and written
// back whole on Write. There is no locking: two handles on the same path race
// and the last Write wins. Writes go through a temporary file and a rename, so
// a reader never observes a half-written file.
package docfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/Neos21/db-api/dberr"
)

// Handle is an open document file.
type Handle[T any] struct {
	path string
	// Data is the in-memory value. Callers mutate it directly and call Write.
	Data T
}

// Open reads path into a new Handle. A missing file yields def; so does a
// file holding a bare JSON null. Nothing is written until Write is called.
func Open[T any](path string, def T) (*Handle[T], error) {
	h := &Handle[T]{path: path, Data: def}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return h, nil
		}
		return nil, dberr.Wrap(dberr.IO, "docfile.read", err)
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return h, nil
	}
	var data T
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &dberr.Error{Kind: dberr.Parse, Op: "docfile.read", Msg: path, Err: err}
	}
	h.Data = data
	return h, nil
}

// Path returns the file the handle reads and writes.
func (h *Handle[T]) Path() string {
	return h.path
}

// Write serializes Data with two-space indentation and replaces the file.
// Map keys are emitted in sorted order so files diff cleanly.
func (h *Handle[T]) Write() error {
	b, err := json.MarshalIndent(h.Data, "", "  ")
	if err != nil {
		return dberr.Wrap(dberr.IO, "docfile.encode", err)
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return dberr.Wrap(dberr.IO, "docfile.write", err)
	}
	if err := atomic.WriteFile(h.path, bytes.NewReader(b)); err != nil {
		return dberr.Wrap(dberr.IO, "docfile.write", err)
	}
	return nil
}

// Remove deletes the file at path. A missing file is an IO error.
func Remove(path string) error {
	return dberr.Wrap(dberr.IO, "docfile.remove", os.Remove(path))
}
