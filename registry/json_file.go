package registry

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/Neos21/db-api/dberr"
	"github.com/Neos21/db-api/docfile"
)

// document is the on-disk shape of a JSON registry file.
type document struct {
	Databases []Record `json:"databases"`
}

// JSONFile keeps the registry in one JSON file, loaded once on open and
// rewritten after every mutation.
//
// Layout:
//
//	{
//	  "databases": [
//	    { "db_name": "my-db", "db_credential": "..." }
//	  ]
//	}
//
// The mutex only protects the in-memory copy within this process.
type JSONFile struct {
	mu     sync.RWMutex
	handle *docfile.Handle[document]
}

// OpenJSONFile loads path, or starts empty when it does not exist yet.
func OpenJSONFile(path string) (*JSONFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, dberr.Wrap(dberr.IO, "registry.open", err)
	}
	h, err := docfile.Open(path, document{Databases: []Record{}})
	if err != nil {
		return nil, err
	}
	if h.Data.Databases == nil {
		h.Data.Databases = []Record{}
	}
	return &JSONFile{handle: h}, nil
}

func (r *JSONFile) Names(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handle.Data.Databases))
	for _, rec := range r.handle.Data.Databases {
		names = append(names, rec.Name)
	}
	return names, nil
}

func (r *JSONFile) Records(_ context.Context) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.handle.Data.Databases), nil
}

func (r *JSONFile) ExistsName(_ context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOf(name, nil) >= 0, nil
}

func (r *JSONFile) Exists(_ context.Context, name, credential string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOf(name, &credential) >= 0, nil
}

func (r *JSONFile) Add(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(rec.Name, nil) >= 0 {
		return dberr.Conflictf("The Name Of DB Already Exists")
	}
	next := append(slices.Clone(r.handle.Data.Databases), rec)
	return r.commit(next)
}

func (r *JSONFile) Remove(_ context.Context, name, credential string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(name, &credential)
	if i < 0 {
		return false, nil
	}
	next := slices.Delete(slices.Clone(r.handle.Data.Databases), i, i+1)
	if err := r.commit(next); err != nil {
		return false, err
	}
	return true, nil
}

func (r *JSONFile) Close() error {
	return nil
}

// commit swaps in next and writes the file. On a failed write the previous
// records are restored so later calls see the state that is on disk.
func (r *JSONFile) commit(next []Record) error {
	prev := r.handle.Data.Databases
	r.handle.Data.Databases = next
	if err := r.handle.Write(); err != nil {
		r.handle.Data.Databases = prev
		return err
	}
	return nil
}

// indexOf finds name, additionally matching credential when it is non-nil.
func (r *JSONFile) indexOf(name string, credential *string) int {
	return slices.IndexFunc(r.handle.Data.Databases, func(rec Record) bool {
		return rec.Name == name && (credential == nil || rec.Credential == *credential)
	})
}
