package store

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/Neos21/db-api/dberr"
	"github.com/Neos21/db-api/docfile"
)

// JsonFileStore stores each tenant database as a separate JSON file holding
// an array of documents.
//
// Layout:
//
//	dir/
//	  notes.json   # database "notes"
//	  tasks.json   # database "tasks"
//
// Every call re-reads the file, and calls that change something rewrite it
// whole. There is no locking between calls: two concurrent writers on the
// same database can lose one of the updates.
type JsonFileStore struct {
	dir string
}

func NewJsonFileStore(dir string) (*JsonFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dberr.Wrap(dberr.IO, "store.open", err)
	}
	return &JsonFileStore{dir: dir}, nil
}

func (s *JsonFileStore) Family() string {
	return "json-db"
}

func (s *JsonFileStore) databasePath(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *JsonFileStore) open(name string) (*docfile.Handle[[]Document], error) {
	return docfile.Open(s.databasePath(name), []Document{})
}

func (s *JsonFileStore) Init(_ context.Context, name string) error {
	h, err := s.open(name)
	if err != nil {
		return err
	}
	return h.Write()
}

func (s *JsonFileStore) Drop(_ context.Context, name string) error {
	return docfile.Remove(s.databasePath(name))
}

// FindAll returns every document in the database.
func (s *JsonFileStore) FindAll(name string) ([]Document, error) {
	h, err := s.open(name)
	if err != nil {
		return nil, err
	}
	return h.Data, nil
}

// FindByID returns the first document with id, or nil.
func (s *JsonFileStore) FindByID(name string, id int64) (Document, error) {
	h, err := s.open(name)
	if err != nil {
		return nil, err
	}
	i := indexByID(h.Data, id)
	if i < 0 {
		return nil, nil
	}
	return h.Data[i], nil
}

// Create stores a copy of item under the next id, which is one more than the
// highest id currently present (1 for an empty database).
func (s *JsonFileStore) Create(name string, item Document) (Document, error) {
	h, err := s.open(name)
	if err != nil {
		return nil, err
	}
	doc := cloneDoc(item)
	doc["id"] = nextID(h.Data)
	h.Data = append(h.Data, doc)
	if err := h.Write(); err != nil {
		return nil, err
	}
	return doc, nil
}

// PutByID replaces the document with id by a copy of item. The id is forced
// back to id whatever item says. Returns nil when no document matches.
func (s *JsonFileStore) PutByID(name string, id int64, item Document) (Document, error) {
	h, err := s.open(name)
	if err != nil {
		return nil, err
	}
	i := indexByID(h.Data, id)
	if i < 0 {
		return nil, nil
	}
	doc := cloneDoc(item)
	doc["id"] = id
	h.Data[i] = doc
	if err := h.Write(); err != nil {
		return nil, err
	}
	return doc, nil
}

// PatchByID merges item into the document with id. Keys whose value is
// Absent are removed; every other key is set, nil included. Returns nil when
// no document matches.
func (s *JsonFileStore) PatchByID(name string, id int64, item Document) (Document, error) {
	h, err := s.open(name)
	if err != nil {
		return nil, err
	}
	i := indexByID(h.Data, id)
	if i < 0 {
		return nil, nil
	}
	doc := cloneDoc(h.Data[i])
	for k, v := range item {
		if _, ok := v.(absent); ok {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	doc["id"] = id
	h.Data[i] = doc
	if err := h.Write(); err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteByID removes and returns the document with id, or nil.
func (s *JsonFileStore) DeleteByID(name string, id int64) (Document, error) {
	h, err := s.open(name)
	if err != nil {
		return nil, err
	}
	i := indexByID(h.Data, id)
	if i < 0 {
		return nil, nil
	}
	doc := h.Data[i]
	h.Data = slices.Delete(h.Data, i, i+1)
	if err := h.Write(); err != nil {
		return nil, err
	}
	return doc, nil
}

func indexByID(docs []Document, id int64) int {
	return slices.IndexFunc(docs, func(doc Document) bool {
		got, ok := docID(doc)
		return ok && got == id
	})
}

// nextID ignores documents whose id is missing or not an integer.
func nextID(docs []Document) int64 {
	var highest int64
	for _, doc := range docs {
		if id, ok := docID(doc); ok && id > highest {
			highest = id
		}
	}
	return highest + 1
}

func cloneDoc(doc Document) Document {
	if doc == nil {
		return Document{}
	}
	return maps.Clone(doc)
}
