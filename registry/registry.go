// Package registry tracks which tenant databases exist and the credential
// each one was created with.
package registry

import (
	"context"
	"fmt"
	"path/filepath"
)

// Record is one registered tenant database.
type Record struct {
	Name       string `json:"db_name"`
	Credential string `json:"db_credential"`
}

// Registry is the interface all registry backends implement. Names are
// unique; records keep insertion order.
type Registry interface {
	// Names returns every registered name in insertion order.
	Names(ctx context.Context) ([]string, error)

	// Records returns a copy of every record in insertion order.
	Records(ctx context.Context) ([]Record, error)

	// ExistsName reports whether name is registered.
	ExistsName(ctx context.Context, name string) (bool, error)

	// Exists reports whether name is registered with exactly credential.
	Exists(ctx context.Context, name, credential string) (bool, error)

	// Add appends rec and persists. A duplicate name is a Conflict error.
	Add(ctx context.Context, rec Record) error

	// Remove deletes the record matching name and credential and persists.
	// Returns false when nothing matched.
	Remove(ctx context.Context, name, credential string) (bool, error)

	Close() error
}

// Open creates a Registry for the given backend.
//
// Supported backends:
//
//	"json"   - dir/<base>.json, a docfile holding {"databases": [...]}
//	"sqlite" - dir/<base>.sqlite3, a table databases(db_name, db_credential)
func Open(backend, dir, base string) (Registry, error) {
	switch backend {
	case "json", "":
		return OpenJSONFile(filepath.Join(dir, base+".json"))
	case "sqlite":
		return OpenSqlite(filepath.Join(dir, base+".sqlite3"))
	default:
		return nil, fmt.Errorf("unknown registry backend: %q (supported: json, sqlite)", backend)
	}
}
