// Package store implements the two storage engines behind tenant databases:
// a JSON document engine and a SQLite relational engine.
package store

import (
	"context"
	"encoding/json"
	"math"
)

// Engine is the part of a storage engine the lifecycle manager drives.
// Each tenant database is one artifact file addressed by its name.
type Engine interface {
	// Family names the engine, e.g. "json-db" or "sqlite".
	Family() string

	// Init creates an empty artifact for name. An existing artifact is kept.
	Init(ctx context.Context, name string) error

	// Drop removes the artifact for name. A missing artifact is an error.
	Drop(ctx context.Context, name string) error
}

// Document is one record in a document database. It always carries an
// integer "id" once stored.
type Document = map[string]any

type absent struct{}

// Absent marks a key for removal when used as a value in PatchByID.
// Any other value, including nil, is stored as given.
var Absent any = absent{}

// docID extracts a document's integer id.
func docID(doc Document) (int64, bool) {
	switch v := doc["id"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int64(v), true
		}
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}
