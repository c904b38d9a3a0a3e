package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/Neos21/db-api/dberr"
)

// SqliteStore stores each tenant database as its own SQLite file and runs
// caller-supplied SQL against it.
//
// Layout:
//
//	dir/
//	  notes.sqlite3   # database "notes"
//
// A connection is opened for every call and closed before it returns; no
// transaction spans two calls.
type SqliteStore struct {
	dir string
}

// RunResult is what the engine reports for a statement that returns no rows.
type RunResult struct {
	LastID  int64 `json:"last_id"`
	Changes int64 `json:"changes"`
}

// Row is one result row keyed by column name.
type Row = map[string]any

func NewSqliteStore(dir string) (*SqliteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dberr.Wrap(dberr.IO, "store.open", err)
	}
	return &SqliteStore{dir: dir}, nil
}

func (s *SqliteStore) Family() string {
	return "sqlite"
}

func (s *SqliteStore) databasePath(name string) string {
	return filepath.Join(s.dir, name+".sqlite3")
}

func (s *SqliteStore) open(name string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", s.databasePath(name))
	if err != nil {
		return nil, dberr.Wrap(dberr.IO, "sqlite.open", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Init creates the database file by connecting once.
func (s *SqliteStore) Init(ctx context.Context, name string) error {
	db, err := s.open(name)
	if err != nil {
		return err
	}
	defer db.Close()
	return dberr.Wrap(dberr.IO, "sqlite.init", db.PingContext(ctx))
}

func (s *SqliteStore) Drop(_ context.Context, name string) error {
	path := s.databasePath(name)
	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		_ = os.Remove(path + suffix)
	}
	return dberr.Wrap(dberr.IO, "sqlite.drop", os.Remove(path))
}

// Run executes a statement that returns no rows.
func (s *SqliteStore) Run(ctx context.Context, name, query string, params any) (*RunResult, error) {
	args, err := BindArgs(params)
	if err != nil {
		return nil, err
	}
	db, err := s.open(name)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, queryError("sqlite.run", err)
	}
	lastID, _ := res.LastInsertId()
	changes, _ := res.RowsAffected()
	return &RunResult{LastID: lastID, Changes: changes}, nil
}

// Get executes a query and returns its first row, or nil when there is none.
func (s *SqliteStore) Get(ctx context.Context, name, query string, params any) (Row, error) {
	rows, err := s.query(ctx, name, query, params, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// All executes a query and returns every row.
func (s *SqliteStore) All(ctx context.Context, name, query string, params any) ([]Row, error) {
	return s.query(ctx, name, query, params, -1)
}

// query collects at most limit rows; a negative limit collects all of them.
func (s *SqliteStore) query(ctx context.Context, name, query string, params any, limit int) ([]Row, error) {
	args, err := BindArgs(params)
	if err != nil {
		return nil, err
	}
	db, err := s.open(name)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queryError("sqlite.query", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, queryError("sqlite.query", err)
	}
	result := []Row{}
	for (limit < 0 || len(result) < limit) && rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, queryError("sqlite.query", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("sqlite.query", err)
	}
	return result, nil
}

// BindArgs turns decoded JSON params into driver arguments. A JSON array
// binds positionally, an object binds by name (a leading ':', '@' or '$' on a
// key is dropped), a scalar binds as the single positional argument and nil
// binds nothing.
func BindArgs(params any) ([]any, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case []any:
		args := make([]any, 0, len(p))
		for _, v := range p {
			bv, err := bindValue(v)
			if err != nil {
				return nil, err
			}
			args = append(args, bv)
		}
		return args, nil
	case map[string]any:
		args := make([]any, 0, len(p))
		for k, v := range p {
			bv, err := bindValue(v)
			if err != nil {
				return nil, err
			}
			args = append(args, sql.Named(strings.TrimLeft(k, ":@$"), bv))
		}
		return args, nil
	default:
		bv, err := bindValue(p)
		if err != nil {
			return nil, err
		}
		return []any{bv}, nil
	}
}

func bindValue(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x), nil
		}
		return x, nil
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, dberr.Validationf("Invalid Param: %v", err)
		}
		return string(b), nil
	default:
		return v, nil
	}
}

// queryError classifies driver errors: anything SQLite itself rejected is a
// Query error, everything else is IO.
func queryError(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrFull, sqlite3.ErrPerm, sqlite3.ErrReadonly:
			return dberr.Wrap(dberr.IO, op, err)
		}
	}
	return &dberr.Error{Kind: dberr.Query, Op: op, Err: err}
}
