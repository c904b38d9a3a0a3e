package registry

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/Neos21/db-api/dberr"
)

// Sqlite keeps the registry in a SQLite master database.
//
// Tables:
//
//	databases(db_name, db_credential)  PRIMARY KEY (db_name)
//
// Insertion order is the rowid order.
type Sqlite struct {
	db *sql.DB
}

func OpenSqlite(dbPath string) (*Sqlite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, dberr.Wrap(dberr.IO, "registry.open", err)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, dberr.Wrap(dberr.IO, "registry.open", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, dberr.Wrap(dberr.IO, "registry.open", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS databases (
		db_name TEXT NOT NULL PRIMARY KEY,
		db_credential TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, dberr.Wrap(dberr.IO, "registry.open", err)
	}
	return &Sqlite{db: db}, nil
}

func (s *Sqlite) Close() error {
	return s.db.Close()
}

func (s *Sqlite) Names(ctx context.Context) ([]string, error) {
	recs, err := s.Records(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(recs))
	for _, rec := range recs {
		names = append(names, rec.Name)
	}
	return names, nil
}

func (s *Sqlite) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT db_name, db_credential FROM databases ORDER BY rowid")
	if err != nil {
		return nil, dberr.Wrap(dberr.IO, "registry.list", err)
	}
	defer rows.Close()
	recs := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Name, &rec.Credential); err != nil {
			return nil, dberr.Wrap(dberr.IO, "registry.list", err)
		}
		recs = append(recs, rec)
	}
	return recs, dberr.Wrap(dberr.IO, "registry.list", rows.Err())
}

func (s *Sqlite) ExistsName(ctx context.Context, name string) (bool, error) {
	return s.exists(ctx, "SELECT 1 FROM databases WHERE db_name = ?", name)
}

func (s *Sqlite) Exists(ctx context.Context, name, credential string) (bool, error) {
	return s.exists(ctx, "SELECT 1 FROM databases WHERE db_name = ? AND db_credential = ?", name, credential)
}

func (s *Sqlite) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, dberr.Wrap(dberr.IO, "registry.lookup", err)
	}
	return true, nil
}

func (s *Sqlite) Add(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO databases (db_name, db_credential) VALUES (?, ?)",
		rec.Name, rec.Credential,
	)
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return dberr.Conflictf("The Name Of DB Already Exists")
	}
	return dberr.Wrap(dberr.IO, "registry.add", err)
}

func (s *Sqlite) Remove(ctx context.Context, name, credential string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM databases WHERE db_name = ? AND db_credential = ?",
		name, credential,
	)
	if err != nil {
		return false, dberr.Wrap(dberr.IO, "registry.remove", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
