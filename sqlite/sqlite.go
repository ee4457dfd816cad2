// Package sqlite holds the SQLite database the request log lives in.
package sqlite

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	DefaultFilename = "tenantdb.sqlite"
	InmemPath       = ":memory:"
)

// SqlStore is a wrapper around the db and provides basic functionality for maintaining the db
// including flushing the data from the db during end-to-end testing.
type SqlStore struct {
	Mu   sync.Mutex
	DB   *sqlx.DB
	log  *zap.Logger
	path string
}

// NewSqlStore opens the database at path, creating it when missing.
func NewSqlStore(path string, log *zap.Logger) (*SqlStore, error) {
	s := &SqlStore{
		log:  log,
		path: path,
	}

	if err := s.openDB(); err != nil {
		return nil, err
	}

	log.Info("Resources opened", zap.String("path", path))
	return s, nil
}

func (s *SqlStore) openDB() error {
	db, err := sqlx.Open("sqlite3", s.path+"?_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return err
	}

	// an in-memory database lives and dies with its one connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return err
	}

	s.DB = db
	return nil
}

// Close the connection to the sqlite database
func (s *SqlStore) Close() error {
	if err := s.DB.Close(); err != nil {
		return err
	}
	return nil
}

// LockSqlStore locks the database using the mutex. This is intended to lock the database for writes.
// It is the responsibility of implementing service code to manage locking for write operations.
func (s *SqlStore) LockSqlStore() {
	s.Mu.Lock()
}

// UnlockSqlStore unlocks the database.
func (s *SqlStore) UnlockSqlStore() {
	s.Mu.Unlock()
}

// Flush deletes all records for all tables in the database.
func (s *SqlStore) Flush(ctx context.Context) {
	tables, err := s.tableNames()
	if err != nil {
		s.log.Fatal("unable to flush database", zap.Error(err))
	}

	for _, t := range tables {
		stmt := fmt.Sprintf("DELETE FROM %s", t)
		if err := s.execTrans(ctx, stmt); err != nil {
			s.log.Fatal("unable to flush database", zap.Error(err))
		}
	}
	s.log.Debug("Flushed database", zap.Int("tables", len(tables)))
}

func (s *SqlStore) execTrans(ctx context.Context, stmt string) error {
	// use a lock to prevent two potential simultaneous write operations to the database,
	// which would throw an error
	s.Mu.Lock()
	defer s.Mu.Unlock()

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (s *SqlStore) userVersion() (int, error) {
	stmt := `PRAGMA user_version`
	res, err := s.queryToStrings(stmt)
	if err != nil {
		return 0, err
	}

	var version int
	if _, err := fmt.Sscanf(res[0], "%d", &version); err != nil {
		return 0, err
	}

	return version, nil
}

func (s *SqlStore) tableNames() ([]string, error) {
	stmt := `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`
	return s.queryToStrings(stmt)
}

// queryToStrings returns the first column of every row of stmt.
func (s *SqlStore) queryToStrings(stmt string) ([]string, error) {
	var output []string

	rows, err := s.DB.Query(stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var i string
		if err := rows.Scan(&i); err != nil {
			return nil, err
		}
		output = append(output, strings.TrimSpace(i))
	}

	return output, rows.Err()
}
