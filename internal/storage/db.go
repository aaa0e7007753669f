// Package storage provides the SQLite-backed catalogue store: the
// universities relation, its read queries, the out-of-band import path and a
// hot-swappable handle for snapshot updates.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/garyellow/unibot-go/internal/config"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// MetricsRecorder records store query timings.
type MetricsRecorder interface {
	RecordStoreQuery(operation string, durationSeconds float64, err error)
}

// DB wraps the SQLite catalogue.
// Reads go through a pooled reader; the import path uses a single writer
// connection so SQLite never sees concurrent writers.
type DB struct {
	reader    *sql.DB
	writer    *sql.DB
	path      string
	localCity string
	metrics   MetricsRecorder
}

// New opens (or creates) the catalogue at dbPath and ensures the schema exists.
// localCity is the city ranked ahead of all others by UniversitiesFor.
func New(ctx context.Context, dbPath, localCity string) (*DB, error) {
	inMemory := isMemoryPath(dbPath)
	if !inMemory {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	writer, err := openConn(ctx, dbPath, 1)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}

	// Every connection to ":memory:" is a separate database, so in-memory
	// catalogues share the single writer connection for reads.
	reader := writer
	if !inMemory {
		reader, err = openConn(ctx, dbPath, 8)
		if err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("open reader: %w", err)
		}
	}

	db := &DB{
		reader:    reader,
		writer:    writer,
		path:      dbPath,
		localCity: localCity,
	}

	if err := InitSchema(ctx, writer); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return db, nil
}

func openConn(ctx context.Context, dbPath string, maxOpen int) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxOpen)
	conn.SetConnMaxLifetime(config.DatabaseConnMaxLifetime)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return conn, nil
}

// dsn applies connection pragmas through the driver's _pragma parameters
// so every pooled connection gets them, not just the first one.
func dsn(dbPath string) string {
	if isMemoryPath(dbPath) {
		return dbPath
	}
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", config.DatabaseBusyTimeout.Milliseconds()))
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + dbPath + "?" + params.Encode()
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

// Close closes the database connections
func (db *DB) Close() error {
	var err error
	if db.reader != nil && db.reader != db.writer {
		err = db.reader.Close()
	}
	if db.writer != nil {
		if werr := db.writer.Close(); err == nil {
			err = werr
		}
	}
	return err
}

// Ping checks that the catalogue can be queried.
func (db *DB) Ping(ctx context.Context) error {
	return db.reader.PingContext(ctx)
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// LocalCity returns the city ranked first in results.
func (db *DB) LocalCity() string {
	return db.localCity
}

// SetMetrics sets the recorder for query timings.
func (db *DB) SetMetrics(recorder MetricsRecorder) {
	db.metrics = recorder
}

// observe records a query outcome. Call via defer with a pointer to the named error.
func (db *DB) observe(op string, start time.Time, err *error) {
	if db.metrics != nil {
		db.metrics.RecordStoreQuery(op, time.Since(start).Seconds(), *err)
	}
}
