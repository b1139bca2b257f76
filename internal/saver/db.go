package saver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	// Database drivers selected by connection-string scheme.
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const createResultsTable = `
CREATE TABLE IF NOT EXISTS measurement_results (
	id           SERIAL PRIMARY KEY,
	measurement  TEXT NOT NULL,
	bundle_id    TEXT NOT NULL,
	taken_at     TIMESTAMP NOT NULL,
	offline      BOOLEAN NOT NULL,
	params       TEXT NOT NULL,
	columns      TEXT NOT NULL,
	rows         TEXT NOT NULL
)`

const createResultsTableSQLite = `
CREATE TABLE IF NOT EXISTS measurement_results (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	measurement  TEXT NOT NULL,
	bundle_id    TEXT NOT NULL,
	taken_at     TIMESTAMP NOT NULL,
	offline      BOOLEAN NOT NULL,
	params       TEXT NOT NULL,
	columns      TEXT NOT NULL,
	rows         TEXT NOT NULL
)`

// DBSaver persists records into a measurement_results table.
type DBSaver struct {
	db       *sql.DB
	driver   string
	ownsConn bool
	log      *zap.Logger
}

// OpenDB opens a database saver from a connection string. postgres:// URLs
// use the Postgres driver; anything else is treated as a SQLite file path.
// The schema is created on open if missing.
func OpenDB(ctx context.Context, dsn string, log *zap.Logger) (*DBSaver, error) {
	driver := "sqlite3"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "postgres"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("saver: open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("saver: ping database: %w", err)
	}

	s := newDBSaver(db, driver, log)
	s.ownsConn = true
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewDBSaver wraps an existing connection; tests inject mock connections
// this way. The caller keeps ownership of the connection.
func NewDBSaver(db *sql.DB, driver string, log *zap.Logger) *DBSaver {
	return newDBSaver(db, driver, log)
}

func newDBSaver(db *sql.DB, driver string, log *zap.Logger) *DBSaver {
	if log == nil {
		log = zap.NewNop()
	}
	return &DBSaver{db: db, driver: driver, log: log}
}

func (s *DBSaver) migrate(ctx context.Context) error {
	ddl := createResultsTable
	if s.driver == "sqlite3" {
		ddl = createResultsTableSQLite
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("saver: create results table: %w", err)
	}
	return nil
}

// Save inserts one record. Params, columns and rows are stored as JSON text
// so the table shape is stable across measurement types.
func (s *DBSaver) Save(ctx context.Context, rec Record) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("saver: encode params: %w", err)
	}
	columns, err := json.Marshal(rec.Columns)
	if err != nil {
		return fmt.Errorf("saver: encode columns: %w", err)
	}
	rows, err := json.Marshal(rec.Rows)
	if err != nil {
		return fmt.Errorf("saver: encode rows: %w", err)
	}

	query := `INSERT INTO measurement_results
		(measurement, bundle_id, taken_at, offline, params, columns, rows)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if s.driver == "sqlite3" {
		query = strings.NewReplacer(
			"$1", "?", "$2", "?", "$3", "?", "$4", "?", "$5", "?", "$6", "?", "$7", "?",
		).Replace(query)
	}

	if _, err := s.db.ExecContext(ctx, query,
		rec.Measurement, rec.BundleID, rec.TakenAt, rec.Offline,
		string(params), string(columns), string(rows)); err != nil {
		return fmt.Errorf("saver: insert result: %w", err)
	}

	s.log.Info("measurement result saved",
		zap.String("measurement", rec.Measurement),
		zap.String("bundle_id", rec.BundleID),
		zap.Int("rows", len(rec.Rows)))
	return nil
}

// Close releases the connection when the saver opened it.
func (s *DBSaver) Close() error {
	if !s.ownsConn {
		return nil
	}
	return s.db.Close()
}
