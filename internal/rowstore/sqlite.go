package rowstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS rows (
	id   INTEGER PRIMARY KEY,
	data TEXT NOT NULL
)`

// SQLite is a RowStore over a single SQLite table keyed by row id.
type SQLite struct {
	db   *sql.DB
	path string
	n    int
}

var _ RowStore = (*SQLite)(nil)

// WriteSQLite creates a fresh database at path holding rows in order.
func WriteSQLite(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove old database: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO rows (id, data) VALUES (?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		line, err := encodeLine(row)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode row %d: %w", i, err)
		}
		if _, err := stmt.Exec(i, string(line[:len(line)-1])); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// OpenSQLite opens an existing row database read-only.
func OpenSQLite(path string) (*SQLite, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat row database: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open row database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM rows`).Scan(&n); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("count rows: %w", err)
	}
	return &SQLite{db: db, path: path, n: n}, nil
}

// Len implements RowStore.
func (s *SQLite) Len() int {
	return s.n
}

// Row implements RowStore.
func (s *SQLite) Row(i int) (Row, bool) {
	if i < 0 || i >= s.n {
		return Row{}, false
	}

	var data string
	err := s.db.QueryRow(`SELECT data FROM rows WHERE id = ?`, i).Scan(&data)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Debug("row_read_failed", slog.Int("row", i), slog.String("error", err.Error()))
		}
		return Row{}, false
	}

	row, err := ParseRow([]byte(data))
	if err != nil {
		return Row{}, false
	}
	return row, true
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
