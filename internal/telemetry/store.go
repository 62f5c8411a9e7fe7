package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// FileName is the telemetry database inside the data directory.
const FileName = "telemetry.db"

// DateLayout keys the daily aggregates.
const DateLayout = "2006-01-02"

// MaxZeroResultQueries bounds the persisted zero-result log.
const MaxZeroResultQueries = 100

// Store persists query metrics.
type Store interface {
	// Add adds counts for date and appends zero-result queries.
	Add(date string, corpora map[string]int64, latencies map[LatencyBucket]int64,
		terms map[string]int64, zero []ZeroResultQuery) error

	// Report reads aggregates for the inclusive date range.
	Report(from, to string, topTerms int) (*Report, error)

	Close() error
}

// Report is the persisted view read by `docrag stats`.
type Report struct {
	From                string                  `json:"from"`
	To                  string                  `json:"to"`
	CorpusCounts        map[string]int64        `json:"corpus_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []ZeroResultQuery       `json:"zero_result_queries"`
	TotalQueries        int64                   `json:"total_queries"`
}

const telemetrySchema = `
CREATE TABLE IF NOT EXISTS corpus_stats (
	date TEXT NOT NULL,
	corpus TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, corpus)
);

CREATE TABLE IF NOT EXISTS latency_stats (
	date TEXT NOT NULL,
	bucket TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, bucket)
);

CREATE TABLE IF NOT EXISTS query_terms (
	term TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 0,
	last_seen TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

CREATE TABLE IF NOT EXISTS zero_result_queries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	corpus TEXT NOT NULL,
	query TEXT NOT NULL,
	timestamp TEXT NOT NULL
);
`

// SQLiteStore implements Store on a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens or creates the telemetry database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL", telemetrySchema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init telemetry schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Add implements Store in a single transaction.
func (s *SQLiteStore) Add(date string, corpora map[string]int64, latencies map[LatencyBucket]int64,
	terms map[string]int64, zero []ZeroResultQuery) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for corpus, n := range corpora {
		if _, err := tx.Exec(`INSERT INTO corpus_stats (date, corpus, count) VALUES (?, ?, ?)
			ON CONFLICT(date, corpus) DO UPDATE SET count = count + excluded.count`, date, corpus, n); err != nil {
			return fmt.Errorf("add corpus counts: %w", err)
		}
	}
	for bucket, n := range latencies {
		if _, err := tx.Exec(`INSERT INTO latency_stats (date, bucket, count) VALUES (?, ?, ?)
			ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count`, date, string(bucket), n); err != nil {
			return fmt.Errorf("add latency counts: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for term, n := range terms {
		if _, err := tx.Exec(`INSERT INTO query_terms (term, count, last_seen) VALUES (?, ?, ?)
			ON CONFLICT(term) DO UPDATE SET count = count + excluded.count, last_seen = excluded.last_seen`, term, n, now); err != nil {
			return fmt.Errorf("add term counts: %w", err)
		}
	}
	for _, z := range zero {
		if _, err := tx.Exec(`INSERT INTO zero_result_queries (corpus, query, timestamp) VALUES (?, ?, ?)`,
			z.Corpus, z.Query, z.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("add zero-result query: %w", err)
		}
	}
	if len(zero) > 0 {
		if _, err := tx.Exec(`DELETE FROM zero_result_queries WHERE id NOT IN
			(SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?)`, MaxZeroResultQueries); err != nil {
			return fmt.Errorf("trim zero-result queries: %w", err)
		}
	}

	return tx.Commit()
}

// Report implements Store.
func (s *SQLiteStore) Report(from, to string, topTerms int) (*Report, error) {
	r := &Report{
		From:                from,
		To:                  to,
		CorpusCounts:        make(map[string]int64),
		LatencyDistribution: make(map[LatencyBucket]int64),
		TopTerms:            []TermCount{},
		ZeroResultQueries:   []ZeroResultQuery{},
	}

	rows, err := s.db.Query(`SELECT corpus, SUM(count) FROM corpus_stats
		WHERE date >= ? AND date <= ? GROUP BY corpus`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query corpus counts: %w", err)
	}
	for rows.Next() {
		var corpus string
		var n int64
		if err := rows.Scan(&corpus, &n); err != nil {
			_ = rows.Close()
			return nil, err
		}
		r.CorpusCounts[corpus] = n
		r.TotalQueries += n
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(`SELECT bucket, SUM(count) FROM latency_stats
		WHERE date >= ? AND date <= ? GROUP BY bucket`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}
	for rows.Next() {
		var bucket string
		var n int64
		if err := rows.Scan(&bucket, &n); err != nil {
			_ = rows.Close()
			return nil, err
		}
		r.LatencyDistribution[LatencyBucket(bucket)] = n
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	if topTerms > 0 {
		rows, err = s.db.Query(`SELECT term, count FROM query_terms ORDER BY count DESC, term ASC LIMIT ?`, topTerms)
		if err != nil {
			return nil, fmt.Errorf("query terms: %w", err)
		}
		for rows.Next() {
			var tc TermCount
			if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
				_ = rows.Close()
				return nil, err
			}
			r.TopTerms = append(r.TopTerms, tc)
		}
		if err := closeRows(rows); err != nil {
			return nil, err
		}
	}

	rows, err = s.db.Query(`SELECT corpus, query, timestamp FROM zero_result_queries ORDER BY id DESC LIMIT ?`, MaxZeroResultQueries)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	for rows.Next() {
		var z ZeroResultQuery
		var ts string
		if err := rows.Scan(&z.Corpus, &z.Query, &ts); err != nil {
			_ = rows.Close()
			return nil, err
		}
		z.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		r.ZeroResultQueries = append(r.ZeroResultQueries, z)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	return r, nil
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
