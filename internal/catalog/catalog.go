// Package catalog persists conversion history in SQLite: one row per
// run and one row per block outcome. The catalog is what the report
// command reads and what makes repeated conversions of an archive
// auditable after the fact.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/zhongsheng-chen/SDF-Converter/internal/pipeline"
	"github.com/zhongsheng-chen/SDF-Converter/internal/sdf"
)

// ErrRunNotFound is returned when no run matches a lookup.
var ErrRunNotFound = errors.New("run not found")

// Catalog stores run and block records. Safe for concurrent use.
type Catalog struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *zap.Logger
}

// Run is one recorded conversion.
type Run struct {
	ID             string
	Input          string
	Output         string
	StartedAt      time.Time
	Duration       time.Duration
	Total          int
	WellFormed     int
	RepairedCounts int
	RepairedEnd    int
	RepairedBoth   int
	Failed         int
	Discarded      int
	Annotated      int
	Incomplete     int
	MaxAtoms       int
}

// BlockRecord is one block outcome within a run. Name, InChIKey and
// ExactMass come from the record's data items and may be empty.
type BlockRecord struct {
	RunID     string
	Seq       int
	Title     string
	Name      string
	InChIKey  string
	ExactMass string
	Status    string
	Atoms     int
	Bonds     int
	Failure   string
}

// Open initializes the SQLite catalog at the given path, creating the
// parent directory and schema as needed.
func Open(path string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("Failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("Failed to set sqlite journal_mode=WAL", zap.Error(err))
	}
	// NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logger.Debug("Failed to set sqlite synchronous=NORMAL", zap.Error(err))
	}

	c := &Catalog{db: db, logger: logger}
	if err := c.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// initialize creates the required tables.
func (c *Catalog) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		input TEXT NOT NULL,
		output TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		total INTEGER NOT NULL,
		well_formed INTEGER NOT NULL,
		repaired_counts INTEGER NOT NULL,
		repaired_end INTEGER NOT NULL,
		repaired_both INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		discarded INTEGER NOT NULL,
		annotated INTEGER NOT NULL,
		incomplete INTEGER NOT NULL,
		max_atoms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	blocksTable := `
	CREATE TABLE IF NOT EXISTS blocks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		title TEXT,
		name TEXT,
		inchikey TEXT,
		exact_mass TEXT,
		status TEXT NOT NULL,
		atoms INTEGER NOT NULL,
		bonds INTEGER NOT NULL,
		failure TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(run_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_blocks_run ON blocks(run_id);
	CREATE INDEX IF NOT EXISTS idx_blocks_status ON blocks(status);
	CREATE INDEX IF NOT EXISTS idx_blocks_inchikey ON blocks(inchikey);
	`

	for _, ddl := range []string{runsTable, blocksTable} {
		if _, err := c.db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to initialize catalog schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Record stores one run summary together with its block outcomes in a
// single transaction.
func (c *Catalog) Record(sum pipeline.Summary, outcomes []pipeline.Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	started := time.Now().Add(-sum.Duration)
	_, err = tx.Exec(`
		INSERT INTO runs (
			id, input, output, started_at, duration_ms,
			total, well_formed, repaired_counts, repaired_end, repaired_both,
			failed, discarded, annotated, incomplete, max_atoms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, sum.Input, sum.Output, started.UnixMilli(), sum.Duration.Milliseconds(),
		sum.Total, sum.WellFormed, sum.RepairedCounts, sum.RepairedEnd, sum.RepairedBoth,
		sum.Failed, sum.Discarded, sum.Annotated, sum.Incomplete, sum.MaxAtomsSeen)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", sum.RunID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO blocks (run_id, seq, title, name, inchikey, exact_mass, status, atoms, bonds, failure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare block insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range outcomes {
		failure := ""
		if o.Err != nil {
			failure = o.Err.Error()
		}
		name, _ := sdf.DataItemValue(o.Block, sdf.TagName)
		inchikey, _ := sdf.DataItemValue(o.Block, sdf.TagInChIKey)
		exactMass, _ := sdf.DataItemValue(o.Block, sdf.TagExactMass)
		if _, err := stmt.Exec(sum.RunID, o.Block.Seq, o.Block.Title(), name, inchikey, exactMass,
			string(o.Status), o.Atoms, o.Bonds, failure); err != nil {
			return fmt.Errorf("failed to record block %d: %w", o.Block.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", sum.RunID, err)
	}
	c.logger.Debug("Run recorded",
		zap.String("run_id", sum.RunID),
		zap.Int("blocks", len(outcomes)))
	return nil
}

const runColumns = `id, input, output, started_at, duration_ms,
	total, well_formed, repaired_counts, repaired_end, repaired_both,
	failed, discarded, annotated, incomplete, max_atoms`

func scanRun(rows *sql.Rows) (Run, error) {
	var r Run
	var startedMs, durMs int64
	if err := rows.Scan(&r.ID, &r.Input, &r.Output, &startedMs, &durMs,
		&r.Total, &r.WellFormed, &r.RepairedCounts, &r.RepairedEnd, &r.RepairedBoth,
		&r.Failed, &r.Discarded, &r.Annotated, &r.Incomplete, &r.MaxAtoms); err != nil {
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	r.StartedAt = time.UnixMilli(startedMs)
	r.Duration = time.Duration(durMs) * time.Millisecond
	return r, nil
}

// Runs returns the most recent runs, newest first.
func (c *Catalog) Runs(limit int) ([]Run, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit < 1 {
		limit = 10
	}
	rows, err := c.db.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FindRun resolves a run by full ID or unique ID prefix.
func (c *Catalog) FindRun(id string) (Run, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(
		`SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? LIMIT 2`,
		id, id+"%")
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	var matches []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		if r.ID == id {
			return r, nil
		}
		matches = append(matches, r)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}

	switch len(matches) {
	case 0:
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return Run{}, fmt.Errorf("run id %q is ambiguous", id)
	}
}

// Failures returns the failed blocks of a run in sequence order.
func (c *Catalog) Failures(runID string) ([]BlockRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(`
		SELECT run_id, seq, title, name, inchikey, exact_mass, status, atoms, bonds, failure
		FROM blocks
		WHERE run_id = ? AND failure != ''
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var records []BlockRecord
	for rows.Next() {
		var b BlockRecord
		if err := rows.Scan(&b.RunID, &b.Seq, &b.Title, &b.Name, &b.InChIKey, &b.ExactMass,
			&b.Status, &b.Atoms, &b.Bonds, &b.Failure); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		records = append(records, b)
	}
	return records, rows.Err()
}

// StatusCounts aggregates block statuses for one run.
func (c *Catalog) StatusCounts(runID string) (map[string]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(`
		SELECT status, COUNT(*) FROM blocks WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
