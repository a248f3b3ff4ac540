// Package artifact persists discovery run records. The stored record is
// the sole contract between discovery and the downstream deterministic
// re-extraction step: everything replay needs lives in one row.
package artifact

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"navscout/internal/types"
)

// ErrNotFound is returned when no run matches the requested id.
var ErrNotFound = errors.New("artifact: run not found")

// Store keeps run records in a local SQLite database.
type Store struct {
	db   *sql.DB
	path string
	log  *zap.Logger
}

// Open initializes the database at path, creating it and its parent
// directory when missing.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	s := &Store{db: db, path: path, log: log}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	log.Debug("artifact store ready", zap.String("path", path))
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		site        TEXT NOT NULL,
		method      TEXT NOT NULL,
		success     INTEGER NOT NULL,
		reason      TEXT,
		turns       INTEGER NOT NULL,
		categories  INTEGER NOT NULL,
		started_at  DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		record      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_site ON runs(site, started_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Save upserts one run record. The full record is stored as JSON; the
// indexed columns exist only for listing and filtering.
func (s *Store) Save(ctx context.Context, rec *types.RunRecord) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", rec.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, site, method, success, reason, turns, categories, started_at, finished_at, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Site, string(rec.Method), boolInt(rec.Success), rec.Reason,
		rec.Turns, rec.Tree.Count(), rec.StartedAt.UTC(), rec.FinishedAt.UTC(), string(blob))
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	s.log.Info("run saved",
		zap.String("id", rec.ID),
		zap.String("site", rec.Site),
		zap.Bool("success", rec.Success),
		zap.Int("categories", rec.Tree.Count()))
	return nil
}

// Get loads one full run record by id.
func (s *Store) Get(ctx context.Context, id string) (*types.RunRecord, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM runs WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	var rec types.RunRecord
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &rec, nil
}

// Summary is one listing row; the full record stays on disk.
type Summary struct {
	ID         string
	Site       string
	Method     types.Method
	Success    bool
	Reason     string
	Turns      int
	Categories int
	StartedAt  time.Time
}

// List returns run summaries, newest first. An empty site matches all
// sites; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, site string, limit int) ([]Summary, error) {
	query := `SELECT id, site, method, success, reason, turns, categories, started_at
		FROM runs`
	args := []any{}
	if site != "" {
		query += ` WHERE site = ?`
		args = append(args, site)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var success int
		var method string
		if err := rows.Scan(&sum.ID, &sum.Site, &method, &success, &sum.Reason,
			&sum.Turns, &sum.Categories, &sum.StartedAt); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		sum.Method = types.Method(method)
		sum.Success = success != 0
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Latest returns the most recent run for a site.
func (s *Store) Latest(ctx context.Context, site string) (*types.RunRecord, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM runs WHERE site = ? ORDER BY started_at DESC LIMIT 1`, site).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest run for %s: %w", site, err)
	}
	return s.Get(ctx, id)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
