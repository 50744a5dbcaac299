package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anatolykoptev/go_digest/internal/engine"
)

// SQLite is the default archive, a single file under the user's home.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the archive database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("archive: mkdir %s: %w", filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initSQLiteSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: init schema: %w", err)
	}
	slog.Debug("archive opened", slog.String("path", path))
	return &SQLite{db: db}, nil
}

func initSQLiteSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		cutoff      TEXT NOT NULL,
		items       INTEGER NOT NULL,
		sources     INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS items (
		run_id       TEXT NOT NULL REFERENCES runs(run_id),
		label        TEXT NOT NULL,
		item_id      TEXT NOT NULL,
		title        TEXT NOT NULL,
		summary      TEXT NOT NULL,
		url          TEXT,
		source       TEXT NOT NULL,
		published_at TEXT NOT NULL,
		metadata     TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (run_id, label, item_id)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`)
	return err
}

// SaveDigest writes the run row and its items in one transaction.
func (s *SQLite) SaveDigest(ctx context.Context, d engine.Digest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, finished_at, cutoff, items, sources) VALUES (?, ?, ?, ?, ?, ?)`,
		d.RunID, d.Started.UTC().Format(time.RFC3339Nano), d.Finished.UTC().Format(time.RFC3339Nano),
		d.Cutoff.UTC().Format(time.RFC3339Nano), d.Total(), len(d.Sources),
	); err != nil {
		return fmt.Errorf("archive: insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO items (run_id, label, item_id, title, summary, url, source, published_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("archive: prepare: %w", err)
	}
	defer stmt.Close()

	for _, src := range d.Sources {
		for _, it := range src.Items {
			if _, err := stmt.ExecContext(ctx, d.RunID, src.Label, it.ID, it.Title, it.Summary, it.URL,
				it.Source, it.PublishedAt.UTC().Format(time.RFC3339Nano), metadataJSON(it)); err != nil {
				return fmt.Errorf("archive: insert item %s: %w", it.ID, err)
			}
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs first.
func (s *SQLite) ListRuns(ctx context.Context, limit int) ([]engine.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at, finished_at, items, sources FROM runs ORDER BY started_at DESC LIMIT ?`,
		clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("archive: list runs: %w", err)
	}
	defer rows.Close()

	var out []engine.RunSummary
	for rows.Next() {
		var (
			r                 engine.RunSummary
			started, finished string
		)
		if err := rows.Scan(&r.RunID, &started, &finished, &r.Items, &r.Sources); err != nil {
			return nil, fmt.Errorf("archive: scan run: %w", err)
		}
		r.Started, _ = time.Parse(time.RFC3339Nano, started)
		r.Finished, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error { return s.db.Close() }
