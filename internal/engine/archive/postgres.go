package archive

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anatolykoptev/go_digest/internal/engine"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Postgres archives digests in a shared database.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres creates a pgx pool and runs schema migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("archive postgres connected", slog.String("addr", config.ConnConfig.Host))
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		data, err := schemaFS.ReadFile("schema/" + e.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", e.Name(), err)
		}
		if _, err := p.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply %s: %w", e.Name(), err)
		}
		slog.Debug("archive migration applied", slog.String("file", e.Name()))
	}
	return nil
}

// SaveDigest writes the run and its items in one transaction, batching the
// item inserts.
func (p *Postgres) SaveDigest(ctx context.Context, d engine.Digest) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO digest_runs (run_id, started_at, finished_at, cutoff, items, sources)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.RunID, d.Started, d.Finished, d.Cutoff, d.Total(), len(d.Sources),
	); err != nil {
		return fmt.Errorf("archive: insert run: %w", err)
	}

	batch := &pgx.Batch{}
	for _, src := range d.Sources {
		for _, it := range src.Items {
			batch.Queue(`INSERT INTO digest_items (run_id, label, item_id, title, summary, url, source, published_at, metadata)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
				ON CONFLICT DO NOTHING`,
				d.RunID, src.Label, it.ID, it.Title, it.Summary, it.URL, it.Source, it.PublishedAt, metadataJSON(it))
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("archive: insert items: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// ListRuns returns the most recent runs first.
func (p *Postgres) ListRuns(ctx context.Context, limit int) ([]engine.RunSummary, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT run_id, started_at, finished_at, items, sources FROM digest_runs ORDER BY started_at DESC LIMIT $1`,
		clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("archive: list runs: %w", err)
	}
	defer rows.Close()

	var out []engine.RunSummary
	for rows.Next() {
		var r engine.RunSummary
		if err := rows.Scan(&r.RunID, &r.Started, &r.Finished, &r.Items, &r.Sources); err != nil {
			return nil, fmt.Errorf("archive: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
