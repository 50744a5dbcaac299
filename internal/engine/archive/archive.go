// Package archive persists collected digests for downstream consumers.
// It is an output sink: nothing reads it back to skip items in later runs.
package archive

import (
	"context"
	"encoding/json"

	"github.com/anatolykoptev/go_digest/internal/engine"
)

// DefaultListLimit is used when ListRuns is called without a positive limit.
const DefaultListLimit = 10

// Store saves digests and lists past runs.
type Store interface {
	SaveDigest(ctx context.Context, d engine.Digest) error
	ListRuns(ctx context.Context, limit int) ([]engine.RunSummary, error)
	Close() error
}

// Open returns a Postgres store when databaseURL is set, else a SQLite store
// at sqlitePath.
func Open(ctx context.Context, databaseURL, sqlitePath string) (Store, error) {
	if databaseURL != "" {
		pg, err := OpenPostgres(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	lite, err := OpenSQLite(sqlitePath)
	if err != nil {
		return nil, err
	}
	return lite, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return DefaultListLimit
	}
	return limit
}

func metadataJSON(it engine.CanonicalItem) string {
	if len(it.Metadata) == 0 {
		return "{}"
	}
	b, err := json.Marshal(it.Metadata)
	if err != nil {
		return "{}"
	}
	return string(b)
}
