package engine

import (
	"context"
	"log/slog"

	"github.com/samber/lo"
)

// DefaultBatchSize is the upstream limit for detail lookups.
const DefaultBatchSize = 50

// BatchFetcher resolves identifiers to detail records in fixed-size batches.
// Each batch is an independent call: a failed batch is logged and skipped.
type BatchFetcher struct {
	Exec Executor
	Size int
	// Namespace enables the detail cache when non-empty.
	Namespace string
	// IDOf extracts the identifier of a returned record.
	IDOf  func(RawRecord) string
	Fetch func(ctx context.Context, ids []string) ([]RawRecord, error)
}

// FetchAll returns the records for ids, in id order where IDOf can match them.
func (b BatchFetcher) FetchAll(ctx context.Context, ids []string) []RawRecord {
	if len(ids) == 0 {
		return nil
	}
	size := b.Size
	if size <= 0 {
		size = DefaultBatchSize
	}

	byID := make(map[string]RawRecord, len(ids))
	var unmatched []RawRecord
	missing := ids
	if b.caching() {
		missing = missing[:0:0]
		for _, id := range ids {
			if rec, ok := CacheLoadJSON[RawRecord](ctx, b.cacheKey(id)); ok {
				byID[id] = rec
				continue
			}
			missing = append(missing, id)
		}
	}

	for i, batch := range lo.Chunk(missing, size) {
		if ctx.Err() != nil {
			break
		}
		recs, err := Execute(ctx, b.Exec, func(ctx context.Context) ([]RawRecord, error) {
			return b.Fetch(ctx, batch)
		})
		metrics.Batches.Add(1)
		if err != nil {
			metrics.BatchErrors.Add(1)
			slog.Warn("detail batch failed, skipping",
				slog.Int("batch", i+1),
				slog.Int("ids", len(batch)),
				slog.Any("error", err))
			continue
		}
		if len(recs) == 0 {
			slog.Warn("detail batch empty", slog.Int("batch", i+1), slog.Int("ids", len(batch)))
			continue
		}
		for _, rec := range recs {
			id := ""
			if b.IDOf != nil {
				id = b.IDOf(rec)
			}
			if id == "" {
				unmatched = append(unmatched, rec)
				continue
			}
			byID[id] = rec
			if b.caching() {
				CacheStoreJSON(ctx, b.cacheKey(id), rec)
			}
		}
	}

	out := make([]RawRecord, 0, len(byID)+len(unmatched))
	for _, id := range lo.Uniq(ids) {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
		}
	}
	return append(out, unmatched...)
}

func (b BatchFetcher) caching() bool { return b.Namespace != "" && b.IDOf != nil }

func (b BatchFetcher) cacheKey(id string) string { return CacheKey("detail", b.Namespace, id) }
