package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/anatolykoptev/go_digest/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func digest(id string, started time.Time, items ...engine.CanonicalItem) engine.Digest {
	return engine.Digest{
		RunID:    id,
		Started:  started,
		Finished: started.Add(time.Minute),
		Cutoff:   started.AddDate(0, 0, -7),
		Sources:  []engine.SourceResult{{Label: "youtube", Items: items}, {Label: "zsxq", Items: []engine.CanonicalItem{}}},
	}
}

func TestSQLiteSaveAndList(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, "", filepath.Join(t.TempDir(), "nested", "archive.db"))
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	item := engine.CanonicalItem{
		ID: "v1", Title: "Video", Summary: "About", URL: "https://www.youtube.com/watch?v=v1",
		Source: "YouTube", PublishedAt: base.Add(-time.Hour), Metadata: map[string]any{"viewCount": 42},
	}
	require.NoError(t, store.SaveDigest(ctx, digest("run-1", base, item, item)))
	require.NoError(t, store.SaveDigest(ctx, digest("run-2", base.Add(time.Hour))))

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID, "newest first")
	assert.Equal(t, "run-1", runs[1].RunID)
	assert.Equal(t, 2, runs[1].Items)
	assert.Equal(t, 2, runs[1].Sources)
	assert.True(t, base.Equal(runs[1].Started))

	runs, err = store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLiteDuplicateRunFails(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer store.Close()

	d := digest("same", time.Now())
	require.NoError(t, store.SaveDigest(ctx, d))
	assert.Error(t, store.SaveDigest(ctx, d))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, clampLimit(0))
	assert.Equal(t, DefaultListLimit, clampLimit(1000))
	assert.Equal(t, 5, clampLimit(5))
}
