package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("id%03d", i)
	}
	return out
}

func echoFetch(calls *[][]string, fail map[int]bool) func(context.Context, []string) ([]RawRecord, error) {
	return func(_ context.Context, batch []string) ([]RawRecord, error) {
		*calls = append(*calls, batch)
		if fail[len(*calls)] {
			return nil, &StatusError{Code: 400}
		}
		recs := make([]RawRecord, 0, len(batch))
		for _, id := range batch {
			recs = append(recs, RawRecord{"id": id})
		}
		return recs, nil
	}
}

func idOf(r RawRecord) string { return r.String(K("id")) }

func TestBatchFetcherChunks(t *testing.T) {
	var calls [][]string
	b := BatchFetcher{Exec: testExec(), Size: 50, IDOf: idOf, Fetch: echoFetch(&calls, nil)}

	got := b.FetchAll(context.Background(), ids(120))
	require.Len(t, calls, 3)
	assert.Len(t, calls[0], 50)
	assert.Len(t, calls[1], 50)
	assert.Len(t, calls[2], 20)
	require.Len(t, got, 120)
	assert.Equal(t, "id000", idOf(got[0]))
	assert.Equal(t, "id119", idOf(got[119]))
}

func TestBatchFetcherSkipsFailedBatch(t *testing.T) {
	var calls [][]string
	b := BatchFetcher{Exec: testExec(), Size: 10, IDOf: idOf, Fetch: echoFetch(&calls, map[int]bool{2: true})}

	got := b.FetchAll(context.Background(), ids(30))
	assert.Len(t, calls, 3, "remaining batches still run")
	assert.Len(t, got, 20)
}

func TestBatchFetcherDefaultSize(t *testing.T) {
	var calls [][]string
	b := BatchFetcher{Exec: testExec(), IDOf: idOf, Fetch: echoFetch(&calls, nil)}
	b.FetchAll(context.Background(), ids(51))
	assert.Len(t, calls, 2)
	assert.Nil(t, b.FetchAll(context.Background(), nil))
}

func TestBatchFetcherUsesCache(t *testing.T) {
	InitCache("", time.Minute, 1000, time.Minute)
	ns := fmt.Sprintf("test-%d", time.Now().UnixNano())

	var calls [][]string
	b := BatchFetcher{Exec: testExec(), Size: 50, Namespace: ns, IDOf: idOf, Fetch: echoFetch(&calls, nil)}

	first := b.FetchAll(context.Background(), ids(5))
	require.Len(t, first, 5)
	require.Len(t, calls, 1)

	second := b.FetchAll(context.Background(), ids(7))
	require.Len(t, second, 7)
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"id005", "id006"}, calls[1], "only uncached ids are requested")
}
