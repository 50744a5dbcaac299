package digestserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/anatolykoptev/go_digest/internal/engine"
	"github.com/anatolykoptev/go_digest/internal/engine/archive"
	"github.com/anatolykoptev/go_digest/internal/engine/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setup points the engine at a sources file with only Hacker News enabled,
// served by a local Algolia stand-in.
func setup(t *testing.T) {
	t.Helper()
	now := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fresh := strconv.FormatInt(now.Add(-time.Hour).Unix(), 10)
		old := strconv.FormatInt(now.AddDate(0, 0, -30).Unix(), 10)
		w.Write([]byte(`{"hits":[` +
			`{"objectID":"1","title":"Fresh story","url":"https://example.com/a","author":"pg","points":5,"created_at_i":` + fresh + `},` +
			`{"objectID":"2","title":"Old story","url":"https://example.com/b","author":"pg","points":5,"created_at_i":` + old + `}` +
			`],"page":0,"nbPages":1}`))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	file := filepath.Join(dir, "sources.yaml")
	yaml := "recent_days: 3\n" +
		"sources:\n" +
		"  hackernews:\n" +
		"    keywords: [golang]\n" +
		"    config:\n" +
		"      api_base: " + srv.URL + "\n" +
		"      default_page_size: 5\n"
	require.NoError(t, os.WriteFile(file, []byte(yaml), 0o600))

	engine.Init(engine.Config{
		SourcesFile:     file,
		Retry:           engine.RetryPolicy{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
		HTTPClient:      srv.Client(),
		WeChatTokenFile: filepath.Join(dir, "wechat.json"),
		ZsxqTokenFile:   filepath.Join(dir, "zsxq.json"),
	})
	t.Cleanup(func() { engine.Init(engine.Config{}) })
}

func TestCollectDigestArchives(t *testing.T) {
	setup(t)
	ctx := context.Background()
	store, err := archive.OpenSQLite(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer store.Close()
	deps := Deps{Archive: store}

	out, err := CollectDigest(ctx, deps, engine.CollectInput{Archive: true})
	require.NoError(t, err)
	assert.Empty(t, out.Error)
	assert.True(t, out.Archived)
	require.Len(t, out.Digest.Sources, 1)
	src := out.Digest.Sources[0]
	assert.Equal(t, "hackernews", src.Label)
	assert.Equal(t, 1, src.Stale)
	require.Len(t, src.Items, 1)
	assert.Equal(t, "Fresh story", src.Items[0].Title)
	assert.Equal(t, 1, out.Total)

	hist, err := DigestHistory(ctx, deps, engine.HistoryInput{})
	require.NoError(t, err)
	require.Len(t, hist.Runs, 1)
	assert.Equal(t, out.Digest.RunID, hist.Runs[0].RunID)
	assert.Equal(t, 1, hist.Runs[0].Items)
}

func TestCollectDigestRejectsUnknownSource(t *testing.T) {
	setup(t)
	_, err := CollectDigest(context.Background(), Deps{}, engine.CollectInput{Sources: []string{"reddit"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reddit")
}

func TestCollectDigestDisabledSourceHasNoPlans(t *testing.T) {
	setup(t)
	out, err := CollectDigest(context.Background(), Deps{}, engine.CollectInput{Sources: []string{"YouTube"}})
	require.NoError(t, err)
	assert.Contains(t, out.Error, engine.ErrNoPlans.Error())
	assert.Zero(t, out.Total)
}

func TestPlanPreviewUsesRecentSettings(t *testing.T) {
	setup(t)
	out, err := PlanPreview(engine.PlanPreviewInput{Sources: []string{"hn"}})
	require.NoError(t, err)
	require.Len(t, out.Plans, 1)
	assert.Equal(t, "hackernews", out.Plans[0].Source)
	assert.Equal(t, engine.KindKeyword, out.Plans[0].Kind)
	assert.Equal(t, 5, out.Plans[0].PageSize)
}

func TestSessionStatusReadsStoredBundles(t *testing.T) {
	setup(t)
	now := time.Now()
	require.NoError(t, session.NewFileStore(engine.Cfg.WeChatTokenFile).Save(session.Bundle{
		Token: "t", Cookie: "c", Nickname: "digest", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	out := SessionStatus()
	require.Len(t, out.Sessions, 2)
	assert.Equal(t, "wechat_mp", out.Sessions[0].Source)
	assert.Equal(t, "stored", out.Sessions[0].State)
	assert.Equal(t, "digest", out.Sessions[0].Principal)
	assert.Equal(t, "zsxq", out.Sessions[1].Source)
	assert.Equal(t, "unauthenticated", out.Sessions[1].State)
}

func TestDigestHistoryWithoutArchive(t *testing.T) {
	_, err := DigestHistory(context.Background(), Deps{}, engine.HistoryInput{})
	assert.Error(t, err)
}
