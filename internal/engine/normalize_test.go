package engine

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// videoMapper mirrors a typical source mapper: camelCase first, snake_case second.
func videoMapper(raw RawRecord, _ NormalizeContext) Draft {
	snippet := raw.Object(K("snippet"))
	stats := raw.Object(K2("statistics", "statistics_data"))
	return Draft{
		ID:        raw.String(K("id")),
		Title:     snippet.String(K("title")),
		Summary:   snippet.String(K("description")),
		URL:       "https://www.youtube.com/watch?v=" + raw.String(K("id")),
		Published: snippet.String(K("publishedAt")),
		Tags:      snippet.Strings(K("tags")),
		Metadata: map[string]any{
			"viewCount": stats.Int(K("viewCount")),
			"likeCount": stats.Int(K("likeCount")),
		},
	}
}

func TestNormalizeBasic(t *testing.T) {
	raw := RawRecord{
		"id": "v1",
		"snippet": map[string]any{
			"title":       "Go 1.26 released 🎉 &amp; more",
			"description": "Watch at https://example.com/x 12:30 now",
			"publishedAt": "2026-10-10T08:00:00Z",
			"tags":        []any{"go", "release"},
		},
		"statistics": map[string]any{"viewCount": "1234"},
	}
	plan := ChannelPlan{CollectionID: "UUx", TagList: []string{"tech"}}

	it, ok := Normalize(raw, videoMapper, NormalizeContext{Source: "YouTube", Plan: plan})
	require.True(t, ok)
	assert.Equal(t, "v1", it.ID)
	assert.Equal(t, "Go 1.26 released & more", it.Title)
	assert.Equal(t, "Watch at now", it.Summary)
	assert.Equal(t, "YouTube", it.Source)
	assert.Equal(t, time.Date(2026, 10, 10, 8, 0, 0, 0, time.UTC), it.PublishedAt)
	assert.Equal(t, 1234, it.Metadata["viewCount"])
	assert.Equal(t, 0, it.Metadata["likeCount"], "missing counters default to 0")
	assert.Equal(t, []string{"tech", "go", "release"}, it.Metadata["tags"])
}

func TestNormalizeSnakeCaseFallback(t *testing.T) {
	raw := RawRecord{
		"id": "v2",
		"snippet": map[string]any{
			"title":        "Snake",
			"published_at": "2026-10-11T00:00:00Z",
		},
		"statistics_data": map[string]any{"view_count": 7},
	}
	it, ok := Normalize(raw, videoMapper, NormalizeContext{Source: "YouTube"})
	require.True(t, ok)
	assert.Equal(t, 7, it.Metadata["viewCount"])
	assert.Equal(t, "Snake", it.Summary, "empty summary falls back to title")
}

func TestNormalizeDropsInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  RawRecord
	}{
		{"missing publishedAt", RawRecord{"id": "a", "snippet": map[string]any{"title": "t"}}},
		{"bad publishedAt", RawRecord{"id": "a", "snippet": map[string]any{"title": "t", "publishedAt": "not-a-date"}}},
		{"missing id", RawRecord{"snippet": map[string]any{"title": "t", "publishedAt": "2026-01-01T00:00:00Z"}}},
		{"title only emoji", RawRecord{"id": "a", "snippet": map[string]any{"title": "🎉🎉", "publishedAt": "2026-01-01T00:00:00Z"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Normalize(tt.raw, videoMapper, NormalizeContext{})
			assert.False(t, ok)
		})
	}
}

func TestNormalizeTruncatesTitle(t *testing.T) {
	raw := RawRecord{
		"id": "long",
		"snippet": map[string]any{
			"title":       strings.Repeat("a", 200),
			"description": strings.Repeat("б", 1000),
			"publishedAt": "2026-10-01T00:00:00Z",
		},
	}
	it, ok := Normalize(raw, videoMapper, NormalizeContext{})
	require.True(t, ok)
	assert.Equal(t, TitleMaxRunes, utf8.RuneCountInString(it.Title))
	assert.True(t, strings.HasSuffix(it.Title, Ellipsis))
	assert.Equal(t, SummaryMaxRunes, utf8.RuneCountInString(it.Summary))
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := RawRecord{
		"id": "v3",
		"snippet": map[string]any{
			"title":       strings.Repeat("word ", 40) + "&lt;tag&gt;",
			"description": "Intro 01:02:03 see https://x.y/z &quot;quoted&quot;",
			"publishedAt": "2026-10-12T10:00:00+02:00",
			"tags":        []any{"x"},
		},
	}
	nctx := NormalizeContext{Source: "YouTube", Plan: ChannelPlan{TagList: []string{"p"}}}
	first, ok := Normalize(raw, videoMapper, nctx)
	require.True(t, ok)

	second, ok := Normalize(ItemRecord(first), CanonicalMapper, NormalizeContext{Source: "YouTube"})
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2026-10-01T12:00:00Z",
		"2026-10-01T14:00:00+02:00",
		"1790856000",
		"1790856000000",
		"2026-10-01 12:00:00",
	} {
		got, ok := ParseTimestamp(in)
		if assert.True(t, ok, in) {
			assert.True(t, want.Equal(got), "%s -> %v", in, got)
		}
	}
	for _, in := range []string{"", "0", "-5", "not a date"} {
		_, ok := ParseTimestamp(in)
		assert.False(t, ok, in)
	}
}
