package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/anatolykoptev/go_digest/internal/engine"
)

// YouTube tool slugs.
const (
	ytListPlaylistItems = "YOUTUBE_LIST_PLAYLIST_ITEMS"
	ytSearchVideos      = "YOUTUBE_SEARCH_VIDEOS"
	ytVideoDetails      = "YOUTUBE_VIDEO_DETAILS"
)

const (
	ytWatchURL    = "https://www.youtube.com/watch?v="
	ytMaxPageSize = 50
	ytDetailParts = "snippet,statistics,contentDetails"
)

// NewYouTube builds the YouTube collector. Channels are enumerated through
// their uploads playlist, keywords through one merged search, and every
// discovered video is resolved with a batched details call. A nil tools
// executor leaves the source unavailable.
func NewYouTube(s engine.SourceSettings, tools ToolExecutor, policy engine.RetryPolicy) *engine.PlanSource {
	exec := engine.Executor{Policy: policy}
	yt := &youtube{tools: tools}
	src := &engine.PlanSource{
		Key:      "youtube",
		Name:     "YouTube",
		Settings: s,
		Planner: engine.Planner{
			Label:           "youtube",
			Resolve:         uploadsPlaylist,
			KeywordSearch:   true,
			MaxPageSize:     ytMaxPageSize,
			DefaultSuffix:   "-is:live",
			DefaultLanguage: "zh",
		},
		Exec:  exec,
		Pages: yt.page,
		Details: &engine.BatchFetcher{
			Exec:      exec,
			Size:      min(engine.DefaultBatchSize, positive(s.Config.BatchSize, engine.DefaultBatchSize)),
			Namespace: "youtube",
			IDOf:      func(r engine.RawRecord) string { return r.String(engine.K("id")) },
			Fetch:     yt.details,
		},
		Map:   mapVideo,
		Pacer: engine.NewPacer(s.Config.RateLimit),
	}
	if tools == nil {
		src.Unavailable = "COMPOSIO_API_KEY or connection not configured"
	}
	return src
}

type youtube struct {
	tools ToolExecutor
}

// uploadsPlaylist maps a channel id (UC...) to its uploads playlist (UU...).
func uploadsPlaylist(e engine.Entry) (string, error) {
	id := strings.TrimSpace(e.Identifier())
	switch {
	case strings.HasPrefix(id, "UC") && len(id) > 2:
		return "UU" + id[2:], nil
	case strings.HasPrefix(id, "UU") || strings.HasPrefix(id, "PL"):
		return id, nil
	}
	return "", &engine.ValidationError{Field: "channel_id", Reason: fmt.Sprintf("%q is not a channel or playlist id", id)}
}

func (y *youtube) page(ctx context.Context, req engine.PageRequest) (engine.Page, error) {
	var (
		tool   string
		args   map[string]any
		idPath []engine.Key
	)
	switch p := req.Plan.(type) {
	case engine.ChannelPlan:
		tool = ytListPlaylistItems
		args = map[string]any{
			"playlistId": p.CollectionID,
			"maxResults": req.Size,
			"part":       "snippet,contentDetails",
		}
		idPath = []engine.Key{engine.K("contentDetails"), engine.K("videoId")}
	case engine.KeywordPlan:
		tool = ytSearchVideos
		args = map[string]any{
			"q":          p.Query,
			"maxResults": req.Size,
			"order":      "date",
			"type":       "video",
			"part":       "id",
		}
		if p.Language != "" {
			args["relevanceLanguage"] = p.Language
		}
		idPath = []engine.Key{engine.K("id"), engine.K("videoId")}
	default:
		return engine.Page{}, fmt.Errorf("youtube: unsupported plan %T", req.Plan)
	}
	if req.Cursor != "" {
		args["pageToken"] = req.Cursor
	}

	data, err := y.tools.Execute(ctx, tool, args)
	if err != nil {
		return engine.Page{}, err
	}
	body := toolBody(data)
	var page engine.Page
	for _, it := range body.Objects(engine.K("items")) {
		id := it.Path(idPath...)
		if id == "" && tool == ytListPlaylistItems {
			id = it.Path(engine.K("snippet"), engine.K("resourceId"), engine.K("videoId"))
		}
		if id != "" {
			page.Items = append(page.Items, engine.Discovered{ID: id})
		}
	}
	page.NextCursor = body.String(engine.K("nextPageToken"))
	return page, nil
}

func (y *youtube) details(ctx context.Context, ids []string) ([]engine.RawRecord, error) {
	data, err := y.tools.Execute(ctx, ytVideoDetails, map[string]any{
		"id":   strings.Join(ids, ","),
		"part": ytDetailParts,
	})
	if err != nil {
		return nil, err
	}
	return toolBody(data).Objects(engine.K("items")), nil
}

// toolBody unwraps the response_data envelope some tools put around the
// upstream payload.
func toolBody(data engine.RawRecord) engine.RawRecord {
	if inner := data.Object(engine.K("responseData")); inner != nil {
		return inner
	}
	return data
}

func mapVideo(raw engine.RawRecord, nctx engine.NormalizeContext) engine.Draft {
	sn := raw.Object(engine.K("snippet"))
	stats := raw.Object(engine.K("statistics"))
	cd := raw.Object(engine.K("contentDetails"))
	id := raw.String(engine.K("id"))

	meta := map[string]any{
		"videoId":              id,
		"channelId":            sn.String(engine.K("channelId")),
		"channelTitle":         sn.String(engine.K("channelTitle")),
		"thumbnailUrl":         thumbnail(sn),
		"duration":             cd.String(engine.K("duration")),
		"viewCount":            stats.Int64(engine.K("viewCount")),
		"likeCount":            stats.Int64(engine.K("likeCount")),
		"commentCount":         stats.Int64(engine.K("commentCount")),
		"categoryId":           sn.String(engine.K("categoryId")),
		"defaultLanguage":      sn.String(engine.K2("defaultLanguage", "defaultAudioLanguage")),
		"liveBroadcastContent": sn.String(engine.K("liveBroadcastContent")),
	}
	switch p := nctx.Plan.(type) {
	case engine.ChannelPlan:
		meta["searchType"] = engine.KindChannel
		meta["channelHandle"] = p.Handle
	case engine.KeywordPlan:
		meta["searchType"] = engine.KindKeyword
	}

	url := ""
	if id != "" {
		url = ytWatchURL + id
	}
	return engine.Draft{
		ID:        id,
		Title:     sn.String(engine.K("title")),
		Summary:   sn.String(engine.K("description")),
		URL:       url,
		Published: sn.String(engine.K("publishedAt")),
		Tags:      sn.Strings(engine.K("tags")),
		Metadata:  meta,
	}
}

func thumbnail(snippet engine.RawRecord) string {
	th := snippet.Object(engine.K("thumbnails"))
	for _, size := range []string{"high", "medium", "default"} {
		if u := th.Path(engine.K(size), engine.K("url")); u != "" {
			return u
		}
	}
	return ""
}

func positive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
