package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/go_digest/internal/engine"
)

// hnTimeFilter returns an Algolia numeric filter for stories newer than
// days before now, or "" when days is not positive.
func hnTimeFilter(days int, now time.Time) string {
	if days <= 0 {
		return ""
	}
	return fmt.Sprintf("created_at_i>%d", now.AddDate(0, 0, -days).Unix())
}

var hnAuthorRe = regexp.MustCompile(`^[A-Za-z0-9_-]{2,15}$`)

// NewHackerNews builds the Hacker News collector on the Algolia
// search_by_date API. Keywords become one query where any keyword matches;
// accounts list a user's stories. Pages are numbered and bounded by nbPages.
func NewHackerNews(s engine.SourceSettings, client *http.Client, recentDays int, policy engine.RetryPolicy) *engine.PlanSource {
	hn := &hackerNews{
		client: client,
		base:   or(s.Config.APIBase, engine.HNAlgoliaByDateURL),
		days:   recentDays,
		now:    time.Now,
	}
	return &engine.PlanSource{
		Key:      "hackernews",
		Name:     "Hacker News",
		Settings: s,
		Planner: engine.Planner{
			Label:              "hackernews",
			Resolve:            hnAuthor,
			KeywordSearch:      true,
			FallbackKeywordCap: 30,
			FallbackPageSize:   30,
			MaxPageSize:        100,
		},
		Exec:  engine.Executor{Policy: policy},
		Pages: hn.page,
		Map:   mapHit,
		Pacer: engine.NewPacer(s.Config.RateLimit),
	}
}

type hackerNews struct {
	client *http.Client
	base   string
	days   int
	now    func() time.Time
}

func hnAuthor(e engine.Entry) (string, error) {
	h := strings.TrimSpace(or(e.Handle, e.Identifier()))
	if !hnAuthorRe.MatchString(h) {
		return "", &engine.ValidationError{Field: "handle", Reason: fmt.Sprintf("%q is not a valid username", h)}
	}
	return h, nil
}

// hnKeywordQuery turns keywords into Algolia query text. Algolia has no OR
// operator and requires every word by default, so with several keywords all
// of their words are marked optional and any of them matches.
func hnKeywordQuery(keywords []string) (query, optional string) {
	var words []string
	for _, k := range keywords {
		words = append(words, strings.Fields(k)...)
	}
	query = strings.Join(words, " ")
	if len(keywords) > 1 {
		optional = strings.Join(words, ",")
	}
	return query, optional
}

func (h *hackerNews) page(ctx context.Context, req engine.PageRequest) (engine.Page, error) {
	page, _ := strconv.Atoi(req.Cursor)

	q := url.Values{}
	tags := "story"
	switch p := req.Plan.(type) {
	case engine.ChannelPlan:
		tags = "story,author_" + p.CollectionID
	case engine.KeywordPlan:
		query, optional := hnKeywordQuery(p.Keywords)
		q.Set("query", query)
		if optional != "" {
			q.Set("optionalWords", optional)
		}
	}
	q.Set("tags", tags)
	// Page numbers only line up when every request uses the plan's page size.
	q.Set("hitsPerPage", strconv.Itoa(req.Plan.PageSize()))
	q.Set("page", strconv.Itoa(page))
	if f := hnTimeFilter(h.days, h.now()); f != "" {
		q.Set("numericFilters", f)
	}

	data, err := engine.FetchBytes(ctx, h.client, http.MethodGet, h.base+"?"+q.Encode(), nil, nil)
	if err != nil {
		return engine.Page{}, err
	}
	var resp engine.HNAlgoliaResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return engine.Page{}, fmt.Errorf("%w: hn search: %w", engine.ErrMalformedPage, err)
	}

	out := engine.Page{Items: make([]engine.Discovered, 0, len(resp.Hits))}
	for _, hit := range resp.Hits {
		out.Items = append(out.Items, engine.Discovered{ID: hit.ObjectID, Record: hitRecord(hit)})
	}
	if next := resp.Page + 1; next < resp.NbPages {
		out.NextCursor = strconv.Itoa(next)
	}
	return out, nil
}

func hitRecord(hit engine.HNHit) engine.RawRecord {
	return engine.RawRecord{
		"objectID":     hit.ObjectID,
		"title":        hit.Title,
		"url":          hit.URL,
		"author":       hit.Author,
		"points":       hit.Points,
		"num_comments": hit.NumComments,
		"created_at":   hit.CreatedAt,
		"created_at_i": hit.CreatedAtI,
		"story_text":   hit.StoryText,
	}
}

func mapHit(raw engine.RawRecord, _ engine.NormalizeContext) engine.Draft {
	id := raw.String(engine.K("objectID"))
	discussion := ""
	if id != "" {
		discussion = engine.HNItemURL + id
	}
	link := or(raw.String(engine.K("url")), discussion)

	published := raw.String(engine.K("created_at_i"))
	if published == "" || published == "0" {
		published = raw.String(engine.K("created_at"))
	}
	return engine.Draft{
		ID:        id,
		Title:     raw.String(engine.K("title")),
		Summary:   engine.StripHTML(raw.String(engine.K("story_text"))),
		URL:       link,
		Published: published,
		Metadata: map[string]any{
			"objectID":      id,
			"author":        raw.String(engine.K("author")),
			"points":        raw.Int(engine.K("points")),
			"numComments":   raw.Int(engine.K("num_comments")),
			"discussionUrl": discussion,
		},
	}
}
