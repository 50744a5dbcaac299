package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/go_digest/internal/engine"
	"github.com/anatolykoptev/go_digest/internal/engine/session"
)

const (
	zsxqAPIBase = "https://api.zsxq.com/v2"
	zsxqWebBase = "https://wx.zsxq.com"

	// zsxqTimeLayout is the create_time format, e.g. 2026-10-16T09:30:00.123+0800.
	zsxqTimeLayout = "2006-01-02T15:04:05.000-0700"

	zsxqCodeRateLimited = 1059
	zsxqTitleRunes      = 100
	zsxqMinSummaryRunes = 10
)

// ZsxqAuth takes the session from a browser cookie that must carry
// zsxq_access_token.
var ZsxqAuth = session.CookieAuthenticator{
	CookieVar:   "ZSXQ_COOKIE",
	RequiredKey: "zsxq_access_token",
}

// NewZsxq builds the Knowledge Planet collector: one plan per group,
// topics paged by end_time and filtered by the group's tags.
func NewZsxq(s engine.SourceSettings, fetch engine.Fetcher, mgr *session.Manager, policy engine.RetryPolicy) *engine.PlanSource {
	z := &zsxq{
		fetch: fetch,
		mgr:   mgr,
		api:   strings.TrimRight(or(s.Config.APIBase, zsxqAPIBase), "/"),
		web:   strings.TrimRight(or(s.Config.WebBase, zsxqWebBase), "/"),
	}
	return &engine.PlanSource{
		Key:      "zsxq",
		Name:     "知识星球",
		Settings: s,
		Planner: engine.Planner{
			Label:              "zsxq",
			Resolve:            numericGroupID,
			FallbackChannelCap: 20,
			FallbackPageSize:   20,
			MaxPageSize:        30,
		},
		Exec:  engine.Executor{Policy: policy, Reauth: mgr},
		Pages: z.page,
		Map:   z.mapTopic,
		Keep:  matchesPlanTags,
		Pacer: engine.NewPacer(s.Config.RateLimit),
		Prepare: func(ctx context.Context) error {
			_, err := mgr.EnsureAuthenticated(ctx)
			return err
		},
	}
}

type zsxq struct {
	fetch engine.Fetcher
	mgr   *session.Manager
	api   string
	web   string
}

func numericGroupID(e engine.Entry) (string, error) {
	id := strings.TrimSpace(or(e.GroupID, e.Identifier()))
	if id == "" {
		return "", &engine.ValidationError{Field: "group_id", Reason: "empty"}
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", &engine.ValidationError{Field: "group_id", Reason: fmt.Sprintf("%q is not numeric", id)}
	}
	return id, nil
}

type zsxqResponse struct {
	Succeeded bool            `json:"succeeded"`
	Code      int             `json:"code"`
	Info      string          `json:"info"`
	Error     string          `json:"error"`
	RespData  json.RawMessage `json:"resp_data"`
}

func (z *zsxq) page(ctx context.Context, req engine.PageRequest) (engine.Page, error) {
	b, err := z.mgr.EnsureAuthenticated(ctx)
	if err != nil {
		return engine.Page{}, err
	}

	q := url.Values{}
	q.Set("scope", "all")
	q.Set("count", strconv.Itoa(req.Size))
	if req.Cursor != "" {
		q.Set("end_time", req.Cursor)
	}
	u := z.api + "/groups/" + url.PathEscape(req.Plan.Target()) + "/topics?" + q.Encode()

	data, err := z.fetch.Fetch(ctx, http.MethodGet, u, engine.BrowserHeaders(map[string]string{
		"Cookie":  b.Cookie,
		"Origin":  z.web,
		"Referer": z.web + "/",
	}))
	if err != nil {
		var se *engine.StatusError
		if errors.As(err, &se) {
			switch se.Code {
			case http.StatusUnauthorized:
				return engine.Page{}, &engine.SessionExpiredError{Code: se.Code}
			case http.StatusForbidden:
				return engine.Page{}, fmt.Errorf("group %s not accessible to this account: %w", req.Plan.Target(), err)
			}
		}
		return engine.Page{}, err
	}

	var resp zsxqResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return engine.Page{}, fmt.Errorf("%w: zsxq topics: %w", engine.ErrMalformedPage, err)
	}
	if !resp.Succeeded {
		msg := or(resp.Error, resp.Info, "request failed")
		if resp.Code == zsxqCodeRateLimited {
			return engine.Page{}, &engine.RemoteError{Code: resp.Code, Msg: msg, Transient: true}
		}
		return engine.Page{}, &engine.RemoteError{Code: resp.Code, Msg: msg}
	}
	if len(resp.RespData) == 0 {
		return engine.Page{}, nil
	}
	body, err := engine.DecodeRecord(resp.RespData)
	if err != nil {
		return engine.Page{}, fmt.Errorf("%w: zsxq resp_data: %w", engine.ErrMalformedPage, err)
	}

	topics := body.Objects(engine.K("topics"))
	page := engine.Page{Items: make([]engine.Discovered, 0, len(topics))}
	for _, t := range topics {
		page.Items = append(page.Items, engine.Discovered{ID: t.String(engine.K("topic_id")), Record: t})
	}
	// A short page is the last one. Otherwise continue before the oldest topic.
	if len(topics) >= req.Size && len(topics) > 0 {
		page.NextCursor = zsxqCursorBefore(topics[len(topics)-1].String(engine.K("create_time")))
	}
	return page, nil
}

// zsxqCursorBefore returns an end_time one millisecond before ts, so the
// inclusive end_time filter does not return the boundary topic again.
func zsxqCursorBefore(ts string) string {
	t, err := time.Parse(zsxqTimeLayout, ts)
	if err != nil {
		return ts
	}
	return t.Add(-time.Millisecond).Format(zsxqTimeLayout)
}

// matchesPlanTags keeps topics carrying one of the plan's tags. Topics
// without tags, and plans without tags, keep everything.
func matchesPlanTags(d engine.Discovered, plan engine.SearchPlan) bool {
	want := plan.Tags()
	if len(want) == 0 {
		return true
	}
	tags := d.Record.Objects(engine.K("tags"))
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		name := t.String(engine.K("name"))
		title := t.String(engine.K("title"))
		for _, w := range want {
			if w == name || w == title {
				return true
			}
		}
	}
	return false
}

// topicHTML returns the raw text of a topic: talk, then question, then
// solution.
func topicHTML(t engine.RawRecord) string {
	for _, part := range []string{"talk", "question", "solution"} {
		if s := t.Path(engine.K(part), engine.K("text")); s != "" {
			return s
		}
	}
	return ""
}

func (z *zsxq) mapTopic(raw engine.RawRecord, nctx engine.NormalizeContext) engine.Draft {
	html := topicHTML(raw)
	text := engine.StripHTML(html)
	title := engine.TruncateRunes(text, zsxqTitleRunes)
	summary := text
	if len([]rune(summary)) < zsxqMinSummaryRunes {
		summary = title
	}

	group := raw.Object(engine.K("group"))
	groupID := group.String(engine.K("group_id"))
	groupName := group.String(engine.K("name"))
	if p, ok := nctx.Plan.(engine.ChannelPlan); ok {
		groupID = or(groupID, p.CollectionID)
		groupName = or(p.DisplayName, groupName)
	}
	topicID := raw.String(engine.K("topic_id"))

	link := ""
	if groupID != "" && topicID != "" {
		link = z.web + "/group/" + groupID + "/topic/" + topicID
	}
	source := ""
	if groupName != "" {
		source = "知识星球-" + groupName
	}

	owner := raw.Object(engine.K("talk")).Object(engine.K("owner"))
	if owner == nil {
		owner = raw.Object(engine.K("owner"))
	}
	var tags []string
	for _, t := range raw.Objects(engine.K("tags")) {
		if n := or(t.String(engine.K("name")), t.String(engine.K("title"))); n != "" {
			tags = append(tags, n)
		}
	}

	return engine.Draft{
		ID:        topicID,
		Title:     title,
		Summary:   summary,
		URL:       link,
		Published: raw.String(engine.K("create_time")),
		Source:    source,
		Tags:      tags,
		Metadata: map[string]any{
			"topicId":          topicID,
			"groupId":          groupID,
			"author":           or(owner.String(engine.K("name")), "匿名"),
			"authorAvatar":     owner.String(engine.K("avatar_url")),
			"likes":            topicCount(raw, "likes"),
			"comments":         topicCount(raw, "comments"),
			"views":            raw.Int64(engine.K("reads_count")),
			"content_markdown": engine.HTMLToMarkdown(html),
		},
	}
}

// topicCount reads {"likes": {"count": n}} or the flat likes_count form.
func topicCount(t engine.RawRecord, name string) int64 {
	if n := t.Object(engine.K(name)).Int64(engine.K("count")); n > 0 {
		return n
	}
	return t.Int64(engine.K(name + "_count"))
}
