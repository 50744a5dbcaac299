package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/anatolykoptev/go_digest/internal/engine"
	"github.com/anatolykoptev/go_digest/internal/engine/session"
)

const (
	wechatWebBase = "https://mp.weixin.qq.com"
	wechatListAPI = "/cgi-bin/appmsgpublish"

	// base_resp.ret codes.
	wechatRetOK          = 0
	wechatRetExpired     = 200003
	wechatRetFreqControl = 200013

	wechatMinDigestRunes = 10
)

// WeChatAuth reads the token and cookie of a logged-in mp.weixin.qq.com
// session from the environment.
var WeChatAuth = session.EnvAuthenticator{
	TokenVar:    "WECHAT_TOKEN",
	CookieVar:   "WECHAT_COOKIE",
	NicknameVar: "WECHAT_NICKNAME",
}

// NewWeChat builds the WeChat official-account collector. It lists each
// account's published articles with the session held by mgr; an expired
// session triggers one re-login through the executor.
func NewWeChat(s engine.SourceSettings, fetch engine.Fetcher, mgr *session.Manager, policy engine.RetryPolicy) *engine.PlanSource {
	w := &wechat{
		fetch: fetch,
		mgr:   mgr,
		base:  strings.TrimRight(or(s.Config.WebBase, wechatWebBase), "/"),
	}
	pacer := engine.NewPacer(s.Config.RateLimit)
	if pacer.Max == 0 {
		pacer = engine.Pacer{Min: 3 * time.Second, Max: 5 * time.Second}
	}
	return &engine.PlanSource{
		Key:      "wechat_mp",
		Name:     "WeChat",
		Settings: s,
		Planner: engine.Planner{
			Label:              "wechat_mp",
			Resolve:            requireFakeID,
			FallbackChannelCap: 10,
			FallbackPageSize:   10,
			MaxPageSize:        20,
		},
		Exec:  engine.Executor{Policy: policy, Reauth: mgr},
		Pages: w.page,
		Map:   mapArticle,
		Pacer: pacer,
		Prepare: func(ctx context.Context) error {
			_, err := mgr.EnsureAuthenticated(ctx)
			return err
		},
	}
}

type wechat struct {
	fetch engine.Fetcher
	mgr   *session.Manager
	base  string
}

func requireFakeID(e engine.Entry) (string, error) {
	id := strings.TrimSpace(or(e.FakeID, e.Identifier()))
	if id == "" {
		return "", &engine.ValidationError{Field: "fakeid", Reason: "empty"}
	}
	return id, nil
}

type wechatList struct {
	BaseResp struct {
		Ret    int    `json:"ret"`
		ErrMsg string `json:"err_msg"`
	} `json:"base_resp"`
	PublishPage string `json:"publish_page"`
}

type wechatPublishPage struct {
	TotalCount  int `json:"total_count"`
	PublishList []struct {
		PublishInfo string `json:"publish_info"`
	} `json:"publish_list"`
}

func (w *wechat) page(ctx context.Context, req engine.PageRequest) (engine.Page, error) {
	b, err := w.mgr.EnsureAuthenticated(ctx)
	if err != nil {
		return engine.Page{}, err
	}
	begin, _ := strconv.Atoi(req.Cursor)

	q := url.Values{}
	q.Set("sub", "list")
	q.Set("search_field", "null")
	q.Set("begin", strconv.Itoa(begin))
	q.Set("count", strconv.Itoa(req.Size))
	q.Set("query", "")
	q.Set("fakeid", req.Plan.Target())
	q.Set("type", "101_1")
	q.Set("free_publish_type", "1")
	q.Set("sub_action", "list_ex")
	q.Set("token", b.Token)
	q.Set("lang", "zh_CN")
	q.Set("f", "json")
	q.Set("ajax", "1")

	data, err := w.fetch.Fetch(ctx, http.MethodGet, w.base+wechatListAPI+"?"+q.Encode(),
		engine.BrowserHeaders(map[string]string{
			"Cookie":  b.Cookie,
			"Referer": w.base + "/",
			"Origin":  w.base,
		}))
	if err != nil {
		return engine.Page{}, err
	}

	var list wechatList
	if err := json.Unmarshal(data, &list); err != nil {
		return engine.Page{}, fmt.Errorf("%w: wechat list: %w", engine.ErrMalformedPage, err)
	}
	switch ret := list.BaseResp.Ret; ret {
	case wechatRetOK:
	case wechatRetExpired:
		return engine.Page{}, &engine.SessionExpiredError{Code: ret}
	case wechatRetFreqControl:
		return engine.Page{}, &engine.RemoteError{Code: ret, Msg: "frequency control", Transient: true}
	default:
		return engine.Page{}, &engine.RemoteError{Code: ret, Msg: or(list.BaseResp.ErrMsg, "wechat list failed")}
	}

	articles, entries, total, err := parsePublishPage(list.PublishPage)
	if err != nil {
		return engine.Page{}, err
	}
	page := engine.Page{Items: make([]engine.Discovered, 0, len(articles))}
	for _, a := range articles {
		page.Items = append(page.Items, engine.Discovered{ID: articleID(a), Record: a})
	}
	if next := begin + entries; entries > 0 && next < total {
		page.NextCursor = strconv.Itoa(next)
	}
	return page, nil
}

// parsePublishPage unpacks publish_page, a JSON string whose publish_list
// entries carry publish_info, itself a JSON string with the appmsgex
// articles. It returns the articles, the number of publish entries and
// the total entry count.
func parsePublishPage(raw string) ([]engine.RawRecord, int, int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, 0, 0, fmt.Errorf("%w: publish_page missing", engine.ErrMalformedPage)
	}
	var pp wechatPublishPage
	if err := json.Unmarshal([]byte(raw), &pp); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: publish_page: %w", engine.ErrMalformedPage, err)
	}

	var out []engine.RawRecord
	for _, p := range pp.PublishList {
		if p.PublishInfo == "" {
			continue
		}
		info, err := engine.DecodeRecord([]byte(p.PublishInfo))
		if err != nil {
			continue
		}
		out = append(out, info.Objects(engine.K("appmsgex"))...)
	}
	return out, len(pp.PublishList), pp.TotalCount, nil
}

func articleID(a engine.RawRecord) string {
	if id := a.String(engine.K("aid")); id != "" {
		return id
	}
	if mid := a.String(engine.K("appmsgid")); mid != "" {
		return mid + "_" + or(a.String(engine.K("itemidx")), "1")
	}
	return a.String(engine.K("link"))
}

func mapArticle(raw engine.RawRecord, nctx engine.NormalizeContext) engine.Draft {
	title := raw.String(engine.K("title"))
	summary := raw.String(engine.K("digest"))
	if utf8.RuneCountInString(strings.TrimSpace(summary)) < wechatMinDigestRunes {
		summary = title
	}

	link := strings.TrimSpace(raw.String(engine.K("link")))
	if link != "" && !strings.HasPrefix(link, "http") {
		link = wechatWebBase + "/" + strings.TrimPrefix(link, "/")
	}

	published := raw.String(engine.K("update_time"))
	if published == "" || published == "0" {
		published = raw.String(engine.K("create_time"))
	}

	account := ""
	if p, ok := nctx.Plan.(engine.ChannelPlan); ok {
		account = p.DisplayName
	}
	return engine.Draft{
		ID:        articleID(raw),
		Title:     title,
		Summary:   summary,
		URL:       link,
		Published: published,
		Source:    account,
		Metadata: map[string]any{
			"aid":            raw.String(engine.K("aid")),
			"appmsgid":       raw.String(engine.K("appmsgid")),
			"author_name":    raw.String(engine.K("author_name")),
			"copyright_stat": raw.Int(engine.K("copyright_stat")),
			"cover":          raw.String(engine.K2("cover", "cover_img")),
			"itemidx":        raw.Int(engine.K("itemidx")),
			"album_id":       raw.String(engine.K("album_id")),
			"item_show_type": raw.Int(engine.K("item_show_type")),
			"account":        account,
		},
	}
}

func or(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
