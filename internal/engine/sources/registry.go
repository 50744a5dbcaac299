// Package sources implements the collectors for each upstream platform on
// top of engine.PlanSource.
package sources

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/anatolykoptev/go_digest/internal/engine"
	"github.com/anatolykoptev/go_digest/internal/engine/session"
)

// Labels in run order.
var Labels = []string{"youtube", "wechat_mp", "zsxq", "twitter", "hackernews"}

// Registry holds the collectors and session managers of one run.
type Registry struct {
	Collectors []engine.Collector
	Sessions   []*session.Manager
}

// Dispatcher returns a dispatcher over the registered collectors.
func (r Registry) Dispatcher() *engine.Dispatcher {
	return engine.NewDispatcher(r.Collectors...).Known(Labels...)
}

// Build wires every enabled source from settings and the engine config.
// Managers are built for every session-backed source so their status can
// be reported even when the source is disabled.
func Build(settings engine.Settings) Registry {
	c := engine.Cfg
	policy := c.Retry

	wechatMgr := session.NewManager("wechat_mp",
		session.NewFileStore(or(c.WeChatTokenFile, DefaultTokenFile("wechat-token.json"))),
		WeChatAuth,
		session.WithTTL(c.SessionTTL),
		session.WithMaxReauth(c.MaxReauthPerRun))
	zsxqMgr := session.NewManager("zsxq",
		session.NewFileStore(or(c.ZsxqTokenFile, DefaultTokenFile("zsxq-token.json"))),
		ZsxqAuth,
		session.WithTTL(c.SessionTTL),
		session.WithMaxReauth(c.MaxReauthPerRun))
	reg := Registry{Sessions: []*session.Manager{wechatMgr, zsxqMgr}}

	for _, label := range Labels {
		s := settings.Source(label)
		if !s.IsEnabled() {
			continue
		}
		var col engine.Collector
		switch label {
		case "youtube":
			var tools ToolExecutor
			cc := &ComposioClient{
				BaseURL:      c.ComposioBaseURL,
				APIKey:       c.ComposioAPIKey,
				ConnectionID: c.ComposioConnectionID,
				UserID:       c.ComposioUserID,
				HTTP:         httpClient(c),
			}
			if cc.Configured() {
				tools = cc
			}
			col = NewYouTube(s, tools, policy)
		case "wechat_mp":
			col = NewWeChat(s, engine.NewFetcher(c, httpClient(c)), wechatMgr, policy)
		case "zsxq":
			col = NewZsxq(s, engine.NewFetcher(c, httpClient(c)), zsxqMgr, policy)
		case "twitter":
			var search TweetSearch
			if c.TwitterClient != nil {
				search = ClientSearch(c.TwitterClient)
			}
			col = NewTwitter(s, search, policy)
		case "hackernews":
			col = NewHackerNews(s, httpClient(c), settings.RecentDays, policy)
		}
		reg.Collectors = append(reg.Collectors, col)
	}
	return reg
}

// httpClient returns the injected client or a fresh per-source one.
func httpClient(c *engine.Config) *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return engine.NewHTTPClient(c.FetchTimeout, c.RequestsPerSecond)
}

// DefaultTokenFile places a credential file under ~/.go_digest.
func DefaultTokenFile(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".go_digest", name)
}
