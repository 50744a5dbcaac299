package sources

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	twitter "github.com/anatolykoptev/go-twitter"

	"github.com/anatolykoptev/go_digest/internal/engine"
)

const tweetURL = "https://x.com/i/status/"

// Tweet is the part of a timeline entry the collector keeps.
type Tweet struct {
	ID        string
	AuthorID  string
	Text      string
	Likes     int
	Retweets  int
	CreatedAt string
}

// TweetSearch runs one timeline search and returns up to limit tweets.
type TweetSearch func(ctx context.Context, query string, limit int) ([]Tweet, error)

// ClientSearch adapts a go-twitter client.
func ClientSearch(c *twitter.Client) TweetSearch {
	return func(ctx context.Context, query string, limit int) ([]Tweet, error) {
		tweets, err := c.SearchTimeline(ctx, query, limit)
		if err != nil {
			return nil, fmt.Errorf("twitter search: %w", err)
		}
		out := make([]Tweet, 0, len(tweets))
		for _, t := range tweets {
			out = append(out, Tweet{
				ID:        t.ID,
				AuthorID:  t.AuthorID,
				Text:      t.Text,
				Likes:     t.Likes,
				Retweets:  t.Retweets,
				CreatedAt: t.CreatedAt.Format(time.RFC3339),
			})
		}
		return out, nil
	}
}

var handleRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// NewTwitter builds the X/Twitter collector. Accounts become from:handle
// searches, keywords one merged search. The client pages internally, so
// every plan is a single request for its whole cap. A nil search leaves
// the source unavailable.
func NewTwitter(s engine.SourceSettings, search TweetSearch, policy engine.RetryPolicy) *engine.PlanSource {
	src := &engine.PlanSource{
		Key:      "twitter",
		Name:     "Twitter",
		Settings: s,
		Planner: engine.Planner{
			Label:              "twitter",
			Resolve:            fromHandle,
			KeywordSearch:      true,
			FallbackChannelCap: 20,
			FallbackKeywordCap: 20,
			DefaultSuffix:      "-is:retweet",
		},
		Exec:  engine.Executor{Policy: policy},
		Map:   mapTweet,
		Pacer: engine.NewPacer(s.Config.RateLimit),
	}
	if search == nil {
		src.Unavailable = "twitter client not initialized"
		return src
	}
	src.Pages = func(ctx context.Context, req engine.PageRequest) (engine.Page, error) {
		tweets, err := search(ctx, searchQuery(req.Plan), req.Plan.Cap())
		if err != nil {
			return engine.Page{}, err
		}
		page := engine.Page{Items: make([]engine.Discovered, 0, len(tweets))}
		for _, t := range tweets {
			page.Items = append(page.Items, engine.Discovered{ID: t.ID, Record: tweetRecord(t)})
		}
		return page, nil
	}
	return src
}

func fromHandle(e engine.Entry) (string, error) {
	h := strings.TrimPrefix(strings.TrimSpace(or(e.Handle, e.Identifier())), "@")
	if !handleRe.MatchString(h) {
		return "", &engine.ValidationError{Field: "handle", Reason: fmt.Sprintf("%q is not a valid handle", h)}
	}
	return h, nil
}

func searchQuery(p engine.SearchPlan) string {
	if c, ok := p.(engine.ChannelPlan); ok {
		return "from:" + c.CollectionID + " -is:retweet"
	}
	return p.Target()
}

func tweetRecord(t Tweet) engine.RawRecord {
	return engine.RawRecord{
		"id":        t.ID,
		"authorId":  t.AuthorID,
		"text":      t.Text,
		"likes":     t.Likes,
		"retweets":  t.Retweets,
		"createdAt": t.CreatedAt,
	}
}

func mapTweet(raw engine.RawRecord, nctx engine.NormalizeContext) engine.Draft {
	id := raw.String(engine.K("id"))
	text := raw.String(engine.K("text"))
	title, _, _ := strings.Cut(strings.TrimSpace(text), "\n")

	meta := map[string]any{
		"tweetId":  id,
		"authorId": raw.String(engine.K("authorId")),
		"likes":    raw.Int(engine.K("likes")),
		"retweets": raw.Int(engine.K("retweets")),
	}
	if p, ok := nctx.Plan.(engine.ChannelPlan); ok {
		meta["handle"] = p.CollectionID
	}
	link := ""
	if id != "" {
		link = tweetURL + id
	}
	return engine.Draft{
		ID:        id,
		Title:     title,
		Summary:   text,
		URL:       link,
		Published: raw.String(engine.K("createdAt")),
		Metadata:  meta,
	}
}
