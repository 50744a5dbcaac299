package engine

import (
	"context"
	"net/http"

	stealth "github.com/anatolykoptev/go-stealth"
	"golang.org/x/time/rate"
)

// BrowserClient sends requests with a Chrome TLS fingerprint.
type BrowserClient = stealth.BrowserClient

// browserTimeout is the per-request timeout of the browser client, in seconds.
const browserTimeout = 20

// NewBrowserClient creates a Chrome-impersonating client without a proxy
// pool. Session-backed sources must keep the IP their cookies were issued to.
func NewBrowserClient() (*BrowserClient, error) {
	return stealth.NewClient(stealth.WithTimeout(browserTimeout))
}

// BrowserFetcher is a Fetcher over the browser client, paced by Limiter
// when set.
type BrowserFetcher struct {
	Client  *BrowserClient
	Limiter *rate.Limiter
}

func (f BrowserFetcher) Fetch(ctx context.Context, method, url string, headers map[string]string) ([]byte, error) {
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, status, err := f.Client.Do(method, url, headers, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &StatusError{Code: status, Body: snippet(data)}
	}
	return data, nil
}

// NewFetcher prefers the configured browser client and falls back to client.
func NewFetcher(c *Config, client *http.Client) Fetcher {
	if c.BrowserClient != nil {
		var lim *rate.Limiter
		if c.RequestsPerSecond > 0 {
			lim = rate.NewLimiter(rate.Limit(c.RequestsPerSecond), max(1, int(c.RequestsPerSecond)))
		}
		return BrowserFetcher{Client: c.BrowserClient, Limiter: lim}
	}
	return HTTPFetcher{Client: client}
}

// Browser-like request headers, re-exported for sources that talk to web
// endpoints guarded against non-browser clients.
func ChromeHeaders() map[string]string { return stealth.ChromeHeaders() }
func RandomUserAgent() string          { return stealth.RandomUserAgent() }

// BrowserHeaders returns Chrome headers merged with extra, using the
// canonical header names net/http expects.
func BrowserHeaders(extra map[string]string) map[string]string {
	h := make(map[string]string, len(extra)+4)
	for k, v := range ChromeHeaders() {
		ck := http.CanonicalHeaderKey(k)
		if ck == "Accept-Encoding" {
			continue // let net/http negotiate and decode gzip itself
		}
		h[ck] = v
	}
	if h["User-Agent"] == "" {
		h["User-Agent"] = RandomUserAgent()
	}
	for k, v := range extra {
		h[http.CanonicalHeaderKey(k)] = v
	}
	return h
}
