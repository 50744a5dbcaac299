package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// NewHTTPClient returns a client with a public-suffix aware cookie jar and a
// token-bucket limiter of rps requests per second (0 = unlimited).
// Each source gets its own client so limits and cookies do not leak.
func NewHTTPClient(timeout time.Duration, rps float64) *http.Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	var rt http.RoundTripper = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     60 * time.Second,
	}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		rt = &limitedTransport{base: rt, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
	}
	return &http.Client{Timeout: timeout, Transport: rt, Jar: jar}
}

type limitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// Fetcher performs one request and returns the body of a 2xx response.
// Non-2xx statuses are returned as *StatusError.
type Fetcher interface {
	Fetch(ctx context.Context, method, url string, headers map[string]string) ([]byte, error)
}

// HTTPFetcher is a Fetcher over net/http.
type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, method, url string, headers map[string]string) ([]byte, error) {
	return FetchBytes(ctx, f.Client, method, url, headers, nil)
}

// FetchBytes performs one request and returns the body of a 2xx response.
// Other statuses become *StatusError so the classifier can decide on retries.
func FetchBytes(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if _, ok := headers["User-Agent"]; !ok {
		req.Header.Set("User-Agent", RandomUserAgent())
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet(data)}
	}
	return data, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	return TruncateRunes(s, 200)
}
