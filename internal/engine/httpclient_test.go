package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"ok":true}`))
		case "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("try later"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewHTTPClient(5*time.Second, 0)

	data, err := FetchBytes(context.Background(), client, http.MethodGet, srv.URL+"/ok", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("body = %q", data)
	}

	_, err = FetchBytes(context.Background(), client, http.MethodGet, srv.URL+"/busy", nil, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 503 || se.Body != "try later" {
		t.Fatalf("expected 503 StatusError, got %v", err)
	}
	if Classify(err) != Retryable {
		t.Error("503 should be retryable")
	}

	_, err = FetchBytes(context.Background(), client, http.MethodGet, srv.URL+"/gone", nil, nil)
	if Classify(err) != Fatal {
		t.Errorf("404 should be fatal, got %v", Classify(err))
	}
}

func TestNewHTTPClientRateLimited(t *testing.T) {
	c := NewHTTPClient(time.Second, 2)
	if _, ok := c.Transport.(*limitedTransport); !ok {
		t.Errorf("transport = %T, want *limitedTransport", c.Transport)
	}
	if c.Jar == nil {
		t.Error("cookie jar not set")
	}
}

func TestBrowserHeaders(t *testing.T) {
	h := BrowserHeaders(map[string]string{"referer": "https://example.com/"})
	if h["Referer"] != "https://example.com/" {
		t.Errorf("extra header not canonicalized: %v", h)
	}
	if h["User-Agent"] == "" {
		t.Error("user agent missing")
	}
	if _, ok := h["Accept-Encoding"]; ok {
		t.Error("accept-encoding must be left to net/http")
	}
}

func TestNewFetcherFallsBackToHTTP(t *testing.T) {
	client := NewHTTPClient(time.Second, 0)
	f, ok := NewFetcher(&Config{}, client).(HTTPFetcher)
	if !ok {
		t.Fatalf("expected HTTPFetcher without a browser client")
	}
	if f.Client != client {
		t.Error("HTTPFetcher should wrap the given client")
	}
}

func TestBrowserFetcher(t *testing.T) {
	bc, err := NewBrowserClient()
	if err != nil {
		t.Skipf("browser client unavailable: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "sid=1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := NewFetcher(&Config{BrowserClient: bc, RequestsPerSecond: 10}, nil)
	if _, ok := f.(BrowserFetcher); !ok {
		t.Fatalf("expected BrowserFetcher, got %T", f)
	}

	data, err := f.Fetch(context.Background(), http.MethodGet, srv.URL, map[string]string{"Cookie": "sid=1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("body = %q", data)
	}

	_, err = f.Fetch(context.Background(), http.MethodGet, srv.URL, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 StatusError, got %v", err)
	}
}
