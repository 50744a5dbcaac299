package engine

import (
	"net/http"
	"time"

	twitter "github.com/anatolykoptev/go-twitter"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	SourcesFile       string
	RecentDays        int // overrides the sources file when > 0
	Retry             RetryPolicy
	HTTPClient        *http.Client
	RequestsPerSecond float64
	FetchTimeout      time.Duration

	ComposioAPIKey       string
	ComposioBaseURL      string
	ComposioConnectionID string
	ComposioUserID       string

	WeChatTokenFile string
	ZsxqTokenFile   string
	SessionTTL      time.Duration
	MaxReauthPerRun int

	CacheMaxEntries      int
	CacheCleanupInterval time.Duration

	ArchivePath string // SQLite archive; used when DatabaseURL is empty
	DatabaseURL string // Postgres archive

	TwitterClient *twitter.Client // nil = Twitter source disabled
	BrowserClient *BrowserClient  // nil = session-backed sources use net/http
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (sources, session).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	if c.Retry.MaxRetries == 0 && c.Retry.InitialDelay == 0 {
		c.Retry = DefaultRetryPolicy
	}
	if c.Retry.MaxRetries < 0 {
		c.Retry.MaxRetries = 0
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 7 * 24 * time.Hour
	}
	if c.MaxReauthPerRun <= 0 {
		c.MaxReauthPerRun = 1
	}
	cfg = c
	Cfg = &cfg
}
