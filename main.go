// go_digest: multi-source content digest MCP server.
//
// Collects recent items from YouTube (through Composio), WeChat official
// accounts, ZSXQ groups, Twitter/X and Hacker News, normalizes them into one
// canonical shape and exposes collection as MCP tools: collect_digest,
// plan_preview, session_status, digest_history.
//
// With RUN_ONCE set, it collects once, prints the digest as JSON and exits.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	twitter "github.com/anatolykoptev/go-twitter"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_digest/internal/digestserver"
	"github.com/anatolykoptev/go_digest/internal/engine"
	"github.com/anatolykoptev/go_digest/internal/engine/archive"
	"github.com/anatolykoptev/go_digest/internal/engine/sources"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	initLogger(env.Str("LOG_LEVEL", "info"))
	initEngine()

	store := openArchive()
	if store != nil {
		defer store.Close()
	}
	deps := digestserver.Deps{Archive: store}

	if env.Str("RUN_ONCE", "") != "" {
		code := runOnce(deps)
		if store != nil {
			store.Close()
		}
		os.Exit(code)
	}

	mcpPort := env.Str("MCP_PORT", "8892")
	slog.Info("starting go_digest", slog.String("port", mcpPort))

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_digest",
		Version: version,
	}, nil)

	digestserver.RegisterTools(server, deps)
	slog.Info("tools registered", slog.Int("count", 4))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_digest",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 900 * time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}
}

func initLogger(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      l,
		TimeFormat: time.RFC3339,
	})))
}

func initEngine() {
	c := engine.Config{
		SourcesFile: env.Str("SOURCES_FILE", "sources.yaml"),
		RecentDays:  env.Int("RECENT_DAYS", 0),
		Retry: engine.RetryPolicy{
			MaxRetries:   env.Int("RETRY_MAX", engine.DefaultRetryPolicy.MaxRetries),
			InitialDelay: env.Duration("RETRY_INITIAL_DELAY", engine.DefaultRetryPolicy.InitialDelay),
			MaxDelay:     env.Duration("RETRY_MAX_DELAY", engine.DefaultRetryPolicy.MaxDelay),
		},
		RequestsPerSecond: env.Float("REQUESTS_PER_SECOND", 2),
		FetchTimeout:      env.Duration("FETCH_TIMEOUT", 20*time.Second),

		ComposioAPIKey:       env.Str("COMPOSIO_API_KEY", ""),
		ComposioBaseURL:      env.Str("COMPOSIO_BASE_URL", sources.DefaultComposioBase),
		ComposioConnectionID: env.Str("COMPOSIO_CONNECTION_ID_YOUTUBE", ""),
		ComposioUserID:       env.Str("COMPOSIO_USER_ID_YOUTUBE", ""),

		WeChatTokenFile: env.Str("WECHAT_TOKEN_FILE", sources.DefaultTokenFile("wechat-token.json")),
		ZsxqTokenFile:   env.Str("ZSXQ_TOKEN_FILE", sources.DefaultTokenFile("zsxq-token.json")),
		SessionTTL:      env.Duration("SESSION_TTL", 7*24*time.Hour),
		MaxReauthPerRun: env.Int("MAX_REAUTH_PER_RUN", 1),

		CacheMaxEntries:      env.Int("CACHE_MAX_ENTRIES", 1000),
		CacheCleanupInterval: env.Duration("CACHE_CLEANUP_INTERVAL", 300*time.Second),

		ArchivePath: env.Str("ARCHIVE_PATH", sources.DefaultTokenFile("archive.db")),
		DatabaseURL: env.Str("DATABASE_URL", ""),
	}

	// Chrome-fingerprint client for the session-backed web sources. No proxy
	// pool: WeChat and ZSXQ cookies are bound to the login IP.
	bc, err := engine.NewBrowserClient()
	if err != nil {
		slog.Warn("stealth client init failed, using net/http", slog.Any("error", err))
	} else {
		c.BrowserClient = bc
		slog.Info("stealth browser client initialized")
	}

	// Twitter client (optional, guest mode if no accounts configured)
	accounts := twitter.ParseAccounts(env.Str("TWITTER_ACCOUNTS", ""))
	openCount := 2
	if len(accounts) > 0 {
		openCount = 0
	}
	tw, err := twitter.NewClient(twitter.ClientConfig{
		Accounts:         accounts,
		OpenAccountCount: openCount,
	})
	if err != nil {
		slog.Warn("twitter client init failed, twitter source disabled", slog.Any("error", err))
	} else {
		c.TwitterClient = tw
		slog.Info("twitter client ready", slog.Int("pool_size", tw.Pool().Size()))
	}

	engine.Init(c)

	cacheTTL := env.Duration("CACHE_TTL", 6*time.Hour)
	engine.InitCache(env.Str("REDIS_URL", ""), cacheTTL, c.CacheMaxEntries, c.CacheCleanupInterval)
}

// openArchive returns nil when no archive can be opened; collection still
// works without one.
func openArchive() archive.Store {
	c := engine.Cfg
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	store, err := archive.Open(ctx, c.DatabaseURL, c.ArchivePath)
	if err != nil {
		slog.Warn("archive unavailable", slog.Any("error", err))
		return nil
	}
	slog.Info("archive ready", slog.String("path", filepath.Clean(c.ArchivePath)), slog.Bool("postgres", c.DatabaseURL != ""))
	return store
}

// runOnce collects the sources named in RUN_ONCE_SOURCES (all when empty),
// prints the digest to stdout and returns the process exit code.
func runOnce(deps digestserver.Deps) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	input := engine.CollectInput{
		Sources: env.List("RUN_ONCE_SOURCES", ""),
		Archive: deps.Archive != nil,
	}
	out, err := digestserver.CollectDigest(ctx, deps, input)
	if err != nil {
		slog.Error("collect failed", slog.Any("error", err))
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out.Digest); err != nil {
		slog.Error("write digest", slog.Any("error", err))
		return 1
	}
	slog.Info("run complete",
		slog.String("run", out.Digest.RunID),
		slog.Int("items", out.Total),
		slog.Bool("archived", out.Archived))
	if out.Error != "" {
		slog.Error("run finished with errors", slog.String("error", out.Error))
		return 1
	}
	return 0
}
