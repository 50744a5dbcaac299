package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	Runs        atomic.Int64
	Pages       atomic.Int64
	PageErrors  atomic.Int64
	Batches     atomic.Int64
	BatchErrors atomic.Int64
	Retries     atomic.Int64
	Reauths     atomic.Int64
	Logins      atomic.Int64
	Normalized  atomic.Int64
	Dropped     atomic.Int64
	Stale       atomic.Int64
	Duplicates  atomic.Int64
	SourceFails atomic.Int64
	ToolCalls   atomic.Int64
}

var metricKeys = []string{
	"runs", "pages", "page_errors",
	"batches", "batch_errors",
	"retries", "reauths", "logins",
	"normalized", "dropped", "stale", "duplicates",
	"source_failures", "tool_calls",
	"cache_hits", "cache_misses",
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"runs":            metrics.Runs.Load(),
		"pages":           metrics.Pages.Load(),
		"page_errors":     metrics.PageErrors.Load(),
		"batches":         metrics.Batches.Load(),
		"batch_errors":    metrics.BatchErrors.Load(),
		"retries":         metrics.Retries.Load(),
		"reauths":         metrics.Reauths.Load(),
		"logins":          metrics.Logins.Load(),
		"normalized":      metrics.Normalized.Load(),
		"dropped":         metrics.Dropped.Load(),
		"stale":           metrics.Stale.Load(),
		"duplicates":      metrics.Duplicates.Load(),
		"source_failures": metrics.SourceFails.Load(),
		"tool_calls":      metrics.ToolCalls.Load(),
		"cache_hits":      hits,
		"cache_misses":    misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for sub-packages.
func IncrLogins()    { metrics.Logins.Add(1) }
func IncrToolCalls() { metrics.ToolCalls.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
