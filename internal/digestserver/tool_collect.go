package digestserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go_digest/internal/engine"
	"github.com/anatolykoptev/go_digest/internal/engine/sources"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CollectOutput is the output of the collect_digest tool.
type CollectOutput struct {
	Digest   engine.Digest `json:"digest"`
	Total    int           `json:"total"`
	Archived bool          `json:"archived"`
	// Error reports run-level failures (login failures, nothing planned).
	// Per-source failures are on each source result.
	Error string `json:"error,omitempty"`
}

func registerCollectDigest(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "collect_digest",
		Description: "Collect recent content from the configured sources (YouTube, WeChat official accounts, ZSXQ groups, Twitter/X, Hacker News). Returns normalized items grouped by source, with per-source counts of stale, dropped and duplicate records. Sessions are re-authenticated automatically when they expire.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input engine.CollectInput) (*mcp.CallToolResult, CollectOutput, error) {
		engine.IncrToolCalls()
		out, err := CollectDigest(ctx, deps, input)
		return nil, out, err
	})
}

// CollectDigest runs one collection. The returned error is only set when the
// run could not start; run-level failures are reported in Error alongside
// the partial digest.
func CollectDigest(ctx context.Context, deps Deps, input engine.CollectInput) (CollectOutput, error) {
	labels, err := selectSources(input.Sources)
	if err != nil {
		return CollectOutput{}, err
	}
	settings, err := loadSettings(input.RecentDays)
	if err != nil {
		return CollectOutput{}, err
	}

	reg := sources.Build(settings)
	run := engine.NewRun(settings.RecentDays, time.Now())
	slog.Info("collect_digest",
		slog.String("run", run.ID),
		slog.Any("sources", labels),
		slog.Int("recent_days", settings.RecentDays))

	dg, runErr := reg.Dispatcher().Run(ctx, run, labels)
	out := CollectOutput{Digest: dg, Total: dg.Total()}
	if runErr != nil {
		out.Error = runErr.Error()
	}

	if input.Archive {
		if deps.Archive == nil {
			slog.Warn("archive requested but not configured", slog.String("run", run.ID))
			return out, nil
		}
		if err := deps.Archive.SaveDigest(ctx, dg); err != nil {
			slog.Error("archive save failed", slog.String("run", run.ID), slog.Any("error", err))
		} else {
			out.Archived = true
		}
	}
	return out, nil
}
