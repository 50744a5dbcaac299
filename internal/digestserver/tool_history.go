package digestserver

import (
	"context"
	"errors"

	"github.com/anatolykoptev/go_digest/internal/engine"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerDigestHistory(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "digest_history",
		Description: "List recently archived collection runs, newest first, with item and source counts.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input engine.HistoryInput) (*mcp.CallToolResult, engine.HistoryOutput, error) {
		engine.IncrToolCalls()
		out, err := DigestHistory(ctx, deps, input)
		return nil, out, err
	})
}

// DigestHistory lists archived runs.
func DigestHistory(ctx context.Context, deps Deps, input engine.HistoryInput) (engine.HistoryOutput, error) {
	if deps.Archive == nil {
		return engine.HistoryOutput{}, errors.New("archive is not configured")
	}
	runs, err := deps.Archive.ListRuns(ctx, input.Limit)
	if err != nil {
		return engine.HistoryOutput{}, err
	}
	if runs == nil {
		runs = []engine.RunSummary{}
	}
	return engine.HistoryOutput{Runs: runs}, nil
}
