package digestserver

import (
	"context"

	"github.com/anatolykoptev/go_digest/internal/engine"
	"github.com/anatolykoptev/go_digest/internal/engine/sources"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerPlanPreview(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "plan_preview",
		Description: "Show the search plans the next collection would execute, without calling any upstream. Each plan lists its target, item cap and page size, and where the cap and page size came from (global override, entry, source default, or built-in fallback).",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input engine.PlanPreviewInput) (*mcp.CallToolResult, engine.PlanPreviewOutput, error) {
		engine.IncrToolCalls()
		out, err := PlanPreview(input)
		return nil, out, err
	})
}

// PlanPreview builds the plans of the selected enabled sources.
func PlanPreview(input engine.PlanPreviewInput) (engine.PlanPreviewOutput, error) {
	labels, err := selectSources(input.Sources)
	if err != nil {
		return engine.PlanPreviewOutput{}, err
	}
	settings, err := loadSettings(0)
	if err != nil {
		return engine.PlanPreviewOutput{}, err
	}
	plans := sources.Build(settings).Dispatcher().Plans(labels)
	if plans == nil {
		plans = []engine.PlanView{}
	}
	return engine.PlanPreviewOutput{Plans: plans}, nil
}
