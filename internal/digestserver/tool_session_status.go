package digestserver

import (
	"context"

	"github.com/anatolykoptev/go_digest/internal/engine"
	"github.com/anatolykoptev/go_digest/internal/engine/sources"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerSessionStatus(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "session_status",
		Description: "Report the persisted login sessions of the sources that need one (WeChat, ZSXQ): state, principal and expiry. Does not log in.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input engine.SessionStatusInput) (*mcp.CallToolResult, engine.SessionStatusOutput, error) {
		engine.IncrToolCalls()
		return nil, SessionStatus(), nil
	})
}

// SessionStatus reads every session-backed source's persisted credentials.
func SessionStatus() engine.SessionStatusOutput {
	reg := sources.Build(engine.Settings{})
	out := engine.SessionStatusOutput{Sessions: make([]engine.SessionView, 0, len(reg.Sessions))}
	for _, m := range reg.Sessions {
		out.Sessions = append(out.Sessions, m.Status())
	}
	return out
}
