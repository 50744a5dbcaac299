package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/anatolykoptev/go_digest/internal/engine"
)

// DefaultComposioBase is the hosted tool-execution API.
const DefaultComposioBase = "https://backend.composio.dev"

// ToolExecutor runs one named remote tool and returns its data payload.
type ToolExecutor interface {
	Execute(ctx context.Context, tool string, args map[string]any) (engine.RawRecord, error)
}

// ComposioClient executes tools through the Composio v3 REST API on behalf
// of one connected account.
type ComposioClient struct {
	BaseURL      string
	APIKey       string
	ConnectionID string
	UserID       string
	HTTP         *http.Client
}

// Configured reports whether the client has the credentials to make calls.
func (c *ComposioClient) Configured() bool {
	return c != nil && c.APIKey != "" && (c.ConnectionID != "" || c.UserID != "")
}

type composioRequest struct {
	ConnectedAccountID string         `json:"connected_account_id,omitempty"`
	UserID             string         `json:"user_id,omitempty"`
	Arguments          map[string]any `json:"arguments"`
}

type composioResponse struct {
	Data       json.RawMessage `json:"data"`
	Successful bool            `json:"successful"`
	Error      string          `json:"error"`
}

// Execute posts the tool call. A response with successful=false becomes a
// *engine.RemoteError, transient when the upstream reports rate limiting or
// a server-side failure.
func (c *ComposioClient) Execute(ctx context.Context, tool string, args map[string]any) (engine.RawRecord, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = DefaultComposioBase
	}
	body, err := json.Marshal(composioRequest{
		ConnectedAccountID: c.ConnectionID,
		UserID:             c.UserID,
		Arguments:          args,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s arguments: %w", tool, err)
	}

	data, err := engine.FetchBytes(ctx, c.HTTP, http.MethodPost, base+"/api/v3/tools/execute/"+tool, map[string]string{
		"Content-Type": "application/json",
		"x-api-key":    c.APIKey,
	}, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var resp composioResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", engine.ErrMalformedPage, tool, err)
	}
	if !resp.Successful {
		msg := resp.Error
		if msg == "" {
			msg = "tool reported failure"
		}
		return nil, &engine.RemoteError{Msg: tool + ": " + msg, Transient: transientToolError(msg)}
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return engine.RawRecord{}, nil
	}
	rec, err := engine.DecodeRecord(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s data: %w", engine.ErrMalformedPage, tool, err)
	}
	return rec, nil
}

func transientToolError(msg string) bool {
	m := strings.ToLower(msg)
	for _, sig := range []string{"rate limit", "quota", "timeout", "temporarily", "503", "502", "500", "429"} {
		if strings.Contains(m, sig) {
			return true
		}
	}
	return false
}
