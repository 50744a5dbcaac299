package digestserver

import (
	"fmt"
	"strings"

	"github.com/anatolykoptev/go_digest/internal/engine"
	"github.com/anatolykoptev/go_digest/internal/engine/archive"
	"github.com/anatolykoptev/go_digest/internal/engine/sources"
	"github.com/anatolykoptev/go_digest/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Deps are the long-lived resources shared by the tools.
type Deps struct {
	// Archive is nil when no archive could be opened.
	Archive archive.Store
}

// RegisterTools registers the digest tools on the given MCP server:
// collect_digest, plan_preview, session_status, digest_history.
func RegisterTools(server *mcp.Server, deps Deps) {
	registerCollectDigest(server, deps)
	registerPlanPreview(server)
	registerSessionStatus(server)
	registerDigestHistory(server, deps)
}

// loadSettings reads the sources file and applies the recency overrides:
// the tool input wins over the process config, which wins over the file.
func loadSettings(recentDays int) (engine.Settings, error) {
	s, err := engine.LoadSettings(engine.Cfg.SourcesFile)
	if err != nil {
		return engine.Settings{}, err
	}
	if engine.Cfg.RecentDays > 0 {
		s.RecentDays = engine.Cfg.RecentDays
	}
	if recentDays > 0 {
		s.RecentDays = recentDays
	}
	return s, nil
}

// selectSources normalizes requested labels and rejects unknown ones.
func selectSources(requested []string) ([]string, error) {
	labels := toolutil.NormSources(requested)
	if bad := toolutil.Unknown(labels, sources.Labels); len(bad) > 0 {
		return nil, fmt.Errorf("unknown sources: %s (known: %s)",
			strings.Join(bad, ", "), strings.Join(sources.Labels, ", "))
	}
	return labels, nil
}
