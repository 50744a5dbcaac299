// Package toolutil provides shared helper functions for go_digest MCP tools.
package toolutil

import (
	"strings"

	"github.com/samber/lo"
)

// sourceAliases maps display names and common spellings to source labels.
var sourceAliases = map[string]string{
	"yt":          "youtube",
	"wechat":      "wechat_mp",
	"wechat-mp":   "wechat_mp",
	"weixin":      "wechat_mp",
	"知识星球":        "zsxq",
	"x":           "twitter",
	"hn":          "hackernews",
	"hacker_news": "hackernews",
}

// NormSources lowercases, resolves aliases and dedups source labels.
// Empty input means all sources and is returned as nil.
func NormSources(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if alias, ok := sourceAliases[s]; ok {
			s = alias
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return lo.Uniq(out)
}

// Unknown returns the labels in req that are not in known.
func Unknown(req, known []string) []string {
	return lo.Without(req, known...)
}
