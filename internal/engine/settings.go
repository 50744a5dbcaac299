package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRecentDays is the recency window when settings do not name one.
const DefaultRecentDays = 7

// Settings is the parsed sources file.
type Settings struct {
	RecentDays int                       `yaml:"recent_days"`
	Sources    map[string]SourceSettings `yaml:"sources"`
}

// SourceSettings configures one source.
type SourceSettings struct {
	Label    string       `yaml:"-"`
	Enabled  *bool        `yaml:"enabled"`
	Channels []Entry      `yaml:"channels"`
	Accounts []Entry      `yaml:"accounts"`
	Groups   []Entry      `yaml:"groups"`
	Keywords []string     `yaml:"keywords"`
	Config   SourceConfig `yaml:"config"`
}

// IsEnabled reports whether the source should run. Absent means enabled.
func (s SourceSettings) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Entries returns every channel-like entry regardless of the key it was
// listed under.
func (s SourceSettings) Entries() []Entry {
	out := make([]Entry, 0, len(s.Channels)+len(s.Accounts)+len(s.Groups))
	out = append(out, s.Channels...)
	out = append(out, s.Accounts...)
	return append(out, s.Groups...)
}

// Entry is one channel, account or group.
type Entry struct {
	ID        string   `yaml:"id"`
	ChannelID string   `yaml:"channel_id"`
	FakeID    string   `yaml:"fakeid"`
	GroupID   string   `yaml:"group_id"`
	Name      string   `yaml:"name"`
	Handle    string   `yaml:"handle"`
	Tags      []string `yaml:"tags"`
	Languages []string `yaml:"languages"`
	Enabled   *bool    `yaml:"enabled"`
	MaxItems  int      `yaml:"max_items"`
	PageSize  int      `yaml:"page_size"`
}

// Identifier returns the first non-empty identifier field.
func (e Entry) Identifier() string {
	for _, s := range []string{e.ID, e.ChannelID, e.FakeID, e.GroupID, e.Handle} {
		if s != "" {
			return s
		}
	}
	return ""
}

// IsEnabled reports whether the entry should be planned. Absent means enabled.
func (e Entry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// SourceConfig holds per-source overrides and defaults.
type SourceConfig struct {
	// Global overrides win over everything else.
	MaxItemsPerChannel   int `yaml:"max_items_per_channel"`
	MaxResultsPerKeyword int `yaml:"max_results_per_keyword"`
	MaxResultsPerPage    int `yaml:"max_results_per_page"`

	DefaultMaxItemsPerChannel   int      `yaml:"default_max_items_per_channel"`
	DefaultMaxResultsPerKeyword int      `yaml:"default_max_results_per_keyword"`
	DefaultPageSize             int      `yaml:"default_page_size"`
	DefaultLanguages            []string `yaml:"default_languages"`
	DefaultLanguage             string   `yaml:"default_language"`

	// QuerySuffix is nil when unset; an explicit empty string disables it.
	QuerySuffix *string   `yaml:"query_suffix"`
	BatchSize   int       `yaml:"batch_size"`
	RateLimit   RateLimit `yaml:"rate_limit"`
	APIBase     string    `yaml:"api_base"`
	WebBase     string    `yaml:"web_base"`
}

// RateLimit bounds the random pause between plans.
type RateLimit struct {
	MinDelay time.Duration `yaml:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay"`
}

// LoadSettings reads and parses a sources file. Environment references
// (${VAR}) are expanded before parsing. A missing file yields empty settings.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("sources file not found, no sources configured", slog.String("path", path))
		return Settings{RecentDays: DefaultRecentDays}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings parses sources YAML and applies defaults.
func ParseSettings(data []byte) (Settings, error) {
	var s Settings
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &s); err != nil {
		return Settings{}, fmt.Errorf("%w: parse sources: %w", ErrConfig, err)
	}
	if s.RecentDays <= 0 {
		s.RecentDays = DefaultRecentDays
	}
	for label, src := range s.Sources {
		src.Label = label
		s.Sources[label] = src
	}
	return s, nil
}

// Source returns the settings for label. Unknown labels are disabled.
func (s Settings) Source(label string) SourceSettings {
	if src, ok := s.Sources[label]; ok {
		return src
	}
	off := false
	return SourceSettings{Label: label, Enabled: &off}
}
