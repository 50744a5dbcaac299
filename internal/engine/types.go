package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// --- Canonical output ---

// CanonicalItem is the normalized, validated content record passed downstream.
type CanonicalItem struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Summary     string         `json:"summary"`
	URL         string         `json:"url"`
	Source      string         `json:"source"`
	PublishedAt time.Time      `json:"published_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SourceResult is the outcome of collecting one source.
type SourceResult struct {
	Label      string          `json:"label"`
	Items      []CanonicalItem `json:"items"`
	Stale      int             `json:"stale"`
	Dropped    int             `json:"dropped"`
	Duplicates int             `json:"duplicates"`
	Plans      int             `json:"plans"`
	Err        string          `json:"error,omitempty"`
}

// Digest is the grouped result of one collection run.
type Digest struct {
	RunID    string         `json:"run_id"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Cutoff   time.Time      `json:"cutoff"`
	Sources  []SourceResult `json:"sources"`
}

// Total returns the number of recent items across all sources.
func (d Digest) Total() int {
	n := 0
	for _, s := range d.Sources {
		n += len(s.Items)
	}
	return n
}

// --- Raw records ---

// Key names a field that upstream APIs spell either in camelCase or
// snake_case. Primary is looked up first.
type Key struct {
	Primary  string
	Fallback string
}

// K builds a Key whose fallback is the snake_case form of name.
func K(name string) Key {
	snake := toSnake(name)
	if snake == name {
		return Key{Primary: name}
	}
	return Key{Primary: name, Fallback: snake}
}

// K2 builds a Key from two unrelated spellings, e.g. cover / cover_img.
func K2(primary, fallback string) Key {
	return Key{Primary: primary, Fallback: fallback}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RawRecord is one untyped record as returned by an upstream API.
type RawRecord map[string]any

// DecodeRecord parses a JSON object, keeping numbers as json.Number.
func DecodeRecord(data []byte) (RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var r RawRecord
	if err := dec.Decode(&r); err != nil {
		return nil, err
	}
	return r, nil
}

// Lookup returns the value stored under k.Primary, falling back to k.Fallback.
// Null values and empty strings count as missing.
func (r RawRecord) Lookup(k Key) (any, bool) {
	if r == nil {
		return nil, false
	}
	if v, ok := r[k.Primary]; ok && !blank(v) {
		return v, true
	}
	if k.Fallback != "" {
		if v, ok := r[k.Fallback]; ok && !blank(v) {
			return v, true
		}
	}
	return nil, false
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// String returns the field as a string. Numbers are formatted.
func (r RawRecord) String(k Key) string {
	v, ok := r.Lookup(k)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}

// Int64 coerces the field to an integer. Missing or unparsable values yield 0.
func (r RawRecord) Int64(k Key) int64 {
	v, ok := r.Lookup(k)
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(t)
	case int:
		return int64(t)
	case int64:
		return t
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// Int is Int64 narrowed to int.
func (r RawRecord) Int(k Key) int {
	return int(r.Int64(k))
}

// Object returns a nested object, or nil.
func (r RawRecord) Object(k Key) RawRecord {
	v, ok := r.Lookup(k)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case RawRecord:
		return t
	case map[string]any:
		return RawRecord(t)
	}
	return nil
}

// Objects returns a nested array of objects. Non-object elements are skipped.
func (r RawRecord) Objects(k Key) []RawRecord {
	v, ok := r.Lookup(k)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []RawRecord:
		return t
	case []map[string]any:
		out := make([]RawRecord, 0, len(t))
		for _, m := range t {
			out = append(out, m)
		}
		return out
	case []any:
		out := make([]RawRecord, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// Strings returns a nested array of strings. Non-string elements are skipped.
func (r RawRecord) Strings(k Key) []string {
	v, ok := r.Lookup(k)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Path walks nested objects and returns the string at the end of keys.
func (r RawRecord) Path(keys ...Key) string {
	cur := r
	for i, k := range keys {
		if cur == nil {
			return ""
		}
		if i == len(keys)-1 {
			return cur.String(k)
		}
		cur = cur.Object(k)
	}
	return ""
}

// --- MCP tool types ---

// CollectInput is the input for the collect_digest tool.
type CollectInput struct {
	Sources    []string `json:"sources,omitempty" jsonschema:"Source labels to collect (youtube, wechat_mp, zsxq, twitter, hackernews). Default: all enabled"`
	RecentDays int      `json:"recent_days,omitempty" jsonschema:"Recency window in days (default: from settings, usually 7)"`
	Archive    bool     `json:"archive,omitempty" jsonschema:"Persist the digest to the archive (default: false)"`
}

// PlanPreviewInput is the input for the plan_preview tool.
type PlanPreviewInput struct {
	Sources []string `json:"sources,omitempty" jsonschema:"Source labels to plan (default: all enabled)"`
}

// PlanView is a serializable view of one search plan.
type PlanView struct {
	Source       string   `json:"source"`
	Kind         string   `json:"kind"`
	Target       string   `json:"target"`
	Cap          int      `json:"cap"`
	PageSize     int      `json:"page_size"`
	CapFrom      string   `json:"cap_from"`
	PageSizeFrom string   `json:"page_size_from"`
	Tags         []string `json:"tags,omitempty"`
}

// PlanPreviewOutput is the output of the plan_preview tool.
type PlanPreviewOutput struct {
	Plans []PlanView `json:"plans"`
}

// SessionStatusInput is the input for the session_status tool.
type SessionStatusInput struct{}

// SessionView describes one persisted session.
type SessionView struct {
	Source    string    `json:"source"`
	State     string    `json:"state"`
	Principal string    `json:"principal,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// SessionStatusOutput is the output of the session_status tool.
type SessionStatusOutput struct {
	Sessions []SessionView `json:"sessions"`
}

// HistoryInput is the input for the digest_history tool.
type HistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Max runs to list (default: 10)"`
}

// RunSummary is one archived run.
type RunSummary struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Items    int       `json:"items"`
	Sources  int       `json:"sources"`
}

// HistoryOutput is the output of the digest_history tool.
type HistoryOutput struct {
	Runs []RunSummary `json:"runs"`
}
