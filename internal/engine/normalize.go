package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Field limits of a canonical item, in runes.
const (
	TitleMaxRunes   = 120
	SummaryMaxRunes = 400
)

// Draft is what a source-specific Mapper extracts from a raw record, before
// validation and sanitization.
type Draft struct {
	ID        string
	Title     string
	Summary   string
	URL       string
	Published string
	// Source overrides NormalizeContext.Source, e.g. with an account name.
	Source   string
	Tags     []string
	Metadata map[string]any
}

// NormalizeContext carries per-plan information into normalization.
type NormalizeContext struct {
	Source string
	Plan   SearchPlan
}

// Mapper extracts a Draft from one raw record.
type Mapper func(raw RawRecord, nctx NormalizeContext) Draft

// Normalize maps, validates and sanitizes raw into a CanonicalItem. Records
// without an id, a title or a parseable publish time are dropped (false).
// Normalize holds no state; equal inputs yield equal outputs.
func Normalize(raw RawRecord, mapFn Mapper, nctx NormalizeContext) (CanonicalItem, bool) {
	d := mapFn(raw, nctx)

	id := strings.TrimSpace(d.ID)
	if id == "" {
		return CanonicalItem{}, false
	}
	title := Sanitize(d.Title)
	if title == "" {
		return CanonicalItem{}, false
	}
	published, ok := ParseTimestamp(d.Published)
	if !ok {
		return CanonicalItem{}, false
	}
	summary := Sanitize(d.Summary)
	if summary == "" {
		summary = title
	}

	meta := make(map[string]any, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		meta[k] = v
	}
	var planTags []string
	if nctx.Plan != nil {
		planTags = nctx.Plan.Tags()
	}
	if tags := concatTags(planTags, d.Tags); len(tags) > 0 {
		meta["tags"] = tags
	}

	source := nctx.Source
	if d.Source != "" {
		source = d.Source
	}
	return CanonicalItem{
		ID:          id,
		Title:       TruncateRunes(title, TitleMaxRunes),
		Summary:     TruncateRunes(summary, SummaryMaxRunes),
		URL:         strings.TrimSpace(d.URL),
		Source:      source,
		PublishedAt: published,
		Metadata:    meta,
	}, true
}

// concatTags appends raw tags to plan tags. Duplicates are kept.
func concatTags(plan, raw []string) []string {
	if len(plan) == 0 && len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(plan)+len(raw))
	out = append(out, plan...)
	return append(out, raw...)
}

// timestampLayouts are tried before falling back to dateparse.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700", // zsxq
}

// ParseTimestamp accepts RFC 3339, unix seconds or milliseconds, and any
// layout dateparse recognizes. Results are in UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return time.Time{}, false
		}
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// CanonicalMapper maps a record produced by ItemRecord back to a Draft.
// Normalizing an already canonical item is the identity.
func CanonicalMapper(raw RawRecord, _ NormalizeContext) Draft {
	d := Draft{
		ID:        raw.String(K("id")),
		Title:     raw.String(K("title")),
		Summary:   raw.String(K("summary")),
		URL:       raw.String(K("url")),
		Published: raw.String(K("publishedAt")),
		Source:    raw.String(K("source")),
	}
	if m := raw.Object(K("metadata")); len(m) > 0 {
		d.Metadata = make(map[string]any, len(m))
		for k, v := range m {
			if k == "tags" {
				continue
			}
			d.Metadata[k] = v
		}
		d.Tags = m.Strings(K("tags"))
	}
	return d
}

// ItemRecord turns a canonical item back into a raw record.
func ItemRecord(it CanonicalItem) RawRecord {
	meta := make(map[string]any, len(it.Metadata))
	for k, v := range it.Metadata {
		meta[k] = v
	}
	return RawRecord{
		"id":          it.ID,
		"title":       it.Title,
		"summary":     it.Summary,
		"url":         it.URL,
		"source":      it.Source,
		"publishedAt": it.PublishedAt.Format(time.RFC3339Nano),
		"metadata":    meta,
	}
}
