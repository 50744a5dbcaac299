package engine

import (
	"log/slog"
	"strings"
)

// ResolvedFrom records which link of the priority chain produced a value.
type ResolvedFrom string

const (
	FromOverride ResolvedFrom = "override"
	FromEntry    ResolvedFrom = "entry"
	FromSource   ResolvedFrom = "source"
	FromFallback ResolvedFrom = "fallback"
)

// Plan kinds.
const (
	KindChannel = "channel"
	KindKeyword = "keyword"
)

// SearchPlan is one bounded enumeration task. Implementations are
// ChannelPlan and KeywordPlan.
type SearchPlan interface {
	Kind() string
	// Target is the collection identifier or the query string.
	Target() string
	Cap() int
	PageSize() int
	Tags() []string
	View() PlanView
	isPlan()
}

// ChannelPlan enumerates one channel-like collection.
type ChannelPlan struct {
	ChannelID    string
	CollectionID string
	DisplayName  string
	Handle       string
	TagList      []string
	Languages    []string
	MaxItems     int
	Size         int
	CapFrom      ResolvedFrom
	SizeFrom     ResolvedFrom
}

func (p ChannelPlan) Kind() string   { return KindChannel }
func (p ChannelPlan) Target() string { return p.CollectionID }
func (p ChannelPlan) Cap() int       { return p.MaxItems }
func (p ChannelPlan) PageSize() int  { return p.Size }
func (p ChannelPlan) Tags() []string { return p.TagList }
func (ChannelPlan) isPlan()          {}

func (p ChannelPlan) View() PlanView {
	return PlanView{
		Kind: KindChannel, Target: p.CollectionID, Cap: p.MaxItems, PageSize: p.Size,
		CapFrom: string(p.CapFrom), PageSizeFrom: string(p.SizeFrom), Tags: p.TagList,
	}
}

// KeywordPlan runs one merged keyword query.
type KeywordPlan struct {
	Query    string
	Keywords []string
	Language string
	MaxItems int
	Size     int
	CapFrom  ResolvedFrom
	SizeFrom ResolvedFrom
}

func (p KeywordPlan) Kind() string   { return KindKeyword }
func (p KeywordPlan) Target() string { return p.Query }
func (p KeywordPlan) Cap() int       { return p.MaxItems }
func (p KeywordPlan) PageSize() int  { return p.Size }
func (p KeywordPlan) Tags() []string { return nil }
func (KeywordPlan) isPlan()          {}

func (p KeywordPlan) View() PlanView {
	return PlanView{
		Kind: KindKeyword, Target: p.Query, Cap: p.MaxItems, PageSize: p.Size,
		CapFrom: string(p.CapFrom), PageSizeFrom: string(p.SizeFrom),
	}
}

// BuildKeywordQuery merges keywords into one OR query. Multi-word terms are
// quoted, two or more terms are parenthesized, and suffix is appended.
// With no usable keywords the trimmed suffix is returned.
func BuildKeywordQuery(keywords []string, suffix string) string {
	terms := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if strings.ContainsAny(k, " \t") {
			k = `"` + k + `"`
		}
		terms = append(terms, k)
	}
	suffix = strings.TrimSpace(suffix)
	if len(terms) == 0 {
		return suffix
	}

	q := strings.Join(terms, " OR ")
	if len(terms) > 1 {
		q = "(" + q + ")"
	}
	return strings.TrimSpace(q + " " + suffix)
}

// Planner turns source settings into search plans. The zero values of the
// fallback fields are replaced by package defaults.
type Planner struct {
	Label string
	// Resolve validates an entry and returns its collection identifier.
	// Entries that fail are skipped.
	Resolve func(Entry) (string, error)
	// KeywordSearch enables the merged keyword plan.
	KeywordSearch bool

	FallbackChannelCap int
	FallbackKeywordCap int
	FallbackPageSize   int
	// MaxPageSize is the upstream hard limit on page size, 0 for none.
	MaxPageSize     int
	DefaultSuffix   string
	DefaultLanguage string
}

const (
	defaultChannelCap = 20
	defaultKeywordCap = 15
	defaultPageSize   = 50
)

// Build returns the plans for one source: one ChannelPlan per valid enabled
// entry and at most one KeywordPlan.
func (p Planner) Build(s SourceSettings) []SearchPlan {
	if !s.IsEnabled() {
		return nil
	}
	c := s.Config
	var plans []SearchPlan

	for _, e := range s.Entries() {
		if !e.IsEnabled() {
			continue
		}
		id := e.Identifier()
		collection := id
		if p.Resolve != nil {
			var err error
			collection, err = p.Resolve(e)
			if err != nil {
				slog.Warn("skipping invalid entry",
					slog.String("source", p.Label),
					slog.String("id", id),
					slog.Any("error", err))
				continue
			}
		}

		capN, capFrom := resolve(or(p.FallbackChannelCap, defaultChannelCap),
			c.MaxItemsPerChannel, e.MaxItems, c.DefaultMaxItemsPerChannel)
		size, sizeFrom := p.pageSize(c, e.PageSize)

		plan := ChannelPlan{
			ChannelID:    id,
			CollectionID: collection,
			DisplayName:  e.Name,
			Handle:       e.Handle,
			TagList:      e.Tags,
			Languages:    e.Languages,
			MaxItems:     capN,
			Size:         size,
			CapFrom:      capFrom,
			SizeFrom:     sizeFrom,
		}
		slog.Debug("channel plan",
			slog.String("source", p.Label),
			slog.String("collection", collection),
			slog.Int("cap", capN), slog.String("cap_from", string(capFrom)),
			slog.Int("page_size", size), slog.String("page_size_from", string(sizeFrom)))
		plans = append(plans, plan)
	}

	suffix := p.DefaultSuffix
	if c.QuerySuffix != nil {
		suffix = *c.QuerySuffix
	}
	if kws := nonBlank(s.Keywords); len(kws) > 0 {
		if !p.KeywordSearch {
			slog.Warn("keywords ignored, source has no keyword search", slog.String("source", p.Label))
			return plans
		}
		capN, capFrom := resolve(or(p.FallbackKeywordCap, defaultKeywordCap),
			c.MaxResultsPerKeyword, 0, c.DefaultMaxResultsPerKeyword)
		size, sizeFrom := p.pageSize(c, 0)
		lang := or(firstOf(c.DefaultLanguages), c.DefaultLanguage, p.DefaultLanguage)

		plan := KeywordPlan{
			Query:    BuildKeywordQuery(kws, suffix),
			Keywords: kws,
			Language: lang,
			MaxItems: capN,
			Size:     size,
			CapFrom:  capFrom,
			SizeFrom: sizeFrom,
		}
		slog.Debug("keyword plan",
			slog.String("source", p.Label),
			slog.String("query", plan.Query),
			slog.Int("cap", capN), slog.String("cap_from", string(capFrom)))
		plans = append(plans, plan)
	}
	return plans
}

func (p Planner) pageSize(c SourceConfig, entry int) (int, ResolvedFrom) {
	size, from := resolve(or(p.FallbackPageSize, defaultPageSize), c.MaxResultsPerPage, entry, c.DefaultPageSize)
	if p.MaxPageSize > 0 && size > p.MaxPageSize {
		size = p.MaxPageSize
	}
	return size, from
}

// resolve walks override, entry, source default and fallback, returning the
// first positive value and the link it came from.
func resolve(fallback, override, entry, source int) (int, ResolvedFrom) {
	switch {
	case override > 0:
		return override, FromOverride
	case entry > 0:
		return entry, FromEntry
	case source > 0:
		return source, FromSource
	}
	return fallback, FromFallback
}

func or[T comparable](vals ...T) T {
	var zero T
	for _, v := range vals {
		if v != zero {
			return v
		}
	}
	return zero
}

func firstOf(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func nonBlank(ss []string) []string {
	var out []string
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
