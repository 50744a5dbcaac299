package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Discovered is one identifier found while enumerating a plan. Record holds
// the list payload for sources whose list API already returns full records.
type Discovered struct {
	ID     string
	Record RawRecord
}

// PageRequest asks for one page of a plan.
type PageRequest struct {
	Plan   SearchPlan
	Cursor string
	Size   int
}

// Page is one page of results. An empty NextCursor ends enumeration.
type Page struct {
	Items      []Discovered
	NextCursor string
}

// PageFunc fetches one page. Returning ErrMalformedPage ends enumeration
// without an error.
type PageFunc func(ctx context.Context, req PageRequest) (Page, error)

// PageCursor is the enumeration state of one plan. It is never persisted.
type PageCursor struct {
	Token     string
	Remaining int
}

// Enumerate pages through plan until its cap is reached, the upstream stops
// returning a cursor, or a page comes back empty. Every request goes through
// ex. On failure the items gathered so far are returned with the error.
func Enumerate(ctx context.Context, ex Executor, plan SearchPlan, fetch PageFunc) ([]Discovered, error) {
	cur := PageCursor{Remaining: plan.Cap()}
	size := plan.PageSize()
	if size <= 0 {
		size = cur.Remaining
	}

	var out []Discovered
	for page := 1; cur.Remaining > 0; page++ {
		req := PageRequest{Plan: plan, Cursor: cur.Token, Size: min(size, cur.Remaining)}
		res, err := Execute(ctx, ex, func(ctx context.Context) (Page, error) {
			return fetch(ctx, req)
		})
		metrics.Pages.Add(1)
		if err != nil {
			if errors.Is(err, ErrMalformedPage) {
				slog.Warn("malformed page, stopping",
					slog.String("target", plan.Target()),
					slog.Int("page", page),
					slog.Any("error", err))
				break
			}
			metrics.PageErrors.Add(1)
			return out, fmt.Errorf("page %d of %s: %w", page, plan.Target(), err)
		}
		if len(res.Items) == 0 {
			break
		}

		items := res.Items
		if len(items) > cur.Remaining {
			items = items[:cur.Remaining]
		}
		out = append(out, items...)
		cur.Remaining -= len(res.Items)

		if res.NextCursor == "" || res.NextCursor == cur.Token {
			break
		}
		cur.Token = res.NextCursor
	}

	slog.Debug("plan enumerated",
		slog.String("kind", plan.Kind()),
		slog.String("target", plan.Target()),
		slog.Int("found", len(out)))
	return out, nil
}

// SeenSet holds the identifiers already emitted in one run. It is owned by a
// single goroutine.
type SeenSet struct {
	ids map[string]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{ids: make(map[string]struct{})}
}

// Add records id and reports whether it was new.
func (s *SeenSet) Add(id string) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *SeenSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *SeenSet) Len() int { return len(s.ids) }

// FilterNew keeps the first occurrence of every identifier and records it.
// Items without an identifier pass through unrecorded.
func (s *SeenSet) FilterNew(items []Discovered) (fresh []Discovered, dups int) {
	fresh = make([]Discovered, 0, len(items))
	for _, it := range items {
		if it.ID != "" && !s.Add(it.ID) {
			dups++
			continue
		}
		fresh = append(fresh, it)
	}
	metrics.Duplicates.Add(int64(dups))
	return fresh, dups
}
