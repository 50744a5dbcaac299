package engine

import (
	"context"
	"errors"
	"log/slog"
)

// PlanSource is the shared plan-driven collection flow:
// plans -> enumerate -> dedup -> details -> normalize -> recency.
// Sources supply the page fetcher, an optional detail fetcher and a mapper.
type PlanSource struct {
	Key      string // settings key and SeenSet namespace, e.g. "youtube"
	Name     string // CanonicalItem.Source, e.g. "YouTube"
	Settings SourceSettings
	Planner  Planner
	Exec     Executor
	Pages    PageFunc
	// Details resolves identifiers to full records. Nil means the list
	// payload already holds full records.
	Details *BatchFetcher
	Map     Mapper
	// Keep, when set, filters discovered items before details and
	// normalization, e.g. by tag. Filtered items are not counted as dropped.
	Keep  func(d Discovered, plan SearchPlan) bool
	Pacer Pacer
	// Prepare runs once before the first plan, e.g. to establish a session.
	Prepare func(ctx context.Context) error
	// Unavailable, when non-empty, is why the source cannot run. Collect
	// then returns an empty result with a warning.
	Unavailable string
}

func (s *PlanSource) Label() string { return s.Key }

// Plans returns the plans this source would execute.
func (s *PlanSource) Plans() []SearchPlan {
	return s.Planner.Build(s.Settings)
}

// Collect runs every plan sequentially. Plan-level failures are logged and
// skipped. Session failures abort the source and are returned.
func (s *PlanSource) Collect(ctx context.Context, run *Run) (SourceResult, error) {
	res := SourceResult{Label: s.Key}
	if s.Unavailable != "" {
		slog.Warn("source skipped", slog.String("source", s.Key), slog.String("reason", s.Unavailable))
		return res, nil
	}
	plans := s.Plans()
	res.Plans = len(plans)
	if len(plans) == 0 {
		slog.Warn("no plans", slog.String("source", s.Key))
		return res, nil
	}

	if s.Prepare != nil {
		if err := s.Prepare(ctx); err != nil {
			return res, err
		}
	}

	seen := run.Seen(s.Key)
	var items []CanonicalItem
	for i, plan := range plans {
		if i > 0 {
			if err := s.Pacer.Wait(ctx); err != nil {
				return s.finish(run, res, items), err
			}
		}

		found, err := Enumerate(ctx, s.Exec, plan, s.Pages)
		if err != nil {
			slog.Warn("plan failed",
				slog.String("source", s.Key),
				slog.String("target", plan.Target()),
				slog.Int("partial", len(found)),
				slog.Any("error", err))
			if errors.Is(err, ErrLoginFailed) || errors.Is(err, ErrReauthExhausted) || ctx.Err() != nil {
				items = append(items, s.process(ctx, seen, plan, found, &res)...)
				return s.finish(run, res, items), err
			}
		}
		items = append(items, s.process(ctx, seen, plan, found, &res)...)
	}
	return s.finish(run, res, items), nil
}

func (s *PlanSource) process(ctx context.Context, seen *SeenSet, plan SearchPlan, found []Discovered, res *SourceResult) []CanonicalItem {
	fresh, dups := seen.FilterNew(found)
	res.Duplicates += dups
	if s.Keep != nil {
		kept := fresh[:0]
		for _, d := range fresh {
			if s.Keep(d, plan) {
				kept = append(kept, d)
			}
		}
		fresh = kept
	}
	if len(fresh) == 0 {
		return nil
	}

	var records []RawRecord
	if s.Details != nil {
		ids := make([]string, 0, len(fresh))
		for _, d := range fresh {
			if d.ID != "" {
				ids = append(ids, d.ID)
			}
		}
		records = s.Details.FetchAll(ctx, ids)
	} else {
		records = make([]RawRecord, 0, len(fresh))
		for _, d := range fresh {
			records = append(records, d.Record)
		}
	}

	nctx := NormalizeContext{Source: s.Name, Plan: plan}
	out := make([]CanonicalItem, 0, len(records))
	for _, rec := range records {
		it, ok := Normalize(rec, s.Map, nctx)
		if !ok {
			res.Dropped++
			metrics.Dropped.Add(1)
			continue
		}
		metrics.Normalized.Add(1)
		out = append(out, it)
	}
	slog.Info("plan collected",
		slog.String("source", s.Key),
		slog.String("kind", plan.Kind()),
		slog.String("target", plan.Target()),
		slog.Int("found", len(found)),
		slog.Int("new", len(fresh)),
		slog.Int("items", len(out)))
	return out
}

func (s *PlanSource) finish(run *Run, res SourceResult, items []CanonicalItem) SourceResult {
	recent, stale := run.Window.Partition(items)
	res.Items = recent
	res.Stale = len(stale)
	metrics.Stale.Add(int64(len(stale)))
	return res
}
