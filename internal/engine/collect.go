package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Collector gathers canonical items from one source.
type Collector interface {
	Label() string
	Collect(ctx context.Context, run *Run) (SourceResult, error)
}

// Planned is implemented by collectors that can report their plans without
// running them.
type Planned interface {
	Plans() []SearchPlan
}

// Run is the state of one collection run. Seen-sets are per source and are
// discarded with the run.
type Run struct {
	ID      string
	Started time.Time
	Window  Window
	seen    map[string]*SeenSet
}

// NewRun starts a run whose recency window ends at now.
func NewRun(recentDays int, now time.Time) *Run {
	return &Run{
		ID:      uuid.NewString(),
		Started: now,
		Window:  NewWindow(recentDays, now),
		seen:    make(map[string]*SeenSet),
	}
}

// Seen returns the seen-set of a source, creating it on first use.
func (r *Run) Seen(label string) *SeenSet {
	s, ok := r.seen[label]
	if !ok {
		s = NewSeenSet()
		r.seen[label] = s
	}
	return s
}

// Dispatcher runs collectors sequentially in registration order.
type Dispatcher struct {
	order      []string
	collectors map[string]Collector
	known      map[string]bool
}

func NewDispatcher(cs ...Collector) *Dispatcher {
	d := &Dispatcher{collectors: make(map[string]Collector, len(cs))}
	for _, c := range cs {
		if _, dup := d.collectors[c.Label()]; !dup {
			d.order = append(d.order, c.Label())
		}
		d.collectors[c.Label()] = c
	}
	return d
}

// Known declares labels that exist but may not be registered, so that
// selecting a disabled source is reported as such.
func (d *Dispatcher) Known(labels ...string) *Dispatcher {
	if d.known == nil {
		d.known = make(map[string]bool, len(labels))
	}
	for _, l := range labels {
		d.known[l] = true
	}
	return d
}

// missing describes why label has no collector.
func (d *Dispatcher) missing(label string) string {
	if d.known[label] {
		return "source not enabled"
	}
	return "unknown source"
}

// Labels returns the registered labels in run order.
func (d *Dispatcher) Labels() []string { return slices.Clone(d.order) }

// Get returns the collector registered under label.
func (d *Dispatcher) Get(label string) (Collector, bool) {
	c, ok := d.collectors[label]
	return c, ok
}

// Run collects the selected sources (all when labels is empty). A failing
// source yields an empty result and does not stop the others. The digest is
// always returned; the error joins ErrNoPlans when nothing could be planned
// and every login failure.
func (d *Dispatcher) Run(ctx context.Context, run *Run, labels []string) (Digest, error) {
	metrics.Runs.Add(1)
	if len(labels) == 0 {
		labels = d.order
	}
	dg := Digest{RunID: run.ID, Started: run.Started, Cutoff: run.Window.Cutoff}

	var errs []error
	plans := 0
	for _, label := range labels {
		c, ok := d.collectors[label]
		if !ok {
			slog.Warn(d.missing(label), slog.String("source", label))
			continue
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		var res SourceResult
		err := TrackOperation(ctx, "collect:"+label, func(ctx context.Context) error {
			var err error
			res, err = c.Collect(ctx, run)
			return err
		})
		res.Label = label
		plans += res.Plans
		if err != nil {
			metrics.SourceFails.Add(1)
			slog.Error("source failed",
				slog.String("source", label),
				slog.Int("partial", len(res.Items)),
				slog.Any("error", err))
			res.Err = err.Error()
			if errors.Is(err, ErrLoginFailed) {
				errs = append(errs, fmt.Errorf("%s: %w", label, err))
			}
		}
		if res.Items == nil {
			res.Items = []CanonicalItem{}
		}
		slog.Info("source collected",
			slog.String("source", label),
			slog.Int("items", len(res.Items)),
			slog.Int("stale", res.Stale),
			slog.Int("dropped", res.Dropped),
			slog.Int("duplicates", res.Duplicates))
		dg.Sources = append(dg.Sources, res)
	}

	if plans == 0 {
		errs = append(errs, ErrNoPlans)
	}
	dg.Finished = time.Now()
	return dg, errors.Join(errs...)
}

// Plans returns the plans of the selected sources, for previewing.
func (d *Dispatcher) Plans(labels []string) []PlanView {
	if len(labels) == 0 {
		labels = d.order
	}
	var out []PlanView
	for _, label := range labels {
		p, ok := d.collectors[label].(Planned)
		if !ok {
			continue
		}
		for _, plan := range p.Plans() {
			v := plan.View()
			v.Source = label
			out = append(out, v)
		}
	}
	return out
}
