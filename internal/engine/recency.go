package engine

import "time"

// Window is a rolling recency window. The cutoff is computed once per run.
type Window struct {
	Days   int
	Cutoff time.Time
}

// NewWindow returns the window of the last days days ending at now.
func NewWindow(days int, now time.Time) Window {
	if days <= 0 {
		days = DefaultRecentDays
	}
	return Window{Days: days, Cutoff: now.Add(-time.Duration(days) * 24 * time.Hour)}
}

// Recent reports whether t is at or after the cutoff.
func (w Window) Recent(t time.Time) bool {
	return !t.Before(w.Cutoff)
}

// Partition splits items into recent and stale, preserving order.
// Items are not modified.
func (w Window) Partition(items []CanonicalItem) (recent, stale []CanonicalItem) {
	for _, it := range items {
		if w.Recent(it.PublishedAt) {
			recent = append(recent, it)
		} else {
			stale = append(stale, it)
		}
	}
	return recent, stale
}
