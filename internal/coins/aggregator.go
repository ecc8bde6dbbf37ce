package coins

import (
	"frserver/internal/logger"
)

// Aggregator turns the bursty per-frame coin detections of one session into a
// small stable "currently visible" set. Detections are recorded in a trailing
// time window; a summary takes one descriptor per distinct coin seen within the
// window and backfills with featured coins from the current batch until the
// minimum display count is reached.
//
// An Aggregator belongs to exactly one session and is only touched from that
// session's goroutine, so it needs no locking.
type Aggregator struct {
	window   float64 // seconds
	minCount int
	entries  []windowEntry
	info     map[string]Descriptor
	logger   *logger.Logger
}

type windowEntry struct {
	seenAt float64
	id     string
}

// NewAggregator creates an aggregator with the given trailing window (seconds)
// and minimum summary size.
func NewAggregator(window float64, minCount int, logger *logger.Logger) *Aggregator {
	return &Aggregator{
		window:   window,
		minCount: minCount,
		info:     make(map[string]Descriptor),
		logger:   logger,
	}
}

// Ingest records a detection batch at the given time. Non-featured coins enter
// the window; every descriptor is cached by id for later lookup regardless of
// window membership.
func (a *Aggregator) Ingest(batch []Descriptor, now float64) {
	for _, d := range batch {
		a.info[d.ID] = d
		if !d.Featured {
			a.entries = append(a.entries, windowEntry{seenAt: now, id: d.ID})
		}
	}
}

// Summarize prunes the window and returns one descriptor per distinct coin
// still inside it, first-seen order. When fewer than minCount distinct coins
// remain, featured descriptors from the current batch are appended in batch
// order until minCount is reached or the batch is exhausted.
func (a *Aggregator) Summarize(batch []Descriptor, now float64) []Descriptor {
	a.prune(now)

	seen := make(map[string]bool)
	var summary []Descriptor
	for _, e := range a.entries {
		if seen[e.id] {
			continue
		}
		seen[e.id] = true
		d, ok := a.info[e.id]
		if !ok {
			a.logger.Warning("coin aggregator: no cached descriptor for coin %s", e.id)
			continue
		}
		summary = append(summary, d)
	}

	for _, d := range batch {
		if len(summary) >= a.minCount {
			break
		}
		if d.Featured && !seen[d.ID] {
			seen[d.ID] = true
			summary = append(summary, d)
		}
	}

	return summary
}

// prune drops window entries older than the trailing window.
func (a *Aggregator) prune(now float64) {
	kept := a.entries[:0]
	for _, e := range a.entries {
		if now-e.seenAt <= a.window {
			kept = append(kept, e)
		}
	}
	a.entries = kept
}
