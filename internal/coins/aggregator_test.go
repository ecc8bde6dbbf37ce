package coins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frserver/internal/config"
	"frserver/internal/logger"
)

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	log := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	return NewAggregator(5, 4, log)
}

func ids(descriptors []Descriptor) []string {
	out := make([]string, len(descriptors))
	for i, d := range descriptors {
		out[i] = d.ID
	}
	return out
}

func TestSummarizeBackfillsWithFeatured(t *testing.T) {
	a := newTestAggregator(t)
	batch := []Descriptor{
		{ID: "A"}, {ID: "B"}, {ID: "C"},
		{ID: "D", Featured: true},
	}

	a.Ingest(batch, 0)
	summary := a.Summarize(batch, 1)

	require.Len(t, summary, 4)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, ids(summary[:3]))
	assert.Equal(t, "D", summary[3].ID)
}

func TestWindowPruning(t *testing.T) {
	a := newTestAggregator(t)
	a.Ingest([]Descriptor{{ID: "A"}}, 0)

	assert.Equal(t, []string{"A"}, ids(a.Summarize(nil, 4)))
	assert.Empty(t, a.Summarize(nil, 6))
}

func TestFeaturedCoinsNotWindowed(t *testing.T) {
	a := newTestAggregator(t)
	batch := []Descriptor{{ID: "F", Featured: true}}

	a.Ingest(batch, 0)

	// Not in the window on its own, but reachable through backfill.
	assert.Empty(t, a.Summarize(nil, 1))
	assert.Equal(t, []string{"F"}, ids(a.Summarize(batch, 1)))
}

func TestBackfillStopsAtMinCount(t *testing.T) {
	a := newTestAggregator(t)
	windowed := []Descriptor{{ID: "A"}, {ID: "B"}, {ID: "C"}, {ID: "D"}}
	a.Ingest(windowed, 0)

	summary := a.Summarize([]Descriptor{{ID: "E", Featured: true}}, 1)

	assert.Equal(t, []string{"A", "B", "C", "D"}, ids(summary))
}

func TestBackfillSkipsDuplicates(t *testing.T) {
	a := newTestAggregator(t)

	batch := []Descriptor{
		{ID: "F", Featured: true},
		{ID: "F", Featured: true},
		{ID: "G", Featured: true},
	}
	summary := a.Summarize(batch, 0)

	assert.Equal(t, []string{"F", "G"}, ids(summary))
}

func TestSummaryKeepsFirstSeenOrder(t *testing.T) {
	a := newTestAggregator(t)
	a.Ingest([]Descriptor{{ID: "B"}}, 0)
	a.Ingest([]Descriptor{{ID: "A"}, {ID: "B"}}, 1)

	assert.Equal(t, []string{"B", "A"}, ids(a.Summarize(nil, 2)))
}

func TestBoundaryEntryKept(t *testing.T) {
	a := newTestAggregator(t)
	a.Ingest([]Descriptor{{ID: "A"}}, 0)

	// now - seenAt == window is still inside the trailing window
	assert.Equal(t, []string{"A"}, ids(a.Summarize(nil, 5)))
}
