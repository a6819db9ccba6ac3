package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cockpit-alerts/internal/metrics"
)

// Outcome is one category lookup: either a result or an error.
type Outcome struct {
	Category Category
	Result   Result
	Err      error
}

// Aggregator collects the firing alerts of every registered category.
type Aggregator struct {
	sources []Source
	logger  zerolog.Logger
	now     func() time.Time
}

// NewAggregator builds an aggregator over sources.
func NewAggregator(sources []Source, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		sources: sources,
		logger:  logger.With().Str("component", "aggregator").Logger(),
		now:     time.Now,
	}
}

// Aggregate queries each source independently and folds the outcomes.
// A failing category contributes an empty snapshot; the others still report.
func (a *Aggregator) Aggregate(ctx context.Context) Snapshot {
	outcomes := make([]Outcome, 0, len(a.sources))
	for _, src := range a.sources {
		outcomes = append(outcomes, a.lookup(ctx, src))
	}

	snap := Fold(outcomes)
	snap.GeneratedAt = a.now().UTC()

	for _, cs := range snap.Categories {
		metrics.CategoryAlerts.WithLabelValues(string(cs.Category)).Set(float64(cs.Count))
		if cs.Err != nil {
			metrics.CategoryLookupFailuresTotal.WithLabelValues(string(cs.Category)).Inc()
			a.logger.Warn().Err(cs.Err).Str("category", string(cs.Category)).Msg("category lookup failed; reporting zero")
		}
	}
	a.logger.Debug().Int("total", snap.Total()).Msg("snapshot aggregated")
	return snap
}

func (a *Aggregator) lookup(ctx context.Context, src Source) (out Outcome) {
	out.Category = src.Category()
	defer func() {
		if r := recover(); r != nil {
			out.Result = Result{}
			out.Err = fmt.Errorf("category %s panicked: %v", out.Category, r)
		}
	}()
	out.Result, out.Err = src.Lookup(ctx)
	return out
}

// Fold merges outcomes into a snapshot in canonical category order.
// Failed categories default to zero with no samples; duplicate categories
// keep the first outcome.
func Fold(outcomes []Outcome) Snapshot {
	byCategory := make(map[Category]Outcome, len(outcomes))
	extra := make([]Category, 0)
	for _, o := range outcomes {
		if _, seen := byCategory[o.Category]; seen {
			continue
		}
		byCategory[o.Category] = o
		if _, known := categoryTitles[o.Category]; !known {
			extra = append(extra, o.Category)
		}
	}

	snap := Snapshot{Categories: make([]CategorySnapshot, 0, len(byCategory))}
	for _, c := range append(Categories(), extra...) {
		o, ok := byCategory[c]
		if !ok {
			continue
		}
		snap.Categories = append(snap.Categories, foldOne(o))
	}
	return snap
}

func foldOne(o Outcome) CategorySnapshot {
	cs := CategorySnapshot{Category: o.Category, Samples: []Record{}}
	if o.Err != nil {
		cs.Err = o.Err
		return cs
	}
	cs.Count = o.Result.Count
	if cs.Count < 0 {
		cs.Count = 0
	}
	for i, r := range o.Result.Records {
		if i >= MaxSamples {
			break
		}
		cs.Samples = append(cs.Samples, Sanitize(r))
	}
	if cs.Count < len(cs.Samples) {
		cs.Count = len(cs.Samples)
	}
	return cs
}
