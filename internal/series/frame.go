package series

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// Source loads the current observation table.
type Source interface {
	Load(ctx context.Context) (*Frame, error)
}

// Frame is an immutable, time-ordered table of numeric metric columns.
// Missing cells are NaN.
type Frame struct {
	dates   []time.Time
	columns map[string][]float64
	order   []string
}

// Point is one long-format observation.
type Point struct {
	Date   time.Time
	Metric string
	Value  float64
}

// NewFrame builds a frame from dates and equally sized columns.
// Rows are re-ordered by date ascending when needed.
func NewFrame(dates []time.Time, columns map[string][]float64) (*Frame, error) {
	names := make([]string, 0, len(columns))
	for name, values := range columns {
		if len(values) != len(dates) {
			return nil, fmt.Errorf("column %q has %d values, want %d", name, len(values), len(dates))
		}
		names = append(names, name)
	}
	sort.Strings(names)

	idx := make([]int, len(dates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return dates[idx[a]].Before(dates[idx[b]]) })

	f := &Frame{
		dates:   make([]time.Time, len(dates)),
		columns: make(map[string][]float64, len(columns)),
		order:   names,
	}
	for i, src := range idx {
		f.dates[i] = dates[src]
	}
	for _, name := range names {
		values := columns[name]
		out := make([]float64, len(values))
		for i, src := range idx {
			out[i] = values[src]
		}
		f.columns[name] = out
	}
	return f, nil
}

// FromPoints pivots long-format points into a frame, one row per distinct day.
func FromPoints(points []Point) *Frame {
	dayIndex := make(map[time.Time]int)
	dates := make([]time.Time, 0)
	for _, p := range points {
		day := truncateDay(p.Date)
		if _, ok := dayIndex[day]; !ok {
			dayIndex[day] = len(dates)
			dates = append(dates, day)
		}
	}

	columns := make(map[string][]float64)
	for _, p := range points {
		col, ok := columns[p.Metric]
		if !ok {
			col = make([]float64, len(dates))
			for i := range col {
				col[i] = math.NaN()
			}
			columns[p.Metric] = col
		}
		col[dayIndex[truncateDay(p.Date)]] = p.Value
	}

	f, _ := NewFrame(dates, columns)
	return f
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.dates)
}

// Dates returns a copy of the row dates.
func (f *Frame) Dates() []time.Time {
	if f == nil {
		return nil
	}
	out := make([]time.Time, len(f.dates))
	copy(out, f.dates)
	return out
}

// Columns returns the column names in sorted order.
func (f *Frame) Columns() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Column returns a copy of the named column and whether it exists.
func (f *Frame) Column(name string) ([]float64, bool) {
	if f == nil {
		return nil, false
	}
	values, ok := f.columns[name]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(values))
	copy(out, values)
	return out, true
}

// Samples returns the non-missing values of a column with their dates.
func (f *Frame) Samples(name string) ([]time.Time, []float64, bool) {
	values, ok := f.Column(name)
	if !ok {
		return nil, nil, false
	}
	dates := make([]time.Time, 0, len(values))
	out := make([]float64, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		dates = append(dates, f.dates[i])
		out = append(out, v)
	}
	return dates, out, true
}

// Between returns the rows with from <= date < to. Zero bounds are open.
func (f *Frame) Between(from, to time.Time) *Frame {
	if f == nil {
		return nil
	}
	dates := make([]time.Time, 0, len(f.dates))
	keep := make([]int, 0, len(f.dates))
	for i, d := range f.dates {
		if !from.IsZero() && d.Before(from) {
			continue
		}
		if !to.IsZero() && !d.Before(to) {
			continue
		}
		dates = append(dates, d)
		keep = append(keep, i)
	}
	columns := make(map[string][]float64, len(f.columns))
	for name, values := range f.columns {
		out := make([]float64, len(keep))
		for i, src := range keep {
			out[i] = values[src]
		}
		columns[name] = out
	}
	sub, _ := NewFrame(dates, columns)
	return sub
}
