package series

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
}

// ParseTable converts a header row plus string rows into a frame.
// The first column holds the date; every other header names a metric.
// Blank or unparsable numeric cells become missing samples.
func ParseTable(header []string, rows [][]string) (*Frame, error) {
	if len(header) < 2 {
		return nil, errors.New("table needs a date column and at least one metric column")
	}

	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(h)
	}

	dates := make([]time.Time, 0, len(rows))
	columns := make(map[string][]float64, len(names)-1)
	for _, name := range names[1:] {
		if name == "" {
			continue
		}
		columns[name] = make([]float64, 0, len(rows))
	}

	for i, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		date, err := parseDate(row[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		dates = append(dates, date)
		for c, name := range names[1:] {
			if name == "" {
				continue
			}
			cell := ""
			if c+1 < len(row) {
				cell = row[c+1]
			}
			columns[name] = append(columns[name], parseNumber(cell))
		}
	}

	return NewFrame(dates, columns)
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", v)
}

func parseNumber(v string) float64 {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "$")
	v = strings.ReplaceAll(v, ",", "")
	pct := strings.HasSuffix(v, "%")
	v = strings.TrimSuffix(v, "%")
	if v == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return math.NaN()
	}
	if pct {
		f /= 100
	}
	return f
}

// ReadCSV parses a CSV stream in the table layout.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("csv is empty")
	}
	return ParseTable(records[0], records[1:])
}

// CSVSource loads a frame from a local CSV file on every call.
type CSVSource struct {
	Path string
}

// Load implements Source.
func (s CSVSource) Load(_ context.Context) (*Frame, error) {
	if s.Path == "" {
		return nil, errors.New("series.csv_path not configured")
	}
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open series csv: %w", err)
	}
	defer file.Close()
	return ReadCSV(file)
}

var _ Source = CSVSource{}
