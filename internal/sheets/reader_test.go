package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestReader(t *testing.T, handler http.HandlerFunc) *SeriesReader {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	reader, err := NewSeriesReaderWithOptions(context.Background(),
		Config{SpreadsheetID: "sheet-1", Range: "KPIs!A:D"},
		zerolog.Nop(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return reader
}

func TestSeriesReaderLoad(t *testing.T) {
	reader := newTestReader(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.Contains(r.URL.Path, "/v4/spreadsheets/sheet-1/values/"), r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"range":          "KPIs!A1:D4",
			"majorDimension": "ROWS",
			"values": [][]any{
				{"date", "acos", "sessions", "revenue"},
				{"2024-01-02", "30%", "1,200", "$5,000.50"},
				{"2024-01-01", "0.2", "1100"},
				{"", "", "", ""},
			},
		})
	})

	frame, err := reader.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, frame.Len())
	assert.Equal(t, []string{"acos", "revenue", "sessions"}, frame.Columns())

	_, acos, ok := frame.Samples("acos")
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{0.2, 0.3}, acos, 1e-9)

	_, revenue, _ := frame.Samples("revenue")
	assert.Equal(t, []float64{5000.50}, revenue)
}

func TestSeriesReaderEmptyRange(t *testing.T) {
	reader := newTestReader(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"range": "KPIs!A1:D1"})
	})
	frame, err := reader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, frame.Len())
}

func TestSeriesReaderAPIError(t *testing.T) {
	reader := newTestReader(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 403, "message": "denied"}})
	})
	_, err := reader.Load(context.Background())
	assert.ErrorContains(t, err, "read sheet range")
}

func TestNewSeriesReaderValidates(t *testing.T) {
	_, err := NewSeriesReader(context.Background(), Config{SpreadsheetID: "x"}, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewSeriesReaderWithOptions(context.Background(), Config{}, zerolog.Nop(), option.WithoutAuthentication())
	assert.Error(t, err)
}
