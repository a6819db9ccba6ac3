// Package sheets reads the KPI tab of a Google Sheet as a metric series.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"cockpit-alerts/internal/series"
)

// Config locates the KPI range and its credentials.
type Config struct {
	SpreadsheetID   string
	Range           string
	CredentialsFile string
	Timeout         time.Duration
}

// SeriesReader loads a header-plus-rows range: the first column is the
// date, every other column a metric.
type SeriesReader struct {
	service       *sheets.Service
	spreadsheetID string
	readRange     string
	logger        zerolog.Logger
}

// NewSeriesReader authenticates with a service account key file.
func NewSeriesReader(ctx context.Context, cfg Config, logger zerolog.Logger) (*SeriesReader, error) {
	if cfg.CredentialsFile == "" {
		return nil, errors.New("sheets.credentials_file is required")
	}
	jsonKey, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read service account key: %w", err)
	}
	jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}

	httpClient := oauth2.NewClient(ctx, jwtConfig.TokenSource(ctx))
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}
	return NewSeriesReaderWithOptions(ctx, cfg, logger, option.WithHTTPClient(httpClient))
}

// NewSeriesReaderWithOptions builds a reader over caller-supplied client options.
func NewSeriesReaderWithOptions(ctx context.Context, cfg Config, logger zerolog.Logger, opts ...option.ClientOption) (*SeriesReader, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("sheets.spreadsheet_id is required")
	}
	if cfg.Range == "" {
		cfg.Range = "A:Z"
	}
	if len(opts) == 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SeriesReader{
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
		readRange:     cfg.Range,
		logger:        logger.With().Str("component", "sheets_reader").Logger(),
	}, nil
}

// Load implements series.Source.
func (r *SeriesReader) Load(ctx context.Context) (*series.Frame, error) {
	resp, err := r.service.Spreadsheets.Values.Get(r.spreadsheetID, r.readRange).
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet range %s: %w", r.readRange, err)
	}
	if len(resp.Values) == 0 {
		r.logger.Warn().Str("range", r.readRange).Msg("sheet range is empty")
		return series.FromPoints(nil), nil
	}

	header := cellsToStrings(resp.Values[0])
	rows := make([][]string, 0, len(resp.Values)-1)
	for _, row := range resp.Values[1:] {
		rows = append(rows, cellsToStrings(row))
	}

	frame, err := series.ParseTable(header, rows)
	if err != nil {
		return nil, fmt.Errorf("parse sheet range %s: %w", r.readRange, err)
	}
	r.logger.Debug().Int("rows", frame.Len()).Strs("metrics", frame.Columns()).Msg("sheet loaded")
	return frame, nil
}

func cellsToStrings(cells []any) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		if c == nil {
			continue
		}
		out[i] = fmt.Sprint(c)
	}
	return out
}

var _ series.Source = (*SeriesReader)(nil)
