package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"cockpit-alerts/internal/alerts"
	"cockpit-alerts/internal/series"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	listInventorySQL = `SELECT
        sku,
        asin,
        title,
        units_available,
        inbound_units,
        reorder_point,
        days_of_cover::text
    FROM inventory_positions
    ORDER BY sku;`

	listComplianceDocumentsSQL = `SELECT
        sku,
        document_type,
        authority,
        expires_on
    FROM compliance_documents
    ORDER BY expires_on, sku;`

	listProductEconomicsSQL = `SELECT
        sku,
        title,
        price::text,
        landed_cost::text,
        fees::text
    FROM product_economics
    ORDER BY sku;`

	listDailyMetricsSQL = `SELECT
        day,
        metric,
        value
    FROM daily_metrics
    WHERE day >= $1
    ORDER BY day, metric;`

	upsertDailyMetricSQL = `INSERT INTO daily_metrics (day, metric, value)
    VALUES ($1, $2, $3)
    ON CONFLICT (day, metric) DO UPDATE
    SET value = EXCLUDED.value;`
)

// Store reads the seller tables that feed the alert categories.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ListInventory implements alerts.InventoryReader.
func (s *Store) ListInventory(ctx context.Context) ([]alerts.InventoryItem, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listInventorySQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list inventory: %w", queryErr)
	}
	defer rows.Close()

	items := make([]alerts.InventoryItem, 0)
	for rows.Next() {
		var item alerts.InventoryItem
		var coverStr string
		if err := rows.Scan(
			&item.SKU,
			&item.ASIN,
			&item.Title,
			&item.UnitsAvailable,
			&item.InboundUnits,
			&item.ReorderPoint,
			&coverStr,
		); err != nil {
			return nil, err
		}
		if item.DaysOfCover, err = parseDecimal("days_of_cover", coverStr); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// ListComplianceDocuments implements alerts.ComplianceReader.
func (s *Store) ListComplianceDocuments(ctx context.Context) ([]alerts.ComplianceDocument, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listComplianceDocumentsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list compliance documents: %w", queryErr)
	}
	defer rows.Close()

	docs := make([]alerts.ComplianceDocument, 0)
	for rows.Next() {
		var doc alerts.ComplianceDocument
		if err := rows.Scan(&doc.SKU, &doc.DocumentType, &doc.Authority, &doc.ExpiresOn); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return docs, nil
}

// ListProductMargins implements alerts.MarginReader.
func (s *Store) ListProductMargins(ctx context.Context) ([]alerts.ProductMargin, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listProductEconomicsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list product economics: %w", queryErr)
	}
	defer rows.Close()

	margins := make([]alerts.ProductMargin, 0)
	for rows.Next() {
		var m alerts.ProductMargin
		var priceStr, costStr, feesStr string
		if err := rows.Scan(&m.SKU, &m.Title, &priceStr, &costStr, &feesStr); err != nil {
			return nil, err
		}
		if m.Price, err = parseDecimal("price", priceStr); err != nil {
			return nil, err
		}
		if m.LandedCost, err = parseDecimal("landed_cost", costStr); err != nil {
			return nil, err
		}
		if m.Fees, err = parseDecimal("fees", feesStr); err != nil {
			return nil, err
		}
		margins = append(margins, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return margins, nil
}

// spendTrailingDays is the window behind today that spend surges compare against.
const spendTrailingDays = 7

// Today's spend against the trailing daily average. The sum is divided by the
// whole window so days without a spend row count as zero.
var listCampaignSpendSQL = fmt.Sprintf(`SELECT
        campaign_id,
        MAX(campaign_name),
        MAX(sku),
        COALESCE(SUM(spend) FILTER (WHERE day = CURRENT_DATE), 0)::text,
        ROUND(COALESCE(SUM(spend) FILTER (WHERE day < CURRENT_DATE), 0) / %[1]d, 4)::text
    FROM ppc_campaign_spend
    WHERE day >= CURRENT_DATE - %[1]d
    GROUP BY campaign_id
    ORDER BY campaign_id;`, spendTrailingDays)

// ListCampaignSpend implements alerts.CampaignReader.
func (s *Store) ListCampaignSpend(ctx context.Context) ([]alerts.CampaignSpend, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listCampaignSpendSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list campaign spend: %w", queryErr)
	}
	defer rows.Close()

	spend := make([]alerts.CampaignSpend, 0)
	for rows.Next() {
		var c alerts.CampaignSpend
		var todayStr, avgStr string
		if err := rows.Scan(&c.CampaignID, &c.CampaignName, &c.SKU, &todayStr, &avgStr); err != nil {
			return nil, err
		}
		if c.SpendToday, err = parseDecimal("spend_today", todayStr); err != nil {
			return nil, err
		}
		if c.TrailingAvg, err = parseDecimal("trailing_avg", avgStr); err != nil {
			return nil, err
		}
		spend = append(spend, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return spend, nil
}

// ListDailyMetrics lists observations on or after since.
func (s *Store) ListDailyMetrics(ctx context.Context, since time.Time) ([]DailyMetric, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDailyMetricsSQL, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list daily metrics: %w", queryErr)
	}
	defer rows.Close()

	metrics, collectErr := pgx.CollectRows(rows, func(row pgx.CollectableRow) (DailyMetric, error) {
		var m DailyMetric
		err := row.Scan(&m.Day, &m.Metric, &m.Value)
		return m, err
	})
	if collectErr != nil {
		return nil, fmt.Errorf("scan daily metrics: %w", collectErr)
	}
	return metrics, nil
}

// UpsertDailyMetrics writes observations in one batch.
func (s *Store) UpsertDailyMetrics(ctx context.Context, metrics []DailyMetric) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(metrics) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(upsertDailyMetricSQL, m.Day, m.Metric, m.Value)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert daily metrics: %w", err)
	}
	return nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

// MetricsSource loads the daily_metrics table as a series frame.
type MetricsSource struct {
	Store        *Store
	LookbackDays int
	Now          func() time.Time
}

// Load implements series.Source.
func (m MetricsSource) Load(ctx context.Context) (*series.Frame, error) {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	since := now().UTC().AddDate(0, 0, -m.LookbackDays)

	rows, err := m.Store.ListDailyMetrics(ctx, since)
	if err != nil {
		return nil, err
	}
	return series.FromPoints(toPoints(rows)), nil
}

func toPoints(rows []DailyMetric) []series.Point {
	points := make([]series.Point, 0, len(rows))
	for _, r := range rows {
		points = append(points, series.Point{Date: r.Day, Metric: r.Metric, Value: r.Value})
	}
	return points
}

var (
	_ alerts.InventoryReader  = (*Store)(nil)
	_ alerts.ComplianceReader = (*Store)(nil)
	_ alerts.MarginReader     = (*Store)(nil)
	_ alerts.CampaignReader   = (*Store)(nil)
	_ series.Source           = MetricsSource{}
)
