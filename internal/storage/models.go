package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DailyMetric is one persisted observation of one metric on one day.
type DailyMetric struct {
	Day    time.Time
	Metric string
	Value  float64
}

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS daily_metrics (
        day    DATE             NOT NULL,
        metric TEXT             NOT NULL,
        value  DOUBLE PRECISION NOT NULL,
        PRIMARY KEY (day, metric)
    );`,
	`CREATE TABLE IF NOT EXISTS inventory_positions (
        sku             TEXT PRIMARY KEY,
        asin            TEXT    NOT NULL DEFAULT '',
        title           TEXT    NOT NULL DEFAULT '',
        units_available BIGINT  NOT NULL DEFAULT 0,
        inbound_units   BIGINT  NOT NULL DEFAULT 0,
        reorder_point   BIGINT  NOT NULL DEFAULT 0,
        days_of_cover   NUMERIC NOT NULL DEFAULT 0,
        updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE TABLE IF NOT EXISTS compliance_documents (
        id            BIGSERIAL PRIMARY KEY,
        sku           TEXT NOT NULL,
        document_type TEXT NOT NULL,
        authority     TEXT NOT NULL DEFAULT '',
        expires_on    DATE NOT NULL
    );`,
	`CREATE TABLE IF NOT EXISTS product_economics (
        sku         TEXT PRIMARY KEY,
        title       TEXT    NOT NULL DEFAULT '',
        price       NUMERIC NOT NULL,
        landed_cost NUMERIC NOT NULL DEFAULT 0,
        fees        NUMERIC NOT NULL DEFAULT 0
    );`,
	`CREATE TABLE IF NOT EXISTS ppc_campaign_spend (
        campaign_id   TEXT    NOT NULL,
        campaign_name TEXT    NOT NULL DEFAULT '',
        sku           TEXT    NOT NULL DEFAULT '',
        day           DATE    NOT NULL,
        spend         NUMERIC NOT NULL,
        PRIMARY KEY (campaign_id, day)
    );`,
	`CREATE INDEX IF NOT EXISTS idx_ppc_campaign_spend_day ON ppc_campaign_spend (day);`,
}

// Migrate creates the tables read by the cockpit.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return ErrNotConfigured
	}
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
