package alerts

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// InventoryItem is one SKU's current stock position.
type InventoryItem struct {
	SKU            string
	ASIN           string
	Title          string
	UnitsAvailable int64
	InboundUnits   int64
	ReorderPoint   int64
	DaysOfCover    decimal.Decimal
}

// Record implements Recorder.
func (i InventoryItem) Record() Record {
	return Record{
		{"sku", i.SKU},
		{"asin", i.ASIN},
		{"title", i.Title},
		{"units_available", strconv.FormatInt(i.UnitsAvailable, 10)},
		{"days_of_cover", i.DaysOfCover.StringFixed(1)},
		{"reorder_point", strconv.FormatInt(i.ReorderPoint, 10)},
		{"inbound_units", strconv.FormatInt(i.InboundUnits, 10)},
	}
}

// ComplianceDocument is a certificate or filing with an expiry.
type ComplianceDocument struct {
	SKU          string
	DocumentType string
	Authority    string
	ExpiresOn    time.Time
	DaysLeft     int
}

// Record implements Recorder.
func (c ComplianceDocument) Record() Record {
	return Record{
		{"sku", c.SKU},
		{"document_type", c.DocumentType},
		{"authority", c.Authority},
		{"expires_on", c.ExpiresOn.Format("2006-01-02")},
		{"days_left", strconv.Itoa(c.DaysLeft)},
	}
}

// ProductMargin holds unit economics for one SKU.
type ProductMargin struct {
	SKU        string
	Title      string
	Price      decimal.Decimal
	LandedCost decimal.Decimal
	Fees       decimal.Decimal
	MarginPct  decimal.Decimal
}

// Record implements Recorder.
func (m ProductMargin) Record() Record {
	return Record{
		{"sku", m.SKU},
		{"title", m.Title},
		{"margin_pct", m.MarginPct.StringFixed(1)},
		{"price", m.Price.StringFixed(2)},
		{"landed_cost", m.LandedCost.StringFixed(2)},
		{"fees", m.Fees.StringFixed(2)},
	}
}

// CampaignSpend is today's advertising spend next to its trailing average.
type CampaignSpend struct {
	CampaignID   string
	CampaignName string
	SKU          string
	SpendToday   decimal.Decimal
	TrailingAvg  decimal.Decimal
	SurgeRatio   decimal.Decimal
}

// Record implements Recorder.
func (c CampaignSpend) Record() Record {
	return Record{
		{"campaign", c.CampaignName},
		{"campaign_id", c.CampaignID},
		{"sku", c.SKU},
		{"spend_today", c.SpendToday.StringFixed(2)},
		{"trailing_avg", c.TrailingAvg.StringFixed(2)},
		{"surge_ratio", c.SurgeRatio.StringFixed(2)},
	}
}

// RevenueRisk is an advertised SKU that is about to stock out.
type RevenueRisk struct {
	SKU         string
	Title       string
	DaysOfCover decimal.Decimal
	AdSpend     decimal.Decimal
	Campaigns   int
}

// Record implements Recorder.
func (r RevenueRisk) Record() Record {
	return Record{
		{"sku", r.SKU},
		{"title", r.Title},
		{"days_of_cover", r.DaysOfCover.StringFixed(1)},
		{"ad_spend_today", r.AdSpend.StringFixed(2)},
		{"campaigns", strconv.Itoa(r.Campaigns)},
	}
}

// InventoryReader lists current stock positions.
type InventoryReader interface {
	ListInventory(ctx context.Context) ([]InventoryItem, error)
}

// ComplianceReader lists compliance documents.
type ComplianceReader interface {
	ListComplianceDocuments(ctx context.Context) ([]ComplianceDocument, error)
}

// MarginReader lists per-SKU unit economics.
type MarginReader interface {
	ListProductMargins(ctx context.Context) ([]ProductMargin, error)
}

// CampaignReader lists today's campaign spend.
type CampaignReader interface {
	ListCampaignSpend(ctx context.Context) ([]CampaignSpend, error)
}
