package alerts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cockpit-alerts/internal/rules"
	"cockpit-alerts/internal/series"
)

// Source produces the current alerts of one category.
type Source interface {
	Category() Category
	Lookup(ctx context.Context) (Result, error)
}

// Thresholds tune the category rules.
type Thresholds struct {
	MinDaysOfCover       float64
	ComplianceWindowDays int
	MinMarginPct         float64
	PPCSurgeRatio        float64
	PPCMinSpend          float64
}

// Readers bundles the row readers behind the database-backed categories.
type Readers struct {
	Inventory  InventoryReader
	Compliance ComplianceReader
	Margins    MarginReader
	Campaigns  CampaignReader
}

// StandardSources wires every category in snapshot order.
func StandardSources(th Thresholds, r Readers, ruleStore rules.Store, src series.Source) []Source {
	return []Source{
		LowStock{Reader: r.Inventory, MinDaysOfCover: th.MinDaysOfCover},
		ComplianceExpiry{Reader: r.Compliance, WindowDays: th.ComplianceWindowDays},
		MarginBreach{Reader: r.Margins, MinMarginPct: th.MinMarginPct},
		SpendSurge{Reader: r.Campaigns, Ratio: th.PPCSurgeRatio, MinSpend: th.PPCMinSpend},
		RevenueProtection{Inventory: r.Inventory, Campaigns: r.Campaigns, MinDaysOfCover: th.MinDaysOfCover},
		RuleDigest{Rules: ruleStore, Series: src},
	}
}

var hundred = decimal.NewFromInt(100)

// ErrSourceNotConfigured is returned by sources whose backing reader is absent.
var ErrSourceNotConfigured = errors.New("data source not configured")

// LowStock flags SKUs under the days-of-cover floor or at their reorder point.
type LowStock struct {
	Reader         InventoryReader
	MinDaysOfCover float64
}

func (s LowStock) Category() Category { return CategoryInventory }

func (s LowStock) Lookup(ctx context.Context) (Result, error) {
	if s.Reader == nil {
		return Result{}, ErrSourceNotConfigured
	}
	items, err := s.Reader.ListInventory(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list inventory: %w", err)
	}
	return ResultOf(lowStockItems(items, s.MinDaysOfCover)), nil
}

func lowStockItems(items []InventoryItem, minDays float64) []InventoryItem {
	floor := decimal.NewFromFloat(minDays)
	low := make([]InventoryItem, 0)
	for _, item := range items {
		if item.DaysOfCover.LessThan(floor) || item.UnitsAvailable <= item.ReorderPoint {
			low = append(low, item)
		}
	}
	sort.SliceStable(low, func(i, j int) bool {
		return low[i].DaysOfCover.LessThan(low[j].DaysOfCover)
	})
	return low
}

// ComplianceExpiry flags documents expiring inside the window, or already expired.
type ComplianceExpiry struct {
	Reader     ComplianceReader
	WindowDays int
	Now        func() time.Time
}

func (s ComplianceExpiry) Category() Category { return CategoryCompliance }

func (s ComplianceExpiry) Lookup(ctx context.Context) (Result, error) {
	if s.Reader == nil {
		return Result{}, ErrSourceNotConfigured
	}
	docs, err := s.Reader.ListComplianceDocuments(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list compliance documents: %w", err)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return ResultOf(expiringDocuments(docs, s.WindowDays, now())), nil
}

func expiringDocuments(docs []ComplianceDocument, windowDays int, now time.Time) []ComplianceDocument {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	expiring := make([]ComplianceDocument, 0)
	for _, doc := range docs {
		exp := doc.ExpiresOn.UTC()
		expDay := time.Date(exp.Year(), exp.Month(), exp.Day(), 0, 0, 0, 0, time.UTC)
		daysLeft := int(expDay.Sub(today).Hours() / 24)
		if daysLeft <= windowDays {
			doc.DaysLeft = daysLeft
			expiring = append(expiring, doc)
		}
	}
	sort.SliceStable(expiring, func(i, j int) bool {
		return expiring[i].ExpiresOn.Before(expiring[j].ExpiresOn)
	})
	return expiring
}

// MarginBreach flags SKUs whose margin falls below the target percentage.
type MarginBreach struct {
	Reader       MarginReader
	MinMarginPct float64
}

func (s MarginBreach) Category() Category { return CategoryMargin }

func (s MarginBreach) Lookup(ctx context.Context) (Result, error) {
	if s.Reader == nil {
		return Result{}, ErrSourceNotConfigured
	}
	margins, err := s.Reader.ListProductMargins(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list product margins: %w", err)
	}
	return ResultOf(marginBreaches(margins, s.MinMarginPct)), nil
}

// MarginPct computes (price - landed cost - fees) / price * 100.
func MarginPct(price, landedCost, fees decimal.Decimal) (decimal.Decimal, bool) {
	if !price.IsPositive() {
		return decimal.Zero, false
	}
	return price.Sub(landedCost).Sub(fees).Div(price).Mul(hundred), true
}

func marginBreaches(margins []ProductMargin, minPct float64) []ProductMargin {
	floor := decimal.NewFromFloat(minPct)
	breaches := make([]ProductMargin, 0)
	for _, m := range margins {
		pct, ok := MarginPct(m.Price, m.LandedCost, m.Fees)
		if !ok {
			continue
		}
		if pct.LessThan(floor) {
			m.MarginPct = pct
			breaches = append(breaches, m)
		}
	}
	sort.SliceStable(breaches, func(i, j int) bool {
		return breaches[i].MarginPct.LessThan(breaches[j].MarginPct)
	})
	return breaches
}

// SpendSurge flags campaigns spending well above their trailing average.
type SpendSurge struct {
	Reader   CampaignReader
	Ratio    float64
	MinSpend float64
}

func (s SpendSurge) Category() Category { return CategoryPPC }

func (s SpendSurge) Lookup(ctx context.Context) (Result, error) {
	if s.Reader == nil {
		return Result{}, ErrSourceNotConfigured
	}
	spend, err := s.Reader.ListCampaignSpend(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list campaign spend: %w", err)
	}
	return ResultOf(spendSurges(spend, s.Ratio, s.MinSpend)), nil
}

func spendSurges(spend []CampaignSpend, ratio, minSpend float64) []CampaignSpend {
	r := decimal.NewFromFloat(ratio)
	floor := decimal.NewFromFloat(minSpend)
	surges := make([]CampaignSpend, 0)
	for _, c := range spend {
		if c.SpendToday.LessThan(floor) {
			continue
		}
		if c.TrailingAvg.IsPositive() {
			c.SurgeRatio = c.SpendToday.Div(c.TrailingAvg)
			if c.SurgeRatio.LessThan(r) {
				continue
			}
		} else if !c.SpendToday.IsPositive() {
			continue
		}
		surges = append(surges, c)
	}
	sort.SliceStable(surges, func(i, j int) bool {
		return surges[i].SpendToday.GreaterThan(surges[j].SpendToday)
	})
	return surges
}

// RevenueProtection joins low stock with active ad spend: advertised SKUs
// about to stock out burn budget and ranking.
type RevenueProtection struct {
	Inventory      InventoryReader
	Campaigns      CampaignReader
	MinDaysOfCover float64
}

func (s RevenueProtection) Category() Category { return CategoryRevenueProtection }

func (s RevenueProtection) Lookup(ctx context.Context) (Result, error) {
	if s.Inventory == nil || s.Campaigns == nil {
		return Result{}, ErrSourceNotConfigured
	}
	items, err := s.Inventory.ListInventory(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list inventory: %w", err)
	}
	spend, err := s.Campaigns.ListCampaignSpend(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list campaign spend: %w", err)
	}
	return ResultOf(revenueRisks(items, spend, s.MinDaysOfCover)), nil
}

func revenueRisks(items []InventoryItem, spend []CampaignSpend, minDays float64) []RevenueRisk {
	low := lowStockItems(items, minDays)
	bySKU := make(map[string]*RevenueRisk, len(low))
	order := make([]string, 0, len(low))
	for _, item := range low {
		if _, ok := bySKU[item.SKU]; ok {
			continue
		}
		bySKU[item.SKU] = &RevenueRisk{SKU: item.SKU, Title: item.Title, DaysOfCover: item.DaysOfCover}
		order = append(order, item.SKU)
	}
	for _, c := range spend {
		risk, ok := bySKU[c.SKU]
		if !ok || !c.SpendToday.IsPositive() {
			continue
		}
		risk.AdSpend = risk.AdSpend.Add(c.SpendToday)
		risk.Campaigns++
	}

	risks := make([]RevenueRisk, 0)
	for _, sku := range order {
		if r := bySKU[sku]; r.Campaigns > 0 {
			risks = append(risks, *r)
		}
	}
	sort.SliceStable(risks, func(i, j int) bool {
		return risks[i].AdSpend.GreaterThan(risks[j].AdSpend)
	})
	return risks
}

// RuleAlert is a Digest rule that passed evaluation.
type RuleAlert struct {
	Outcome rules.Outcome
}

// Record implements Recorder.
func (r RuleAlert) Record() Record {
	return Record{
		{"rule", r.Outcome.Rule.Label()},
		{"metric", r.Outcome.Rule.Metric},
		{"operator", r.Outcome.Rule.Operator},
		{"threshold", fmt.Sprintf("%.4f", r.Outcome.Rule.Threshold)},
		{"last", fmt.Sprintf("%.4f", r.Outcome.Last)},
		{"samples", fmt.Sprintf("%d", r.Outcome.Samples)},
		{"reason", r.Outcome.Reason},
	}
}

// RuleDigest evaluates the stored Digest rules against the current series.
type RuleDigest struct {
	Rules  rules.Store
	Series series.Source
}

func (s RuleDigest) Category() Category { return CategoryRuleDigest }

func (s RuleDigest) Lookup(ctx context.Context) (Result, error) {
	if s.Rules == nil || s.Series == nil {
		return Result{}, ErrSourceNotConfigured
	}
	stored := s.Rules.List(ctx)
	if len(stored) == 0 {
		return Result{}, nil
	}
	frame, err := s.Series.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load series: %w", err)
	}

	fired := make([]RuleAlert, 0)
	for _, out := range rules.EvaluateAll(stored, frame) {
		if out.Passed && out.Rule.Action == rules.ActionDigest {
			fired = append(fired, RuleAlert{Outcome: out})
		}
	}
	return ResultOf(fired), nil
}

var (
	_ Source = LowStock{}
	_ Source = ComplianceExpiry{}
	_ Source = MarginBreach{}
	_ Source = SpendSurge{}
	_ Source = RevenueProtection{}
	_ Source = RuleDigest{}
)
