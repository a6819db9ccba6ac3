package rules

import "strings"

// Template is a named quick-add preset.
type Template struct {
	Key  string `json:"key"`
	Rule Rule   `json:"rule"`
}

var templates = []Template{
	{Key: "acos-high", Rule: Rule{Metric: "acos", Operator: OpGreater, Threshold: 0.30, LookbackDays: 7, Action: ActionDigest, Name: "ACoS above 30%"}},
	{Key: "tacos-high", Rule: Rule{Metric: "tacos", Operator: OpGreater, Threshold: 0.15, LookbackDays: 7, Action: ActionDigest, Name: "TACoS above 15%"}},
	{Key: "refund-rate-high", Rule: Rule{Metric: "refund_rate", Operator: OpGreaterEqual, Threshold: 0.05, LookbackDays: 14, Action: ActionDigest, Name: "Refund rate at or above 5%"}},
	{Key: "revenue-drop", Rule: Rule{Metric: "revenue", Operator: OpCrossesBelow, Threshold: 1000, LookbackDays: 2, Action: ActionDigest, Name: "Revenue crosses below 1000"}},
	{Key: "sessions-drop", Rule: Rule{Metric: "sessions", Operator: OpCrossesBelow, Threshold: 200, LookbackDays: 2, Action: ActionDigest, Name: "Sessions crosses below 200"}},
	{Key: "conversion-low", Rule: Rule{Metric: "conversion_rate", Operator: OpLess, Threshold: 0.08, LookbackDays: 7, Action: ActionDigest, Name: "Conversion rate below 8%"}},
	{Key: "ad-spend-spike", Rule: Rule{Metric: "ad_spend", Operator: OpCrossesAbove, Threshold: 500, LookbackDays: 2, Action: ActionDigest, Name: "Ad spend crosses above 500"}},
}

// Templates returns a copy of the quick-add catalogue.
func Templates() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}

// LookupTemplate finds a template by key, case-insensitively.
func LookupTemplate(key string) (Template, bool) {
	for _, t := range templates {
		if strings.EqualFold(t.Key, strings.TrimSpace(key)) {
			return t, true
		}
	}
	return Template{}, false
}
