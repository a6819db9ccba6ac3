package rules

import (
	"errors"
	"fmt"
	"strings"
)

// Supported comparison operators.
const (
	OpGreater      = ">"
	OpLess         = "<"
	OpGreaterEqual = ">="
	OpLessEqual    = "<="
	OpCrossesAbove = "crosses_above"
	OpCrossesBelow = "crosses_below"
)

// ActionDigest queues a fired rule for the next notification digest.
const ActionDigest = "Digest"

// ErrInvalidRule marks rules rejected by Validate.
var ErrInvalidRule = errors.New("invalid rule")

// Rule is a user-defined threshold or crossing condition over a metric.
// Field order is the on-disk order.
type Rule struct {
	Metric       string  `json:"metric"`
	Operator     string  `json:"operator"`
	Threshold    float64 `json:"threshold"`
	LookbackDays int     `json:"lookback_days"`
	Action       string  `json:"action"`
	Name         string  `json:"name"`
}

// New builds a rule with default action and empty name.
func New(metric, operator string, threshold float64, lookbackDays int) Rule {
	return Rule{
		Metric:       metric,
		Operator:     operator,
		Threshold:    threshold,
		LookbackDays: lookbackDays,
		Action:       ActionDigest,
	}
}

// Label returns the display name, falling back to a generated description.
func (r Rule) Label() string {
	if strings.TrimSpace(r.Name) != "" {
		return r.Name
	}
	return fmt.Sprintf("%s %s %g", r.Metric, r.Operator, r.Threshold)
}

// IsCrossing reports whether the operator fires on a transition.
func IsCrossing(op string) bool {
	return op == OpCrossesAbove || op == OpCrossesBelow
}

// IsSupported reports whether op is a known operator.
func IsSupported(op string) bool {
	switch op {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpCrossesAbove, OpCrossesBelow:
		return true
	}
	return false
}

// Operators lists every supported operator in display order.
func Operators() []string {
	return []string{OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpCrossesAbove, OpCrossesBelow}
}

// Normalize fills defaults that older stores may have omitted.
func (r Rule) Normalize() Rule {
	if r.Action == "" || strings.EqualFold(r.Action, ActionDigest) {
		r.Action = ActionDigest
	}
	r.Metric = strings.TrimSpace(r.Metric)
	r.Operator = strings.TrimSpace(r.Operator)
	return r
}

// Validate checks a rule before it is added through the CLI or API.
// Crossing rules with lookback below 2 are accepted; evaluation widens the window.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Metric) == "" {
		return fmt.Errorf("%w: metric is required", ErrInvalidRule)
	}
	if !IsSupported(r.Operator) {
		return fmt.Errorf("%w: unsupported operator %q", ErrInvalidRule, r.Operator)
	}
	if r.LookbackDays < 1 {
		return fmt.Errorf("%w: lookback_days must be positive", ErrInvalidRule)
	}
	if r.Action != "" && !strings.EqualFold(r.Action, ActionDigest) {
		return fmt.Errorf("%w: unsupported action %q", ErrInvalidRule, r.Action)
	}
	return nil
}
