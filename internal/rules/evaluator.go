package rules

import (
	"fmt"

	"cockpit-alerts/internal/metrics"
	"cockpit-alerts/internal/series"
)

// Kind classifies an evaluation outcome.
type Kind string

const (
	KindPassed       Kind = "passed"
	KindNotMet       Kind = "not_met"
	KindNoData       Kind = "no_data"
	KindInsufficient Kind = "insufficient_data"
	KindConfigError  Kind = "config_error"
)

// ReasonNoData is returned when the series or its metric column is absent.
const ReasonNoData = "no data available"

// Outcome is the detailed result of evaluating one rule.
type Outcome struct {
	Rule    Rule    `json:"rule"`
	Passed  bool    `json:"passed"`
	Reason  string  `json:"reason"`
	Kind    Kind    `json:"kind"`
	Last    float64 `json:"last,omitempty"`
	Samples int     `json:"samples"`
}

// ShortWindow reports whether the rule was evaluated on fewer samples than
// its lookback asked for, e.g. when the series source loads a shorter range.
func (o Outcome) ShortWindow() bool {
	return o.Samples > 0 && o.Samples < o.Rule.LookbackDays
}

// Evaluate reports whether rule holds for the frame and why.
func Evaluate(rule Rule, frame *series.Frame) (bool, string) {
	out := EvaluateDetailed(rule, frame)
	return out.Passed, out.Reason
}

// EvaluateDetailed evaluates rule against the newest samples of its metric.
// Comparisons are exact; no epsilon is applied.
func EvaluateDetailed(rule Rule, frame *series.Frame) Outcome {
	out := Outcome{Rule: rule}

	if frame.Len() == 0 {
		return noData(out)
	}
	_, values, ok := frame.Samples(rule.Metric)
	if !ok || len(values) == 0 {
		return noData(out)
	}

	window := rule.LookbackDays
	if window < 2 {
		window = 2
	}
	if len(values) > window {
		values = values[len(values)-window:]
	}

	n := len(values)
	last := values[n-1]
	out.Last = last
	out.Samples = n

	var passed bool
	switch rule.Operator {
	case OpGreater:
		passed = last > rule.Threshold
	case OpLess:
		passed = last < rule.Threshold
	case OpGreaterEqual:
		passed = last >= rule.Threshold
	case OpLessEqual:
		passed = last <= rule.Threshold
	case OpCrossesAbove, OpCrossesBelow:
		if n < 2 {
			out.Kind = KindInsufficient
			out.Reason = fmt.Sprintf("insufficient data: crossing needs 2 samples, have %d", n)
			return out
		}
		prev := values[n-2]
		if rule.Operator == OpCrossesAbove {
			passed = prev <= rule.Threshold && last > rule.Threshold
		} else {
			passed = prev >= rule.Threshold && last < rule.Threshold
		}
	default:
		out.Kind = KindConfigError
		out.Reason = "unsupported operator: " + rule.Operator
		return out
	}

	out.Passed = passed
	out.Kind = KindNotMet
	if passed {
		out.Kind = KindPassed
	}
	out.Reason = fmt.Sprintf("%s(%.4f) %s %.4f over %d samples", rule.Metric, last, rule.Operator, rule.Threshold, n)
	return out
}

func noData(out Outcome) Outcome {
	out.Kind = KindNoData
	out.Reason = ReasonNoData
	return out
}

// EvaluateAll evaluates rules in order against one frame.
func EvaluateAll(rules []Rule, frame *series.Frame) []Outcome {
	outcomes := make([]Outcome, 0, len(rules))
	for _, r := range rules {
		out := EvaluateDetailed(r, frame)
		metrics.RuleEvaluationsTotal.WithLabelValues(string(out.Kind)).Inc()
		outcomes = append(outcomes, out)
	}
	return outcomes
}
