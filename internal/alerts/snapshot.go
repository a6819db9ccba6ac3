package alerts

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// Category names an independent alert-producing domain.
type Category string

const (
	CategoryInventory         Category = "inventory"
	CategoryCompliance        Category = "compliance"
	CategoryMargin            Category = "margin"
	CategoryPPC               Category = "ppc"
	CategoryRevenueProtection Category = "revenue_protection"
	CategoryRuleDigest        Category = "rule_digest"
)

const (
	// MaxSamples caps representative records per category.
	MaxSamples = 5
	// MaxValueRunes caps a single record value.
	MaxValueRunes = 120
)

var categoryOrder = []Category{
	CategoryInventory,
	CategoryCompliance,
	CategoryMargin,
	CategoryPPC,
	CategoryRevenueProtection,
	CategoryRuleDigest,
}

var categoryTitles = map[Category]string{
	CategoryInventory:         "Low stock",
	CategoryCompliance:        "Compliance documents expiring",
	CategoryMargin:            "Margin below target",
	CategoryPPC:               "Ad spend surge",
	CategoryRevenueProtection: "Revenue at risk (advertised, low stock)",
	CategoryRuleDigest:        "Metric rules fired",
}

// Categories returns every category in snapshot order.
func Categories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// Title is the human heading for a category.
func (c Category) Title() string {
	if t, ok := categoryTitles[c]; ok {
		return t
	}
	return string(c)
}

// Field is one key/value pair of a record.
type Field struct {
	Key   string
	Value string
}

// Record is an ordered flat mapping. It marshals as a JSON object with keys
// in insertion order.
type Record []Field

// Get returns the value for key.
func (r Record) Get(key string) (string, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Head returns the first n fields.
func (r Record) Head(n int) Record {
	if len(r) <= n {
		return r
	}
	return r[:n]
}

// MarshalJSON keeps field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Recorder is implemented by typed alert rows.
type Recorder interface {
	Record() Record
}

// Result is what a category lookup produced.
type Result struct {
	Count   int
	Records []Record
}

// ResultOf builds a result from typed rows.
func ResultOf[T Recorder](rows []T) Result {
	records := make([]Record, 0, min(len(rows), MaxSamples))
	for i, row := range rows {
		if i >= MaxSamples {
			break
		}
		records = append(records, row.Record())
	}
	return Result{Count: len(rows), Records: records}
}

// CategorySnapshot is the folded state of one category.
type CategorySnapshot struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
	Samples  []Record `json:"samples"`
	Err      error    `json:"-"`
}

// Snapshot is the aggregated alert payload for one dispatch cycle.
type Snapshot struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Categories  []CategorySnapshot `json:"categories"`
}

// Total sums counts across categories.
func (s Snapshot) Total() int {
	total := 0
	for _, c := range s.Categories {
		total += c.Count
	}
	return total
}

// Get returns the snapshot of one category.
func (s Snapshot) Get(c Category) (CategorySnapshot, bool) {
	for _, cs := range s.Categories {
		if cs.Category == c {
			return cs, true
		}
	}
	return CategorySnapshot{}, false
}

// Failed lists the categories whose lookup errored.
func (s Snapshot) Failed() map[Category]error {
	out := make(map[Category]error)
	for _, c := range s.Categories {
		if c.Err != nil {
			out[c.Category] = c.Err
		}
	}
	return out
}

var secretMarkers = []string{"token", "secret", "password", "passwd", "api_key", "apikey", "authorization", "email"}

// Sanitize redacts secret-looking keys, flattens newlines and truncates values.
func Sanitize(r Record) Record {
	out := make(Record, 0, len(r))
	for _, f := range r {
		key := strings.TrimSpace(f.Key)
		value := f.Value
		if isSecretKey(key) {
			value = "[redacted]"
		}
		value = strings.Join(strings.Fields(value), " ")
		if utf8.RuneCountInString(value) > MaxValueRunes {
			runes := []rune(value)
			value = string(runes[:MaxValueRunes-3]) + "..."
		}
		out = append(out, Field{Key: key, Value: value})
	}
	return out
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, m := range secretMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
