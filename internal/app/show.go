package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"cockpit-alerts/internal/alerts"
	"cockpit-alerts/internal/rules"
	"cockpit-alerts/internal/service"
)

func (a *App) out() io.Writer {
	if a.Out != nil {
		return a.Out
	}
	return os.Stdout
}

// withRules opens only the rule store; no database or series is needed.
func (a *App) withRules(fn func(rules.Store) error) error {
	rt := &runtime{}
	if err := a.openRuleStorage(rt); err != nil {
		return err
	}
	defer rt.close()
	return fn(rt.rules)
}

// ListRules prints the stored rules with their indexes.
func (a *App) ListRules(ctx context.Context) error {
	return a.withRules(func(store rules.Store) error {
		list := store.List(ctx)
		if len(list) == 0 {
			fmt.Fprintln(a.out(), "no rules configured")
			return nil
		}

		writer := tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "#\tMetric\tOperator\tThreshold\tLookback\tAction\tName")
		for i, r := range list {
			fmt.Fprintf(writer, "%d\t%s\t%s\t%g\t%d\t%s\t%s\n",
				i, r.Metric, r.Operator, r.Threshold, r.LookbackDays, r.Action, sanitizeInline(r.Name))
		}
		return writer.Flush()
	})
}

// AddRule validates and appends a rule.
func (a *App) AddRule(ctx context.Context, r rules.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return a.withRules(func(store rules.Store) error {
		if err := store.Add(ctx, r); err != nil {
			return err
		}
		fmt.Fprintf(a.out(), "added: %s\n", r.Normalize().Label())
		return nil
	})
}

// AddTemplate appends the rule behind a quick-add template key.
func (a *App) AddTemplate(ctx context.Context, key string) error {
	tpl, ok := rules.LookupTemplate(key)
	if !ok {
		return fmt.Errorf("unknown template %q", key)
	}
	return a.AddRule(ctx, tpl.Rule)
}

// RemoveRule deletes the rule at index. Out-of-range indexes change nothing.
func (a *App) RemoveRule(ctx context.Context, index int) error {
	return a.withRules(func(store rules.Store) error {
		before := len(store.List(ctx))
		if err := store.Remove(ctx, index); err != nil {
			return err
		}
		if len(store.List(ctx)) == before {
			fmt.Fprintf(a.out(), "no rule at index %d\n", index)
			return nil
		}
		fmt.Fprintf(a.out(), "removed rule %d\n", index)
		return nil
	})
}

// Templates prints the quick-add catalogue.
func (a *App) Templates() error {
	writer := tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Key\tRule\tName")
	for _, t := range rules.Templates() {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", t.Key, t.Rule.Label(), t.Rule.Name)
	}
	return writer.Flush()
}

// CheckRules evaluates every rule against the current series.
func (a *App) CheckRules(ctx context.Context) error {
	return a.withService(ctx, func(svc *service.Service) error {
		outcomes, err := svc.CheckRules(ctx)
		if err != nil {
			fmt.Fprintf(a.out(), "warning: %s\n", sanitizeInline(err.Error()))
		}
		if len(outcomes) == 0 {
			fmt.Fprintln(a.out(), "no rules configured")
			return nil
		}

		writer := tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "#\tRule\tPassed\tKind\tReason")
		for i, o := range outcomes {
			fmt.Fprintf(writer, "%d\t%s\t%t\t%s\t%s\n", i, o.Rule.Label(), o.Passed, o.Kind, o.Reason)
		}
		return writer.Flush()
	})
}

// Show prints the current snapshot category by category.
func (a *App) Show(ctx context.Context) error {
	return a.withService(ctx, func(svc *service.Service) error {
		printSnapshot(a.out(), svc.Snapshot(ctx))
		return nil
	})
}

func printSnapshot(w io.Writer, snap alerts.Snapshot) {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Category\tCount\tStatus\tFirst sample")
	for _, cs := range snap.Categories {
		status := "ok"
		if cs.Err != nil {
			status = "unavailable: " + sanitizeInline(cs.Err.Error())
		}
		first := ""
		if len(cs.Samples) > 0 {
			first = formatRecord(cs.Samples[0])
		}
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\n", cs.Category.Title(), cs.Count, status, first)
	}
	writer.Flush()
	fmt.Fprintf(w, "total: %d\n", snap.Total())
}

func formatRecord(r alerts.Record) string {
	parts := make([]string, 0, len(r))
	for _, f := range r {
		parts = append(parts, f.Key+"="+f.Value)
	}
	return sanitizeInline(strings.Join(parts, " "))
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
