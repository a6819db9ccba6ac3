package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cockpit-alerts/internal/rules"
)

var (
	ruleMetric    string
	ruleOperator  string
	ruleThreshold float64
	ruleLookback  int
	ruleName      string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage metric alert rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListRules(cmd.Context())
	},
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a rule",
	Example: "  cockpit rules add --metric acos --op '>' --threshold 0.3 --lookback 7\n" +
		"  cockpit rules add --template acos-high",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tpl, _ := cmd.Flags().GetString("template"); tpl != "" {
			return getApp().AddTemplate(cmd.Context(), tpl)
		}
		r := rules.New(ruleMetric, ruleOperator, ruleThreshold, ruleLookback)
		r.Name = ruleName
		return getApp().AddRule(cmd.Context(), r)
	},
}

var rulesRemoveCmd = &cobra.Command{
	Use:   "remove <index>",
	Short: "Remove the rule at a zero-based index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("index must be an integer: %w", err)
		}
		return getApp().RemoveRule(cmd.Context(), index)
	},
}

var rulesTemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List quick-add rule templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Templates()
	},
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate every rule against the current series",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CheckRules(cmd.Context())
	},
}

func init() {
	rulesAddCmd.Flags().StringVar(&ruleMetric, "metric", "", "Metric column name")
	rulesAddCmd.Flags().StringVar(&ruleOperator, "op", rules.OpGreater, fmt.Sprintf("Operator, one of %v", rules.Operators()))
	rulesAddCmd.Flags().Float64Var(&ruleThreshold, "threshold", 0, "Threshold value")
	rulesAddCmd.Flags().IntVar(&ruleLookback, "lookback", 7, "Lookback window in days")
	rulesAddCmd.Flags().StringVar(&ruleName, "name", "", "Optional display name")
	rulesAddCmd.Flags().String("template", "", "Add the rule behind a template key instead")

	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesRemoveCmd, rulesTemplatesCmd, rulesCheckCmd)
}
