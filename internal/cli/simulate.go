package cli

import (
	"github.com/spf13/cobra"

	"cockpit-alerts/internal/app"
)

var previewOut string

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "汇总告警，指纹变化时发送邮件与 webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Notify(cmd.Context())
	},
}

var resendCmd = &cobra.Command{
	Use:   "resend",
	Short: "忽略已保存状态，强制重发当前告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Resend(cmd.Context())
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "渲染当前告警邮件但不发送",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Preview(cmd.Context(), app.PreviewOptions{OutPath: previewOut})
	},
}

func init() {
	previewCmd.Flags().StringVar(&previewOut, "out", "", "Write the HTML to this path instead of stdout")
}
