package app

import (
	"context"
	"fmt"
	"os"

	"cockpit-alerts/internal/dispatch"
	"cockpit-alerts/internal/service"
)

// Notify 汇总一次告警，仅在指纹变化时发送。
func (a *App) Notify(ctx context.Context) error {
	return a.withService(ctx, func(svc *service.Service) error {
		res, snap := svc.NotifyIfChanged(ctx)
		a.printResult(res, snap.Total())
		return nil
	})
}

// Resend 忽略已保存的指纹，强制发送当前快照。
func (a *App) Resend(ctx context.Context) error {
	return a.withService(ctx, func(svc *service.Service) error {
		res, snap := svc.ResendLatest(ctx)
		a.printResult(res, snap.Total())
		return nil
	})
}

// Preview renders the current snapshot without sending or touching state.
// The HTML goes to OutPath, or to stdout when it is empty.
func (a *App) Preview(ctx context.Context, opts PreviewOptions) error {
	return a.withService(ctx, func(svc *service.Service) error {
		p, err := svc.Preview(ctx, a.Config.Notify.Subject)
		if err != nil {
			return err
		}

		if opts.OutPath == "" {
			fmt.Fprintf(a.out(), "Subject: %s\nFingerprint: %s\n\n%s\n", p.Subject, p.Fingerprint, p.HTML)
			return nil
		}
		if err := ensureDir(opts.OutPath); err != nil {
			return err
		}
		if err := os.WriteFile(opts.OutPath, []byte(p.HTML), 0o644); err != nil {
			return fmt.Errorf("write preview: %w", err)
		}
		a.Logger.Info().Str("path", opts.OutPath).Str("subject", p.Subject).Int("total", p.Snapshot.Total()).Msg("preview written")
		return nil
	})
}

func (a *App) printResult(res dispatch.Result, total int) {
	w := a.out()
	fmt.Fprintf(w, "status: %s\nalerts: %d\nfingerprint: %s\n", res.Status, total, res.Fingerprint)
	if res.Status == dispatch.StatusSent {
		fmt.Fprintf(w, "run_id: %s\nemail: %s %s\nwebhook: %s %s\n",
			res.RunID,
			res.Email.Status, sanitizeInline(res.Email.Message),
			res.Webhook.Status, sanitizeInline(res.Webhook.Message))
	}
}
