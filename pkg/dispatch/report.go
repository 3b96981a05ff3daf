package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// scheduleDailyReport installs the daily stats email at the configured
// wall-clock time ("15:04" format). An empty setting disables it.
func (d *Dispatcher) scheduleDailyReport(ctx context.Context) error {
	at := d.cfg.Mail.DailyReportTime
	if at == "" {
		return nil
	}
	t, err := time.Parse("15:04", at)
	if err != nil {
		return fmt.Errorf("invalid daily_report_time %q: %w", at, err)
	}

	d.cron = cron.New()
	spec := fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour())
	if _, err := d.cron.AddFunc(spec, func() { d.sendDailyReport(ctx) }); err != nil {
		return fmt.Errorf("schedule daily report: %w", err)
	}
	d.cron.Start()
	d.log.Info().Str("at", at).Msg("daily report scheduled")
	return nil
}

func (d *Dispatcher) sendDailyReport(ctx context.Context) {
	d.log.Info().Msg("generating daily report")

	day := time.Now()
	stats, err := d.stats.DailyStats(ctx, day)
	if err != nil {
		d.log.Error().Err(err).Msg("daily report query failed")
		return
	}
	if len(stats) == 0 {
		d.log.Info().Msg("no data for daily report")
		return
	}
	if err := d.notifier.SendDailyReport(ctx, day, stats); err != nil {
		d.log.Error().Err(err).Msg("failed to send daily report")
		return
	}
	d.log.Info().Msg("daily report sent")
}
