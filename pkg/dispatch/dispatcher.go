package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/config"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/notify"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/store"
)

// Runner is what the dispatcher supervises: one bot's blocking loop.
// A non-nil error from Run means the session died and the dispatcher
// decides whether to restart.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// RunnerFactory builds a fresh Runner (with a fresh channel session)
// for a bot assignment. It is called again on every restart.
type RunnerFactory func(bot string, assignment config.BotSettings) (Runner, error)

// ValidateAssignments rejects overlapping campus sets. A lead's campus
// must match exactly one bot, otherwise two paired numbers could both
// message the same person. This is a fatal configuration error.
func ValidateAssignments(bots map[string]config.BotSettings) error {
	claimed := map[string]string{}
	for _, name := range sortedNames(bots) {
		for _, campus := range bots[name].Campuses {
			if prev, ok := claimed[campus]; ok {
				return fmt.Errorf("campus %q assigned to both %q and %q", campus, prev, name)
			}
			claimed[campus] = name
		}
	}
	return nil
}

func sortedNames(bots map[string]config.BotSettings) []string {
	names := make([]string, 0, len(bots))
	for name := range bots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatcher starts one worker per bot assignment, restarts crashed
// workers within a bounded budget, runs the daily report schedule and
// coordinates graceful shutdown.
type Dispatcher struct {
	cfg       *config.Settings
	newRunner RunnerFactory
	notifier  notify.Notifier
	stats     store.StatusStore
	log       zerolog.Logger
	cron      *cron.Cron
}

func New(cfg *config.Settings, factory RunnerFactory, notifier notify.Notifier, stats store.StatusStore, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		newRunner: factory,
		notifier:  notifier,
		stats:     stats,
		log:       log.With().Str("component", "dispatcher").Logger(),
	}
}

// Run blocks until ctx is canceled and every worker has stopped, or the
// shutdown timeout expires.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := ValidateAssignments(d.cfg.Bots); err != nil {
		return fmt.Errorf("invalid bot assignments: %w", err)
	}

	if err := d.scheduleDailyReport(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	names := sortedNames(d.cfg.Bots)
	for i, name := range names {
		wg.Add(1)
		go func(name string, assignment config.BotSettings) {
			defer wg.Done()
			d.supervise(ctx, name, assignment)
		}(name, d.cfg.Bots[name])

		// Stagger launches so sessions don't all pair at once.
		if i < len(names)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(d.cfg.StartStagger):
			}
		}
	}
	d.log.Info().Int("bots", len(names)).Msg("all bots launched")

	<-ctx.Done()
	d.log.Info().Msg("shutdown requested, stopping bots")
	if d.cron != nil {
		d.cron.Stop()
	}

	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		d.log.Info().Msg("all bots stopped")
		return nil
	case <-time.After(d.cfg.ShutdownTimeout):
		return fmt.Errorf("shutdown timeout (%s) exceeded, terminating", d.cfg.ShutdownTimeout)
	}
}

// supervise runs one bot's restart loop. Each restart gets a fresh
// Runner (fresh session) after a cooldown, bounded by max_restarts so a
// broken pairing can't crash-loop forever.
func (d *Dispatcher) supervise(ctx context.Context, name string, assignment config.BotSettings) {
	log := d.log.With().Str("bot", name).Logger()
	restarts := 0
	for {
		runner, err := d.newRunner(name, assignment)
		if err != nil {
			log.Error().Err(err).Msg("failed to build bot")
			d.alert(ctx, name, fmt.Errorf("failed to build bot: %w", err))
			return
		}

		err = runner.Run(ctx)
		if ctx.Err() != nil || err == nil {
			return
		}

		log.Error().Err(err).Int("restarts", restarts).Msg("bot failed")
		d.alert(ctx, name, err)

		if restarts >= d.cfg.MaxRestarts {
			log.Error().Int("max_restarts", d.cfg.MaxRestarts).Msg("restart budget exhausted, giving up on bot")
			return
		}
		restarts++

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.cfg.RestartCooldown):
		}
		log.Info().Int("attempt", restarts).Msg("restarting bot with fresh session")
	}
}

func (d *Dispatcher) alert(ctx context.Context, bot string, err error) {
	report := notify.ErrorReport{Bot: bot, Err: err, Time: time.Now()}
	if nerr := d.notifier.SendError(ctx, report); nerr != nil {
		d.log.Warn().Err(nerr).Msg("failed to send failure alert")
	}
}
