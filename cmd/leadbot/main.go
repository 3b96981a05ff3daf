package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/channel"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/config"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/dispatch"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/events"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/keepalive"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/notify"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/store"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/telemetry"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/template"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/worker"
)

func main() {
	log := newLogger()

	cfg, err := config.LoadFromFile("./cmd/leadbot")
	if err != nil {
		log.Fatal().Err(err).Msg("error loading configuration")
	}
	log = applyLogSettings(log, cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(cfg.Observability)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		if err := shutdownTelemetry(); err != nil {
			log.Warn().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	repo, err := store.NewRepository(ctx, cfg.Database, cfg.MaxRetries, cfg.LeadOwners)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize repository")
	}

	broker, err := events.NewBroker(ctx, &cfg.Events)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize event broker")
	}
	defer broker.Close()

	templates, err := template.LoadFromFile(cfg.MessagesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load message templates")
	}

	notifier := notify.NewSMTPNotifier(cfg.Mail)
	pinger := keepalive.New()

	workerCfg := worker.Config{
		PollInterval:         cfg.PollInterval,
		BatchSize:            cfg.BatchSize,
		MessageDelayMin:      cfg.MessageDelayMin,
		MessageDelayMax:      cfg.MessageDelayMax,
		AntiLockInterval:     cfg.AntiLockInterval,
		MaxRetries:           cfg.MaxRetries,
		PollFailureThreshold: cfg.PollFailureThreshold,
	}

	factory := func(bot string, assignment config.BotSettings) (dispatch.Runner, error) {
		ch, err := channel.New(cfg.Channel, assignment.Session)
		if err != nil {
			return nil, err
		}
		return worker.New(bot, assignment.Campuses, workerCfg, repo, repo, ch,
			templates, broker, notifier, pinger, log), nil
	}

	dispatcher := dispatch.New(cfg, factory, notifier, repo, log)

	log.Info().Int("bots", len(cfg.Bots)).Str("database", cfg.Database.Type).Msg("lead bot starting")
	if err := dispatcher.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("dispatcher exited")
	}
	log.Info().Msg("lead bot stopped")
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

func applyLogSettings(log zerolog.Logger, cfg config.LoggingSettings) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if !cfg.Console {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return log.Level(level)
}
