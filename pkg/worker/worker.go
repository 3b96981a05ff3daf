package worker

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/channel"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/events"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/keepalive"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/notify"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/store"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/template"
)

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Config is the per-worker slice of the settings surface.
type Config struct {
	PollInterval         time.Duration
	BatchSize            int
	MessageDelayMin      time.Duration
	MessageDelayMax      time.Duration
	AntiLockInterval     time.Duration
	MaxRetries           int
	PollFailureThreshold int
}

// Worker is one bot: it owns one channel session and one campus set,
// polls for pending leads and drives each through the delivery state
// machine. Workers share nothing in memory; the status table is the
// only cross-worker surface.
type Worker struct {
	name      string
	campuses  []string
	cfg       Config
	source    store.LeadSource
	status    store.StatusStore
	channel   channel.Channel
	templates *template.Selector
	broker    events.MessageBroker
	notifier  notify.Notifier
	pinger    keepalive.Pinger
	log       zerolog.Logger

	// sleep and delay are swappable in tests.
	sleep sleepFunc
	delay func() time.Duration
}

func New(name string, campuses []string, cfg Config, src store.LeadSource, st store.StatusStore,
	ch channel.Channel, tmpl *template.Selector, broker events.MessageBroker,
	notifier notify.Notifier, pinger keepalive.Pinger, log zerolog.Logger) *Worker {

	w := &Worker{
		name:      name,
		campuses:  campuses,
		cfg:       cfg,
		source:    src,
		status:    st,
		channel:   ch,
		templates: tmpl,
		broker:    broker,
		notifier:  notifier,
		pinger:    pinger,
		log:       log.With().Str("bot", name).Logger(),
		sleep:     sleepCtx,
	}
	w.delay = func() time.Duration {
		spread := cfg.MessageDelayMax - cfg.MessageDelayMin
		if spread <= 0 {
			return cfg.MessageDelayMin
		}
		return cfg.MessageDelayMin + time.Duration(rand.Int63n(int64(spread)+1))
	}
	return w
}

func (w *Worker) Name() string { return w.name }

// Run blocks until ctx is canceled or the channel session becomes
// unrecoverable. A non-nil error asks the dispatcher for a restart
// decision; a nil return is a clean shutdown.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Strs("campuses", w.campuses).Msg("starting bot")

	if err := w.channel.Start(ctx); err != nil {
		return fmt.Errorf("start channel session: %w", err)
	}
	defer w.channel.Close()

	// Pairing may need a human to scan a QR code, so this blocks with
	// no timeout of its own.
	w.log.Info().Msg("waiting for channel session to become ready")
	if err := channel.WaitReady(ctx, w.channel); err != nil {
		return nil // canceled during pairing, clean shutdown
	}
	w.log.Info().Msg("channel session ready")

	// The anti-idle goroutine runs on a worker-scoped context so every
	// return path releases it, including error returns while the parent
	// context is still live.
	runCtx, cancel := context.WithCancel(ctx)
	antiIdleDone := make(chan struct{})
	go w.antiIdleLoop(runCtx, antiIdleDone)
	defer func() {
		cancel()
		<-antiIdleDone
	}()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	pollFailures := 0
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("bot stopped")
			return nil
		case <-ticker.C:
		}

		leads, err := w.source.FetchPending(ctx, w.campuses, w.cfg.BatchSize)
		if err != nil {
			pollFailures++
			w.log.Error().Err(err).Int("consecutive", pollFailures).Msg("poll failed")
			// Re-alert at every threshold multiple so an outage that
			// outlasts the first alert keeps surfacing.
			if pollFailures%w.cfg.PollFailureThreshold == 0 {
				w.notifyError(ctx, notify.ErrorReport{
					Bot:  w.name,
					Err:  fmt.Errorf("lead source unreachable for %d consecutive polls: %w", pollFailures, err),
					Time: time.Now(),
				})
			}
			continue
		}
		pollFailures = 0

		if len(leads) == 0 {
			continue
		}
		w.log.Info().Int("count", len(leads)).Msg("processing batch")

		sent := 0
		for _, lead := range leads {
			// A shutdown request never interrupts the lead in flight:
			// stop only between leads.
			if ctx.Err() != nil {
				break
			}
			status, processed := w.processLead(context.WithoutCancel(ctx), lead)
			if processed {
				if status == store.StatusSent {
					sent++
				}
				if status == store.StatusError {
					if err := w.checkSession(ctx); err != nil {
						return err
					}
				}
			}
			// Throttle between messages so the channel sees human-ish
			// pacing. Removing or parallelizing this gets numbers banned.
			_ = w.sleep(ctx, w.delay())
		}
		w.log.Info().Int("sent", sent).Msg("batch complete")
	}
}

// processLead runs the delivery state machine for one lead and records
// the outcome. It returns the recorded status and whether the lead was
// processed at all (unusable phones and already-sent identities are
// skipped without a record).
func (w *Worker) processLead(ctx context.Context, lead store.Lead) (store.Status, bool) {
	tracer := otel.Tracer("leadbot")
	ctx, span := tracer.Start(ctx, "ProcessLead", trace.WithAttributes(
		attribute.String("lead.campus", lead.Campus),
		attribute.String("lead.program", lead.Program),
		attribute.Int("lead.attempts", lead.Attempts),
	))
	defer span.End()

	phone, err := template.NormalizePhone(lead.Phone)
	if err != nil {
		w.log.Warn().Err(err).Str("name", lead.Name).Msg("skipping lead with unusable phone")
		return "", false
	}

	name := lead.Name
	if name == "" {
		name = "Student"
	}

	key := store.LeadKey{Phone: template.StoredPhone(phone), Program: lead.Program, Campus: lead.Campus}

	// Last-moment dedup guard: the status table is re-read just before
	// the send, since another record may have appeared since the poll.
	if sent, err := w.status.HasSent(ctx, key); err != nil {
		w.log.Error().Err(err).Msg("dedup check failed, skipping lead")
		return "", false
	} else if sent {
		w.log.Debug().Str("phone", key.Phone).Msg("already sent, skipping")
		return "", false
	}

	text := w.templates.Render(lead.Program, name, phone)

	w.log.Info().Str("name", name).Str("program", lead.Program).Msg("delivering")
	status := attemptDelivery(ctx, w.channel, phone, text, w.sleep)

	// Once the retry cap is spent, a retryable outcome becomes a final
	// Error record so the lead stops being re-selected and surfaces for
	// manual review.
	if !status.Terminal() && lead.Attempts >= w.cfg.MaxRetries {
		w.log.Warn().Str("phone", key.Phone).Int("attempts", lead.Attempts).Msg("retry cap reached")
		status = store.StatusError
	}

	span.SetAttributes(attribute.String("lead.status", string(status)))

	if status == store.StatusSent {
		w.log.Info().Str("name", name).Msg("message sent")
	} else {
		w.log.Warn().Str("name", name).Str("status", string(status)).Msg("delivery not confirmed")
	}

	if status == store.StatusError {
		w.notifyError(ctx, notify.ErrorReport{
			Bot:        w.name,
			LeadName:   name,
			Phone:      key.Phone,
			Program:    lead.Program,
			Err:        fmt.Errorf("delivery failed with status %s", status),
			Screenshot: w.screenshot(ctx),
			Time:       time.Now(),
		})
	}

	rec := store.AttemptRecord{
		LeadName:           name,
		Phone:              key.Phone,
		Program:            lead.Program,
		DegreeAwardingBody: lead.OwnerName,
		Campus:             lead.Campus,
		Status:             status,
		Timestamp:          time.Now(),
	}
	if err := w.status.Append(ctx, rec); err != nil {
		span.RecordError(err)
		w.log.Error().Err(err).Msg("failed to record delivery status")
		return status, true
	}

	w.publish(ctx, rec, lead.Attempts+1)
	return status, true
}

// publish emits the attempt event. Best-effort: the status row is the
// source of truth, a lost event is only an inconvenience downstream.
func (w *Worker) publish(ctx context.Context, rec store.AttemptRecord, attempt int) {
	event := &events.AttemptEvent{
		ID:        uuid.NewString(),
		Bot:       w.name,
		LeadName:  rec.LeadName,
		Phone:     rec.Phone,
		Program:   rec.Program,
		Campus:    rec.Campus,
		Status:    rec.Status,
		Attempt:   attempt,
		Timestamp: rec.Timestamp,
	}
	if err := w.broker.Publish(ctx, event); err != nil {
		w.log.Warn().Err(err).Msg("failed to publish attempt event")
	}
}

// checkSession decides whether an Error outcome was the session dying.
// An unready session is unrecoverable from inside the worker; the
// dispatcher owns the restart decision.
func (w *Worker) checkSession(ctx context.Context) error {
	ready, err := w.channel.IsReady(ctx)
	if err != nil {
		return fmt.Errorf("channel session unreachable: %w", err)
	}
	if !ready {
		return fmt.Errorf("channel session no longer ready")
	}
	return nil
}

func (w *Worker) screenshot(ctx context.Context) []byte {
	shotter, ok := w.channel.(channel.Screenshotter)
	if !ok {
		return nil
	}
	shot, err := shotter.Screenshot(ctx)
	if err != nil {
		w.log.Debug().Err(err).Msg("screenshot capture failed")
		return nil
	}
	return shot
}

func (w *Worker) notifyError(ctx context.Context, report notify.ErrorReport) {
	if err := w.notifier.SendError(ctx, report); err != nil {
		w.log.Warn().Err(err).Msg("failed to send error notification")
	}
}

// antiIdleLoop fires the keepalive pinger on its own timer. It shares
// no state with the delivery path and never blocks it.
func (w *Worker) antiIdleLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.cfg.AntiLockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.pinger.Ping(ctx); err != nil {
				w.log.Debug().Err(err).Msg("anti-idle ping failed")
			} else {
				w.log.Debug().Msg("anti-idle ping")
			}
		}
	}
}
