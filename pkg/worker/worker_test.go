package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/channel"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/events"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/keepalive"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/notify"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/store"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/template"
)

// fakeChannel scripts Open and Send outcomes: errors are consumed one
// per call, an exhausted slice means success.
type fakeChannel struct {
	mu       sync.Mutex
	ready    bool
	readyErr error
	openErrs []error
	sendErrs []error
	opens    int
	sends    int
	texts    []string
	shot     []byte
	// unreadyAfterOpen simulates the session dying mid-batch: the first
	// Open flips the readiness probe to false.
	unreadyAfterOpen bool
}

func (f *fakeChannel) Start(ctx context.Context) error { return nil }

func (f *fakeChannel) IsReady(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready, f.readyErr
}

func (f *fakeChannel) Open(ctx context.Context, phone string) (channel.ChatHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.unreadyAfterOpen {
		f.ready = false
	}
	if len(f.openErrs) > 0 {
		err := f.openErrs[0]
		f.openErrs = f.openErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return channel.ChatHandle("chat-" + phone), nil
}

func (f *fakeChannel) Send(ctx context.Context, handle channel.ChatHandle, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) Screenshot(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shot == nil {
		return nil, errors.New("no screenshot")
	}
	return f.shot, nil
}

func (f *fakeChannel) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeChannel) setReady(ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = ready
}

// fakeSource serves each queued batch once, then empty batches.
type fakeSource struct {
	mu      sync.Mutex
	batches [][]store.Lead
	err     error
	polls   int
}

func (f *fakeSource) FetchPending(ctx context.Context, campuses []string, batchSize int) ([]store.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

type fakeStatusStore struct {
	mu        sync.Mutex
	records   []store.AttemptRecord
	sent      map[store.LeadKey]bool
	appendErr error
}

func (f *fakeStatusStore) Append(ctx context.Context, rec store.AttemptRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStatusStore) HasSent(ctx context.Context, key store.LeadKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[key], nil
}

func (f *fakeStatusStore) DailyStats(ctx context.Context, day time.Time) ([]store.StatusCount, error) {
	return nil, nil
}

func (f *fakeStatusStore) recorded() []store.AttemptRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.AttemptRecord(nil), f.records...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*events.AttemptEvent
}

func (f *fakePublisher) Publish(ctx context.Context, event *events.AttemptEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) published() []*events.AttemptEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*events.AttemptEvent(nil), f.events...)
}

type fakeNotifier struct {
	mu      sync.Mutex
	reports []notify.ErrorReport
}

func (f *fakeNotifier) SendError(ctx context.Context, report notify.ErrorReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report)
	return nil
}

func (f *fakeNotifier) SendDailyReport(ctx context.Context, day time.Time, stats []store.StatusCount) error {
	return nil
}

func (f *fakeNotifier) sentReports() []notify.ErrorReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.ErrorReport(nil), f.reports...)
}

type testHarness struct {
	worker   *Worker
	channel  *fakeChannel
	source   *fakeSource
	status   *fakeStatusStore
	broker   *fakePublisher
	notifier *fakeNotifier
}

func newTestWorker(cfg Config) *testHarness {
	h := &testHarness{
		channel:  &fakeChannel{ready: true},
		source:   &fakeSource{},
		status:   &fakeStatusStore{sent: map[store.LeadKey]bool{}},
		broker:   &fakePublisher{},
		notifier: &fakeNotifier{},
	}
	tmpl := template.New(map[string]string{
		"Default": "Hi {name}, about {program}.",
	})
	h.worker = New("bot-a", []string{"Lahore"}, cfg, h.source, h.status, h.channel,
		tmpl, h.broker, h.notifier, keepalive.Noop{}, zerolog.Nop())
	h.worker.sleep = noSleep
	h.worker.delay = func() time.Duration { return 0 }
	return h
}

func testConfig() Config {
	return Config{
		PollInterval:         5 * time.Millisecond,
		BatchSize:            5,
		MessageDelayMin:      0,
		MessageDelayMax:      0,
		AntiLockInterval:     time.Hour,
		MaxRetries:           2,
		PollFailureThreshold: 2,
	}
}

func TestProcessLead_Sent(t *testing.T) {
	h := newTestWorker(testConfig())

	lead := store.Lead{
		Phone:     "+923001234567",
		Name:      "Ayesha",
		OwnerName: "UHS",
		Program:   "Doctor of Medicine",
		Campus:    "Lahore",
		Attempts:  0,
	}
	status, processed := h.worker.processLead(context.Background(), lead)
	assert.True(t, processed)
	assert.Equal(t, store.StatusSent, status)

	records := h.status.recorded()
	assert.Len(t, records, 1)
	assert.Equal(t, "923001234567", records[0].Phone)
	assert.Equal(t, "Ayesha", records[0].LeadName)
	assert.Equal(t, "Doctor of Medicine", records[0].Program)
	assert.Equal(t, "UHS", records[0].DegreeAwardingBody)
	assert.Equal(t, "Lahore", records[0].Campus)
	assert.Equal(t, store.StatusSent, records[0].Status)

	assert.Equal(t, []string{"Hi Ayesha, about Doctor of Medicine."}, h.channel.sentTexts())

	published := h.broker.published()
	assert.Len(t, published, 1)
	assert.Equal(t, "bot-a", published[0].Bot)
	assert.Equal(t, store.StatusSent, published[0].Status)
	assert.Equal(t, 1, published[0].Attempt)
	assert.NotEmpty(t, published[0].ID)
}

func TestProcessLead_UnusablePhoneSkipped(t *testing.T) {
	h := newTestWorker(testConfig())

	_, processed := h.worker.processLead(context.Background(), store.Lead{
		Phone:   "no-number",
		Program: "Doctor of Medicine",
		Campus:  "Lahore",
	})
	assert.False(t, processed)
	assert.Empty(t, h.status.recorded())
	assert.Equal(t, 0, h.channel.opens)
}

func TestProcessLead_AlreadySentSkipped(t *testing.T) {
	h := newTestWorker(testConfig())
	key := store.LeadKey{Phone: "923001234567", Program: "Doctor of Medicine", Campus: "Lahore"}
	h.status.sent[key] = true

	_, processed := h.worker.processLead(context.Background(), store.Lead{
		Phone:   "+923001234567",
		Name:    "Ayesha",
		Program: "Doctor of Medicine",
		Campus:  "Lahore",
	})
	assert.False(t, processed)
	assert.Empty(t, h.status.recorded())
	assert.Equal(t, 0, h.channel.opens)
}

func TestProcessLead_MissingNameGetsFallback(t *testing.T) {
	h := newTestWorker(testConfig())

	_, processed := h.worker.processLead(context.Background(), store.Lead{
		Phone:   "+923001234567",
		Program: "Doctor of Medicine",
		Campus:  "Lahore",
	})
	assert.True(t, processed)

	records := h.status.recorded()
	assert.Len(t, records, 1)
	assert.Equal(t, "Student", records[0].LeadName)
	assert.Equal(t, []string{"Hi Student, about Doctor of Medicine."}, h.channel.sentTexts())
}

func TestProcessLead_RetryableOutcomeRecorded(t *testing.T) {
	h := newTestWorker(testConfig())
	h.channel.sendErrs = []error{channel.ErrSendFailed}

	status, processed := h.worker.processLead(context.Background(), store.Lead{
		Phone:    "+923001234567",
		Name:     "Ayesha",
		Program:  "Doctor of Medicine",
		Campus:   "Lahore",
		Attempts: 0,
	})
	assert.True(t, processed)
	assert.Equal(t, store.StatusFailedSend, status)

	records := h.status.recorded()
	assert.Len(t, records, 1)
	assert.Equal(t, store.StatusFailedSend, records[0].Status)
	assert.Empty(t, h.notifier.sentReports())
}

func TestProcessLead_RetryCapBecomesError(t *testing.T) {
	h := newTestWorker(testConfig())
	h.channel.shot = []byte("png")
	h.channel.sendErrs = []error{channel.ErrSendFailed}

	// Two Failed-Send records already exist for this identity.
	status, processed := h.worker.processLead(context.Background(), store.Lead{
		Phone:    "+923001234567",
		Name:     "Ayesha",
		Program:  "Doctor of Medicine",
		Campus:   "Lahore",
		Attempts: 2,
	})
	assert.True(t, processed)
	assert.Equal(t, store.StatusError, status)

	records := h.status.recorded()
	assert.Len(t, records, 1)
	assert.Equal(t, store.StatusError, records[0].Status)

	reports := h.notifier.sentReports()
	assert.Len(t, reports, 1)
	assert.Equal(t, "bot-a", reports[0].Bot)
	assert.Equal(t, "923001234567", reports[0].Phone)
	assert.Equal(t, []byte("png"), reports[0].Screenshot)
}

func TestProcessLead_TerminalOutcomeNotConvertedAtCap(t *testing.T) {
	h := newTestWorker(testConfig())

	status, processed := h.worker.processLead(context.Background(), store.Lead{
		Phone:    "+923001234567",
		Name:     "Ayesha",
		Program:  "Doctor of Medicine",
		Campus:   "Lahore",
		Attempts: 2,
	})
	assert.True(t, processed)
	assert.Equal(t, store.StatusSent, status)
}

func TestProcessLead_NotFoundNotRetriedNotConverted(t *testing.T) {
	h := newTestWorker(testConfig())
	h.channel.openErrs = []error{channel.ErrNotFound}

	status, processed := h.worker.processLead(context.Background(), store.Lead{
		Phone:   "+923001234567",
		Name:    "Ayesha",
		Program: "Doctor of Medicine",
		Campus:  "Lahore",
	})
	assert.True(t, processed)
	assert.Equal(t, store.StatusNotFound, status)
	assert.Equal(t, 1, h.channel.opens)
}

func TestDelayWithinBounds(t *testing.T) {
	cfg := testConfig()
	cfg.MessageDelayMin = 3 * time.Second
	cfg.MessageDelayMax = 6 * time.Second
	h := newTestWorker(cfg)

	w := New("bot-a", []string{"Lahore"}, cfg, h.source, h.status, h.channel,
		template.New(nil), h.broker, h.notifier, keepalive.Noop{}, zerolog.Nop())
	for i := 0; i < 200; i++ {
		d := w.delay()
		assert.GreaterOrEqual(t, d, cfg.MessageDelayMin)
		assert.LessOrEqual(t, d, cfg.MessageDelayMax)
	}
}

func TestRun_ProcessesBatchAndStopsCleanly(t *testing.T) {
	h := newTestWorker(testConfig())
	h.source.batches = [][]store.Lead{{
		{Phone: "+923001234567", Name: "Ayesha", Program: "Doctor of Medicine", Campus: "Lahore"},
		{Phone: "+923009876543", Name: "Bilal", Program: "BS Computer Science", Campus: "Lahore"},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return len(h.status.recorded()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	for _, rec := range h.status.recorded() {
		assert.Equal(t, store.StatusSent, rec.Status)
	}
}

func TestRun_CancelDuringPairingIsClean(t *testing.T) {
	h := newTestWorker(testConfig())
	h.channel.setReady(false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, 0, h.channel.opens)
}

func TestRun_PollFailuresKeepAlerting(t *testing.T) {
	h := newTestWorker(testConfig())
	h.source.err = errors.New("database unreachable")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	// One alert at the threshold, another at each multiple while the
	// outage persists.
	assert.Eventually(t, func() bool {
		return len(h.notifier.sentReports()) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRun_DeadSessionAsksForRestart(t *testing.T) {
	h := newTestWorker(testConfig())
	// Both in-batch tries fail unexpectedly, and the session probe
	// afterwards reports not ready.
	h.channel.unreadyAfterOpen = true
	h.channel.openErrs = []error{
		errors.New("browser crashed"),
		errors.New("browser crashed"),
	}
	h.source.batches = [][]store.Lead{{
		{Phone: "+923001234567", Name: "Ayesha", Program: "Doctor of Medicine", Campus: "Lahore"},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	select {
	case err := <-done:
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no longer ready")
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit")
	}

	records := h.status.recorded()
	assert.Len(t, records, 1)
	assert.Equal(t, store.StatusError, records[0].Status)
}
