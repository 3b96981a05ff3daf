package notify

import (
	"context"
	"time"

	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/store"
)

// ErrorReport carries everything an operator needs to triage a worker
// failure. Screenshot is optional (PNG bytes from the channel session).
type ErrorReport struct {
	Bot        string
	LeadName   string
	Phone      string
	Program    string
	Err        error
	Screenshot []byte
	Time       time.Time
}

// Notifier delivers operational mail. Both calls are best-effort: a
// notification failure is logged by the caller and never affects
// delivery processing.
type Notifier interface {
	SendError(ctx context.Context, report ErrorReport) error
	SendDailyReport(ctx context.Context, day time.Time, stats []store.StatusCount) error
}
