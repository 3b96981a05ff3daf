package channel

import (
	"context"
	"errors"
	"time"
)

// Sentinel outcomes of the two delivery steps. The worker classifies
// them into status records; anything else counts as an unexpected error.
var (
	// ErrNotFound means the recipient has no account on the channel.
	ErrNotFound = errors.New("recipient not found on channel")
	// ErrOpenFailed means a conversation could not be initiated.
	ErrOpenFailed = errors.New("failed to open chat")
	// ErrSendFailed means the channel reported a transient send failure.
	ErrSendFailed = errors.New("failed to send message")
)

// ChatHandle identifies an open conversation for the lifetime of one
// delivery.
type ChatHandle string

// Channel is one bot's delivery session. A Channel is owned by exactly
// one worker and must not be shared.
type Channel interface {
	// Start brings the session up. It returns once the session exists;
	// readiness (e.g. QR pairing) is awaited separately.
	Start(ctx context.Context) error
	// IsReady reports whether the session can send right now.
	IsReady(ctx context.Context) (bool, error)
	// Open initiates a conversation with the phone number. It returns
	// ErrNotFound or ErrOpenFailed (possibly wrapped) on the defined
	// failure outcomes.
	Open(ctx context.Context, phone string) (ChatHandle, error)
	// Send delivers text into an open conversation, returning
	// ErrSendFailed (possibly wrapped) when the channel refuses it.
	Send(ctx context.Context, handle ChatHandle, text string) error
	// Close tears the session down.
	Close() error
}

// readyPollInterval is how often WaitReady re-checks the session state
// while the operator completes the pairing handshake.
const readyPollInterval = 5 * time.Second

// WaitReady blocks until the channel reports ready. Pairing is a manual
// step (someone scans a QR code), so there is no default timeout:
// cancellation comes from ctx alone. Probe errors are retried, not
// surfaced, since the gateway may still be coming up.
func WaitReady(ctx context.Context, ch Channel) error {
	for {
		ready, err := ch.IsReady(ctx)
		if err == nil && ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyPollInterval):
		}
	}
}

// Screenshotter is an optional capability: sessions that can capture a
// picture of their current state provide it for error reports.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}
