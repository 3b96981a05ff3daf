package worker

import (
	"context"
	"errors"
	"time"

	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/channel"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/store"
)

// errorRetryPause separates the two in-batch attempts after an
// unexpected failure, giving a flaky session a moment to settle.
const errorRetryPause = 5 * time.Second

// classifyOutcome maps a delivery error to the status written back.
// It is pure so the outcome table can be tested without any channel.
//
//	nil            -> Sent            (terminal)
//	ErrNotFound    -> NotFound        (terminal: absence won't change this run)
//	ErrOpenFailed  -> Failed-NewChat  (retryable)
//	ErrSendFailed  -> Failed-Send     (retryable)
//	anything else  -> Error           (retryable up to the cap)
func classifyOutcome(err error) store.Status {
	switch {
	case err == nil:
		return store.StatusSent
	case errors.Is(err, channel.ErrNotFound):
		return store.StatusNotFound
	case errors.Is(err, channel.ErrOpenFailed):
		return store.StatusFailedNewChat
	case errors.Is(err, channel.ErrSendFailed):
		return store.StatusFailedSend
	default:
		return store.StatusError
	}
}

// deliverOnce runs one open+send pass and returns the raw error.
func deliverOnce(ctx context.Context, ch channel.Channel, phone, text string) error {
	handle, err := ch.Open(ctx, phone)
	if err != nil {
		return err
	}
	return ch.Send(ctx, handle, text)
}

// attemptDelivery drives the per-lead state machine. Defined channel
// outcomes are recorded immediately; only unexpected failures get one
// more in-batch try after a short pause, after which the attempt is an
// Error. Retries across poll cycles come from re-selection, not here.
func attemptDelivery(ctx context.Context, ch channel.Channel, phone, text string, sleep sleepFunc) store.Status {
	for attempt := 0; ; attempt++ {
		status := classifyOutcome(deliverOnce(ctx, ch, phone, text))
		if status != store.StatusError || attempt > 0 {
			return status
		}
		if err := sleep(ctx, errorRetryPause); err != nil {
			return store.StatusError
		}
	}
}
