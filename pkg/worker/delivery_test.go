package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/channel"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/store"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestClassifyOutcome(t *testing.T) {
	cases := []struct {
		err  error
		want store.Status
	}{
		{nil, store.StatusSent},
		{channel.ErrNotFound, store.StatusNotFound},
		{channel.ErrOpenFailed, store.StatusFailedNewChat},
		{channel.ErrSendFailed, store.StatusFailedSend},
		{wrapped(channel.ErrNotFound), store.StatusNotFound},
		{errors.New("browser crashed"), store.StatusError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, classifyOutcome(c.err))
	}
}

func wrapped(err error) error {
	return errors.Join(errors.New("wrapped"), err)
}

func TestAttemptDelivery_Sent(t *testing.T) {
	ch := &fakeChannel{ready: true}

	status := attemptDelivery(context.Background(), ch, "+923001234567", "hi", noSleep)
	assert.Equal(t, store.StatusSent, status)
	assert.Equal(t, 1, ch.opens)
	assert.Equal(t, []string{"hi"}, ch.sentTexts())
}

func TestAttemptDelivery_DefinedOutcomesNotRetried(t *testing.T) {
	for _, c := range []struct {
		err  error
		want store.Status
	}{
		{channel.ErrNotFound, store.StatusNotFound},
		{channel.ErrOpenFailed, store.StatusFailedNewChat},
	} {
		ch := &fakeChannel{ready: true, openErrs: []error{c.err}}
		status := attemptDelivery(context.Background(), ch, "+923001234567", "hi", noSleep)
		assert.Equal(t, c.want, status)
		assert.Equal(t, 1, ch.opens)
	}

	ch := &fakeChannel{ready: true, sendErrs: []error{channel.ErrSendFailed}}
	status := attemptDelivery(context.Background(), ch, "+923001234567", "hi", noSleep)
	assert.Equal(t, store.StatusFailedSend, status)
	assert.Equal(t, 1, ch.opens)
}

func TestAttemptDelivery_UnexpectedFailureRetriedOnce(t *testing.T) {
	ch := &fakeChannel{ready: true, openErrs: []error{errors.New("browser crashed")}}

	status := attemptDelivery(context.Background(), ch, "+923001234567", "hi", noSleep)
	assert.Equal(t, store.StatusSent, status)
	assert.Equal(t, 2, ch.opens)
}

func TestAttemptDelivery_TwoUnexpectedFailuresIsError(t *testing.T) {
	ch := &fakeChannel{ready: true, openErrs: []error{
		errors.New("browser crashed"),
		errors.New("browser crashed again"),
	}}

	status := attemptDelivery(context.Background(), ch, "+923001234567", "hi", noSleep)
	assert.Equal(t, store.StatusError, status)
	assert.Equal(t, 2, ch.opens)
}

func TestAttemptDelivery_CancelledDuringPause(t *testing.T) {
	ch := &fakeChannel{ready: true, openErrs: []error{errors.New("browser crashed")}}

	sleep := func(ctx context.Context, d time.Duration) error { return context.Canceled }
	status := attemptDelivery(context.Background(), ch, "+923001234567", "hi", sleep)
	assert.Equal(t, store.StatusError, status)
	assert.Equal(t, 1, ch.opens)
}
