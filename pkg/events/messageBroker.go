package events

import (
	"context"
	"time"

	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/store"
)

// AttemptEvent is the JSON document published for every status record
// appended, so downstream CRM consumers can react without polling the
// lead_status table.
type AttemptEvent struct {
	ID        string       `json:"id"`
	Bot       string       `json:"bot"`
	LeadName  string       `json:"lead_name"`
	Phone     string       `json:"phone"`
	Program   string       `json:"program"`
	Campus    string       `json:"campus"`
	Status    store.Status `json:"status"`
	Attempt   int          `json:"attempt"`
	Timestamp time.Time    `json:"timestamp"`
}

// MessageBroker publishes attempt events. Publishing is best-effort:
// callers log failures and continue, delivery state lives in the store.
type MessageBroker interface {
	Publish(ctx context.Context, event *AttemptEvent) error
	Close() error
}
