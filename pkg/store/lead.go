package store

import (
	"fmt"
	"time"
)

// Status is the recorded outcome of a delivery attempt.
type Status string

const (
	StatusSent          Status = "Sent"
	StatusFailedSend    Status = "Failed-Send"
	StatusNotFound      Status = "NotFound"
	StatusFailedNewChat Status = "Failed-NewChat"
	StatusError         Status = "Error"
)

// ParseStatus validates a raw status string at the store boundary.
// Unknown values are rejected rather than written through.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusSent, StatusFailedSend, StatusNotFound, StatusFailedNewChat, StatusError:
		return s, nil
	default:
		return "", fmt.Errorf("unknown lead status %q", raw)
	}
}

// Terminal reports whether the status ends the lead's lifecycle.
// Sent and NotFound are never retried; the other statuses leave the
// lead eligible for re-selection until the retry cap is reached.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusNotFound
}

// CampusNull and CampusNil are the bucket names an assignment uses to
// claim leads whose campus column is SQL NULL or the literal 'NIL'.
const (
	CampusNull = "NULL"
	CampusNil  = "NIL"
)

// Lead is a candidate row from the CRM leads table. Read-only.
type Lead struct {
	Phone     string
	Name      string
	OwnerName string
	Program   string
	Campus    string
	// Attempts is the number of status records already written for this
	// identity. Zero for brand-new leads; the poller orders by it so new
	// leads go ahead of previously failed ones.
	Attempts int
}

// Key returns the identity used for deduplication.
func (l Lead) Key() LeadKey {
	return LeadKey{Phone: l.Phone, Program: l.Program, Campus: l.Campus}
}

// LeadKey identifies a lead for dedup purposes: once a Sent record
// exists for a key, no worker may deliver to it again.
type LeadKey struct {
	Phone   string
	Program string
	Campus  string
}

// AttemptRecord is one row of the append-only lead_status table.
// Records are never updated or deleted; the current status of a lead is
// the most recent record for its identity.
type AttemptRecord struct {
	LeadName           string
	Phone              string
	Program            string
	DegreeAwardingBody string
	Campus             string
	Status             Status
	Timestamp          time.Time
}

// StatusCount is one cell of the daily report: how many attempts ended
// with a given status for a given campus.
type StatusCount struct {
	Campus string
	Status Status
	Count  int
}
