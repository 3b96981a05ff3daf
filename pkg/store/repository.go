package store

import (
	"context"
	"time"
)

// LeadSource reads candidate leads for a worker's campus set.
type LeadSource interface {
	// FetchPending returns up to batchSize leads belonging to the given
	// campuses that have no terminal status record and have not exhausted
	// the retry cap. New leads (no record at all) come first.
	FetchPending(ctx context.Context, campuses []string, batchSize int) ([]Lead, error)
}

// StatusStore records delivery outcomes. The table is append-only and is
// the sole durable de-duplication mechanism.
type StatusStore interface {
	// Append writes one attempt record. The record's status must be a
	// known Status value.
	Append(ctx context.Context, rec AttemptRecord) error
	// HasSent reports whether a Sent record already exists for the
	// identity. Workers call this immediately before a send.
	HasSent(ctx context.Context, key LeadKey) (bool, error)
	// DailyStats returns campus/status counts for the day containing t.
	DailyStats(ctx context.Context, t time.Time) ([]StatusCount, error)
}

// Repository bundles both sides of the lead tables for backends that
// implement them together.
type Repository interface {
	LeadSource
	StatusStore
}
