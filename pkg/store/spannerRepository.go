package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/spanner"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"google.golang.org/api/iterator"
)

// SpannerRepository is the Cloud Spanner backend, using the same leads /
// lead_status tables as the Postgres backend.
type SpannerRepository struct {
	client     *spanner.Client
	maxRetries int
	owners     []string
}

func NewSpannerRepository(client *spanner.Client, maxRetries int, owners []string) *SpannerRepository {
	return &SpannerRepository{client: client, maxRetries: maxRetries, owners: owners}
}

func (s *SpannerRepository) FetchPending(ctx context.Context, campuses []string, batchSize int) ([]Lead, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "FetchPending")
	defer span.End()
	start := time.Now()

	params := map[string]interface{}{
		"maxRetries": int64(s.maxRetries),
		"batchSize":  int64(batchSize),
		"sent":       string(StatusSent),
		"notFound":   string(StatusNotFound),
	}

	var conds []string
	var named []string
	for _, c := range campuses {
		switch c {
		case CampusNull:
			conds = append(conds, "l.campus IS NULL")
		case CampusNil:
			conds = append(conds, "l.campus = 'NIL'")
		default:
			named = append(named, c)
		}
	}
	if len(named) > 0 {
		params["campuses"] = named
		conds = append(conds, "l.campus IN UNNEST(@campuses)")
	}
	filter := "1=0"
	if len(conds) > 0 {
		filter = "(" + strings.Join(conds, " OR ") + ")"
	}

	ownerCond := ""
	if len(s.owners) > 0 {
		params["owners"] = s.owners
		ownerCond = " AND l.owner_name IN UNNEST(@owners)"
	}

	stmt := spanner.Statement{
		SQL: fmt.Sprintf(`SELECT l.phone, l.first_name, l.owner_name, l.program,
                COALESCE(l.campus, 'NULL'), COALESCE(s.attempts, 0)
            FROM leads l
            LEFT JOIN (
                SELECT phone, program, campus, COUNT(*) AS attempts,
                       LOGICAL_OR(status IN (@sent, @notFound)) AS closed
                FROM lead_status
                GROUP BY phone, program, campus
            ) s ON s.phone = REPLACE(TRIM(l.phone), '+', '')
               AND s.program = l.program
               AND s.campus = COALESCE(l.campus, 'NULL')
            WHERE l.phone IS NOT NULL AND TRIM(l.phone) != ''
              AND l.program IS NOT NULL
              AND %s%s
              AND COALESCE(s.closed, false) = false
              AND COALESCE(s.attempts, 0) <= @maxRetries
            ORDER BY COALESCE(s.attempts, 0), l.phone
            LIMIT @batchSize`, filter, ownerCond),
		Params: params,
	}

	iter := s.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var leads []Lead
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("fetch pending leads: %w", err)
		}
		var l Lead
		var attempts int64
		if err := row.Columns(&l.Phone, &l.Name, &l.OwnerName, &l.Program, &l.Campus, &attempts); err != nil {
			span.RecordError(err)
			return nil, err
		}
		l.Attempts = int(attempts)
		leads = append(leads, l)
	}

	addDBStatsToSpan(span, "spanner", "FetchPending", len(leads), time.Since(start))
	return leads, nil
}

func (s *SpannerRepository) Append(ctx context.Context, rec AttemptRecord) error {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "AppendStatus")
	defer span.End()
	start := time.Now()

	if _, err := ParseStatus(string(rec.Status)); err != nil {
		span.RecordError(err)
		return err
	}

	m := spanner.InsertMap("lead_status", map[string]interface{}{
		"id":                   uuid.NewString(),
		"lead_name":            rec.LeadName,
		"phone":                rec.Phone,
		"program":              rec.Program,
		"degree_awarding_body": rec.DegreeAwardingBody,
		"campus":               rec.Campus,
		"status":               string(rec.Status),
		"created_at":           rec.Timestamp,
	})
	if _, err := s.client.Apply(ctx, []*spanner.Mutation{m}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("append lead status: %w", err)
	}

	addDBStatsToSpan(span, "spanner", "AppendStatus", 1, time.Since(start))
	return nil
}

func (s *SpannerRepository) HasSent(ctx context.Context, key LeadKey) (bool, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "HasSent")
	defer span.End()

	stmt := spanner.Statement{
		SQL: `SELECT COUNT(*) FROM lead_status
              WHERE phone = @phone AND program = @program AND campus = @campus AND status = @status`,
		Params: map[string]interface{}{
			"phone":   key.Phone,
			"program": key.Program,
			"campus":  key.Campus,
			"status":  string(StatusSent),
		},
	}
	iter := s.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	row, err := iter.Next()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("has sent: %w", err)
	}
	var count int64
	if err := row.Columns(&count); err != nil {
		span.RecordError(err)
		return false, err
	}
	return count > 0, nil
}

func (s *SpannerRepository) DailyStats(ctx context.Context, t time.Time) ([]StatusCount, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "DailyStats")
	defer span.End()
	start := time.Now()

	from, to := dayBounds(t)
	stmt := spanner.Statement{
		SQL: `SELECT campus, status, COUNT(*) FROM lead_status
              WHERE created_at >= @from AND created_at < @to
              GROUP BY campus, status`,
		Params: map[string]interface{}{"from": from, "to": to},
	}
	iter := s.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var stats []StatusCount
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("daily stats: %w", err)
		}
		var campus, raw string
		var count int64
		if err := row.Columns(&campus, &raw, &count); err != nil {
			span.RecordError(err)
			return nil, err
		}
		status, err := ParseStatus(raw)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		stats = append(stats, StatusCount{Campus: campus, Status: status, Count: int(count)})
	}

	addDBStatsToSpan(span, "spanner", "DailyStats", len(stats), time.Since(start))
	return stats, nil
}
