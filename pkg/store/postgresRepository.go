package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
)

// PostgresRepository serves both the read-only leads table and the
// append-only lead_status table from one connection pool.
type PostgresRepository struct {
	db         *sql.DB
	maxRetries int
	owners     []string
	retryPause time.Duration
}

func NewPostgresRepository(db *sql.DB, maxRetries int, owners []string) *PostgresRepository {
	return &PostgresRepository{
		db:         db,
		maxRetries: maxRetries,
		owners:     owners,
		retryPause: 10 * time.Second,
	}
}

// campusFilter builds the WHERE fragment for a campus set. The bucket
// names "NULL" and "NIL" claim rows whose campus column is SQL NULL or
// the literal 'NIL', matching how the CRM stores unassigned leads.
func campusFilter(campuses []string, args *[]any) string {
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
		ph := make([]string, len(named))
		for i, c := range named {
			*args = append(*args, c)
			ph[i] = fmt.Sprintf("$%d", len(*args))
		}
		conds = append(conds, fmt.Sprintf("l.campus IN (%s)", strings.Join(ph, ",")))
	}
	if len(conds) == 0 {
		return "1=0"
	}
	return "(" + strings.Join(conds, " OR ") + ")"
}

func (p *PostgresRepository) FetchPending(ctx context.Context, campuses []string, batchSize int) ([]Lead, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "FetchPending")
	defer span.End()
	start := time.Now()

	var args []any
	filter := campusFilter(campuses, &args)

	ownerCond := ""
	if len(p.owners) > 0 {
		ph := make([]string, len(p.owners))
		for i, o := range p.owners {
			args = append(args, o)
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		ownerCond = fmt.Sprintf(" AND l.owner_name IN (%s)", strings.Join(ph, ","))
	}

	args = append(args, p.maxRetries)
	retryArg := len(args)
	args = append(args, batchSize)
	limitArg := len(args)

	// Status records store phones without the leading '+' and unassigned
	// campuses as the 'NULL' bucket, so the join normalizes both sides.
	query := fmt.Sprintf(`SELECT l.phone, l.first_name, l.owner_name, l.program,
            COALESCE(l.campus, 'NULL'), COALESCE(s.attempts, 0)
        FROM leads l
        LEFT JOIN (
            SELECT phone, program, campus, COUNT(*) AS attempts,
                   BOOL_OR(status IN ('Sent','NotFound')) AS closed
            FROM lead_status
            GROUP BY phone, program, campus
        ) s ON s.phone = replace(btrim(l.phone), '+', '')
           AND s.program = l.program
           AND s.campus = COALESCE(l.campus, 'NULL')
        WHERE l.phone IS NOT NULL AND btrim(l.phone) <> ''
          AND l.program IS NOT NULL
          AND %s%s
          AND COALESCE(s.closed, false) = false
          AND COALESCE(s.attempts, 0) <= $%d
        ORDER BY COALESCE(s.attempts, 0), l.phone
        LIMIT $%d`, filter, ownerCond, retryArg, limitArg)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetch pending leads: %w", err)
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		var l Lead
		if err := rows.Scan(&l.Phone, &l.Name, &l.OwnerName, &l.Program, &l.Campus, &l.Attempts); err != nil {
			span.RecordError(err)
			return nil, err
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	addDBStatsToSpan(span, "postgresql", "FetchPending", len(leads), time.Since(start))
	return leads, nil
}

func (p *PostgresRepository) Append(ctx context.Context, rec AttemptRecord) error {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "AppendStatus")
	defer span.End()
	start := time.Now()

	if _, err := ParseStatus(string(rec.Status)); err != nil {
		span.RecordError(err)
		return err
	}

	var err error
	for attempt := 1; attempt <= appendRetries; attempt++ {
		_, err = p.db.ExecContext(ctx,
			`INSERT INTO lead_status (lead_name, phone, program, degree_awarding_body, campus, status, created_at)
             VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rec.LeadName, rec.Phone, rec.Program, rec.DegreeAwardingBody, rec.Campus, string(rec.Status), rec.Timestamp)
		if err == nil {
			addDBStatsToSpan(span, "postgresql", "AppendStatus", 1, time.Since(start))
			return nil
		}
		if attempt < appendRetries {
			select {
			case <-time.After(p.retryPause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	span.RecordError(err)
	return fmt.Errorf("append lead status: %w", err)
}

func (p *PostgresRepository) HasSent(ctx context.Context, key LeadKey) (bool, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "HasSent")
	defer span.End()

	var sent bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM lead_status WHERE phone = $1 AND program = $2 AND campus = $3 AND status = $4)`,
		key.Phone, key.Program, key.Campus, string(StatusSent)).Scan(&sent)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("has sent: %w", err)
	}
	return sent, nil
}

func (p *PostgresRepository) DailyStats(ctx context.Context, t time.Time) ([]StatusCount, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "DailyStats")
	defer span.End()
	start := time.Now()

	from, to := dayBounds(t)
	rows, err := p.db.QueryContext(ctx,
		`SELECT campus, status, COUNT(*) FROM lead_status
         WHERE created_at >= $1 AND created_at < $2
         GROUP BY campus, status`, from, to)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("daily stats: %w", err)
	}
	defer rows.Close()

	var stats []StatusCount
	for rows.Next() {
		var sc StatusCount
		var raw string
		if err := rows.Scan(&sc.Campus, &raw, &sc.Count); err != nil {
			span.RecordError(err)
			return nil, err
		}
		if sc.Status, err = ParseStatus(raw); err != nil {
			span.RecordError(err)
			return nil, err
		}
		stats = append(stats, sc)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	addDBStatsToSpan(span, "postgresql", "DailyStats", len(stats), time.Since(start))
	return stats, nil
}
