package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/attribution"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/database"
)

// SQLSessionRepository is the SQL-based implementation of the SessionRepository.
type SQLSessionRepository struct {
	db     database.Querier
	logger *logging.ChanneledLogger
}

// NewSQLSessionRepository creates a new instance of the repository.
func NewSQLSessionRepository(db database.Querier, logger *logging.ChanneledLogger) *SQLSessionRepository {
	return &SQLSessionRepository{db: db, logger: logger}
}

// Append records a session. A repeated (visitor, session token) pair is ignored and
// reported as not inserted.
func (r *SQLSessionRepository) Append(ctx context.Context, s *attribution.Session) (bool, error) {
	const query = `
		INSERT INTO sessions (id, visitor_id, session_token, source, medium, campaign, content,
			term, referrer, landing_page, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(visitor_id, session_token) DO NOTHING`

	start := time.Now()
	res, err := r.db.ExecContext(ctx, query,
		s.ID, s.VisitorID, s.SessionToken, s.Source, s.Medium, s.Campaign, s.Content,
		s.Term, s.Referrer, s.LandingPage, database.FormatTime(s.OccurredAt),
	)
	if err != nil {
		r.logger.Database().Error("Session insert failed", "error", err.Error(), "visitorId", s.VisitorID)
		return false, fmt.Errorf("failed to insert session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start), "")
	return n > 0, nil
}

// ListByVisitor returns a visitor's sessions ascending by timestamp. An empty slice is valid.
func (r *SQLSessionRepository) ListByVisitor(ctx context.Context, visitorID string) ([]*attribution.Session, error) {
	const query = `
		SELECT id, visitor_id, session_token, source, medium, campaign, content, term,
			referrer, landing_page, occurred_at
		FROM sessions
		WHERE visitor_id = ?
		ORDER BY occurred_at ASC, id ASC`

	start := time.Now()
	r.logger.Database().Debug("Executing session list", "visitorId", visitorID)

	rows, err := r.db.QueryContext(ctx, query, visitorID)
	if err != nil {
		r.logger.Database().Error("Session list failed", "error", err.Error(), "visitorId", visitorID)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*attribution.Session{}
	for rows.Next() {
		var (
			s          attribution.Session
			occurredAt string
		)
		if err := rows.Scan(&s.ID, &s.VisitorID, &s.SessionToken, &s.Source, &s.Medium, &s.Campaign,
			&s.Content, &s.Term, &s.Referrer, &s.LandingPage, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if s.OccurredAt, err = database.ParseTime(occurredAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Debug("Session list completed", "visitorId", visitorID, "count", len(sessions), "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration, "")
	return sessions, nil
}
