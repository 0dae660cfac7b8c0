// Package sqlstore binds the SQL repositories to a connection or a transaction.
package sqlstore

import (
	"context"
	"database/sql"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/repositories"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/analytics"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/identity"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/jobs"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/launches"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/ledger"
)

// Store implements repositories.Store over *database.DB.
type Store struct {
	db     *database.DB
	q      database.Querier
	logger *logging.ChanneledLogger

	visitors  *identity.SQLVisitorRepository
	sessions  *identity.SQLSessionRepository
	purchases *ledger.SQLPurchaseRepository
	launches  *launches.SQLLaunchRepository
	metrics   *analytics.SQLMetricsRepository
	jobs      *jobs.SQLJobRepository
}

var _ repositories.Store = (*Store)(nil)

// New returns a Store running every query directly on db.
func New(db *database.DB, logger *logging.ChanneledLogger) *Store {
	return bind(db, db, logger)
}

func bind(db *database.DB, q database.Querier, logger *logging.ChanneledLogger) *Store {
	return &Store{
		db:        db,
		q:         q,
		logger:    logger,
		visitors:  identity.NewSQLVisitorRepository(q, logger),
		sessions:  identity.NewSQLSessionRepository(q, logger),
		purchases: ledger.NewSQLPurchaseRepository(q, logger),
		launches:  launches.NewSQLLaunchRepository(q, logger),
		metrics:   analytics.NewSQLMetricsRepository(q, logger),
		jobs:      jobs.NewSQLJobRepository(q, logger),
	}
}

func (s *Store) Visitors() repositories.VisitorRepository   { return s.visitors }
func (s *Store) Sessions() repositories.SessionRepository   { return s.sessions }
func (s *Store) Purchases() repositories.PurchaseRepository { return s.purchases }
func (s *Store) Launches() repositories.LaunchRepository    { return s.launches }
func (s *Store) Metrics() repositories.MetricsRepository    { return s.metrics }
func (s *Store) Jobs() repositories.JobRepository           { return s.jobs }

// WithinTx runs fn against a Store bound to one transaction. A Store that is already
// transactional runs fn in place.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repositories.Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(bind(s.db, tx, s.logger))
	})
}
