// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/groblegark/wealthd/internal/model"
	"github.com/groblegark/wealthd/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateEvent(ctx context.Context, event *model.NormalizedEvent) error {
	return queryCreateEvent(ctx, s.db, event)
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.NormalizedEvent, error) {
	return queryGetEvent(ctx, s.db, id)
}

func (s *PostgresStore) SupersedeEvent(ctx context.Context, id, supersededByID string) error {
	return querySupersedeEvent(ctx, s.db, id, supersededByID)
}

func (s *PostgresStore) SetEventValuation(ctx context.Context, id, fiatCurrency string, fiatAmountMinor int64, state model.ValuationState) error {
	return querySetEventValuation(ctx, s.db, id, fiatCurrency, fiatAmountMinor, state)
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]*model.NormalizedEvent, error) {
	return queryListEvents(ctx, s.db)
}

func (s *PostgresStore) GetEventHead(ctx context.Context, canonicalKey string) (*model.EventHead, error) {
	return queryGetEventHead(ctx, s.db, canonicalKey)
}

func (s *PostgresStore) UpsertEventHead(ctx context.Context, head *model.EventHead) error {
	return queryUpsertEventHead(ctx, s.db, head)
}

func (s *PostgresStore) ListEventHeads(ctx context.Context) ([]*model.EventHead, error) {
	return queryListEventHeads(ctx, s.db)
}

func (s *PostgresStore) ListLatestAppliedEvents(ctx context.Context, userID string) ([]*model.NormalizedEvent, error) {
	return queryListLatestAppliedEvents(ctx, s.db, userID)
}

func (s *PostgresStore) CreateRawEvent(ctx context.Context, raw *model.RawEvent) error {
	return queryCreateRawEvent(ctx, s.db, raw)
}

func (s *PostgresStore) GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error) {
	return queryGetRawEvent(ctx, s.db, id)
}

func (s *PostgresStore) FindRawEvent(ctx context.Context, source model.Source, userID string, payload []byte) (*model.RawEvent, error) {
	return queryFindRawEvent(ctx, s.db, source, userID, payload)
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.Job) error {
	return queryCreateJob(ctx, s.db, job)
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	return queryGetJob(ctx, s.db, id)
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter model.JobFilter) ([]*model.Job, error) {
	return queryListJobs(ctx, s.db, filter)
}

func (s *PostgresStore) ClaimJob(ctx context.Context, lockedBefore time.Time) (*model.Job, error) {
	return queryClaimJob(ctx, s.db, lockedBefore)
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id string) error {
	return queryCompleteJob(ctx, s.db, id)
}

func (s *PostgresStore) ReleaseJob(ctx context.Context, id, lastError string) error {
	return queryReleaseJob(ctx, s.db, id, lastError)
}

func (s *PostgresStore) FailJob(ctx context.Context, id, lastError string) error {
	return queryFailJob(ctx, s.db, id, lastError)
}

func (s *PostgresStore) ResetFailedJobs(ctx context.Context) (int, error) {
	return queryResetFailedJobs(ctx, s.db)
}

func (s *PostgresStore) UpsertAssetPrice(ctx context.Context, price *model.AssetPrice) error {
	return queryUpsertAssetPrice(ctx, s.db, price)
}

func (s *PostgresStore) LatestAssetPrice(ctx context.Context, assetSymbol, fiatCurrency string, asOf time.Time) (*model.AssetPrice, error) {
	return queryLatestAssetPrice(ctx, s.db, assetSymbol, fiatCurrency, asOf)
}

func (s *PostgresStore) UpsertUserSummary(ctx context.Context, summary *model.UserSummary) error {
	return queryUpsertUserSummary(ctx, s.db, summary)
}

func (s *PostgresStore) GetUserSummary(ctx context.Context, userID string) (*model.UserSummary, error) {
	return queryGetUserSummary(ctx, s.db, userID)
}

func (s *PostgresStore) UpsertAccountView(ctx context.Context, view *model.AccountView) error {
	return queryUpsertAccountView(ctx, s.db, view)
}

func (s *PostgresStore) ListAccountViews(ctx context.Context, userID string) ([]*model.AccountView, error) {
	return queryListAccountViews(ctx, s.db, userID)
}

func (s *PostgresStore) ReplaceTimeline(ctx context.Context, userID string, entries []*model.TimelineEntry) error {
	return queryReplaceTimeline(ctx, s.db, userID, entries)
}

func (s *PostgresStore) ListTimeline(ctx context.Context, userID string, limit int, cursor *store.TimelineCursor) ([]*model.TimelineEntry, error) {
	return queryListTimeline(ctx, s.db, userID, limit, cursor)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateEvent(ctx context.Context, event *model.NormalizedEvent) error {
	return queryCreateEvent(ctx, s.tx, event)
}

func (s *txStore) GetEvent(ctx context.Context, id string) (*model.NormalizedEvent, error) {
	return queryGetEvent(ctx, s.tx, id)
}

func (s *txStore) SupersedeEvent(ctx context.Context, id, supersededByID string) error {
	return querySupersedeEvent(ctx, s.tx, id, supersededByID)
}

func (s *txStore) SetEventValuation(ctx context.Context, id, fiatCurrency string, fiatAmountMinor int64, state model.ValuationState) error {
	return querySetEventValuation(ctx, s.tx, id, fiatCurrency, fiatAmountMinor, state)
}

func (s *txStore) ListEvents(ctx context.Context) ([]*model.NormalizedEvent, error) {
	return queryListEvents(ctx, s.tx)
}

func (s *txStore) GetEventHead(ctx context.Context, canonicalKey string) (*model.EventHead, error) {
	return queryGetEventHead(ctx, s.tx, canonicalKey)
}

func (s *txStore) UpsertEventHead(ctx context.Context, head *model.EventHead) error {
	return queryUpsertEventHead(ctx, s.tx, head)
}

func (s *txStore) ListEventHeads(ctx context.Context) ([]*model.EventHead, error) {
	return queryListEventHeads(ctx, s.tx)
}

func (s *txStore) ListLatestAppliedEvents(ctx context.Context, userID string) ([]*model.NormalizedEvent, error) {
	return queryListLatestAppliedEvents(ctx, s.tx, userID)
}

func (s *txStore) CreateRawEvent(ctx context.Context, raw *model.RawEvent) error {
	return queryCreateRawEvent(ctx, s.tx, raw)
}

func (s *txStore) GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error) {
	return queryGetRawEvent(ctx, s.tx, id)
}

func (s *txStore) FindRawEvent(ctx context.Context, source model.Source, userID string, payload []byte) (*model.RawEvent, error) {
	return queryFindRawEvent(ctx, s.tx, source, userID, payload)
}

func (s *txStore) CreateJob(ctx context.Context, job *model.Job) error {
	return queryCreateJob(ctx, s.tx, job)
}

func (s *txStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	return queryGetJob(ctx, s.tx, id)
}

func (s *txStore) ListJobs(ctx context.Context, filter model.JobFilter) ([]*model.Job, error) {
	return queryListJobs(ctx, s.tx, filter)
}

func (s *txStore) ClaimJob(ctx context.Context, lockedBefore time.Time) (*model.Job, error) {
	return queryClaimJob(ctx, s.tx, lockedBefore)
}

func (s *txStore) CompleteJob(ctx context.Context, id string) error {
	return queryCompleteJob(ctx, s.tx, id)
}

func (s *txStore) ReleaseJob(ctx context.Context, id, lastError string) error {
	return queryReleaseJob(ctx, s.tx, id, lastError)
}

func (s *txStore) FailJob(ctx context.Context, id, lastError string) error {
	return queryFailJob(ctx, s.tx, id, lastError)
}

func (s *txStore) ResetFailedJobs(ctx context.Context) (int, error) {
	return queryResetFailedJobs(ctx, s.tx)
}

func (s *txStore) UpsertAssetPrice(ctx context.Context, price *model.AssetPrice) error {
	return queryUpsertAssetPrice(ctx, s.tx, price)
}

func (s *txStore) LatestAssetPrice(ctx context.Context, assetSymbol, fiatCurrency string, asOf time.Time) (*model.AssetPrice, error) {
	return queryLatestAssetPrice(ctx, s.tx, assetSymbol, fiatCurrency, asOf)
}

func (s *txStore) UpsertUserSummary(ctx context.Context, summary *model.UserSummary) error {
	return queryUpsertUserSummary(ctx, s.tx, summary)
}

func (s *txStore) GetUserSummary(ctx context.Context, userID string) (*model.UserSummary, error) {
	return queryGetUserSummary(ctx, s.tx, userID)
}

func (s *txStore) UpsertAccountView(ctx context.Context, view *model.AccountView) error {
	return queryUpsertAccountView(ctx, s.tx, view)
}

func (s *txStore) ListAccountViews(ctx context.Context, userID string) ([]*model.AccountView, error) {
	return queryListAccountViews(ctx, s.tx, userID)
}

func (s *txStore) ReplaceTimeline(ctx context.Context, userID string, entries []*model.TimelineEntry) error {
	return queryReplaceTimeline(ctx, s.tx, userID, entries)
}

func (s *txStore) ListTimeline(ctx context.Context, userID string, limit int, cursor *store.TimelineCursor) ([]*model.TimelineEntry, error) {
	return queryListTimeline(ctx, s.tx, userID, limit, cursor)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
