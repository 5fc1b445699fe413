package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
)

// Postgres error codes the store translates into domain errors.
const (
	pqLockNotAvailable = "55P03"
	pqUniqueViolation  = "23505"
	pqCheckViolation   = "23514"
)

type scanner interface {
	Scan(dest ...any) error
}

// Tx is a unit of work over accounts and events. Accounts read with
// GetForUpdate stay locked until Commit or Rollback. Nothing written through
// a Tx is visible to other readers before Commit.
type Tx interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	CreateAccount(ctx context.Context, account *domain.Account) error
	UpdatePools(ctx context.Context, account *domain.Account) error
	Deactivate(ctx context.Context, id uuid.UUID, at time.Time) error
	AppendEvent(ctx context.Context, event *domain.TransferEvent) error
	Commit() error
	Rollback() error
}

// Store is the Postgres-backed account store and event log.
type Store struct {
	db       *sql.DB
	accounts *AccountRepository
	events   *TransferEventRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		accounts: NewAccountRepository(db),
		events:   NewTransferEventRepository(db),
	}
}

func (s *Store) Accounts() *AccountRepository { return s.accounts }

func (s *Store) Events() *TransferEventRepository { return s.events }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) FindAccount(ctx context.Context, key domain.AccountKey) (*domain.Account, error) {
	return s.accounts.GetByKey(ctx, key)
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.accounts.List(ctx)
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*domain.TransferEvent, error) {
	return s.events.GetByID(ctx, id)
}

func (s *Store) FindReversal(ctx context.Context, id uuid.UUID) (*domain.TransferEvent, error) {
	return s.events.GetReversal(ctx, id)
}

func (s *Store) ListSince(ctx context.Context, afterSeq int64, limit int) ([]domain.TransferEvent, error) {
	return s.events.ListSince(ctx, afterSeq, limit)
}

// Begin opens a transaction whose row lock waits give up after lockTimeout.
func (s *Store) Begin(ctx context.Context, lockTimeout time.Duration) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Begin: %w", err)
	}

	if lockTimeout > 0 {
		// SET does not take bind parameters; the value is an integer.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds())); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("Begin: lock_timeout: %w", err)
		}
	}

	return &pgTx{tx: tx, accounts: s.accounts, events: s.events}, nil
}

type pgTx struct {
	tx       *sql.Tx
	accounts *AccountRepository
	events   *TransferEventRepository
}

func (t *pgTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return t.accounts.GetForUpdate(ctx, t.tx, id)
}

func (t *pgTx) CreateAccount(ctx context.Context, account *domain.Account) error {
	return t.accounts.Create(ctx, t.tx, account)
}

func (t *pgTx) UpdatePools(ctx context.Context, account *domain.Account) error {
	return t.accounts.UpdatePools(ctx, t.tx, account)
}

func (t *pgTx) Deactivate(ctx context.Context, id uuid.UUID, at time.Time) error {
	return t.accounts.Deactivate(ctx, t.tx, id, at)
}

func (t *pgTx) AppendEvent(ctx context.Context, event *domain.TransferEvent) error {
	return t.events.Create(ctx, t.tx, event)
}

func (t *pgTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

func (t *pgTx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("Rollback: %w", err)
	}
	return nil
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
