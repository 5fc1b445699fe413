// Package ledger moves money between the fixed set of accounts. Transfers are
// validated against a snapshot, then executed under row locks where every
// check is repeated before anything is written.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
	"github.com/josh-kwaku/fund-ledger/internal/logging"
	"github.com/josh-kwaku/fund-ledger/internal/repository"
)

type store interface {
	FindAccount(ctx context.Context, key domain.AccountKey) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*domain.TransferEvent, error)
	FindReversal(ctx context.Context, id uuid.UUID) (*domain.TransferEvent, error)
	ListSince(ctx context.Context, afterSeq int64, limit int) ([]domain.TransferEvent, error)
	Begin(ctx context.Context, lockTimeout time.Duration) (repository.Tx, error)
}

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

type Service struct {
	store       store
	lockTimeout time.Duration
	readOnly    atomic.Bool
	now         func() time.Time
}

func NewService(store store, lockTimeout time.Duration) *Service {
	return &Service{
		store:       store,
		lockTimeout: lockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ReadOnly reports whether mutations are refused until the next clean
// reconciliation.
func (s *Service) ReadOnly() bool {
	return s.readOnly.Load()
}

// TransferRequest is a proposed movement of value. An empty role means the
// side is absent.
type TransferRequest struct {
	Action                 domain.Action
	Value                  int64
	SourceRole             domain.Role
	SourceSubIdentity      string
	DestinationRole        domain.Role
	DestinationSubIdentity string
	UsedFor                string
	Note                   string
	Date                   time.Time
	CreatedBy              string

	reversalOf *uuid.UUID
}

// Transfer validates and executes a request. Cancellation is honoured only
// until validation starts; from there the request runs to commit or to a
// well-defined failure.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*domain.TransferEvent, error) {
	log := logging.FromContext(ctx)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}
	if s.ReadOnly() {
		return nil, fmt.Errorf("Transfer: %w", domain.ErrLedgerReadOnly)
	}

	ctx = context.WithoutCancel(ctx)

	resolved, err := s.Validate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}

	ev, err := s.Execute(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}

	log.Info("transfer committed",
		"event_id", ev.ID,
		"seq", ev.Seq,
		"action", ev.Action,
		"source", sideLabel(ev.SourceRole, ev.SourceSubIdentity),
		"destination", sideLabel(ev.DestinationRole, ev.DestinationSubIdentity),
		"value", ev.Value,
	)

	return ev, nil
}

func (s *Service) GetTransfer(ctx context.Context, id uuid.UUID) (*domain.TransferEvent, error) {
	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetTransfer: %w", err)
	}
	return ev, nil
}

// ListTransfers returns a page of the log in seq order, starting after
// afterSeq.
func (s *Service) ListTransfers(ctx context.Context, afterSeq int64, limit int) ([]domain.TransferEvent, error) {
	if afterSeq < 0 {
		return nil, fmt.Errorf("ListTransfers: negative since: %w", domain.ErrInvalidRequest)
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	events, err := s.store.ListSince(ctx, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("ListTransfers: %w", err)
	}
	return events, nil
}

// persistenceError marks storage failures as retryable PersistenceFailure.
// Errors that already carry a domain meaning pass through untouched.
func persistenceError(err error) error {
	for _, known := range []error{
		domain.ErrTransferTimeout,
		domain.ErrInsufficientFunds,
		domain.ErrAccountExists,
		domain.ErrAlreadyReversed,
		domain.ErrPersistenceFailure,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
}

func sideLabel(role domain.Role, sub string) string {
	if role == "" {
		return ""
	}
	return domain.AccountKey{Role: role, SubIdentity: sub}.String()
}
