package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
	"github.com/josh-kwaku/fund-ledger/internal/repository"
)

// Execute applies a validated transfer. The touched accounts are locked in id
// order, re-read and re-checked, and the pool updates and the event are
// committed together or not at all.
func (s *Service) Execute(ctx context.Context, r *ResolvedTransfer) (*domain.TransferEvent, error) {
	ctx = context.WithoutCancel(ctx)

	tx, err := s.store.Begin(ctx, s.lockTimeout)
	if err != nil {
		return nil, fmt.Errorf("Execute: %w", persistenceError(err))
	}
	defer tx.Rollback()

	var ids []uuid.UUID
	if r.Source != nil {
		ids = append(ids, r.Source.ID)
	}
	if r.Destination != nil {
		ids = append(ids, r.Destination.ID)
	}

	locked, err := lockAccountsInOrder(ctx, tx, ids...)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("Execute: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("Execute: %w", persistenceError(err))
	}

	for _, a := range locked {
		if !a.Active() {
			return nil, fmt.Errorf("Execute: %s is deactivated: %w", a.Key(), domain.ErrAccountNotFound)
		}
	}
	if r.Source != nil {
		if err := checkFunds(locked[r.Source.ID], r.SourcePool, r.Request.Value); err != nil {
			return nil, fmt.Errorf("Execute: %w", err)
		}
	}

	if r.Destination != nil {
		if err := checkCredit(locked[r.Destination.ID], r.DestinationPool, r.Request.Value); err != nil {
			return nil, fmt.Errorf("Execute: %w", err)
		}
	}

	ev := s.newEvent(r)
	if err := ev.Apply(locked); err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}

	for _, id := range sortedIDs(ids) {
		if err := tx.UpdatePools(ctx, locked[id]); err != nil {
			return nil, fmt.Errorf("Execute: %w", persistenceError(err))
		}
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("Execute: %w", persistenceError(err))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Execute: %w", persistenceError(err))
	}

	return ev, nil
}

func (s *Service) newEvent(r *ResolvedTransfer) *domain.TransferEvent {
	req := r.Request
	now := s.now()

	date := req.Date
	if date.IsZero() {
		date = now
	}

	ev := &domain.TransferEvent{
		ID:                     uuid.New(),
		Action:                 req.Action,
		Date:                   date.UTC(),
		Value:                  req.Value,
		SourceRole:             req.SourceRole,
		SourceSubIdentity:      req.SourceSubIdentity,
		DestinationRole:        req.DestinationRole,
		DestinationSubIdentity: req.DestinationSubIdentity,
		UsedFor:                req.UsedFor,
		Note:                   req.Note,
		ReversalOf:             req.reversalOf,
		CreatedBy:              req.CreatedBy,
		CreatedAt:              now,
	}
	if r.Source != nil {
		id := r.Source.ID
		ev.SourceAccountID = &id
	}
	if r.Destination != nil {
		id := r.Destination.ID
		ev.DestinationAccountID = &id
	}
	return ev
}

func lockAccountsInOrder(ctx context.Context, tx repository.Tx, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	result := make(map[uuid.UUID]*domain.Account, len(ids))
	for _, id := range sortedIDs(ids) {
		acct, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lockAccountsInOrder: %w", err)
		}
		result[id] = acct
	}
	return result, nil
}

func sortedIDs(ids []uuid.UUID) []uuid.UUID {
	sorted := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			sorted = append(sorted, id)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})
	return sorted
}
