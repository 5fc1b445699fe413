// Package memory is an in-process implementation of the ledger store. It keeps
// the same guarantees as the Postgres store: per-account exclusive locks with a
// bounded wait, buffered writes applied only on commit, and a seq that follows
// commit order.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
	"github.com/josh-kwaku/fund-ledger/internal/repository"
)

// Op names a write step that a fault hook can fail.
type Op string

const (
	OpCreateAccount Op = "create_account"
	OpUpdatePools   Op = "update_pools"
	OpDeactivate    Op = "deactivate"
	OpAppendEvent   Op = "append_event"
	OpCommit        Op = "commit"
)

type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*domain.Account
	byKey    map[domain.AccountKey]uuid.UUID
	events   []domain.TransferEvent
	reversed map[uuid.UUID]bool
	locks    map[uuid.UUID]chan struct{}
	fault    func(Op) error
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]*domain.Account),
		byKey:    make(map[domain.AccountKey]uuid.UUID),
		reversed: make(map[uuid.UUID]bool),
		locks:    make(map[uuid.UUID]chan struct{}),
	}
}

// SetFault installs a hook consulted before every write step. A non-nil
// return fails that step. Pass nil to clear.
func (s *Store) SetFault(f func(Op) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// Put stores an account directly, bypassing the event log. It exists so
// tests can build balances that disagree with the log.
func (s *Store) Put(a domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.accounts[a.ID] = &cp
	s.byKey[a.Key()] = a.ID
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) FindAccount(_ context.Context, key domain.AccountKey) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, fmt.Errorf("FindAccount: %s: %w", key, domain.ErrNotFound)
	}
	cp := *s.accounts[id]
	return &cp, nil
}

func (s *Store) ListAccounts(context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Key().String() < out[j].Key().String()
	})
	return out, nil
}

func (s *Store) GetEvent(_ context.Context, id uuid.UUID) (*domain.TransferEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.events {
		if s.events[i].ID == id {
			ev := s.events[i]
			return &ev, nil
		}
	}
	return nil, fmt.Errorf("GetEvent: %w", domain.ErrNotFound)
}

// FindReversal returns the event that reverses id.
func (s *Store) FindReversal(_ context.Context, id uuid.UUID) (*domain.TransferEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.events {
		if r := s.events[i].ReversalOf; r != nil && *r == id {
			ev := s.events[i]
			return &ev, nil
		}
	}
	return nil, fmt.Errorf("FindReversal: %w", domain.ErrNotFound)
}

func (s *Store) ListSince(_ context.Context, afterSeq int64, limit int) ([]domain.TransferEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// events is in seq order and seq starts at 1 with no gaps.
	start := min(max(int(afterSeq), 0), len(s.events))
	end := min(start+limit, len(s.events))
	out := make([]domain.TransferEvent, end-start)
	copy(out, s.events[start:end])
	return out, nil
}

func (s *Store) Begin(ctx context.Context, lockTimeout time.Duration) (repository.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("Begin: %w", err)
	}
	return &tx{
		store:       s,
		lockTimeout: lockTimeout,
		working:     make(map[uuid.UUID]*domain.Account),
	}, nil
}

func (s *Store) lockFor(id uuid.UUID) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	return ch
}

func (s *Store) check(op Op) error {
	s.mu.RLock()
	f := s.fault
	s.mu.RUnlock()
	if f == nil {
		return nil
	}
	return f(op)
}

type tx struct {
	store       *Store
	lockTimeout time.Duration

	held        []uuid.UUID
	working     map[uuid.UUID]*domain.Account
	dirty       map[uuid.UUID]bool
	created     []*domain.Account
	deactivated map[uuid.UUID]time.Time
	events      []*domain.TransferEvent
	done        bool
}

func (t *tx) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if a, ok := t.working[id]; ok {
		cp := *a
		return &cp, nil
	}

	t.store.mu.RLock()
	_, exists := t.store.accounts[id]
	t.store.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
	}

	if err := t.acquire(ctx, id); err != nil {
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}

	t.store.mu.RLock()
	cp := *t.store.accounts[id]
	t.store.mu.RUnlock()

	t.working[id] = &cp
	out := cp
	return &out, nil
}

func (t *tx) acquire(ctx context.Context, id uuid.UUID) error {
	ch := t.store.lockFor(id)

	var timeout <-chan time.Time
	if t.lockTimeout > 0 {
		timer := time.NewTimer(t.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ch <- struct{}{}:
		t.held = append(t.held, id)
		return nil
	case <-timeout:
		return domain.ErrTransferTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *tx) CreateAccount(_ context.Context, account *domain.Account) error {
	if err := t.store.check(OpCreateAccount); err != nil {
		return fmt.Errorf("CreateAccount: %w", err)
	}

	t.store.mu.RLock()
	_, exists := t.store.byKey[account.Key()]
	t.store.mu.RUnlock()
	if exists {
		return fmt.Errorf("CreateAccount: %s: %w", account.Key(), domain.ErrAccountExists)
	}
	for _, c := range t.created {
		if c.Key() == account.Key() {
			return fmt.Errorf("CreateAccount: %s: %w", account.Key(), domain.ErrAccountExists)
		}
	}

	cp := *account
	t.created = append(t.created, &cp)
	return nil
}

func (t *tx) UpdatePools(_ context.Context, account *domain.Account) error {
	if err := t.store.check(OpUpdatePools); err != nil {
		return fmt.Errorf("UpdatePools: %w", err)
	}

	w, ok := t.working[account.ID]
	if !ok {
		return fmt.Errorf("UpdatePools: account %s not locked: %w", account.ID, domain.ErrVersionConflict)
	}
	if w.Version != account.Version {
		return fmt.Errorf("UpdatePools: %w", domain.ErrVersionConflict)
	}
	if account.CashBalance < 0 || account.StagedRevenue < 0 {
		return fmt.Errorf("UpdatePools: %w", domain.ErrInsufficientFunds)
	}

	w.CashBalance = account.CashBalance
	w.StagedRevenue = account.StagedRevenue
	w.Version++
	account.Version = w.Version

	if t.dirty == nil {
		t.dirty = make(map[uuid.UUID]bool)
	}
	t.dirty[account.ID] = true
	return nil
}

func (t *tx) Deactivate(_ context.Context, id uuid.UUID, at time.Time) error {
	if err := t.store.check(OpDeactivate); err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}

	w, ok := t.working[id]
	if !ok || w.DeletedAt != nil {
		return fmt.Errorf("Deactivate: %w", domain.ErrNotFound)
	}
	w.DeletedAt = &at
	w.Version++

	if t.deactivated == nil {
		t.deactivated = make(map[uuid.UUID]time.Time)
	}
	t.deactivated[id] = at
	return nil
}

func (t *tx) AppendEvent(_ context.Context, event *domain.TransferEvent) error {
	if err := t.store.check(OpAppendEvent); err != nil {
		return fmt.Errorf("AppendEvent: %w", err)
	}

	if event.ReversalOf != nil {
		t.store.mu.RLock()
		done := t.store.reversed[*event.ReversalOf]
		t.store.mu.RUnlock()
		if done {
			return fmt.Errorf("AppendEvent: %w", domain.ErrAlreadyReversed)
		}
	}

	t.events = append(t.events, event)
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return fmt.Errorf("Commit: transaction already finished")
	}
	defer t.finish()

	if err := t.store.check(OpCommit); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range t.created {
		if _, exists := s.byKey[a.Key()]; exists {
			return fmt.Errorf("Commit: %s: %w", a.Key(), domain.ErrAccountExists)
		}
	}
	for _, e := range t.events {
		if e.ReversalOf != nil && s.reversed[*e.ReversalOf] {
			return fmt.Errorf("Commit: %w", domain.ErrAlreadyReversed)
		}
	}

	for _, a := range t.created {
		s.accounts[a.ID] = a
		s.byKey[a.Key()] = a.ID
	}
	for id := range t.dirty {
		w := t.working[id]
		a := s.accounts[id]
		a.CashBalance = w.CashBalance
		a.StagedRevenue = w.StagedRevenue
		a.Version = w.Version
	}
	for id, at := range t.deactivated {
		s.accounts[id].DeletedAt = &at
		s.accounts[id].Version = t.working[id].Version
	}

	for _, e := range t.events {
		e.Seq = int64(len(s.events)) + 1
		s.events = append(s.events, *e)
		if e.ReversalOf != nil {
			s.reversed[*e.ReversalOf] = true
		}
	}
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *tx) finish() {
	t.done = true
	for _, id := range t.held {
		<-t.store.lockFor(id)
	}
	t.held = nil
}
