package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
	"github.com/josh-kwaku/fund-ledger/internal/logging"
)

type CreateAccountRequest struct {
	Role                 domain.Role
	SubIdentity          string
	InitialCashBalance   int64
	InitialStagedRevenue int64
	Note                 string
	CreatedBy            string
}

// CreateAccount opens an account. A non-zero opening amount is written as a
// deposit event in the same transaction so that replaying the log from zero
// reproduces it.
func (s *Service) CreateAccount(ctx context.Context, req CreateAccountRequest) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	if s.ReadOnly() {
		return nil, fmt.Errorf("CreateAccount: %w", domain.ErrLedgerReadOnly)
	}
	if err := validateNewAccount(req); err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", err)
	}

	now := s.now()
	account := &domain.Account{
		ID:            uuid.New(),
		Role:          req.Role,
		SubIdentity:   req.SubIdentity,
		CashBalance:   req.InitialCashBalance,
		StagedRevenue: req.InitialStagedRevenue,
		Version:       1,
		Note:          req.Note,
		CreatedAt:     now,
	}

	tx, err := s.store.Begin(ctx, s.lockTimeout)
	if err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", persistenceError(err))
	}
	defer tx.Rollback()

	if err := tx.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", persistenceError(err))
	}

	if opening := account.CashBalance + account.StagedRevenue; opening > 0 {
		id := account.ID
		ev := &domain.TransferEvent{
			ID:                     uuid.New(),
			Action:                 domain.ActionDeposit,
			Date:                   now,
			Value:                  opening,
			DestinationRole:        account.Role,
			DestinationSubIdentity: account.SubIdentity,
			DestinationAccountID:   &id,
			UsedFor:                "opening balance",
			CreatedBy:              req.CreatedBy,
			CreatedAt:              now,
		}
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return nil, fmt.Errorf("CreateAccount: %w", persistenceError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", persistenceError(err))
	}

	log.Info("account created",
		"account_id", account.ID,
		"account", account.Key().String(),
		"cash_balance", account.CashBalance,
		"staged_revenue", account.StagedRevenue,
	)

	return account, nil
}

func validateNewAccount(req CreateAccountRequest) error {
	if !req.Role.HasAccount() {
		return fmt.Errorf("validateNewAccount: role %q cannot hold an account: %w", req.Role, domain.ErrInvalidRequest)
	}
	if req.Role.IsMultiInstance() && req.SubIdentity == "" {
		return fmt.Errorf("validateNewAccount: %s needs a sub-identity: %w", req.Role, domain.ErrInvalidRequest)
	}
	if !req.Role.IsMultiInstance() && req.SubIdentity != "" {
		return fmt.Errorf("validateNewAccount: %s takes no sub-identity: %w", req.Role, domain.ErrInvalidRequest)
	}
	if req.InitialCashBalance < 0 || req.InitialStagedRevenue < 0 {
		return fmt.Errorf("validateNewAccount: %w", domain.ErrInvalidValue)
	}

	// Opening amounts go into the pool a deposit would credit.
	if req.Role.DestinationPool() == domain.PoolStaged && req.InitialCashBalance != 0 {
		return fmt.Errorf("validateNewAccount: %s holds staged revenue only: %w", req.Role, domain.ErrInvalidRequest)
	}
	if req.Role.DestinationPool() == domain.PoolCash && req.InitialStagedRevenue != 0 {
		return fmt.Errorf("validateNewAccount: %s has no staged revenue: %w", req.Role, domain.ErrInvalidRequest)
	}
	return nil
}

func (s *Service) GetAccount(ctx context.Context, key domain.AccountKey) (*domain.Account, error) {
	a, err := s.store.FindAccount(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return a, nil
}

// ListAccounts returns every account, deactivated ones included.
func (s *Service) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	return accounts, nil
}

// DeactivateAccount soft-deletes an account. Its events stay in the log and it
// still takes part in reconciliation, but it no longer resolves for transfers.
func (s *Service) DeactivateAccount(ctx context.Context, key domain.AccountKey) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	if s.ReadOnly() {
		return nil, fmt.Errorf("DeactivateAccount: %w", domain.ErrLedgerReadOnly)
	}

	a, err := s.store.FindAccount(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("DeactivateAccount: %w", err)
	}
	if !a.Active() {
		return nil, fmt.Errorf("DeactivateAccount: %s: %w", key, domain.ErrNotFound)
	}

	tx, err := s.store.Begin(ctx, s.lockTimeout)
	if err != nil {
		return nil, fmt.Errorf("DeactivateAccount: %w", persistenceError(err))
	}
	defer tx.Rollback()

	locked, err := tx.GetForUpdate(ctx, a.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("DeactivateAccount: %w", err)
		}
		return nil, fmt.Errorf("DeactivateAccount: %w", persistenceError(err))
	}

	at := s.now()
	if err := tx.Deactivate(ctx, locked.ID, at); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("DeactivateAccount: %w", err)
		}
		return nil, fmt.Errorf("DeactivateAccount: %w", persistenceError(err))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("DeactivateAccount: %w", persistenceError(err))
	}

	locked.DeletedAt = &at
	locked.Version++
	log.Info("account deactivated", "account_id", locked.ID, "account", key.String())

	return locked, nil
}
