package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
)

const accountColumns = `id, role, sub_identity, cash_balance, staged_revenue, version,
	note, created_at, deleted_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByKey(ctx context.Context, key domain.AccountKey) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE role = $1 AND sub_identity = $2`,
		key.Role, key.SubIdentity,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByKey: %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByKey: %w", err)
	}
	return a, nil
}

// List returns every account, deactivated ones included.
func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at, role, sub_identity`,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) Create(ctx context.Context, tx *sql.Tx, account *domain.Account) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (
			id, role, sub_identity, cash_balance, staged_revenue, version, note, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID, account.Role, account.SubIdentity,
		account.CashBalance, account.StagedRevenue, account.Version,
		account.Note, account.CreatedAt,
	)
	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return fmt.Errorf("Create: %s: %w", account.Key(), domain.ErrAccountExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		if pqCode(err) == pqLockNotAvailable {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrTransferTimeout)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return a, nil
}

// UpdatePools writes both pools and bumps the version. account.Version must
// hold the version that was read under lock; on success it is incremented.
func (r *AccountRepository) UpdatePools(ctx context.Context, tx *sql.Tx, account *domain.Account) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET cash_balance = $1, staged_revenue = $2, version = version + 1
		WHERE id = $3 AND version = $4`,
		account.CashBalance, account.StagedRevenue, account.ID, account.Version,
	)
	if err != nil {
		if pqCode(err) == pqCheckViolation {
			return fmt.Errorf("UpdatePools: %w", domain.ErrInsufficientFunds)
		}
		return fmt.Errorf("UpdatePools: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdatePools: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdatePools: %w", domain.ErrVersionConflict)
	}
	account.Version++
	return nil
}

func (r *AccountRepository) Deactivate(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET deleted_at = $1, version = version + 1
		WHERE id = $2 AND deleted_at IS NULL`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Deactivate: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Deactivate: %w", domain.ErrNotFound)
	}
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ID, &a.Role, &a.SubIdentity,
		&a.CashBalance, &a.StagedRevenue, &a.Version,
		&a.Note, &a.CreatedAt, &a.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
