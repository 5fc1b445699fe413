package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
)

// SeedAccount inserts an account directly, bypassing the ledger. Balances
// seeded this way have no matching deposit event, so reconciliation will flag
// any non-zero amount.
func SeedAccount(t *testing.T, db *sql.DB, role domain.Role, sub string, cash, staged int64) *domain.Account {
	t.Helper()

	a := &domain.Account{
		ID:            uuid.New(),
		Role:          role,
		SubIdentity:   sub,
		CashBalance:   cash,
		StagedRevenue: staged,
		Version:       1,
		CreatedAt:     time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO accounts (id, role, sub_identity, cash_balance, staged_revenue, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.Role, a.SubIdentity, a.CashBalance, a.StagedRevenue, a.Version, a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s: %v", a.Key(), err)
	}
	return a
}

func GetBalances(t *testing.T, db *sql.DB, id uuid.UUID) (cash, staged int64) {
	t.Helper()

	err := db.QueryRow(`SELECT cash_balance, staged_revenue FROM accounts WHERE id = $1`, id).Scan(&cash, &staged)
	if err != nil {
		t.Fatalf("get balances %s: %v", id, err)
	}
	return cash, staged
}

// SetCashBalance overwrites a stored balance without logging an event.
func SetCashBalance(t *testing.T, db *sql.DB, id uuid.UUID, cash int64) {
	t.Helper()

	if _, err := db.Exec(`UPDATE accounts SET cash_balance = $1 WHERE id = $2`, cash, id); err != nil {
		t.Fatalf("set cash balance %s: %v", id, err)
	}
}

func CountEvents(t *testing.T, db *sql.DB) int {
	t.Helper()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM transfer_events`).Scan(&count); err != nil {
		t.Fatalf("count transfer events: %v", err)
	}
	return count
}
