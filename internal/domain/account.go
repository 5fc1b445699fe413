package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID            uuid.UUID
	Role          Role
	SubIdentity   string
	CashBalance   int64
	StagedRevenue int64
	Version       int64
	Note          string
	CreatedAt     time.Time
	DeletedAt     *time.Time
}

// AccountKey is the natural key of an account.
type AccountKey struct {
	Role        Role
	SubIdentity string
}

func (k AccountKey) String() string {
	if k.SubIdentity == "" {
		return string(k.Role)
	}
	return fmt.Sprintf("%s/%s", k.Role, k.SubIdentity)
}

func (a *Account) Key() AccountKey {
	return AccountKey{Role: a.Role, SubIdentity: a.SubIdentity}
}

func (a *Account) Active() bool {
	return a.DeletedAt == nil
}

// Balance returns the value held in the given pool.
func (a *Account) Balance(p Pool) int64 {
	switch p {
	case PoolCash:
		return a.CashBalance
	case PoolStaged:
		return a.StagedRevenue
	default:
		return 0
	}
}

// CanCredit reports whether value can be added to the pool without
// overflowing it.
func (a *Account) CanCredit(p Pool, value int64) bool {
	return a.Balance(p) <= math.MaxInt64-value
}

// Adjust adds delta to the given pool. Pools other than cash and staged are
// not held on the account and are left alone.
func (a *Account) Adjust(p Pool, delta int64) {
	switch p {
	case PoolCash:
		a.CashBalance += delta
	case PoolStaged:
		a.StagedRevenue += delta
	}
}
