package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
	"github.com/josh-kwaku/fund-ledger/internal/logging"
)

const (
	replayPageSize    = 500
	reconcileAttempts = 3
)

var errLogMoving = errors.New("event log kept growing during reconciliation")

// Mismatch is an account whose stored pools differ from the replayed ones.
// A nil Key marks an account that events reference but the store lacks.
type Mismatch struct {
	AccountID      uuid.UUID
	Key            *domain.AccountKey
	ExpectedCash   int64
	ActualCash     int64
	ExpectedStaged int64
	ActualStaged   int64
}

type Report struct {
	Accounts   int
	Events     int
	LastSeq    int64
	Mismatches []Mismatch
	CheckedAt  time.Time
}

func (r *Report) Clean() bool {
	return len(r.Mismatches) == 0
}

// Reconcile replays the whole log from zero balances and compares the result
// with the stored accounts. A mismatch puts the service into read-only mode; a
// clean run takes it out again.
func (s *Service) Reconcile(ctx context.Context) (*Report, error) {
	log := logging.FromContext(ctx)

	var (
		report *Report
		err    error
	)
	for range reconcileAttempts {
		report, err = s.reconcileOnce(ctx)
		if !errors.Is(err, errLogMoving) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("Reconcile: %w", err)
	}

	if !report.Clean() {
		s.readOnly.Store(true)
		for _, m := range report.Mismatches {
			log.Error("ledger out of balance",
				"account_id", m.AccountID,
				"expected_cash", m.ExpectedCash,
				"actual_cash", m.ActualCash,
				"expected_staged", m.ExpectedStaged,
				"actual_staged", m.ActualStaged,
			)
		}
		log.Error("ledger switched to read-only", "mismatches", len(report.Mismatches))
		return report, nil
	}

	if s.readOnly.Swap(false) {
		log.Info("ledger reconciled, writes re-enabled")
	}
	log.Info("ledger reconciled", "accounts", report.Accounts, "events", report.Events, "last_seq", report.LastSeq)
	return report, nil
}

// reconcileOnce folds the log, then reads the accounts, then confirms no event
// landed after the fold. When none did, every balance read reflects exactly
// the folded events.
func (s *Service) reconcileOnce(ctx context.Context) (*Report, error) {
	replayed := make(map[uuid.UUID]*domain.Account)
	report := &Report{CheckedAt: s.now()}

	for {
		batch, err := s.store.ListSince(ctx, report.LastSeq, replayPageSize)
		if err != nil {
			return nil, fmt.Errorf("reconcileOnce: %w", err)
		}
		for i := range batch {
			ev := &batch[i]
			for _, id := range []*uuid.UUID{ev.SourceAccountID, ev.DestinationAccountID} {
				if id != nil && replayed[*id] == nil {
					replayed[*id] = &domain.Account{ID: *id}
				}
			}
			if err := ev.Apply(replayed); err != nil {
				return nil, fmt.Errorf("reconcileOnce: %w", err)
			}
			report.LastSeq = ev.Seq
			report.Events++
		}
		if len(batch) < replayPageSize {
			break
		}
	}

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcileOnce: %w", err)
	}

	later, err := s.store.ListSince(ctx, report.LastSeq, 1)
	if err != nil {
		return nil, fmt.Errorf("reconcileOnce: %w", err)
	}
	if len(later) > 0 {
		return nil, errLogMoving
	}

	report.Accounts = len(accounts)
	for i := range accounts {
		a := &accounts[i]
		want := replayed[a.ID]
		delete(replayed, a.ID)
		if want == nil {
			want = &domain.Account{}
		}
		if want.CashBalance != a.CashBalance || want.StagedRevenue != a.StagedRevenue {
			key := a.Key()
			report.Mismatches = append(report.Mismatches, Mismatch{
				AccountID:      a.ID,
				Key:            &key,
				ExpectedCash:   want.CashBalance,
				ActualCash:     a.CashBalance,
				ExpectedStaged: want.StagedRevenue,
				ActualStaged:   a.StagedRevenue,
			})
		}
	}
	for id, want := range replayed {
		report.Mismatches = append(report.Mismatches, Mismatch{
			AccountID:      id,
			ExpectedCash:   want.CashBalance,
			ExpectedStaged: want.StagedRevenue,
		})
	}
	sort.Slice(report.Mismatches, func(i, j int) bool {
		return report.Mismatches[i].AccountID.String() < report.Mismatches[j].AccountID.String()
	})

	return report, nil
}
