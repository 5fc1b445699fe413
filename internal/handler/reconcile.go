package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/fund-ledger/internal/ledger"
	"github.com/josh-kwaku/fund-ledger/internal/logging"
)

type reconciler interface {
	Reconcile(ctx context.Context) (*ledger.Report, error)
	ReadOnly() bool
}

type ReconcileHandler struct {
	ledger reconciler
}

func NewReconcileHandler(l reconciler) *ReconcileHandler {
	return &ReconcileHandler{ledger: l}
}

type mismatchDTO struct {
	AccountID      uuid.UUID `json:"accountId"`
	Account        string    `json:"account,omitempty"`
	ExpectedCash   int64     `json:"expectedCash"`
	ActualCash     int64     `json:"actualCash"`
	ExpectedStaged int64     `json:"expectedStaged"`
	ActualStaged   int64     `json:"actualStaged"`
}

type reconcileDTO struct {
	Clean      bool          `json:"clean"`
	ReadOnly   bool          `json:"readOnly"`
	Accounts   int           `json:"accounts"`
	Events     int           `json:"events"`
	LastSeq    int64         `json:"lastSeq"`
	Mismatches []mismatchDTO `json:"mismatches"`
	CheckedAt  time.Time     `json:"checkedAt"`
}

func (h *ReconcileHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.Reconcile(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("reconciliation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dto := reconcileDTO{
		Clean:      report.Clean(),
		ReadOnly:   h.ledger.ReadOnly(),
		Accounts:   report.Accounts,
		Events:     report.Events,
		LastSeq:    report.LastSeq,
		Mismatches: make([]mismatchDTO, len(report.Mismatches)),
		CheckedAt:  report.CheckedAt,
	}
	for i, m := range report.Mismatches {
		dto.Mismatches[i] = mismatchDTO{
			AccountID:      m.AccountID,
			ExpectedCash:   m.ExpectedCash,
			ActualCash:     m.ActualCash,
			ExpectedStaged: m.ExpectedStaged,
			ActualStaged:   m.ActualStaged,
		}
		if m.Key != nil {
			dto.Mismatches[i].Account = m.Key.String()
		}
	}

	RespondSuccess(w, http.StatusOK, dto)
}
