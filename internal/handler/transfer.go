package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/fund-ledger/internal/auth"
	"github.com/josh-kwaku/fund-ledger/internal/domain"
	"github.com/josh-kwaku/fund-ledger/internal/ledger"
	"github.com/josh-kwaku/fund-ledger/internal/logging"
)

type transferService interface {
	Transfer(ctx context.Context, req ledger.TransferRequest) (*domain.TransferEvent, error)
	GetTransfer(ctx context.Context, id uuid.UUID) (*domain.TransferEvent, error)
	ListTransfers(ctx context.Context, afterSeq int64, limit int) ([]domain.TransferEvent, error)
	Reverse(ctx context.Context, id uuid.UUID, createdBy string) (*domain.TransferEvent, error)
}

type TransferHandler struct {
	transfers transferService
}

func NewTransferHandler(transfers transferService) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

type createTransferRequest struct {
	Action                 string `json:"action"`
	Value                  int64  `json:"value"`
	SourceRole             string `json:"sourceRole"`
	SourceSubIdentity      string `json:"sourceSubIdentity"`
	DestinationRole        string `json:"destinationRole"`
	DestinationSubIdentity string `json:"destinationSubIdentity"`
	UsedFor                string `json:"usedFor"`
	Note                   string `json:"note"`
	Date                   string `json:"date"`
}

func (r createTransferRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Action == "" {
		errs = append(errs, FieldError{Field: "action", Message: "required"})
	} else if !domain.Action(r.Action).IsValid() {
		errs = append(errs, FieldError{Field: "action", Message: "must be deposit, send, withdraw, or payment"})
	}
	if r.SourceRole != "" && !domain.Role(r.SourceRole).IsValid() {
		errs = append(errs, FieldError{Field: "sourceRole", Message: "unknown role"})
	}
	if r.DestinationRole != "" && !domain.Role(r.DestinationRole).IsValid() {
		errs = append(errs, FieldError{Field: "destinationRole", Message: "unknown role"})
	}
	if r.Date != "" {
		if _, err := parseDate(r.Date); err != nil {
			errs = append(errs, FieldError{Field: "date", Message: "must be RFC 3339 or YYYY-MM-DD"})
		}
	}
	return errs
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

type transferDTO struct {
	ID                     uuid.UUID  `json:"id"`
	Seq                    int64      `json:"seq"`
	Action                 string     `json:"action"`
	Date                   time.Time  `json:"date"`
	Value                  int64      `json:"value"`
	SourceRole             string     `json:"sourceRole,omitempty"`
	SourceSubIdentity      string     `json:"sourceSubIdentity,omitempty"`
	DestinationRole        string     `json:"destinationRole,omitempty"`
	DestinationSubIdentity string     `json:"destinationSubIdentity,omitempty"`
	UsedFor                string     `json:"usedFor"`
	Note                   string     `json:"note"`
	ReversalOf             *uuid.UUID `json:"reversalOf,omitempty"`
	CreatedBy              string     `json:"createdBy,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
}

func toTransferDTO(e *domain.TransferEvent) transferDTO {
	return transferDTO{
		ID:                     e.ID,
		Seq:                    e.Seq,
		Action:                 string(e.Action),
		Date:                   e.Date,
		Value:                  e.Value,
		SourceRole:             string(e.SourceRole),
		SourceSubIdentity:      e.SourceSubIdentity,
		DestinationRole:        string(e.DestinationRole),
		DestinationSubIdentity: e.DestinationSubIdentity,
		UsedFor:                e.UsedFor,
		Note:                   e.Note,
		ReversalOf:             e.ReversalOf,
		CreatedBy:              e.CreatedBy,
		CreatedAt:              e.CreatedAt,
	}
}

type transferPageDTO struct {
	Transfers []transferDTO `json:"transfers"`
	// NextSince is the since value for the following page.
	NextSince int64 `json:"nextSince"`
}

func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	var date time.Time
	if req.Date != "" {
		date, _ = parseDate(req.Date)
	}

	operator, _ := auth.OperatorFromContext(r.Context())
	ev, err := h.transfers.Transfer(r.Context(), ledger.TransferRequest{
		Action:                 domain.Action(req.Action),
		Value:                  req.Value,
		SourceRole:             domain.Role(req.SourceRole),
		SourceSubIdentity:      req.SourceSubIdentity,
		DestinationRole:        domain.Role(req.DestinationRole),
		DestinationSubIdentity: req.DestinationSubIdentity,
		UsedFor:                req.UsedFor,
		Note:                   req.Note,
		Date:                   date,
		CreatedBy:              operator,
	})
	if err != nil {
		logTransferError(r, "transfer rejected", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toTransferDTO(ev))
}

func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	ev, err := h.transfers.GetTransfer(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransferDTO(ev))
}

func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	var fields []FieldError

	since, err := queryInt(r, "since")
	if err != nil || since < 0 {
		fields = append(fields, FieldError{Field: "since", Message: "must be a non-negative integer"})
	}
	limit, err := queryInt(r, "limit")
	if err != nil || limit < 0 {
		fields = append(fields, FieldError{Field: "limit", Message: "must be a non-negative integer"})
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	events, err := h.transfers.ListTransfers(r.Context(), since, int(limit))
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list transfers", "error", err)
		RespondDomainError(w, err)
		return
	}

	page := transferPageDTO{Transfers: make([]transferDTO, len(events)), NextSince: since}
	for i := range events {
		page.Transfers[i] = toTransferDTO(&events[i])
	}
	if n := len(events); n > 0 {
		page.NextSince = events[n-1].Seq
	}

	RespondSuccess(w, http.StatusOK, page)
}

func (h *TransferHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	operator, _ := auth.OperatorFromContext(r.Context())
	ev, err := h.transfers.Reverse(r.Context(), id, operator)
	if err != nil {
		logTransferError(r, "reversal rejected", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toTransferDTO(ev))
}

func queryInt(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// logTransferError logs rejections the caller can fix at Warn and anything
// else at Error.
func logTransferError(r *http.Request, msg string, err error) {
	log := logging.FromContext(r.Context())
	if appErrorFor(err).Status < http.StatusInternalServerError || errors.Is(err, domain.ErrTransferTimeout) {
		log.Warn(msg, "error", err)
		return
	}
	log.Error(msg, "error", err)
}
