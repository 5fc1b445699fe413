package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/fund-ledger/internal/auth"
	"github.com/josh-kwaku/fund-ledger/internal/domain"
	"github.com/josh-kwaku/fund-ledger/internal/ledger"
	"github.com/josh-kwaku/fund-ledger/internal/logging"
)

type accountService interface {
	CreateAccount(ctx context.Context, req ledger.CreateAccountRequest) (*domain.Account, error)
	GetAccount(ctx context.Context, key domain.AccountKey) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	DeactivateAccount(ctx context.Context, key domain.AccountKey) (*domain.Account, error)
}

type AccountHandler struct {
	accounts accountService
}

func NewAccountHandler(accounts accountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type createAccountRequest struct {
	Role                 string `json:"role"`
	SubIdentity          string `json:"subIdentity"`
	InitialCashBalance   int64  `json:"initialCashBalance"`
	InitialStagedRevenue int64  `json:"initialStagedRevenue"`
	Note                 string `json:"note"`
}

func (r createAccountRequest) Validate() []FieldError {
	var errs []FieldError
	role := domain.Role(r.Role)
	switch {
	case r.Role == "":
		errs = append(errs, FieldError{Field: "role", Message: "required"})
	case !role.HasAccount():
		errs = append(errs, FieldError{Field: "role", Message: "not an account role"})
	case role.IsMultiInstance() && r.SubIdentity == "":
		errs = append(errs, FieldError{Field: "subIdentity", Message: "required for " + r.Role})
	case !role.IsMultiInstance() && r.SubIdentity != "":
		errs = append(errs, FieldError{Field: "subIdentity", Message: "not allowed for " + r.Role})
	}
	if r.InitialCashBalance < 0 {
		errs = append(errs, FieldError{Field: "initialCashBalance", Message: "must not be negative"})
	}
	if r.InitialStagedRevenue < 0 {
		errs = append(errs, FieldError{Field: "initialStagedRevenue", Message: "must not be negative"})
	}
	return errs
}

type accountDTO struct {
	ID            uuid.UUID  `json:"id"`
	Role          string     `json:"role"`
	SubIdentity   string     `json:"subIdentity,omitempty"`
	CashBalance   int64      `json:"cashBalance"`
	StagedRevenue int64      `json:"stagedRevenue"`
	Note          string     `json:"note,omitempty"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"createdAt"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		ID:            a.ID,
		Role:          string(a.Role),
		SubIdentity:   a.SubIdentity,
		CashBalance:   a.CashBalance,
		StagedRevenue: a.StagedRevenue,
		Note:          a.Note,
		Active:        a.Active(),
		CreatedAt:     a.CreatedAt,
		DeletedAt:     a.DeletedAt,
	}
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	operator, _ := auth.OperatorFromContext(r.Context())
	account, err := h.accounts.CreateAccount(r.Context(), ledger.CreateAccountRequest{
		Role:                 domain.Role(req.Role),
		SubIdentity:          req.SubIdentity,
		InitialCashBalance:   req.InitialCashBalance,
		InitialStagedRevenue: req.InitialStagedRevenue,
		Note:                 req.Note,
		CreatedBy:            operator,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("failed to create account", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toAccountDTO(account))
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListAccounts(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list accounts", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]accountDTO, len(accounts))
	for i := range accounts {
		dtos[i] = toAccountDTO(&accounts[i])
	}

	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, appErr := accountKeyFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), key)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

func (h *AccountHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	key, appErr := accountKeyFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	account, err := h.accounts.DeactivateAccount(r.Context(), key)
	if err != nil {
		logging.FromContext(r.Context()).Warn("failed to deactivate account", "error", err, "account", key.String())
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

func accountKeyFromPath(r *http.Request) (domain.AccountKey, *AppError) {
	role := domain.Role(r.PathValue("role"))
	if !role.HasAccount() {
		return domain.AccountKey{}, ErrResourceNotFound
	}
	return domain.AccountKey{Role: role, SubIdentity: r.PathValue("subIdentity")}, nil
}
