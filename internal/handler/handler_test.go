package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/fund-ledger/internal/auth"
	"github.com/josh-kwaku/fund-ledger/internal/domain"
	"github.com/josh-kwaku/fund-ledger/internal/flow"
	"github.com/josh-kwaku/fund-ledger/internal/ledger"
	"github.com/josh-kwaku/fund-ledger/internal/repository/memory"
)

type testServer struct {
	mux   *http.ServeMux
	store *memory.Store
	svc   *ledger.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	svc := ledger.NewService(store, time.Second)

	accounts := NewAccountHandler(svc)
	transfers := NewTransferHandler(svc)
	flows := NewFlowHandler(flow.NewProjection(store))
	recon := NewReconcileHandler(svc)
	health := NewHealthHandler(store, svc)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /accounts", accounts.Create)
	mux.HandleFunc("GET /accounts", accounts.List)
	mux.HandleFunc("GET /accounts/{role}", accounts.Get)
	mux.HandleFunc("GET /accounts/{role}/{subIdentity}", accounts.Get)
	mux.HandleFunc("DELETE /accounts/{role}", accounts.Deactivate)
	mux.HandleFunc("DELETE /accounts/{role}/{subIdentity}", accounts.Deactivate)
	mux.HandleFunc("POST /transfers", transfers.Create)
	mux.HandleFunc("GET /transfers", transfers.List)
	mux.HandleFunc("GET /transfers/{id}", transfers.Get)
	mux.HandleFunc("POST /transfers/{id}/reversal", transfers.Reverse)
	mux.HandleFunc("GET /flow-summary", flows.Summary)
	mux.HandleFunc("POST /reconcile", recon.Reconcile)
	mux.HandleFunc("GET /health/live", health.Liveness)
	mux.HandleFunc("GET /health/ready", health.Readiness)

	return &testServer{mux: mux, store: store, svc: svc}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(auth.ContextWithOperator(req.Context(), "ops"))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func (s *testServer) open(t *testing.T, role domain.Role, sub string, cash, staged int64) {
	t.Helper()
	rec, _ := s.do(t, http.MethodPost, "/accounts", map[string]any{
		"role":                 role,
		"subIdentity":          sub,
		"initialCashBalance":   cash,
		"initialStagedRevenue": staged,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decodeData[T any](t *testing.T, resp APIResponse) T {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestAccountHandler_Create(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{
			name:     "cash role with opening balance",
			body:     map[string]any{"role": "original", "initialCashBalance": 1000},
			wantCode: http.StatusCreated,
		},
		{
			name:     "visa card",
			body:     map[string]any{"role": "visa", "subIdentity": "card-1"},
			wantCode: http.StatusCreated,
		},
		{
			name:     "visa without sub identity",
			body:     map[string]any{"role": "visa"},
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION_FAILED",
		},
		{
			name:     "carrier has no account",
			body:     map[string]any{"role": "carrier"},
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION_FAILED",
		},
		{
			name:     "negative balance",
			body:     map[string]any{"role": "flexible", "initialCashBalance": -1},
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION_FAILED",
		},
		{
			name:     "platform given cash",
			body:     map[string]any{"role": "tiktok", "initialCashBalance": 10},
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_REQUEST",
		},
		{
			name:     "malformed body",
			body:     "{not json",
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec, resp := s.do(t, http.MethodPost, "/accounts", tt.body)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantErr != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantErr, resp.Error.Code)
				assert.False(t, resp.Success)
				return
			}
			assert.True(t, resp.Success)
		})
	}
}

func TestAccountHandler_CreateDuplicate(t *testing.T) {
	s := newTestServer(t)
	s.open(t, domain.RoleOriginal, "", 0, 0)

	rec, resp := s.do(t, http.MethodPost, "/accounts", map[string]any{"role": "original"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ACCOUNT_ALREADY_EXISTS", resp.Error.Code)
}

func TestAccountHandler_GetListDeactivate(t *testing.T) {
	s := newTestServer(t)
	s.open(t, domain.RoleOriginal, "", 500, 0)
	s.open(t, domain.RoleVisa, "card-1", 0, 0)

	rec, resp := s.do(t, http.MethodGet, "/accounts/original", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acct := decodeData[accountDTO](t, resp)
	assert.Equal(t, "original", acct.Role)
	assert.Equal(t, int64(500), acct.CashBalance)
	assert.True(t, acct.Active)

	rec, resp = s.do(t, http.MethodGet, "/accounts/visa/card-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "card-1", decodeData[accountDTO](t, resp).SubIdentity)

	rec, _ = s.do(t, http.MethodGet, "/accounts/visa/card-9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/accounts/carrier", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, resp = s.do(t, http.MethodGet, "/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]accountDTO](t, resp), 2)

	rec, resp = s.do(t, http.MethodDelete, "/accounts/visa/card-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	deactivated := decodeData[accountDTO](t, resp)
	assert.False(t, deactivated.Active)
	assert.NotNil(t, deactivated.DeletedAt)

	rec, _ = s.do(t, http.MethodDelete, "/accounts/visa/card-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransferHandler_Create(t *testing.T) {
	tests := []struct {
		name     string
		body     map[string]any
		wantCode int
		wantErr  string
	}{
		{
			name:     "send between cash accounts",
			body:     map[string]any{"action": "send", "value": 300, "sourceRole": "original", "destinationRole": "flexible"},
			wantCode: http.StatusCreated,
		},
		{
			name:     "insufficient funds",
			body:     map[string]any{"action": "send", "value": 5000, "sourceRole": "original", "destinationRole": "flexible"},
			wantCode: http.StatusConflict,
			wantErr:  "INSUFFICIENT_FUNDS",
		},
		{
			name:     "zero value",
			body:     map[string]any{"action": "send", "value": 0, "sourceRole": "original", "destinationRole": "flexible"},
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_VALUE",
		},
		{
			name:     "missing destination account",
			body:     map[string]any{"action": "send", "value": 10, "sourceRole": "original", "destinationRole": "net_cash"},
			wantCode: http.StatusConflict,
			wantErr:  "ACCOUNT_NOT_FOUND",
		},
		{
			name:     "self transfer",
			body:     map[string]any{"action": "send", "value": 10, "sourceRole": "original", "destinationRole": "original"},
			wantCode: http.StatusConflict,
			wantErr:  "SELF_TRANSFER_NOT_ALLOWED",
		},
		{
			name:     "sink cannot send",
			body:     map[string]any{"action": "send", "value": 10, "sourceRole": "tax", "destinationRole": "flexible"},
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_ROUTE",
		},
		{
			name:     "unknown action",
			body:     map[string]any{"action": "teleport", "value": 10},
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION_FAILED",
		},
		{
			name:     "bad date",
			body:     map[string]any{"action": "deposit", "value": 10, "destinationRole": "original", "date": "yesterday"},
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION_FAILED",
		},
		{
			name:     "deposit with date only",
			body:     map[string]any{"action": "deposit", "value": 10, "destinationRole": "original", "date": "2026-03-01"},
			wantCode: http.StatusCreated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.open(t, domain.RoleOriginal, "", 1000, 0)
			s.open(t, domain.RoleFlexible, "", 0, 0)

			rec, resp := s.do(t, http.MethodPost, "/transfers", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantErr != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantErr, resp.Error.Code)
				return
			}
			ev := decodeData[transferDTO](t, resp)
			assert.Equal(t, "ops", ev.CreatedBy)
			assert.NotZero(t, ev.Seq)
		})
	}
}

func TestTransferHandler_ReadOnlyLedger(t *testing.T) {
	s := newTestServer(t)
	s.open(t, domain.RoleOriginal, "", 1000, 0)

	a, err := s.svc.GetAccount(context.Background(), domain.AccountKey{Role: domain.RoleOriginal})
	require.NoError(t, err)
	tampered := *a
	tampered.CashBalance = 1
	s.store.Put(tampered)

	rec, resp := s.do(t, http.MethodPost, "/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeData[reconcileDTO](t, resp)
	assert.False(t, report.Clean)
	assert.True(t, report.ReadOnly)
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, "original", report.Mismatches[0].Account)
	assert.Equal(t, int64(1000), report.Mismatches[0].ExpectedCash)
	assert.Equal(t, int64(1), report.Mismatches[0].ActualCash)

	rec, resp = s.do(t, http.MethodPost, "/transfers", map[string]any{
		"action": "withdraw", "value": 1, "sourceRole": "original",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "LEDGER_READ_ONLY", resp.Error.Code)

	rec, _ = s.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var ready struct {
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "read_only", ready.Checks["ledger"])

	tampered.CashBalance = 1000
	s.store.Put(tampered)
	rec, resp = s.do(t, http.MethodPost, "/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeData[reconcileDTO](t, resp).Clean)
	assert.False(t, s.svc.ReadOnly())
}

func TestTransferHandler_LockTimeout(t *testing.T) {
	store := memory.NewStore()
	svc := ledger.NewService(store, 20*time.Millisecond)
	h := NewTransferHandler(svc)
	ctx := context.Background()

	_, err := svc.CreateAccount(ctx, ledger.CreateAccountRequest{Role: domain.RoleOriginal, InitialCashBalance: 100})
	require.NoError(t, err)
	a, err := svc.GetAccount(ctx, domain.AccountKey{Role: domain.RoleOriginal})
	require.NoError(t, err)

	holder, err := store.Begin(ctx, time.Second)
	require.NoError(t, err)
	_, err = holder.GetForUpdate(ctx, a.ID)
	require.NoError(t, err)
	defer holder.Rollback()

	body := `{"action":"withdraw","value":10,"sourceRole":"original"}`
	req := httptest.NewRequest(http.MethodPost, "/transfers", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "TRANSFER_TIMEOUT", resp.Error.Code)
}

func TestTransferHandler_GetListReverse(t *testing.T) {
	s := newTestServer(t)
	s.open(t, domain.RoleOriginal, "", 1000, 0)
	s.open(t, domain.RoleFlexible, "", 0, 0)

	rec, resp := s.do(t, http.MethodPost, "/transfers", map[string]any{
		"action": "send", "value": 300, "sourceRole": "original", "destinationRole": "flexible",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	sent := decodeData[transferDTO](t, resp)

	rec, resp = s.do(t, http.MethodGet, "/transfers/"+sent.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sent.ID, decodeData[transferDTO](t, resp).ID)

	rec, _ = s.do(t, http.MethodGet, "/transfers/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, resp = s.do(t, http.MethodPost, "/transfers/"+sent.ID.String()+"/reversal", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rev := decodeData[transferDTO](t, resp)
	require.NotNil(t, rev.ReversalOf)
	assert.Equal(t, sent.ID, *rev.ReversalOf)
	assert.Equal(t, "flexible", rev.SourceRole)
	assert.Equal(t, "original", rev.DestinationRole)

	rec, resp = s.do(t, http.MethodPost, "/transfers/"+sent.ID.String()+"/reversal", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_REVERSED", resp.Error.Code)

	rec, resp = s.do(t, http.MethodPost, "/transfers/"+rev.ID.String()+"/reversal", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "REVERSAL_NOT_ALLOWED", resp.Error.Code)

	// opening deposit, send, reversal
	rec, resp = s.do(t, http.MethodGet, "/transfers?since=0&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeData[transferPageDTO](t, resp)
	require.Len(t, page.Transfers, 2)
	assert.Equal(t, page.Transfers[1].Seq, page.NextSince)

	rec, resp = s.do(t, http.MethodGet, fmt.Sprintf("/transfers?since=%d", page.NextSince), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rest := decodeData[transferPageDTO](t, resp)
	require.Len(t, rest.Transfers, 1)
	assert.Equal(t, rev.ID, rest.Transfers[0].ID)

	rec, resp = s.do(t, http.MethodGet, "/transfers?since=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)
}

func TestFlowHandler_Summary(t *testing.T) {
	s := newTestServer(t)
	s.open(t, domain.RoleOriginal, "", 1000, 0)
	s.open(t, domain.RoleFlexible, "", 0, 0)
	s.open(t, domain.RoleNetCash, "", 0, 0)

	for _, tr := range []map[string]any{
		{"action": "send", "value": 300, "sourceRole": "original", "destinationRole": "flexible"},
		{"action": "send", "value": 100, "sourceRole": "original", "destinationRole": "net_cash"},
	} {
		rec, _ := s.do(t, http.MethodPost, "/transfers", tr)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	for _, path := range []string{"/flow-summary", "/flow-summary?full=true"} {
		rec, resp := s.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		summary := decodeData[flowSummaryDTO](t, resp)
		assert.Equal(t, 3, summary.Events)
		assert.Len(t, summary.Nodes, len(flow.Nodes))
		assert.Len(t, summary.Roles, len(domain.AllRoles))

		shares := map[string]string{}
		for _, l := range summary.Links {
			shares[l.From+">"+l.To] = l.Share.String()
		}
		assert.Equal(t, "0.75", shares["original>flexible"])
		assert.Equal(t, "0.25", shares["original>net_cash"])
		assert.Equal(t, "1", shares["external>original"])
	}
}

type failingSummaries struct{}

func (failingSummaries) Current(context.Context) (*flow.Summary, error) {
	return nil, fmt.Errorf("catchUp: %w: %w", domain.ErrPersistenceFailure, errors.New("connection reset"))
}

func (f failingSummaries) Rebuild(ctx context.Context) (*flow.Summary, error) {
	return f.Current(ctx)
}

func TestFlowHandler_StoreFailure(t *testing.T) {
	h := NewFlowHandler(failingSummaries{})
	rec := httptest.NewRecorder()
	h.Summary(rec, httptest.NewRequest(http.MethodGet, "/flow-summary", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

type writableLedger struct{}

func (writableLedger) ReadOnly() bool { return false }

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	h := NewHealthHandler(downStore{}, writableLedger{})
	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAppErrorFor(t *testing.T) {
	tests := []struct {
		err  error
		want *AppError
	}{
		{fmt.Errorf("Execute: %w", domain.ErrInsufficientFunds), ErrInsufficientFunds},
		{fmt.Errorf("x: %w: %w", domain.ErrPersistenceFailure, domain.ErrTransferTimeout), ErrTransferTimeout},
		{fmt.Errorf("x: %w: %w", domain.ErrPersistenceFailure, errors.New("disk full")), ErrPersistenceFailure},
		{fmt.Errorf("GetTransfer: %w", domain.ErrNotFound), ErrResourceNotFound},
		{errors.New("mystery"), ErrInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.want.Code, func(t *testing.T) {
			assert.Same(t, tt.want, appErrorFor(tt.err))
		})
	}
}
