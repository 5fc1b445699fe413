package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
	"github.com/josh-kwaku/fund-ledger/internal/flow"
	"github.com/josh-kwaku/fund-ledger/internal/logging"
)

type summarySource interface {
	Current(ctx context.Context) (*flow.Summary, error)
	Rebuild(ctx context.Context) (*flow.Summary, error)
}

type FlowHandler struct {
	summaries summarySource
}

func NewFlowHandler(summaries summarySource) *FlowHandler {
	return &FlowHandler{summaries: summaries}
}

type totalsDTO struct {
	Name     string `json:"name"`
	Deposit  int64  `json:"totalDeposit"`
	Send     int64  `json:"totalSend"`
	Withdraw int64  `json:"totalWithdraw"`
	Payment  int64  `json:"totalPayment"`
}

type linkDTO struct {
	From  string          `json:"from"`
	To    string          `json:"to"`
	Value int64           `json:"value"`
	Share decimal.Decimal `json:"share"`
}

type flowSummaryDTO struct {
	Nodes   []totalsDTO `json:"nodes"`
	Roles   []totalsDTO `json:"roles"`
	Links   []linkDTO   `json:"links"`
	Events  int         `json:"events"`
	LastSeq int64       `json:"lastSeq"`
}

func toTotalsDTO(name string, t flow.Totals) totalsDTO {
	return totalsDTO{Name: name, Deposit: t.Deposit, Send: t.Send, Withdraw: t.Withdraw, Payment: t.Payment}
}

func toFlowSummaryDTO(s *flow.Summary) flowSummaryDTO {
	dto := flowSummaryDTO{
		Nodes:   make([]totalsDTO, 0, len(flow.Nodes)),
		Roles:   make([]totalsDTO, 0, len(domain.AllRoles)),
		Events:  s.Events,
		LastSeq: s.LastSeq,
	}
	for _, n := range flow.Nodes {
		dto.Nodes = append(dto.Nodes, toTotalsDTO(string(n), s.Nodes[n]))
	}
	for _, r := range domain.AllRoles {
		dto.Roles = append(dto.Roles, toTotalsDTO(string(r), s.Roles[r]))
	}
	links := s.SortedLinks()
	dto.Links = make([]linkDTO, len(links))
	for i, l := range links {
		dto.Links[i] = linkDTO{From: l.From, To: l.To, Value: l.Value, Share: l.Share}
	}
	return dto
}

// Summary serves the cached projection; ?full=true refolds the whole log.
func (h *FlowHandler) Summary(w http.ResponseWriter, r *http.Request) {
	load := h.summaries.Current
	if r.URL.Query().Get("full") == "true" {
		load = h.summaries.Rebuild
	}

	s, err := load(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to build flow summary", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toFlowSummaryDTO(s))
}
