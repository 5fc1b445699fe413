package flow

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
)

// Node is one of the fixed buckets of the flow diagram.
type Node string

const (
	NodeOriginal  Node = "original"
	NodeFlexible  Node = "flexible"
	NodeNetCash   Node = "net_cash"
	NodeVisa      Node = "visa"
	NodeReceive   Node = "receive"
	NodeRevenue   Node = "revenue"
	NodeFacebook  Node = "facebook"
	NodeTiktok    Node = "tiktok"
	NodeShopee    Node = "shopee"
	NodeCarrier   Node = "carrier"
	NodePayment   Node = "payment"
	NodeTax       Node = "tax"
	NodeOperating Node = "operating"
)

// Nodes is the diagram's node order.
var Nodes = []Node{
	NodeOriginal, NodeFlexible, NodeNetCash, NodeVisa, NodeReceive,
	NodeRevenue, NodeFacebook, NodeTiktok, NodeShopee,
	NodeCarrier, NodePayment, NodeTax, NodeOperating,
}

// External names the unmodeled side of a link.
const External = "external"

type Totals struct {
	Deposit  int64
	Send     int64
	Withdraw int64
	Payment  int64
}

type Link struct {
	From string
	To   string
}

type LinkValue struct {
	Link
	Value int64
	// Share is Value over the total leaving From, to four places.
	Share decimal.Decimal
}

// Summary is the cumulative projection of the event log. Every counter is a
// sum capped at math.MaxInt64, so folding the same events in any order gives
// the same Summary.
type Summary struct {
	Roles   map[domain.Role]Totals
	Nodes   map[Node]Totals
	Links   map[Link]int64
	Events  int
	LastSeq int64
}

func NewSummary() *Summary {
	s := &Summary{
		Roles: make(map[domain.Role]Totals, len(domain.AllRoles)),
		Nodes: make(map[Node]Totals, len(Nodes)),
		Links: make(map[Link]int64),
	}
	for _, r := range domain.AllRoles {
		s.Roles[r] = Totals{}
	}
	for _, n := range Nodes {
		s.Nodes[n] = Totals{}
	}
	return s
}

// Aggregate folds the whole event slice into a fresh Summary. It does not
// modify events.
func Aggregate(events []domain.TransferEvent) *Summary {
	s := NewSummary()
	for i := range events {
		s.Add(&events[i])
	}
	return s
}

// Add folds a single event into the summary.
func (s *Summary) Add(ev *domain.TransferEvent) {
	v := ev.Value
	src, dst := ev.SourceRole, ev.DestinationRole

	switch ev.Action {
	case domain.ActionDeposit:
		s.role(dst, func(t *Totals) { t.Deposit = addCapped(t.Deposit, v) })
		if dst.IsPlatform() {
			s.node(NodeRevenue, func(t *Totals) { t.Deposit = addCapped(t.Deposit, v) })
		}

	case domain.ActionWithdraw:
		s.role(src, func(t *Totals) { t.Withdraw = addCapped(t.Withdraw, v) })

	case domain.ActionPayment:
		s.role(src, func(t *Totals) { t.Payment = addCapped(t.Payment, v) })
		s.node(NodePayment, func(t *Totals) { t.Deposit = addCapped(t.Deposit, v) })
		if dst == domain.RoleTax {
			s.node(NodeTax, func(t *Totals) { t.Deposit = addCapped(t.Deposit, v) })
		}

	case domain.ActionSend:
		s.role(src, func(t *Totals) { t.Send = addCapped(t.Send, v) })
		switch {
		case dst == domain.RoleVisa:
			s.node(NodeVisa, func(t *Totals) { t.Deposit = addCapped(t.Deposit, v) })
		case dst == domain.RoleReceive:
			s.node(NodeReceive, func(t *Totals) { t.Deposit = addCapped(t.Deposit, v) })
		case dst.IsPlatform():
			s.node(NodeRevenue, func(t *Totals) { t.Deposit = addCapped(t.Deposit, v) })
		}
		switch {
		case src == domain.RoleVisa:
			s.node(NodeVisa, func(t *Totals) { t.Send = addCapped(t.Send, v) })
			if dst.IsPlatform() {
				s.node(Node(dst), func(t *Totals) { t.Deposit = addCapped(t.Deposit, v) })
			}
		case src == domain.RoleReceive:
			s.node(NodeReceive, func(t *Totals) { t.Send = addCapped(t.Send, v) })
		case src == domain.RoleCarrier:
			s.node(NodeCarrier, func(t *Totals) { t.Send = addCapped(t.Send, v) })
		case src.IsPlatform():
			s.node(NodeRevenue, func(t *Totals) { t.Send = addCapped(t.Send, v) })
		}
	}

	l := Link{From: endpoint(src), To: endpoint(dst)}
	s.Links[l] = addCapped(s.Links[l], v)
	s.Events++
	if ev.Seq > s.LastSeq {
		s.LastSeq = ev.Seq
	}
}

// mirrored nodes carry the per-role totals of a singleton role.
var mirrored = map[Node]domain.Role{
	NodeOriginal:  domain.RoleOriginal,
	NodeFlexible:  domain.RoleFlexible,
	NodeNetCash:   domain.RoleNetCash,
	NodeOperating: domain.RoleOperating,
}

func (s *Summary) role(r domain.Role, f func(*Totals)) {
	if r == "" {
		return
	}
	t := s.Roles[r]
	f(&t)
	s.Roles[r] = t

	for n, mr := range mirrored {
		if mr == r {
			s.node(n, f)
		}
	}
}

func (s *Summary) node(n Node, f func(*Totals)) {
	t := s.Nodes[n]
	f(&t)
	s.Nodes[n] = t
}

// addCapped adds non-negative values, holding at math.MaxInt64 instead of
// wrapping.
func addCapped(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func endpoint(r domain.Role) string {
	if r == "" {
		return External
	}
	return string(r)
}

// SortedLinks returns links ordered by From then To, with each link's share of
// its source's outflow.
func (s *Summary) SortedLinks() []LinkValue {
	outflow := make(map[string]decimal.Decimal)
	for l, v := range s.Links {
		outflow[l.From] = outflow[l.From].Add(decimal.NewFromInt(v))
	}

	out := make([]LinkValue, 0, len(s.Links))
	for l, v := range s.Links {
		share := decimal.Zero
		if total := outflow[l.From]; total.IsPositive() {
			share = decimal.NewFromInt(v).DivRound(total, 4)
		}
		out = append(out, LinkValue{Link: l, Value: v, Share: share})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

func (s *Summary) Clone() *Summary {
	c := &Summary{
		Roles:   make(map[domain.Role]Totals, len(s.Roles)),
		Nodes:   make(map[Node]Totals, len(s.Nodes)),
		Links:   make(map[Link]int64, len(s.Links)),
		Events:  s.Events,
		LastSeq: s.LastSeq,
	}
	for k, v := range s.Roles {
		c.Roles[k] = v
	}
	for k, v := range s.Nodes {
		c.Nodes[k] = v
	}
	for k, v := range s.Links {
		c.Links[k] = v
	}
	return c
}
