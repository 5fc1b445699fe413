package flow

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
)

func ev(seq int64, action domain.Action, value int64, src, dst domain.Role) domain.TransferEvent {
	return domain.TransferEvent{Seq: seq, Action: action, Value: value, SourceRole: src, DestinationRole: dst}
}

func sampleLog() []domain.TransferEvent {
	return []domain.TransferEvent{
		ev(1, domain.ActionDeposit, 1_000_000, "", domain.RoleOriginal),
		ev(2, domain.ActionSend, 300_000, domain.RoleOriginal, domain.RoleFlexible),
		ev(3, domain.ActionDeposit, 50_000, "", domain.RoleOperating),
		ev(4, domain.ActionSend, 200_000, domain.RoleCarrier, domain.RoleReceive),
		ev(5, domain.ActionSend, 100_000, domain.RoleFlexible, domain.RoleVisa),
		ev(6, domain.ActionSend, 40_000, domain.RoleVisa, domain.RoleTiktok),
		ev(7, domain.ActionSend, 25_000, domain.RoleVisa, domain.RoleFacebook),
		ev(8, domain.ActionSend, 30_000, domain.RoleTiktok, domain.RoleReceive),
		ev(9, domain.ActionSend, 80_000, domain.RoleReceive, domain.RoleNetCash),
		ev(10, domain.ActionPayment, 12_000, domain.RoleNetCash, domain.RoleTax),
		ev(11, domain.ActionPayment, 8_000, domain.RoleFlexible, domain.RoleSalary),
		ev(12, domain.ActionWithdraw, 5_000, domain.RoleOriginal, ""),
	}
}

func TestAggregate_Buckets(t *testing.T) {
	s := Aggregate(sampleLog())

	assert.Equal(t, 12, s.Events)
	assert.Equal(t, int64(12), s.LastSeq)

	assert.Equal(t, Totals{Deposit: 1_000_000, Send: 300_000, Withdraw: 5_000}, s.Nodes[NodeOriginal])
	assert.Equal(t, Totals{Send: 100_000, Payment: 8_000}, s.Nodes[NodeFlexible])
	assert.Equal(t, Totals{Payment: 12_000}, s.Nodes[NodeNetCash])
	assert.Equal(t, Totals{Deposit: 100_000, Send: 65_000}, s.Nodes[NodeVisa])
	assert.Equal(t, Totals{Deposit: 230_000, Send: 80_000}, s.Nodes[NodeReceive])
	assert.Equal(t, Totals{Deposit: 65_000, Send: 30_000}, s.Nodes[NodeRevenue])
	assert.Equal(t, Totals{Deposit: 40_000}, s.Nodes[NodeTiktok])
	assert.Equal(t, Totals{Deposit: 25_000}, s.Nodes[NodeFacebook])
	assert.Equal(t, Totals{}, s.Nodes[NodeShopee])
	assert.Equal(t, Totals{Send: 200_000}, s.Nodes[NodeCarrier])
	assert.Equal(t, Totals{Deposit: 20_000}, s.Nodes[NodePayment])
	assert.Equal(t, Totals{Deposit: 12_000}, s.Nodes[NodeTax])
	assert.Equal(t, Totals{Deposit: 50_000}, s.Nodes[NodeOperating])

	assert.Equal(t, int64(300_000), s.Roles[domain.RoleOriginal].Send)
	assert.Equal(t, int64(65_000), s.Roles[domain.RoleVisa].Send)
	assert.Equal(t, int64(30_000), s.Roles[domain.RoleTiktok].Send)

	assert.Equal(t, int64(1_000_000), s.Links[Link{From: External, To: "original"}])
	assert.Equal(t, int64(5_000), s.Links[Link{From: "original", To: External}])
}

func TestAggregate_EmptyLogHasEveryNode(t *testing.T) {
	s := Aggregate(nil)
	assert.Len(t, s.Nodes, len(Nodes))
	assert.Len(t, s.Roles, len(domain.AllRoles))
	assert.Empty(t, s.Links)
}

func TestAggregate_DeterministicAndOrderIndependent(t *testing.T) {
	log := sampleLog()
	first := Aggregate(log)
	second := Aggregate(log)
	assert.Equal(t, first, second)

	before := make([]domain.TransferEvent, len(log))
	copy(before, log)

	rng := rand.New(rand.NewSource(7))
	for range 20 {
		shuffled := make([]domain.TransferEvent, len(log))
		copy(shuffled, log)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, first, Aggregate(shuffled))
	}

	assert.Equal(t, before, log, "Aggregate must not modify its input")
}

func TestAggregate_TotalsSaturateInsteadOfWrapping(t *testing.T) {
	log := []domain.TransferEvent{
		ev(1, domain.ActionDeposit, math.MaxInt64, "", domain.RoleOriginal),
		ev(2, domain.ActionWithdraw, math.MaxInt64, domain.RoleOriginal, ""),
		ev(3, domain.ActionDeposit, 5, "", domain.RoleOriginal),
	}
	s := Aggregate(log)

	assert.Equal(t, Totals{Deposit: math.MaxInt64, Withdraw: math.MaxInt64}, s.Roles[domain.RoleOriginal])
	assert.Equal(t, Totals{Deposit: math.MaxInt64, Withdraw: math.MaxInt64}, s.Nodes[NodeOriginal])
	assert.Equal(t, int64(math.MaxInt64), s.Links[Link{From: External, To: "original"}])

	reversed := []domain.TransferEvent{log[2], log[1], log[0]}
	assert.Equal(t, s, Aggregate(reversed))
}

func TestSortedLinks_SharesNearMax(t *testing.T) {
	s := Aggregate([]domain.TransferEvent{
		ev(1, domain.ActionSend, math.MaxInt64, domain.RoleOriginal, domain.RoleFlexible),
		ev(2, domain.ActionSend, math.MaxInt64, domain.RoleOriginal, domain.RoleNetCash),
	})

	for _, l := range s.SortedLinks() {
		assert.Equal(t, "0.5000", l.Share.StringFixed(4), l.To)
	}
}

func TestSortedLinks_Shares(t *testing.T) {
	s := Aggregate([]domain.TransferEvent{
		ev(1, domain.ActionSend, 1, domain.RoleOriginal, domain.RoleFlexible),
		ev(2, domain.ActionSend, 2, domain.RoleOriginal, domain.RoleNetCash),
	})

	links := s.SortedLinks()
	require.Len(t, links, 2)
	assert.Equal(t, "flexible", links[0].To)
	assert.Equal(t, "0.3333", links[0].Share.StringFixed(4))
	assert.Equal(t, "net_cash", links[1].To)
	assert.Equal(t, "0.6667", links[1].Share.StringFixed(4))
}

func TestSummaryClone_IsIndependent(t *testing.T) {
	s := Aggregate(sampleLog())
	c := s.Clone()
	c.Add(&domain.TransferEvent{Seq: 13, Action: domain.ActionDeposit, Value: 1, DestinationRole: domain.RoleOriginal})

	assert.Equal(t, 12, s.Events)
	assert.NotEqual(t, s.Nodes[NodeOriginal], c.Nodes[NodeOriginal])
}

type sliceSource struct {
	events []domain.TransferEvent
	calls  int
}

func (f *sliceSource) ListSince(_ context.Context, afterSeq int64, limit int) ([]domain.TransferEvent, error) {
	f.calls++
	var out []domain.TransferEvent
	for _, e := range f.events {
		if e.Seq > afterSeq {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func TestProjection_IncrementalMatchesFullFold(t *testing.T) {
	log := sampleLog()
	src := &sliceSource{events: log[:5]}
	p := NewProjection(src)
	ctx := context.Background()

	s, err := p.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, Aggregate(log[:5]), s)

	src.events = log
	s, err = p.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, Aggregate(log), s)

	rebuilt, err := p.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, rebuilt)

	a, err := json.Marshal(s.SortedLinks())
	require.NoError(t, err)
	b, err := json.Marshal(rebuilt.SortedLinks())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
