package flowgraph

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
	"github.com/josh-kwaku/fund-ledger/internal/flow"
)

type fixedSource struct {
	events []domain.TransferEvent
	err    error
}

func (f *fixedSource) Current(context.Context) (*flow.Summary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return flow.Aggregate(f.events), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleEvents() []domain.TransferEvent {
	return []domain.TransferEvent{
		{Seq: 1, Action: domain.ActionDeposit, Value: 1000, DestinationRole: domain.RoleOriginal},
		{Seq: 2, Action: domain.ActionSend, Value: 300, SourceRole: domain.RoleOriginal, DestinationRole: domain.RoleFlexible},
		{Seq: 3, Action: domain.ActionSend, Value: 100, SourceRole: domain.RoleOriginal, DestinationRole: domain.RoleNetCash},
	}
}

func TestPublish_WritesNodesAndLinks(t *testing.T) {
	client := NewMemoryClient()
	src := &fixedSource{events: sampleEvents()}
	p := NewPublisher(client, src, testLogger(), time.Minute)

	require.NoError(t, p.Publish(context.Background()))

	calls := client.WriteCalls()
	require.Len(t, calls, 2)

	nodes := calls[0].Params["nodes"].([]map[string]any)
	assert.Len(t, nodes, len(domain.AllRoles)+len(flow.Nodes))
	assert.Equal(t, int64(3), calls[0].Params["lastSeq"])

	var original map[string]any
	for _, n := range nodes {
		if n["kind"] == kindRole && n["name"] == "original" {
			original = n
		}
	}
	require.NotNil(t, original)
	assert.Equal(t, int64(1000), original["deposit"])
	assert.Equal(t, int64(400), original["send"])

	links := calls[1].Params["links"].([]map[string]any)
	require.Len(t, links, 3)
	assert.Equal(t, "external", links[0]["from"])
	assert.Equal(t, kindExternal, links[0]["fromKind"])
	assert.Equal(t, "original", links[1]["from"])
	assert.Equal(t, "flexible", links[1]["to"])
	assert.Equal(t, int64(300), links[1]["value"])
	assert.InDelta(t, 0.75, links[1]["share"], 1e-9)
	assert.InDelta(t, 0.25, links[2]["share"], 1e-9)
}

func TestPublish_SkipsWhenNothingCommitted(t *testing.T) {
	client := NewMemoryClient()
	src := &fixedSource{events: sampleEvents()}
	p := NewPublisher(client, src, testLogger(), time.Minute)

	require.NoError(t, p.Publish(context.Background()))
	require.NoError(t, p.Publish(context.Background()))
	assert.Len(t, client.WriteCalls(), 2)

	src.events = append(src.events, domain.TransferEvent{
		Seq: 4, Action: domain.ActionWithdraw, Value: 50, SourceRole: domain.RoleOriginal,
	})
	require.NoError(t, p.Publish(context.Background()))
	assert.Len(t, client.WriteCalls(), 4)
}

func TestPublish_EmptyLogStillCreatesNodes(t *testing.T) {
	client := NewMemoryClient()
	p := NewPublisher(client, &fixedSource{}, testLogger(), time.Minute)

	require.NoError(t, p.Publish(context.Background()))

	calls := client.WriteCalls()
	require.Len(t, calls, 2)
	assert.NotEmpty(t, calls[0].Params["nodes"])
	assert.Empty(t, calls[1].Params["links"])
}

func TestPublish_FailureIsRetriedNextTick(t *testing.T) {
	client := NewMemoryClient()
	p := NewPublisher(client, &fixedSource{events: sampleEvents()}, testLogger(), time.Minute)

	graphDown := errors.New("connection refused")
	client.SetError(graphDown)
	err := p.Publish(context.Background())
	require.ErrorIs(t, err, graphDown)
	assert.Empty(t, client.WriteCalls())

	client.SetError(nil)
	require.NoError(t, p.Publish(context.Background()))
	assert.Len(t, client.WriteCalls(), 2)
}

func TestPublish_SourceError(t *testing.T) {
	client := NewMemoryClient()
	boom := errors.New("db unavailable")
	p := NewPublisher(client, &fixedSource{err: boom}, testLogger(), time.Minute)

	require.ErrorIs(t, p.Publish(context.Background()), boom)
	assert.Empty(t, client.WriteCalls())
}

func TestStart_StopsOnCancel(t *testing.T) {
	client := NewMemoryClient()
	p := NewPublisher(client, &fixedSource{events: sampleEvents()}, testLogger(), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(client.WriteCalls()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
}

func TestNewNeo4jClient_RequiresURI(t *testing.T) {
	_, err := NewNeo4jClient(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrMissingURI)
}

func TestNewPublisher_NonPositiveIntervalUsesDefault(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		p := NewPublisher(NewMemoryClient(), &fixedSource{}, testLogger(), interval)
		assert.Equal(t, DefaultPublishInterval, p.interval)
	}
}
