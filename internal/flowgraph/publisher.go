package flowgraph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
	"github.com/josh-kwaku/fund-ledger/internal/flow"
)

type summarySource interface {
	Current(ctx context.Context) (*flow.Summary, error)
}

const (
	kindRole     = "role"
	kindBucket   = "bucket"
	kindExternal = "external"
)

const upsertNodes = `
UNWIND $nodes AS n
MERGE (f:FlowNode {kind: n.kind, name: n.name})
SET f.deposit = n.deposit,
    f.send = n.send,
    f.withdraw = n.withdraw,
    f.payment = n.payment,
    f.lastSeq = $lastSeq`

const upsertLinks = `
UNWIND $links AS l
MERGE (a:FlowNode {kind: l.fromKind, name: l.from})
MERGE (b:FlowNode {kind: l.toKind, name: l.to})
MERGE (a)-[r:FLOWS_TO]->(b)
SET r.value = l.value,
    r.share = l.share,
    r.lastSeq = $lastSeq`

// Publisher periodically pushes the current flow summary to the graph. A
// publish is skipped when no event has committed since the last one.
type Publisher struct {
	client   Client
	source   summarySource
	logger   *slog.Logger
	interval time.Duration

	mu        sync.Mutex
	published int64
}

const DefaultPublishInterval = 30 * time.Second

// NewPublisher falls back to DefaultPublishInterval for a non-positive
// interval.
func NewPublisher(client Client, source summarySource, logger *slog.Logger, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = DefaultPublishInterval
	}
	return &Publisher{
		client:    client,
		source:    source,
		logger:    logger,
		interval:  interval,
		published: -1,
	}
}

func (p *Publisher) Start(ctx context.Context) {
	p.logger.Info("flow graph publisher started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("flow graph publisher stopped")
			return
		case <-ticker.C:
			if err := p.Publish(ctx); err != nil {
				p.logger.Error("failed to publish flow graph", "error", err)
			}
		}
	}
}

// Publish writes every node and link of the current summary. Writes are
// upserts, so a partial failure is repaired by the next successful publish.
func (p *Publisher) Publish(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.source.Current(ctx)
	if err != nil {
		return fmt.Errorf("Publish: %w", err)
	}
	if s.LastSeq == p.published {
		return nil
	}

	if _, err := p.client.ExecuteWrite(ctx, upsertNodes, map[string]any{
		"nodes":   nodeParams(s),
		"lastSeq": s.LastSeq,
	}); err != nil {
		return fmt.Errorf("Publish: nodes: %w", err)
	}

	if _, err := p.client.ExecuteWrite(ctx, upsertLinks, map[string]any{
		"links":   linkParams(s),
		"lastSeq": s.LastSeq,
	}); err != nil {
		return fmt.Errorf("Publish: links: %w", err)
	}

	p.published = s.LastSeq
	p.logger.Debug("flow graph published", "last_seq", s.LastSeq, "links", len(s.Links))
	return nil
}

func nodeParams(s *flow.Summary) []map[string]any {
	out := make([]map[string]any, 0, len(s.Roles)+len(s.Nodes))
	roles := make([]domain.Role, 0, len(s.Roles))
	for r := range s.Roles {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	for _, r := range roles {
		out = append(out, totalsParam(kindRole, string(r), s.Roles[r]))
	}
	for _, n := range flow.Nodes {
		out = append(out, totalsParam(kindBucket, string(n), s.Nodes[n]))
	}
	return out
}

func totalsParam(kind, name string, t flow.Totals) map[string]any {
	return map[string]any{
		"kind":     kind,
		"name":     name,
		"deposit":  t.Deposit,
		"send":     t.Send,
		"withdraw": t.Withdraw,
		"payment":  t.Payment,
	}
}

func linkParams(s *flow.Summary) []map[string]any {
	links := s.SortedLinks()
	out := make([]map[string]any, 0, len(links))
	for _, l := range links {
		out = append(out, map[string]any{
			"from":     l.From,
			"fromKind": endpointKind(l.From),
			"to":       l.To,
			"toKind":   endpointKind(l.To),
			"value":    l.Value,
			"share":    l.Share.InexactFloat64(),
		})
	}
	return out
}

func endpointKind(name string) string {
	if name == flow.External {
		return kindExternal
	}
	return kindRole
}
