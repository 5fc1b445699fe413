package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
)

type eventSource interface {
	ListSince(ctx context.Context, afterSeq int64, limit int) ([]domain.TransferEvent, error)
}

const pageSize = 500

// Projection keeps a Summary in step with the event log by folding only the
// events committed since the last refresh. Events become visible in seq order,
// so the cached summary is always the fold of a committed prefix.
type Projection struct {
	events eventSource

	mu      sync.Mutex
	summary *Summary
}

func NewProjection(events eventSource) *Projection {
	return &Projection{events: events, summary: NewSummary()}
}

// Current folds any newly committed events and returns a copy of the summary.
func (p *Projection) Current(ctx context.Context) (*Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.catchUp(ctx, p.summary); err != nil {
		return nil, fmt.Errorf("Current: %w", err)
	}
	return p.summary.Clone(), nil
}

// Rebuild discards the cache and folds the log from the beginning.
func (p *Projection) Rebuild(ctx context.Context) (*Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fresh := NewSummary()
	if err := p.catchUp(ctx, fresh); err != nil {
		return nil, fmt.Errorf("Rebuild: %w", err)
	}
	p.summary = fresh
	return fresh.Clone(), nil
}

func (p *Projection) catchUp(ctx context.Context, s *Summary) error {
	for {
		batch, err := p.events.ListSince(ctx, s.LastSeq, pageSize)
		if err != nil {
			return fmt.Errorf("catchUp: %w", err)
		}
		for i := range batch {
			s.Add(&batch[i])
		}
		if len(batch) < pageSize {
			return nil
		}
	}
}
