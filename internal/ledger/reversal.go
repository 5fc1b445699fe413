package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
)

// Reverse appends a compensating transfer for the event id. History is never
// edited; the new event points back at the original via ReversalOf.
func (s *Service) Reverse(ctx context.Context, id uuid.UUID, createdBy string) (*domain.TransferEvent, error) {
	orig, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Reverse: %w", err)
	}

	// The store enforces this too; checking first reports it ahead of a
	// failed funds check.
	prior, err := s.store.FindReversal(ctx, id)
	switch {
	case err == nil:
		return nil, fmt.Errorf("Reverse: reversed by %s: %w", prior.ID, domain.ErrAlreadyReversed)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("Reverse: %w", err)
	}

	req, err := compensation(orig)
	if err != nil {
		return nil, fmt.Errorf("Reverse: %w", err)
	}
	req.CreatedBy = createdBy

	ev, err := s.Transfer(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Reverse: %w", err)
	}
	return ev, nil
}

// compensation builds the request that undoes orig. Only movements whose
// counterpart can act as a source are reversible: money that left for a sink,
// an unmodeled party or came in from a carrier stays where it went.
func compensation(orig *domain.TransferEvent) (TransferRequest, error) {
	if orig.ReversalOf != nil {
		return TransferRequest{}, fmt.Errorf("compensation: %s is itself a reversal: %w", orig.ID, domain.ErrReversalNotAllowed)
	}
	if orig.DestinationAccountID == nil || orig.DestinationRole.IsSink() {
		return TransferRequest{}, fmt.Errorf("compensation: destination cannot pay back: %w", domain.ErrReversalNotAllowed)
	}

	origID := orig.ID
	req := TransferRequest{
		Value:      orig.Value,
		UsedFor:    orig.UsedFor,
		Note:       fmt.Sprintf("reversal of %s", orig.ID),
		reversalOf: &origID,
	}

	if orig.Action == domain.ActionDeposit {
		req.Action = domain.ActionWithdraw
		req.SourceRole = orig.DestinationRole
		req.SourceSubIdentity = orig.DestinationSubIdentity
		return req, nil
	}

	if orig.SourceAccountID == nil {
		return TransferRequest{}, fmt.Errorf("compensation: source %s is not a modeled account: %w", orig.SourceRole, domain.ErrReversalNotAllowed)
	}

	req.Action = orig.Action
	req.SourceRole = orig.DestinationRole
	req.SourceSubIdentity = orig.DestinationSubIdentity
	req.DestinationRole = orig.SourceRole
	req.DestinationSubIdentity = orig.SourceSubIdentity
	return req, nil
}
