package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
)

// ResolvedTransfer is a request whose accounts and pools are known. Source or
// Destination is nil when that side is absent or not a modeled account.
type ResolvedTransfer struct {
	Request         TransferRequest
	Source          *domain.Account
	Destination     *domain.Account
	SourcePool      domain.Pool
	DestinationPool domain.Pool
}

// Validate checks a request against the current account snapshot. Passing
// here is not a guarantee: Execute repeats the balance check under lock.
func (s *Service) Validate(ctx context.Context, req TransferRequest) (*ResolvedTransfer, error) {
	if req.Value <= 0 {
		return nil, fmt.Errorf("Validate: %w", domain.ErrInvalidValue)
	}

	srcPool, dstPool, err := routePools(req)
	if err != nil {
		return nil, fmt.Errorf("Validate: %w", err)
	}

	r := &ResolvedTransfer{Request: req, SourcePool: srcPool, DestinationPool: dstPool}

	if holdsBalance(srcPool) {
		r.Source, err = s.resolve(ctx, req.SourceRole, req.SourceSubIdentity)
		if err != nil {
			return nil, fmt.Errorf("Validate: source: %w", err)
		}
	}
	if holdsBalance(dstPool) {
		r.Destination, err = s.resolve(ctx, req.DestinationRole, req.DestinationSubIdentity)
		if err != nil {
			return nil, fmt.Errorf("Validate: destination: %w", err)
		}
	}

	if r.Source != nil && r.Destination != nil && r.Source.ID == r.Destination.ID {
		return nil, fmt.Errorf("Validate: %w", domain.ErrSelfTransfer)
	}

	if err := checkFunds(r.Source, srcPool, req.Value); err != nil {
		return nil, fmt.Errorf("Validate: %w", err)
	}
	if err := checkCredit(r.Destination, dstPool, req.Value); err != nil {
		return nil, fmt.Errorf("Validate: %w", err)
	}

	return r, nil
}

// routePools decides which pool each side of the request touches, rejecting
// role combinations the ledger does not model.
func routePools(req TransferRequest) (src, dst domain.Pool, err error) {
	if !req.Action.IsValid() {
		return "", "", fmt.Errorf("routePools: action %q: %w", req.Action, domain.ErrInvalidRequest)
	}
	if err := checkSide(req.SourceRole, req.SourceSubIdentity); err != nil {
		return "", "", fmt.Errorf("routePools: source: %w", err)
	}
	if err := checkSide(req.DestinationRole, req.DestinationSubIdentity); err != nil {
		return "", "", fmt.Errorf("routePools: destination: %w", err)
	}

	hasSrc, hasDst := req.SourceRole != "", req.DestinationRole != ""

	switch req.Action {
	case domain.ActionDeposit:
		if hasSrc {
			return "", "", fmt.Errorf("routePools: deposit has no source: %w", domain.ErrInvalidRoute)
		}
		if !hasDst || !req.DestinationRole.HasAccount() {
			return "", "", fmt.Errorf("routePools: deposit needs a modeled destination: %w", domain.ErrInvalidRoute)
		}
	case domain.ActionSend:
		if !hasSrc || !hasDst {
			return "", "", fmt.Errorf("routePools: send needs both sides: %w", domain.ErrInvalidRoute)
		}
	case domain.ActionWithdraw, domain.ActionPayment:
		if !hasSrc || !req.SourceRole.HasAccount() {
			return "", "", fmt.Errorf("routePools: %s needs a modeled source: %w", req.Action, domain.ErrInvalidRoute)
		}
	}

	if hasSrc {
		src = req.SourceRole.SourcePool()
		if src == domain.PoolNone {
			return "", "", fmt.Errorf("routePools: %s cannot send: %w", req.SourceRole, domain.ErrInvalidRoute)
		}
	}
	if hasDst {
		dst = req.DestinationRole.DestinationPool()
		if dst == domain.PoolNone {
			return "", "", fmt.Errorf("routePools: %s cannot receive: %w", req.DestinationRole, domain.ErrInvalidRoute)
		}
	}

	if src == domain.PoolExternal && !req.DestinationRole.AccruesRevenue() {
		return "", "", fmt.Errorf("routePools: %s inflow into %s: %w", req.SourceRole, req.DestinationRole, domain.ErrInvalidRoute)
	}

	return src, dst, nil
}

func checkSide(role domain.Role, sub string) error {
	if role == "" {
		if sub != "" {
			return fmt.Errorf("sub-identity without role: %w", domain.ErrInvalidRequest)
		}
		return nil
	}
	if !role.IsValid() {
		return fmt.Errorf("unknown role %q: %w", role, domain.ErrInvalidRequest)
	}
	if role.IsMultiInstance() && sub == "" {
		return fmt.Errorf("%s needs a sub-identity: %w", role, domain.ErrAccountNotFound)
	}
	if !role.IsMultiInstance() && sub != "" {
		return fmt.Errorf("%s takes no sub-identity: %w", role, domain.ErrInvalidRequest)
	}
	return nil
}

func (s *Service) resolve(ctx context.Context, role domain.Role, sub string) (*domain.Account, error) {
	key := domain.AccountKey{Role: role, SubIdentity: sub}
	a, err := s.store.FindAccount(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("resolve: %s: %w", key, domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("resolve: %w", err)
	}
	if !a.Active() {
		return nil, fmt.Errorf("resolve: %s is deactivated: %w", key, domain.ErrAccountNotFound)
	}
	return a, nil
}

func checkFunds(src *domain.Account, pool domain.Pool, value int64) error {
	if src == nil {
		return nil
	}
	if src.Balance(pool) < value {
		return fmt.Errorf("%s has %d in %s, needs %d: %w",
			src.Key(), src.Balance(pool), pool, value, domain.ErrInsufficientFunds)
	}
	return nil
}

func checkCredit(dst *domain.Account, pool domain.Pool, value int64) error {
	if dst == nil {
		return nil
	}
	if !dst.CanCredit(pool, value) {
		return fmt.Errorf("%s has %d in %s, adding %d overflows: %w",
			dst.Key(), dst.Balance(pool), pool, value, domain.ErrInvalidValue)
	}
	return nil
}

func holdsBalance(p domain.Pool) bool {
	return p == domain.PoolCash || p == domain.PoolStaged
}
