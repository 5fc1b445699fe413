package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionDeposit  Action = "deposit"
	ActionSend     Action = "send"
	ActionWithdraw Action = "withdraw"
	ActionPayment  Action = "payment"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionDeposit, ActionSend, ActionWithdraw, ActionPayment:
		return true
	}
	return false
}

// TransferEvent is an immutable ledger entry. An empty role means the side is
// absent; a nil account id means the side is not backed by a modeled account.
type TransferEvent struct {
	ID                     uuid.UUID
	Seq                    int64
	Action                 Action
	Date                   time.Time
	Value                  int64
	SourceRole             Role
	SourceSubIdentity      string
	SourceAccountID        *uuid.UUID
	DestinationRole        Role
	DestinationSubIdentity string
	DestinationAccountID   *uuid.UUID
	UsedFor                string
	Note                   string
	ReversalOf             *uuid.UUID
	CreatedBy              string
	CreatedAt              time.Time
}

// Apply performs the event's balance mutations on the accounts it references.
// It is the only place pool mutation is expressed, so the executor and the
// reconciliation replay cannot drift apart.
func (e *TransferEvent) Apply(accounts map[uuid.UUID]*Account) error {
	if e.SourceAccountID != nil {
		src, ok := accounts[*e.SourceAccountID]
		if !ok {
			return fmt.Errorf("Apply: source %s: %w", e.SourceAccountID, ErrAccountNotFound)
		}
		src.Adjust(e.SourceRole.SourcePool(), -e.Value)
	}
	if e.DestinationAccountID != nil {
		dst, ok := accounts[*e.DestinationAccountID]
		if !ok {
			return fmt.Errorf("Apply: destination %s: %w", e.DestinationAccountID, ErrAccountNotFound)
		}
		dst.Adjust(e.DestinationRole.DestinationPool(), e.Value)
	}
	return nil
}
