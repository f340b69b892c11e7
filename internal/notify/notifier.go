// Package notify hands ledger events to whatever delivers them to people.
// Delivery itself (mail, push) happens in an external consumer.
package notify

import (
	"context"

	"github.com/segyhp/expense-ledger/internal/domain"
)

// Message types carried on the stream.
const (
	TypeBalanceChanged     = "balance_changed"
	TypeSettlementReminder = "settlement_reminder"
)

type Notifier interface {
	// PublishBalanceChanges announces how an expense moved the nets of an event.
	PublishBalanceChanges(ctx context.Context, eventID int64, changes []domain.BalanceChange) error

	// PublishReminder announces that an event still has open transfers.
	PublishReminder(ctx context.Context, reminder domain.SettlementReminder) error
}

// Nop discards everything. It is used when no broker is configured.
type Nop struct{}

func (Nop) PublishBalanceChanges(context.Context, int64, []domain.BalanceChange) error {
	return nil
}

func (Nop) PublishReminder(context.Context, domain.SettlementReminder) error {
	return nil
}
