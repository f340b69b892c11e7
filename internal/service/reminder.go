package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/segyhp/expense-ledger/internal/domain"
	"github.com/segyhp/expense-ledger/internal/metrics"
	"github.com/segyhp/expense-ledger/internal/notify"
	"github.com/segyhp/expense-ledger/internal/repository"
	customError "github.com/segyhp/expense-ledger/pkg/errors"
)

// ReminderJob nudges events that still have open transfers.
type ReminderJob struct {
	ledger   *LedgerService
	events   repository.EventRepository
	notifier notify.Notifier
	metrics  *metrics.Recorder
	logger   *slog.Logger
	mode     domain.PaymentKind
}

func NewReminderJob(ledger *LedgerService, notifier notify.Notifier, recorder *metrics.Recorder, logger *slog.Logger) *ReminderJob {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderJob{
		ledger:   ledger,
		events:   ledger.EventRepo,
		notifier: notifier,
		metrics:  recorder,
		logger:   logger,
		mode:     domain.PaymentKindIndividual,
	}
}

// Run publishes one reminder per unsettled event and returns how many were
// sent. A failure on one event is logged and the run moves on; only failing
// to list events aborts it.
func (j *ReminderJob) Run(ctx context.Context) (int, error) {
	ids, err := j.events.ListEventIDs(ctx)
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}

	sent := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		reminder, err := j.reminderFor(ctx, id)
		if err != nil {
			if errors.Is(err, customError.ErrNotFound) {
				j.logger.Debug("skipping event without roster", "event_id", id)
				continue
			}
			j.logger.Warn("failed to evaluate event", "event_id", id, "error", err)
			continue
		}
		if reminder == nil {
			continue
		}

		if err := j.notifier.PublishReminder(ctx, *reminder); err != nil {
			j.logger.Warn("failed to publish reminder", "event_id", id, "error", err)
			continue
		}
		j.metrics.ReminderPublished()
		sent++
	}

	j.logger.Info("reminder run finished", "events", len(ids), "reminders", sent)
	return sent, nil
}

func (j *ReminderJob) reminderFor(ctx context.Context, eventID int64) (*domain.SettlementReminder, error) {
	event, err := j.ledger.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	overview, err := j.ledger.GetOverview(ctx, eventID, j.mode)
	if err != nil {
		return nil, err
	}
	if overview.AllSettled {
		return nil, nil
	}

	reminder := &domain.SettlementReminder{
		EventID:           eventID,
		EventName:         event.Name,
		Mode:              j.mode,
		OutstandingAmount: decimal.Zero,
	}
	for _, item := range overview.Items {
		if item.Payment != nil && item.Payment.IsConfirmed() {
			continue
		}
		reminder.OutstandingCount++
		reminder.OutstandingAmount = reminder.OutstandingAmount.Add(item.Suggestion.Amount)
	}

	return reminder, nil
}
