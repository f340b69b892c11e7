package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/segyhp/expense-ledger/internal/balance"
	"github.com/segyhp/expense-ledger/internal/domain"
	"github.com/segyhp/expense-ledger/internal/metrics"
	"github.com/segyhp/expense-ledger/internal/notify"
	"github.com/segyhp/expense-ledger/internal/repository"
	"github.com/segyhp/expense-ledger/internal/settlement"
	customError "github.com/segyhp/expense-ledger/pkg/errors"
)

// LedgerService derives balances and settlement suggestions from stored
// expenses and records payments against them. Nothing derived is cached:
// every call starts from the repositories.
type LedgerService struct {
	EventRepo   repository.EventRepository
	ExpenseRepo repository.ExpenseRepository
	PaymentRepo repository.PaymentRepository
	notifier    notify.Notifier
	metrics     *metrics.Recorder
	logger      *slog.Logger
	now         func() time.Time
}

func NewLedgerService(
	eventRepo repository.EventRepository,
	expenseRepo repository.ExpenseRepository,
	paymentRepo repository.PaymentRepository,
	notifier notify.Notifier,
	recorder *metrics.Recorder,
	logger *slog.Logger,
) *LedgerService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{
		EventRepo:   eventRepo,
		ExpenseRepo: expenseRepo,
		PaymentRepo: paymentRepo,
		notifier:    notifier,
		metrics:     recorder,
		logger:      logger,
		now:         time.Now,
	}
}

// snapshot is everything a computation needs about one event.
type snapshot struct {
	event    *domain.Event
	roster   []*domain.Participant
	groups   []*domain.Group
	expenses []*domain.Expense
}

func (s *snapshot) participant(id int64) *domain.Participant {
	for _, p := range s.roster {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *snapshot) names() map[int64]string {
	names := make(map[int64]string, len(s.roster))
	for _, p := range s.roster {
		names[p.ID] = p.Name
	}
	return names
}

// ownsAny reports whether userID owns at least one participant of the event.
func (s *snapshot) ownsAny(userID int64) bool {
	for _, p := range s.roster {
		if p.OwnedBy(userID) {
			return true
		}
	}
	return false
}

func (s *LedgerService) loadEvent(ctx context.Context, eventID int64) (*domain.Event, error) {
	event, err := s.EventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapEventNotFound(eventID)
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return event, nil
}

// load reads the event, its roster and its expenses. Groups are only read
// when withGroups is set.
func (s *LedgerService) load(ctx context.Context, eventID int64, withGroups bool) (*snapshot, error) {
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	roster, err := s.EventRepo.ListParticipants(ctx, eventID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if len(roster) == 0 {
		return nil, customError.WrapRosterNotFound(eventID)
	}

	expenses, err := s.ExpenseRepo.ListByEventID(ctx, eventID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	snap := &snapshot{event: event, roster: roster, expenses: expenses}

	if withGroups {
		groups, err := s.EventRepo.ListGroups(ctx, eventID)
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}
		snap.groups = groups
	}

	return snap, nil
}

// lines computes the current settlement plan of snap in the given mode.
func lines(snap *snapshot, mode domain.PaymentKind) ([]domain.SettlementLine, error) {
	switch mode {
	case domain.PaymentKindIndividual:
		balances, err := balance.Compute(snap.roster, snap.expenses)
		if err != nil {
			return nil, err
		}
		suggestions, err := settlement.Participants(balances, snap.names())
		if err != nil {
			return nil, err
		}
		out := make([]domain.SettlementLine, len(suggestions))
		for i, sg := range suggestions {
			out[i] = sg.Line()
		}
		return out, nil

	case domain.PaymentKindBetweenGroups:
		balances, err := balance.ComputeGroups(snap.roster, snap.groups, snap.expenses)
		if err != nil {
			return nil, err
		}
		suggestions, err := settlement.Groups(balances)
		if err != nil {
			return nil, err
		}
		out := make([]domain.SettlementLine, len(suggestions))
		for i, sg := range suggestions {
			out[i] = sg.Line()
		}
		return out, nil
	}

	return nil, customError.WrapInvalidState("unknown settlement mode " + string(mode))
}

// GetBalances returns the net position of every active participant.
func (s *LedgerService) GetBalances(ctx context.Context, eventID int64) ([]domain.Balance, error) {
	snap, err := s.load(ctx, eventID, false)
	if err != nil {
		return nil, err
	}
	return balance.Compute(snap.roster, snap.expenses)
}

// GetGroupBalances returns the net position of every group, virtual
// singleton groups included.
func (s *LedgerService) GetGroupBalances(ctx context.Context, eventID int64) ([]domain.GroupBalance, error) {
	snap, err := s.load(ctx, eventID, true)
	if err != nil {
		return nil, err
	}
	return balance.ComputeGroups(snap.roster, snap.groups, snap.expenses)
}

func (s *LedgerService) GetSuggestions(ctx context.Context, eventID int64) ([]domain.Suggestion, error) {
	snap, err := s.load(ctx, eventID, false)
	if err != nil {
		return nil, err
	}
	balances, err := balance.Compute(snap.roster, snap.expenses)
	if err != nil {
		return nil, err
	}
	return settlement.Participants(balances, snap.names())
}

func (s *LedgerService) GetGroupSuggestions(ctx context.Context, eventID int64) ([]domain.GroupSuggestion, error) {
	snap, err := s.load(ctx, eventID, true)
	if err != nil {
		return nil, err
	}
	balances, err := balance.ComputeGroups(snap.roster, snap.groups, snap.expenses)
	if err != nil {
		return nil, err
	}
	return settlement.Groups(balances)
}

// ListPayments returns every payment recorded for the event.
func (s *LedgerService) ListPayments(ctx context.Context, eventID int64) ([]*domain.Payment, error) {
	if _, err := s.loadEvent(ctx, eventID); err != nil {
		return nil, err
	}

	payments, err := s.PaymentRepo.ListByEventID(ctx, eventID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if payments == nil {
		payments = []*domain.Payment{}
	}
	return payments, nil
}

func (s *LedgerService) observeFailure(operation string, err error) {
	code := customError.CodeOf(err)
	s.metrics.Failure(operation, code)
	if code == customError.ErrCodeDatabaseError || code == "" {
		s.logger.Error("ledger operation failed", "operation", operation, "error", err)
		return
	}
	s.logger.Debug("ledger operation rejected", "operation", operation, "code", code, "error", err)
}
