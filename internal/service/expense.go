package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/segyhp/expense-ledger/internal/balance"
	"github.com/segyhp/expense-ledger/internal/domain"
	customError "github.com/segyhp/expense-ledger/pkg/errors"
	"github.com/segyhp/expense-ledger/pkg/utils"
)

// RecordExpense stores an expense and publishes how it moved each
// participant's net. A failed publish is logged; the expense stays recorded.
func (s *LedgerService) RecordExpense(ctx context.Context, req *domain.CreateExpenseRequest) (*domain.CreateExpenseResponse, error) {
	resp, err := s.recordExpense(ctx, req)
	if err != nil {
		s.observeFailure("record_expense", err)
		return nil, err
	}

	if err := s.notifier.PublishBalanceChanges(ctx, req.EventID, resp.Changes); err != nil {
		s.logger.Warn("failed to publish balance changes", "event_id", req.EventID, "error", err)
	}

	s.logger.Info("expense recorded",
		"event_id", req.EventID,
		"expense_id", resp.Expense.ID,
		"amount", resp.Expense.Amount.StringFixed(utils.MoneyPlaces),
		"changed", len(resp.Changes),
	)
	return resp, nil
}

func (s *LedgerService) recordExpense(ctx context.Context, req *domain.CreateExpenseRequest) (*domain.CreateExpenseResponse, error) {
	snap, err := s.load(ctx, req.EventID, false)
	if err != nil {
		return nil, err
	}

	isOwner := snap.event.OwnerUserID == req.ActorUserID
	if req.PayerID != nil {
		payer := snap.participant(*req.PayerID)
		if payer == nil {
			return nil, customError.WrapParticipantNotFound(*req.PayerID)
		}
		if !isOwner && !payer.OwnedBy(req.ActorUserID) {
			return nil, customError.WrapUnauthorized("caller does not act for the paying participant")
		}
	} else if !isOwner && !snap.ownsAny(req.ActorUserID) {
		return nil, customError.WrapUnauthorized(fmt.Sprintf("caller is not a member of event %d", req.EventID))
	}

	expense := &domain.Expense{
		EventID:     req.EventID,
		Description: req.Description,
		Amount:      utils.RoundMoney(req.Amount),
		PayerID:     req.PayerID,
		Shares:      make([]domain.Share, 0, len(req.Shares)),
	}

	seen := make(map[int64]bool, len(req.Shares))
	for _, sh := range req.Shares {
		if snap.participant(sh.ParticipantID) == nil {
			return nil, customError.WrapParticipantNotFound(sh.ParticipantID)
		}
		if seen[sh.ParticipantID] {
			return nil, customError.WrapInvalidState(fmt.Sprintf("participant %d has more than one share", sh.ParticipantID))
		}
		seen[sh.ParticipantID] = true
		expense.Shares = append(expense.Shares, domain.Share{
			ParticipantID: sh.ParticipantID,
			Amount:        utils.RoundMoney(sh.Amount),
		})
	}

	shareAmounts := make([]decimal.Decimal, len(expense.Shares))
	for i, sh := range expense.Shares {
		shareAmounts[i] = sh.Amount
	}
	if diff := expense.Amount.Sub(utils.SumMoney(shareAmounts...)); !utils.IsZero(diff) {
		return nil, customError.WrapUnbalanced(diff.StringFixed(utils.MoneyPlaces))
	}

	before, err := balance.Compute(snap.roster, snap.expenses)
	if err != nil {
		return nil, err
	}

	if err := s.ExpenseRepo.Create(ctx, expense); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	after, err := balance.Compute(snap.roster, append(snap.expenses, expense))
	if err != nil {
		return nil, err
	}

	changes := balance.Delta(before, after)
	if changes == nil {
		changes = []domain.BalanceChange{}
	}

	return &domain.CreateExpenseResponse{
		Expense: expense,
		Changes: changes,
	}, nil
}
