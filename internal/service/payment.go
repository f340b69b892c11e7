package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/segyhp/expense-ledger/internal/balance"
	"github.com/segyhp/expense-ledger/internal/domain"
	customError "github.com/segyhp/expense-ledger/pkg/errors"
	"github.com/segyhp/expense-ledger/pkg/utils"
)

// MarkAsPaid records that the debtor of a current suggestion paid it. The
// claimed suggestion is matched against a fresh computation, so a client
// working from an outdated list is rejected instead of silently corrected.
func (s *LedgerService) MarkAsPaid(ctx context.Context, req *domain.MarkPaidRequest) (*domain.Payment, error) {
	payment, err := s.markAsPaid(ctx, req)
	if err != nil {
		s.observeFailure("mark_as_paid", err)
		return nil, err
	}

	s.metrics.PaymentMarked(string(payment.Kind))
	s.logger.Info("payment marked",
		"event_id", payment.EventID,
		"payment_id", payment.ID,
		"kind", payment.Kind,
		"pair", payment.PairKey(),
		"amount", payment.SuggestionAmount.StringFixed(utils.MoneyPlaces),
	)
	return payment, nil
}

func (s *LedgerService) markAsPaid(ctx context.Context, req *domain.MarkPaidRequest) (*domain.Payment, error) {
	snap, err := s.load(ctx, req.EventID, req.Kind == domain.PaymentKindBetweenGroups)
	if err != nil {
		return nil, err
	}

	// 1. The asserting payer belongs to the event and acts for the caller.
	payer := snap.participant(req.PaidByParticipantID)
	if payer == nil {
		return nil, customError.WrapUnauthorized(fmt.Sprintf("participant %d is not part of event %d", req.PaidByParticipantID, req.EventID))
	}
	if !payer.OwnedBy(req.ActorUserID) && snap.event.OwnerUserID != req.ActorUserID {
		return nil, customError.WrapUnauthorized("caller does not act for the paying participant")
	}

	pairKey := req.PairKey()
	if pairKey == "" {
		return nil, customError.WrapInvalidState(fmt.Sprintf("payment kind %q requires matching from/to identifiers", req.Kind))
	}

	if req.AmountPaid != nil && !utils.RoundMoney(*req.AmountPaid).IsPositive() {
		return nil, customError.WrapInvalidState("amount paid must be greater than zero")
	}

	// 2. Recompute in the claimed mode.
	current, err := lines(snap, req.Kind)
	if err != nil {
		return nil, err
	}

	// 3. and 4. The claimed suggestion still exists as claimed.
	if req.SuggestionIndex < 0 || req.SuggestionIndex >= len(current) {
		return nil, customError.WrapStaleSuggestion(fmt.Sprintf("index %d is out of range (%d suggestions)", req.SuggestionIndex, len(current)))
	}
	line := current[req.SuggestionIndex]
	if line.PairKey != pairKey {
		return nil, customError.WrapStaleSuggestion(fmt.Sprintf("suggestion %d now settles %s", line.Index, line.PairKey))
	}
	if !utils.WithinTolerance(line.Amount, req.Amount) {
		return nil, customError.WrapStaleSuggestion(fmt.Sprintf("suggestion %d is now %s", line.Index, line.Amount.StringFixed(utils.MoneyPlaces)))
	}

	// 5. Idempotency: one payment per suggestion.
	existing, err := s.PaymentRepo.ListByEventID(ctx, req.EventID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if match(existing, req.Kind, line) != nil {
		return nil, customError.WrapDuplicatePayment()
	}

	amountPaid := line.Amount
	if req.AmountPaid != nil {
		amountPaid = utils.RoundMoney(*req.AmountPaid)
	}

	payment := &domain.Payment{
		ID:                  uuid.New(),
		EventID:             req.EventID,
		Kind:                req.Kind,
		FromParticipantID:   line.FromID,
		ToParticipantID:     line.ToID,
		FromGroup:           line.FromGroup,
		ToGroup:             line.ToGroup,
		SuggestionAmount:    line.Amount,
		SuggestionIndex:     line.Index,
		PaidByParticipantID: payer.ID,
		AmountPaid:          amountPaid,
		PaidAt:              s.now().UTC(),
	}

	if err := s.PaymentRepo.Create(ctx, payment); err != nil {
		if errors.Is(err, customError.ErrDuplicatePayment) {
			return nil, customError.WrapDuplicatePayment()
		}
		return nil, customError.WrapDatabaseError(err)
	}

	return payment, nil
}

// ConfirmPayment is the creditor acknowledging receipt.
func (s *LedgerService) ConfirmPayment(ctx context.Context, req *domain.ConfirmPaymentRequest) (*domain.Payment, error) {
	payment, err := s.confirmPayment(ctx, req)
	if err != nil {
		s.observeFailure("confirm_payment", err)
		return nil, err
	}

	s.metrics.PaymentConfirmed(string(payment.Kind))
	s.logger.Info("payment confirmed",
		"event_id", payment.EventID,
		"payment_id", payment.ID,
		"confirmed_by", req.ParticipantID,
	)
	return payment, nil
}

func (s *LedgerService) confirmPayment(ctx context.Context, req *domain.ConfirmPaymentRequest) (*domain.Payment, error) {
	payment, err := s.loadPayment(ctx, req.EventID, req.PaymentID)
	if err != nil {
		return nil, err
	}

	snap, err := s.load(ctx, req.EventID, payment.Kind == domain.PaymentKindBetweenGroups)
	if err != nil {
		return nil, err
	}

	confirmer := snap.participant(req.ParticipantID)
	if confirmer == nil || !confirmer.OwnedBy(req.ActorUserID) {
		return nil, customError.WrapUnauthorized("caller does not act for the confirming participant")
	}

	credited, err := isCreditor(snap, payment, confirmer.ID)
	if err != nil {
		return nil, err
	}
	if !credited {
		return nil, customError.WrapUnauthorized("only the creditor can confirm a payment")
	}

	if payment.IsConfirmed() {
		return nil, customError.WrapInvalidState("payment is already confirmed")
	}

	at := s.now().UTC()
	if err := s.PaymentRepo.Confirm(ctx, payment.ID, confirmer.ID, at); err != nil {
		if errors.Is(err, customError.ErrInvalidState) {
			return nil, customError.WrapInvalidState("payment is already confirmed")
		}
		return nil, customError.WrapDatabaseError(err)
	}

	payment.ConfirmedByParticipantID = &confirmer.ID
	payment.ConfirmedAt = &at
	return payment, nil
}

// RevertPayment returns a confirmed payment to pending.
func (s *LedgerService) RevertPayment(ctx context.Context, req *domain.RevertPaymentRequest) (*domain.Payment, error) {
	payment, err := s.revertPayment(ctx, req)
	if err != nil {
		s.observeFailure("revert_payment", err)
		return nil, err
	}

	s.metrics.PaymentReverted(string(payment.Kind))
	s.logger.Info("payment confirmation reverted",
		"event_id", payment.EventID,
		"payment_id", payment.ID,
		"actor_user_id", req.ActorUserID,
	)
	return payment, nil
}

func (s *LedgerService) revertPayment(ctx context.Context, req *domain.RevertPaymentRequest) (*domain.Payment, error) {
	event, err := s.loadEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	payment, err := s.loadPayment(ctx, req.EventID, req.PaymentID)
	if err != nil {
		return nil, err
	}

	if !payment.IsConfirmed() || payment.ConfirmedByParticipantID == nil {
		return nil, customError.WrapInvalidState("payment is not confirmed")
	}

	if event.OwnerUserID != req.ActorUserID {
		roster, err := s.EventRepo.ListParticipants(ctx, req.EventID)
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}
		snap := &snapshot{event: event, roster: roster}
		confirmer := snap.participant(*payment.ConfirmedByParticipantID)
		if confirmer == nil || !confirmer.OwnedBy(req.ActorUserID) {
			return nil, customError.WrapUnauthorized("only the event owner or the confirmer can revert a confirmation")
		}
	}

	if err := s.PaymentRepo.Revert(ctx, payment.ID); err != nil {
		if errors.Is(err, customError.ErrInvalidState) {
			return nil, customError.WrapInvalidState("payment is not confirmed")
		}
		return nil, customError.WrapDatabaseError(err)
	}

	payment.ConfirmedByParticipantID = nil
	payment.ConfirmedAt = nil
	return payment, nil
}

// GetOverview pairs every current suggestion with the payment recorded for
// it, if any.
func (s *LedgerService) GetOverview(ctx context.Context, eventID int64, mode domain.PaymentKind) (*domain.SettlementOverview, error) {
	if !mode.Valid() {
		return nil, customError.WrapInvalidState("unknown settlement mode " + string(mode))
	}

	snap, err := s.load(ctx, eventID, mode == domain.PaymentKindBetweenGroups)
	if err != nil {
		return nil, err
	}

	current, err := lines(snap, mode)
	if err != nil {
		return nil, err
	}

	payments, err := s.PaymentRepo.ListByEventID(ctx, eventID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	overview := &domain.SettlementOverview{
		EventID:    eventID,
		Mode:       mode,
		Items:      make([]domain.OverviewItem, len(current)),
		AllSettled: true,
	}
	for i, line := range current {
		p := match(payments, mode, line)
		overview.Items[i] = domain.OverviewItem{Suggestion: line, Payment: p}
		if p == nil || !p.IsConfirmed() {
			overview.AllSettled = false
		}
	}

	return overview, nil
}

// IsAllSettled reports whether every current suggestion has a confirmed
// payment. No suggestions means settled.
func (s *LedgerService) IsAllSettled(ctx context.Context, eventID int64, mode domain.PaymentKind) (bool, error) {
	overview, err := s.GetOverview(ctx, eventID, mode)
	if err != nil {
		return false, err
	}
	return overview.AllSettled, nil
}

func (s *LedgerService) loadPayment(ctx context.Context, eventID int64, paymentID uuid.UUID) (*domain.Payment, error) {
	payment, err := s.PaymentRepo.GetByID(ctx, eventID, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapPaymentNotFound(paymentID.String())
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return payment, nil
}

// match finds the payment recorded for line: same mode, same pair and an
// amount within a cent. A confirmed payment wins over a pending one.
func match(payments []*domain.Payment, mode domain.PaymentKind, line domain.SettlementLine) *domain.Payment {
	var found *domain.Payment
	for _, p := range payments {
		if p.Kind != mode || p.PairKey() != line.PairKey {
			continue
		}
		if !utils.WithinTolerance(p.SuggestionAmount, line.Amount) {
			continue
		}
		if p.IsConfirmed() {
			return p
		}
		if found == nil {
			found = p
		}
	}
	return found
}

// isCreditor reports whether participantID sits on the receiving end of
// payment.
func isCreditor(snap *snapshot, payment *domain.Payment, participantID int64) (bool, error) {
	switch payment.Kind {
	case domain.PaymentKindIndividual:
		if payment.ToParticipantID == nil {
			return false, customError.WrapInvalidState("individual payment has no creditor")
		}
		return *payment.ToParticipantID == participantID, nil

	case domain.PaymentKindBetweenGroups:
		if payment.ToGroup == nil {
			return false, customError.WrapInvalidState("group payment has no credited group")
		}
		// The confirmer must settle through the credited group: the lone
		// participant of a virtual group, or a member accounted to a real one.
		ref, ok := balance.Membership(snap.roster, snap.groups)[participantID]
		return ok && ref == *payment.ToGroup, nil
	}

	return false, customError.WrapInvalidState(fmt.Sprintf("unknown payment kind %q", payment.Kind))
}
