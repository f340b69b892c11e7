package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/segyhp/expense-ledger/internal/domain"
	customError "github.com/segyhp/expense-ledger/pkg/errors"
)

const uniqueViolation = pq.ErrorCode("23505")

const paymentColumns = `
	id, event_id, kind, from_participant_id, to_participant_id, from_group, to_group,
	suggestion_amount, suggestion_index, paid_by_participant_id, amount_paid, paid_at,
	confirmed_by_participant_id, confirmed_at
`

type paymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create inserts a pending payment. A concurrent insert for the same
// suggestion surfaces as ErrDuplicatePayment.
func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (id, event_id, kind, pair_key, from_participant_id, to_participant_id,
			from_group, to_group, suggestion_amount, suggestion_index, paid_by_participant_id,
			amount_paid, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.EventID,
		payment.Kind,
		payment.PairKey(),
		payment.FromParticipantID,
		payment.ToParticipantID,
		payment.FromGroup,
		payment.ToGroup,
		payment.SuggestionAmount,
		payment.SuggestionIndex,
		payment.PaidByParticipantID,
		payment.AmountPaid,
		payment.PaidAt,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return customError.ErrDuplicatePayment
	}

	return err
}

func (r *paymentRepository) GetByID(ctx context.Context, eventID int64, paymentID uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE id = $1 AND event_id = $2
	`

	var payment domain.Payment
	err := r.db.GetContext(ctx, &payment, query, paymentID, eventID)
	if err != nil {
		return nil, err
	}

	return &payment, nil
}

func (r *paymentRepository) ListByEventID(ctx context.Context, eventID int64) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE event_id = $1
		ORDER BY paid_at, id
	`

	var payments []*domain.Payment
	err := r.db.SelectContext(ctx, &payments, query, eventID)
	if err != nil {
		return nil, err
	}

	return payments, nil
}

// Confirm only touches a pending row; losing a race yields ErrInvalidState.
func (r *paymentRepository) Confirm(ctx context.Context, paymentID uuid.UUID, participantID int64, at time.Time) error {
	query := `
		UPDATE payments
		SET confirmed_by_participant_id = $2, confirmed_at = $3
		WHERE id = $1 AND confirmed_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, paymentID, participantID, at)
	if err != nil {
		return err
	}

	return requireOneRow(result.RowsAffected())
}

// Revert only touches a confirmed row.
func (r *paymentRepository) Revert(ctx context.Context, paymentID uuid.UUID) error {
	query := `
		UPDATE payments
		SET confirmed_by_participant_id = NULL, confirmed_at = NULL
		WHERE id = $1 AND confirmed_at IS NOT NULL
	`

	result, err := r.db.ExecContext(ctx, query, paymentID)
	if err != nil {
		return err
	}

	return requireOneRow(result.RowsAffected())
}

func requireOneRow(affected int64, err error) error {
	if err != nil {
		return err
	}
	if affected == 0 {
		return customError.ErrInvalidState
	}
	return nil
}
