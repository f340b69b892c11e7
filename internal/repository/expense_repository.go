package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/expense-ledger/internal/domain"
)

type expenseRepository struct {
	db *sqlx.DB
}

func NewExpenseRepository(db *sqlx.DB) ExpenseRepository {
	return &expenseRepository{db: db}
}

func (r *expenseRepository) ListByEventID(ctx context.Context, eventID int64) ([]*domain.Expense, error) {
	expenseQuery := `
		SELECT id, event_id, description, amount, payer_id, created_at
		FROM expenses
		WHERE event_id = $1
		ORDER BY id
	`

	var expenses []*domain.Expense
	if err := r.db.SelectContext(ctx, &expenses, expenseQuery, eventID); err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return expenses, nil
	}

	shareQuery := `
		SELECT s.expense_id, s.participant_id, s.amount
		FROM expense_shares s
		JOIN expenses e ON e.id = s.expense_id
		WHERE e.event_id = $1
		ORDER BY s.expense_id, s.participant_id
	`

	var shares []domain.Share
	if err := r.db.SelectContext(ctx, &shares, shareQuery, eventID); err != nil {
		return nil, err
	}

	byID := make(map[int64]*domain.Expense, len(expenses))
	for _, e := range expenses {
		byID[e.ID] = e
	}
	for _, s := range shares {
		if e, ok := byID[s.ExpenseID]; ok {
			e.Shares = append(e.Shares, s)
		}
	}

	return expenses, nil
}

func (r *expenseRepository) Create(ctx context.Context, expense *domain.Expense) error {
	expenseQuery := `
		INSERT INTO expenses (event_id, description, amount, payer_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	shareQuery := `
		INSERT INTO expense_shares (expense_id, participant_id, amount)
		VALUES ($1, $2, $3)
	`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, expenseQuery,
		expense.EventID,
		expense.Description,
		expense.Amount,
		expense.PayerID,
	).Scan(&expense.ID, &expense.CreatedAt)
	if err != nil {
		return err
	}

	for i := range expense.Shares {
		expense.Shares[i].ExpenseID = expense.ID
		_, err = tx.ExecContext(ctx, shareQuery,
			expense.ID,
			expense.Shares[i].ParticipantID,
			expense.Shares[i].Amount,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}
