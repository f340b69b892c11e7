package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/expense-ledger/internal/domain"
)

// EventRepository defines the interface for event and roster reads
type EventRepository interface {
	// GetByID retrieves an event by its ID
	GetByID(ctx context.Context, eventID int64) (*domain.Event, error)

	// ListParticipants retrieves the roster of an event ordered by ID
	ListParticipants(ctx context.Context, eventID int64) ([]*domain.Participant, error)

	// ListGroups retrieves the sub-groups of an event with their members
	ListGroups(ctx context.Context, eventID int64) ([]*domain.Group, error)

	// ListEventIDs retrieves the IDs of every event
	ListEventIDs(ctx context.Context) ([]int64, error)
}

// ExpenseRepository defines the interface for expense data operations
type ExpenseRepository interface {
	// ListByEventID retrieves all expenses of an event, shares included
	ListByEventID(ctx context.Context, eventID int64) ([]*domain.Expense, error)

	// Create stores an expense and its shares in one transaction
	Create(ctx context.Context, expense *domain.Expense) error
}

// PaymentRepository defines the interface for payment data operations
type PaymentRepository interface {
	// Create creates a new pending payment record
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves a payment of an event
	GetByID(ctx context.Context, eventID int64, paymentID uuid.UUID) (*domain.Payment, error)

	// ListByEventID retrieves all payments of an event, oldest first
	ListByEventID(ctx context.Context, eventID int64) ([]*domain.Payment, error)

	// Confirm marks a pending payment as confirmed by participantID
	Confirm(ctx context.Context, paymentID uuid.UUID, participantID int64, at time.Time) error

	// Revert clears the confirmation of a confirmed payment
	Revert(ctx context.Context, paymentID uuid.UUID) error
}
