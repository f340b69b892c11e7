package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is the container every participant, expense and payment belongs to.
type Event struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	OwnerUserID int64     `json:"owner_user_id" db:"owner_user_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Participant is one identity inside an event. UserID links it to an
// account; a single user may own several participants.
type Participant struct {
	ID      int64  `json:"id" db:"id"`
	EventID int64  `json:"event_id" db:"event_id"`
	Name    string `json:"name" db:"name"`
	UserID  *int64 `json:"user_id,omitempty" db:"user_id"`
}

// OwnedBy reports whether the participant is linked to the given user.
func (p *Participant) OwnedBy(userID int64) bool {
	return p.UserID != nil && *p.UserID == userID
}

// Group is an explicit sub-group of participants within an event.
type Group struct {
	ID        int64   `json:"id" db:"id"`
	EventID   int64   `json:"event_id" db:"event_id"`
	Name      string  `json:"name" db:"name"`
	MemberIDs []int64 `json:"member_ids" db:"-"`
}

// Expense is a single payment made on behalf of the event. A nil PayerID
// marks a placeholder that is not accounted yet.
type Expense struct {
	ID          int64           `json:"id" db:"id"`
	EventID     int64           `json:"event_id" db:"event_id"`
	Description string          `json:"description" db:"description"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	PayerID     *int64          `json:"payer_id,omitempty" db:"payer_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	Shares      []Share         `json:"shares" db:"-"`
}

// Share is the part of an expense owed by one participant.
type Share struct {
	ExpenseID     int64           `json:"-" db:"expense_id"`
	ParticipantID int64           `json:"participant_id" db:"participant_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
}

// DTOs for requests and responses

type ShareRequest struct {
	ParticipantID int64           `json:"participant_id" validate:"required,gt=0"`
	Amount        decimal.Decimal `json:"amount" validate:"decimal_gte=0"`
}

type CreateExpenseRequest struct {
	EventID     int64           `json:"-"`
	ActorUserID int64           `json:"-"`
	Description string          `json:"description" validate:"required,max=255"`
	Amount      decimal.Decimal `json:"amount" validate:"decimal_gt=0"`
	PayerID     *int64          `json:"payer_id,omitempty" validate:"omitempty,gt=0"`
	Shares      []ShareRequest  `json:"shares" validate:"required,min=1,dive"`
}

type CreateExpenseResponse struct {
	Expense *Expense        `json:"expense"`
	Changes []BalanceChange `json:"changes"`
}
