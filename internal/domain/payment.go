package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentKind is the settlement mode a payment answers.
type PaymentKind string

const (
	PaymentKindIndividual    PaymentKind = "individual"
	PaymentKindBetweenGroups PaymentKind = "between_groups"
)

func (k PaymentKind) Valid() bool {
	return k == PaymentKindIndividual || k == PaymentKindBetweenGroups
}

// Payment is a self-reported settlement of one suggestion. It is pending
// until the creditor confirms it.
type Payment struct {
	ID                       uuid.UUID       `json:"id" db:"id"`
	EventID                  int64           `json:"event_id" db:"event_id"`
	Kind                     PaymentKind     `json:"kind" db:"kind"`
	FromParticipantID        *int64          `json:"from_participant_id,omitempty" db:"from_participant_id"`
	ToParticipantID          *int64          `json:"to_participant_id,omitempty" db:"to_participant_id"`
	FromGroup                *GroupRef       `json:"from_group,omitempty" db:"from_group"`
	ToGroup                  *GroupRef       `json:"to_group,omitempty" db:"to_group"`
	SuggestionAmount         decimal.Decimal `json:"suggestion_amount" db:"suggestion_amount"`
	SuggestionIndex          int             `json:"suggestion_index" db:"suggestion_index"`
	PaidByParticipantID      int64           `json:"paid_by_participant_id" db:"paid_by_participant_id"`
	AmountPaid               decimal.Decimal `json:"amount_paid" db:"amount_paid"`
	PaidAt                   time.Time       `json:"paid_at" db:"paid_at"`
	ConfirmedByParticipantID *int64          `json:"confirmed_by_participant_id,omitempty" db:"confirmed_by_participant_id"`
	ConfirmedAt              *time.Time      `json:"confirmed_at,omitempty" db:"confirmed_at"`
}

// IsConfirmed reports whether the creditor acknowledged the payment.
func (p *Payment) IsConfirmed() bool {
	return p.ConfirmedAt != nil
}

// PairKey identifies the debtor/creditor pair the payment settles. It is
// empty when the identifiers required by Kind are missing.
func (p *Payment) PairKey() string {
	switch p.Kind {
	case PaymentKindIndividual:
		if p.FromParticipantID == nil || p.ToParticipantID == nil {
			return ""
		}
		return participantPairKey(*p.FromParticipantID, *p.ToParticipantID)
	case PaymentKindBetweenGroups:
		if p.FromGroup == nil || p.ToGroup == nil {
			return ""
		}
		return groupPairKey(*p.FromGroup, *p.ToGroup)
	}
	return ""
}

func participantPairKey(from, to int64) string {
	return "p:" + strconv.FormatInt(from, 10) + ">p:" + strconv.FormatInt(to, 10)
}

func groupPairKey(from, to GroupRef) string {
	return from.String() + ">" + to.String()
}

// Suggestion is one transfer of the flat settlement plan.
type Suggestion struct {
	Index     int             `json:"index"`
	FromID    int64           `json:"from_id"`
	ToID      int64           `json:"to_id"`
	Amount    decimal.Decimal `json:"amount"`
	FromLabel string          `json:"from_label"`
	ToLabel   string          `json:"to_label"`
}

func (s Suggestion) PairKey() string {
	return participantPairKey(s.FromID, s.ToID)
}

// GroupSuggestion is one transfer of the group-aware settlement plan.
type GroupSuggestion struct {
	Index     int             `json:"index"`
	FromGroup GroupRef        `json:"from_group"`
	ToGroup   GroupRef        `json:"to_group"`
	Amount    decimal.Decimal `json:"amount"`
	FromLabel string          `json:"from_label"`
	ToLabel   string          `json:"to_label"`
}

func (s GroupSuggestion) PairKey() string {
	return groupPairKey(s.FromGroup, s.ToGroup)
}

// SettlementLine is the mode-independent view of a suggestion used for
// matching payments.
type SettlementLine struct {
	// Shared by both modes.
	Index     int             `json:"index"`
	PairKey   string          `json:"-"`
	Amount    decimal.Decimal `json:"amount"`
	FromLabel string          `json:"from_label"`
	ToLabel   string          `json:"to_label"`

	// Exactly one of these pairs is set, depending on the mode.
	FromID    *int64    `json:"from_id,omitempty"`
	ToID      *int64    `json:"to_id,omitempty"`
	FromGroup *GroupRef `json:"from_group,omitempty"`
	ToGroup   *GroupRef `json:"to_group,omitempty"`
}

func (s Suggestion) Line() SettlementLine {
	from, to := s.FromID, s.ToID
	return SettlementLine{
		Index:     s.Index,
		PairKey:   s.PairKey(),
		Amount:    s.Amount,
		FromLabel: s.FromLabel,
		ToLabel:   s.ToLabel,
		FromID:    &from,
		ToID:      &to,
	}
}

func (s GroupSuggestion) Line() SettlementLine {
	from, to := s.FromGroup, s.ToGroup
	return SettlementLine{
		Index:     s.Index,
		PairKey:   s.PairKey(),
		Amount:    s.Amount,
		FromLabel: s.FromLabel,
		ToLabel:   s.ToLabel,
		FromGroup: &from,
		ToGroup:   &to,
	}
}

// DTOs for requests and responses

type MarkPaidRequest struct {
	EventID             int64            `json:"-"`
	ActorUserID         int64            `json:"-"`
	Kind                PaymentKind      `json:"kind" validate:"required,oneof=individual between_groups"`
	SuggestionIndex     int              `json:"suggestion_index" validate:"gte=0"`
	FromParticipantID   *int64           `json:"from_participant_id,omitempty"`
	ToParticipantID     *int64           `json:"to_participant_id,omitempty"`
	FromGroup           *GroupRef        `json:"from_group,omitempty"`
	ToGroup             *GroupRef        `json:"to_group,omitempty"`
	Amount              decimal.Decimal  `json:"amount" validate:"decimal_gt=0"`
	AmountPaid          *decimal.Decimal `json:"amount_paid,omitempty" validate:"omitempty,decimal_gt=0"`
	PaidByParticipantID int64            `json:"paid_by_participant_id" validate:"required,gt=0"`
}

// PairKey mirrors Payment.PairKey for the claimed identifiers.
func (r *MarkPaidRequest) PairKey() string {
	p := Payment{
		Kind:              r.Kind,
		FromParticipantID: r.FromParticipantID,
		ToParticipantID:   r.ToParticipantID,
		FromGroup:         r.FromGroup,
		ToGroup:           r.ToGroup,
	}
	return p.PairKey()
}

type ConfirmPaymentRequest struct {
	EventID       int64     `json:"-"`
	PaymentID     uuid.UUID `json:"-"`
	ActorUserID   int64     `json:"-"`
	ParticipantID int64     `json:"participant_id" validate:"required,gt=0"`
}

type RevertPaymentRequest struct {
	EventID     int64     `json:"-"`
	PaymentID   uuid.UUID `json:"-"`
	ActorUserID int64     `json:"-"`
}

// OverviewItem pairs a current suggestion with the payment matched to it.
type OverviewItem struct {
	Suggestion SettlementLine `json:"suggestion"`
	Payment    *Payment       `json:"payment,omitempty"`
}

type SettlementOverview struct {
	EventID    int64          `json:"event_id"`
	Mode       PaymentKind    `json:"mode"`
	Items      []OverviewItem `json:"items"`
	AllSettled bool           `json:"all_settled"`
}

// SettlementReminder is published for events that still have open transfers.
type SettlementReminder struct {
	EventID           int64           `json:"event_id"`
	EventName         string          `json:"event_name"`
	Mode              PaymentKind     `json:"mode"`
	OutstandingCount  int             `json:"outstanding_count"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
}
