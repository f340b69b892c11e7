package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/expense-ledger/internal/domain"
	"github.com/segyhp/expense-ledger/internal/repository/mocks"
	customError "github.com/segyhp/expense-ledger/pkg/errors"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func i64(v int64) *int64 { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// abcRoster is three participants owned by users 1, 2 and 3.
func abcRoster() []*domain.Participant {
	return []*domain.Participant{
		{ID: 1, EventID: 1, Name: "A", UserID: i64(1)},
		{ID: 2, EventID: 1, Name: "B", UserID: i64(2)},
		{ID: 3, EventID: 1, Name: "C", UserID: i64(3)},
	}
}

// dinner is A paying 90 split evenly between A, B and C.
func dinner() []*domain.Expense {
	return []*domain.Expense{{
		ID: 1, EventID: 1, Description: "Dinner", Amount: dec("90"), PayerID: i64(1),
		Shares: []domain.Share{
			{ParticipantID: 1, Amount: dec("30")},
			{ParticipantID: 2, Amount: dec("30")},
			{ParticipantID: 3, Amount: dec("30")},
		},
	}}
}

func newMockedService() (*LedgerService, *mocks.MockEventRepository, *mocks.MockExpenseRepository, *mocks.MockPaymentRepository) {
	eventRepo := &mocks.MockEventRepository{}
	expenseRepo := &mocks.MockExpenseRepository{}
	paymentRepo := &mocks.MockPaymentRepository{}
	svc := NewLedgerService(eventRepo, expenseRepo, paymentRepo, nil, nil, quietLogger)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc, eventRepo, expenseRepo, paymentRepo
}

func markBtoA() *domain.MarkPaidRequest {
	return &domain.MarkPaidRequest{
		EventID:             1,
		ActorUserID:         2,
		Kind:                domain.PaymentKindIndividual,
		SuggestionIndex:     0,
		FromParticipantID:   i64(2),
		ToParticipantID:     i64(1),
		Amount:              dec("30"),
		PaidByParticipantID: 2,
	}
}

func TestMarkAsPaid(t *testing.T) {
	tests := []struct {
		name         string
		modify       func(*domain.MarkPaidRequest)
		setupMocks   func(*mocks.MockEventRepository, *mocks.MockExpenseRepository, *mocks.MockPaymentRepository)
		expectedErr  error
		expectedCode string
		validate     func(*testing.T, *domain.Payment)
	}{
		{
			name: "Success - pending payment for first suggestion",
			setupMocks: func(er *mocks.MockEventRepository, xr *mocks.MockExpenseRepository, pr *mocks.MockPaymentRepository) {
				er.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1, OwnerUserID: 100}, nil)
				er.On("ListParticipants", mock.Anything, int64(1)).Return(abcRoster(), nil)
				xr.On("ListByEventID", mock.Anything, int64(1)).Return(dinner(), nil)
				pr.On("ListByEventID", mock.Anything, int64(1)).Return([]*domain.Payment{}, nil)
				pr.On("Create", mock.Anything, mock.MatchedBy(func(p *domain.Payment) bool {
					return p.PairKey() == "p:2>p:1" && p.SuggestionAmount.Equal(dec("30")) && !p.IsConfirmed()
				})).Return(nil)
			},
			validate: func(t *testing.T, p *domain.Payment) {
				assert.NotEqual(t, uuid.Nil, p.ID)
				assert.Equal(t, 0, p.SuggestionIndex)
				assert.Equal(t, int64(2), p.PaidByParticipantID)
				assert.True(t, p.AmountPaid.Equal(dec("30")))
				assert.Nil(t, p.ConfirmedAt)
			},
		},
		{
			name: "Success - event owner records on behalf of the debtor",
			modify: func(r *domain.MarkPaidRequest) {
				r.ActorUserID = 100
				paid := dec("29.999")
				r.AmountPaid = &paid
			},
			setupMocks: func(er *mocks.MockEventRepository, xr *mocks.MockExpenseRepository, pr *mocks.MockPaymentRepository) {
				er.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1, OwnerUserID: 100}, nil)
				er.On("ListParticipants", mock.Anything, int64(1)).Return(abcRoster(), nil)
				xr.On("ListByEventID", mock.Anything, int64(1)).Return(dinner(), nil)
				pr.On("ListByEventID", mock.Anything, int64(1)).Return(nil, nil)
				pr.On("Create", mock.Anything, mock.Anything).Return(nil)
			},
			validate: func(t *testing.T, p *domain.Payment) {
				assert.True(t, p.AmountPaid.Equal(dec("30.00")))
			},
		},
		{
			name: "Failure - event does not exist",
			setupMocks: func(er *mocks.MockEventRepository, xr *mocks.MockExpenseRepository, pr *mocks.MockPaymentRepository) {
				er.On("GetByID", mock.Anything, int64(1)).Return(nil, sql.ErrNoRows)
			},
			expectedErr: customError.ErrNotFound,
		},
		{
			name: "Failure - empty roster",
			setupMocks: func(er *mocks.MockEventRepository, xr *mocks.MockExpenseRepository, pr *mocks.MockPaymentRepository) {
				er.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1}, nil)
				er.On("ListParticipants", mock.Anything, int64(1)).Return([]*domain.Participant{}, nil)
			},
			expectedErr: customError.ErrNotFound,
		},
		{
			name: "Failure - database error loading expenses",
			setupMocks: func(er *mocks.MockEventRepository, xr *mocks.MockExpenseRepository, pr *mocks.MockPaymentRepository) {
				er.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1}, nil)
				er.On("ListParticipants", mock.Anything, int64(1)).Return(abcRoster(), nil)
				xr.On("ListByEventID", mock.Anything, int64(1)).Return(nil, errors.New("connection refused"))
			},
			expectedCode: customError.ErrCodeDatabaseError,
		},
		{
			name:   "Failure - payer is not part of the event",
			modify: func(r *domain.MarkPaidRequest) { r.PaidByParticipantID = 42 },
			setupMocks: func(er *mocks.MockEventRepository, xr *mocks.MockExpenseRepository, pr *mocks.MockPaymentRepository) {
				er.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1, OwnerUserID: 100}, nil)
				er.On("ListParticipants", mock.Anything, int64(1)).Return(abcRoster(), nil)
				xr.On("ListByEventID", mock.Anything, int64(1)).Return(dinner(), nil)
			},
			expectedErr: customError.ErrUnauthorized,
		},
		{
			name:   "Failure - caller does not own the payer",
			modify: func(r *domain.MarkPaidRequest) { r.ActorUserID = 3 },
			setupMocks: func(er *mocks.MockEventRepository, xr *mocks.MockExpenseRepository, pr *mocks.MockPaymentRepository) {
				er.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1, OwnerUserID: 100}, nil)
				er.On("ListParticipants", mock.Anything, int64(1)).Return(abcRoster(), nil)
				xr.On("ListByEventID", mock.Anything, int64(1)).Return(dinner(), nil)
			},
			expectedErr: customError.ErrUnauthorized,
		},
		{
			name: "Failure - group kind with participant identifiers",
			modify: func(r *domain.MarkPaidRequest) {
				r.Kind = domain.PaymentKindBetweenGroups
			},
			setupMocks: func(er *mocks.MockEventRepository, xr *mocks.MockExpenseRepository, pr *mocks.MockPaymentRepository) {
				er.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1, OwnerUserID: 100}, nil)
				er.On("ListParticipants", mock.Anything, int64(1)).Return(abcRoster(), nil)
				er.On("ListGroups", mock.Anything, int64(1)).Return([]*domain.Group{}, nil)
				xr.On("ListByEventID", mock.Anything, int64(1)).Return(dinner(), nil)
			},
			expectedErr: customError.ErrInvalidState,
		},
		{
			name: "Failure - negative amount paid",
			modify: func(r *domain.MarkPaidRequest) {
				paid := dec("-500")
				r.AmountPaid = &paid
			},
			setupMocks: func(er *mocks.MockEventRepository, xr *mocks.MockExpenseRepository, pr *mocks.MockPaymentRepository) {
				er.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1, OwnerUserID: 100}, nil)
				er.On("ListParticipants", mock.Anything, int64(1)).Return(abcRoster(), nil)
				xr.On("ListByEventID", mock.Anything, int64(1)).Return(dinner(), nil)
			},
			expectedErr: customError.ErrInvalidState,
		},
		{
			name: "Failure - amount paid rounds to zero",
			modify: func(r *domain.MarkPaidRequest) {
				paid := dec("0.004")
				r.AmountPaid = &paid
			},
			setupMocks: func(er *mocks.MockEventRepository, xr *mocks.MockExpenseRepository, pr *mocks.MockPaymentRepository) {
				er.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1, OwnerUserID: 100}, nil)
				er.On("ListParticipants", mock.Anything, int64(1)).Return(abcRoster(), nil)
				xr.On("ListByEventID", mock.Anything, int64(1)).Return(dinner(), nil)
			},
			expectedErr: customError.ErrInvalidState,
		},
		{
			name:   "Failure - index out of range",
			modify: func(r *domain.MarkPaidRequest) { r.SuggestionIndex = 2 },
			setupMocks: func(er *mocks.MockEventRepository, xr *mocks.MockExpenseRepository, pr *mocks.MockPaymentRepository) {
				er.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1, OwnerUserID: 100}, nil)
				er.On("ListParticipants", mock.Anything, int64(1)).Return(abcRoster(), nil)
				xr.On("ListByEventID", mock.Anything, int64(1)).Return(dinner(), nil)
			},
			expectedErr: customError.ErrStaleSuggestion,
		},
		{
			name:   "Failure - pair no longer at that index",
			modify: func(r *domain.MarkPaidRequest) { r.SuggestionIndex = 1 },
			setupMocks: func(er *mocks.MockEventRepository, xr *mocks.MockExpenseRepository, pr *mocks.MockPaymentRepository) {
				er.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1, OwnerUserID: 100}, nil)
				er.On("ListParticipants", mock.Anything, int64(1)).Return(abcRoster(), nil)
				xr.On("ListByEventID", mock.Anything, int64(1)).Return(dinner(), nil)
			},
			expectedErr: customError.ErrStaleSuggestion,
		},
		{
			name:   "Failure - amount moved by more than a cent",
			modify: func(r *domain.MarkPaidRequest) { r.Amount = dec("30.01") },
			setupMocks: func(er *mocks.MockEventRepository, xr *mocks.MockExpenseRepository, pr *mocks.MockPaymentRepository) {
				er.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1, OwnerUserID: 100}, nil)
				er.On("ListParticipants", mock.Anything, int64(1)).Return(abcRoster(), nil)
				xr.On("ListByEventID", mock.Anything, int64(1)).Return(dinner(), nil)
			},
			expectedErr: customError.ErrStaleSuggestion,
		},
		{
			name: "Failure - payment already recorded",
			setupMocks: func(er *mocks.MockEventRepository, xr *mocks.MockExpenseRepository, pr *mocks.MockPaymentRepository) {
				er.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1, OwnerUserID: 100}, nil)
				er.On("ListParticipants", mock.Anything, int64(1)).Return(abcRoster(), nil)
				xr.On("ListByEventID", mock.Anything, int64(1)).Return(dinner(), nil)
				pr.On("ListByEventID", mock.Anything, int64(1)).Return([]*domain.Payment{{
					ID: uuid.New(), EventID: 1, Kind: domain.PaymentKindIndividual,
					FromParticipantID: i64(2), ToParticipantID: i64(1), SuggestionAmount: dec("30.00"),
				}}, nil)
			},
			expectedErr: customError.ErrDuplicatePayment,
		},
		{
			name: "Failure - concurrent insert wins the race",
			setupMocks: func(er *mocks.MockEventRepository, xr *mocks.MockExpenseRepository, pr *mocks.MockPaymentRepository) {
				er.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1, OwnerUserID: 100}, nil)
				er.On("ListParticipants", mock.Anything, int64(1)).Return(abcRoster(), nil)
				xr.On("ListByEventID", mock.Anything, int64(1)).Return(dinner(), nil)
				pr.On("ListByEventID", mock.Anything, int64(1)).Return([]*domain.Payment{}, nil)
				pr.On("Create", mock.Anything, mock.Anything).Return(customError.ErrDuplicatePayment)
			},
			expectedErr:  customError.ErrDuplicatePayment,
			expectedCode: customError.ErrCodeDuplicatePayment,
		},
		{
			name: "Failure - database error on insert",
			setupMocks: func(er *mocks.MockEventRepository, xr *mocks.MockExpenseRepository, pr *mocks.MockPaymentRepository) {
				er.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1, OwnerUserID: 100}, nil)
				er.On("ListParticipants", mock.Anything, int64(1)).Return(abcRoster(), nil)
				xr.On("ListByEventID", mock.Anything, int64(1)).Return(dinner(), nil)
				pr.On("ListByEventID", mock.Anything, int64(1)).Return([]*domain.Payment{}, nil)
				pr.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))
			},
			expectedCode: customError.ErrCodeDatabaseError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			svc, eventRepo, expenseRepo, paymentRepo := newMockedService()
			tt.setupMocks(eventRepo, expenseRepo, paymentRepo)

			req := markBtoA()
			if tt.modify != nil {
				tt.modify(req)
			}

			// Act
			payment, err := svc.MarkAsPaid(context.Background(), req)

			// Assert
			if tt.expectedErr == nil && tt.expectedCode == "" {
				require.NoError(t, err)
				require.NotNil(t, payment)
				if tt.validate != nil {
					tt.validate(t, payment)
				}
			} else {
				require.Error(t, err)
				assert.Nil(t, payment)
				if tt.expectedErr != nil {
					assert.ErrorIs(t, err, tt.expectedErr)
				}
				if tt.expectedCode != "" {
					assert.Equal(t, tt.expectedCode, customError.CodeOf(err))
				}
			}

			eventRepo.AssertExpectations(t)
			expenseRepo.AssertExpectations(t)
			paymentRepo.AssertExpectations(t)
		})
	}
}

func TestConfirmPayment(t *testing.T) {
	paymentID := uuid.New()
	pending := func() *domain.Payment {
		return &domain.Payment{
			ID: paymentID, EventID: 1, Kind: domain.PaymentKindIndividual,
			FromParticipantID: i64(2), ToParticipantID: i64(1), SuggestionAmount: dec("30"),
		}
	}

	tests := []struct {
		name        string
		req         domain.ConfirmPaymentRequest
		payment     func() *domain.Payment
		paymentErr  error
		confirmErr  error
		loadsRoster bool
		confirms    bool
		expectedErr error
	}{
		{
			name:        "Success - creditor confirms",
			req:         domain.ConfirmPaymentRequest{ParticipantID: 1, ActorUserID: 1},
			payment:     pending,
			loadsRoster: true,
			confirms:    true,
		},
		{
			name:        "Failure - payment not found",
			req:         domain.ConfirmPaymentRequest{ParticipantID: 1, ActorUserID: 1},
			paymentErr:  sql.ErrNoRows,
			expectedErr: customError.ErrNotFound,
		},
		{
			name:        "Failure - debtor tries to confirm",
			req:         domain.ConfirmPaymentRequest{ParticipantID: 2, ActorUserID: 2},
			payment:     pending,
			loadsRoster: true,
			expectedErr: customError.ErrUnauthorized,
		},
		{
			name:        "Failure - caller does not own the creditor",
			req:         domain.ConfirmPaymentRequest{ParticipantID: 1, ActorUserID: 3},
			payment:     pending,
			loadsRoster: true,
			expectedErr: customError.ErrUnauthorized,
		},
		{
			name: "Failure - already confirmed",
			req:  domain.ConfirmPaymentRequest{ParticipantID: 1, ActorUserID: 1},
			payment: func() *domain.Payment {
				p := pending()
				at := time.Now()
				p.ConfirmedAt = &at
				p.ConfirmedByParticipantID = i64(1)
				return p
			},
			loadsRoster: true,
			expectedErr: customError.ErrInvalidState,
		},
		{
			name:        "Failure - lost the confirm race",
			req:         domain.ConfirmPaymentRequest{ParticipantID: 1, ActorUserID: 1},
			payment:     pending,
			loadsRoster: true,
			confirms:    true,
			confirmErr:  customError.ErrInvalidState,
			expectedErr: customError.ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, eventRepo, expenseRepo, paymentRepo := newMockedService()

			if tt.payment != nil {
				paymentRepo.On("GetByID", mock.Anything, int64(1), paymentID).Return(tt.payment(), nil)
			} else {
				paymentRepo.On("GetByID", mock.Anything, int64(1), paymentID).Return(nil, tt.paymentErr)
			}
			if tt.loadsRoster {
				eventRepo.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1, OwnerUserID: 100}, nil)
				eventRepo.On("ListParticipants", mock.Anything, int64(1)).Return(abcRoster(), nil)
				expenseRepo.On("ListByEventID", mock.Anything, int64(1)).Return(dinner(), nil)
			}
			if tt.confirms {
				paymentRepo.On("Confirm", mock.Anything, paymentID, tt.req.ParticipantID, mock.AnythingOfType("time.Time")).Return(tt.confirmErr)
			}

			req := tt.req
			req.EventID = 1
			req.PaymentID = paymentID

			payment, err := svc.ConfirmPayment(context.Background(), &req)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, payment)
			} else {
				require.NoError(t, err)
				assert.True(t, payment.IsConfirmed())
				assert.Equal(t, tt.req.ParticipantID, *payment.ConfirmedByParticipantID)
			}
			paymentRepo.AssertExpectations(t)
			eventRepo.AssertExpectations(t)
		})
	}
}

func TestRevertPayment(t *testing.T) {
	paymentID := uuid.New()
	confirmedAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	confirmed := func() *domain.Payment {
		return &domain.Payment{
			ID: paymentID, EventID: 1, Kind: domain.PaymentKindIndividual,
			FromParticipantID: i64(2), ToParticipantID: i64(1), SuggestionAmount: dec("30"),
			ConfirmedByParticipantID: i64(1), ConfirmedAt: &confirmedAt,
		}
	}

	tests := []struct {
		name        string
		actor       int64
		payment     func() *domain.Payment
		loadsRoster bool
		reverts     bool
		revertErr   error
		expectedErr error
	}{
		{name: "Success - event owner", actor: 100, payment: confirmed, reverts: true},
		{name: "Success - confirmer's user", actor: 1, payment: confirmed, loadsRoster: true, reverts: true},
		{name: "Failure - debtor", actor: 2, payment: confirmed, loadsRoster: true, expectedErr: customError.ErrUnauthorized},
		{
			name:  "Failure - still pending",
			actor: 100,
			payment: func() *domain.Payment {
				p := confirmed()
				p.ConfirmedAt, p.ConfirmedByParticipantID = nil, nil
				return p
			},
			expectedErr: customError.ErrInvalidState,
		},
		{name: "Failure - reverted concurrently", actor: 100, payment: confirmed, reverts: true, revertErr: customError.ErrInvalidState, expectedErr: customError.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, eventRepo, _, paymentRepo := newMockedService()

			eventRepo.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1, OwnerUserID: 100}, nil)
			paymentRepo.On("GetByID", mock.Anything, int64(1), paymentID).Return(tt.payment(), nil)
			if tt.loadsRoster {
				eventRepo.On("ListParticipants", mock.Anything, int64(1)).Return(abcRoster(), nil)
			}
			if tt.reverts {
				paymentRepo.On("Revert", mock.Anything, paymentID).Return(tt.revertErr)
			}

			payment, err := svc.RevertPayment(context.Background(), &domain.RevertPaymentRequest{
				EventID: 1, PaymentID: paymentID, ActorUserID: tt.actor,
			})

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
				assert.False(t, payment.IsConfirmed())
				assert.Nil(t, payment.ConfirmedByParticipantID)
			}
			paymentRepo.AssertExpectations(t)
			eventRepo.AssertExpectations(t)
		})
	}
}

func TestGetBalances_RosterIsRequired(t *testing.T) {
	svc, eventRepo, _, _ := newMockedService()
	eventRepo.On("GetByID", mock.Anything, int64(5)).Return(&domain.Event{ID: 5}, nil)
	eventRepo.On("ListParticipants", mock.Anything, int64(5)).Return(nil, nil)

	balances, err := svc.GetBalances(context.Background(), 5)
	assert.Nil(t, balances)
	assert.ErrorIs(t, err, customError.ErrNotFound)
}

func TestGetOverview_UnknownMode(t *testing.T) {
	svc, _, _, _ := newMockedService()

	_, err := svc.GetOverview(context.Background(), 1, domain.PaymentKind("weekly"))
	assert.ErrorIs(t, err, customError.ErrInvalidState)
}

func TestListPayments_EmptyIsNotNil(t *testing.T) {
	svc, eventRepo, _, paymentRepo := newMockedService()
	eventRepo.On("GetByID", mock.Anything, int64(1)).Return(&domain.Event{ID: 1}, nil)
	paymentRepo.On("ListByEventID", mock.Anything, int64(1)).Return(nil, nil)

	payments, err := svc.ListPayments(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, payments)
	assert.Empty(t, payments)
}
