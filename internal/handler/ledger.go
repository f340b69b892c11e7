package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/segyhp/expense-ledger/internal/domain"
	"github.com/segyhp/expense-ledger/internal/middleware"
	customError "github.com/segyhp/expense-ledger/pkg/errors"
	"github.com/segyhp/expense-ledger/pkg/response"
)

// Ledger is the part of the service the HTTP layer drives.
type Ledger interface {
	GetBalances(ctx context.Context, eventID int64) ([]domain.Balance, error)
	GetGroupBalances(ctx context.Context, eventID int64) ([]domain.GroupBalance, error)
	GetSuggestions(ctx context.Context, eventID int64) ([]domain.Suggestion, error)
	GetGroupSuggestions(ctx context.Context, eventID int64) ([]domain.GroupSuggestion, error)
	GetOverview(ctx context.Context, eventID int64, mode domain.PaymentKind) (*domain.SettlementOverview, error)
	IsAllSettled(ctx context.Context, eventID int64, mode domain.PaymentKind) (bool, error)
	RecordExpense(ctx context.Context, req *domain.CreateExpenseRequest) (*domain.CreateExpenseResponse, error)
	ListPayments(ctx context.Context, eventID int64) ([]*domain.Payment, error)
	MarkAsPaid(ctx context.Context, req *domain.MarkPaidRequest) (*domain.Payment, error)
	ConfirmPayment(ctx context.Context, req *domain.ConfirmPaymentRequest) (*domain.Payment, error)
	RevertPayment(ctx context.Context, req *domain.RevertPaymentRequest) (*domain.Payment, error)
}

type LedgerHandler struct {
	service   Ledger
	validator *validator.Validate
}

func NewLedgerHandler(service Ledger) *LedgerHandler {
	return &LedgerHandler{
		service:   service,
		validator: newValidator(),
	}
}

// newValidator knows how to compare decimal fields: decimal_gt=0 and
// decimal_gte=0 read the parameter as a decimal.
func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	compare := func(accept func(cmp int) bool) validator.Func {
		return func(fl validator.FieldLevel) bool {
			value, err := decimal.NewFromString(fl.Field().String())
			if err != nil {
				return false
			}
			bound, err := decimal.NewFromString(fl.Param())
			if err != nil {
				return false
			}
			return accept(value.Cmp(bound))
		}
	}
	_ = v.RegisterValidation("decimal_gt", compare(func(cmp int) bool { return cmp > 0 }))
	_ = v.RegisterValidation("decimal_gte", compare(func(cmp int) bool { return cmp >= 0 }))

	return v
}

// RegisterRoutes mounts the ledger API on r.
func (h *LedgerHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/events/{eventId}/balances", h.GetBalances).Methods(http.MethodGet)
	r.HandleFunc("/events/{eventId}/group-balances", h.GetGroupBalances).Methods(http.MethodGet)
	r.HandleFunc("/events/{eventId}/suggestions", h.GetSuggestions).Methods(http.MethodGet)
	r.HandleFunc("/events/{eventId}/overview", h.GetOverview).Methods(http.MethodGet)
	r.HandleFunc("/events/{eventId}/settled", h.IsAllSettled).Methods(http.MethodGet)
	r.HandleFunc("/events/{eventId}/expenses", h.RecordExpense).Methods(http.MethodPost)
	r.HandleFunc("/events/{eventId}/payments", h.ListPayments).Methods(http.MethodGet)
	r.HandleFunc("/events/{eventId}/payments", h.MarkAsPaid).Methods(http.MethodPost)
	r.HandleFunc("/events/{eventId}/payments/{paymentId}/confirm", h.ConfirmPayment).Methods(http.MethodPost)
	r.HandleFunc("/events/{eventId}/payments/{paymentId}/revert", h.RevertPayment).Methods(http.MethodPost)
}

func (h *LedgerHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}

	balances, err := h.service.GetBalances(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, balances)
}

func (h *LedgerHandler) GetGroupBalances(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}

	balances, err := h.service.GetGroupBalances(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, balances)
}

// GetSuggestions serves ?mode=individual (default) or ?mode=between_groups.
func (h *LedgerHandler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	mode, ok := modeParam(w, r)
	if !ok {
		return
	}

	var (
		suggestions interface{}
		err         error
	)
	if mode == domain.PaymentKindBetweenGroups {
		suggestions, err = h.service.GetGroupSuggestions(r.Context(), eventID)
	} else {
		suggestions, err = h.service.GetSuggestions(r.Context(), eventID)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, suggestions)
}

func (h *LedgerHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	mode, ok := modeParam(w, r)
	if !ok {
		return
	}

	overview, err := h.service.GetOverview(r.Context(), eventID, mode)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, overview)
}

func (h *LedgerHandler) IsAllSettled(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	mode, ok := modeParam(w, r)
	if !ok {
		return
	}

	settled, err := h.service.IsAllSettled(r.Context(), eventID, mode)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, map[string]interface{}{
		"event_id":    eventID,
		"mode":        mode,
		"all_settled": settled,
	})
}

func (h *LedgerHandler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	var req domain.CreateExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.EventID = eventID
	req.ActorUserID = actor

	resp, err := h.service.RecordExpense(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Created(w, resp)
}

func (h *LedgerHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}

	payments, err := h.service.ListPayments(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, payments)
}

func (h *LedgerHandler) MarkAsPaid(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	var req domain.MarkPaidRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.EventID = eventID
	req.ActorUserID = actor

	payment, err := h.service.MarkAsPaid(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Created(w, payment)
}

func (h *LedgerHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	paymentID, ok := paymentIDParam(w, r)
	if !ok {
		return
	}
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	var req domain.ConfirmPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.EventID = eventID
	req.PaymentID = paymentID
	req.ActorUserID = actor

	payment, err := h.service.ConfirmPayment(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, payment)
}

func (h *LedgerHandler) RevertPayment(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	paymentID, ok := paymentIDParam(w, r)
	if !ok {
		return
	}
	actor, ok := actorID(w, r)
	if !ok {
		return
	}

	payment, err := h.service.RevertPayment(r.Context(), &domain.RevertPaymentRequest{
		EventID:     eventID,
		PaymentID:   paymentID,
		ActorUserID: actor,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, payment)
}

func (h *LedgerHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return false
	}
	return true
}

func eventIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	eventID, err := strconv.ParseInt(mux.Vars(r)["eventId"], 10, 64)
	if err != nil || eventID <= 0 {
		response.BadRequest(w, "Invalid event id", err)
		return 0, false
	}
	return eventID, true
}

func paymentIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	paymentID, err := uuid.Parse(mux.Vars(r)["paymentId"])
	if err != nil {
		response.BadRequest(w, "Invalid payment id", err)
		return uuid.Nil, false
	}
	return paymentID, true
}

func modeParam(w http.ResponseWriter, r *http.Request) (domain.PaymentKind, bool) {
	mode := domain.PaymentKind(r.URL.Query().Get("mode"))
	if mode == "" {
		return domain.PaymentKindIndividual, true
	}
	if !mode.Valid() {
		response.BadRequest(w, "mode must be individual or between_groups", nil)
		return "", false
	}
	return mode, true
}

func actorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "authentication required")
		return 0, false
	}
	return userID, true
}

// writeError maps ledger error kinds onto HTTP statuses. Conflicts and
// unprocessable requests carry the error code so clients can tell a stale
// suggestion from a duplicate.
func writeError(w http.ResponseWriter, err error) {
	var businessErr *customError.BusinessError
	if !errors.As(err, &businessErr) {
		response.InternalServerError(w, "Internal server error", nil)
		return
	}
	code := errors.New(businessErr.Code)

	switch {
	case errors.Is(err, customError.ErrNotFound):
		response.NotFound(w, businessErr.Message)
	case errors.Is(err, customError.ErrUnauthorized):
		response.Forbidden(w, businessErr.Message)
	case errors.Is(err, customError.ErrStaleSuggestion),
		errors.Is(err, customError.ErrDuplicatePayment):
		response.Conflict(w, businessErr.Message, code)
	case errors.Is(err, customError.ErrInvalidState),
		errors.Is(err, customError.ErrUnbalanced):
		response.UnprocessableEntity(w, businessErr.Message, code)
	default:
		response.InternalServerError(w, "Internal server error", nil)
	}
}
