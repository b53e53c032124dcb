package ledger

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pocket/pocket/internal/rest"
	"github.com/pocket/pocket/internal/utils"
	"github.com/pocket/pocket/pkg/user"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const defaultJournalLimit = 50

type ExpenseRequestDTO struct {
	BudgetId int             `json:"budgetId" validate:"required,gt=0"`
	Amount   decimal.Decimal `json:"amount" validate:"amount"`
	Comment  string          `json:"comment" validate:"max=255"`
	Date     string          `json:"date" validate:"date"`
}

type GainRequestDTO struct {
	BudgetId int             `json:"budgetId" validate:"gte=0"`
	Amount   decimal.Decimal `json:"amount" validate:"amount"`
	Comment  string          `json:"comment" validate:"max=255"`
	Date     string          `json:"date" validate:"date"`
}

type ExpenseResultDTO struct {
	TransactionId uuid.UUID  `json:"transactionId"`
	Affected      []Affected `json:"affected"`
}

type GainResultDTO struct {
	TransactionId uuid.UUID `json:"transactionId"`
}

type TransactionDTO struct {
	Id       uuid.UUID       `json:"id"`
	BudgetId int             `json:"budgetId,omitempty"`
	Type     TxType          `json:"type"`
	Amount   decimal.Decimal `json:"amount"`
	Comment  string          `json:"comment"`
	Date     string          `json:"date"`
	Time     string          `json:"time"`
}

type JournalEntryDTO struct {
	Id            uuid.UUID       `json:"id"`
	TxType        TxType          `json:"txType"`
	Amount        decimal.Decimal `json:"amount"`
	Affected      []Affected      `json:"affected"`
	RuleApplied   string          `json:"ruleApplied"`
	Meta          map[string]any  `json:"meta,omitempty"`
	TransactionId *uuid.UUID      `json:"transactionId,omitempty"`
	Created       time.Time       `json:"created"`
}

type AvailableDTO struct {
	Date      string          `json:"date"`
	Available decimal.Decimal `json:"available"`
}

type Handler struct {
	engine       *Engine
	availability *Availability
	clock        utils.Clock
}

func NewHandler(engine *Engine, availability *Availability, clock utils.Clock) *Handler {
	return &Handler{engine: engine, availability: availability, clock: clock}
}

// Expense godoc
// @Summary Record an expense, deducted from the budget and its parent
// @Tags Ledger
// @Accept json
// @Produce json
// @Param expense body ExpenseRequestDTO true "Expense"
// @Success 201 {object} ExpenseResultDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 404 {object} rest.ErrorResponse
// @Failure 409 {object} rest.ErrorResponse
// @Router /api/ledger/expense [post]
// @Security XUserId
func (h *Handler) Expense(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var req ExpenseRequestDTO
	if !rest.DecodeAndValidate(w, r, &req) {
		return
	}
	log.Debugf("Recording expense of %s on budget %d", req.Amount, req.BudgetId)

	date, _ := optionalDate(req.Date)
	result, err := h.engine.ApplyExpense(r.Context(), ExpenseRequest{
		UserId:   userId,
		BudgetId: req.BudgetId,
		Amount:   req.Amount,
		Comment:  req.Comment,
		Date:     date,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, ExpenseResultDTO{TransactionId: result.TransactionId, Affected: result.Affected})
}

// Gain godoc
// @Summary Record a gain. Gains never change budget balances.
// @Tags Ledger
// @Accept json
// @Produce json
// @Param gain body GainRequestDTO true "Gain"
// @Success 201 {object} GainResultDTO
// @Router /api/ledger/gain [post]
// @Security XUserId
func (h *Handler) Gain(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var req GainRequestDTO
	if !rest.DecodeAndValidate(w, r, &req) {
		return
	}
	log.Debugf("Recording gain of %s", req.Amount)

	date, _ := optionalDate(req.Date)
	result, err := h.engine.ApplyGain(r.Context(), GainRequest{
		UserId:   userId,
		BudgetId: req.BudgetId,
		Amount:   req.Amount,
		Comment:  req.Comment,
		Date:     date,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, GainResultDTO{TransactionId: result.TransactionId})
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	date, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	transactions, err := h.engine.ListTransactions(r.Context(), userId, date)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]TransactionDTO, 0, len(transactions))
	for _, t := range transactions {
		dtos = append(dtos, TransactionDTO{
			Id:       t.Id,
			BudgetId: t.BudgetId,
			Type:     t.Type,
			Amount:   t.Amount,
			Comment:  t.Comment,
			Date:     t.Date.Format(utils.DateLayout),
			Time:     t.Time,
		})
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

func (h *Handler) Journal(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	limit := defaultJournalLimit
	if value := r.URL.Query().Get("limit"); value != "" {
		limit, err = strconv.Atoi(value)
		if err != nil || limit <= 0 {
			rest.WriteError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
	}
	entries, err := h.engine.ListJournal(r.Context(), userId, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]JournalEntryDTO, 0, len(entries))
	for _, entry := range entries {
		dto := JournalEntryDTO{
			Id:          entry.Id,
			TxType:      entry.TxType,
			Amount:      entry.Amount,
			Affected:    entry.Affected,
			RuleApplied: entry.RuleApplied,
			Meta:        entry.Meta,
			Created:     entry.Created,
		}
		if entry.TransactionId != uuid.Nil {
			transactionId := entry.TransactionId
			dto.TransactionId = &transactionId
		}
		dtos = append(dtos, dto)
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// Available godoc
// @Summary What is left of the primary budget in the month of the given date
// @Tags Ledger
// @Produce json
// @Param date query string false "YYYY-MM-DD, defaults to today"
// @Success 200 {object} AvailableDTO
// @Router /api/ledger/available [get]
// @Security XUserId
func (h *Handler) Available(w http.ResponseWriter, r *http.Request) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	date, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	available, err := h.availability.GetAvailableThisMonth(r.Context(), userId, date)
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, AvailableDTO{Date: date.Format(utils.DateLayout), Available: available})
}

func (h *Handler) dateParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	date, err := optionalDate(r.URL.Query().Get("date"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "date must be in YYYY-MM-DD format")
		return time.Time{}, false
	}
	if date.IsZero() {
		date = utils.DateOf(h.clock.Now())
	}
	return date, true
}

// optionalDate parses a YYYY-MM-DD value, returning the zero time for an empty one.
func optionalDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return utils.ParseDate(value)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrNoUser):
		rest.WriteError(w, http.StatusForbidden, "user not found")
	case errors.Is(err, ErrBudgetNotFound):
		rest.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNegativeBalance),
		errors.Is(err, ErrDayLocked),
		errors.Is(err, ErrInvalidAmount):
		rest.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConcurrencyConflict):
		rest.WriteError(w, http.StatusConflict, err.Error())
	default:
		log.Errorf("ledger request failed: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
