package day

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pocket/pocket/internal/rest"
	"github.com/pocket/pocket/internal/utils"
	"github.com/pocket/pocket/pkg/user"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type DayDTO struct {
	Date             string          `json:"date"`
	InitialPocket    decimal.Decimal `json:"initialPocket"`
	BudgetsAvailable decimal.Decimal `json:"budgetsAvailable"`
	Gains            decimal.Decimal `json:"gains"`
	Expenses         decimal.Decimal `json:"expenses"`
	FinalPocket      decimal.Decimal `json:"finalPocket"`
	Locked           bool            `json:"locked"`
}

type Handler struct {
	reconciler *Reconciler
}

func NewHandler(reconciler *Reconciler) *Handler {
	return &Handler{reconciler: reconciler}
}

// Get godoc
// @Summary Rollup of a day: pocket at the start and at the end, gains and expenses
// @Tags Day
// @Produce json
// @Param date path string true "YYYY-MM-DD"
// @Success 200 {object} DayDTO
// @Router /api/day/{date} [get]
// @Security XUserId
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userId, date, ok := h.params(w, r)
	if !ok {
		return
	}
	d, err := h.reconciler.GetDayRollup(r.Context(), userId, date)
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(d))
}

func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	userId, date, ok := h.params(w, r)
	if !ok {
		return
	}
	log.Debugf("Locking day %s", date.Format(utils.DateLayout))
	d, err := h.reconciler.Lock(r.Context(), userId, date)
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(d))
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) (int, time.Time, bool) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		writeError(w, err)
		return 0, time.Time{}, false
	}
	date, err := utils.ParseDate(mux.Vars(r)["date"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "date must be in YYYY-MM-DD format")
		return 0, time.Time{}, false
	}
	return userId, date, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrNoUser):
		rest.WriteError(w, http.StatusForbidden, "user not found")
	case errors.Is(err, ErrDayNotFound):
		rest.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDayLocked):
		rest.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log.Errorf("day request failed: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func toDTO(d Day) DayDTO {
	return DayDTO{
		Date:             d.Date.Format(utils.DateLayout),
		InitialPocket:    d.InitialPocket,
		BudgetsAvailable: d.BudgetsAvailable,
		Gains:            d.Gains,
		Expenses:         d.Expenses,
		FinalPocket:      d.FinalPocket,
		Locked:           d.Locked,
	}
}
