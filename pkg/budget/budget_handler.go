package budget

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pocket/pocket/internal/rest"
	"github.com/pocket/pocket/pkg/user"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type BudgetDTO struct {
	Id            int             `json:"id"`
	Name          string          `json:"name"`
	Frequency     Frequency       `json:"frequency"`
	IsPrimary     bool            `json:"isPrimary"`
	ParentId      int             `json:"parentId,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	InitialAmount decimal.Decimal `json:"initialAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
}

type CreateBudgetRequest struct {
	Name      string          `json:"name" validate:"required,max=100"`
	Frequency string          `json:"frequency" validate:"required,oneof=daily weekly monthly"`
	IsPrimary bool            `json:"isPrimary"`
	Amount    decimal.Decimal `json:"amount" validate:"amount"`
}

type UpdateBudgetRequest struct {
	Name      string          `json:"name" validate:"max=100"`
	Frequency string          `json:"frequency" validate:"omitempty,oneof=daily weekly monthly"`
	Amount    decimal.Decimal `json:"amount"`
}

type DeriveBudgetRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type ValidationDTO struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

type RemainingDTO struct {
	BudgetId  int             `json:"budgetId"`
	Remaining decimal.Decimal `json:"remaining"`
}

type BudgetHandler struct {
	budgetService BudgetService
}

func NewBudgetHandler(budgetService BudgetService) *BudgetHandler {
	return &BudgetHandler{budgetService}
}

// Create godoc
// @Summary Create a budget
// @Tags Budget
// @Accept json
// @Produce json
// @Param budget body CreateBudgetRequest true "Budget"
// @Success 201 {object} BudgetDTO
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/budget [post]
// @Security XUserId
func (handler *BudgetHandler) Create(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating new budget")
	var req CreateBudgetRequest
	if !rest.DecodeAndValidate(w, r, &req) {
		return
	}
	frequency, err := ParseFrequency(req.Frequency)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := handler.budgetService.Create(r.Context(), Budget{
		Name:      req.Name,
		Frequency: frequency,
		IsPrimary: req.IsPrimary,
		Amount:    req.Amount,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, BudgetToDTO(created))
}

// Derive godoc
// @Summary Allocate a weekly budget from a monthly one, or a daily budget from a weekly one
// @Tags Budget
// @Accept json
// @Produce json
// @Param budgetId path int true "Parent budget ID"
// @Param budget body DeriveBudgetRequest true "Derived budget"
// @Success 201 {object} BudgetDTO
// @Router /api/budget/{budgetId}/derive [post]
// @Security XUserId
func (handler *BudgetHandler) Derive(w http.ResponseWriter, r *http.Request) {
	parentId, ok := budgetIdFromPath(w, r)
	if !ok {
		return
	}
	log.Debugf("Deriving budget from %d", parentId)
	var req DeriveBudgetRequest
	if !rest.DecodeAndValidate(w, r, &req) {
		return
	}
	created, err := handler.budgetService.CreateDerived(r.Context(), parentId, req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, BudgetToDTO(created))
}

// GetAll godoc
// @Summary List budgets of the current user
// @Tags Budget
// @Produce json
// @Success 200 {array} BudgetDTO
// @Router /api/budget [get]
// @Security XUserId
func (handler *BudgetHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	budgets, err := handler.budgetService.GetAll(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	dtos := make([]BudgetDTO, 0, len(budgets))
	for _, b := range budgets {
		dtos = append(dtos, BudgetToDTO(b))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

func (handler *BudgetHandler) Get(w http.ResponseWriter, r *http.Request) {
	budgetId, ok := budgetIdFromPath(w, r)
	if !ok {
		return
	}
	b, err := handler.budgetService.Get(r.Context(), budgetId)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, BudgetToDTO(b))
}

// Update godoc
// @Summary Rename a budget or change its amount
// @Tags Budget
// @Accept json
// @Produce json
// @Param budgetId path int true "Budget ID"
// @Param budget body UpdateBudgetRequest true "Changes"
// @Success 200 {object} BudgetDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/budget/{budgetId} [put]
// @Security XUserId
func (handler *BudgetHandler) Update(w http.ResponseWriter, r *http.Request) {
	budgetId, ok := budgetIdFromPath(w, r)
	if !ok {
		return
	}
	log.Debugf("Updating budget %d", budgetId)
	var req UpdateBudgetRequest
	if !rest.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.Amount.IsNegative() {
		rest.WriteError(w, http.StatusBadRequest, "amount must be greater than 0")
		return
	}
	updated, err := handler.budgetService.Update(r.Context(), budgetId, Changes{
		Name:      req.Name,
		Amount:    req.Amount,
		Frequency: Frequency(req.Frequency),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, BudgetToDTO(updated))
}

func (handler *BudgetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	budgetId, ok := budgetIdFromPath(w, r)
	if !ok {
		return
	}
	if _, err := handler.budgetService.Delete(r.Context(), budgetId); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Remaining godoc
// @Summary Remaining amount of a budget, floored at zero
// @Tags Budget
// @Produce json
// @Param budgetId path int true "Budget ID"
// @Success 200 {object} RemainingDTO
// @Router /api/budget/{budgetId}/remaining [get]
// @Security XUserId
func (handler *BudgetHandler) Remaining(w http.ResponseWriter, r *http.Request) {
	budgetId, ok := budgetIdFromPath(w, r)
	if !ok {
		return
	}
	remaining, err := handler.budgetService.Remaining(r.Context(), budgetId)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, RemainingDTO{BudgetId: budgetId, Remaining: remaining})
}

// ValidateCreation godoc
// @Summary Check whether a budget could be created
// @Tags Budget
// @Produce json
// @Param frequency query string true "daily, weekly or monthly"
// @Param amount query string true "Amount"
// @Success 200 {object} ValidationDTO
// @Router /api/budget/validate [get]
// @Security XUserId
func (handler *BudgetHandler) ValidateCreation(w http.ResponseWriter, r *http.Request) {
	frequency, err := ParseFrequency(r.URL.Query().Get("frequency"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "amount must be a number")
		return
	}
	validation, err := handler.budgetService.ValidateCreation(r.Context(), frequency, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, ValidationDTO{Valid: validation.Valid, Message: validation.Message})
}

func budgetIdFromPath(w http.ResponseWriter, r *http.Request) (int, bool) {
	budgetId, err := strconv.Atoi(mux.Vars(r)["budgetId"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "invalid budget id")
		return 0, false
	}
	return budgetId, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrNoUser):
		rest.WriteError(w, http.StatusForbidden, "user not found")
	case errors.Is(err, ErrBudgetNotFound):
		rest.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrHierarchyViolation),
		errors.Is(err, ErrPrimaryExists),
		errors.Is(err, ErrFrequencyImmutable),
		errors.Is(err, ErrPrimaryAmountImmutable),
		errors.Is(err, ErrCannotDerive):
		rest.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		rest.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

func BudgetToDTO(b Budget) BudgetDTO {
	return BudgetDTO{
		Id:            b.Id,
		Name:          b.Name,
		Frequency:     b.Frequency,
		IsPrimary:     b.IsPrimary,
		ParentId:      b.ParentId,
		Amount:        b.Amount,
		InitialAmount: b.InitialAmount,
		CurrentAmount: b.CurrentAmount,
	}
}
