package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/pocket/pocket/pkg/user"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	ErrHierarchyViolation     = errors.New("budget hierarchy violation")
	ErrFrequencyImmutable     = errors.New("budget frequency cannot be changed")
	ErrPrimaryAmountImmutable = errors.New("primary budget amount cannot be changed")
	ErrCannotDerive           = errors.New("budgets can only be derived from monthly or weekly budgets")
)

type BudgetService interface {
	Create(ctx context.Context, budget Budget) (Budget, error)
	// CreateDerived allocates a new budget from a parent: a weekly one from a monthly budget, a daily one from a weekly budget.
	CreateDerived(ctx context.Context, parentId int, name string) (Budget, error)
	Get(ctx context.Context, id int) (Budget, error)
	GetAll(ctx context.Context) ([]Budget, error)
	Update(ctx context.Context, id int, changes Changes) (Budget, error)
	Delete(ctx context.Context, id int) (bool, error)
	Remaining(ctx context.Context, id int) (decimal.Decimal, error)
	ValidateCreation(ctx context.Context, frequency Frequency, amount decimal.Decimal) (Validation, error)
}

type BudgetServiceImpl struct {
	repo      BudgetRepo
	validator *Validator
}

func NewBudgetServiceImpl(repo BudgetRepo) *BudgetServiceImpl {
	return &BudgetServiceImpl{repo: repo, validator: NewValidator(repo)}
}

func (s *BudgetServiceImpl) Create(ctx context.Context, budget Budget) (Budget, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Budget{}, fmt.Errorf("failed to get current user: %w", err)
	}
	validation, err := s.validator.Validate(ctx, userId, budget.Frequency, budget.Amount, budget.IsPrimary)
	if err != nil {
		return Budget{}, err
	}
	if !validation.Valid {
		return Budget{}, fmt.Errorf("%w: %s", ErrHierarchyViolation, validation.Message)
	}

	budget.InitialAmount = budget.Amount
	budget.CurrentAmount = budget.Amount
	created, err := s.repo.Store(ctx, userId, budget)
	if err != nil {
		return Budget{}, err
	}
	log.Debugf("created %s budget %d for user %d", created.Frequency, created.Id, userId)
	return created, nil
}

func (s *BudgetServiceImpl) CreateDerived(ctx context.Context, parentId int, name string) (Budget, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Budget{}, fmt.Errorf("failed to get current user: %w", err)
	}
	parent, err := s.repo.Get(ctx, userId, parentId)
	if err != nil {
		return Budget{}, err
	}

	var frequency Frequency
	var share decimal.Decimal
	switch parent.Frequency {
	case Monthly:
		frequency = Weekly
		share = parent.InitialAmount.Div(weeksPerMonth)
	case Weekly:
		frequency = Daily
		share = parent.Amount.Div(daysPerWeek)
	default:
		return Budget{}, ErrCannotDerive
	}

	limit, capped, err := s.validator.Cap(ctx, userId, frequency)
	if err != nil {
		return Budget{}, err
	}
	if capped && share.GreaterThan(limit) {
		share = limit
	}

	return s.Create(ctx, Budget{
		Name:      name,
		Frequency: frequency,
		ParentId:  parent.Id,
		Amount:    share.Truncate(2),
	})
}

func (s *BudgetServiceImpl) Get(ctx context.Context, id int) (Budget, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Budget{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.Get(ctx, userId, id)
}

func (s *BudgetServiceImpl) GetAll(ctx context.Context) ([]Budget, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.GetAll(ctx, userId)
}

// Changes describes an edit of a budget. Zero values leave the field untouched.
type Changes struct {
	Name      string
	Amount    decimal.Decimal
	Frequency Frequency
}

// Update applies a rename and/or an amount change. Frequency and the primary flag are fixed at creation.
func (s *BudgetServiceImpl) Update(ctx context.Context, id int, changes Changes) (Budget, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Budget{}, fmt.Errorf("failed to get current user: %w", err)
	}
	existing, err := s.repo.Get(ctx, userId, id)
	if err != nil {
		return Budget{}, err
	}
	if changes.Frequency != "" && changes.Frequency != existing.Frequency {
		return Budget{}, ErrFrequencyImmutable
	}

	updated := existing
	if !changes.Amount.IsZero() && !changes.Amount.Equal(existing.Amount) {
		if existing.IsPrimary {
			return Budget{}, ErrPrimaryAmountImmutable
		}
		validation, err := s.validator.Validate(ctx, userId, existing.Frequency, changes.Amount, false)
		if err != nil {
			return Budget{}, err
		}
		if !validation.Valid {
			return Budget{}, fmt.Errorf("%w: %s", ErrHierarchyViolation, validation.Message)
		}
		updated, err = s.repo.UpdateAmount(ctx, userId, existing.Id, changes.Amount)
		if err != nil {
			return Budget{}, err
		}
	}

	if changes.Name != "" && changes.Name != existing.Name {
		renamed, err := s.repo.Rename(ctx, userId, existing.Id, changes.Name)
		if err != nil {
			return Budget{}, err
		}
		if !renamed {
			return Budget{}, ErrBudgetNotFound
		}
		updated.Name = changes.Name
	}
	return updated, nil
}

func (s *BudgetServiceImpl) Delete(ctx context.Context, id int) (bool, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get current user: %w", err)
	}

	deleted, err := s.repo.Delete(ctx, userId, id)
	if err != nil {
		return false, err
	}
	if !deleted {
		log.Warnf("budget not deleted, probably because it does not exist (%d) or the user (%d) is not the owner", id, userId)
		return false, ErrBudgetNotFound
	}
	return true, nil
}

func (s *BudgetServiceImpl) Remaining(ctx context.Context, id int) (decimal.Decimal, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Remaining(), nil
}

func (s *BudgetServiceImpl) ValidateCreation(ctx context.Context, frequency Frequency, amount decimal.Decimal) (Validation, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Validation{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.validator.Validate(ctx, userId, frequency, amount, false)
}
