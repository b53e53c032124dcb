package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	weeksPerMonth = decimal.NewFromInt(4)
	daysPerMonth  = decimal.NewFromInt(28)
	daysPerWeek   = decimal.NewFromInt(7)
)

// HierarchyReader gives the validator access to the budgets that cap a new amount.
type HierarchyReader interface {
	FindPrimary(ctx context.Context, userId int) (Budget, error)
	FindFirstByFrequency(ctx context.Context, userId int, frequency Frequency) (Budget, error)
}

type Validation struct {
	Valid   bool
	Message string
}

func valid() Validation {
	return Validation{Valid: true}
}

func invalid(format string, args ...any) Validation {
	return Validation{Valid: false, Message: fmt.Sprintf(format, args...)}
}

// Validator enforces the caps between monthly, weekly and daily budgets.
type Validator struct {
	reader HierarchyReader
}

func NewValidator(reader HierarchyReader) *Validator {
	return &Validator{reader: reader}
}

// Validate checks a budget amount for a user. It is used on creation and on amount edits; an invalid
// result is not an error, errors are reserved for failures reading the hierarchy.
func (v *Validator) Validate(ctx context.Context, userId int, frequency Frequency, amount decimal.Decimal, isPrimary bool) (Validation, error) {
	if !amount.IsPositive() {
		return invalid("amount must be greater than 0"), nil
	}
	if !amount.Equal(amount.Truncate(2)) {
		return invalid("amount must have at most 2 decimal places"), nil
	}

	primary, hasPrimary, err := optional(func() (Budget, error) { return v.reader.FindPrimary(ctx, userId) })
	if err != nil {
		return Validation{}, err
	}

	if isPrimary {
		if frequency != Monthly {
			return invalid("the primary budget must be monthly"), nil
		}
		if hasPrimary {
			return invalid("a primary budget already exists"), nil
		}
		return valid(), nil
	}

	switch frequency {
	case Weekly:
		if hasPrimary {
			limit := primary.InitialAmount.Div(weeksPerMonth)
			if amount.GreaterThan(limit) {
				return invalid("weekly budget cannot exceed a quarter of the primary budget (max %s)", limit.StringFixed(2)), nil
			}
		}
	case Daily:
		if hasPrimary {
			limit := primary.InitialAmount.Div(daysPerMonth)
			if amount.GreaterThan(limit) {
				return invalid("daily budget cannot exceed 1/28 of the primary budget (max %s)", limit.StringFixed(2)), nil
			}
		}
		weekly, hasWeekly, err := optional(func() (Budget, error) { return v.reader.FindFirstByFrequency(ctx, userId, Weekly) })
		if err != nil {
			return Validation{}, err
		}
		if hasWeekly {
			limit := weekly.Amount.Div(daysPerWeek)
			if amount.GreaterThan(limit) {
				return invalid("daily budget cannot exceed 1/7 of the weekly budget (max %s)", limit.StringFixed(2)), nil
			}
		}
	}
	return valid(), nil
}

// Cap returns the largest amount a new budget of the given frequency may have, false when nothing caps it.
func (v *Validator) Cap(ctx context.Context, userId int, frequency Frequency) (decimal.Decimal, bool, error) {
	var limits []decimal.Decimal
	primary, hasPrimary, err := optional(func() (Budget, error) { return v.reader.FindPrimary(ctx, userId) })
	if err != nil {
		return decimal.Zero, false, err
	}
	switch frequency {
	case Weekly:
		if hasPrimary {
			limits = append(limits, primary.InitialAmount.Div(weeksPerMonth))
		}
	case Daily:
		if hasPrimary {
			limits = append(limits, primary.InitialAmount.Div(daysPerMonth))
		}
		weekly, hasWeekly, err := optional(func() (Budget, error) { return v.reader.FindFirstByFrequency(ctx, userId, Weekly) })
		if err != nil {
			return decimal.Zero, false, err
		}
		if hasWeekly {
			limits = append(limits, weekly.Amount.Div(daysPerWeek))
		}
	}
	if len(limits) == 0 {
		return decimal.Zero, false, nil
	}
	return decimal.Min(limits[0], limits[1:]...), true, nil
}

func optional(lookup func() (Budget, error)) (Budget, bool, error) {
	b, err := lookup()
	if errors.Is(err, ErrBudgetNotFound) {
		return Budget{}, false, nil
	}
	if err != nil {
		return Budget{}, false, err
	}
	return b, true, nil
}
