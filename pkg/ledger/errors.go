package ledger

import (
	"errors"

	"github.com/pocket/pocket/pkg/budget"
)

var (
	ErrBudgetNotFound  = budget.ErrBudgetNotFound
	ErrNegativeBalance = errors.New("operation would make a budget balance negative")

	// ErrConcurrencyConflict is transient: the operation was not applied and can be retried.
	ErrConcurrencyConflict = errors.New("budget was modified concurrently, retry the operation")
	ErrDayLocked           = errors.New("day is locked")
	ErrInvalidAmount       = errors.New("amount must be greater than 0")
)
