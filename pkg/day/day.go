package day

import (
	"time"

	"github.com/shopspring/decimal"
)

// Day is the rollup of one user's transactions on one date.
// FinalPocket always equals InitialPocket + Gains - Expenses. InitialPocket is set when the day is created
// and never changes afterwards.
type Day struct {
	UserId           int
	Date             time.Time
	InitialPocket    decimal.Decimal
	BudgetsAvailable decimal.Decimal
	Gains            decimal.Decimal
	Expenses         decimal.Decimal
	FinalPocket      decimal.Decimal
	Locked           bool
	Updated          time.Time
}
