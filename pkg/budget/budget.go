package budget

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

func ParseFrequency(value string) (Frequency, error) {
	switch f := Frequency(value); f {
	case Daily, Weekly, Monthly:
		return f, nil
	default:
		return "", fmt.Errorf("unknown frequency %q", value)
	}
}

type Budget struct {
	Id        int
	UserId    int
	Name      string
	Frequency Frequency
	// IsPrimary marks the single monthly budget representing the user's income baseline.
	IsPrimary bool
	// ParentId is the budget this one was derived from, 0 when created directly.
	ParentId int
	// Amount is the nominal value shown to the user.
	Amount decimal.Decimal
	// InitialAmount is the baseline set at creation, never changed for the primary budget.
	InitialAmount decimal.Decimal
	// CurrentAmount is the running balance, the only source of what is left.
	CurrentAmount decimal.Decimal
	Created       time.Time
}

// Remaining returns the current amount floored at zero.
func (b Budget) Remaining() decimal.Decimal {
	if b.CurrentAmount.IsNegative() {
		return decimal.Zero
	}
	return b.CurrentAmount
}
