package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TxType string

const (
	Expense    TxType = "expense"
	Gain       TxType = "gain"
	Adjustment TxType = "adjustment"
)

// Journal rules
const (
	RuleCascadeExpense         = "cascade_expense"
	RuleCascadeExpenseFallback = "cascade_expense_fallback"
	RuleGainToSavings          = "gain_to_savings"
	RuleReconcilePrimary       = "reconcile_primary_current_amount"
)

// Transaction is an expense or a gain as entered by the user. Transactions are never updated.
type Transaction struct {
	Id     uuid.UUID
	UserId int

	// BudgetId is 0 when the transaction is not attached to a budget, or when its budget was deleted.
	BudgetId int

	Type    TxType
	Amount  decimal.Decimal
	Comment string
	Date    time.Time
	Time    string
	Created time.Time
}

// Affected is the balance of one budget before and after a journaled operation.
type Affected struct {
	BudgetId int             `json:"budgetId"`
	Before   decimal.Decimal `json:"before"`
	After    decimal.Decimal `json:"after"`
}

// JournalEntry is the audit record of every operation touching balances, including self-heal adjustments.
type JournalEntry struct {
	Id            uuid.UUID
	UserId        int
	TxType        TxType
	Amount        decimal.Decimal
	Affected      []Affected
	RuleApplied   string
	Meta          map[string]any
	TransactionId uuid.UUID
	Created       time.Time
}
