package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pocket/pocket/internal/event_bus"
	"github.com/pocket/pocket/internal/utils"
	"github.com/pocket/pocket/pkg/budget"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// DayLockSource tells whether a day is closed for new transactions.
type DayLockSource interface {
	IsLocked(ctx context.Context, userId int, date time.Time) (bool, error)
}

// ExpenseRequest describes an expense. A zero Date means today.
type ExpenseRequest struct {
	UserId   int
	BudgetId int
	Amount   decimal.Decimal
	Comment  string
	Date     time.Time
}

type ExpenseResult struct {
	TransactionId uuid.UUID
	Affected      []Affected
}

// GainRequest describes a gain. BudgetId is optional, 0 records a gain without a budget.
type GainRequest struct {
	UserId   int
	BudgetId int
	Amount   decimal.Decimal
	Comment  string
	Date     time.Time
}

type GainResult struct {
	TransactionId uuid.UUID
}

// Engine records expenses and gains. An expense is deducted from its budget and from the budget directly
// above it: daily from weekly, weekly from the primary monthly budget. Gains are recorded without
// changing any balance.
type Engine struct {
	repo    Repository
	applier *Applier
	locks   DayLockSource
	bus     *event_bus.EventBus
	clock   utils.Clock
}

func NewEngine(repo Repository, mode Mode, retries int, locks DayLockSource, bus *event_bus.EventBus, clock utils.Clock) *Engine {
	return &Engine{
		repo:    repo,
		applier: NewApplier(repo, mode, retries),
		locks:   locks,
		bus:     bus,
		clock:   clock,
	}
}

func (e *Engine) Mode() Mode {
	return e.applier.Mode()
}

func (e *Engine) ApplyExpense(ctx context.Context, req ExpenseRequest) (ExpenseResult, error) {
	if !validAmount(req.Amount) {
		return ExpenseResult{}, ErrInvalidAmount
	}
	date, err := e.openDate(ctx, req.UserId, req.Date)
	if err != nil {
		return ExpenseResult{}, err
	}

	target, err := e.repo.GetBudget(ctx, req.UserId, req.BudgetId)
	if err != nil {
		return ExpenseResult{}, err
	}
	cascade, err := e.cascadeSet(ctx, req.UserId, target)
	if err != nil {
		return ExpenseResult{}, err
	}

	steps := make([]Step, 0, len(cascade))
	for _, id := range cascade {
		steps = append(steps, Step{BudgetId: id, Delta: req.Amount.Neg()})
	}

	rule := RuleCascadeExpense
	if e.applier.Mode() == Fallback {
		rule = RuleCascadeExpenseFallback
	}
	transaction := e.newTransaction(req.UserId, target.Id, Expense, req.Amount, req.Comment, date)

	affected, err := e.applier.Apply(ctx, Mutation{
		UserId: req.UserId,
		Steps:  steps,
		Guard:  NonNegative,
		Record: func(ctx context.Context, store Store, affected []Affected) error {
			if err := e.ensureOpen(ctx, req.UserId, date); err != nil {
				return err
			}
			return record(ctx, store, transaction, rule, affected)
		},
	})
	if err != nil {
		log.Debugf("expense of %s on budget %d rejected: %v", req.Amount, target.Id, err)
		return ExpenseResult{}, err
	}

	e.publish(ctx, transaction)
	return ExpenseResult{TransactionId: transaction.Id, Affected: affected}, nil
}

func (e *Engine) ApplyGain(ctx context.Context, req GainRequest) (GainResult, error) {
	if !validAmount(req.Amount) {
		return GainResult{}, ErrInvalidAmount
	}
	date, err := e.openDate(ctx, req.UserId, req.Date)
	if err != nil {
		return GainResult{}, err
	}

	var steps []Step
	if req.BudgetId != 0 {
		if _, err := e.repo.GetBudget(ctx, req.UserId, req.BudgetId); err != nil {
			return GainResult{}, err
		}
		steps = append(steps, Step{BudgetId: req.BudgetId, Delta: decimal.Zero})
	}
	transaction := e.newTransaction(req.UserId, req.BudgetId, Gain, req.Amount, req.Comment, date)

	_, err = e.applier.Apply(ctx, Mutation{
		UserId: req.UserId,
		Steps:  steps,
		Guard:  NonNegative,
		Record: func(ctx context.Context, store Store, affected []Affected) error {
			if err := e.ensureOpen(ctx, req.UserId, date); err != nil {
				return err
			}
			return record(ctx, store, transaction, RuleGainToSavings, affected)
		},
	})
	if err != nil {
		return GainResult{}, err
	}

	e.publish(ctx, transaction)
	return GainResult{TransactionId: transaction.Id}, nil
}

// validAmount accepts positive amounts in whole cents, the precision every balance is stored with.
func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Truncate(2))
}

// GetRemaining returns the current amount of a budget, floored at zero.
func (e *Engine) GetRemaining(ctx context.Context, userId int, budgetId int) (decimal.Decimal, error) {
	b, err := e.repo.GetBudget(ctx, userId, budgetId)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Remaining(), nil
}

func (e *Engine) ListTransactions(ctx context.Context, userId int, date time.Time) ([]Transaction, error) {
	day := utils.DateOf(date)
	return e.repo.ListTransactions(ctx, userId, day, day)
}

func (e *Engine) ListJournal(ctx context.Context, userId int, limit int) ([]JournalEntry, error) {
	return e.repo.ListJournal(ctx, userId, limit)
}

func (e *Engine) openDate(ctx context.Context, userId int, date time.Time) (time.Time, error) {
	if date.IsZero() {
		date = e.clock.Now()
	}
	date = utils.DateOf(date)
	return date, e.ensureOpen(ctx, userId, date)
}

// ensureOpen fails with ErrDayLocked when the day is locked. It runs before the balances are read and again
// right before the transaction is written, so a lock taken in between rolls the mutation back.
func (e *Engine) ensureOpen(ctx context.Context, userId int, date time.Time) error {
	if e.locks == nil {
		return nil
	}
	locked, err := e.locks.IsLocked(ctx, userId, date)
	if err != nil {
		return fmt.Errorf("could not check day lock: %w", err)
	}
	if locked {
		return fmt.Errorf("%w: %s", ErrDayLocked, date.Format(utils.DateLayout))
	}
	return nil
}

// cascadeSet returns the ids of the target and of its direct parent. It never goes further up.
func (e *Engine) cascadeSet(ctx context.Context, userId int, target budget.Budget) ([]int, error) {
	var parent budget.Budget
	var err error
	switch target.Frequency {
	case budget.Daily:
		parent, err = e.weeklyParent(ctx, userId, target)
	case budget.Weekly:
		parent, err = e.repo.FindPrimary(ctx, userId)
	default:
		return []int{target.Id}, nil
	}
	if errors.Is(err, ErrBudgetNotFound) {
		return []int{target.Id}, nil
	}
	if err != nil {
		return nil, err
	}
	return []int{target.Id, parent.Id}, nil
}

func (e *Engine) weeklyParent(ctx context.Context, userId int, daily budget.Budget) (budget.Budget, error) {
	if daily.ParentId != 0 {
		parent, err := e.repo.GetBudget(ctx, userId, daily.ParentId)
		if err == nil && parent.Frequency == budget.Weekly {
			return parent, nil
		}
		if err != nil && !errors.Is(err, ErrBudgetNotFound) {
			return budget.Budget{}, err
		}
	}
	return e.repo.FindFirstByFrequency(ctx, userId, budget.Weekly)
}

func (e *Engine) newTransaction(userId int, budgetId int, txType TxType, amount decimal.Decimal, comment string, date time.Time) Transaction {
	return Transaction{
		Id:       uuid.New(),
		UserId:   userId,
		BudgetId: budgetId,
		Type:     txType,
		Amount:   amount,
		Comment:  comment,
		Date:     date,
		Time:     e.clock.Now().Format(utils.TimeLayout),
	}
}

func record(ctx context.Context, store Store, transaction Transaction, rule string, affected []Affected) error {
	if err := store.InsertTransaction(ctx, transaction); err != nil {
		return err
	}
	return store.InsertJournalEntry(ctx, JournalEntry{
		Id:            uuid.New(),
		UserId:        transaction.UserId,
		TxType:        transaction.Type,
		Amount:        transaction.Amount,
		Affected:      affected,
		RuleApplied:   rule,
		TransactionId: transaction.Id,
	})
}

// publish notifies subscribers, such as the day rollup. The transaction is already stored, so a failing
// subscriber is logged and does not fail the request.
func (e *Engine) publish(ctx context.Context, transaction Transaction) {
	if e.bus == nil {
		return
	}
	err := e.bus.Publish(event_bus.NewEvent(ctx, event_bus.TransactionRecordedEvent, event_bus.TransactionRecorded{
		UserId:        transaction.UserId,
		TransactionId: transaction.Id,
		Type:          string(transaction.Type),
		Date:          transaction.Date,
	}))
	if err != nil {
		log.Errorf("transaction %s recorded but subscribers failed: %v", transaction.Id, err)
	}
}
