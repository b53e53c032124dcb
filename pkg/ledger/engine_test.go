package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pocket/pocket/internal/event_bus"
	"github.com/pocket/pocket/internal/utils"
	"github.com/pocket/pocket/pkg/budget"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

var today = time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)

const userId = 1

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

type lockedDays map[string]bool

func (l lockedDays) IsLocked(ctx context.Context, userId int, date time.Time) (bool, error) {
	return l[date.Format(utils.DateLayout)], nil
}

type hierarchy struct {
	primary budget.Budget
	weekly  budget.Budget
	daily   budget.Budget
}

func seedHierarchy(repo *StubRepository, weeklyCurrent string, dailyCurrent string) hierarchy {
	primary := repo.AddBudget(budget.Budget{UserId: userId, Name: "Salary", Frequency: budget.Monthly, IsPrimary: true,
		Amount: d("400000"), CurrentAmount: d("400000")})
	weekly := repo.AddBudget(budget.Budget{UserId: userId, Name: "Week", Frequency: budget.Weekly, ParentId: primary.Id,
		Amount: d("100000"), CurrentAmount: d(weeklyCurrent)})
	daily := repo.AddBudget(budget.Budget{UserId: userId, Name: "Day", Frequency: budget.Daily, ParentId: weekly.Id,
		Amount: d("14285"), CurrentAmount: d(dailyCurrent)})
	return hierarchy{primary: primary, weekly: weekly, daily: daily}
}

func newTestEngine(repo Repository, mode Mode, locks DayLockSource) (*Engine, *event_bus.EventBus) {
	bus := event_bus.NewEventBus()
	clock := &utils.MockClock{FixedNow: today}
	return NewEngine(repo, mode, 3, locks, bus, clock), bus
}

var modes = []Mode{Transactional, Fallback}

func affectedOf(t *testing.T, affected []Affected, budgetId int) Affected {
	t.Helper()
	for _, a := range affected {
		if a.BudgetId == budgetId {
			return a
		}
	}
	t.Fatalf("budget %d not in affected %v", budgetId, affected)
	return Affected{}
}

func TestEngine_ApplyExpense_ExactBalance(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			// given
			repo := NewStubRepository()
			h := seedHierarchy(repo, "5000", "1500")
			engine, _ := newTestEngine(repo, mode, nil)

			// when
			result, err := engine.ApplyExpense(ctx, ExpenseRequest{UserId: userId, BudgetId: h.daily.Id, Amount: d("1500"), Comment: "lunch"})

			// then
			require.NoError(t, err)
			assert.True(t, repo.Budget(h.daily.Id).CurrentAmount.IsZero())
			assert.True(t, repo.Budget(h.weekly.Id).CurrentAmount.Equal(d("3500")))
			assert.True(t, repo.Budget(h.primary.Id).CurrentAmount.Equal(d("400000")), "monthly must not be touched by a daily expense")

			journal := repo.Journal()
			require.Len(t, journal, 1)
			entry := journal[0]
			assert.Len(t, entry.Affected, 2)
			for _, id := range []int{h.daily.Id, h.weekly.Id} {
				a := affectedOf(t, entry.Affected, id)
				assert.True(t, a.Before.Sub(a.After).Equal(d("1500")))
			}
			assert.Equal(t, Expense, entry.TxType)
			assert.Equal(t, result.TransactionId, entry.TransactionId)
			if mode == Fallback {
				assert.Equal(t, RuleCascadeExpenseFallback, entry.RuleApplied)
			} else {
				assert.Equal(t, RuleCascadeExpense, entry.RuleApplied)
			}

			transactions := repo.Transactions()
			require.Len(t, transactions, 1)
			assert.Equal(t, h.daily.Id, transactions[0].BudgetId)
			assert.Equal(t, "lunch", transactions[0].Comment)
			assert.Equal(t, utils.DateOf(today), transactions[0].Date)
			assert.Equal(t, "10:30:00", transactions[0].Time)
		})
	}
}

func TestEngine_ApplyExpense_RejectsNegativeBalance(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String()+" target", func(t *testing.T) {
			// given
			repo := NewStubRepository()
			h := seedHierarchy(repo, "5000", "1500")
			engine, _ := newTestEngine(repo, mode, nil)

			// when
			_, err := engine.ApplyExpense(ctx, ExpenseRequest{UserId: userId, BudgetId: h.daily.Id, Amount: d("1500.01")})

			// then
			assert.ErrorIs(t, err, ErrNegativeBalance)
			assert.True(t, repo.Budget(h.daily.Id).CurrentAmount.Equal(d("1500")))
			assert.True(t, repo.Budget(h.weekly.Id).CurrentAmount.Equal(d("5000")))
			assert.Empty(t, repo.Transactions())
			assert.Empty(t, repo.Journal())
		})

		t.Run(mode.String()+" parent", func(t *testing.T) {
			// given
			repo := NewStubRepository()
			h := seedHierarchy(repo, "1000", "1500")
			engine, _ := newTestEngine(repo, mode, nil)

			// when
			_, err := engine.ApplyExpense(ctx, ExpenseRequest{UserId: userId, BudgetId: h.daily.Id, Amount: d("1200")})

			// then
			assert.ErrorIs(t, err, ErrNegativeBalance)
			assert.True(t, repo.Budget(h.daily.Id).CurrentAmount.Equal(d("1500")), "no partial application")
			assert.True(t, repo.Budget(h.weekly.Id).CurrentAmount.Equal(d("1000")))
		})
	}
}

func TestEngine_ApplyExpense_CascadeDepth(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			repo := NewStubRepository()
			h := seedHierarchy(repo, "5000", "1500")
			engine, _ := newTestEngine(repo, mode, nil)

			// weekly expense goes to the primary
			weekly, err := engine.ApplyExpense(ctx, ExpenseRequest{UserId: userId, BudgetId: h.weekly.Id, Amount: d("100")})
			require.NoError(t, err)
			assert.Len(t, weekly.Affected, 2)
			assert.True(t, repo.Budget(h.weekly.Id).CurrentAmount.Equal(d("4900")))
			assert.True(t, repo.Budget(h.primary.Id).CurrentAmount.Equal(d("399900")))

			// monthly expense stays on the monthly budget
			monthly, err := engine.ApplyExpense(ctx, ExpenseRequest{UserId: userId, BudgetId: h.primary.Id, Amount: d("900")})
			require.NoError(t, err)
			assert.Len(t, monthly.Affected, 1)
			assert.True(t, repo.Budget(h.primary.Id).CurrentAmount.Equal(d("399000")))
			assert.True(t, repo.Budget(h.weekly.Id).CurrentAmount.Equal(d("4900")))
		})
	}
}

func TestEngine_ApplyExpense_DailyWithoutParentUsesFirstWeekly(t *testing.T) {
	// given
	repo := NewStubRepository()
	weekly := repo.AddBudget(budget.Budget{UserId: userId, Frequency: budget.Weekly, Amount: d("700"), CurrentAmount: d("700")})
	repo.AddBudget(budget.Budget{UserId: userId, Frequency: budget.Weekly, Amount: d("700"), CurrentAmount: d("700")})
	daily := repo.AddBudget(budget.Budget{UserId: userId, Frequency: budget.Daily, Amount: d("100"), CurrentAmount: d("100")})
	engine, _ := newTestEngine(repo, Transactional, nil)

	// when
	result, err := engine.ApplyExpense(ctx, ExpenseRequest{UserId: userId, BudgetId: daily.Id, Amount: d("40")})

	// then
	require.NoError(t, err)
	assert.Len(t, result.Affected, 2)
	assert.True(t, repo.Budget(weekly.Id).CurrentAmount.Equal(d("660")))
}

func TestEngine_ApplyExpense_Validation(t *testing.T) {
	repo := NewStubRepository()
	h := seedHierarchy(repo, "5000", "1500")
	engine, _ := newTestEngine(repo, Transactional, lockedDays{"2025-03-13": true})

	t.Run("should reject non positive amount", func(t *testing.T) {
		_, err := engine.ApplyExpense(ctx, ExpenseRequest{UserId: userId, BudgetId: h.daily.Id, Amount: d("0")})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("should reject amounts below a cent", func(t *testing.T) {
		for _, amount := range []string{"0.005", "0.004", "10.001"} {
			_, expenseErr := engine.ApplyExpense(ctx, ExpenseRequest{UserId: userId, BudgetId: h.daily.Id, Amount: d(amount)})
			_, gainErr := engine.ApplyGain(ctx, GainRequest{UserId: userId, Amount: d(amount)})

			assert.ErrorIs(t, expenseErr, ErrInvalidAmount, amount)
			assert.ErrorIs(t, gainErr, ErrInvalidAmount, amount)
		}
		assert.True(t, repo.Budget(h.daily.Id).CurrentAmount.Equal(d("1500")))
		assert.Empty(t, repo.Transactions())
	})

	t.Run("should reject unknown budget", func(t *testing.T) {
		_, err := engine.ApplyExpense(ctx, ExpenseRequest{UserId: userId, BudgetId: 999, Amount: d("1")})
		assert.ErrorIs(t, err, ErrBudgetNotFound)
	})

	t.Run("should not find budget of another user", func(t *testing.T) {
		_, err := engine.ApplyExpense(ctx, ExpenseRequest{UserId: 2, BudgetId: h.daily.Id, Amount: d("1")})
		assert.ErrorIs(t, err, ErrBudgetNotFound)
	})

	t.Run("should reject expense on a locked day", func(t *testing.T) {
		_, err := engine.ApplyExpense(ctx, ExpenseRequest{UserId: userId, BudgetId: h.daily.Id, Amount: d("1"),
			Date: time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)})

		assert.ErrorIs(t, err, ErrDayLocked)
		assert.True(t, repo.Budget(h.daily.Id).CurrentAmount.Equal(d("1500")))
	})

	t.Run("should reject gain on a locked day", func(t *testing.T) {
		_, err := engine.ApplyGain(ctx, GainRequest{UserId: userId, Amount: d("1"),
			Date: time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)})

		assert.ErrorIs(t, err, ErrDayLocked)
		assert.Empty(t, repo.Transactions())
	})
}

func TestEngine_ApplyGain(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			// given
			repo := NewStubRepository()
			h := seedHierarchy(repo, "5000", "1500")
			engine, _ := newTestEngine(repo, mode, nil)

			// when
			withBudget, err := engine.ApplyGain(ctx, GainRequest{UserId: userId, BudgetId: h.daily.Id, Amount: d("250"), Comment: "refund"})
			require.NoError(t, err)
			_, err = engine.ApplyGain(ctx, GainRequest{UserId: userId, Amount: d("1000")})
			require.NoError(t, err)

			// then
			assert.True(t, repo.Budget(h.daily.Id).CurrentAmount.Equal(d("1500")))
			assert.True(t, repo.Budget(h.weekly.Id).CurrentAmount.Equal(d("5000")))
			assert.True(t, repo.Budget(h.primary.Id).CurrentAmount.Equal(d("400000")))

			journal := repo.Journal()
			require.Len(t, journal, 2)
			assert.Equal(t, RuleGainToSavings, journal[0].RuleApplied)
			assert.Equal(t, withBudget.TransactionId, journal[0].TransactionId)
			require.Len(t, journal[0].Affected, 1)
			assert.True(t, journal[0].Affected[0].Before.Equal(journal[0].Affected[0].After))
			assert.Empty(t, journal[1].Affected)
			assert.Len(t, repo.Transactions(), 2)
		})
	}
}

func TestEngine_PublishesRecordedTransaction(t *testing.T) {
	// given
	repo := NewStubRepository()
	h := seedHierarchy(repo, "5000", "1500")
	engine, bus := newTestEngine(repo, Transactional, nil)
	var received []event_bus.TransactionRecorded
	event_bus.SubscribeTyped(bus, event_bus.TransactionRecordedEvent, func(e event_bus.EventT[event_bus.TransactionRecorded]) error {
		received = append(received, e.Data)
		return errors.New("subscriber failure does not fail the expense")
	})

	// when
	result, err := engine.ApplyExpense(ctx, ExpenseRequest{UserId: userId, BudgetId: h.daily.Id, Amount: d("10")})

	// then
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, result.TransactionId, received[0].TransactionId)
	assert.Equal(t, "expense", received[0].Type)
	assert.Equal(t, utils.DateOf(today), received[0].Date)
}

func TestEngine_ConcurrentExpenses(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			// given
			repo := NewStubRepository()
			weekly := repo.AddBudget(budget.Budget{UserId: userId, Frequency: budget.Weekly, Amount: d("1000"), CurrentAmount: d("1000")})
			engine, _ := newTestEngine(repo, mode, nil)

			// when
			var wg sync.WaitGroup
			start := make(chan struct{})
			errs := make([]error, 2)
			for i := range errs {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, errs[i] = engine.ApplyExpense(ctx, ExpenseRequest{UserId: userId, BudgetId: weekly.Id, Amount: d("600")})
				}()
			}
			close(start)
			wg.Wait()

			// then
			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				assert.True(t, errors.Is(err, ErrNegativeBalance) || errors.Is(err, ErrConcurrencyConflict), err.Error())
			}
			assert.Equal(t, 1, succeeded)
			assert.True(t, repo.Budget(weekly.Id).CurrentAmount.Equal(d("400")))
			assert.Len(t, repo.Transactions(), 1)
		})
	}
}

func TestEngine_Fallback_CompensatesLostRace(t *testing.T) {
	// given
	repo := NewStubRepository()
	h := seedHierarchy(repo, "5000", "1500")
	engine, _ := newTestEngine(repo, Fallback, nil)
	raced := false
	repo.BeforeConditionalUpdate = func(budgetId int) {
		// budgets are updated in id order, so the weekly budget is already deducted when the daily one is drained
		if budgetId == h.daily.Id && !raced {
			raced = true
			require.NoError(t, repo.SetCurrentAmount(ctx, userId, h.daily.Id, d("100")))
		}
	}

	// when
	_, err := engine.ApplyExpense(ctx, ExpenseRequest{UserId: userId, BudgetId: h.daily.Id, Amount: d("1000")})

	// then
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.True(t, repo.Budget(h.weekly.Id).CurrentAmount.Equal(d("5000")), "weekly update must be compensated")
	assert.True(t, repo.Budget(h.daily.Id).CurrentAmount.Equal(d("100")))
	assert.Empty(t, repo.Transactions())
	assert.Empty(t, repo.Journal())
}

func TestEngine_FailedRecordLeavesBalancesUntouched(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			// given
			repo := NewStubRepository()
			h := seedHierarchy(repo, "5000", "1500")
			repo.FailInsertTransaction = errors.New("disk full")
			engine, _ := newTestEngine(repo, mode, nil)

			// when
			_, err := engine.ApplyExpense(ctx, ExpenseRequest{UserId: userId, BudgetId: h.daily.Id, Amount: d("500")})

			// then
			assert.ErrorContains(t, err, "disk full")
			assert.True(t, repo.Budget(h.daily.Id).CurrentAmount.Equal(d("1500")))
			assert.True(t, repo.Budget(h.weekly.Id).CurrentAmount.Equal(d("5000")))
			assert.Empty(t, repo.Journal())
		})
	}
}

// lockedAfterFirstCheck reports the day open once, then locked, as if the day was locked while an
// expense was being applied.
type lockedAfterFirstCheck struct {
	mu     sync.Mutex
	checks int
}

func (l *lockedAfterFirstCheck) IsLocked(ctx context.Context, userId int, date time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checks++
	return l.checks > 1, nil
}

func TestEngine_DayLockedDuringExpense(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			// given
			repo := NewStubRepository()
			h := seedHierarchy(repo, "5000", "1500")
			engine, bus := newTestEngine(repo, mode, &lockedAfterFirstCheck{})
			published := 0
			bus.Subscribe(event_bus.TransactionRecordedEvent, func(e event_bus.Event) error {
				published++
				return nil
			})

			// when
			_, err := engine.ApplyExpense(ctx, ExpenseRequest{UserId: userId, BudgetId: h.daily.Id, Amount: d("500")})

			// then
			assert.ErrorIs(t, err, ErrDayLocked)
			assert.True(t, repo.Budget(h.daily.Id).CurrentAmount.Equal(d("1500")))
			assert.True(t, repo.Budget(h.weekly.Id).CurrentAmount.Equal(d("5000")))
			assert.Empty(t, repo.Transactions())
			assert.Empty(t, repo.Journal())
			assert.Zero(t, published)
		})
	}
}

func TestEngine_GetRemaining(t *testing.T) {
	repo := NewStubRepository()
	h := seedHierarchy(repo, "5000", "1500")
	engine, _ := newTestEngine(repo, Transactional, nil)

	remaining, err := engine.GetRemaining(ctx, userId, h.weekly.Id)
	require.NoError(t, err)
	assert.True(t, remaining.Equal(d("5000")))

	_, err = engine.GetRemaining(ctx, 2, h.weekly.Id)
	assert.ErrorIs(t, err, ErrBudgetNotFound)
}
