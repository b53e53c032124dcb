package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pocket/pocket/internal/utils"
	"github.com/pocket/pocket/pkg/budget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addTransaction(t *testing.T, repo *StubRepository, txType TxType, amount string, date time.Time) {
	t.Helper()
	require.NoError(t, repo.InsertTransaction(ctx, Transaction{Id: uuid.New(), UserId: userId, Type: txType, Amount: d(amount), Date: date}))
}

func TestAvailability_GetAvailableThisMonth(t *testing.T) {
	clock := &utils.MockClock{FixedNow: today}

	t.Run("should return zero without a primary budget", func(t *testing.T) {
		availability := NewAvailability(NewStubRepository(), Transactional, clock)

		available, err := availability.GetAvailableThisMonth(ctx, userId, time.Time{})

		require.NoError(t, err)
		assert.True(t, available.IsZero())
	})

	for _, mode := range modes {
		t.Run(mode.String()+" should heal a drifted primary once", func(t *testing.T) {
			// given
			repo := NewStubRepository()
			primary := repo.AddBudget(budget.Budget{UserId: userId, Frequency: budget.Monthly, IsPrimary: true,
				Amount: d("400000"), CurrentAmount: d("400000")})
			addTransaction(t, repo, Expense, "1000", time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC))
			addTransaction(t, repo, Expense, "500.50", time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC))
			addTransaction(t, repo, Gain, "7000", time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC))
			addTransaction(t, repo, Expense, "9999", time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC))
			availability := NewAvailability(repo, mode, clock)

			// when
			first, err := availability.GetAvailableThisMonth(ctx, userId, time.Time{})
			require.NoError(t, err)
			second, err := availability.GetAvailableThisMonth(ctx, userId, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)

			// then
			assert.True(t, first.Equal(d("398499.50")), first.String())
			assert.True(t, second.Equal(first))
			assert.True(t, repo.Budget(primary.Id).CurrentAmount.Equal(d("398499.50")))

			journal := repo.Journal()
			require.Len(t, journal, 1)
			assert.Equal(t, Adjustment, journal[0].TxType)
			assert.Equal(t, RuleReconcilePrimary, journal[0].RuleApplied)
			assert.Equal(t, "398499.50", journal[0].Meta["computed"])
			assert.Equal(t, "400000.00", journal[0].Meta["stored"])
			require.Len(t, journal[0].Affected, 1)
			assert.True(t, journal[0].Affected[0].Before.Equal(d("400000")))
		})
	}

	t.Run("should floor the available amount at zero", func(t *testing.T) {
		// given
		repo := NewStubRepository()
		primary := repo.AddBudget(budget.Budget{UserId: userId, Frequency: budget.Monthly, IsPrimary: true,
			Amount: d("100"), CurrentAmount: d("100")})
		addTransaction(t, repo, Expense, "150", today)
		availability := NewAvailability(repo, Fallback, clock)

		// when
		available, err := availability.GetAvailableThisMonth(ctx, userId, today)
		require.NoError(t, err)
		_, err = availability.GetAvailableThisMonth(ctx, userId, today)
		require.NoError(t, err)

		// then
		assert.True(t, available.IsZero())
		assert.True(t, repo.Budget(primary.Id).CurrentAmount.IsZero())
		journal := repo.Journal()
		require.Len(t, journal, 1)
		assert.Equal(t, "-50.00", journal[0].Meta["computed"])
	})

	t.Run("should tolerate a cent of drift", func(t *testing.T) {
		// given
		repo := NewStubRepository()
		repo.AddBudget(budget.Budget{UserId: userId, Frequency: budget.Monthly, IsPrimary: true,
			Amount: d("100"), CurrentAmount: d("99.99")})
		availability := NewAvailability(repo, Transactional, clock)

		// when
		available, err := availability.GetAvailableThisMonth(ctx, userId, today)

		// then
		require.NoError(t, err)
		assert.True(t, available.Equal(d("100")))
		assert.Empty(t, repo.Journal())
	})

	t.Run("should not touch the primary when reading another month", func(t *testing.T) {
		// given
		repo := NewStubRepository()
		primary := repo.AddBudget(budget.Budget{UserId: userId, Frequency: budget.Monthly, IsPrimary: true,
			Amount: d("400000"), CurrentAmount: d("399000")})
		addTransaction(t, repo, Expense, "1000", time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC))
		addTransaction(t, repo, Expense, "50000", time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC))
		availability := NewAvailability(repo, Transactional, clock)

		// when
		february, err := availability.GetAvailableThisMonth(ctx, userId, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		march, err := availability.GetAvailableThisMonth(ctx, userId, today)
		require.NoError(t, err)

		// then
		assert.True(t, february.Equal(d("350000")), february.String())
		assert.True(t, march.Equal(d("399000")), march.String())
		assert.True(t, repo.Budget(primary.Id).CurrentAmount.Equal(d("399000")))
		assert.Empty(t, repo.Journal())
	})
}
