package budget

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pocket/pocket/internal/test_utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var db *pgxpool.Pool

func TestMain(m *testing.M) {
	var cleanup func()
	db, cleanup = test_utils.TestWithDB()
	code := m.Run()
	cleanup()
	os.Exit(code)
}

func setupTestRepository(t *testing.T) (context.Context, *BudgetRepoImpl, int) {
	ctx := context.Background()
	require.NoError(t, test_utils.Truncate(ctx, db))
	_, u := test_utils.CreateUser(t, db, "budget-repo")
	return ctx, NewBudgetRepo(db), u.Id
}

func TestBudgetRepoImpl_Store(t *testing.T) {
	// given
	ctx, repo, userId := setupTestRepository(t)

	// when
	primary, err := repo.Store(ctx, userId, Budget{Name: "Salary", Frequency: Monthly, IsPrimary: true,
		Amount: d("4000.50"), InitialAmount: d("4000.50"), CurrentAmount: d("4000.50")})
	require.NoError(t, err)
	weekly, err := repo.Store(ctx, userId, Budget{Name: "Week", Frequency: Weekly, ParentId: primary.Id,
		Amount: d("1000"), InitialAmount: d("1000"), CurrentAmount: d("1000")})
	require.NoError(t, err)

	// then
	stored, err := repo.GetAll(ctx, userId)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.True(t, stored[0].IsPrimary)
	assert.True(t, stored[0].CurrentAmount.Equal(d("4000.5")))
	assert.Equal(t, primary.Id, stored[1].ParentId)
	assert.Equal(t, Weekly, weekly.Frequency)
	assert.False(t, weekly.Created.IsZero())
}

func TestBudgetRepoImpl_Store_ShouldRejectSecondPrimary(t *testing.T) {
	// given
	ctx, repo, userId := setupTestRepository(t)
	primary := Budget{Name: "Salary", Frequency: Monthly, IsPrimary: true, Amount: d("10"), InitialAmount: d("10"), CurrentAmount: d("10")}
	_, err := repo.Store(ctx, userId, primary)
	require.NoError(t, err)

	// when
	_, err = repo.Store(ctx, userId, primary)

	// then
	assert.ErrorIs(t, err, ErrPrimaryExists)
}

func TestBudgetRepoImpl_FindPrimaryAndFirstByFrequency(t *testing.T) {
	// given
	ctx, repo, userId := setupTestRepository(t)
	_, err := repo.FindPrimary(ctx, userId)
	assert.ErrorIs(t, err, ErrBudgetNotFound)

	first, err := repo.Store(ctx, userId, Budget{Name: "A", Frequency: Weekly, Amount: d("1"), InitialAmount: d("1"), CurrentAmount: d("1")})
	require.NoError(t, err)
	_, err = repo.Store(ctx, userId, Budget{Name: "B", Frequency: Weekly, Amount: d("2"), InitialAmount: d("2"), CurrentAmount: d("2")})
	require.NoError(t, err)

	// when
	found, err := repo.FindFirstByFrequency(ctx, userId, Weekly)

	// then
	require.NoError(t, err)
	assert.Equal(t, first.Id, found.Id)
}

func TestBudgetRepoImpl_UpdateAmount(t *testing.T) {
	// given
	ctx, repo, userId := setupTestRepository(t)
	weekly, err := repo.Store(ctx, userId, Budget{Name: "Week", Frequency: Weekly, Amount: d("100"), InitialAmount: d("100"), CurrentAmount: d("30")})
	require.NoError(t, err)

	// when
	raised, err := repo.UpdateAmount(ctx, userId, weekly.Id, d("150"))
	require.NoError(t, err)
	lowered, err := repo.UpdateAmount(ctx, userId, weekly.Id, d("10"))
	require.NoError(t, err)

	// then
	assert.True(t, raised.CurrentAmount.Equal(d("80")), raised.CurrentAmount.String())
	assert.True(t, lowered.Amount.Equal(d("10")))
	assert.True(t, lowered.CurrentAmount.IsZero(), lowered.CurrentAmount.String())
}

func TestBudgetRepoImpl_RenameAndDelete(t *testing.T) {
	// given
	ctx, repo, userId := setupTestRepository(t)
	b, err := repo.Store(ctx, userId, Budget{Name: "Old", Frequency: Daily, Amount: d("5"), InitialAmount: d("5"), CurrentAmount: d("5")})
	require.NoError(t, err)

	// when
	renamed, err := repo.Rename(ctx, userId, b.Id, "New")
	require.NoError(t, err)
	otherUser, err := repo.Delete(ctx, userId+1, b.Id)
	require.NoError(t, err)
	deleted, err := repo.Delete(ctx, userId, b.Id)
	require.NoError(t, err)

	// then
	assert.True(t, renamed)
	assert.False(t, otherUser)
	assert.True(t, deleted)
	_, err = repo.Get(ctx, userId, b.Id)
	assert.ErrorIs(t, err, ErrBudgetNotFound)
}
