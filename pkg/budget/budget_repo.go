package budget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var ErrBudgetNotFound = errors.New("budget not found")
var ErrPrimaryExists = errors.New("a primary budget already exists")

// Columns lists the budget columns in the order expected by ScanBudget.
const Columns = `id, user_id, parent_id, name, frequency, is_primary, amount, initial_amount, current_amount, created`

type BudgetRepo interface {
	Store(ctx context.Context, userId int, budget Budget) (Budget, error)
	Get(ctx context.Context, userId int, id int) (Budget, error)
	GetAll(ctx context.Context, userId int) ([]Budget, error)
	FindPrimary(ctx context.Context, userId int) (Budget, error)
	FindFirstByFrequency(ctx context.Context, userId int, frequency Frequency) (Budget, error)
	// UpdateAmount sets the nominal amount and moves the current amount by the same delta, floored at zero.
	UpdateAmount(ctx context.Context, userId int, id int, amount decimal.Decimal) (Budget, error)
	Rename(ctx context.Context, userId int, id int, name string) (bool, error)
	Delete(ctx context.Context, userId int, id int) (bool, error)
}

type BudgetRepoImpl struct {
	db *pgxpool.Pool
}

func NewBudgetRepo(db *pgxpool.Pool) *BudgetRepoImpl {
	return &BudgetRepoImpl{db: db}
}

// ScanBudget reads one row selected with Columns.
func ScanBudget(row pgx.Row) (Budget, error) {
	var b Budget
	var parentId sql.NullInt64
	var frequency string
	err := row.Scan(
		&b.Id,
		&b.UserId,
		&parentId,
		&b.Name,
		&frequency,
		&b.IsPrimary,
		&b.Amount,
		&b.InitialAmount,
		&b.CurrentAmount,
		&b.Created,
	)
	if err != nil {
		return Budget{}, err
	}
	b.Frequency = Frequency(frequency)
	if parentId.Valid {
		b.ParentId = int(parentId.Int64)
	}
	return b, nil
}

func nullableId(id int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: id != 0}
}

func (r *BudgetRepoImpl) Store(ctx context.Context, userId int, budget Budget) (Budget, error) {
	query := `INSERT INTO budget (
					user_id,
					parent_id,
					name,
					frequency,
					is_primary,
					amount,
					initial_amount,
					current_amount
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING ` + Columns

	stored, err := ScanBudget(r.db.QueryRow(ctx, query,
		userId,
		nullableId(budget.ParentId),
		budget.Name,
		string(budget.Frequency),
		budget.IsPrimary,
		budget.Amount,
		budget.InitialAmount,
		budget.CurrentAmount,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "budget_one_primary_per_user" {
			return Budget{}, ErrPrimaryExists
		}
		err := fmt.Errorf("could not store budget: %w", err)
		log.Error(err)
		return Budget{}, err
	}
	return stored, nil
}

func (r *BudgetRepoImpl) Get(ctx context.Context, userId int, id int) (Budget, error) {
	query := `SELECT ` + Columns + ` FROM budget WHERE id = $1 AND user_id = $2`
	return r.findOne(ctx, query, id, userId)
}

func (r *BudgetRepoImpl) GetAll(ctx context.Context, userId int) ([]Budget, error) {
	query := `SELECT ` + Columns + ` FROM budget WHERE user_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, userId)
	if err != nil {
		err := fmt.Errorf("could not query budgets: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	budgets := make([]Budget, 0)
	for rows.Next() {
		b, err := ScanBudget(rows)
		if err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return nil, err
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("error iterating over rows: %w", err)
		log.Error(err)
		return nil, err
	}
	return budgets, nil
}

func (r *BudgetRepoImpl) FindPrimary(ctx context.Context, userId int) (Budget, error) {
	query := `SELECT ` + Columns + ` FROM budget WHERE user_id = $1 AND is_primary`
	return r.findOne(ctx, query, userId)
}

func (r *BudgetRepoImpl) FindFirstByFrequency(ctx context.Context, userId int, frequency Frequency) (Budget, error) {
	query := `SELECT ` + Columns + ` FROM budget WHERE user_id = $1 AND frequency = $2 ORDER BY id LIMIT 1`
	return r.findOne(ctx, query, userId, string(frequency))
}

func (r *BudgetRepoImpl) UpdateAmount(ctx context.Context, userId int, id int, amount decimal.Decimal) (Budget, error) {
	// the right-hand side of SET sees the old amount
	query := `UPDATE budget SET
					current_amount = GREATEST(current_amount + ($1 - amount), 0),
					amount = $1
				WHERE id = $2 AND user_id = $3 AND NOT is_primary
				RETURNING ` + Columns
	return r.findOne(ctx, query, amount, id, userId)
}

func (r *BudgetRepoImpl) Rename(ctx context.Context, userId int, id int, name string) (bool, error) {
	query := `UPDATE budget SET name = $1 WHERE id = $2 AND user_id = $3`
	result, err := r.db.Exec(ctx, query, name, id, userId)
	if err != nil {
		err := fmt.Errorf("could not execute query: %w", err)
		log.Error(err)
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// Delete removes the budget. Its transactions stay, with budget_id set to NULL.
func (r *BudgetRepoImpl) Delete(ctx context.Context, userId int, id int) (bool, error) {
	query := `DELETE FROM budget WHERE id = $1 AND user_id = $2`
	result, err := r.db.Exec(ctx, query, id, userId)
	if err != nil {
		err := fmt.Errorf("could not execute query: %w", err)
		log.Error(err)
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (r *BudgetRepoImpl) findOne(ctx context.Context, query string, args ...any) (Budget, error) {
	b, err := ScanBudget(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Budget{}, ErrBudgetNotFound
		}
		err := fmt.Errorf("could not query budget: %w", err)
		log.Error(err)
		return Budget{}, err
	}
	return b, nil
}
