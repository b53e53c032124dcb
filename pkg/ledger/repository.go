package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pocket/pocket/pkg/budget"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Store holds the reads and writes a mutation performs. Inside InTx it is bound to the transaction.
type Store interface {
	GetBudget(ctx context.Context, userId int, id int) (budget.Budget, error)
	// LockBudgets returns the budgets ordered by id, locked until the end of the transaction when called inside one.
	LockBudgets(ctx context.Context, userId int, ids []int) ([]budget.Budget, error)
	SetCurrentAmount(ctx context.Context, userId int, id int, amount decimal.Decimal) error
	// AddToCurrentAmount adds delta only if the balance stays non-negative. It returns false when the condition did not hold.
	AddToCurrentAmount(ctx context.Context, userId int, id int, delta decimal.Decimal) (Affected, bool, error)
	// CompareAndSetCurrentAmount overwrites the balance only if it still equals expected.
	CompareAndSetCurrentAmount(ctx context.Context, userId int, id int, expected decimal.Decimal, amount decimal.Decimal) (bool, error)
	InsertTransaction(ctx context.Context, t Transaction) error
	InsertJournalEntry(ctx context.Context, entry JournalEntry) error
}

type Repository interface {
	Store
	// InTx runs fn inside a serializable transaction. Serialization failures are reported as ErrConcurrencyConflict.
	InTx(ctx context.Context, fn func(store Store) error) error
	FindPrimary(ctx context.Context, userId int) (budget.Budget, error)
	FindFirstByFrequency(ctx context.Context, userId int, frequency budget.Frequency) (budget.Budget, error)
	ListTransactions(ctx context.Context, userId int, from time.Time, to time.Time) ([]Transaction, error)
	SumExpenses(ctx context.Context, userId int, from time.Time, to time.Time) (decimal.Decimal, error)
	ListJournal(ctx context.Context, userId int, limit int) ([]JournalEntry, error)
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type store struct {
	q dbtx
}

type RepositoryImpl struct {
	store
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{store: store{q: db}, db: db}
}

func (r *RepositoryImpl) InTx(ctx context.Context, fn func(store Store) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		err := fmt.Errorf("could not begin transaction: %w", err)
		log.Error(err)
		return err
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			log.Errorf("could not roll back transaction: %v", err)
		}
	}()

	if err := fn(&store{q: tx}); err != nil {
		return txError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return txError(err)
	}
	return nil
}

func txError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			log.Debugf("transaction aborted: %s", pgErr.Message)
			return fmt.Errorf("%w: %s", ErrConcurrencyConflict, pgErr.Message)
		}
	}
	return err
}

func (s *store) GetBudget(ctx context.Context, userId int, id int) (budget.Budget, error) {
	query := `SELECT ` + budget.Columns + ` FROM budget WHERE id = $1 AND user_id = $2`
	b, err := budget.ScanBudget(s.q.QueryRow(ctx, query, id, userId))
	if errors.Is(err, pgx.ErrNoRows) {
		return budget.Budget{}, ErrBudgetNotFound
	} else if err != nil {
		err := fmt.Errorf("could not query budget: %w", err)
		log.Error(err)
		return budget.Budget{}, err
	}
	return b, nil
}

func (s *store) LockBudgets(ctx context.Context, userId int, ids []int) ([]budget.Budget, error) {
	query := `SELECT ` + budget.Columns + ` FROM budget WHERE user_id = $1 AND id = ANY($2) ORDER BY id FOR UPDATE`
	rows, err := s.q.Query(ctx, query, userId, ids)
	if err != nil {
		err := fmt.Errorf("could not lock budgets: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	budgets := make([]budget.Budget, 0, len(ids))
	for rows.Next() {
		b, err := budget.ScanBudget(rows)
		if err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return nil, err
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return budgets, nil
}

func (s *store) SetCurrentAmount(ctx context.Context, userId int, id int, amount decimal.Decimal) error {
	query := `UPDATE budget SET current_amount = $1 WHERE id = $2 AND user_id = $3`
	result, err := s.q.Exec(ctx, query, amount, id, userId)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return fmt.Errorf("%w: budget %d", ErrNegativeBalance, id)
		}
		err := fmt.Errorf("could not update budget %d: %w", id, err)
		log.Error(err)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrBudgetNotFound
	}
	return nil
}

func (s *store) AddToCurrentAmount(ctx context.Context, userId int, id int, delta decimal.Decimal) (Affected, bool, error) {
	query := `UPDATE budget SET current_amount = current_amount + $1
				WHERE id = $2 AND user_id = $3 AND current_amount + $1 >= 0
				RETURNING current_amount - $1, current_amount`
	affected := Affected{BudgetId: id}
	err := s.q.QueryRow(ctx, query, delta, id, userId).Scan(&affected.Before, &affected.After)
	if errors.Is(err, pgx.ErrNoRows) {
		return Affected{}, false, nil
	} else if err != nil {
		err := fmt.Errorf("could not update budget %d: %w", id, err)
		log.Error(err)
		return Affected{}, false, err
	}
	return affected, true, nil
}

func (s *store) CompareAndSetCurrentAmount(ctx context.Context, userId int, id int, expected decimal.Decimal, amount decimal.Decimal) (bool, error) {
	query := `UPDATE budget SET current_amount = $1 WHERE id = $2 AND user_id = $3 AND current_amount = $4`
	result, err := s.q.Exec(ctx, query, amount, id, userId, expected)
	if err != nil {
		err := fmt.Errorf("could not update budget %d: %w", id, err)
		log.Error(err)
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (s *store) InsertTransaction(ctx context.Context, t Transaction) error {
	query := `INSERT INTO ledger_transaction (id, user_id, budget_id, type, amount, comment, date, time)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.q.Exec(ctx, query, t.Id, t.UserId, nullableBudgetId(t.BudgetId), string(t.Type), t.Amount, t.Comment, t.Date, t.Time)
	if err != nil {
		err := fmt.Errorf("could not store transaction: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (s *store) InsertJournalEntry(ctx context.Context, entry JournalEntry) error {
	affected := entry.Affected
	if affected == nil {
		affected = []Affected{}
	}
	affectedJson, err := json.Marshal(affected)
	if err != nil {
		return fmt.Errorf("could not encode affected budgets: %w", err)
	}
	meta := entry.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJson, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("could not encode journal meta: %w", err)
	}

	var transactionId any
	if entry.TransactionId != uuid.Nil {
		transactionId = entry.TransactionId
	}

	query := `INSERT INTO journal_entry (id, user_id, tx_type, amount, affected, rule_applied, meta, transaction_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = s.q.Exec(ctx, query, entry.Id, entry.UserId, string(entry.TxType), entry.Amount, affectedJson, entry.RuleApplied, metaJson, transactionId)
	if err != nil {
		err := fmt.Errorf("could not store journal entry: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) FindPrimary(ctx context.Context, userId int) (budget.Budget, error) {
	query := `SELECT ` + budget.Columns + ` FROM budget WHERE user_id = $1 AND is_primary`
	return r.findBudget(ctx, query, userId)
}

func (r *RepositoryImpl) FindFirstByFrequency(ctx context.Context, userId int, frequency budget.Frequency) (budget.Budget, error) {
	query := `SELECT ` + budget.Columns + ` FROM budget WHERE user_id = $1 AND frequency = $2 ORDER BY id LIMIT 1`
	return r.findBudget(ctx, query, userId, string(frequency))
}

func (r *RepositoryImpl) findBudget(ctx context.Context, query string, args ...any) (budget.Budget, error) {
	b, err := budget.ScanBudget(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return budget.Budget{}, ErrBudgetNotFound
	} else if err != nil {
		err := fmt.Errorf("could not query budget: %w", err)
		log.Error(err)
		return budget.Budget{}, err
	}
	return b, nil
}

func (r *RepositoryImpl) ListTransactions(ctx context.Context, userId int, from time.Time, to time.Time) ([]Transaction, error) {
	query := `SELECT id, user_id, budget_id, type, amount, comment, date, time, created
				FROM ledger_transaction
				WHERE user_id = $1 AND date BETWEEN $2 AND $3
				ORDER BY date, created`
	rows, err := r.db.Query(ctx, query, userId, from, to)
	if err != nil {
		err := fmt.Errorf("could not query transactions: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	transactions := make([]Transaction, 0)
	for rows.Next() {
		var t Transaction
		var budgetId *int
		var txType string
		err := rows.Scan(&t.Id, &t.UserId, &budgetId, &txType, &t.Amount, &t.Comment, &t.Date, &t.Time, &t.Created)
		if err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return nil, err
		}
		if budgetId != nil {
			t.BudgetId = *budgetId
		}
		t.Type = TxType(txType)
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return transactions, nil
}

func (r *RepositoryImpl) SumExpenses(ctx context.Context, userId int, from time.Time, to time.Time) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM ledger_transaction
				WHERE user_id = $1 AND type = 'expense' AND date BETWEEN $2 AND $3`
	var sum decimal.Decimal
	if err := r.db.QueryRow(ctx, query, userId, from, to).Scan(&sum); err != nil {
		err := fmt.Errorf("could not sum expenses: %w", err)
		log.Error(err)
		return decimal.Zero, err
	}
	return sum, nil
}

func (r *RepositoryImpl) ListJournal(ctx context.Context, userId int, limit int) ([]JournalEntry, error) {
	query := `SELECT id, user_id, tx_type, amount, affected, rule_applied, meta, transaction_id, created
				FROM journal_entry
				WHERE user_id = $1
				ORDER BY created DESC, id
				LIMIT $2`
	rows, err := r.db.Query(ctx, query, userId, limit)
	if err != nil {
		err := fmt.Errorf("could not query journal: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	entries := make([]JournalEntry, 0)
	for rows.Next() {
		var entry JournalEntry
		var txType string
		var affectedJson, metaJson []byte
		var transactionId *uuid.UUID
		err := rows.Scan(&entry.Id, &entry.UserId, &txType, &entry.Amount, &affectedJson, &entry.RuleApplied, &metaJson, &transactionId, &entry.Created)
		if err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return nil, err
		}
		entry.TxType = TxType(txType)
		if transactionId != nil {
			entry.TransactionId = *transactionId
		}
		if err := json.Unmarshal(affectedJson, &entry.Affected); err != nil {
			return nil, fmt.Errorf("could not decode affected budgets of %s: %w", entry.Id, err)
		}
		if err := json.Unmarshal(metaJson, &entry.Meta); err != nil {
			return nil, fmt.Errorf("could not decode meta of %s: %w", entry.Id, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return entries, nil
}

func nullableBudgetId(id int) *int {
	if id == 0 {
		return nil
	}
	return &id
}
