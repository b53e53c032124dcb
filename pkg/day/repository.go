package day

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pocket/pocket/pkg/ledger"
	log "github.com/sirupsen/logrus"
)

var ErrDayNotFound = errors.New("day not found")

// ErrDayLocked is shared with the ledger, which rejects transactions on locked days.
var ErrDayLocked = ledger.ErrDayLocked

type Repository interface {
	Get(ctx context.Context, userId int, date time.Time) (Day, error)
	// FindLatestBefore returns the closest existing day strictly before date.
	FindLatestBefore(ctx context.Context, userId int, date time.Time) (Day, error)
	// Upsert creates the day or refreshes its totals. An existing day keeps its initial pocket, a locked day is
	// left as is and ErrDayLocked returned.
	Upsert(ctx context.Context, day Day) (Day, error)
	Lock(ctx context.Context, userId int, date time.Time) (Day, error)
	IsLocked(ctx context.Context, userId int, date time.Time) (bool, error)
}

const columns = `user_id, date, initial_pocket, budgets_available, gains, expenses, final_pocket, locked, updated`

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func scanDay(row pgx.Row) (Day, error) {
	var d Day
	err := row.Scan(&d.UserId, &d.Date, &d.InitialPocket, &d.BudgetsAvailable, &d.Gains, &d.Expenses, &d.FinalPocket, &d.Locked, &d.Updated)
	return d, err
}

func (r *RepositoryImpl) Get(ctx context.Context, userId int, date time.Time) (Day, error) {
	query := `SELECT ` + columns + ` FROM day WHERE user_id = $1 AND date = $2`
	return r.findOne(ctx, query, userId, date)
}

func (r *RepositoryImpl) FindLatestBefore(ctx context.Context, userId int, date time.Time) (Day, error) {
	query := `SELECT ` + columns + ` FROM day WHERE user_id = $1 AND date < $2 ORDER BY date DESC LIMIT 1`
	return r.findOne(ctx, query, userId, date)
}

func (r *RepositoryImpl) Upsert(ctx context.Context, day Day) (Day, error) {
	query := `INSERT INTO day (user_id, date, initial_pocket, budgets_available, gains, expenses, final_pocket)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (user_id, date) DO UPDATE SET
					budgets_available = EXCLUDED.budgets_available,
					gains = EXCLUDED.gains,
					expenses = EXCLUDED.expenses,
					final_pocket = day.initial_pocket + EXCLUDED.gains - EXCLUDED.expenses,
					updated = now()
				WHERE NOT day.locked
				RETURNING ` + columns
	stored, err := scanDay(r.db.QueryRow(ctx, query,
		day.UserId,
		day.Date,
		day.InitialPocket,
		day.BudgetsAvailable,
		day.Gains,
		day.Expenses,
		day.FinalPocket,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		// the conflicting row is locked
		return Day{}, ErrDayLocked
	} else if err != nil {
		err := fmt.Errorf("could not store day: %w", err)
		log.Error(err)
		return Day{}, err
	}
	return stored, nil
}

func (r *RepositoryImpl) Lock(ctx context.Context, userId int, date time.Time) (Day, error) {
	query := `UPDATE day SET locked = true, updated = now() WHERE user_id = $1 AND date = $2 RETURNING ` + columns
	return r.findOne(ctx, query, userId, date)
}

func (r *RepositoryImpl) IsLocked(ctx context.Context, userId int, date time.Time) (bool, error) {
	var locked bool
	err := r.db.QueryRow(ctx, `SELECT locked FROM day WHERE user_id = $1 AND date = $2`, userId, date).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	} else if err != nil {
		err := fmt.Errorf("could not check day lock: %w", err)
		log.Error(err)
		return false, err
	}
	return locked, nil
}

func (r *RepositoryImpl) findOne(ctx context.Context, query string, args ...any) (Day, error) {
	d, err := scanDay(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Day{}, ErrDayNotFound
	} else if err != nil {
		err := fmt.Errorf("could not query day: %w", err)
		log.Error(err)
		return Day{}, err
	}
	return d, nil
}
