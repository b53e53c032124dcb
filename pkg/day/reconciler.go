package day

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pocket/pocket/internal/event_bus"
	"github.com/pocket/pocket/internal/utils"
	"github.com/pocket/pocket/pkg/ledger"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type TransactionSource interface {
	ListTransactions(ctx context.Context, userId int, from time.Time, to time.Time) ([]ledger.Transaction, error)
}

type AvailabilitySource interface {
	GetAvailableThisMonth(ctx context.Context, userId int, date time.Time) (decimal.Decimal, error)
}

// Reconciler keeps each Day consistent with the transactions recorded on it.
type Reconciler struct {
	repo         Repository
	transactions TransactionSource
	availability AvailabilitySource
}

func NewReconciler(repo Repository, transactions TransactionSource, availability AvailabilitySource) *Reconciler {
	return &Reconciler{repo: repo, transactions: transactions, availability: availability}
}

// Subscribe reconciles the day of every recorded transaction.
func (r *Reconciler) Subscribe(bus *event_bus.EventBus) (unsubscribe func()) {
	return event_bus.SubscribeTyped(bus, event_bus.TransactionRecordedEvent, func(e event_bus.EventT[event_bus.TransactionRecorded]) error {
		_, err := r.Reconcile(e.Context(), e.Data.UserId, e.Data.Date)
		return err
	})
}

// Reconcile recomputes gains, expenses and the final pocket of a day from its transactions, creating the day
// if needed. A new day starts with the final pocket of the latest earlier day.
func (r *Reconciler) Reconcile(ctx context.Context, userId int, date time.Time) (Day, error) {
	date = utils.DateOf(date)

	initial, err := r.initialPocket(ctx, userId, date)
	if err != nil {
		return Day{}, err
	}

	transactions, err := r.transactions.ListTransactions(ctx, userId, date, date)
	if err != nil {
		return Day{}, err
	}
	gains, expenses := decimal.Zero, decimal.Zero
	for _, t := range transactions {
		switch t.Type {
		case ledger.Gain:
			gains = gains.Add(t.Amount)
		case ledger.Expense:
			expenses = expenses.Add(t.Amount)
		}
	}

	available, err := r.availability.GetAvailableThisMonth(ctx, userId, date)
	if err != nil {
		return Day{}, fmt.Errorf("could not compute available amount: %w", err)
	}

	day, err := r.repo.Upsert(ctx, Day{
		UserId:           userId,
		Date:             date,
		InitialPocket:    initial,
		BudgetsAvailable: available,
		Gains:            gains,
		Expenses:         expenses,
		FinalPocket:      initial.Add(gains).Sub(expenses),
	})
	if err != nil {
		return Day{}, err
	}
	log.Debugf("reconciled day %s of user %d: final pocket %s", date.Format(utils.DateLayout), userId, day.FinalPocket)
	return day, nil
}

func (r *Reconciler) initialPocket(ctx context.Context, userId int, date time.Time) (decimal.Decimal, error) {
	existing, err := r.repo.Get(ctx, userId, date)
	if err == nil {
		if existing.Locked {
			return decimal.Zero, ErrDayLocked
		}
		return existing.InitialPocket, nil
	}
	if !errors.Is(err, ErrDayNotFound) {
		return decimal.Zero, err
	}

	previous, err := r.repo.FindLatestBefore(ctx, userId, date)
	if errors.Is(err, ErrDayNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return previous.FinalPocket, nil
}

// GetDayRollup returns the day, reconciled first unless it is locked.
func (r *Reconciler) GetDayRollup(ctx context.Context, userId int, date time.Time) (Day, error) {
	date = utils.DateOf(date)
	existing, err := r.repo.Get(ctx, userId, date)
	if err == nil && existing.Locked {
		return existing, nil
	}
	if err != nil && !errors.Is(err, ErrDayNotFound) {
		return Day{}, err
	}
	return r.Reconcile(ctx, userId, date)
}

// Lock closes a day for new transactions. The day is reconciled one last time before.
func (r *Reconciler) Lock(ctx context.Context, userId int, date time.Time) (Day, error) {
	date = utils.DateOf(date)
	if _, err := r.Reconcile(ctx, userId, date); err != nil && !errors.Is(err, ErrDayLocked) {
		return Day{}, err
	}
	log.Infof("locking day %s of user %d", date.Format(utils.DateLayout), userId)
	return r.repo.Lock(ctx, userId, date)
}

func (r *Reconciler) IsLocked(ctx context.Context, userId int, date time.Time) (bool, error) {
	return r.repo.IsLocked(ctx, userId, utils.DateOf(date))
}
