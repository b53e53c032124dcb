package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pocket/pocket/internal/utils"
	"github.com/pocket/pocket/pkg/budget"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var driftTolerance = decimal.RequireFromString("0.01")

var errStalePrimary = errors.New("primary budget changed while reconciling")

// Availability computes what is left of the primary budget this month from the expense history, and
// repairs the stored primary balance when it drifted away from that figure.
type Availability struct {
	repo  Repository
	mode  Mode
	clock utils.Clock
}

func NewAvailability(repo Repository, mode Mode, clock utils.Clock) *Availability {
	return &Availability{repo: repo, mode: mode, clock: clock}
}

// GetAvailableThisMonth returns the primary initial amount minus the expenses of the month containing date,
// floored at zero. A zero date means today. Without a primary budget nothing is available.
// The stored primary balance is only repaired when date falls in the current month, other months are read-only.
func (a *Availability) GetAvailableThisMonth(ctx context.Context, userId int, date time.Time) (decimal.Decimal, error) {
	now := a.clock.Now()
	if date.IsZero() {
		date = now
	}
	primary, err := a.repo.FindPrimary(ctx, userId)
	if errors.Is(err, ErrBudgetNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}

	first, last := utils.MonthBounds(date)
	spent, err := a.repo.SumExpenses(ctx, userId, first, last)
	if err != nil {
		return decimal.Zero, err
	}
	computed := primary.InitialAmount.Sub(spent)
	available := decimal.Max(computed, decimal.Zero)

	currentFirst, _ := utils.MonthBounds(now)
	if !first.Equal(currentFirst) {
		return available, nil
	}
	if available.Sub(primary.CurrentAmount).Abs().GreaterThan(driftTolerance) {
		err := a.heal(ctx, primary, computed, available)
		if errors.Is(err, errStalePrimary) {
			log.Debugf("primary budget %d changed during reconciliation, skipping", primary.Id)
		} else if err != nil {
			log.Errorf("could not reconcile primary budget %d: %v", primary.Id, err)
		}
	}
	return available, nil
}

func (a *Availability) heal(ctx context.Context, primary budget.Budget, computed decimal.Decimal, target decimal.Decimal) error {
	log.Warnf("primary budget %d drifted: stored %s, computed %s", primary.Id,
		primary.CurrentAmount.StringFixed(2), computed.StringFixed(2))

	entry := JournalEntry{
		Id:          uuid.New(),
		UserId:      primary.UserId,
		TxType:      Adjustment,
		Amount:      target.Sub(primary.CurrentAmount),
		Affected:    []Affected{{BudgetId: primary.Id, Before: primary.CurrentAmount, After: target}},
		RuleApplied: RuleReconcilePrimary,
		Meta: map[string]any{
			"computed": computed.StringFixed(2),
			"stored":   primary.CurrentAmount.StringFixed(2),
		},
	}
	overwrite := func(ctx context.Context, store Store) error {
		ok, err := store.CompareAndSetCurrentAmount(ctx, primary.UserId, primary.Id, primary.CurrentAmount, target)
		if err != nil {
			return err
		}
		if !ok {
			return errStalePrimary
		}
		return nil
	}

	if a.mode == Transactional {
		return a.repo.InTx(ctx, func(store Store) error {
			if err := overwrite(ctx, store); err != nil {
				return err
			}
			return store.InsertJournalEntry(ctx, entry)
		})
	}

	s := &saga{}
	s.add("overwrite primary", func(ctx context.Context) error {
		return overwrite(ctx, a.repo)
	}, func(ctx context.Context) error {
		_, err := a.repo.CompareAndSetCurrentAmount(ctx, primary.UserId, primary.Id, target, primary.CurrentAmount)
		return err
	})
	s.add("journal adjustment", func(ctx context.Context) error {
		return a.repo.InsertJournalEntry(ctx, entry)
	}, nil)
	return s.run(ctx)
}
