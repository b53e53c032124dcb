package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/pocket/pocket/pkg/budget"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Step moves the balance of one budget by Delta. A zero delta records the budget without changing it.
type Step struct {
	BudgetId int
	Delta    decimal.Decimal
}

// Guard accepts or rejects the balance a budget would have after a step.
type Guard func(after decimal.Decimal) bool

func NonNegative(after decimal.Decimal) bool {
	return !after.IsNegative()
}

// Mutation is a set of balance changes applied all together or not at all.
type Mutation struct {
	UserId int
	Steps  []Step
	Guard  Guard
	// Record persists what describes the mutation, once every balance has been changed.
	// A failing Record undoes the balance changes.
	Record func(ctx context.Context, store Store, affected []Affected) error
}

// Applier applies mutations in the mode selected on startup.
type Applier struct {
	repo    Repository
	mode    Mode
	retries int
}

func NewApplier(repo Repository, mode Mode, retries int) *Applier {
	if retries < 1 {
		retries = 1
	}
	return &Applier{repo: repo, mode: mode, retries: retries}
}

func (a *Applier) Mode() Mode {
	return a.mode
}

// Apply returns the balances before and after for every step, ordered by budget id.
// A rejected guard gives ErrNegativeBalance. A lost race gives ErrConcurrencyConflict, after which nothing has changed.
func (a *Applier) Apply(ctx context.Context, m Mutation) ([]Affected, error) {
	steps, err := normalize(m.Steps)
	if err != nil {
		return nil, err
	}
	if m.Guard == nil {
		m.Guard = NonNegative
	}
	if a.mode == Fallback {
		return a.applySaga(ctx, m, steps)
	}
	return a.applyTx(ctx, m, steps)
}

// normalize orders steps by budget id so that concurrent mutations lock budgets in the same order.
func normalize(steps []Step) ([]Step, error) {
	sorted := make([]Step, len(steps))
	copy(sorted, steps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BudgetId < sorted[j].BudgetId })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].BudgetId == sorted[i-1].BudgetId {
			return nil, fmt.Errorf("budget %d appears twice in one mutation", sorted[i].BudgetId)
		}
	}
	return sorted, nil
}

func budgetIds(steps []Step) []int {
	ids := make([]int, 0, len(steps))
	for _, step := range steps {
		ids = append(ids, step.BudgetId)
	}
	return ids
}

func (a *Applier) applyTx(ctx context.Context, m Mutation, steps []Step) ([]Affected, error) {
	var affected []Affected
	var err error
	for attempt := 1; attempt <= a.retries; attempt++ {
		err = a.repo.InTx(ctx, func(store Store) error {
			var applyErr error
			affected, applyErr = applyLocked(ctx, store, m, steps)
			return applyErr
		})
		if !errors.Is(err, ErrConcurrencyConflict) {
			break
		}
		log.Warnf("mutation for user %d lost a serialization race (attempt %d/%d)", m.UserId, attempt, a.retries)
	}
	if err != nil {
		return nil, err
	}
	return affected, nil
}

func applyLocked(ctx context.Context, store Store, m Mutation, steps []Step) ([]Affected, error) {
	budgets, err := store.LockBudgets(ctx, m.UserId, budgetIds(steps))
	if err != nil {
		return nil, err
	}
	byId := make(map[int]budget.Budget, len(budgets))
	for _, b := range budgets {
		byId[b.Id] = b
	}

	affected := make([]Affected, 0, len(steps))
	for _, step := range steps {
		b, ok := byId[step.BudgetId]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrBudgetNotFound, step.BudgetId)
		}
		after := b.CurrentAmount.Add(step.Delta)
		if !m.Guard(after) {
			return nil, fmt.Errorf("%w: budget %d has %s", ErrNegativeBalance, b.Id, b.CurrentAmount.StringFixed(2))
		}
		affected = append(affected, Affected{BudgetId: b.Id, Before: b.CurrentAmount, After: after})
	}

	for i, step := range steps {
		if step.Delta.IsZero() {
			continue
		}
		if err := store.SetCurrentAmount(ctx, m.UserId, step.BudgetId, affected[i].After); err != nil {
			return nil, err
		}
	}
	if m.Record != nil {
		if err := m.Record(ctx, store, affected); err != nil {
			return nil, err
		}
	}
	return affected, nil
}

// applySaga checks the guard against a snapshot, then applies each step as a conditional update.
// The snapshot check tells a plain rejection apart from a balance taken by a concurrent request.
func (a *Applier) applySaga(ctx context.Context, m Mutation, steps []Step) ([]Affected, error) {
	for _, step := range steps {
		b, err := a.repo.GetBudget(ctx, m.UserId, step.BudgetId)
		if err != nil {
			return nil, err
		}
		if !m.Guard(b.CurrentAmount.Add(step.Delta)) {
			return nil, fmt.Errorf("%w: budget %d has %s", ErrNegativeBalance, b.Id, b.CurrentAmount.StringFixed(2))
		}
	}

	affected := make([]Affected, 0, len(steps))
	s := &saga{}
	for _, step := range steps {
		s.add(fmt.Sprintf("update budget %d", step.BudgetId),
			func(ctx context.Context) error {
				if step.Delta.IsZero() {
					b, err := a.repo.GetBudget(ctx, m.UserId, step.BudgetId)
					if err != nil {
						return err
					}
					affected = append(affected, Affected{BudgetId: b.Id, Before: b.CurrentAmount, After: b.CurrentAmount})
					return nil
				}
				changed, ok, err := a.repo.AddToCurrentAmount(ctx, m.UserId, step.BudgetId, step.Delta)
				if err != nil {
					return err
				}
				if !ok || !m.Guard(changed.After) {
					if ok {
						// the guard is stricter than the conditional update, give the change back
						if err := a.undoStep(ctx, m.UserId, step); err != nil {
							log.Errorf("could not undo update of budget %d: %v", step.BudgetId, err)
						}
					}
					return fmt.Errorf("%w: budget %d", ErrConcurrencyConflict, step.BudgetId)
				}
				affected = append(affected, changed)
				return nil
			},
			func(ctx context.Context) error {
				if step.Delta.IsZero() {
					return nil
				}
				return a.undoStep(ctx, m.UserId, step)
			})
	}
	if m.Record != nil {
		s.add("record", func(ctx context.Context) error {
			return m.Record(ctx, a.repo, affected)
		}, nil)
	}

	if err := s.run(ctx); err != nil {
		return nil, err
	}
	return affected, nil
}

func (a *Applier) undoStep(ctx context.Context, userId int, step Step) error {
	_, ok, err := a.repo.AddToCurrentAmount(ctx, userId, step.BudgetId, step.Delta.Neg())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("budget %d cannot take back %s", step.BudgetId, step.Delta.Neg().StringFixed(2))
	}
	return nil
}
