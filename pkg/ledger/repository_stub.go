package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pocket/pocket/pkg/budget"
	"github.com/shopspring/decimal"
)

// StubRepository keeps the ledger in memory. InTx serializes transactions and rolls back their writes on error.
type StubRepository struct {
	mu           sync.Mutex
	txMu         sync.Mutex
	nextBudgetId int
	budgets      map[int]budget.Budget
	transactions []Transaction
	journal      []JournalEntry

	// BeforeConditionalUpdate, when set, runs before each conditional update with the budget id.
	// Tests use it to interleave a competing write.
	BeforeConditionalUpdate func(budgetId int)

	// FailInsertTransaction makes InsertTransaction return the error.
	FailInsertTransaction error
}

func NewStubRepository() *StubRepository {
	return &StubRepository{budgets: map[int]budget.Budget{}}
}

// AddBudget stores b with a new id and returns it.
func (s *StubRepository) AddBudget(b budget.Budget) budget.Budget {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBudgetId++
	b.Id = s.nextBudgetId
	if b.InitialAmount.IsZero() {
		b.InitialAmount = b.Amount
	}
	b.Created = time.Now()
	s.budgets[b.Id] = b
	return b
}

func (s *StubRepository) Budget(id int) budget.Budget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budgets[id]
}

func (s *StubRepository) Transactions() []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transaction(nil), s.transactions...)
}

func (s *StubRepository) Journal() []JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]JournalEntry(nil), s.journal...)
}

func (s *StubRepository) InTx(ctx context.Context, fn func(store Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	budgets := make(map[int]budget.Budget, len(s.budgets))
	for id, b := range s.budgets {
		budgets[id] = b
	}
	transactions := len(s.transactions)
	journal := len(s.journal)
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.budgets = budgets
		s.transactions = s.transactions[:transactions]
		s.journal = s.journal[:journal]
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *StubRepository) GetBudget(ctx context.Context, userId int, id int) (budget.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok || b.UserId != userId {
		return budget.Budget{}, ErrBudgetNotFound
	}
	return b, nil
}

func (s *StubRepository) LockBudgets(ctx context.Context, userId int, ids []int) ([]budget.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	budgets := make([]budget.Budget, 0, len(ids))
	for _, id := range ids {
		if b, ok := s.budgets[id]; ok && b.UserId == userId {
			budgets = append(budgets, b)
		}
	}
	sort.Slice(budgets, func(i, j int) bool { return budgets[i].Id < budgets[j].Id })
	return budgets, nil
}

func (s *StubRepository) SetCurrentAmount(ctx context.Context, userId int, id int, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok || b.UserId != userId {
		return ErrBudgetNotFound
	}
	if amount.IsNegative() {
		return ErrNegativeBalance
	}
	b.CurrentAmount = amount
	s.budgets[id] = b
	return nil
}

func (s *StubRepository) AddToCurrentAmount(ctx context.Context, userId int, id int, delta decimal.Decimal) (Affected, bool, error) {
	if s.BeforeConditionalUpdate != nil {
		s.BeforeConditionalUpdate(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok || b.UserId != userId {
		return Affected{}, false, nil
	}
	after := b.CurrentAmount.Add(delta)
	if after.IsNegative() {
		return Affected{}, false, nil
	}
	before := b.CurrentAmount
	b.CurrentAmount = after
	s.budgets[id] = b
	return Affected{BudgetId: id, Before: before, After: after}, true, nil
}

func (s *StubRepository) CompareAndSetCurrentAmount(ctx context.Context, userId int, id int, expected decimal.Decimal, amount decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok || b.UserId != userId || !b.CurrentAmount.Equal(expected) {
		return false, nil
	}
	b.CurrentAmount = amount
	s.budgets[id] = b
	return true, nil
}

func (s *StubRepository) InsertTransaction(ctx context.Context, t Transaction) error {
	if s.FailInsertTransaction != nil {
		return s.FailInsertTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Created = time.Now()
	s.transactions = append(s.transactions, t)
	return nil
}

func (s *StubRepository) InsertJournalEntry(ctx context.Context, entry JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Created = time.Now()
	s.journal = append(s.journal, entry)
	return nil
}

func (s *StubRepository) FindPrimary(ctx context.Context, userId int) (budget.Budget, error) {
	return s.findFirst(userId, func(b budget.Budget) bool { return b.IsPrimary })
}

func (s *StubRepository) FindFirstByFrequency(ctx context.Context, userId int, frequency budget.Frequency) (budget.Budget, error) {
	return s.findFirst(userId, func(b budget.Budget) bool { return b.Frequency == frequency })
}

func (s *StubRepository) findFirst(userId int, match func(b budget.Budget) bool) (budget.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := budget.Budget{}
	for _, b := range s.budgets {
		if b.UserId == userId && match(b) && (found.Id == 0 || b.Id < found.Id) {
			found = b
		}
	}
	if found.Id == 0 {
		return budget.Budget{}, ErrBudgetNotFound
	}
	return found, nil
}

func (s *StubRepository) ListTransactions(ctx context.Context, userId int, from time.Time, to time.Time) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	transactions := make([]Transaction, 0)
	for _, t := range s.transactions {
		if t.UserId == userId && !t.Date.Before(from) && !t.Date.After(to) {
			transactions = append(transactions, t)
		}
	}
	return transactions, nil
}

func (s *StubRepository) SumExpenses(ctx context.Context, userId int, from time.Time, to time.Time) (decimal.Decimal, error) {
	transactions, _ := s.ListTransactions(ctx, userId, from, to)
	sum := decimal.Zero
	for _, t := range transactions {
		if t.Type == Expense {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (s *StubRepository) ListJournal(ctx context.Context, userId int, limit int) ([]JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]JournalEntry, 0)
	for i := len(s.journal) - 1; i >= 0 && len(entries) < limit; i-- {
		if s.journal[i].UserId == userId {
			entries = append(entries, s.journal[i])
		}
	}
	return entries, nil
}
