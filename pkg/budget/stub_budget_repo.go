package budget

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type StubBudgetRepo struct {
	mu     sync.Mutex
	nextId int
	data   map[int]Budget
}

func NewStubBudgetRepo() *StubBudgetRepo {
	return &StubBudgetRepo{nextId: 0, data: map[int]Budget{}}
}

func (s *StubBudgetRepo) Store(ctx context.Context, userId int, budget Budget) (Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if budget.IsPrimary {
		for _, b := range s.data {
			if b.UserId == userId && b.IsPrimary {
				return Budget{}, ErrPrimaryExists
			}
		}
	}
	s.nextId++
	budget.Id = s.nextId
	budget.UserId = userId
	budget.Created = time.Now()
	s.data[budget.Id] = budget
	return budget, nil
}

func (s *StubBudgetRepo) Get(ctx context.Context, userId int, id int) (Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[id]
	if !ok || b.UserId != userId {
		return Budget{}, ErrBudgetNotFound
	}
	return b, nil
}

func (s *StubBudgetRepo) GetAll(ctx context.Context, userId int) ([]Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	budgets := make([]Budget, 0, len(s.data))
	for _, b := range s.data {
		if b.UserId == userId {
			budgets = append(budgets, b)
		}
	}
	sort.Slice(budgets, func(i, j int) bool { return budgets[i].Id < budgets[j].Id })
	return budgets, nil
}

func (s *StubBudgetRepo) FindPrimary(ctx context.Context, userId int) (Budget, error) {
	budgets, _ := s.GetAll(ctx, userId)
	for _, b := range budgets {
		if b.IsPrimary {
			return b, nil
		}
	}
	return Budget{}, ErrBudgetNotFound
}

func (s *StubBudgetRepo) FindFirstByFrequency(ctx context.Context, userId int, frequency Frequency) (Budget, error) {
	budgets, _ := s.GetAll(ctx, userId)
	for _, b := range budgets {
		if b.Frequency == frequency {
			return b, nil
		}
	}
	return Budget{}, ErrBudgetNotFound
}

func (s *StubBudgetRepo) UpdateAmount(ctx context.Context, userId int, id int, amount decimal.Decimal) (Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[id]
	if !ok || b.UserId != userId || b.IsPrimary {
		return Budget{}, ErrBudgetNotFound
	}
	b.CurrentAmount = decimal.Max(b.CurrentAmount.Add(amount.Sub(b.Amount)), decimal.Zero)
	b.Amount = amount
	s.data[id] = b
	return b, nil
}

func (s *StubBudgetRepo) Rename(ctx context.Context, userId int, id int, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[id]
	if !ok || b.UserId != userId {
		return false, nil
	}
	b.Name = name
	s.data[id] = b
	return true, nil
}

func (s *StubBudgetRepo) Delete(ctx context.Context, userId int, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[id]
	if !ok || b.UserId != userId {
		return false, nil
	}
	delete(s.data, id)
	return true, nil
}

func (s *StubBudgetRepo) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = map[int]Budget{}
}
