package day

import (
	"context"
	"sync"
	"time"

	"github.com/pocket/pocket/internal/utils"
)

type dayKey struct {
	userId int
	date   string
}

type StubRepository struct {
	mu   sync.Mutex
	days map[dayKey]Day
}

func NewStubRepository() *StubRepository {
	return &StubRepository{days: map[dayKey]Day{}}
}

func key(userId int, date time.Time) dayKey {
	return dayKey{userId: userId, date: date.Format(utils.DateLayout)}
}

func (s *StubRepository) Get(ctx context.Context, userId int, date time.Time) (Day, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.days[key(userId, date)]
	if !ok {
		return Day{}, ErrDayNotFound
	}
	return d, nil
}

func (s *StubRepository) FindLatestBefore(ctx context.Context, userId int, date time.Time) (Day, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest Day
	found := false
	for _, d := range s.days {
		if d.UserId == userId && d.Date.Before(date) && (!found || d.Date.After(latest.Date)) {
			latest = d
			found = true
		}
	}
	if !found {
		return Day{}, ErrDayNotFound
	}
	return latest, nil
}

func (s *StubRepository) Upsert(ctx context.Context, day Day) (Day, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(day.UserId, day.Date)
	if existing, ok := s.days[k]; ok {
		if existing.Locked {
			return Day{}, ErrDayLocked
		}
		day.InitialPocket = existing.InitialPocket
		day.FinalPocket = existing.InitialPocket.Add(day.Gains).Sub(day.Expenses)
	}
	day.Locked = false
	day.Updated = time.Now()
	s.days[k] = day
	return day, nil
}

func (s *StubRepository) Lock(ctx context.Context, userId int, date time.Time) (Day, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(userId, date)
	d, ok := s.days[k]
	if !ok {
		return Day{}, ErrDayNotFound
	}
	d.Locked = true
	s.days[k] = d
	return d, nil
}

func (s *StubRepository) IsLocked(ctx context.Context, userId int, date time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.days[key(userId, date)].Locked, nil
}
