package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/feed"
)

type feedRepository struct {
	db *DB
}

var _ feed.Repository = (*feedRepository)(nil)

func NewFeedRepository(db *DB) feed.Repository {
	return &feedRepository{db: db}
}

func (repo *feedRepository) QueryEvents(_ context.Context, filter feed.EventFilter) ([]feed.CalendarEvent, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	rows := make([]feed.CalendarEvent, 0)
	for _, e := range repo.db.events {
		if filter.Matches(e) {
			rows = append(rows, e)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].Title < rows[j].Title
	})
	return rows, nil
}

func (repo *feedRepository) GetEvent(_ context.Context, id string) (feed.CalendarEvent, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	e, ok := repo.db.events[id]
	if !ok {
		return feed.CalendarEvent{}, core.NewNotFoundError("event", id)
	}
	return e, nil
}

func (repo *feedRepository) CreateEvent(_ context.Context, e feed.CalendarEvent) (feed.CalendarEvent, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.events[e.ID] = e
	return e, nil
}

func (repo *feedRepository) UpdateEvent(_ context.Context, e feed.CalendarEvent) (feed.CalendarEvent, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.events[e.ID]; !ok {
		return feed.CalendarEvent{}, core.NewNotFoundError("event", e.ID)
	}
	repo.db.events[e.ID] = e
	return e, nil
}

func (repo *feedRepository) DeleteEvent(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.events[id]; !ok {
		return core.NewNotFoundError("event", id)
	}
	delete(repo.db.events, id)
	return nil
}

func (repo *feedRepository) QueryActivities(_ context.Context, filter feed.ActivityFilter) ([]feed.Activity, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	rows := make([]feed.Activity, 0)
	for _, a := range repo.db.activities {
		if filter.Matches(a) {
			rows = append(rows, a)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].DueDate.Equal(rows[j].DueDate) {
			return rows[i].DueDate.Before(rows[j].DueDate)
		}
		return rows[i].ID < rows[j].ID
	})
	return rows, nil
}

func (repo *feedRepository) GetActivity(_ context.Context, id string) (feed.Activity, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	a, ok := repo.db.activities[id]
	if !ok {
		return feed.Activity{}, core.NewNotFoundError("activity", id)
	}
	return a, nil
}

func (repo *feedRepository) CreateActivity(_ context.Context, a feed.Activity) (feed.Activity, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.activities[a.ID] = a
	return a, nil
}

func (repo *feedRepository) UpdateActivity(_ context.Context, a feed.Activity) (feed.Activity, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.activities[a.ID]; !ok {
		return feed.Activity{}, core.NewNotFoundError("activity", a.ID)
	}
	repo.db.activities[a.ID] = a
	return a, nil
}

func (repo *feedRepository) DeleteActivity(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.activities[id]; !ok {
		return core.NewNotFoundError("activity", id)
	}
	delete(repo.db.activities, id)
	return nil
}
