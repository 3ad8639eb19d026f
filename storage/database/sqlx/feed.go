package sqlxrepos

import (
	"context"

	"github.com/lib/pq"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/feed"
)

type feedRepository struct {
	db core.DBExecutor
}

var _ feed.Repository = (*feedRepository)(nil)

func NewFeedRepository(db core.DBExecutor) feed.Repository {
	return &feedRepository{db: db}
}

// Events

func (repo *feedRepository) QueryEvents(ctx context.Context, filter feed.EventFilter) ([]feed.CalendarEvent, error) {
	var w where
	if !filter.From.IsZero() {
		w.add("date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("date <= ?", filter.To)
	}
	if filter.Type != "" {
		w.add("type = ?", filter.Type)
	}
	rows := make([]feed.CalendarEvent, 0)
	q := "SELECT * FROM calendar_events" + w.String() + " ORDER BY date, title, id"
	err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), w.args...)
	return rows, wrap("query events", err)
}

func (repo *feedRepository) GetEvent(ctx context.Context, id string) (feed.CalendarEvent, error) {
	var e feed.CalendarEvent
	err := get(ctx, repo.db, &e, "event", id, "SELECT * FROM calendar_events WHERE id = ?", id)
	return e, err
}

func (repo *feedRepository) CreateEvent(ctx context.Context, e feed.CalendarEvent) (feed.CalendarEvent, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO calendar_events (id, title, date, description, type, created_at, updated_at)
		VALUES (:id, :title, :date, :description, :type, :created_at, :updated_at)`, e)
	if err != nil {
		return feed.CalendarEvent{}, wrap("insert event", err)
	}
	return e, nil
}

func (repo *feedRepository) UpdateEvent(ctx context.Context, e feed.CalendarEvent) (feed.CalendarEvent, error) {
	err := namedExecOne(ctx, repo.db, "event", e.ID, `
		UPDATE calendar_events
		SET title = :title, date = :date, description = :description, type = :type, updated_at = :updated_at
		WHERE id = :id`, e)
	if err != nil {
		return feed.CalendarEvent{}, err
	}
	return e, nil
}

func (repo *feedRepository) DeleteEvent(ctx context.Context, id string) error {
	return execOne(ctx, repo.db, "event", id, "DELETE FROM calendar_events WHERE id = ?", id)
}

// Activities

func (repo *feedRepository) QueryActivities(ctx context.Context, filter feed.ActivityFilter) ([]feed.Activity, error) {
	var w where
	if filter.ClassID != "" {
		w.add("class_id = ?", filter.ClassID)
	}
	if filter.DisciplineID != "" {
		w.add("discipline_id = ?", filter.DisciplineID)
	}
	if filter.ClassIDs != nil {
		w.add("class_id = ANY(?)", pq.Array(filter.ClassIDs))
	}
	rows := make([]feed.Activity, 0)
	q := "SELECT * FROM activities" + w.String() + " ORDER BY due_date, id"
	err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), w.args...)
	return rows, wrap("query activities", err)
}

func (repo *feedRepository) GetActivity(ctx context.Context, id string) (feed.Activity, error) {
	var a feed.Activity
	err := get(ctx, repo.db, &a, "activity", id, "SELECT * FROM activities WHERE id = ?", id)
	return a, err
}

func (repo *feedRepository) CreateActivity(ctx context.Context, a feed.Activity) (feed.Activity, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO activities (id, class_id, discipline_id, description, due_date, created_at, updated_at)
		VALUES (:id, :class_id, :discipline_id, :description, :due_date, :created_at, :updated_at)`, a)
	if err != nil {
		return feed.Activity{}, wrap("insert activity", err)
	}
	return a, nil
}

func (repo *feedRepository) UpdateActivity(ctx context.Context, a feed.Activity) (feed.Activity, error) {
	err := namedExecOne(ctx, repo.db, "activity", a.ID, `
		UPDATE activities
		SET class_id = :class_id, discipline_id = :discipline_id, description = :description,
			due_date = :due_date, updated_at = :updated_at
		WHERE id = :id`, a)
	if err != nil {
		return feed.Activity{}, err
	}
	return a, nil
}

func (repo *feedRepository) DeleteActivity(ctx context.Context, id string) error {
	return execOne(ctx, repo.db, "activity", id, "DELETE FROM activities WHERE id = ?", id)
}
