package feed

import (
	"time"

	"github.com/trezcool/escola/core"
)

type EventType string

// Event types
const (
	EventGeneral  EventType = "event"
	EventHoliday  EventType = "holiday"
	EventExam     EventType = "exam"
	EventReminder EventType = "reminder"
)

var EventTypes = []EventType{EventGeneral, EventHoliday, EventExam, EventReminder}

type CalendarEvent struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Date        core.Date `json:"date" db:"date"`
	Description string    `json:"description" db:"description"`
	Type        EventType `json:"type" db:"type"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type NewEvent struct {
	Title       string    `json:"title" validate:"required,notblank,max=255"`
	Date        core.Date `json:"date"`
	Description string    `json:"description" validate:"max=4000"`
	Type        EventType `json:"type" validate:"omitempty,oneof=event holiday exam reminder"`
}

func (ne *NewEvent) Clean() {
	ne.Title = core.CleanString(ne.Title)
	ne.Description = core.CleanString(ne.Description)
	ne.Type = EventType(core.CleanString(string(ne.Type), true /* lower */))
	if ne.Type == "" {
		ne.Type = EventGeneral
	}
}

type UpdateEvent struct {
	Title       *string    `json:"title" validate:"omitempty,notblank,max=255"`
	Date        *core.Date `json:"date"`
	Description *string    `json:"description" validate:"omitempty,max=4000"`
	Type        *EventType `json:"type" validate:"omitempty,oneof=event holiday exam reminder"`
}

func (ue *UpdateEvent) Clean() {
	if ue.Title != nil {
		*ue.Title = core.CleanString(*ue.Title)
	}
	if ue.Description != nil {
		*ue.Description = core.CleanString(*ue.Description)
	}
	if ue.Type != nil {
		*ue.Type = EventType(core.CleanString(string(*ue.Type), true /* lower */))
	}
}

func (ue UpdateEvent) merge(e CalendarEvent) CalendarEvent {
	if ue.Title != nil {
		e.Title = *ue.Title
	}
	if ue.Date != nil && !ue.Date.IsZero() {
		e.Date = *ue.Date
	}
	if ue.Description != nil {
		e.Description = *ue.Description
	}
	if ue.Type != nil {
		e.Type = *ue.Type
	}
	return e
}

// EventFilter selects the events dated within [From, To]. Zero bounds are open.
type EventFilter struct {
	From core.Date `query:"from"`
	To   core.Date `query:"to"`
	Type EventType `query:"type"`
}

func (f EventFilter) Matches(e CalendarEvent) bool {
	if !f.From.IsZero() && e.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Date.After(f.To) {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	return true
}

// Activity is homework or any task posted to a class for a discipline.
type Activity struct {
	ID           string    `json:"id" db:"id"`
	ClassID      string    `json:"class_id" db:"class_id"`
	DisciplineID string    `json:"discipline_id" db:"discipline_id"`
	Description  string    `json:"description" db:"description"`
	DueDate      core.Date `json:"due_date" db:"due_date"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type NewActivity struct {
	ClassID      string    `json:"class_id" validate:"required"`
	DisciplineID string    `json:"discipline_id" validate:"required"`
	Description  string    `json:"description" validate:"required,notblank,max=4000"`
	DueDate      core.Date `json:"due_date"`
}

func (na *NewActivity) Clean() {
	na.ClassID = core.CleanString(na.ClassID)
	na.DisciplineID = core.CleanString(na.DisciplineID)
	na.Description = core.CleanString(na.Description)
}

type UpdateActivity struct {
	ClassID      *string    `json:"class_id" validate:"omitempty,notblank"`
	DisciplineID *string    `json:"discipline_id" validate:"omitempty,notblank"`
	Description  *string    `json:"description" validate:"omitempty,notblank,max=4000"`
	DueDate      *core.Date `json:"due_date"`
}

func (ua *UpdateActivity) Clean() {
	for _, s := range []*string{ua.ClassID, ua.DisciplineID, ua.Description} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
}

func (ua UpdateActivity) merge(a Activity) Activity {
	if ua.ClassID != nil {
		a.ClassID = *ua.ClassID
	}
	if ua.DisciplineID != nil {
		a.DisciplineID = *ua.DisciplineID
	}
	if ua.Description != nil {
		a.Description = *ua.Description
	}
	if ua.DueDate != nil && !ua.DueDate.IsZero() {
		a.DueDate = *ua.DueDate
	}
	return a
}

type ActivityFilter struct {
	ClassID      string `query:"class_id"`
	DisciplineID string `query:"discipline_id"`
	// ClassIDs, when not nil, restricts the result to these classes.
	ClassIDs []string
}

func (f *ActivityFilter) Clean() {
	f.ClassID = core.CleanString(f.ClassID)
	f.DisciplineID = core.CleanString(f.DisciplineID)
}

func (f ActivityFilter) Matches(a Activity) bool {
	if f.ClassID != "" && a.ClassID != f.ClassID {
		return false
	}
	if f.DisciplineID != "" && a.DisciplineID != f.DisciplineID {
		return false
	}
	if f.ClassIDs != nil {
		for _, id := range f.ClassIDs {
			if a.ClassID == id {
				return true
			}
		}
		return false
	}
	return true
}
