package inmemdb

import (
	"sort"
	"strings"
	"sync"

	"github.com/trezcool/escola/core/auth"
	"github.com/trezcool/escola/core/billing"
	"github.com/trezcool/escola/core/directory"
	"github.com/trezcool/escola/core/feed"
	"github.com/trezcool/escola/core/grade"
)

type (
	// DB is an in-memory database, for tests & local development.
	DB struct {
		mu sync.RWMutex

		guardians   map[string]directory.Guardian
		students    map[string]directory.Student
		teachers    map[string]directory.Teacher
		classes     map[string]directory.Entry
		disciplines map[string]directory.Entry
		grades      map[string]grade.Grade
		boletos     map[string]billing.Boleto
		events      map[string]feed.CalendarEvent
		activities  map[string]feed.Activity
		accounts    map[string]auth.Account
		sessions    map[string]auth.SessionRecord
	}
)

func Open() *DB {
	return &DB{
		guardians:   make(map[string]directory.Guardian),
		students:    make(map[string]directory.Student),
		teachers:    make(map[string]directory.Teacher),
		classes:     make(map[string]directory.Entry),
		disciplines: make(map[string]directory.Entry),
		grades:      make(map[string]grade.Grade),
		boletos:     make(map[string]billing.Boleto),
		events:      make(map[string]feed.CalendarEvent),
		activities:  make(map[string]feed.Activity),
		accounts:    make(map[string]auth.Account),
		sessions:    make(map[string]auth.SessionRecord),
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	fresh := Open()
	db.mu.Lock()
	defer db.mu.Unlock()
	db.guardians = fresh.guardians
	db.students = fresh.students
	db.teachers = fresh.teachers
	db.classes = fresh.classes
	db.disciplines = fresh.disciplines
	db.grades = fresh.grades
	db.boletos = fresh.boletos
	db.events = fresh.events
	db.activities = fresh.activities
	db.accounts = fresh.accounts
	db.sessions = fresh.sessions
}

func sortByName[T any](rows []T, name func(T) string) {
	sort.SliceStable(rows, func(i, j int) bool {
		return strings.ToLower(name(rows[i])) < strings.ToLower(name(rows[j]))
	})
}

func values[T any](m map[string]T) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func cloneStrings(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return append([]string{}, ss...)
}
