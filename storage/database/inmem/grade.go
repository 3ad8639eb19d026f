package inmemdb

import (
	"context"
	"sort"
	"strconv"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/grade"
)

type gradeRepository struct {
	db *DB
}

var _ grade.Repository = (*gradeRepository)(nil)

func NewGradeRepository(db *DB) grade.Repository {
	return &gradeRepository{db: db}
}

func (repo *gradeRepository) QueryGrades(_ context.Context, filter grade.Filter) ([]grade.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := make(map[string]bool, len(filter.StudentIDs))
	for _, id := range filter.StudentIDs {
		students[id] = true
	}
	rows := make([]grade.Grade, 0)
	for _, g := range repo.db.grades {
		if len(students) > 0 && !students[g.StudentID] {
			continue
		}
		if filter.DisciplineID != "" && g.DisciplineID != filter.DisciplineID {
			continue
		}
		if filter.Unit != 0 && g.Unit != filter.Unit {
			continue
		}
		rows = append(rows, g)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.StudentID != b.StudentID {
			return a.StudentID < b.StudentID
		}
		if a.DisciplineID != b.DisciplineID {
			return a.DisciplineID < b.DisciplineID
		}
		return a.Unit < b.Unit
	})
	return rows, nil
}

func (repo *gradeRepository) find(key grade.Key) (grade.Grade, bool) {
	for _, g := range repo.db.grades {
		if g.Key() == key {
			return g, true
		}
	}
	return grade.Grade{}, false
}

func (repo *gradeRepository) GetGrade(_ context.Context, key grade.Key) (grade.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	g, ok := repo.find(key)
	if !ok {
		return grade.Grade{}, core.NewNotFoundError("grade", key.StudentID+"/"+key.DisciplineID+"/"+strconv.Itoa(key.Unit))
	}
	return g, nil
}

func (repo *gradeRepository) UpdateGrade(_ context.Context, g grade.Grade) (grade.Grade, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.grades[g.ID]; !ok {
		return grade.Grade{}, core.NewNotFoundError("grade", g.ID)
	}
	repo.db.grades[g.ID] = g
	return g, nil
}

func (repo *gradeRepository) UpsertGrade(_ context.Context, g grade.Grade) (grade.Grade, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if existing, ok := repo.find(g.Key()); ok {
		existing.Grade = g.Grade
		existing.UpdatedAt = g.UpdatedAt
		g = existing
	}
	repo.db.grades[g.ID] = g
	return g, nil
}
