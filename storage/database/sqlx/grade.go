package sqlxrepos

import (
	"context"
	"strconv"

	"github.com/lib/pq"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/grade"
)

type gradeRepository struct {
	db core.DBExecutor
}

var _ grade.Repository = (*gradeRepository)(nil)

func NewGradeRepository(db core.DBExecutor) grade.Repository {
	return &gradeRepository{db: db}
}

func (repo *gradeRepository) QueryGrades(ctx context.Context, filter grade.Filter) ([]grade.Grade, error) {
	var w where
	if len(filter.StudentIDs) > 0 {
		w.add("student_id = ANY(?)", pq.Array(filter.StudentIDs))
	}
	if filter.DisciplineID != "" {
		w.add("discipline_id = ?", filter.DisciplineID)
	}
	if filter.Unit != 0 {
		w.add("unit = ?", filter.Unit)
	}
	rows := make([]grade.Grade, 0)
	q := "SELECT * FROM grades" + w.String() + " ORDER BY student_id, discipline_id, unit"
	err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), w.args...)
	return rows, wrap("query grades", err)
}

func (repo *gradeRepository) GetGrade(ctx context.Context, key grade.Key) (grade.Grade, error) {
	var g grade.Grade
	err := get(ctx, repo.db, &g, "grade", key.StudentID+"/"+key.DisciplineID+"/"+strconv.Itoa(key.Unit), `
		SELECT * FROM grades WHERE student_id = ? AND discipline_id = ? AND unit = ?`,
		key.StudentID, key.DisciplineID, key.Unit)
	return g, err
}

func (repo *gradeRepository) UpdateGrade(ctx context.Context, g grade.Grade) (grade.Grade, error) {
	err := namedExecOne(ctx, repo.db, "grade", g.ID,
		"UPDATE grades SET grade = :grade, updated_at = :updated_at WHERE id = :id", g)
	if err != nil {
		return grade.Grade{}, err
	}
	return g, nil
}

// UpsertGrade keeps the id of the stored grade when the key already exists.
func (repo *gradeRepository) UpsertGrade(ctx context.Context, g grade.Grade) (grade.Grade, error) {
	var stored grade.Grade
	err := repo.db.GetContext(ctx, &stored, repo.db.Rebind(`
		INSERT INTO grades (id, student_id, discipline_id, unit, grade, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_id, discipline_id, unit)
		DO UPDATE SET grade = EXCLUDED.grade, updated_at = EXCLUDED.updated_at
		RETURNING *`),
		g.ID, g.StudentID, g.DisciplineID, g.Unit, g.Grade, g.UpdatedAt)
	if err != nil {
		return grade.Grade{}, wrap("upsert grade", err)
	}
	return stored, nil
}
