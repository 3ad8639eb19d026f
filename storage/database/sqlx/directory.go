package sqlxrepos

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/directory"
)

type directoryRepository struct {
	db core.DBExecutor
}

var _ directory.Repository = (*directoryRepository)(nil)

func NewDirectoryRepository(db core.DBExecutor) directory.Repository {
	return &directoryRepository{db: db}
}

// Guardians

func (repo *directoryRepository) QueryGuardians(ctx context.Context) ([]directory.Guardian, error) {
	rows := make([]directory.Guardian, 0)
	err := repo.db.SelectContext(ctx, &rows, "SELECT * FROM guardians ORDER BY lower(name), id")
	return rows, wrap("query guardians", err)
}

func (repo *directoryRepository) GetGuardian(ctx context.Context, id string) (directory.Guardian, error) {
	var g directory.Guardian
	err := get(ctx, repo.db, &g, "guardian", id, "SELECT * FROM guardians WHERE id = ?", id)
	return g, err
}

func (repo *directoryRepository) CreateGuardian(ctx context.Context, g directory.Guardian) (directory.Guardian, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO guardians (id, name, email, phone, due_date_day, created_at, updated_at)
		VALUES (:id, :name, :email, :phone, :due_date_day, :created_at, :updated_at)`, g)
	if err != nil {
		return directory.Guardian{}, wrap("insert guardian", err)
	}
	return g, nil
}

func (repo *directoryRepository) UpdateGuardian(ctx context.Context, g directory.Guardian) (directory.Guardian, error) {
	err := namedExecOne(ctx, repo.db, "guardian", g.ID, `
		UPDATE guardians
		SET name = :name, email = :email, phone = :phone, due_date_day = :due_date_day, updated_at = :updated_at
		WHERE id = :id`, g)
	if err != nil {
		return directory.Guardian{}, err
	}
	return g, nil
}

func (repo *directoryRepository) DeleteGuardian(ctx context.Context, id string) error {
	return execOne(ctx, repo.db, "guardian", id, "DELETE FROM guardians WHERE id = ?", id)
}

func (repo *directoryRepository) GuardianDependents(ctx context.Context, id string) (directory.Dependents, error) {
	var deps directory.Dependents
	err := repo.db.GetContext(ctx, &deps, repo.db.Rebind(`
		SELECT
			(SELECT count(*) FROM students WHERE guardian_id = ?) AS students,
			(SELECT count(*) FROM boletos WHERE guardian_id = ?) AS boletos`), id, id)
	return deps, wrap("count guardian dependents", err)
}

// Students

func (repo *directoryRepository) QueryStudents(ctx context.Context, filter directory.StudentFilter) ([]directory.Student, error) {
	var w where
	if filter.GuardianID != "" {
		w.add("guardian_id = ?", filter.GuardianID)
	}
	if filter.Class != "" {
		w.add("class = ?", filter.Class)
	}
	rows := make([]directory.Student, 0)
	q := "SELECT * FROM students" + w.String() + " ORDER BY lower(name), id"
	err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), w.args...)
	return rows, wrap("query students", err)
}

func (repo *directoryRepository) GetStudent(ctx context.Context, id string) (directory.Student, error) {
	var s directory.Student
	err := get(ctx, repo.db, &s, "student", id, "SELECT * FROM students WHERE id = ?", id)
	return s, err
}

func (repo *directoryRepository) CreateStudent(ctx context.Context, s directory.Student) (directory.Student, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO students (id, name, cpf, guardian_id, class, created_at, updated_at)
		VALUES (:id, :name, :cpf, :guardian_id, :class, :created_at, :updated_at)`, s)
	if err != nil {
		return directory.Student{}, wrap("insert student", err)
	}
	return s, nil
}

func (repo *directoryRepository) UpdateStudent(ctx context.Context, s directory.Student) (directory.Student, error) {
	err := namedExecOne(ctx, repo.db, "student", s.ID, `
		UPDATE students
		SET name = :name, cpf = :cpf, guardian_id = :guardian_id, class = :class, updated_at = :updated_at
		WHERE id = :id`, s)
	if err != nil {
		return directory.Student{}, err
	}
	return s, nil
}

// DeleteStudent deletes a student; its grades go with it.
func (repo *directoryRepository) DeleteStudent(ctx context.Context, id string) error {
	return execOne(ctx, repo.db, "student", id, "DELETE FROM students WHERE id = ?", id)
}

// Teachers

type teacherRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Email     string         `db:"email"`
	Subjects  pq.StringArray `db:"subjects"`
	Classes   pq.StringArray `db:"classes"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func toTeacherRow(t directory.Teacher) teacherRow {
	return teacherRow{
		ID:        t.ID,
		Name:      t.Name,
		Email:     t.Email,
		Subjects:  pq.StringArray(nonNil(t.Subjects)),
		Classes:   pq.StringArray(nonNil(t.Classes)),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func (row teacherRow) teacher() directory.Teacher {
	return directory.Teacher{
		ID:        row.ID,
		Name:      row.Name,
		Email:     row.Email,
		Subjects:  nonNil(row.Subjects),
		Classes:   nonNil(row.Classes),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func (repo *directoryRepository) QueryTeachers(ctx context.Context) ([]directory.Teacher, error) {
	var rows []teacherRow
	if err := repo.db.SelectContext(ctx, &rows, "SELECT * FROM teachers ORDER BY lower(name), id"); err != nil {
		return nil, wrap("query teachers", err)
	}
	teachers := make([]directory.Teacher, len(rows))
	for i, row := range rows {
		teachers[i] = row.teacher()
	}
	return teachers, nil
}

func (repo *directoryRepository) GetTeacher(ctx context.Context, id string) (directory.Teacher, error) {
	var row teacherRow
	if err := get(ctx, repo.db, &row, "teacher", id, "SELECT * FROM teachers WHERE id = ?", id); err != nil {
		return directory.Teacher{}, err
	}
	return row.teacher(), nil
}

func (repo *directoryRepository) CreateTeacher(ctx context.Context, t directory.Teacher) (directory.Teacher, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO teachers (id, name, email, subjects, classes, created_at, updated_at)
		VALUES (:id, :name, :email, :subjects, :classes, :created_at, :updated_at)`, toTeacherRow(t))
	if err != nil {
		return directory.Teacher{}, wrap("insert teacher", err)
	}
	return t, nil
}

func (repo *directoryRepository) UpdateTeacher(ctx context.Context, t directory.Teacher) (directory.Teacher, error) {
	err := namedExecOne(ctx, repo.db, "teacher", t.ID, `
		UPDATE teachers
		SET name = :name, email = :email, subjects = :subjects, classes = :classes, updated_at = :updated_at
		WHERE id = :id`, toTeacherRow(t))
	if err != nil {
		return directory.Teacher{}, err
	}
	return t, nil
}

func (repo *directoryRepository) DeleteTeacher(ctx context.Context, id string) error {
	return execOne(ctx, repo.db, "teacher", id, "DELETE FROM teachers WHERE id = ?", id)
}

// Catalog

func catalogTable(kind directory.Kind) string {
	if kind == directory.KindDiscipline {
		return "disciplines"
	}
	return "classes"
}

func (repo *directoryRepository) QueryEntries(ctx context.Context, kind directory.Kind) ([]directory.Entry, error) {
	rows := make([]directory.Entry, 0)
	err := repo.db.SelectContext(ctx, &rows, "SELECT * FROM "+catalogTable(kind)+" ORDER BY lower(name), id")
	return rows, wrap("query "+catalogTable(kind), err)
}

func (repo *directoryRepository) GetEntry(ctx context.Context, kind directory.Kind, id string) (directory.Entry, error) {
	var e directory.Entry
	err := get(ctx, repo.db, &e, string(kind), id, "SELECT * FROM "+catalogTable(kind)+" WHERE id = ?", id)
	return e, err
}

func (repo *directoryRepository) CreateEntry(ctx context.Context, kind directory.Kind, e directory.Entry) (directory.Entry, error) {
	_, err := repo.db.NamedExecContext(ctx,
		"INSERT INTO "+catalogTable(kind)+" (id, name, created_at) VALUES (:id, :name, :created_at)", e)
	if err != nil {
		return directory.Entry{}, wrap("insert "+string(kind), err)
	}
	return e, nil
}

func (repo *directoryRepository) UpdateEntry(ctx context.Context, kind directory.Kind, e directory.Entry) (directory.Entry, error) {
	err := namedExecOne(ctx, repo.db, string(kind), e.ID,
		"UPDATE "+catalogTable(kind)+" SET name = :name WHERE id = :id", e)
	if err != nil {
		return directory.Entry{}, err
	}
	return e, nil
}

func (repo *directoryRepository) DeleteEntry(ctx context.Context, kind directory.Kind, id string) error {
	return execOne(ctx, repo.db, string(kind), id, "DELETE FROM "+catalogTable(kind)+" WHERE id = ?", id)
}
