package inmemdb

import (
	"context"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/directory"
)

type directoryRepository struct {
	db *DB
}

var _ directory.Repository = (*directoryRepository)(nil)

func NewDirectoryRepository(db *DB) directory.Repository {
	return &directoryRepository{db: db}
}

// Guardians

func (repo *directoryRepository) QueryGuardians(_ context.Context) ([]directory.Guardian, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	rows := values(repo.db.guardians)
	sortByName(rows, func(g directory.Guardian) string { return g.Name })
	return rows, nil
}

func (repo *directoryRepository) GetGuardian(_ context.Context, id string) (directory.Guardian, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	g, ok := repo.db.guardians[id]
	if !ok {
		return directory.Guardian{}, core.NewNotFoundError("guardian", id)
	}
	return g, nil
}

func (repo *directoryRepository) CreateGuardian(_ context.Context, g directory.Guardian) (directory.Guardian, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	for _, other := range repo.db.guardians {
		if other.Email == g.Email {
			return directory.Guardian{}, directory.ErrEmailExists
		}
	}
	repo.db.guardians[g.ID] = g
	return g, nil
}

func (repo *directoryRepository) UpdateGuardian(_ context.Context, g directory.Guardian) (directory.Guardian, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.guardians[g.ID]; !ok {
		return directory.Guardian{}, core.NewNotFoundError("guardian", g.ID)
	}
	for _, other := range repo.db.guardians {
		if other.Email == g.Email && other.ID != g.ID {
			return directory.Guardian{}, directory.ErrEmailExists
		}
	}
	repo.db.guardians[g.ID] = g
	return g, nil
}

func (repo *directoryRepository) DeleteGuardian(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.guardians[id]; !ok {
		return core.NewNotFoundError("guardian", id)
	}
	delete(repo.db.guardians, id)
	return nil
}

func (repo *directoryRepository) GuardianDependents(_ context.Context, id string) (directory.Dependents, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	var deps directory.Dependents
	for _, s := range repo.db.students {
		if s.GuardianID.Valid && s.GuardianID.String == id {
			deps.Students++
		}
	}
	for _, b := range repo.db.boletos {
		if b.GuardianID == id {
			deps.Boletos++
		}
	}
	return deps, nil
}

// Students

func (repo *directoryRepository) QueryStudents(_ context.Context, filter directory.StudentFilter) ([]directory.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	rows := make([]directory.Student, 0, len(repo.db.students))
	for _, s := range repo.db.students {
		if filter.GuardianID != "" && s.GuardianID.String != filter.GuardianID {
			continue
		}
		if filter.Class != "" && s.Class != filter.Class {
			continue
		}
		rows = append(rows, s)
	}
	sortByName(rows, func(s directory.Student) string { return s.Name })
	return rows, nil
}

func (repo *directoryRepository) GetStudent(_ context.Context, id string) (directory.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	s, ok := repo.db.students[id]
	if !ok {
		return directory.Student{}, core.NewNotFoundError("student", id)
	}
	return s, nil
}

func (repo *directoryRepository) CreateStudent(_ context.Context, s directory.Student) (directory.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.students[s.ID] = s
	return s, nil
}

func (repo *directoryRepository) UpdateStudent(_ context.Context, s directory.Student) (directory.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.students[s.ID]; !ok {
		return directory.Student{}, core.NewNotFoundError("student", s.ID)
	}
	repo.db.students[s.ID] = s
	return s, nil
}

func (repo *directoryRepository) DeleteStudent(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.students[id]; !ok {
		return core.NewNotFoundError("student", id)
	}
	delete(repo.db.students, id)
	for gid, g := range repo.db.grades {
		if g.StudentID == id {
			delete(repo.db.grades, gid)
		}
	}
	return nil
}

// Teachers

func (repo *directoryRepository) QueryTeachers(_ context.Context) ([]directory.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	rows := make([]directory.Teacher, 0, len(repo.db.teachers))
	for _, t := range repo.db.teachers {
		rows = append(rows, copyTeacher(t))
	}
	sortByName(rows, func(t directory.Teacher) string { return t.Name })
	return rows, nil
}

func (repo *directoryRepository) GetTeacher(_ context.Context, id string) (directory.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	t, ok := repo.db.teachers[id]
	if !ok {
		return directory.Teacher{}, core.NewNotFoundError("teacher", id)
	}
	return copyTeacher(t), nil
}

func (repo *directoryRepository) CreateTeacher(_ context.Context, t directory.Teacher) (directory.Teacher, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	for _, other := range repo.db.teachers {
		if other.Email == t.Email {
			return directory.Teacher{}, directory.ErrEmailExists
		}
	}
	repo.db.teachers[t.ID] = copyTeacher(t)
	return copyTeacher(t), nil
}

func (repo *directoryRepository) UpdateTeacher(_ context.Context, t directory.Teacher) (directory.Teacher, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.teachers[t.ID]; !ok {
		return directory.Teacher{}, core.NewNotFoundError("teacher", t.ID)
	}
	repo.db.teachers[t.ID] = copyTeacher(t)
	return copyTeacher(t), nil
}

func (repo *directoryRepository) DeleteTeacher(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if _, ok := repo.db.teachers[id]; !ok {
		return core.NewNotFoundError("teacher", id)
	}
	delete(repo.db.teachers, id)
	return nil
}

func copyTeacher(t directory.Teacher) directory.Teacher {
	t.Subjects = cloneStrings(t.Subjects)
	t.Classes = cloneStrings(t.Classes)
	return t
}

// Catalog

func (repo *directoryRepository) table(kind directory.Kind) map[string]directory.Entry {
	if kind == directory.KindDiscipline {
		return repo.db.disciplines
	}
	return repo.db.classes
}

func (repo *directoryRepository) QueryEntries(_ context.Context, kind directory.Kind) ([]directory.Entry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	rows := values(repo.table(kind))
	sortByName(rows, func(e directory.Entry) string { return e.Name })
	return rows, nil
}

func (repo *directoryRepository) GetEntry(_ context.Context, kind directory.Kind, id string) (directory.Entry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	e, ok := repo.table(kind)[id]
	if !ok {
		return directory.Entry{}, core.NewNotFoundError(string(kind), id)
	}
	return e, nil
}

func (repo *directoryRepository) CreateEntry(_ context.Context, kind directory.Kind, e directory.Entry) (directory.Entry, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	for _, other := range repo.table(kind) {
		if other.Name == e.Name {
			return directory.Entry{}, directory.ErrNameExists
		}
	}
	repo.table(kind)[e.ID] = e
	return e, nil
}

func (repo *directoryRepository) UpdateEntry(_ context.Context, kind directory.Kind, e directory.Entry) (directory.Entry, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	tbl := repo.table(kind)
	if _, ok := tbl[e.ID]; !ok {
		return directory.Entry{}, core.NewNotFoundError(string(kind), e.ID)
	}
	for _, other := range tbl {
		if other.Name == e.Name && other.ID != e.ID {
			return directory.Entry{}, directory.ErrNameExists
		}
	}
	tbl[e.ID] = e
	return e, nil
}

func (repo *directoryRepository) DeleteEntry(_ context.Context, kind directory.Kind, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	tbl := repo.table(kind)
	if _, ok := tbl[id]; !ok {
		return core.NewNotFoundError(string(kind), id)
	}
	delete(tbl, id)

	// cascades like the postgres foreign keys
	for aid, a := range repo.db.activities {
		if (kind == directory.KindClass && a.ClassID == id) || (kind == directory.KindDiscipline && a.DisciplineID == id) {
			delete(repo.db.activities, aid)
		}
	}
	if kind == directory.KindDiscipline {
		for gid, g := range repo.db.grades {
			if g.DisciplineID == id {
				delete(repo.db.grades, gid)
			}
		}
	}
	return nil
}
