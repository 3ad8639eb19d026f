package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
)

var (
	// errors
	ErrEmailExists = core.NewValidationError(
		errors.New("email already in use"),
		core.FieldError{Field: "email", Error: "a record with this email already exists"},
	)
	ErrNameExists = core.NewValidationError(
		errors.New("name already in use"),
		core.FieldError{Field: "name", Error: "an entry with this name already exists"},
	)
)

type (
	Repository interface {
		QueryGuardians(ctx context.Context) ([]Guardian, error)
		GetGuardian(ctx context.Context, id string) (Guardian, error)
		CreateGuardian(ctx context.Context, g Guardian) (Guardian, error)
		UpdateGuardian(ctx context.Context, g Guardian) (Guardian, error)
		DeleteGuardian(ctx context.Context, id string) error
		GuardianDependents(ctx context.Context, id string) (Dependents, error)

		QueryStudents(ctx context.Context, filter StudentFilter) ([]Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		CreateStudent(ctx context.Context, s Student) (Student, error)
		UpdateStudent(ctx context.Context, s Student) (Student, error)
		DeleteStudent(ctx context.Context, id string) error

		QueryTeachers(ctx context.Context) ([]Teacher, error)
		GetTeacher(ctx context.Context, id string) (Teacher, error)
		CreateTeacher(ctx context.Context, t Teacher) (Teacher, error)
		UpdateTeacher(ctx context.Context, t Teacher) (Teacher, error)
		DeleteTeacher(ctx context.Context, id string) error

		QueryEntries(ctx context.Context, kind Kind) ([]Entry, error)
		GetEntry(ctx context.Context, kind Kind, id string) (Entry, error)
		CreateEntry(ctx context.Context, kind Kind, e Entry) (Entry, error)
		UpdateEntry(ctx context.Context, kind Kind, e Entry) (Entry, error)
		DeleteEntry(ctx context.Context, kind Kind, id string) error
	}

	Service struct {
		repo      Repository
		validator *core.Validator
	}
)

func NewService(repo Repository, validator *core.Validator) *Service {
	return &Service{repo: repo, validator: validator}
}

// Guardians

func (svc *Service) ListGuardians(ctx context.Context) ([]Guardian, error) {
	return svc.repo.QueryGuardians(ctx)
}

func (svc *Service) GetGuardian(ctx context.Context, id string) (Guardian, error) {
	return svc.repo.GetGuardian(ctx, id)
}

func (svc *Service) ValidateGuardian(ng *NewGuardian) error {
	ng.Clean()
	return svc.validator.Struct(ng)
}

// CreateGuardian creates a guardian. A non-empty `id` is used as is, so accounts and guardians can share ids.
func (svc *Service) CreateGuardian(ctx context.Context, ng NewGuardian, id ...string) (Guardian, error) {
	if err := svc.ValidateGuardian(&ng); err != nil {
		return Guardian{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateGuardian(ctx, Guardian{
		ID:         newID(id...),
		Name:       ng.Name,
		Email:      ng.Email,
		Phone:      ng.Phone,
		DueDateDay: ng.DueDateDay,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func (svc *Service) UpdateGuardian(ctx context.Context, id string, ug UpdateGuardian) (Guardian, error) {
	ug.Clean()
	if err := svc.validator.Struct(ug); err != nil {
		return Guardian{}, err
	}
	g, err := svc.repo.GetGuardian(ctx, id)
	if err != nil {
		return Guardian{}, err
	}
	g = ug.merge(g)
	g.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateGuardian(ctx, g)
}

// DeleteGuardian deletes a guardian with no students and no invoices.
func (svc *Service) DeleteGuardian(ctx context.Context, id string) error {
	if _, err := svc.repo.GetGuardian(ctx, id); err != nil {
		return err
	}
	deps, err := svc.repo.GuardianDependents(ctx, id)
	if err != nil {
		return err
	}
	if deps.Any() {
		msg := fmt.Sprintf("guardian has %d student(s) and %d boleto(s); reassign or delete them first", deps.Students, deps.Boletos)
		return core.NewValidationError(errors.New(msg), core.FieldError{Field: "id", Error: msg})
	}
	return svc.repo.DeleteGuardian(ctx, id)
}

// Students

func (svc *Service) ListStudents(ctx context.Context, filter StudentFilter) ([]Student, error) {
	filter.Clean()
	return svc.repo.QueryStudents(ctx, filter)
}

func (svc *Service) GetStudent(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) ValidateStudent(ctx context.Context, ns *NewStudent, skipGuardian ...bool) error {
	ns.Clean()
	if err := svc.validator.Struct(ns); err != nil {
		return err
	}
	if ns.GuardianID != "" && !(len(skipGuardian) > 0 && skipGuardian[0]) {
		if err := svc.checkGuardian(ctx, ns.GuardianID); err != nil {
			return err
		}
	}
	return svc.checkClass(ctx, ns.Class)
}

func (svc *Service) CreateStudent(ctx context.Context, ns NewStudent) (Student, error) {
	if err := svc.ValidateStudent(ctx, &ns); err != nil {
		return Student{}, err
	}
	return svc.insertStudent(ctx, ns)
}

// CreateValidatedStudent inserts a student already checked with ValidateStudent.
func (svc *Service) CreateValidatedStudent(ctx context.Context, ns NewStudent) (Student, error) {
	return svc.insertStudent(ctx, ns)
}

func (svc *Service) insertStudent(ctx context.Context, ns NewStudent) (Student, error) {
	now := time.Now().UTC()
	s := Student{
		ID:        uuid.NewString(),
		Name:      ns.Name,
		CPF:       ns.CPF,
		Class:     ns.Class,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ns.GuardianID != "" {
		s.GuardianID.SetValid(ns.GuardianID)
	}
	return svc.repo.CreateStudent(ctx, s)
}

func (svc *Service) UpdateStudent(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	us.Clean()
	if err := svc.validator.Struct(us); err != nil {
		return Student{}, err
	}
	if us.GuardianID != nil && *us.GuardianID != "" {
		if err := svc.checkGuardian(ctx, *us.GuardianID); err != nil {
			return Student{}, err
		}
	}
	if us.Class != nil {
		if err := svc.checkClass(ctx, *us.Class); err != nil {
			return Student{}, err
		}
	}

	s, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	s = us.merge(s)
	s.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudent(ctx, s)
}

func (svc *Service) DeleteStudent(ctx context.Context, id string) error {
	return svc.repo.DeleteStudent(ctx, id)
}

func (svc *Service) checkGuardian(ctx context.Context, id string) error {
	if _, err := svc.repo.GetGuardian(ctx, id); err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(err, core.FieldError{Field: "guardian_id", Error: "guardian does not exist"})
		}
		return err
	}
	return nil
}

func (svc *Service) checkClass(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	classes, err := svc.repo.QueryEntries(ctx, KindClass)
	if err != nil {
		return err
	}
	for _, c := range classes {
		if c.Name == name {
			return nil
		}
	}
	return core.NewValidationError(
		errors.Errorf("class %q does not exist", name),
		core.FieldError{Field: "class", Error: "class does not exist"},
	)
}

// PermittedClassIDs returns the ids of the classes attended by the students of a guardian.
func (svc *Service) PermittedClassIDs(ctx context.Context, guardianID string) (map[string]bool, error) {
	students, err := svc.repo.QueryStudents(ctx, StudentFilter{GuardianID: guardianID})
	if err != nil {
		return nil, err
	}
	if len(students) == 0 {
		return map[string]bool{}, nil
	}
	classes, err := svc.repo.QueryEntries(ctx, KindClass)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(classes))
	for _, c := range classes {
		byName[c.Name] = c.ID
	}

	ids := make(map[string]bool, len(students))
	for _, s := range students {
		if id, ok := byName[s.Class]; ok {
			ids[id] = true
		}
	}
	return ids, nil
}

// Teachers

func (svc *Service) ListTeachers(ctx context.Context) ([]Teacher, error) {
	return svc.repo.QueryTeachers(ctx)
}

func (svc *Service) GetTeacher(ctx context.Context, id string) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, id)
}

func (svc *Service) ValidateTeacher(nt *NewTeacher) error {
	nt.Clean()
	return svc.validator.Struct(nt)
}

func (svc *Service) CreateTeacher(ctx context.Context, nt NewTeacher, id ...string) (Teacher, error) {
	if err := svc.ValidateTeacher(&nt); err != nil {
		return Teacher{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateTeacher(ctx, Teacher{
		ID:        newID(id...),
		Name:      nt.Name,
		Email:     nt.Email,
		Subjects:  nonNil(nt.Subjects),
		Classes:   nonNil(nt.Classes),
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) UpdateTeacher(ctx context.Context, id string, ut UpdateTeacher) (Teacher, error) {
	ut.Clean()
	if err := svc.validator.Struct(ut); err != nil {
		return Teacher{}, err
	}
	t, err := svc.repo.GetTeacher(ctx, id)
	if err != nil {
		return Teacher{}, err
	}
	t = ut.merge(t)
	t.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateTeacher(ctx, t)
}

func (svc *Service) DeleteTeacher(ctx context.Context, id string) error {
	return svc.repo.DeleteTeacher(ctx, id)
}

// Catalog (classes & disciplines)

func (svc *Service) ListEntries(ctx context.Context, kind Kind) ([]Entry, error) {
	if !kind.Valid() {
		return nil, errors.Errorf("unknown catalog %q", kind)
	}
	return svc.repo.QueryEntries(ctx, kind)
}

func (svc *Service) GetEntry(ctx context.Context, kind Kind, id string) (Entry, error) {
	return svc.repo.GetEntry(ctx, kind, id)
}

func (svc *Service) CreateEntry(ctx context.Context, kind Kind, in EntryInput) (Entry, error) {
	in.Clean()
	if err := svc.validator.Struct(in); err != nil {
		return Entry{}, err
	}
	return svc.repo.CreateEntry(ctx, kind, Entry{
		ID:        uuid.NewString(),
		Name:      in.Name,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *Service) UpdateEntry(ctx context.Context, kind Kind, id string, in EntryInput) (Entry, error) {
	in.Clean()
	if err := svc.validator.Struct(in); err != nil {
		return Entry{}, err
	}
	e, err := svc.repo.GetEntry(ctx, kind, id)
	if err != nil {
		return Entry{}, err
	}
	e.Name = in.Name
	return svc.repo.UpdateEntry(ctx, kind, e)
}

func (svc *Service) DeleteEntry(ctx context.Context, kind Kind, id string) error {
	return svc.repo.DeleteEntry(ctx, kind, id)
}

func newID(id ...string) string {
	if len(id) > 0 && id[0] != "" {
		return id[0]
	}
	return uuid.NewString()
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
