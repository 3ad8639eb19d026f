package directory

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
)

type Guardian struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Email      string    `json:"email" db:"email"`
	Phone      string    `json:"phone" db:"phone"`
	DueDateDay int       `json:"due_date_day" db:"due_date_day"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

type NewGuardian struct {
	Name       string `json:"name" validate:"required,notblank,max=255"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"max=32"`
	DueDateDay int    `json:"due_date_day" validate:"required,min=1,max=28"`
}

func (ng *NewGuardian) Clean() {
	ng.Name = core.CleanString(ng.Name)
	ng.Email = core.CleanString(ng.Email, true /* lower */)
	ng.Phone = core.CleanString(ng.Phone)
}

type UpdateGuardian struct {
	Name       *string `json:"name" validate:"omitempty,notblank,max=255"`
	Email      *string `json:"email" validate:"omitempty,email"`
	Phone      *string `json:"phone" validate:"omitempty,max=32"`
	DueDateDay *int    `json:"due_date_day" validate:"omitempty,min=1,max=28"`
}

func (ug *UpdateGuardian) Clean() {
	cleanPtr(ug.Name)
	cleanPtr(ug.Email, true)
	cleanPtr(ug.Phone)
}

// merge applies the set fields of `ug` onto `g`.
func (ug UpdateGuardian) merge(g Guardian) Guardian {
	if ug.Name != nil {
		g.Name = *ug.Name
	}
	if ug.Email != nil {
		g.Email = *ug.Email
	}
	if ug.Phone != nil {
		g.Phone = *ug.Phone
	}
	if ug.DueDateDay != nil {
		g.DueDateDay = *ug.DueDateDay
	}
	return g
}

type Teacher struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Subjects  []string  `json:"subjects" db:"-"`
	Classes   []string  `json:"classes" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type NewTeacher struct {
	Name     string   `json:"name" validate:"required,notblank,max=255"`
	Email    string   `json:"email" validate:"required,email"`
	Subjects []string `json:"subjects" validate:"dive,notblank"`
	Classes  []string `json:"classes" validate:"dive,notblank"`
}

func (nt *NewTeacher) Clean() {
	nt.Name = core.CleanString(nt.Name)
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.Subjects = core.CleanStrings(nt.Subjects)
	nt.Classes = core.CleanStrings(nt.Classes)
}

type UpdateTeacher struct {
	Name     *string  `json:"name" validate:"omitempty,notblank,max=255"`
	Email    *string  `json:"email" validate:"omitempty,email"`
	Subjects []string `json:"subjects" validate:"omitempty,dive,notblank"`
	Classes  []string `json:"classes" validate:"omitempty,dive,notblank"`
}

func (ut *UpdateTeacher) Clean() {
	cleanPtr(ut.Name)
	cleanPtr(ut.Email, true)
	if ut.Subjects != nil {
		ut.Subjects = core.CleanStrings(ut.Subjects)
	}
	if ut.Classes != nil {
		ut.Classes = core.CleanStrings(ut.Classes)
	}
}

func (ut UpdateTeacher) merge(t Teacher) Teacher {
	if ut.Name != nil {
		t.Name = *ut.Name
	}
	if ut.Email != nil {
		t.Email = *ut.Email
	}
	if ut.Subjects != nil {
		t.Subjects = ut.Subjects
	}
	if ut.Classes != nil {
		t.Classes = ut.Classes
	}
	return t
}

type Student struct {
	ID         string      `json:"id" db:"id"`
	Name       string      `json:"name" db:"name"`
	CPF        string      `json:"cpf" db:"cpf"`
	GuardianID null.String `json:"guardian_id" db:"guardian_id"`
	Class      string      `json:"class" db:"class"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

type NewStudent struct {
	Name       string `json:"name" validate:"required,notblank,max=255"`
	CPF        string `json:"cpf" validate:"max=32"`
	GuardianID string `json:"guardian_id" validate:"omitempty,uuid"`
	Class      string `json:"class" validate:"max=255"`
}

func (ns *NewStudent) Clean() {
	ns.Name = core.CleanString(ns.Name)
	ns.CPF = core.CleanString(ns.CPF)
	ns.GuardianID = core.CleanString(ns.GuardianID)
	ns.Class = core.CleanString(ns.Class)
}

// UpdateStudent merges onto the stored row. An empty GuardianID unlinks the student.
type UpdateStudent struct {
	Name       *string `json:"name" validate:"omitempty,notblank,max=255"`
	CPF        *string `json:"cpf" validate:"omitempty,max=32"`
	GuardianID *string `json:"guardian_id" validate:"omitempty"`
	Class      *string `json:"class" validate:"omitempty,max=255"`
}

func (us *UpdateStudent) Clean() {
	cleanPtr(us.Name)
	cleanPtr(us.CPF)
	cleanPtr(us.GuardianID)
	cleanPtr(us.Class)
}

func (us UpdateStudent) merge(s Student) Student {
	if us.Name != nil {
		s.Name = *us.Name
	}
	if us.CPF != nil {
		s.CPF = *us.CPF
	}
	if us.GuardianID != nil {
		s.GuardianID = null.NewString(*us.GuardianID, *us.GuardianID != "")
	}
	if us.Class != nil {
		s.Class = *us.Class
	}
	return s
}

type StudentFilter struct {
	GuardianID string `query:"guardian_id"`
	Class      string `query:"class"`
}

func (f *StudentFilter) Clean() {
	f.GuardianID = core.CleanString(f.GuardianID)
	f.Class = core.CleanString(f.Class)
}

// Kind names a catalog: classes or disciplines.
type Kind string

const (
	KindClass      Kind = "class"
	KindDiscipline Kind = "discipline"
)

func (k Kind) Valid() bool { return k == KindClass || k == KindDiscipline }

// Entry is a row of a catalog.
type Entry struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EntryInput struct {
	Name string `json:"name" validate:"required,notblank,max=255"`
}

func (ei *EntryInput) Clean() {
	ei.Name = core.CleanString(ei.Name)
}

// Dependents counts the rows referencing a guardian.
type Dependents struct {
	Students int `db:"students"`
	Boletos  int `db:"boletos"`
}

func (d Dependents) Any() bool { return d.Students > 0 || d.Boletos > 0 }

func cleanPtr(s *string, lower ...bool) {
	if s != nil {
		*s = core.CleanString(*s, lower...)
	}
}
