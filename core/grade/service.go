package grade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/directory"
)

type (
	Repository interface {
		QueryGrades(ctx context.Context, filter Filter) ([]Grade, error)
		// GetGrade returns a core.NotFoundError if no grade exists for `key`.
		GetGrade(ctx context.Context, key Key) (Grade, error)
		UpdateGrade(ctx context.Context, g Grade) (Grade, error)
		// UpsertGrade inserts `g`, or overwrites the grade already stored under its key.
		UpsertGrade(ctx context.Context, g Grade) (Grade, error)
	}

	// StudentLister lists students, to scope guardians to their own.
	StudentLister interface {
		ListStudents(ctx context.Context, filter directory.StudentFilter) ([]directory.Student, error)
	}

	Service struct {
		repo      Repository
		students  StudentLister
		validator *core.Validator
	}
)

func NewService(repo Repository, students StudentLister, validator *core.Validator) *Service {
	return &Service{repo: repo, students: students, validator: validator}
}

// GetGradesForStudent returns every grade of a student.
func (svc *Service) GetGradesForStudent(ctx context.Context, studentID string) ([]Grade, error) {
	return svc.repo.QueryGrades(ctx, Filter{StudentIDs: []string{studentID}})
}

// ListGrades returns the grades matching `filter` that `viewer` may see.
func (svc *Service) ListGrades(ctx context.Context, viewer access.Viewer, filter Filter) ([]Grade, error) {
	filter.StudentIDs = core.CleanStrings(filter.StudentIDs)
	switch viewer.Capabilities().GradeScope {
	case access.ScopeAll:
	case access.ScopeOwn:
		own, err := svc.ownStudents(ctx, viewer)
		if err != nil {
			return nil, err
		}
		if len(filter.StudentIDs) == 0 {
			filter.StudentIDs = own
		} else {
			filter.StudentIDs = intersect(filter.StudentIDs, own)
		}
		if len(filter.StudentIDs) == 0 {
			return []Grade{}, nil
		}
	default:
		return nil, core.NewForbiddenError("view grades")
	}
	return svc.repo.QueryGrades(ctx, filter)
}

// Report returns the report card of a student visible to `viewer`.
func (svc *Service) Report(ctx context.Context, viewer access.Viewer, studentID string) (Report, error) {
	grades, err := svc.ListGrades(ctx, viewer, Filter{StudentIDs: []string{studentID}})
	if err != nil {
		return Report{}, err
	}
	if len(grades) == 0 && viewer.Capabilities().GradeScope == access.ScopeOwn {
		own, err := svc.ownStudents(ctx, viewer)
		if err != nil {
			return Report{}, err
		}
		if len(intersect([]string{studentID}, own)) == 0 {
			return Report{}, core.NewNotFoundError("student", studentID)
		}
	}
	return BuildReport(studentID, grades), nil
}

func (svc *Service) ownStudents(ctx context.Context, viewer access.Viewer) ([]string, error) {
	students, err := svc.students.ListStudents(ctx, directory.StudentFilter{GuardianID: viewer.UserID})
	if err != nil {
		return nil, errors.Wrap(err, "listing guardian students")
	}
	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

type parsedEntry struct {
	key   Key
	value null.Float64
}

// validate checks the whole batch before anything is written.
func (svc *Service) validate(entries []Entry) ([]parsedEntry, error) {
	if len(entries) == 0 {
		return nil, core.NewValidationError(
			errors.New("no grades"),
			core.FieldError{Field: "entries", Error: "at least one grade is required"},
		)
	}

	parsed := make([]parsedEntry, 0, len(entries))
	var flds []core.FieldError
	for i, e := range entries {
		e.StudentID = core.CleanString(e.StudentID)
		e.DisciplineID = core.CleanString(e.DisciplineID)
		prefix := fmt.Sprintf("entries[%d].", i)

		if err := svc.validator.Struct(e); err != nil {
			var vErr *core.ValidationError
			if !errors.As(err, &vErr) {
				return nil, err
			}
			for _, fe := range vErr.Fields {
				flds = append(flds, core.FieldError{Field: prefix + fe.Field, Error: fe.Error})
			}
		}
		value, err := e.Grade.Parse()
		if err != nil {
			flds = append(flds, core.FieldError{Field: prefix + "grade", Error: err.Error()})
		}
		parsed = append(parsed, parsedEntry{
			key:   Key{StudentID: e.StudentID, DisciplineID: e.DisciplineID, Unit: e.Unit},
			value: value,
		})
	}
	if len(flds) > 0 {
		return nil, core.NewValidationError(errors.New("invalid grades"), flds...)
	}
	return parsed, nil
}

// UpsertGrades writes a batch of grades and returns the stored grades of the students it touched.
// An existing grade is overwritten, even with null; a missing one is only created for a non-null value.
func (svc *Service) UpsertGrades(ctx context.Context, viewer access.Viewer, entries []Entry) ([]Grade, error) {
	if !viewer.Capabilities().EditGrades {
		return nil, core.NewForbiddenError("edit grades")
	}
	parsed, err := svc.validate(entries)
	if err != nil {
		return nil, err
	}

	touched := make([]string, 0, len(parsed))
	seen := make(map[string]bool, len(parsed))
	for _, pe := range parsed {
		if !seen[pe.key.StudentID] {
			seen[pe.key.StudentID] = true
			touched = append(touched, pe.key.StudentID)
		}

		now := time.Now().UTC()
		existing, err := svc.repo.GetGrade(ctx, pe.key)
		switch {
		case err == nil:
			existing.Grade = pe.value
			existing.UpdatedAt = now
			if _, err = svc.repo.UpdateGrade(ctx, existing); err != nil {
				return nil, errors.Wrap(err, "updating grade")
			}
		case core.IsNotFound(err):
			if !pe.value.Valid {
				continue
			}
			g := Grade{
				ID:           uuid.NewString(),
				StudentID:    pe.key.StudentID,
				DisciplineID: pe.key.DisciplineID,
				Unit:         pe.key.Unit,
				Grade:        pe.value,
				UpdatedAt:    now,
			}
			if _, err = svc.repo.UpsertGrade(ctx, g); err != nil {
				return nil, errors.Wrap(err, "inserting grade")
			}
		default:
			return nil, errors.Wrap(err, "getting grade")
		}
	}

	return svc.repo.QueryGrades(ctx, Filter{StudentIDs: touched})
}

func intersect(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	out := make([]string, 0, len(a))
	for _, s := range a {
		if in[s] {
			out = append(out, s)
		}
	}
	return out
}
