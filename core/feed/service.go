package feed

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/directory"
)

type (
	Repository interface {
		QueryEvents(ctx context.Context, filter EventFilter) ([]CalendarEvent, error)
		GetEvent(ctx context.Context, id string) (CalendarEvent, error)
		CreateEvent(ctx context.Context, e CalendarEvent) (CalendarEvent, error)
		UpdateEvent(ctx context.Context, e CalendarEvent) (CalendarEvent, error)
		DeleteEvent(ctx context.Context, id string) error

		QueryActivities(ctx context.Context, filter ActivityFilter) ([]Activity, error)
		GetActivity(ctx context.Context, id string) (Activity, error)
		CreateActivity(ctx context.Context, a Activity) (Activity, error)
		UpdateActivity(ctx context.Context, a Activity) (Activity, error)
		DeleteActivity(ctx context.Context, id string) error
	}

	// Catalog resolves classes and disciplines, and the classes a guardian may follow.
	Catalog interface {
		GetEntry(ctx context.Context, kind directory.Kind, id string) (directory.Entry, error)
		PermittedClassIDs(ctx context.Context, guardianID string) (map[string]bool, error)
	}

	Service struct {
		repo      Repository
		catalog   Catalog
		validator *core.Validator
	}
)

func NewService(repo Repository, catalog Catalog, validator *core.Validator) *Service {
	return &Service{
		repo:      repo,
		catalog:   catalog,
		validator: validator,
	}
}

// Calendar

// ListEvents returns the events dated within the filter's range, oldest first. Every role may read the calendar.
func (svc *Service) ListEvents(ctx context.Context, viewer access.Viewer, filter EventFilter) ([]CalendarEvent, error) {
	if viewer.Role == access.RoleNone {
		return nil, core.NewForbiddenError("view the calendar")
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, core.NewValidationError(
			errors.New("invalid date range"),
			core.FieldError{Field: "to", Error: "must not be before from"},
		)
	}
	return svc.repo.QueryEvents(ctx, filter)
}

func (svc *Service) GetEvent(ctx context.Context, viewer access.Viewer, id string) (CalendarEvent, error) {
	if viewer.Role == access.RoleNone {
		return CalendarEvent{}, core.NewForbiddenError("view the calendar")
	}
	return svc.repo.GetEvent(ctx, id)
}

func canEditCalendar(viewer access.Viewer) error {
	if !viewer.Capabilities().EditCalendar {
		return core.NewForbiddenError("edit the calendar")
	}
	return nil
}

func (svc *Service) CreateEvent(ctx context.Context, viewer access.Viewer, ne NewEvent) (CalendarEvent, error) {
	if err := canEditCalendar(viewer); err != nil {
		return CalendarEvent{}, err
	}
	ne.Clean()
	if err := svc.validate(ne, requireDate("date", ne.Date)); err != nil {
		return CalendarEvent{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateEvent(ctx, CalendarEvent{
		ID:          uuid.NewString(),
		Title:       ne.Title,
		Date:        ne.Date,
		Description: ne.Description,
		Type:        ne.Type,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) UpdateEvent(ctx context.Context, viewer access.Viewer, id string, ue UpdateEvent) (CalendarEvent, error) {
	if err := canEditCalendar(viewer); err != nil {
		return CalendarEvent{}, err
	}
	ue.Clean()
	if err := svc.validate(ue); err != nil {
		return CalendarEvent{}, err
	}
	e, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return CalendarEvent{}, err
	}
	e = ue.merge(e)
	e.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateEvent(ctx, e)
}

func (svc *Service) DeleteEvent(ctx context.Context, viewer access.Viewer, id string) error {
	if err := canEditCalendar(viewer); err != nil {
		return err
	}
	return svc.repo.DeleteEvent(ctx, id)
}

// Activities

// scope narrows `filter` to the activities `viewer` may see.
// Guardians only see the classes of their own students.
func (svc *Service) scope(ctx context.Context, viewer access.Viewer, filter ActivityFilter) (ActivityFilter, error) {
	switch viewer.Capabilities().ActivityScope {
	case access.ScopeAll:
		filter.ClassIDs = nil
		return filter, nil
	case access.ScopeOwn:
		if viewer.UserID == "" {
			return ActivityFilter{}, core.NewForbiddenError("view activities")
		}
		permitted, err := svc.catalog.PermittedClassIDs(ctx, viewer.UserID)
		if err != nil {
			return ActivityFilter{}, errors.Wrap(err, "resolving permitted classes")
		}
		filter.ClassIDs = make([]string, 0, len(permitted))
		for id := range permitted {
			filter.ClassIDs = append(filter.ClassIDs, id)
		}
		sort.Strings(filter.ClassIDs)
		return filter, nil
	default:
		return ActivityFilter{}, core.NewForbiddenError("view activities")
	}
}

// ListActivities returns the activities visible to `viewer`, soonest due first.
func (svc *Service) ListActivities(ctx context.Context, viewer access.Viewer, filter ActivityFilter) ([]Activity, error) {
	filter.Clean()
	filter, err := svc.scope(ctx, viewer, filter)
	if err != nil {
		return nil, err
	}
	if filter.ClassIDs != nil && len(filter.ClassIDs) == 0 {
		return []Activity{}, nil
	}
	return svc.repo.QueryActivities(ctx, filter)
}

func (svc *Service) GetActivity(ctx context.Context, viewer access.Viewer, id string) (Activity, error) {
	scope, err := svc.scope(ctx, viewer, ActivityFilter{})
	if err != nil {
		return Activity{}, err
	}
	a, err := svc.repo.GetActivity(ctx, id)
	if err != nil {
		return Activity{}, err
	}
	if !scope.Matches(a) {
		return Activity{}, core.NewNotFoundError("activity", id)
	}
	return a, nil
}

func canPost(viewer access.Viewer) error {
	if !viewer.Capabilities().PostActivity {
		return core.NewForbiddenError("post activities")
	}
	return nil
}

func (svc *Service) CreateActivity(ctx context.Context, viewer access.Viewer, na NewActivity) (Activity, error) {
	if err := canPost(viewer); err != nil {
		return Activity{}, err
	}
	na.Clean()
	if err := svc.validate(na, requireDate("due_date", na.DueDate)); err != nil {
		return Activity{}, err
	}
	if err := svc.checkCatalog(ctx, na.ClassID, na.DisciplineID); err != nil {
		return Activity{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateActivity(ctx, Activity{
		ID:           uuid.NewString(),
		ClassID:      na.ClassID,
		DisciplineID: na.DisciplineID,
		Description:  na.Description,
		DueDate:      na.DueDate,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *Service) UpdateActivity(ctx context.Context, viewer access.Viewer, id string, ua UpdateActivity) (Activity, error) {
	if err := canPost(viewer); err != nil {
		return Activity{}, err
	}
	ua.Clean()
	if err := svc.validate(ua); err != nil {
		return Activity{}, err
	}
	a, err := svc.repo.GetActivity(ctx, id)
	if err != nil {
		return Activity{}, err
	}
	a = ua.merge(a)
	if err := svc.checkCatalog(ctx, a.ClassID, a.DisciplineID); err != nil {
		return Activity{}, err
	}
	a.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateActivity(ctx, a)
}

func (svc *Service) DeleteActivity(ctx context.Context, viewer access.Viewer, id string) error {
	if err := canPost(viewer); err != nil {
		return err
	}
	return svc.repo.DeleteActivity(ctx, id)
}

func (svc *Service) checkCatalog(ctx context.Context, classID, disciplineID string) error {
	var flds []core.FieldError
	if _, err := svc.catalog.GetEntry(ctx, directory.KindClass, classID); err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		flds = append(flds, core.FieldError{Field: "class_id", Error: "class does not exist"})
	}
	if _, err := svc.catalog.GetEntry(ctx, directory.KindDiscipline, disciplineID); err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		flds = append(flds, core.FieldError{Field: "discipline_id", Error: "discipline does not exist"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(errors.New("invalid activity"), flds...)
	}
	return nil
}

// validate runs the struct validation and merges in the extra field errors.
func (svc *Service) validate(s interface{}, extra ...*core.FieldError) error {
	var flds []core.FieldError
	if err := svc.validator.Struct(s); err != nil {
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			return err
		}
		flds = append(flds, vErr.Fields...)
	}
	for _, fe := range extra {
		if fe != nil {
			flds = append(flds, *fe)
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(errors.New("invalid data"), flds...)
	}
	return nil
}

func requireDate(field string, d core.Date) *core.FieldError {
	if d.IsZero() {
		return &core.FieldError{Field: field, Error: "this field is required"}
	}
	return nil
}
