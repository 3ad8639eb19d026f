package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/directory"
)

// ProvisionGuardian creates a guardian account, its directory row (with the same id) and its students.
// Whatever was created is removed again if a later step fails.
func (svc *Service) ProvisionGuardian(ctx context.Context, viewer access.Viewer, na NewGuardianAccount) (ProvisionedGuardian, error) {
	if err := canManage(viewer); err != nil {
		return ProvisionedGuardian{}, err
	}
	na.Clean()
	if err := svc.validator.Struct(na); err != nil {
		return ProvisionedGuardian{}, err
	}
	for i := range na.Students {
		if err := svc.dir.ValidateStudent(ctx, &na.Students[i], true /* skipGuardian */); err != nil {
			return ProvisionedGuardian{}, prefixFields(err, fmt.Sprintf("students[%d].", i))
		}
	}

	acct, err := svc.createAccount(ctx, na.Email, access.RoleGuardian, na.Password)
	if err != nil {
		return ProvisionedGuardian{}, err
	}
	rb := rollback{ctx: ctx}
	rb.add(func(ctx context.Context) error { return svc.repo.DeleteAccount(ctx, acct.ID) })

	g, err := svc.dir.CreateGuardian(ctx, na.NewGuardian, acct.ID)
	if err != nil {
		return ProvisionedGuardian{}, rb.run(errors.Wrap(err, "creating guardian"))
	}
	rb.add(func(ctx context.Context) error { return svc.dir.DeleteGuardian(ctx, g.ID) })

	result := ProvisionedGuardian{Guardian: g, Students: make([]directory.Student, 0, len(na.Students))}
	for _, ns := range na.Students {
		ns.GuardianID = g.ID
		s, err := svc.dir.CreateValidatedStudent(ctx, ns)
		if err != nil {
			return ProvisionedGuardian{}, rb.run(errors.Wrapf(err, "creating student %s", ns.Name))
		}
		rb.add(func(ctx context.Context) error { return svc.dir.DeleteStudent(ctx, s.ID) })
		result.Students = append(result.Students, s)
	}
	return result, nil
}

// ProvisionTeacher creates a teacher account and its directory row, with the same id.
func (svc *Service) ProvisionTeacher(ctx context.Context, viewer access.Viewer, na NewTeacherAccount) (directory.Teacher, error) {
	if err := canManage(viewer); err != nil {
		return directory.Teacher{}, err
	}
	na.Clean()
	if err := svc.validator.Struct(na); err != nil {
		return directory.Teacher{}, err
	}

	acct, err := svc.createAccount(ctx, na.Email, access.RoleTeacher, na.Password)
	if err != nil {
		return directory.Teacher{}, err
	}
	rb := rollback{ctx: ctx}
	rb.add(func(ctx context.Context) error { return svc.repo.DeleteAccount(ctx, acct.ID) })

	t, err := svc.dir.CreateTeacher(ctx, na.NewTeacher, acct.ID)
	if err != nil {
		return directory.Teacher{}, rb.run(errors.Wrap(err, "creating teacher"))
	}
	return t, nil
}

func (svc *Service) createAccount(ctx context.Context, email string, role access.Role, password string) (Account, error) {
	now := NowFunc().UTC()
	acct := Account{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := acct.SetPassword(password); err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateAccount(ctx, acct)
}

// DeleteAccount deletes the directory row of an account, then the account and its sessions.
// Nothing is deleted if the directory row cannot be (e.g. a guardian with students).
func (svc *Service) DeleteAccount(ctx context.Context, viewer access.Viewer, id string) error {
	if err := canManage(viewer); err != nil {
		return err
	}
	acct, err := svc.repo.GetAccount(ctx, id)
	if err != nil {
		return err
	}

	switch acct.Role {
	case access.RoleGuardian:
		err = svc.dir.DeleteGuardian(ctx, id)
	case access.RoleTeacher:
		err = svc.dir.DeleteTeacher(ctx, id)
	}
	if err != nil && !core.IsNotFound(err) {
		return err
	}
	return svc.repo.DeleteAccount(ctx, id)
}

// rollback undoes, newest first, the steps of a provisioning that failed midway.
type rollback struct {
	ctx   context.Context
	steps []func(ctx context.Context) error
}

func (rb *rollback) add(step func(ctx context.Context) error) {
	rb.steps = append(rb.steps, step)
}

// run undoes every step and returns `cause` combined with the cleanup failures.
func (rb *rollback) run(cause error) error {
	err := cause
	for i := len(rb.steps) - 1; i >= 0; i-- {
		if stepErr := rb.steps[i](rb.ctx); stepErr != nil {
			err = multierr.Append(err, errors.Wrap(stepErr, "rolling back"))
		}
	}
	return err
}

// prefixFields prefixes the field names of a validation error.
func prefixFields(err error, prefix string) error {
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		return err
	}
	flds := make([]core.FieldError, len(vErr.Fields))
	for i, fe := range vErr.Fields {
		flds[i] = core.FieldError{Field: prefix + fe.Field, Error: fe.Error}
	}
	return core.NewValidationError(vErr.Err, flds...)
}
