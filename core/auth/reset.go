package auth

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
)

var errInvalidResetLink = core.NewValidationError(
	errors.New("invalid password reset link"),
	core.FieldError{Field: "token", Error: "this link is invalid or has expired"},
)

// PasswordResetConfirm carries the link sent by RequestPasswordReset and the new password.
type PasswordResetConfirm struct {
	UID      string `json:"uid" validate:"required"`
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ResetLink is the data of the password reset mail.
type ResetLink struct {
	UID   string
	Token string
}

func (svc *Service) resetTokens() resetTokens {
	return resetTokens{secret: svc.secret, timeout: svc.resetTimeout}
}

// RequestPasswordReset mails a reset link to the active account with `email`.
// Unknown emails succeed silently so the endpoint does not reveal which accounts exist.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = cleanEmail(email)
	if email == "" {
		return core.NewValidationError(errors.New("email is required"), core.FieldError{Field: "email", Error: "this field is required"})
	}
	acct, err := svc.repo.GetAccountByEmail(ctx, email)
	if err != nil {
		if core.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "finding account by email")
	}
	if !acct.IsActive || svc.mailSvc == nil {
		return nil
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: acct.Email}},
		Subject:      "Password reset",
		TemplateName: "password_reset",
		TemplateData: ResetLink{UID: encodeUID(acct), Token: svc.resetTokens().make(acct)},
	})
	return nil
}

// ConfirmPasswordReset sets the new password if the link is valid. The link then stops working.
func (svc *Service) ConfirmPasswordReset(ctx context.Context, in PasswordResetConfirm) error {
	if err := svc.validator.Struct(in); err != nil {
		return err
	}
	id, err := decodeUID(in.UID)
	if err != nil {
		return errInvalidResetLink
	}
	acct, err := svc.repo.GetAccount(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return errInvalidResetLink
		}
		return err
	}
	if !acct.IsActive {
		return errInvalidResetLink
	}
	if err := svc.resetTokens().verify(acct, in.Token); err != nil {
		return errInvalidResetLink
	}
	return svc.setPassword(ctx, acct, in.Password)
}
