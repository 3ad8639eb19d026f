package auth

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/directory"
)

// Account is the login of a teacher or a guardian. Its ID is the ID of the matching directory row.
type Account struct {
	ID           string      `json:"id" db:"id"`
	Email        string      `json:"email" db:"email"`
	Role         access.Role `json:"role" db:"role"`
	PasswordHash []byte      `json:"-" db:"password_hash"`
	IsActive     bool        `json:"is_active" db:"is_active"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
	LastLogin    null.Time   `json:"last_login" db:"last_login"`
}

func (a *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

func (a *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd))
}

// SessionRecord backs a signed token; its ID is the token's jti.
type SessionRecord struct {
	ID           string    `db:"id"`
	AccountID    string    `db:"account_id"`
	CreatedAt    time.Time `db:"created_at"`
	ExpiresAt    time.Time `db:"expires_at"`
	RefreshUntil time.Time `db:"refresh_until"`
	RevokedAt    null.Time `db:"revoked_at"`
}

func (r SessionRecord) Revoked() bool { return r.RevokedAt.Valid }

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Email string      `json:"email,omitempty"`
	Role  access.Role `json:"role,omitempty"`
}

// NewGuardianAccount creates a guardian login, its directory row and, optionally, its students.
type NewGuardianAccount struct {
	directory.NewGuardian
	Password string                 `json:"password" validate:"required"`
	Students []directory.NewStudent `json:"students" validate:"omitempty,dive"`
}

func (na *NewGuardianAccount) Clean() {
	na.NewGuardian.Clean()
	for i := range na.Students {
		na.Students[i].Clean()
		na.Students[i].GuardianID = ""
	}
}

// NewTeacherAccount creates a teacher login and its directory row.
type NewTeacherAccount struct {
	directory.NewTeacher
	Password string `json:"password" validate:"required"`
}

func (na *NewTeacherAccount) Clean() {
	na.NewTeacher.Clean()
}

// PasswordReset sets a new password on an existing account.
type PasswordReset struct {
	Password string `json:"password" validate:"required"`
	email    string
}

type ProvisionedGuardian struct {
	Guardian directory.Guardian  `json:"guardian"`
	Students []directory.Student `json:"students"`
}

func cleanEmail(email string) string {
	return core.CleanString(email, true /* lower */)
}
