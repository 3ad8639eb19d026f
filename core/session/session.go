package session

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/trezcool/escola/core/access"
)

// Session is a live external session.
type Session struct {
	Token     string      `json:"token"`
	UserID    string      `json:"user_id"`
	Email     string      `json:"email"`
	Role      access.Role `json:"role"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Listener is notified when the session behind `token` changes; `s` is nil once the session is gone.
type Listener func(token string, s *Session)

// Authenticator is the external auth collaborator backing teacher & guardian logins.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignOut(ctx context.Context, token string) error
	GetSession(ctx context.Context, token string) (Session, error)
	Subscribe(fn Listener) (unsubscribe func())
}

// RoleStorage persists the role hint across restarts.
type RoleStorage interface {
	LoadRole(ctx context.Context) (access.Role, error)
	SaveRole(ctx context.Context, role access.Role) error
	ClearRole(ctx context.Context) error
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AdminCredentials is the static shared-secret admin login.
type AdminCredentials struct {
	Email    string
	Password string
}

func (ac AdminCredentials) match(creds Credentials) bool {
	if ac.Email == "" || ac.Password == "" {
		return false
	}
	emailOK := subtle.ConstantTimeCompare([]byte(ac.Email), []byte(creds.Email)) == 1
	pwdOK := subtle.ConstantTimeCompare([]byte(ac.Password), []byte(creds.Password)) == 1
	return emailOK && pwdOK
}

// MemoryRoleStorage keeps the role hint in memory.
type MemoryRoleStorage struct {
	mu   sync.Mutex
	role access.Role
}

var _ RoleStorage = (*MemoryRoleStorage)(nil)

func NewMemoryRoleStorage(role ...access.Role) *MemoryRoleStorage {
	s := new(MemoryRoleStorage)
	if len(role) > 0 {
		s.role = role[0]
	}
	return s
}

func (s *MemoryRoleStorage) LoadRole(context.Context) (access.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role, nil
}

func (s *MemoryRoleStorage) SaveRole(_ context.Context, role access.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = role
	return nil
}

func (s *MemoryRoleStorage) ClearRole(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = access.RoleNone
	return nil
}
