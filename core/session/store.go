package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
)

// Store owns the caller's session State. Every transition goes through Reduce.
// Collaborators are never called with the lock held, so listeners may fire at any time.
type Store struct {
	mu    sync.Mutex
	state State

	auth        Authenticator
	roles       RoleStorage
	admin       AdminCredentials
	unsubscribe func()
}

func NewStore(auth Authenticator, roles RoleStorage, admin AdminCredentials) *Store {
	s := &Store{
		auth:  auth,
		roles: roles,
		admin: admin,
	}
	s.unsubscribe = auth.Subscribe(func(token string, sess *Session) {
		s.dispatch(SessionChanged{Token: token, Session: sess})
	})
	return s
}

// Close releases the subscription to the Authenticator.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) dispatch(e Event) (prev, next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev = s.state
	s.state = Reduce(s.state, e)
	return prev, s.state
}

// SetRole records the caller's role choice. access.RoleNone clears it.
func (s *Store) SetRole(ctx context.Context, role access.Role) (State, error) {
	if role != access.RoleNone && !role.Valid() {
		return s.State(), core.NewValidationError(
			errors.New("invalid role"),
			core.FieldError{Field: "role", Error: "role must be one of admin, teacher or guardian"},
		)
	}

	var err error
	if role == access.RoleNone {
		err = s.roles.ClearRole(ctx)
	} else {
		err = s.roles.SaveRole(ctx, role)
	}
	if err != nil {
		return s.State(), errors.Wrap(err, "saving role")
	}

	prev, next := s.dispatch(RoleSelected{Role: role})
	if prev.IsAuthenticated() && !next.IsAuthenticated() && prev.Role != access.RoleAdmin {
		if err := s.auth.SignOut(ctx, prev.Token); err != nil {
			return next, errors.Wrap(err, "signing out")
		}
	}
	return next, nil
}

// Restore loads the persisted role hint and corroborates it against the session behind `token`.
func (s *Store) Restore(ctx context.Context, token string) (State, error) {
	role, err := s.roles.LoadRole(ctx)
	if err != nil {
		return s.State(), errors.Wrap(err, "loading role")
	}

	_, state := s.dispatch(RoleRestored{Role: role, Token: token, AdminEmail: s.admin.Email})
	if state.Status != PendingCorroboration {
		return state, nil
	}

	sess, err := s.auth.GetSession(ctx, token)
	if err != nil {
		_, state = s.dispatch(CorroborationFailed{})
		var authErr *core.AuthError
		if errors.As(err, &authErr) {
			return state, nil
		}
		return state, errors.Wrap(err, "getting session")
	}
	_, state = s.dispatch(SessionChanged{Token: token, Session: &sess})
	return state, nil
}

// Login authenticates the caller for `role`. Nothing is committed until the credentials are confirmed.
func (s *Store) Login(ctx context.Context, creds Credentials, role access.Role) (State, error) {
	creds.Email = core.CleanString(creds.Email, true /* lower */)
	if creds.Email == "" || creds.Password == "" || !role.Valid() {
		return s.State(), core.ErrInvalidCredentials
	}

	if role == access.RoleAdmin {
		if !s.admin.match(creds) {
			return s.State(), core.ErrInvalidCredentials
		}
		if err := s.roles.SaveRole(ctx, role); err != nil {
			return s.State(), errors.Wrap(err, "saving role")
		}
		_, state := s.dispatch(LoginSucceeded{Role: role, Identity: adminIdentity(creds.Email)})
		return state, nil
	}

	sess, err := s.auth.SignIn(ctx, creds.Email, creds.Password)
	if err != nil {
		var authErr *core.AuthError
		if errors.As(err, &authErr) {
			return s.State(), core.ErrInvalidCredentials
		}
		return s.State(), errors.Wrap(err, "signing in")
	}

	if sess.Role != role {
		if err := s.auth.SignOut(ctx, sess.Token); err != nil {
			return s.State(), multierr.Combine(core.ErrInvalidCredentials, errors.Wrap(err, "signing out"))
		}
		return s.State(), core.ErrInvalidCredentials
	}

	if err := s.roles.SaveRole(ctx, role); err != nil {
		err = errors.Wrap(err, "saving role")
		if soErr := s.auth.SignOut(ctx, sess.Token); soErr != nil {
			err = multierr.Append(err, errors.Wrap(soErr, "signing out"))
		}
		return s.State(), err
	}

	_, state := s.dispatch(LoginSucceeded{
		Role:     role,
		Identity: Identity{UserID: sess.UserID, Email: sess.Email},
		Token:    sess.Token,
		Expires:  sess.ExpiresAt,
	})
	return state, nil
}

// Logout drops authentication first, then clears the role hint and signs the external session out.
func (s *Store) Logout(ctx context.Context) error {
	prev, _ := s.dispatch(LoggedOut{})

	var err error
	if cErr := s.roles.ClearRole(ctx); cErr != nil {
		err = multierr.Append(err, errors.Wrap(cErr, "clearing role"))
	}
	if prev.Token != "" && prev.Role != access.RoleAdmin {
		if soErr := s.auth.SignOut(ctx, prev.Token); soErr != nil {
			err = multierr.Append(err, errors.Wrap(soErr, "signing out"))
		}
	}
	return err
}
