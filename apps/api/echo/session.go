package echoapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/session"
)

const (
	roleCookie    = "escola_role"
	sessionCookie = "escola_session"

	ctxStoreKey = "session"
	ctxRolesKey = "roles"
)

type roleClaims struct {
	jwt.StandardClaims
	Role access.Role `json:"role"`
	// Verified is only set once the admin credentials were checked.
	Verified bool `json:"verified,omitempty"`
}

// revokedHints holds the ids of replaced or signed-out admin hints until they expire.
type revokedHints struct {
	mu  sync.Mutex
	ids map[string]time.Time
}

func newRevokedHints() *revokedHints {
	return &revokedHints{ids: make(map[string]time.Time)}
}

func (r *revokedHints) revoke(id string, until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for k, exp := range r.ids {
		if !exp.After(now) {
			delete(r.ids, k)
		}
	}
	r.ids[id] = until
}

func (r *revokedHints) has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}

// cookieRoleStorage keeps the role hint of a caller in a signed cookie.
type cookieRoleStorage struct {
	ctx      echo.Context
	secret   []byte
	ttl      time.Duration
	adminTTL time.Duration
	secure   bool
	revoked  *revokedHints

	// elevate lets SaveRole persist a verified admin hint.
	elevate bool
}

var _ session.RoleStorage = (*cookieRoleStorage)(nil)

func (s *cookieRoleStorage) LoadRole(context.Context) (access.Role, error) {
	claims, ok := s.hint()
	if !ok || !claims.Role.Valid() {
		return access.RoleNone, nil
	}
	if claims.Role == access.RoleAdmin && (!claims.Verified || claims.Id == "" || s.revoked.has(claims.Id)) {
		return access.RoleNone, nil
	}
	return claims.Role, nil
}

// hint parses the role cookie sent with the request. Tampered or expired hints are dropped.
func (s *cookieRoleStorage) hint() (*roleClaims, bool) {
	cookie, err := s.ctx.Cookie(roleCookie)
	if err != nil || cookie.Value == "" {
		return nil, false
	}
	claims := new(roleClaims)
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	if _, err := parser.ParseWithClaims(cookie.Value, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}); err != nil {
		return nil, false
	}
	return claims, true
}

// revokeHint retires the verified admin hint the request came with, so copies of it stop working.
func (s *cookieRoleStorage) revokeHint() {
	claims, ok := s.hint()
	if !ok || !claims.Verified || claims.Id == "" {
		return
	}
	s.revoked.revoke(claims.Id, time.Unix(claims.ExpiresAt, 0))
}

func (s *cookieRoleStorage) SaveRole(_ context.Context, role access.Role) error {
	s.revokeHint()

	verified := role == access.RoleAdmin && s.elevate
	claims := roleClaims{Role: role, Verified: verified}
	expires := time.Now().Add(s.ttl)
	if verified {
		expires = time.Now().Add(s.adminTTL)
		claims.Id = uuid.NewString()
	}
	claims.ExpiresAt = expires.Unix()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return errors.Wrap(err, "signing role cookie")
	}
	s.ctx.SetCookie(s.cookie(roleCookie, signed, expires))
	return nil
}

func (s *cookieRoleStorage) ClearRole(context.Context) error {
	s.revokeHint()
	s.ctx.SetCookie(s.cookie(roleCookie, "", time.Unix(0, 0)))
	return nil
}

func (s *cookieRoleStorage) cookie(name, value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		c.MaxAge = -1
	}
	return c
}

func (s *cookieRoleStorage) setToken(token string, expires time.Time) {
	s.ctx.SetCookie(s.cookie(sessionCookie, token, expires))
}

func (s *cookieRoleStorage) clearToken() {
	s.ctx.SetCookie(s.cookie(sessionCookie, "", time.Unix(0, 0)))
}

// tokenOf returns the bearer token of the request, falling back to the session cookie.
func tokenOf(ctx echo.Context) string {
	if h := ctx.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := ctx.Cookie(sessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// sessionMiddleware restores the caller's session into a per-request session.Store.
func (s *server) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		roles := &cookieRoleStorage{
			ctx:      ctx,
			secret:   []byte(s.opts.Conf.SecretKey),
			ttl:      s.opts.Conf.Server.SessionRefreshTTL,
			adminTTL: s.opts.Conf.Server.AdminSessionTTL,
			secure:   s.opts.Conf.Server.SecureCookies,
			revoked:  s.adminHints,
		}
		store := session.NewStore(s.opts.Auth, roles, session.AdminCredentials{
			Email:    s.opts.Conf.Admin.Email,
			Password: s.opts.Conf.Admin.Password,
		})
		defer store.Close()

		if _, err := store.Restore(ctx.Request().Context(), tokenOf(ctx)); err != nil {
			return errors.Wrap(err, "restoring session")
		}
		ctx.Set(ctxStoreKey, store)
		ctx.Set(ctxRolesKey, roles)
		return next(ctx)
	}
}

func storeOf(ctx echo.Context) (*session.Store, bool) {
	store, ok := ctx.Get(ctxStoreKey).(*session.Store)
	return store, ok
}

func rolesOf(ctx echo.Context) *cookieRoleStorage {
	roles, _ := ctx.Get(ctxRolesKey).(*cookieRoleStorage)
	return roles
}

// viewerOf returns the authenticated caller, or the zero Viewer.
func viewerOf(ctx echo.Context) access.Viewer {
	if store, ok := storeOf(ctx); ok {
		return store.State().Viewer()
	}
	return access.Viewer{}
}

// areaMiddleware lets in the callers the guard allows into `area`.
func areaMiddleware(area access.Area) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			store, ok := storeOf(ctx)
			if !ok {
				return errUnauthorized
			}
			state := store.State()
			switch access.Check(area.Roles, state.Role, state.Corroboration()) {
			case access.Allow:
				if !state.IsAuthenticated() {
					return errUnauthorized
				}
				return next(ctx)
			case access.Loading:
				return errSessionPending
			case access.RedirectHome:
				return errHttpForbidden
			default:
				return errUnauthorized
			}
		}
	}
}
