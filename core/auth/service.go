package auth

import (
	"context"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/directory"
	"github.com/trezcool/escola/core/session"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrEmailExists = core.NewValidationError(
		errors.New("email already in use"),
		core.FieldError{Field: "email", Error: "an account with this email already exists"},
	)
	errInvalidToken       = core.NewAuthError("invalid token")
	errAccountDeactivated = core.NewAuthError("account deactivated")
	errRefreshExpired     = core.NewAuthError("refresh has expired")
)

type (
	Repository interface {
		QueryAccounts(ctx context.Context) ([]Account, error)
		GetAccount(ctx context.Context, id string) (Account, error)
		GetAccountByEmail(ctx context.Context, email string) (Account, error)
		// CreateAccount returns ErrEmailExists if the email is taken.
		CreateAccount(ctx context.Context, a Account) (Account, error)
		UpdateAccount(ctx context.Context, a Account) (Account, error)
		// DeleteAccount deletes the account and its sessions.
		DeleteAccount(ctx context.Context, id string) error

		CreateSession(ctx context.Context, s SessionRecord) error
		GetSession(ctx context.Context, id string) (SessionRecord, error)
		RevokeSession(ctx context.Context, id string, at time.Time) error
		RevokeAccountSessions(ctx context.Context, accountID string, at time.Time) error
	}

	// Directory is the part of the directory registry used to provision accounts.
	Directory interface {
		ValidateStudent(ctx context.Context, ns *directory.NewStudent, skipGuardian ...bool) error
		CreateGuardian(ctx context.Context, ng directory.NewGuardian, id ...string) (directory.Guardian, error)
		CreateValidatedStudent(ctx context.Context, ns directory.NewStudent) (directory.Student, error)
		CreateTeacher(ctx context.Context, nt directory.NewTeacher, id ...string) (directory.Teacher, error)
		DeleteGuardian(ctx context.Context, id string) error
		DeleteStudent(ctx context.Context, id string) error
		DeleteTeacher(ctx context.Context, id string) error
	}

	// Service signs teachers & guardians in with signed tokens backed by session records,
	// and provisions their accounts.
	Service struct {
		repo      Repository
		dir       Directory
		mailSvc   core.EmailService
		validator *core.Validator

		secret       []byte
		issuer       string
		ttl          time.Duration
		refreshTTL   time.Duration
		resetTimeout time.Duration

		mu        sync.Mutex
		listeners map[int]session.Listener
		nextID    int
	}
)

var _ session.Authenticator = (*Service)(nil)

func NewService(
	repo Repository,
	dir Directory,
	mailSvc core.EmailService,
	validator *core.Validator,
	conf *core.Config,
) *Service {
	resetTimeout := conf.PasswordResetTimeout
	if resetTimeout <= 0 {
		resetTimeout = 3 * 24 * time.Hour
	}
	return &Service{
		repo:         repo,
		dir:          dir,
		mailSvc:      mailSvc,
		validator:    validator,
		secret:       []byte(conf.SecretKey),
		issuer:       conf.AppName,
		ttl:          conf.Server.SessionTTL,
		refreshTTL:   conf.Server.SessionRefreshTTL,
		resetTimeout: resetTimeout,
		listeners:    make(map[int]session.Listener),
	}
}

// Subscribe registers `fn` to be called on every session change. Listeners run synchronously.
func (svc *Service) Subscribe(fn session.Listener) func() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	id := svc.nextID
	svc.nextID++
	svc.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			svc.mu.Lock()
			defer svc.mu.Unlock()
			delete(svc.listeners, id)
		})
	}
}

func (svc *Service) notify(token string, s *session.Session) {
	svc.mu.Lock()
	fns := make([]session.Listener, 0, len(svc.listeners))
	for _, fn := range svc.listeners {
		fns = append(fns, fn)
	}
	svc.mu.Unlock()

	for _, fn := range fns {
		fn(token, s)
	}
}

func (svc *Service) SignIn(ctx context.Context, email, password string) (session.Session, error) {
	acct, err := svc.repo.GetAccountByEmail(ctx, cleanEmail(email))
	if err != nil {
		if core.IsNotFound(err) {
			return session.Session{}, core.ErrInvalidCredentials
		}
		return session.Session{}, errors.Wrap(err, "finding account by email")
	}
	if err = acct.CheckPassword(password); err != nil {
		return session.Session{}, core.ErrInvalidCredentials
	}
	if !acct.IsActive {
		return session.Session{}, errAccountDeactivated
	}

	now := NowFunc().UTC()
	rec := SessionRecord{
		ID:           uuid.NewString(),
		AccountID:    acct.ID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(svc.ttl),
		RefreshUntil: now.Add(svc.refreshTTL),
	}
	sess, err := svc.open(ctx, acct, rec)
	if err != nil {
		return session.Session{}, err
	}

	acct.LastLogin.SetValid(now)
	if _, err := svc.repo.UpdateAccount(ctx, acct); err != nil {
		return session.Session{}, errors.Wrap(err, "setting last login")
	}
	svc.notify(sess.Token, &sess)
	return sess, nil
}

// open stores `rec` and signs its token.
func (svc *Service) open(ctx context.Context, acct Account, rec SessionRecord) (session.Session, error) {
	if err := svc.repo.CreateSession(ctx, rec); err != nil {
		return session.Session{}, errors.Wrap(err, "creating session")
	}
	token, err := svc.sign(acct, rec)
	if err != nil {
		return session.Session{}, err
	}
	return session.Session{
		Token:     token,
		UserID:    acct.ID,
		Email:     acct.Email,
		Role:      acct.Role,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

func (svc *Service) SignOut(ctx context.Context, token string) error {
	claims, err := svc.parse(token)
	if err != nil {
		return err
	}
	if err := svc.repo.RevokeSession(ctx, claims.Id, NowFunc().UTC()); err != nil && !core.IsNotFound(err) {
		return errors.Wrap(err, "revoking session")
	}
	svc.notify(token, nil)
	return nil
}

// GetSession returns the live session behind `token`.
// Listeners are told when a session turns out to be expired or revoked.
func (svc *Service) GetSession(ctx context.Context, token string) (session.Session, error) {
	claims, err := svc.parse(token)
	if err != nil {
		return session.Session{}, err
	}
	rec, acct, err := svc.load(ctx, claims)
	if err != nil {
		return session.Session{}, err
	}
	if !NowFunc().Before(rec.ExpiresAt) {
		svc.notify(token, nil)
		return session.Session{}, core.ErrSessionExpired
	}
	return session.Session{
		Token:     token,
		UserID:    acct.ID,
		Email:     acct.Email,
		Role:      acct.Role,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// Refresh swaps `token` for a new one. The old token is revoked.
// Sessions cannot be refreshed past the refresh window opened at sign in.
func (svc *Service) Refresh(ctx context.Context, token string) (session.Session, error) {
	claims, err := svc.parse(token)
	if err != nil {
		return session.Session{}, err
	}
	rec, acct, err := svc.load(ctx, claims)
	if err != nil {
		return session.Session{}, err
	}
	now := NowFunc().UTC()
	if !now.Before(rec.RefreshUntil) {
		svc.notify(token, nil)
		return session.Session{}, errRefreshExpired
	}

	expires := now.Add(svc.ttl)
	if expires.After(rec.RefreshUntil) {
		expires = rec.RefreshUntil
	}
	sess, err := svc.open(ctx, acct, SessionRecord{
		ID:           uuid.NewString(),
		AccountID:    acct.ID,
		CreatedAt:    now,
		ExpiresAt:    expires,
		RefreshUntil: rec.RefreshUntil,
	})
	if err != nil {
		return session.Session{}, err
	}
	if err := svc.repo.RevokeSession(ctx, rec.ID, now); err != nil {
		return session.Session{}, errors.Wrap(err, "revoking session")
	}
	svc.notify(token, nil)
	svc.notify(sess.Token, &sess)
	return sess, nil
}

// load returns the session record and the account behind `claims`, if both are still usable.
func (svc *Service) load(ctx context.Context, claims *Claims) (SessionRecord, Account, error) {
	rec, err := svc.repo.GetSession(ctx, claims.Id)
	if err != nil {
		if core.IsNotFound(err) {
			return SessionRecord{}, Account{}, core.ErrSessionExpired
		}
		return SessionRecord{}, Account{}, errors.Wrap(err, "finding session")
	}
	if rec.Revoked() || rec.AccountID != claims.Subject {
		return SessionRecord{}, Account{}, core.ErrSessionExpired
	}
	acct, err := svc.repo.GetAccount(ctx, rec.AccountID)
	if err != nil {
		if core.IsNotFound(err) {
			return SessionRecord{}, Account{}, core.ErrSessionExpired
		}
		return SessionRecord{}, Account{}, errors.Wrap(err, "finding account")
	}
	if !acct.IsActive {
		return SessionRecord{}, Account{}, errAccountDeactivated
	}
	return rec, acct, nil
}

func (svc *Service) sign(acct Account, rec SessionRecord) (string, error) {
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        rec.ID,
			Issuer:    svc.issuer,
			Subject:   acct.ID,
			ExpiresAt: rec.ExpiresAt.Unix(),
			IssuedAt:  rec.CreatedAt.Unix(),
		},
		Email: acct.Email,
		Role:  acct.Role,
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.secret)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// parse checks the signature of `token`. Expiry is checked against the session record.
func (svc *Service) parse(token string) (*Claims, error) {
	if token == "" {
		return nil, errInvalidToken
	}
	parser := jwt.Parser{
		ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
		SkipClaimsValidation: true,
	}
	claims := new(Claims)
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return svc.secret, nil
	})
	if err != nil || claims.Id == "" || claims.Subject == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Accounts

func canManage(viewer access.Viewer) error {
	if !viewer.Capabilities().ManageUsers {
		return core.NewForbiddenError("manage users")
	}
	return nil
}

func (svc *Service) ListAccounts(ctx context.Context, viewer access.Viewer) ([]Account, error) {
	if err := canManage(viewer); err != nil {
		return nil, err
	}
	return svc.repo.QueryAccounts(ctx)
}

func (svc *Service) GetAccount(ctx context.Context, viewer access.Viewer, id string) (Account, error) {
	if err := canManage(viewer); err != nil {
		return Account{}, err
	}
	return svc.repo.GetAccount(ctx, id)
}

// SetActive (de)activates an account. Deactivation revokes its sessions.
func (svc *Service) SetActive(ctx context.Context, viewer access.Viewer, id string, active bool) (Account, error) {
	if err := canManage(viewer); err != nil {
		return Account{}, err
	}
	acct, err := svc.repo.GetAccount(ctx, id)
	if err != nil {
		return Account{}, err
	}
	now := NowFunc().UTC()
	acct.IsActive = active
	acct.UpdatedAt = now
	if acct, err = svc.repo.UpdateAccount(ctx, acct); err != nil {
		return Account{}, err
	}
	if !active {
		if err := svc.repo.RevokeAccountSessions(ctx, id, now); err != nil {
			return Account{}, errors.Wrap(err, "revoking sessions")
		}
	}
	return acct, nil
}

// SetPassword is the admin password reset. Every session of the account is revoked.
func (svc *Service) SetPassword(ctx context.Context, viewer access.Viewer, id, password string) error {
	if err := canManage(viewer); err != nil {
		return err
	}
	acct, err := svc.repo.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	return svc.setPassword(ctx, acct, password)
}

// ResetPassword sets the password of the account with `email`, for operator tools.
func (svc *Service) ResetPassword(ctx context.Context, email, password string) error {
	acct, err := svc.repo.GetAccountByEmail(ctx, cleanEmail(email))
	if err != nil {
		return err
	}
	return svc.setPassword(ctx, acct, password)
}

func (svc *Service) setPassword(ctx context.Context, acct Account, password string) error {
	if err := svc.validator.Struct(PasswordReset{Password: password, email: acct.Email}); err != nil {
		return err
	}
	if err := acct.SetPassword(password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	now := NowFunc().UTC()
	acct.UpdatedAt = now
	if _, err := svc.repo.UpdateAccount(ctx, acct); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.RevokeAccountSessions(ctx, acct.ID, now), "revoking sessions")
}
