package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/auth"
	"github.com/trezcool/escola/core/directory"
	"github.com/trezcool/escola/core/session"
	inmemdb "github.com/trezcool/escola/storage/database/inmem"
)

const pwd = "Str0ng!pass"

var admin = access.Viewer{Role: access.RoleAdmin, UserID: "admin"}

type fixture struct {
	svc  *auth.Service
	repo auth.Repository
	dir  *directory.Service
	mail *mailer
	now  *time.Time
}

type mailer struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (m *mailer) SendMessages(msgs ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msgs...)
}

func setup(t *testing.T) fixture {
	t.Helper()
	now := time.Date(2024, time.July, 1, 8, 0, 0, 0, time.UTC)
	auth.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { auth.NowFunc = time.Now })

	db := inmemdb.Open()
	validator := auth.NewValidator()
	dir := directory.NewService(inmemdb.NewDirectoryRepository(db), validator)
	_, err := dir.CreateEntry(context.Background(), directory.KindClass, directory.EntryInput{Name: "5A"})
	require.NoError(t, err)

	repo := inmemdb.NewAuthRepository(db)
	conf := &core.Config{
		AppName:   "Escola",
		SecretKey: "test-secret",
		Server: core.ServerConfig{
			SessionTTL:        time.Hour,
			SessionRefreshTTL: 24 * time.Hour,
		},
	}
	m := new(mailer)
	return fixture{
		svc:  auth.NewService(repo, dir, m, validator, conf),
		repo: repo,
		dir:  dir,
		mail: m,
		now:  &now,
	}
}

func (f fixture) advance(d time.Duration) { *f.now = f.now.Add(d) }

func (f fixture) guardian(t *testing.T, email string, students ...directory.NewStudent) auth.ProvisionedGuardian {
	t.Helper()
	pg, err := f.svc.ProvisionGuardian(context.Background(), admin, auth.NewGuardianAccount{
		NewGuardian: directory.NewGuardian{Name: "Ana Souza", Email: email, DueDateDay: 10},
		Password:    pwd,
		Students:    students,
	})
	require.NoError(t, err)
	return pg
}

func isAuthErr(err error) bool {
	var aErr *core.AuthError
	return errors.As(err, &aErr)
}

type recorder struct {
	mu     sync.Mutex
	events map[string][]*session.Session
}

func (r *recorder) listen(token string, s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = make(map[string][]*session.Session)
	}
	r.events[token] = append(r.events[token], s)
}

func (r *recorder) last(token string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evs := r.events[token]
	if len(evs) == 0 {
		return nil, false
	}
	return evs[len(evs)-1], true
}

func TestService_SignIn(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	pg := f.guardian(t, "ana@test.com")

	rec := new(recorder)
	unsubscribe := f.svc.Subscribe(rec.listen)
	defer unsubscribe()

	sess, err := f.svc.SignIn(ctx, " ANA@test.com ", pwd)
	require.NoError(t, err)
	assert.Equal(t, pg.Guardian.ID, sess.UserID)
	assert.Equal(t, access.RoleGuardian, sess.Role)
	assert.Equal(t, f.now.Add(time.Hour), sess.ExpiresAt)
	got, ok := rec.last(sess.Token)
	require.True(t, ok)
	assert.Equal(t, sess.UserID, got.UserID)

	acct, err := f.repo.GetAccount(ctx, sess.UserID)
	require.NoError(t, err)
	assert.True(t, acct.LastLogin.Valid)

	t.Run("bad credentials", func(t *testing.T) {
		_, err := f.svc.SignIn(ctx, "ana@test.com", "wrong-password")
		assert.Equal(t, core.ErrInvalidCredentials, err)
		_, err = f.svc.SignIn(ctx, "nobody@test.com", pwd)
		assert.Equal(t, core.ErrInvalidCredentials, err)
	})

	t.Run("deactivated account", func(t *testing.T) {
		_, err := f.svc.SetActive(ctx, admin, pg.Guardian.ID, false)
		require.NoError(t, err)
		_, err = f.svc.SignIn(ctx, "ana@test.com", pwd)
		assert.True(t, isAuthErr(err))
		assert.NotEqual(t, core.ErrInvalidCredentials, err)

		// deactivation also ends the live sessions
		_, err = f.svc.GetSession(ctx, sess.Token)
		assert.True(t, isAuthErr(err))

		_, err = f.svc.SetActive(ctx, admin, pg.Guardian.ID, true)
		require.NoError(t, err)
	})
}

func TestService_GetSession(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.guardian(t, "ana@test.com")
	rec := new(recorder)
	defer f.svc.Subscribe(rec.listen)()

	sess, err := f.svc.SignIn(ctx, "ana@test.com", pwd)
	require.NoError(t, err)

	got, err := f.svc.GetSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	t.Run("tampered token", func(t *testing.T) {
		_, err := f.svc.GetSession(ctx, sess.Token+"x")
		assert.True(t, isAuthErr(err))
		_, err = f.svc.GetSession(ctx, "")
		assert.True(t, isAuthErr(err))
	})

	t.Run("expired", func(t *testing.T) {
		f.advance(time.Hour)
		_, err := f.svc.GetSession(ctx, sess.Token)
		assert.Equal(t, core.ErrSessionExpired, err)
		last, ok := rec.last(sess.Token)
		require.True(t, ok)
		assert.Nil(t, last)
	})
}

func TestService_SignOut(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.guardian(t, "ana@test.com")
	rec := new(recorder)
	defer f.svc.Subscribe(rec.listen)()

	sess, err := f.svc.SignIn(ctx, "ana@test.com", pwd)
	require.NoError(t, err)
	require.NoError(t, f.svc.SignOut(ctx, sess.Token))

	_, err = f.svc.GetSession(ctx, sess.Token)
	assert.Equal(t, core.ErrSessionExpired, err)
	last, ok := rec.last(sess.Token)
	require.True(t, ok)
	assert.Nil(t, last)

	// signing out twice is fine
	assert.NoError(t, f.svc.SignOut(ctx, sess.Token))
}

func TestService_Refresh(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.guardian(t, "ana@test.com")

	sess, err := f.svc.SignIn(ctx, "ana@test.com", pwd)
	require.NoError(t, err)

	f.advance(30 * time.Minute)
	refreshed, err := f.svc.Refresh(ctx, sess.Token)
	require.NoError(t, err)
	assert.NotEqual(t, sess.Token, refreshed.Token)
	assert.Equal(t, f.now.Add(time.Hour), refreshed.ExpiresAt)

	_, err = f.svc.GetSession(ctx, sess.Token)
	assert.Equal(t, core.ErrSessionExpired, err)
	_, err = f.svc.GetSession(ctx, refreshed.Token)
	assert.NoError(t, err)

	t.Run("bounded by the refresh window", func(t *testing.T) {
		f.advance(23*time.Hour + 10*time.Minute) // 20min left in the window
		last, err := f.svc.Refresh(ctx, refreshed.Token)
		require.NoError(t, err)
		assert.Equal(t, f.now.Add(20*time.Minute), last.ExpiresAt)

		f.advance(20 * time.Minute)
		_, err = f.svc.Refresh(ctx, last.Token)
		assert.True(t, isAuthErr(err))
	})
}

func TestService_WithSessionStore(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.guardian(t, "ana@test.com")
	adminCreds := session.AdminCredentials{Email: "admin@escola.com", Password: "admin"}

	store := session.NewStore(f.svc, session.NewMemoryRoleStorage(), adminCreds)
	defer store.Close()

	_, err := store.Login(ctx, session.Credentials{Email: "ana@test.com", Password: pwd}, access.RoleTeacher)
	assert.Equal(t, core.ErrInvalidCredentials, err)

	state, err := store.Login(ctx, session.Credentials{Email: "ana@test.com", Password: pwd}, access.RoleGuardian)
	require.NoError(t, err)
	require.Equal(t, session.Authenticated, state.Status)

	// revoking the session elsewhere reaches the store through the subscription
	require.NoError(t, f.svc.SignOut(ctx, state.Token))
	assert.Equal(t, session.Unauthenticated, store.State().Status)

	restored := session.NewStore(f.svc, session.NewMemoryRoleStorage(access.RoleGuardian), adminCreds)
	defer restored.Close()
	state, err = restored.Restore(ctx, state.Token)
	require.NoError(t, err)
	assert.Equal(t, session.Unauthenticated, state.Status)
}

func TestService_ProvisionGuardian(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the account, the guardian and the students with one id", func(t *testing.T) {
		f := setup(t)
		pg := f.guardian(t, "ana@test.com",
			directory.NewStudent{Name: "Leo", Class: "5A"},
			directory.NewStudent{Name: "Bia"},
		)
		acct, err := f.repo.GetAccount(ctx, pg.Guardian.ID)
		require.NoError(t, err)
		assert.Equal(t, access.RoleGuardian, acct.Role)
		assert.Equal(t, "ana@test.com", acct.Email)

		require.Len(t, pg.Students, 2)
		for _, s := range pg.Students {
			assert.Equal(t, pg.Guardian.ID, s.GuardianID.String)
		}
	})

	t.Run("password policy", func(t *testing.T) {
		f := setup(t)
		tests := []struct {
			name     string
			password string
		}{
			{name: "missing", password: ""},
			{name: "too short", password: "Ab1!"},
			{name: "whitespace", password: "Str0ng pass"},
			{name: "all numeric", password: "1234567890"},
			{name: "similar to the name", password: "anasouza1"},
			{name: "similar to the email", password: "ana@test"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.ProvisionGuardian(ctx, admin, auth.NewGuardianAccount{
					NewGuardian: directory.NewGuardian{Name: "Ana Souza", Email: "ana@test.com", DueDateDay: 10},
					Password:    tt.password,
				})
				var vErr *core.ValidationError
				require.True(t, errors.As(err, &vErr), "got %v", err)
				assert.Contains(t, vErr.FieldsMap(), "password")
			})
		}
		accounts, err := f.svc.ListAccounts(ctx, admin)
		require.NoError(t, err)
		assert.Empty(t, accounts)
	})

	t.Run("invalid student", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.ProvisionGuardian(ctx, admin, auth.NewGuardianAccount{
			NewGuardian: directory.NewGuardian{Name: "Ana Souza", Email: "ana@test.com", DueDateDay: 10},
			Password:    pwd,
			Students:    []directory.NewStudent{{Name: "Leo", Class: "9Z"}},
		})
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr), "got %v", err)
		assert.Contains(t, vErr.FieldsMap(), "students[0].class")
	})

	t.Run("duplicate account email", func(t *testing.T) {
		f := setup(t)
		f.guardian(t, "ana@test.com")
		_, err := f.svc.ProvisionGuardian(ctx, admin, auth.NewGuardianAccount{
			NewGuardian: directory.NewGuardian{Name: "Outra", Email: "ana@test.com", DueDateDay: 5},
			Password:    pwd,
		})
		assert.Equal(t, auth.ErrEmailExists, err)
	})

	t.Run("rolls the account back when the guardian cannot be created", func(t *testing.T) {
		f := setup(t)
		// a directory row without an account holds the email
		_, err := f.dir.CreateGuardian(ctx, directory.NewGuardian{Name: "Ana", Email: "ana@test.com", DueDateDay: 10})
		require.NoError(t, err)

		_, err = f.svc.ProvisionGuardian(ctx, admin, auth.NewGuardianAccount{
			NewGuardian: directory.NewGuardian{Name: "Ana Souza", Email: "ana@test.com", DueDateDay: 10},
			Password:    pwd,
		})
		assert.True(t, core.IsValidation(err), "got %v", err)

		_, err = f.repo.GetAccountByEmail(ctx, "ana@test.com")
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("admins only", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.ProvisionGuardian(ctx, access.Viewer{Role: access.RoleTeacher, UserID: "t1"}, auth.NewGuardianAccount{})
		var fErr *core.ForbiddenError
		assert.True(t, errors.As(err, &fErr))
	})
}

func TestService_ProvisionTeacher(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	teacher, err := f.svc.ProvisionTeacher(ctx, admin, auth.NewTeacherAccount{
		NewTeacher: directory.NewTeacher{Name: "Carla Lima", Email: "carla@test.com", Subjects: []string{"Math"}, Classes: []string{"5A"}},
		Password:   pwd,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Math"}, teacher.Subjects)

	sess, err := f.svc.SignIn(ctx, "carla@test.com", pwd)
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, sess.UserID)
	assert.Equal(t, access.RoleTeacher, sess.Role)

	require.NoError(t, f.svc.DeleteAccount(ctx, admin, teacher.ID))
	_, err = f.dir.GetTeacher(ctx, teacher.ID)
	assert.True(t, core.IsNotFound(err))
	_, err = f.svc.GetSession(ctx, sess.Token)
	assert.Equal(t, core.ErrSessionExpired, err)
}

func TestService_DeleteGuardianAccount(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	pg := f.guardian(t, "ana@test.com", directory.NewStudent{Name: "Leo"})

	// blocked while the guardian has students
	err := f.svc.DeleteAccount(ctx, admin, pg.Guardian.ID)
	assert.True(t, core.IsValidation(err), "got %v", err)
	_, err = f.repo.GetAccount(ctx, pg.Guardian.ID)
	require.NoError(t, err)

	require.NoError(t, f.dir.DeleteStudent(ctx, pg.Students[0].ID))
	require.NoError(t, f.svc.DeleteAccount(ctx, admin, pg.Guardian.ID))
	_, err = f.repo.GetAccount(ctx, pg.Guardian.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_SetPassword(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	pg := f.guardian(t, "ana@test.com")
	sess, err := f.svc.SignIn(ctx, "ana@test.com", pwd)
	require.NoError(t, err)

	err = f.svc.SetPassword(ctx, admin, pg.Guardian.ID, "123")
	assert.True(t, core.IsValidation(err))

	require.NoError(t, f.svc.SetPassword(ctx, admin, pg.Guardian.ID, "N3w-secret"))
	_, err = f.svc.GetSession(ctx, sess.Token)
	assert.Equal(t, core.ErrSessionExpired, err)

	_, err = f.svc.SignIn(ctx, "ana@test.com", pwd)
	assert.Equal(t, core.ErrInvalidCredentials, err)
	_, err = f.svc.SignIn(ctx, "ana@test.com", "N3w-secret")
	assert.NoError(t, err)

	require.NoError(t, f.svc.ResetPassword(ctx, "ANA@test.com", "An0ther-one"))
	_, err = f.svc.SignIn(ctx, "ana@test.com", "An0ther-one")
	assert.NoError(t, err)
}

func (f fixture) lastResetLink(t *testing.T) auth.ResetLink {
	t.Helper()
	f.mail.mu.Lock()
	defer f.mail.mu.Unlock()
	require.NotEmpty(t, f.mail.sent)
	msg := f.mail.sent[len(f.mail.sent)-1]
	assert.Equal(t, "password_reset", msg.TemplateName)
	link, ok := msg.TemplateData.(auth.ResetLink)
	require.True(t, ok)
	return link
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	pg := f.guardian(t, "ana@test.com")

	// unknown emails are not revealed
	require.NoError(t, f.svc.RequestPasswordReset(ctx, "nobody@test.com"))
	assert.Empty(t, f.mail.sent)
	assert.True(t, core.IsValidation(f.svc.RequestPasswordReset(ctx, " ")))

	require.NoError(t, f.svc.RequestPasswordReset(ctx, " ANA@test.com"))
	link := f.lastResetLink(t)
	assert.Equal(t, "ana@test.com", f.mail.sent[0].To[0].Address)

	sess, err := f.svc.SignIn(ctx, "ana@test.com", pwd)
	require.NoError(t, err)
	// signing in changes the last login, so the link sent before is void
	err = f.svc.ConfirmPasswordReset(ctx, auth.PasswordResetConfirm{UID: link.UID, Token: link.Token, Password: "N3w-secret"})
	assert.True(t, core.IsValidation(err))

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ana@test.com"))
	link = f.lastResetLink(t)

	tests := []struct {
		name string
		in   auth.PasswordResetConfirm
	}{
		{name: "missing fields", in: auth.PasswordResetConfirm{}},
		{name: "bad uid", in: auth.PasswordResetConfirm{UID: "%%%", Token: link.Token, Password: "N3w-secret"}},
		{name: "other account", in: auth.PasswordResetConfirm{UID: "Ym9i", Token: link.Token, Password: "N3w-secret"}},
		{name: "tampered token", in: auth.PasswordResetConfirm{UID: link.UID, Token: link.Token + "x", Password: "N3w-secret"}},
		{name: "garbage token", in: auth.PasswordResetConfirm{UID: link.UID, Token: "lmaooolol", Password: "N3w-secret"}},
		{name: "weak password", in: auth.PasswordResetConfirm{UID: link.UID, Token: link.Token, Password: "12345678"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.ConfirmPasswordReset(ctx, tt.in)
			assert.True(t, core.IsValidation(err), "got %v", err)
		})
	}

	in := auth.PasswordResetConfirm{UID: link.UID, Token: link.Token, Password: "N3w-secret"}
	require.NoError(t, f.svc.ConfirmPasswordReset(ctx, in))
	_, err = f.svc.GetSession(ctx, sess.Token)
	assert.Equal(t, core.ErrSessionExpired, err)
	_, err = f.svc.SignIn(ctx, "ana@test.com", "N3w-secret")
	assert.NoError(t, err)

	// single use
	in.Password = "An0ther-one"
	assert.True(t, core.IsValidation(f.svc.ConfirmPasswordReset(ctx, in)))

	// expiry
	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ana@test.com"))
	link = f.lastResetLink(t)
	f.advance(4 * 24 * time.Hour)
	err = f.svc.ConfirmPasswordReset(ctx, auth.PasswordResetConfirm{UID: link.UID, Token: link.Token, Password: "An0ther-one"})
	assert.True(t, core.IsValidation(err))

	// deactivated accounts get no mail
	_, err = f.svc.SetActive(ctx, admin, pg.Guardian.ID, false)
	require.NoError(t, err)
	sent := len(f.mail.sent)
	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ana@test.com"))
	assert.Len(t, f.mail.sent, sent)
}
