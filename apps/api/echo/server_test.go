package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/escola/apps/api/echo"
	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/auth"
	"github.com/trezcool/escola/core/billing"
	"github.com/trezcool/escola/core/directory"
	"github.com/trezcool/escola/core/feed"
	"github.com/trezcool/escola/core/grade"
	blobsvc "github.com/trezcool/escola/services/blob"
	emailsvc "github.com/trezcool/escola/services/email"
	logsvc "github.com/trezcool/escola/services/logger"
	metricsvc "github.com/trezcool/escola/services/metrics"
	inmemdb "github.com/trezcool/escola/storage/database/inmem"
)

const (
	adminEmail = "admin@escola.com"
	adminPwd   = "admin-secret"
	secret     = "test-secret"
	pwd        = "Str0ng!pass"
)

var adminViewer = access.Viewer{Role: access.RoleAdmin, UserID: "admin", Email: adminEmail}

type testApp struct {
	t        *testing.T
	srv      echoapi.Server
	auth     *auth.Service
	dir      *directory.Service
	feed     *feed.Service
	blobs    *blobsvc.MemoryStore
	mail     *emailsvc.ConsoleServiceMock
	shutdown bool
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	conf := &core.Config{
		AppName:         "Escola",
		Env:             "TEST",
		TestMode:        true,
		SecretKey:       secret,
		FrontendBaseURL: "http://localhost:8080",
		Admin:           core.AdminConfig{Email: adminEmail, Password: adminPwd},
		Server: core.ServerConfig{
			SessionTTL:         time.Hour,
			SessionRefreshTTL:  24 * time.Hour,
			AdminSessionTTL:    time.Hour,
			DisableRequestLogs: true,
			MaxUploadSize:      1 << 10,
		},
	}
	logger := logsvc.NewRollbarLogger(zap.NewNop(), conf)
	validator := auth.NewValidator()
	db := inmemdb.Open()

	app := &testApp{
		t:     t,
		blobs: blobsvc.NewMemoryStore(),
		mail:  emailsvc.NewConsoleServiceMock(conf, logger),
	}
	app.dir = directory.NewService(inmemdb.NewDirectoryRepository(db), validator)
	app.auth = auth.NewService(inmemdb.NewAuthRepository(db), app.dir, app.mail, validator, conf)
	app.feed = feed.NewService(inmemdb.NewFeedRepository(db), app.dir, validator)
	grades := grade.NewService(inmemdb.NewGradeRepository(db), app.dir, validator)
	boletos := billing.NewService(inmemdb.NewBillingRepository(db), app.dir, app.blobs, app.mail, validator, metricsvc.New())

	app.srv = echoapi.NewServer(&echoapi.Options{
		Conf:      conf,
		Logger:    logger,
		Validator: validator,
		Metrics:   metricsvc.New(),
		Auth:      app.auth,
		Directory: app.dir,
		Grades:    grades,
		Billing:   boletos,
		Feed:      app.feed,
	}, func() { app.shutdown = true })
	return app
}

func (app *testApp) provisionTeacher(email string) directory.Teacher {
	app.t.Helper()
	teacher, err := app.auth.ProvisionTeacher(context.Background(), adminViewer, auth.NewTeacherAccount{
		NewTeacher: directory.NewTeacher{Name: "Prof " + email, Email: email},
		Password:   pwd,
	})
	require.NoError(app.t, err)
	return teacher
}

func (app *testApp) provisionGuardian(email string, students ...directory.NewStudent) auth.ProvisionedGuardian {
	app.t.Helper()
	res, err := app.auth.ProvisionGuardian(context.Background(), adminViewer, auth.NewGuardianAccount{
		NewGuardian: directory.NewGuardian{Name: "Guardian " + email, Email: email, DueDateDay: 10},
		Password:    pwd,
		Students:    students,
	})
	require.NoError(app.t, err)
	return res
}

// client is a cookie-keeping caller of the test server.
type client struct {
	app     *testApp
	cookies map[string]*http.Cookie
}

func (app *testApp) client() *client {
	return &client{app: app, cookies: make(map[string]*http.Cookie)}
}

func (c *client) send(req *http.Request) *httptest.ResponseRecorder {
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	c.app.srv.ServeHTTP(rec, req)
	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge < 0 || cookie.Value == "" {
			delete(c.cookies, cookie.Name)
		} else {
			c.cookies[cookie.Name] = cookie
		}
	}
	return rec
}

func (c *client) do(method, target string, body interface{}) *httptest.ResponseRecorder {
	c.app.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.app.t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

func (c *client) login(email, password string, role access.Role) *httptest.ResponseRecorder {
	return c.do(http.MethodPost, "/v1/session/login", map[string]interface{}{
		"email":    email,
		"password": password,
		"role":     role,
	})
}

func (c *client) mustLogin(email, password string, role access.Role) *client {
	c.app.t.Helper()
	rec := c.login(email, password, role)
	require.Equal(c.app.t, http.StatusOK, rec.Code, rec.Body.String())
	return c
}

// assertNoRoute checks that no handler of the area serves the request.
func assertNoRoute(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Contains(t, []int{http.StatusNotFound, http.StatusMethodNotAllowed}, rec.Code, rec.Body.String())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestServer_Home(t *testing.T) {
	app := newTestApp(t)
	rec := app.client().do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Escola API!", rec.Body.String())
}

func TestServer_AreaGating(t *testing.T) {
	app := newTestApp(t)
	app.provisionTeacher("prof@test.com")
	app.provisionGuardian("mom@test.com")

	callers := map[string]*client{
		"anonymous": app.client(),
		"admin":     app.client().mustLogin(adminEmail, adminPwd, access.RoleAdmin),
		"teacher":   app.client().mustLogin("prof@test.com", pwd, access.RoleTeacher),
		"guardian":  app.client().mustLogin("mom@test.com", pwd, access.RoleGuardian),
	}
	want := map[string]map[string]int{
		"anonymous": {"admin": http.StatusUnauthorized, "teacher": http.StatusUnauthorized, "guardian": http.StatusUnauthorized},
		"admin":     {"admin": http.StatusOK, "teacher": http.StatusForbidden, "guardian": http.StatusForbidden},
		"teacher":   {"admin": http.StatusForbidden, "teacher": http.StatusOK, "guardian": http.StatusForbidden},
		"guardian":  {"admin": http.StatusForbidden, "teacher": http.StatusForbidden, "guardian": http.StatusOK},
	}

	for caller, areas := range want {
		for area, code := range areas {
			t.Run(caller+" in "+area, func(t *testing.T) {
				rec := callers[caller].do(http.MethodGet, "/v1/"+area+"/events", nil)
				assert.Equal(t, code, rec.Code, rec.Body.String())
			})
		}
	}
}

func TestServer_RoleWithoutLogin(t *testing.T) {
	app := newTestApp(t)
	c := app.client()

	rec := c.do(http.MethodPost, "/v1/session/role", map[string]string{"role": "teacher"})
	require.Equal(t, http.StatusOK, rec.Code)
	var res echoapi.SessionResponse
	decode(t, rec, &res)
	assert.Equal(t, "unauthenticated", res.Status)
	assert.Equal(t, access.RoleTeacher, res.Role)

	// the hint survives, but it is not a login
	rec = c.do(http.MethodGet, "/v1/session", nil)
	decode(t, rec, &res)
	assert.Equal(t, access.RoleTeacher, res.Role)
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/v1/teacher/events", nil).Code)

	rec = c.do(http.MethodPost, "/v1/session/role", map[string]string{"role": "principal"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_AdminHintIsNotALogin(t *testing.T) {
	app := newTestApp(t)

	t.Run("selected admin role", func(t *testing.T) {
		c := app.client()
		rec := c.do(http.MethodPost, "/v1/session/role", map[string]string{"role": "admin"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, c.cookies, "escola_role")
		assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/v1/admin/guardians", nil).Code)
	})

	forge := func(key string, verified bool) *http.Cookie {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"role":     "admin",
			"verified": verified,
			"jti":      "hint-1",
			"exp":      time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(key))
		require.NoError(t, err)
		return &http.Cookie{Name: "escola_role", Value: signed}
	}

	t.Run("forged cookie", func(t *testing.T) {
		c := app.client()
		c.cookies["escola_role"] = forge("not-the-secret", true)
		assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/v1/admin/guardians", nil).Code)
	})

	t.Run("plain cookie", func(t *testing.T) {
		c := app.client()
		c.cookies["escola_role"] = &http.Cookie{Name: "escola_role", Value: "admin"}
		assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/v1/admin/guardians", nil).Code)
	})

	t.Run("unverified cookie", func(t *testing.T) {
		c := app.client()
		c.cookies["escola_role"] = forge(secret, false)
		assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/v1/admin/guardians", nil).Code)
	})

	t.Run("verified cookie", func(t *testing.T) {
		c := app.client()
		c.cookies["escola_role"] = forge(secret, true)
		assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/v1/admin/guardians", nil).Code)
	})
}

func TestServer_Login(t *testing.T) {
	app := newTestApp(t)
	app.provisionTeacher("prof@test.com")

	tests := []struct {
		name     string
		email    string
		password string
		role     access.Role
		wantCode int
	}{
		{name: "wrong admin password", email: adminEmail, password: "nope", role: access.RoleAdmin, wantCode: http.StatusUnauthorized},
		{name: "teacher as admin", email: "prof@test.com", password: pwd, role: access.RoleAdmin, wantCode: http.StatusUnauthorized},
		{name: "teacher as guardian", email: "prof@test.com", password: pwd, role: access.RoleGuardian, wantCode: http.StatusUnauthorized},
		{name: "wrong teacher password", email: "prof@test.com", password: "Wr0ng!pass", role: access.RoleTeacher, wantCode: http.StatusUnauthorized},
		{name: "teacher", email: " PROF@test.com ", password: pwd, role: access.RoleTeacher, wantCode: http.StatusOK},
		{name: "admin", email: adminEmail, password: adminPwd, role: access.RoleAdmin, wantCode: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := app.client()
			rec := c.login(tc.email, tc.password, tc.role)
			assert.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
			if tc.wantCode != http.StatusOK {
				assert.NotContains(t, c.cookies, "escola_session")
				return
			}

			var res echoapi.SessionResponse
			decode(t, rec, &res)
			assert.Equal(t, "authenticated", res.Status)
			assert.Equal(t, tc.role, res.Role)
			assert.Equal(t, "/v1/"+string(tc.role), res.Home)
			if tc.role == access.RoleTeacher {
				assert.NotEmpty(t, res.Token)
				assert.Equal(t, res.Token, c.cookies["escola_session"].Value)
			}
		})
	}
}

func TestServer_BearerToken(t *testing.T) {
	app := newTestApp(t)
	app.provisionTeacher("prof@test.com")

	var res echoapi.SessionResponse
	decode(t, app.client().login("prof@test.com", pwd, access.RoleTeacher), &res)
	require.NotEmpty(t, res.Token)

	// another caller holding the role hint and the bearer token only
	c := app.client()
	c.do(http.MethodPost, "/v1/session/role", map[string]string{"role": "teacher"})
	assert.NotContains(t, c.cookies, "escola_session")

	req := httptest.NewRequest(http.MethodGet, "/v1/teacher/events", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	assert.Equal(t, http.StatusOK, c.send(req).Code)
}

func TestServer_LogoutAndRefresh(t *testing.T) {
	app := newTestApp(t)
	app.provisionTeacher("prof@test.com")

	c := app.client().mustLogin("prof@test.com", pwd, access.RoleTeacher)
	oldToken := c.cookies["escola_session"].Value

	rec := c.do(http.MethodPost, "/v1/session/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res echoapi.SessionResponse
	decode(t, rec, &res)
	assert.NotEqual(t, oldToken, res.Token)
	assert.Equal(t, res.Token, c.cookies["escola_session"].Value)
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/v1/teacher/events", nil).Code)

	// the old token is revoked
	stale := app.client()
	stale.cookies = map[string]*http.Cookie{
		"escola_role":    c.cookies["escola_role"],
		"escola_session": {Name: "escola_session", Value: oldToken},
	}
	assert.Equal(t, http.StatusUnauthorized, stale.do(http.MethodGet, "/v1/teacher/events", nil).Code)

	rec = c.do(http.MethodPost, "/v1/session/logout", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, c.cookies, "escola_session")
	assert.NotContains(t, c.cookies, "escola_role")
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/v1/teacher/events", nil).Code)

	// the session is gone server side too
	req := httptest.NewRequest(http.MethodPost, "/v1/session/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	assert.Equal(t, http.StatusUnauthorized, app.client().send(req).Code)
}

func TestServer_PasswordReset(t *testing.T) {
	app := newTestApp(t)
	app.provisionTeacher("prof@test.com")
	c := app.client()

	rec := c.do(http.MethodPost, "/v1/session/password-reset", map[string]string{"email": "nobody@test.com"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, app.mail.Sent())

	rec = c.do(http.MethodPost, "/v1/session/password-reset", map[string]string{"email": "prof@test.com"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	sent := app.mail.Sent()
	require.Len(t, sent, 1)
	link, ok := sent[0].TemplateData.(auth.ResetLink)
	require.True(t, ok)
	assert.Contains(t, sent[0].TextContent, "/password-reset?uid="+link.UID)

	rec = c.do(http.MethodPost, "/v1/session/password-reset/confirm", map[string]string{
		"uid": link.UID, "token": "nope-nope", "password": "N3w!secret",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodPost, "/v1/session/password-reset/confirm", map[string]string{
		"uid": link.UID, "token": link.Token, "password": "N3w!secret",
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, app.client().login("prof@test.com", pwd, access.RoleTeacher).Code)
	app.client().mustLogin("prof@test.com", "N3w!secret", access.RoleTeacher)
}

func TestServer_Users(t *testing.T) {
	app := newTestApp(t)
	admin := app.client().mustLogin(adminEmail, adminPwd, access.RoleAdmin)

	rec := admin.do(http.MethodPost, "/v1/admin/users/guardians", map[string]interface{}{
		"name":         "Maria",
		"email":        "maria@test.com",
		"due_date_day": 5,
		"password":     pwd,
		"students":     []map[string]string{{"name": "Joao"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var provisioned auth.ProvisionedGuardian
	decode(t, rec, &provisioned)
	require.Len(t, provisioned.Students, 1)
	assert.Equal(t, provisioned.Guardian.ID, provisioned.Students[0].GuardianID.String)

	rec = admin.do(http.MethodPost, "/v1/admin/users/teachers", map[string]interface{}{
		"name": "Prof", "email": "prof@test.com", "password": "12345678",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var fields map[string]string
	decode(t, rec, &fields)
	assert.Contains(t, fields, "password")

	rec = admin.do(http.MethodGet, "/v1/admin/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var accounts []auth.Account
	decode(t, rec, &accounts)
	require.Len(t, accounts, 1)
	assert.Equal(t, access.RoleGuardian, accounts[0].Role)

	guardian := app.client().mustLogin("maria@test.com", pwd, access.RoleGuardian)

	rec = admin.do(http.MethodPut, "/v1/admin/users/"+provisioned.Guardian.ID+"/active", map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusUnauthorized, guardian.do(http.MethodGet, "/v1/guardian/events", nil).Code)

	// blocked while the guardian still has students
	rec = admin.do(http.MethodDelete, "/v1/admin/users/"+provisioned.Guardian.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = admin.do(http.MethodDelete, "/v1/admin/students/"+provisioned.Students[0].ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = admin.do(http.MethodDelete, "/v1/admin/users/"+provisioned.Guardian.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = admin.do(http.MethodGet, "/v1/admin/guardians/"+provisioned.Guardian.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Directory(t *testing.T) {
	app := newTestApp(t)
	admin := app.client().mustLogin(adminEmail, adminPwd, access.RoleAdmin)

	rec := admin.do(http.MethodPost, "/v1/admin/guardians", map[string]interface{}{"name": " ", "email": "nope"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var fields map[string]string
	decode(t, rec, &fields)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "due_date_day")

	rec = admin.do(http.MethodPost, "/v1/admin/classes", map[string]string{"name": "5A"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = admin.do(http.MethodPost, "/v1/admin/classes", map[string]string{"name": "5A"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	res := app.provisionGuardian("mom@test.com", directory.NewStudent{Name: "Ana", Class: "5A"})
	other := app.provisionGuardian("dad@test.com", directory.NewStudent{Name: "Bia"})
	app.provisionTeacher("prof@test.com")

	rec = admin.do(http.MethodPut, "/v1/admin/students/"+res.Students[0].ID, map[string]string{"class": "9Z"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	teacher := app.client().mustLogin("prof@test.com", pwd, access.RoleTeacher)
	rec = teacher.do(http.MethodGet, "/v1/teacher/students?class=5A", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var students []directory.Student
	decode(t, rec, &students)
	require.Len(t, students, 1)
	assert.Equal(t, "Ana", students[0].Name)
	assertNoRoute(t, teacher.do(http.MethodPost, "/v1/teacher/students", map[string]string{"name": "X"}))

	guardian := app.client().mustLogin("mom@test.com", pwd, access.RoleGuardian)
	rec = guardian.do(http.MethodGet, "/v1/guardian/students", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &students)
	require.Len(t, students, 1)
	assert.Equal(t, res.Students[0].ID, students[0].ID)

	assert.Equal(t, http.StatusOK, guardian.do(http.MethodGet, "/v1/guardian/students/"+res.Students[0].ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, guardian.do(http.MethodGet, "/v1/guardian/students/"+other.Students[0].ID, nil).Code)
}

func TestServer_Grades(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	math, err := app.dir.CreateEntry(ctx, directory.KindDiscipline, directory.EntryInput{Name: "Math"})
	require.NoError(t, err)
	res := app.provisionGuardian("mom@test.com", directory.NewStudent{Name: "Ana"})
	other := app.provisionGuardian("dad@test.com", directory.NewStudent{Name: "Bia"})
	app.provisionTeacher("prof@test.com")
	ana, bia := res.Students[0].ID, other.Students[0].ID

	teacher := app.client().mustLogin("prof@test.com", pwd, access.RoleTeacher)
	sheet := []map[string]interface{}{
		{"student_id": ana, "discipline_id": math.ID, "unit": 1, "grade": "7,5"},
		{"student_id": ana, "discipline_id": math.ID, "unit": 2, "grade": 9},
		{"student_id": bia, "discipline_id": math.ID, "unit": 1, "grade": ""},
	}
	for i := 0; i < 2; i++ { // idempotent
		rec := teacher.do(http.MethodPut, "/v1/teacher/grades", sheet)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var grades []grade.Grade
		decode(t, rec, &grades)
		assert.Len(t, grades, 2)
	}

	rec := teacher.do(http.MethodPut, "/v1/teacher/grades", []map[string]interface{}{
		{"student_id": ana, "discipline_id": math.ID, "unit": 3, "grade": "11"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	guardian := app.client().mustLogin("mom@test.com", pwd, access.RoleGuardian)
	assertNoRoute(t, guardian.do(http.MethodPut, "/v1/guardian/grades", sheet))

	rec = guardian.do(http.MethodGet, "/v1/guardian/students/"+ana+"/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report grade.Report
	decode(t, rec, &report)
	require.Len(t, report.Disciplines, 1)
	assert.InDelta(t, 8.25, report.Disciplines[0].Average.Float64, 0.001)

	assert.Equal(t, http.StatusNotFound, guardian.do(http.MethodGet, "/v1/guardian/students/"+bia+"/report", nil).Code)

	rec = guardian.do(http.MethodGet, "/v1/guardian/grades?student_id="+bia, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var grades []grade.Grade
	decode(t, rec, &grades)
	assert.Empty(t, grades)
}

func TestServer_Feed(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	class5A, err := app.dir.CreateEntry(ctx, directory.KindClass, directory.EntryInput{Name: "5A"})
	require.NoError(t, err)
	class6B, err := app.dir.CreateEntry(ctx, directory.KindClass, directory.EntryInput{Name: "6B"})
	require.NoError(t, err)
	math, err := app.dir.CreateEntry(ctx, directory.KindDiscipline, directory.EntryInput{Name: "Math"})
	require.NoError(t, err)
	app.provisionGuardian("mom@test.com", directory.NewStudent{Name: "Ana", Class: "5A"})
	app.provisionTeacher("prof@test.com")

	teacher := app.client().mustLogin("prof@test.com", pwd, access.RoleTeacher)
	for _, classID := range []string{class5A.ID, class6B.ID} {
		rec := teacher.do(http.MethodPost, "/v1/teacher/activities", map[string]string{
			"class_id":      classID,
			"discipline_id": math.ID,
			"description":   "Exercises 1 to 10",
			"due_date":      "2024-08-01",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := teacher.do(http.MethodPost, "/v1/teacher/events", map[string]string{
		"title": "Math test", "date": "2024-08-02", "type": "exam",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	guardian := app.client().mustLogin("mom@test.com", pwd, access.RoleGuardian)
	rec = guardian.do(http.MethodGet, "/v1/guardian/activities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var activities []feed.Activity
	decode(t, rec, &activities)
	require.Len(t, activities, 1)
	assert.Equal(t, class5A.ID, activities[0].ClassID)

	rec = guardian.do(http.MethodGet, "/v1/guardian/events?from=2024-08-01&to=2024-08-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []feed.CalendarEvent
	decode(t, rec, &events)
	require.Len(t, events, 1)
	assert.Equal(t, feed.EventExam, events[0].Type)

	assertNoRoute(t, guardian.do(http.MethodPost, "/v1/guardian/events", map[string]string{"title": "x"}))
	assert.Equal(t, http.StatusBadRequest, guardian.do(http.MethodGet, "/v1/guardian/events?from=2024-08-31&to=2024-08-01", nil).Code)
}

func multipartBoleto(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/boletos", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestServer_Boletos(t *testing.T) {
	app := newTestApp(t)
	mom := app.provisionGuardian("mom@test.com").Guardian
	dad := app.provisionGuardian("dad@test.com").Guardian
	admin := app.client().mustLogin(adminEmail, adminPwd, access.RoleAdmin)

	rec := admin.send(multipartBoleto(t, map[string]string{
		"guardian_id": mom.ID, "amount": "550,50", "due_date": "2024-08-10", "status": "pago",
	}, "boleto.pdf", "%PDF-1.4"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var withFile billing.Boleto
	decode(t, rec, &withFile)
	assert.Equal(t, core.Money(55050), withFile.Amount)
	assert.Equal(t, billing.StatusPending, withFile.Status)
	assert.True(t, withFile.HasAttachment())
	assert.Len(t, app.blobs.Paths(), 1)
	assert.Len(t, app.mail.Sent(), 1)

	rec = admin.send(multipartBoleto(t, map[string]string{
		"guardian_id": mom.ID, "amount": "1", "due_date": "2024-09-10",
	}, "big.pdf", strings.Repeat("x", 2<<10)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var fields map[string]string
	decode(t, rec, &fields)
	assert.Contains(t, fields, "file")

	rec = admin.send(multipartBoleto(t, map[string]string{"guardian_id": mom.ID, "amount": "abc"}, "", ""))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields = nil
	decode(t, rec, &fields)
	assert.Contains(t, fields, "amount")
	assert.Len(t, app.blobs.Paths(), 1)

	rec = admin.do(http.MethodPost, "/v1/admin/boletos/batch", map[string]interface{}{"month": 8, "year": 2024, "amount": 550})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var batch billing.BatchResult
	decode(t, rec, &batch)
	assert.Equal(t, 1, batch.Created)
	assert.Equal(t, 1, batch.Skipped)
	require.Len(t, batch.Boletos, 1)
	assert.Equal(t, dad.ID, batch.Boletos[0].GuardianID)

	rec = admin.do(http.MethodPut, "/v1/admin/boletos/"+batch.Boletos[0].ID+"/status", map[string]string{"status": "pago"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = admin.do(http.MethodGet, "/v1/admin/boletos?year=2024&month=8&ordering=-amount", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var boletos []billing.Boleto
	decode(t, rec, &boletos)
	require.Len(t, boletos, 2)
	assert.Equal(t, withFile.ID, boletos[0].ID)
	assert.Equal(t, http.StatusBadRequest, admin.do(http.MethodGet, "/v1/admin/boletos?ordering=file_path", nil).Code)

	rec = admin.do(http.MethodGet, "/v1/admin/boletos/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))

	guardian := app.client().mustLogin("mom@test.com", pwd, access.RoleGuardian)
	rec = guardian.do(http.MethodGet, "/v1/guardian/boletos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &boletos)
	require.Len(t, boletos, 1)
	assert.Equal(t, withFile.ID, boletos[0].ID)

	rec = guardian.do(http.MethodGet, "/v1/guardian/boletos/"+withFile.ID+"/file", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".pdf")

	assert.Equal(t, http.StatusNotFound, guardian.do(http.MethodGet, "/v1/guardian/boletos/"+batch.Boletos[0].ID, nil).Code)
	assertNoRoute(t, guardian.do(http.MethodDelete, "/v1/guardian/boletos/"+withFile.ID, nil))

	// a blob that cannot be removed keeps the boleto
	app.blobs.FailOn("remove", assert.AnError)
	rec = admin.do(http.MethodDelete, "/v1/admin/boletos/"+withFile.ID, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, http.StatusOK, admin.do(http.MethodGet, "/v1/admin/boletos/"+withFile.ID, nil).Code)
	assert.False(t, app.shutdown)
}

func TestServer_NewBoletoIsPending(t *testing.T) {
	app := newTestApp(t)
	mom := app.provisionGuardian("mom@test.com").Guardian
	admin := app.client().mustLogin(adminEmail, adminPwd, access.RoleAdmin)

	rec := admin.do(http.MethodPost, "/v1/admin/boletos", map[string]interface{}{
		"guardian_id": mom.ID, "amount": 550, "due_date": "2024-08-10", "status": "pago",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var b billing.Boleto
	decode(t, rec, &b)
	assert.Equal(t, billing.StatusPending, b.Status)
	assert.Equal(t, core.Money(55000), b.Amount)

	rec = admin.do(http.MethodGet, "/v1/admin/boletos?status=pago", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var paid []billing.Boleto
	decode(t, rec, &paid)
	assert.Empty(t, paid)
}

func TestServer_AdminLogoutRevokesHint(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name   string
		finish func(c *client)
	}{
		{
			name: "logout",
			finish: func(c *client) {
				assert.Equal(t, http.StatusNoContent, c.do(http.MethodPost, "/v1/session/logout", nil).Code)
			},
		},
		{
			name: "role switch",
			finish: func(c *client) {
				assert.Equal(t, http.StatusOK, c.do(http.MethodPost, "/v1/session/role", map[string]string{"role": "teacher"}).Code)
			},
		},
		{
			name: "new login",
			finish: func(c *client) {
				assert.Equal(t, http.StatusOK, c.login(adminEmail, adminPwd, access.RoleAdmin).Code)
				assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/v1/admin/events", nil).Code)
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := app.client().mustLogin(adminEmail, adminPwd, access.RoleAdmin)
			require.Contains(t, c.cookies, "escola_role")
			copied := c.cookies["escola_role"]
			require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/v1/admin/events", nil).Code)

			tc.finish(c)

			stale := app.client()
			stale.cookies = map[string]*http.Cookie{"escola_role": copied}
			assert.Equal(t, http.StatusUnauthorized, stale.do(http.MethodGet, "/v1/admin/events", nil).Code)
		})
	}
}
