package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/access"
	"github.com/trezcool/escola/core/auth"
	"github.com/trezcool/escola/core/billing"
	"github.com/trezcool/escola/core/directory"
	"github.com/trezcool/escola/core/feed"
	"github.com/trezcool/escola/core/grade"
	metricsvc "github.com/trezcool/escola/services/metrics"
)

type (
	Options struct {
		Address   string
		Conf      *core.Config
		Logger    core.Logger
		Validator *core.Validator
		Metrics   *metricsvc.Metrics // optional

		Auth      *auth.Service
		Directory *directory.Service
		Grades    *grade.Service
		Billing   *billing.Service
		Feed      *feed.Service
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts       *Options
		app        *echo.Echo
		adminHints *revokedHints
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options, signalShutdown func()) Server {
	s := &server{
		opts:       opts,
		app:        echo.New(),
		adminHints: newRevokedHints(),
	}
	s.setup(signalShutdown)
	return s
}

func (s *server) setup(signalShutdown func()) {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableRequestLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if s.opts.Metrics != nil {
		s.app.Use(s.opts.Metrics.Middleware())
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Validator, signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1", s.sessionMiddleware)
	registerSessionAPI(v1, s.opts.Auth)

	admin := v1.Group(access.AdminArea.Path, areaMiddleware(access.AdminArea))
	teacher := v1.Group(access.TeacherArea.Path, areaMiddleware(access.TeacherArea))
	guardian := v1.Group(access.GuardianArea.Path, areaMiddleware(access.GuardianArea))

	registerAccountsAPI(admin, s.opts.Auth)
	registerDirectoryAPI(admin, teacher, guardian, s.opts.Directory)
	registerGradesAPI(admin, teacher, guardian, s.opts.Grades)
	registerBillingAPI(admin, guardian, s.opts.Billing, s.opts.Directory, conf.Server.MaxUploadSize)
	registerFeedAPI(admin, teacher, guardian, s.opts.Feed)
}

func (s *server) Start() {
	if err := s.app.Start(s.opts.Address); err != nil && err != http.ErrServerClosed {
		s.opts.Logger.Fatal("api server stopped", err)
	}
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}
