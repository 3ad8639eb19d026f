package dig_container

import (
	"context"
	"log"
	"os"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/escola/apps/api/echo"
	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/auth"
	"github.com/trezcool/escola/core/billing"
	"github.com/trezcool/escola/core/directory"
	"github.com/trezcool/escola/core/feed"
	"github.com/trezcool/escola/core/grade"
	blobsvc "github.com/trezcool/escola/services/blob"
	emailsvc "github.com/trezcool/escola/services/email"
	jobsvc "github.com/trezcool/escola/services/jobs"
	logsvc "github.com/trezcool/escola/services/logger"
	metricsvc "github.com/trezcool/escola/services/metrics"
	"github.com/trezcool/escola/storage/database"
	inmemdb "github.com/trezcool/escola/storage/database/inmem"
	sqlxrepos "github.com/trezcool/escola/storage/database/sqlx"
)

const memoryEngine = "memory"

type (
	// ShutdownSignal receives the signal that stops the api.
	ShutdownSignal chan os.Signal

	// Storage holds the database connection, if the repositories use one.
	Storage struct {
		DB *sqlx.DB
	}

	repositories struct {
		dig.Out

		Storage   *Storage
		Directory directory.Repository
		Grades    grade.Repository
		Billing   billing.Repository
		Feed      feed.Repository
		Auth      auth.Repository
	}

	directoryViews struct {
		dig.Out

		Students  grade.StudentLister
		Guardians billing.GuardianLister
		Catalog   feed.Catalog
		Accounts  auth.Directory
	}

	metricsViews struct {
		dig.Out

		Billing billing.Metrics
		Jobs    jobsvc.Recorder
	}

	serverParams struct {
		dig.In

		Conf      *core.Config
		Logger    core.Logger
		Validator *core.Validator
		Metrics   *metricsvc.Metrics
		Auth      *auth.Service
		Directory *directory.Service
		Grades    *grade.Service
		Billing   *billing.Service
		Feed      *feed.Service
		Shutdown  ShutdownSignal
	}
)

func (s *Storage) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func newLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newRepositories(conf *core.Config, logger core.Logger) (repositories, error) {
	if conf.Database.Engine == memoryEngine {
		logger.Warn("using the in-memory database, data is lost on restart")
		db := inmemdb.Open()
		return repositories{
			Storage:   new(Storage),
			Directory: inmemdb.NewDirectoryRepository(db),
			Grades:    inmemdb.NewGradeRepository(db),
			Billing:   inmemdb.NewBillingRepository(db),
			Feed:      inmemdb.NewFeedRepository(db),
			Auth:      inmemdb.NewAuthRepository(db),
		}, nil
	}

	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return repositories{}, errors.Wrap(err, "setting up database")
	}
	db, err := database.Connect(ctx, conf)
	if err != nil {
		return repositories{}, err
	}
	if err := database.Migrate(ctx, db.DB, "up"); err != nil {
		_ = db.Close()
		return repositories{}, err
	}
	return repositories{
		Storage:   &Storage{DB: db},
		Directory: sqlxrepos.NewDirectoryRepository(db),
		Grades:    sqlxrepos.NewGradeRepository(db),
		Billing:   sqlxrepos.NewBillingRepository(db),
		Feed:      sqlxrepos.NewFeedRepository(db),
		Auth:      sqlxrepos.NewAuthRepository(db),
	}, nil
}

func newDirectoryViews(dir *directory.Service) directoryViews {
	return directoryViews{Students: dir, Guardians: dir, Catalog: dir, Accounts: dir}
}

func newMetricsViews(m *metricsvc.Metrics) metricsViews {
	return metricsViews{Billing: m, Jobs: m}
}

func newOverdueMarker(boletos *billing.Service) jobsvc.OverdueMarker { return boletos }

func newShutdownSignal() ShutdownSignal { return make(ShutdownSignal, 1) }

func newServer(p serverParams) echoapi.Server {
	return echoapi.NewServer(
		&echoapi.Options{
			Address:   p.Conf.Server.Address,
			Conf:      p.Conf,
			Logger:    p.Logger,
			Validator: p.Validator,
			Metrics:   p.Metrics,
			Auth:      p.Auth,
			Directory: p.Directory,
			Grades:    p.Grades,
			Billing:   p.Billing,
			Feed:      p.Feed,
		},
		func() {
			select {
			case p.Shutdown <- syscall.SIGTERM:
			default: // already shutting down
			}
		},
	)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(logsvc.NewZap))
	must(c.Provide(newLogger))
	must(c.Provide(auth.NewValidator))
	must(c.Provide(newRepositories))
	must(c.Provide(blobsvc.New))
	must(c.Provide(emailsvc.New))
	must(c.Provide(metricsvc.New))
	must(c.Provide(newMetricsViews))

	must(c.Provide(directory.NewService))
	must(c.Provide(newDirectoryViews))
	must(c.Provide(grade.NewService))
	must(c.Provide(billing.NewService))
	must(c.Provide(feed.NewService))
	must(c.Provide(auth.NewService))

	must(c.Provide(newOverdueMarker))
	must(c.Provide(jobsvc.NewScheduler))
	must(c.Provide(newShutdownSignal))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
