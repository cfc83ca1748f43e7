package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/colegio/apps/api/echo"
	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/academic"
	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/user"
	bcvrate "github.com/trezcool/colegio/services/bcv"
	emailsvc "github.com/trezcool/colegio/services/email"
	"github.com/trezcool/colegio/services/filestore"
	logsvc "github.com/trezcool/colegio/services/logger"
	"github.com/trezcool/colegio/storage/database"
	inmemdb "github.com/trezcool/colegio/storage/database/inmem"
	"github.com/trezcool/colegio/storage/database/seed"
	sqlxrepos "github.com/trezcool/colegio/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Repositories is provided by either storage backend.
type Repositories struct {
	dig.Out
	Users    user.Repository
	Academic academic.Repository
	Billing  billing.Repository
}

type ServerParams struct {
	dig.In
	Conf        *core.Config
	Logger      core.Logger
	Validate    *validator.Validate
	Translator  ut.Translator
	UserSvc     user.Service
	AcademicSvc academic.Service
	BillingSvc  billing.Service
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB) {
	setUp := func() (*sqlx.DB, error) {
		ctx := context.Background()
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Ping(ctx, db); err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newSQLRepositories(db *sqlx.DB) Repositories {
	return Repositories{
		Users:    sqlxrepos.NewUserRepository(db),
		Academic: sqlxrepos.NewAcademicRepository(db),
		Billing:  sqlxrepos.NewBillingRepository(db),
	}
}

// newDemoRepositories serves a seeded in-memory store.
func newDemoRepositories(conf *core.Config, loggerParam DBLoggerParam) Repositories {
	db := inmemdb.Open()
	repos := Repositories{
		Users:    inmemdb.NewUserRepository(db),
		Academic: inmemdb.NewAcademicRepository(db),
		Billing:  inmemdb.NewBillingRepository(db),
	}
	seedRepos := seed.Repos{Users: repos.Users, Academic: repos.Academic, Billing: repos.Billing}
	if err := seed.Run(context.Background(), seedRepos, conf.DemoPassword, loggerParam.Logger); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("seeding demo data: %v", err), err)
	}
	return repos
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newRateProvider(conf *core.Config) billing.RateProvider {
	return bcvrate.NewProvider(conf)
}

func newFileStore(conf *core.Config) billing.FileStore {
	return filestore.NewLocalStore(conf)
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:        p.Conf,
		Logger:      p.Logger,
		Validate:    p.Validate,
		Translator:  p.Translator,
		UserSvc:     p.UserSvc,
		AcademicSvc: p.AcademicSvc,
		BillingSvc:  p.BillingSvc,
	})
}

// New returns a new dependency injection dig.Container.
// With inMemory, the API runs on a seeded in-memory store instead of Postgres.
func New(inMemory bool) *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	if inMemory {
		must(c.Provide(newDemoRepositories))
	} else {
		must(c.Provide(newDB))
		must(c.Provide(newSQLRepositories))
	}
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newRateProvider))
	must(c.Provide(newFileStore))
	must(c.Provide(user.NewService))
	must(c.Provide(academic.NewService))
	must(c.Provide(billing.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
