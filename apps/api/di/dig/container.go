package dig_container

import (
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/trezcool/schoolgate/apps/api/echo"
	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/profile"
	"github.com/trezcool/schoolgate/services/email"
	"github.com/trezcool/schoolgate/services/logger"
	"github.com/trezcool/schoolgate/services/metrics"
	"github.com/trezcool/schoolgate/storage/database"
	"github.com/trezcool/schoolgate/storage/database/dummy"
	"github.com/trezcool/schoolgate/storage/database/sqlx"
)

type (
	// ShutdownFunc asks the API process to stop gracefully.
	ShutdownFunc func()

	// DBCloser releases the database connections.
	DBCloser func() error

	StorageOut struct {
		dig.Out
		Profiles profile.Repository
		Store    core.DocumentStore
		Closer   DBCloser
	}

	ServerParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		Registry   *prometheus.Registry
		Metrics    *metricsvc.Collector
		ProfileSvc *profile.Service
		Store      core.DocumentStore
		Validate   *validator.Validate
		Translator ut.Translator
		Shutdown   ShutdownFunc
	}
)

func newLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("api"), conf)
}

func newStorage(conf *core.Config, logger core.Logger) (StorageOut, error) {
	switch conf.Database.Engine {
	case "dummy":
		db, err := dummydb.Open()
		if err != nil {
			return StorageOut{}, err
		}
		return StorageOut{
			Profiles: dummydb.NewProfileRepository(db),
			Store:    dummydb.NewDocumentStore(db),
			Closer:   func() error { return nil },
		}, nil

	case "postgres":
		if conf.Database.AdminUser != "" {
			if err := database.CreateIfNotExist(conf); err != nil {
				return StorageOut{}, errors.Wrap(err, "creating database")
			}
		}
		db, err := database.Open(conf)
		if err != nil {
			return StorageOut{}, errors.Wrap(err, "opening database")
		}
		if err = database.Migrate(conf); err != nil {
			_ = db.Close()
			return StorageOut{}, err
		}
		logger.Info("database ready", map[string]interface{}{"address": conf.Database.Address(), "name": conf.Database.Name})
		return StorageOut{
			Profiles: sqlxrepos.NewProfileRepository(db),
			Store:    sqlxrepos.NewDocumentStore(db),
			Closer:   db.Close,
		}, nil
	}
	return StorageOut{}, fmt.Errorf("unknown database engine %q", conf.Database.Engine)
}

func newMetrics(reg *prometheus.Registry) *metricsvc.Collector {
	return metricsvc.NewCollector(reg)
}

func newServer(p ServerParams) echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Address:    p.Conf.Server.Address,
		Conf:       p.Conf,
		Logger:     p.Logger,
		Metrics:    p.Metrics,
		Gatherer:   p.Registry,
		ProfileSvc: p.ProfileSvc,
		Store:      p.Store,
		Validate:   p.Validate,
		Translator: p.Translator,
	}, p.Shutdown)
}

// New returns a new dependency injection dig.Container
func New(shutdown ShutdownFunc) *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(func() ShutdownFunc { return shutdown }))
	must(c.Provide(logsvc.NewZap))
	must(c.Provide(newLogger))
	must(c.Provide(prometheus.NewRegistry))
	must(c.Provide(newMetrics))
	must(c.Provide(newStorage))
	must(c.Provide(emailsvc.NewService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(core.NewValidator))
	must(c.Provide(profile.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
