package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/profile"
	"github.com/trezcool/schoolgate/services/metrics"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool
		Conf           *core.Config
		Logger         core.Logger
		Metrics        *metricsvc.Collector
		Gatherer       prometheus.Gatherer
		ProfileSvc     *profile.Service
		Store          core.DocumentStore
		Validate       *validator.Validate
		Translator     ut.Translator
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		sessions *registry
	}
)

var _ Server = (*server)(nil)

// NewServer builds the session gateway. signalShutdown is called whenever a handler fails with a shutdown error.
func NewServer(opts *Options, signalShutdown func()) Server {
	if opts.Logger == nil {
		opts.Logger = core.NopLogger()
	}
	if opts.Metrics == nil {
		reg := prometheus.NewRegistry()
		opts.Metrics = metricsvc.NewCollector(reg)
		opts.Gatherer = reg
	}
	if signalShutdown == nil {
		signalShutdown = func() {}
	}
	s := &server{
		opts:     opts,
		app:      echo.New(),
		sessions: newRegistry(opts.Conf.Server.SessionIdleTimeout),
	}
	s.setup(signalShutdown)
	return s
}

func (s *server) setup(signalShutdown func()) {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(metricsMiddleware(s.opts.Metrics))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	s.app.GET("/metrics", echo.WrapHandler(metricsvc.Handler(s.opts.Gatherer)))

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf.Identity))
	limiter := newSignInLimiter(conf.Server.SignInRate, conf.Server.SignInBurst)

	registerSessionAPI(v1, s, jwt, limiter.middleware())
}

func (s *server) Start() error {
	err := s.app.Start(s.opts.Address)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *server) Stop(ctx context.Context) error {
	s.sessions.flush()
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the Sekolah session gateway!")
}
