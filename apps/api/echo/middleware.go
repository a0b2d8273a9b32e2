package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/trezcool/schoolgate/core/access"
	"github.com/trezcool/schoolgate/core/profile"
	"github.com/trezcool/schoolgate/services/metrics"
)

const contextSessionKey = "session"

func sessionMiddleware(sessions *registry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			entry, ok := sessions.get(ctx.Param("sid"))
			if !ok {
				return errSessionNotFound
			}
			ctx.Set(contextSessionKey, entry)
			return next(ctx)
		}
	}
}

func contextSession(ctx echo.Context) *sessionEntry {
	entry, _ := ctx.Get(contextSessionKey).(*sessionEntry)
	return entry
}

// contextProfile returns the profile of the request's session, if it is ready.
func contextProfile(ctx echo.Context) *profile.Profile {
	if entry := contextSession(ctx); entry != nil {
		return entry.machine.Session().Profile
	}
	return nil
}

// routeMiddleware lets the request through only if the access gate allows the session on route.
func routeMiddleware(route access.Route) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			entry := contextSession(ctx)
			if entry == nil {
				return errSessionNotFound
			}
			if d := access.Decide(entry.machine.Session(), route.Path()); !d.Allow {
				return forbidden(d)
			}
			return next(ctx)
		}
	}
}

func forbidden(d access.Decision) error {
	return echo.NewHTTPError(http.StatusForbidden, echo.Map{"error": "access denied", "redirect_to": d.RedirectTo})
}

func metricsMiddleware(collector *metricsvc.Collector) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err)
			}
			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			collector.ObserveRequest(ctx.Request().Method, route, ctx.Response().Status, time.Since(start))
			return nil
		}
	}
}

// signInLimiter rate limits sign-in attempts per client IP.
type signInLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *gocache.Cache // {ip: *rate.Limiter}
}

func newSignInLimiter(perSecond float64, burst int) *signInLimiter {
	return &signInLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: gocache.New(10*time.Minute, 5*time.Minute),
	}
}

func (l *signInLimiter) get(ip string) *rate.Limiter {
	if v, ok := l.limiters.Get(ip); ok {
		return v.(*rate.Limiter)
	}
	// Add fails if another request created the limiter first
	_ = l.limiters.Add(ip, rate.NewLimiter(l.limit, l.burst), gocache.DefaultExpiration)
	v, _ := l.limiters.Get(ip)
	return v.(*rate.Limiter)
}

func (l *signInLimiter) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !l.get(ctx.RealIP()).Allow() {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
