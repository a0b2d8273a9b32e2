package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/paging"
	"github.com/trezcool/schoolgate/core/profile"
)

var (
	errUnauthorized     = echo.NewHTTPError(http.StatusUnauthorized, "identity not authenticated")
	errSessionNotFound  = echo.NewHTTPError(http.StatusNotFound, "session not found")
	errTooManyRequests  = echo.NewHTTPError(http.StatusTooManyRequests, "too many sign-in attempts")
	errNotBootstrapping = echo.NewHTTPError(http.StatusConflict, "no administrator setup is pending")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			message = core.TranslateErrors(origErr, translator)
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			code, message = domainError(err)
			if code != http.StatusInternalServerError {
				break
			}

			msg := http.StatusText(http.StatusInternalServerError)
			args := []interface{}{errors.Wrap(err, msg)}
			if p := contextProfile(ctx); p != nil {
				args = append(args, *p)
			}
			logger.Error(msg, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// domainError maps the error taxonomy of the core packages to an HTTP status.
func domainError(err error) (int, string) {
	switch cause := errors.Cause(err); {
	case cause == profile.ErrNotFound, cause == core.ErrDocumentNotFound:
		return http.StatusNotFound, cause.Error()
	case cause == core.ErrPermissionDenied:
		return http.StatusForbidden, err.Error()
	case cause == profile.ErrProfileExists, cause == paging.ErrFetchAlreadyInFlight, cause == paging.ErrDiscarded:
		return http.StatusConflict, cause.Error()
	case cause == profile.ErrBootstrapCheckFailed, core.IsTransport(err):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}
