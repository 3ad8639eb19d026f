package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
)

var (
	errUnauthorized     = echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	errHttpForbidden    = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errSessionPending   = echo.NewHTTPError(http.StatusServiceUnavailable, "session is being verified, retry shortly")
	errStorageFailed    = "file storage failed"
	errPersistFailed    = "could not save the changes"
	errInternalFallback = http.StatusText(http.StatusInternalServerError)
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, v *core.Validator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		var (
			httpErr      *echo.HTTPError
			vErrs        validator.ValidationErrors
			vErr         *core.ValidationError
			authErr      *core.AuthError
			forbiddenErr *core.ForbiddenError
			notFoundErr  *core.NotFoundError
			storageErr   *core.StorageError
			persistErr   *core.PersistenceError
		)
		switch {
		case errors.As(err, &httpErr):
			if httpErr.Internal != nil {
				if herr, ok := httpErr.Internal.(*echo.HTTPError); ok {
					httpErr = herr
				}
			}
			code = httpErr.Code
			message = httpErr.Message
		case errors.As(err, &vErrs):
			code = http.StatusBadRequest
			if tErr, ok := v.TranslateErrors(vErrs).(*core.ValidationError); ok {
				message = tErr.FieldsMap()
			} else {
				message = vErrs.Error()
			}
		case errors.As(err, &vErr):
			code = http.StatusBadRequest
			if len(vErr.Fields) > 0 {
				message = vErr.FieldsMap()
			} else {
				message = vErr.Error()
			}
		case errors.As(err, &authErr):
			code = http.StatusUnauthorized
			message = authErr.Error()
		case errors.As(err, &forbiddenErr):
			code = http.StatusForbidden
			message = forbiddenErr.Error()
		case errors.As(err, &notFoundErr):
			code = http.StatusNotFound
			message = notFoundErr.Error()
		case errors.As(err, &storageErr):
			code = http.StatusBadGateway
			message = errStorageFailed
			logger.Error(errStorageFailed, err, viewerOf(ctx))
		case errors.As(err, &persistErr):
			code = http.StatusInternalServerError
			message = errPersistFailed
			logger.Error(errPersistFailed, err, viewerOf(ctx))
		default: // any other error is a server error
			code = http.StatusInternalServerError
			message = errInternalFallback
			logger.Error(errInternalFallback, errors.WithStack(err), viewerOf(ctx))

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
