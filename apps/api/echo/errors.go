package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/reportcardpro/backend/core"
	"github.com/reportcardpro/backend/core/report"
	"github.com/reportcardpro/backend/core/user"
)

var (
	errUnauthorized    = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errRefreshExpired  = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errFileRequired    = echo.NewHTTPError(http.StatusBadRequest, "a file is required")
	errFileTooLarge    = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file is too large")
	errInvalidLoginMsg = "invalid email or password"
)

// ingestStatus maps each kind of ingestion failure to its HTTP status.
var ingestStatus = map[report.Kind]int{
	report.KindUnsupportedInput:   http.StatusUnsupportedMediaType,
	report.KindRead:               http.StatusBadRequest,
	report.KindResolution:         http.StatusBadGateway,
	report.KindStructuralMismatch: http.StatusUnprocessableEntity,
	report.KindParse:              http.StatusBadRequest,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch cause {
		case report.ErrBatchNotFound, report.ErrStudentNotFound, user.ErrNotFound:
			cause = echo.NewHTTPError(http.StatusNotFound, cause.Error())
		case user.ErrInvalidCredentials:
			cause = echo.NewHTTPError(http.StatusBadRequest, errInvalidLoginMsg)
		case http.ErrMissingFile, http.ErrNotMultipart:
			cause = errFileRequired
		}
		var mbErr *http.MaxBytesError
		if errors.As(err, &mbErr) {
			cause = errFileTooLarge
		}

		switch origErr := cause.(type) {
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
		case *report.IngestError:
			code = ingestStatus[origErr.Kind]
			if code == 0 {
				code = http.StatusBadRequest
			}
			body := echo.Map{"error": origErr.Message, "kind": origErr.Kind.String()}
			if len(origErr.Missing) > 0 {
				body["missing"] = origErr.Missing
			}
			message = body
			if origErr.Kind == report.KindResolution {
				logger.Warn("column resolution failed", err)
			}
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
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
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Name = claims.Name
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)
			if ctx.Echo().Debug {
				message = err.Error()
			}

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
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
