package apperror

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HTTPErrorHandler returns an echo error handler that formats every error
// into the {errors:[...]} envelope. Server-side errors are logged with their
// internal cause; the response body only carries the public title.
func HTTPErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var appErr *Error
		if !errors.As(err, &appErr) {
			if he, ok := err.(*echo.HTTPError); ok {
				// echo's own errors (404 route, malformed body, ...)
				switch he.Code {
				case http.StatusNotFound:
					appErr = ErrTaskNotFound.WithDetail("%v", he.Message)
				case http.StatusBadRequest:
					appErr = ErrValidation.WithDetail("%v", he.Message)
				default:
					appErr = ErrInternal.WithErr(err)
				}
			} else {
				appErr = ErrInternal.WithErr(err)
			}
		}

		if appErr.Status >= 500 {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.String("code", appErr.Code),
				zap.Error(err),
			)
		}

		status, body := Envelope(appErr)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}
