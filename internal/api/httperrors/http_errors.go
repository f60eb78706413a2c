package httperrors

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Public error types, stable across releases so clients can switch on them.
const (
	TypeGeneric         = "generic"
	TypeValidation      = "validation"
	TypeSessionNotFound = "session_not_found"
	TypeInvalidState    = "invalid_state"
)

// HTTPError is the public error envelope for every non-2xx response.
type HTTPError struct {
	Code   int    `json:"status"`
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTPError %d (%s): %s", e.Code, e.Type, e.Title)
}

func NewHTTPError(code int, errorType, title string) *HTTPError {
	return &HTTPError{
		Code:  code,
		Type:  errorType,
		Title: title,
	}
}

func NewHTTPErrorWithDetail(code int, errorType, title, detail string) *HTTPError {
	return &HTTPError{
		Code:   code,
		Type:   errorType,
		Title:  title,
		Detail: detail,
	}
}

// HandlerWithConfig returns the central echo error handler. Unknown errors
// become generic 500s; internals are optionally hidden from the response
// body but always logged.
func HandlerWithConfig(hideInternals bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var httpErr *HTTPError
		switch e := err.(type) {
		case *HTTPError:
			httpErr = e
		case *echo.HTTPError:
			httpErr = &HTTPError{
				Code:  e.Code,
				Type:  TypeGeneric,
				Title: fmt.Sprintf("%v", e.Message),
			}
		default:
			httpErr = NewHTTPError(http.StatusInternalServerError, TypeGeneric, http.StatusText(http.StatusInternalServerError))
			if !hideInternals {
				httpErr.Detail = err.Error()
			}
		}

		if httpErr.Code >= http.StatusInternalServerError {
			log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(httpErr.Code)
		} else {
			err = c.JSON(httpErr.Code, httpErr)
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to write error response")
		}
	}
}
