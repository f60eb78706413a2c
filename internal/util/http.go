package util

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rtolen/vairify-guard/internal/api/httperrors"
	"github.com/rtolen/vairify-guard/internal/types"
)

// BindAndValidateBody binds the JSON request body into the payload and runs
// its validation, mapping failures to public 400 errors.
func BindAndValidateBody(c echo.Context, v types.Validatable) error {
	if err := c.Bind(v); err != nil {
		return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "malformed request body")
	}
	if err := v.Validate(); err != nil {
		return httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.TypeValidation, "validation failed", err.Error())
	}
	return nil
}

// ValidateAndReturn writes the response payload with the given status.
func ValidateAndReturn(c echo.Context, code int, v interface{}) error {
	return c.JSON(code, v)
}
