package sessions

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rtolen/vairify-guard/internal/api"
	"github.com/rtolen/vairify-guard/internal/api/httperrors"
	"github.com/rtolen/vairify-guard/internal/util"
)

func GetSessionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Guard.GET("/sessions/:id", getSessionHandler(s))
}

func getSessionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		sessionID := c.Param("id")
		if sessionID == "" {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "session id is required")
		}

		record, err := s.Sessions.GetSession(ctx, sessionID)
		if err != nil {
			return mapSessionError(err)
		}

		return util.ValidateAndReturn(c, http.StatusOK, sessionResponse(record))
	}
}
