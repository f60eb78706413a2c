package sessions

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rtolen/vairify-guard/internal/api"
	"github.com/rtolen/vairify-guard/internal/util"
)

func PostActivateSessionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Guard.POST("/sessions/:id/activate", postActivateSessionHandler(s))
}

func postActivateSessionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		mon, err := getMonitor(s, c)
		if err != nil {
			return err
		}

		res, err := mon.Activate(ctx)
		if err != nil {
			return mapSessionError(err)
		}

		return util.ValidateAndReturn(c, http.StatusOK, opResponse(c.Param("id"), res))
	}
}
