package sessions

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rtolen/vairify-guard/internal/api"
	"github.com/rtolen/vairify-guard/internal/types"
	"github.com/rtolen/vairify-guard/internal/util"
)

func PostExtendSessionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Guard.POST("/sessions/:id/extend", postExtendSessionHandler(s))
}

func postExtendSessionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var body types.PostExtendSessionPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		mon, err := getMonitor(s, c)
		if err != nil {
			return err
		}

		res, err := mon.Extend(ctx, time.Duration(*body.Minutes)*time.Minute)
		if err != nil {
			return mapSessionError(err)
		}

		return util.ValidateAndReturn(c, http.StatusOK, opResponse(c.Param("id"), res))
	}
}
