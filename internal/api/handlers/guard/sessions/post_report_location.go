package sessions

import (
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"
	"github.com/rtolen/vairify-guard/internal/api"
	"github.com/rtolen/vairify-guard/internal/guard/beacon"
	"github.com/rtolen/vairify-guard/internal/types"
	"github.com/rtolen/vairify-guard/internal/util"
)

func PostReportLocationRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Guard.POST("/sessions/:id/location", postReportLocationHandler(s))
}

func postReportLocationHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body types.PostReportLocationPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		// Resolving the monitor validates that the session exists and is
		// still live before we accept position data for it.
		if _, err := getMonitor(s, c); err != nil {
			return err
		}

		s.Geo.Report(c.Param("id"), beacon.Fix{
			Latitude:  *body.Latitude,
			Longitude: *body.Longitude,
			At:        s.Clock.Now(),
		})

		return util.ValidateAndReturn(c, http.StatusOK, &types.SessionAckResponse{
			SessionID:    swag.String(c.Param("id")),
			Acknowledged: true,
		})
	}
}
