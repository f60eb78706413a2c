package sessions

import (
	"net/http"
	"time"

	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"
	"github.com/rtolen/vairify-guard/internal/api"
	"github.com/rtolen/vairify-guard/internal/guard/session"
	"github.com/rtolen/vairify-guard/internal/types"
	"github.com/rtolen/vairify-guard/internal/util"
)

func PostCreateSessionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Guard.POST("/sessions", postCreateSessionHandler(s))
}

func postCreateSessionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromEchoContext(c)

		var body types.PostCreateSessionPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		record, err := s.Sessions.CreateSession(ctx, session.CreateSessionInput{
			OwnerID:         swag.StringValue(body.OwnerID),
			LocationLabel:   swag.StringValue(body.LocationLabel),
			LocationAddress: body.LocationAddress,
			Latitude:        body.Latitude,
			Longitude:       body.Longitude,
			Memo:            body.Memo,
			ScheduledEnd:    time.Time(body.ScheduledEnd),
			BufferSeconds:   body.BufferSeconds,
			GPSEnabled:      body.GPSEnabled,
			DecoyCode:       body.DecoyCode,
			GuardianIDs:     body.GuardianIDs,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to create session")
			return mapSessionError(err)
		}

		return util.ValidateAndReturn(c, http.StatusCreated, sessionResponse(record))
	}
}
