package sessions

import (
	"net/http"

	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"
	"github.com/rtolen/vairify-guard/internal/api"
	"github.com/rtolen/vairify-guard/internal/api/httperrors"
	"github.com/rtolen/vairify-guard/internal/types"
	"github.com/rtolen/vairify-guard/internal/util"
)

func GetListLocationPingsRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Guard.GET("/sessions/:id/pings", getListLocationPingsHandler(s))
}

func getListLocationPingsHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromEchoContext(c)

		sessionID := c.Param("id")
		if sessionID == "" {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "session id is required")
		}

		if _, err := s.Sessions.GetSession(ctx, sessionID); err != nil {
			return mapSessionError(err)
		}

		pings, err := s.Store.ListLocationPings(ctx, sessionID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list location pings")
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "failed to list location pings")
		}

		response := &types.ListLocationPingsResponse{
			SessionID: swag.String(sessionID),
			Pings:     make([]*types.LocationPingResponse, 0, len(pings)),
		}
		for _, p := range pings {
			response.Pings = append(response.Pings, &types.LocationPingResponse{
				Timestamp: strfmt.DateTime(p.Timestamp),
				Latitude:  p.Latitude,
				Longitude: p.Longitude,
				FixFailed: p.FixFailed,
			})
		}

		return util.ValidateAndReturn(c, http.StatusOK, response)
	}
}
