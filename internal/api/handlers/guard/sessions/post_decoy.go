package sessions

import (
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"
	"github.com/rtolen/vairify-guard/internal/api"
	"github.com/rtolen/vairify-guard/internal/types"
	"github.com/rtolen/vairify-guard/internal/util"
)

func PostDecoyRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Guard.POST("/sessions/:id/decoy", postDecoyHandler(s))
}

// postDecoyHandler accepts a code at session end. Match, mismatch and empty
// entry all produce the identical acknowledgment with no observable timing
// or shape difference; the submitted code is never logged.
func postDecoyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var body types.PostDecoyPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		mon, err := getMonitor(s, c)
		if err != nil {
			return err
		}

		// State errors still surface; they reveal nothing about the code.
		if _, err := mon.Decoy(ctx, body.Code); err != nil {
			return mapSessionError(err)
		}

		return util.ValidateAndReturn(c, http.StatusOK, &types.SessionAckResponse{
			SessionID:    swag.String(c.Param("id")),
			Acknowledged: true,
		})
	}
}
