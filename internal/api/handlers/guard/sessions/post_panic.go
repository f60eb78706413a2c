package sessions

import (
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"
	"github.com/rtolen/vairify-guard/internal/api"
	"github.com/rtolen/vairify-guard/internal/types"
	"github.com/rtolen/vairify-guard/internal/util"
)

func PostPanicRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Guard.POST("/sessions/:id/panic", postPanicHandler(s))
}

// postPanicHandler receives the hold-to-confirm gesture phases. The response
// shape is the same for every phase and every internal outcome, so an
// observer of the device cannot tell whether the hold crossed the threshold.
func postPanicHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var body types.PostPanicPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		mon, err := getMonitor(s, c)
		if err != nil {
			return err
		}

		switch swag.StringValue(body.Action) {
		case types.PanicActionStart:
			mon.PanicHoldStart()
		case types.PanicActionHold:
			if _, err := mon.PanicHoldTick(ctx); err != nil {
				return mapSessionError(err)
			}
		case types.PanicActionRelease:
			mon.PanicHoldRelease()
		}

		return util.ValidateAndReturn(c, http.StatusOK, &types.SessionAckResponse{
			SessionID:    swag.String(c.Param("id")),
			Acknowledged: true,
		})
	}
}
