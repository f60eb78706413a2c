package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/rtolen/vairify-guard/internal/api"
	"github.com/rtolen/vairify-guard/internal/api/handlers/guard/sessions"
)

// AttachAllRoutes registers every route on the server's router.
func AttachAllRoutes(s *api.Server) {
	s.Router.Routes = []*echo.Route{
		sessions.PostCreateSessionRoute(s),
		sessions.PostActivateSessionRoute(s),
		sessions.PostCheckInRoute(s),
		sessions.PostExtendSessionRoute(s),
		sessions.PostEndSessionRoute(s),
		sessions.PostPanicRoute(s),
		sessions.PostDecoyRoute(s),
		sessions.PostReportLocationRoute(s),
		sessions.GetSessionRoute(s),
		sessions.GetListLocationPingsRoute(s),
	}
}
