package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rtolen/vairify-guard/internal/api"
	"github.com/rtolen/vairify-guard/internal/api/handlers"
	"github.com/rtolen/vairify-guard/internal/api/httperrors"
)

// Init attaches the Echo instance, middleware stack and all routes to the
// server.
func Init(s *api.Server) {
	s.Echo = echo.New()
	s.Echo.Debug = false
	s.Echo.HideBanner = true
	s.Echo.HTTPErrorHandler = httperrors.HandlerWithConfig(s.Config.Echo.HideInternalServerErrors)

	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestID())
	s.Echo.Use(middleware.Logger())

	s.Router = &api.Router{
		Routes:     nil,
		Root:       s.Echo.Group(""),
		Management: s.Echo.Group("/-"),
		APIV1Guard: s.Echo.Group("/api/v1/guard"),
	}

	s.Router.Management.GET("/ready", func(c echo.Context) error {
		if !s.Ready() {
			return c.String(http.StatusServiceUnavailable, "Not ready.")
		}
		return c.String(http.StatusOK, "Ready.")
	})
	s.Router.Management.GET("/healthy", func(c echo.Context) error {
		ctx := c.Request().Context()
		if s.DB != nil {
			if err := s.DB.PingContext(ctx); err != nil {
				return c.String(http.StatusServiceUnavailable, "Database unreachable.")
			}
		}
		return c.String(http.StatusOK, "Healthy.")
	})
	s.Router.Root.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	handlers.AttachAllRoutes(s)
}
