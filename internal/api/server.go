package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/dropbox/godropbox/time2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/rtolen/vairify-guard/internal/config"
	"github.com/rtolen/vairify-guard/internal/guard/beacon"
	"github.com/rtolen/vairify-guard/internal/guard/dispatch"
	"github.com/rtolen/vairify-guard/internal/guard/notify"
	"github.com/rtolen/vairify-guard/internal/guard/schedule"
	"github.com/rtolen/vairify-guard/internal/guard/session"
	"github.com/rtolen/vairify-guard/internal/guard/storage"
	"github.com/rtolen/vairify-guard/internal/metrics"

	// Import postgres driver for database/sql package
	_ "github.com/lib/pq"
)

type Router struct {
	Routes     []*echo.Route
	Root       *echo.Group
	Management *echo.Group
	APIV1Guard *echo.Group
}

// Server is the central struct keeping all the dependencies. Components are
// initialized by InitNewServer in dependency order; the Echo instance and
// Router are attached afterwards by router.Init.
type Server struct {
	Echo   *echo.Echo
	Router *Router

	Config config.Server
	DB     *sql.DB
	Redis  *redis.Client
	Clock  time2.Clock

	Metrics    *metrics.Service
	Store      storage.MetadataStore
	Live       storage.LiveStore
	Scheduler  *schedule.Scheduler
	Geo        *beacon.PushProvider
	Directory  notify.Directory
	Notifiers  []notify.Notifier
	Dispatcher *dispatch.Dispatcher
	Sessions   *session.Manager
}

// InitNewServer builds the full component graph from the configuration.
// Optional backends (Redis, AMQP, SMTP) are only connected when enabled.
func InitNewServer(cfg config.Server) (*Server, error) {
	s := &Server{Config: cfg}

	db, err := NewDB(cfg)
	if err != nil {
		return nil, err
	}
	s.DB = db

	if cfg.Redis.Enabled {
		client, err := NewRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		s.Redis = client
		s.Live = NewLiveStore(client)
	}

	s.Clock = NewClock()
	s.Metrics = metrics.New()
	s.Store = NewMetadataStore(db)
	s.Scheduler = schedule.New(s.Clock)
	s.Geo = NewGeoProvider(cfg, s.Clock)
	s.Directory = NewGuardianDirectory(db)

	notifiers, err := NewNotifiers(cfg)
	if err != nil {
		return nil, err
	}
	s.Notifiers = notifiers

	s.Dispatcher = NewDispatcher(cfg, s.Directory, s.Notifiers, s.Metrics, s.Clock)

	sessions, err := NewSessionManager(cfg, s.Store, s.Live, s.Scheduler, s.Dispatcher, s.Metrics, s.Geo)
	if err != nil {
		return nil, err
	}
	s.Sessions = sessions

	return s, nil
}

func (s *Server) Ready() bool {
	return s.Echo != nil && s.Router != nil && s.DB != nil && s.Sessions != nil
}

func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	return s.Echo.Start(s.Config.Echo.ListenAddress)
}

func (s *Server) Shutdown(ctx context.Context) []error {
	log.Warn().Msg("Shutting down server")

	var errs []error

	if s.Echo != nil {
		log.Debug().Msg("Shutting down echo server")
		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to shutdown echo server")
			errs = append(errs, err)
		}
	}

	if s.Sessions != nil {
		log.Debug().Msg("Stopping session monitors")
		s.Sessions.Shutdown()
	}

	for _, n := range s.Notifiers {
		if closer, ok := n.(interface{ Close() }); ok {
			closer.Close()
		}
	}

	if s.Redis != nil {
		log.Debug().Msg("Closing redis connection")
		if err := s.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis connection")
			errs = append(errs, err)
		}
	}

	if s.DB != nil {
		log.Debug().Msg("Closing database connection")
		if err := s.DB.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			log.Error().Err(err).Msg("Failed to close database connection")
			errs = append(errs, err)
		}
	}

	return errs
}
