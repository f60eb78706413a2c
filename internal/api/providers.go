package api

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
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
	"github.com/rtolen/vairify-guard/pkg/secret"
)

// PROVIDERS - component constructors used by InitNewServer, kept separate so
// tests can assemble a server from a subset of them.

func NewClock(t ...*testing.T) time2.Clock {
	useMock := len(t) > 0 && t[0] != nil

	if useMock {
		return time2.NewMockClock(time.Now())
	}
	return time2.DefaultClock
}

func NewDB(cfg config.Server) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func NewRedisClient(cfg config.Server) (*redis.Client, error) {
	if cfg.Redis.Endpoint == "" {
		return nil, fmt.Errorf("redis endpoint is not configured")
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Endpoint,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

func NewMetadataStore(db *sql.DB) storage.MetadataStore {
	return storage.NewPostgreSQLStore(db)
}

func NewLiveStore(client *redis.Client) storage.LiveStore {
	return storage.NewRedisStore(client)
}

func NewGeoProvider(cfg config.Server, clock schedule.Clock) *beacon.PushProvider {
	// Stale window: a report older than two beacon periods is useless for
	// the emergency snapshot.
	return beacon.NewPushProvider(clock, 2*cfg.Guard.BeaconPeriod)
}

func NewGuardianDirectory(db *sql.DB) notify.Directory {
	return notify.NewPGDirectory(db)
}

// NewNotifiers connects the enabled guardian delivery channels. Starting
// with no channel at all is refused: an undeliverable emergency defeats the
// whole service.
func NewNotifiers(cfg config.Server) ([]notify.Notifier, error) {
	var notifiers []notify.Notifier

	if cfg.AMQP.Enabled {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, fmt.Errorf("failed to connect amqp notifier: %w", err)
		}
		notifiers = append(notifiers, amqpNotifier)
	}

	if cfg.SMTP.Enabled {
		transport := notify.NewSMTPTransport(cfg.SMTP.Address(), cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Host)
		notifiers = append(notifiers, notify.NewMailNotifier(transport, cfg.SMTP.Sender))
	}

	if len(notifiers) == 0 {
		return nil, fmt.Errorf("no guardian notification channel enabled")
	}

	log.Info().Int("channels", len(notifiers)).Msg("Guardian notification channels connected")
	return notifiers, nil
}

func NewDispatcher(cfg config.Server, directory notify.Directory, notifiers []notify.Notifier, m *metrics.Service, clock schedule.Clock) *dispatch.Dispatcher {
	return dispatch.New(directory, notifiers, m, clock,
		dispatch.WithMaxAttempts(cfg.Guard.NotifyMaxAttempts),
		dispatch.WithAttemptTimeout(cfg.Guard.NotifyTimeout),
	)
}

func NewSessionManager(
	cfg config.Server,
	store storage.MetadataStore,
	live storage.LiveStore,
	sched *schedule.Scheduler,
	dispatcher *dispatch.Dispatcher,
	m *metrics.Service,
	geo beacon.ProviderFactory,
) (*session.Manager, error) {
	var box *secret.Box
	if cfg.Guard.DecoyCodeKeySecret != "" {
		var err error
		box, err = secret.NewBox(cfg.Guard.DecoyCodeKeySecret)
		if err != nil {
			return nil, fmt.Errorf("failed to init decoy code sealing: %w", err)
		}
	} else {
		log.Warn().Msg("No decoy code key configured, sessions cannot carry decoy codes")
	}

	return session.NewManager(store, live, sched, dispatcher, m, geo, box, session.Config{
		CheckInExtension: cfg.Guard.CheckInExtension,
		DefaultBuffer:    cfg.Guard.DefaultBuffer,
		HoldThreshold:    cfg.Guard.HoldThreshold,
		BeaconPeriod:     cfg.Guard.BeaconPeriod,
		GeoFixTimeout:    cfg.Guard.GeoFixTimeout,
		TerminalLinger:   cfg.Guard.TerminalLinger,
	}), nil
}
