package test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/rtolen/vairify-guard/internal/api"
	"github.com/rtolen/vairify-guard/internal/api/router"
	"github.com/rtolen/vairify-guard/internal/config"
	"github.com/rtolen/vairify-guard/internal/guard/beacon"
	"github.com/rtolen/vairify-guard/internal/guard/dispatch"
	"github.com/rtolen/vairify-guard/internal/guard/notify"
	"github.com/rtolen/vairify-guard/internal/guard/schedule"
	"github.com/rtolen/vairify-guard/internal/guard/session"
	"github.com/rtolen/vairify-guard/internal/guard/storage"
	"github.com/rtolen/vairify-guard/internal/metrics"
	"github.com/rtolen/vairify-guard/pkg/secret"
	"github.com/stretchr/testify/require"
)

// Server bundles the API server with the in-memory doubles handler tests
// need to assert on.
type Server struct {
	*api.Server
	Store         *storage.InMemoryStore
	MailTransport *notify.MockMailTransport
}

// WithTestServer runs the closure against a fully routed server backed by
// the in-memory store and a mock mail transport. No external services are
// touched.
func WithTestServer(t *testing.T, closure func(s *Server)) {
	t.Helper()

	cfg := config.DefaultServiceConfigFromEnv()
	cfg.Guard.DefaultBuffer = 25 * time.Millisecond
	cfg.Guard.HoldThreshold = 40 * time.Millisecond
	cfg.Guard.DecoyCodeKeySecret = "test-master-secret"

	store := storage.NewInMemoryStore()
	mailTransport := notify.NewMockMailTransport()
	clock := time2.DefaultClock
	m := metrics.New()
	sched := schedule.New(clock)
	geo := beacon.NewPushProvider(clock, 2*cfg.Guard.BeaconPeriod)

	directory := notify.NewStaticDirectory([]notify.Guardian{
		{ID: "g1", Name: "Dana", Email: "dana@example.com"},
	})
	notifiers := []notify.Notifier{notify.NewMailNotifier(mailTransport, cfg.SMTP.Sender)}
	dispatcher := dispatch.New(directory, notifiers, m, clock,
		dispatch.WithBackoffBase(time.Millisecond))

	box, err := secret.NewBox(cfg.Guard.DecoyCodeKeySecret)
	require.NoError(t, err)

	s := &api.Server{
		Config:     cfg,
		Clock:      clock,
		Metrics:    m,
		Store:      store,
		Scheduler:  sched,
		Geo:        geo,
		Directory:  directory,
		Notifiers:  notifiers,
		Dispatcher: dispatcher,
		Sessions: session.NewManager(store, nil, sched, dispatcher, m, geo, box, session.Config{
			CheckInExtension: cfg.Guard.CheckInExtension,
			DefaultBuffer:    cfg.Guard.DefaultBuffer,
			HoldThreshold:    cfg.Guard.HoldThreshold,
			BeaconPeriod:     cfg.Guard.BeaconPeriod,
			GeoFixTimeout:    cfg.Guard.GeoFixTimeout,
			TerminalLinger:   time.Hour,
		}),
	}

	router.Init(s)
	t.Cleanup(s.Sessions.Shutdown)

	closure(&Server{Server: s, Store: store, MailTransport: mailTransport})
}

// PerformRequest issues a JSON request against the test server's router and
// returns the recorded response.
func PerformRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echoHeaderContentType, echoMIMEApplicationJSON)
	}

	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

// ParseResponse decodes the recorded JSON body into the target.
func ParseResponse(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

const (
	echoHeaderContentType   = "Content-Type"
	echoMIMEApplicationJSON = "application/json"
)
