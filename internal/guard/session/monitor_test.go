package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/rtolen/vairify-guard/internal/guard/beacon"
	"github.com/rtolen/vairify-guard/internal/guard/dispatch"
	"github.com/rtolen/vairify-guard/internal/guard/notify"
	"github.com/rtolen/vairify-guard/internal/guard/schedule"
	"github.com/rtolen/vairify-guard/internal/guard/session"
	"github.com/rtolen/vairify-guard/internal/guard/storage"
	"github.com/rtolen/vairify-guard/internal/metrics"
	"github.com/rtolen/vairify-guard/pkg/secret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingNotifier records every delivery so tests can assert on how often
// the dispatcher actually fired.
type countingNotifier struct {
	mu       sync.Mutex
	payloads []*notify.EmergencyPayload
}

func (n *countingNotifier) Name() string { return "counting" }

func (n *countingNotifier) Notify(_ context.Context, payload *notify.EmergencyPayload, guardians []notify.Guardian) ([]notify.DeliveryResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, payload)

	results := make([]notify.DeliveryResult, 0, len(guardians))
	for _, g := range guardians {
		results = append(results, notify.DeliveryResult{GuardianID: g.ID, Delivered: true})
	}
	return results, nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.payloads)
}

func (n *countingNotifier) lastPayload() *notify.EmergencyPayload {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.payloads) == 0 {
		return nil
	}
	return n.payloads[len(n.payloads)-1]
}

type guardEnv struct {
	manager  *session.Manager
	store    *storage.InMemoryStore
	notifier *countingNotifier
}

func newGuardEnv(t *testing.T, cfg session.Config, geo beacon.ProviderFactory) *guardEnv {
	t.Helper()

	store := storage.NewInMemoryStore()
	sched := schedule.New(time2.DefaultClock)
	notifier := &countingNotifier{}

	directory := notify.NewStaticDirectory([]notify.Guardian{
		{ID: "g1", Name: "Dana", Email: "dana@example.com"},
	})
	dispatcher := dispatch.New(directory, []notify.Notifier{notifier}, metrics.New(), time2.DefaultClock,
		dispatch.WithBackoffBase(time.Millisecond))

	box, err := secret.NewBox("test-master-secret")
	require.NoError(t, err)

	manager := session.NewManager(store, nil, sched, dispatcher, metrics.New(), geo, box, cfg)
	t.Cleanup(manager.Shutdown)

	return &guardEnv{manager: manager, store: store, notifier: notifier}
}

func fastConfig() session.Config {
	return session.Config{
		CheckInExtension: 200 * time.Millisecond,
		DefaultBuffer:    25 * time.Millisecond,
		HoldThreshold:    40 * time.Millisecond,
		TerminalLinger:   time.Hour,
		StoreTimeout:     time.Second,
	}
}

func createInput(end time.Time) session.CreateSessionInput {
	return session.CreateSessionInput{
		OwnerID:       "user-1",
		LocationLabel: "Cafe Uptown",
		ScheduledEnd:  end,
		GuardianIDs:   []string{"g1"},
	}
}

func mustActivate(t *testing.T, env *guardEnv, in session.CreateSessionInput) *session.Monitor {
	t.Helper()

	record, err := env.manager.CreateSession(context.Background(), in)
	require.NoError(t, err)

	mon, err := env.manager.Get(record.SessionID)
	require.NoError(t, err)

	res, err := mon.Activate(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.StatusActive, res.Status)

	return mon
}

func TestLifecycleVoluntaryCompletion(t *testing.T) {
	env := newGuardEnv(t, fastConfig(), nil)
	mon := mustActivate(t, env, createInput(time.Now().Add(time.Hour)))

	res, err := mon.CheckIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, res.Status)
	require.NotNil(t, res.NewDeadline)

	res, err = mon.EndEarly(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, res.Status)

	record := mon.Snapshot()
	assert.Equal(t, storage.StatusCompleted, record.Status)
	require.NotNil(t, record.EndedVia)
	assert.Equal(t, session.EndedViaOwner, *record.EndedVia)
	assert.Nil(t, record.EscalationReason)

	checkIns, err := env.store.ListCheckIns(context.Background(), record.SessionID)
	require.NoError(t, err)
	assert.Len(t, checkIns, 1)

	assert.Equal(t, 0, env.notifier.count())
}

func TestTimerExpiryEscalatesAfterBuffer(t *testing.T) {
	env := newGuardEnv(t, fastConfig(), nil)
	mon := mustActivate(t, env, createInput(time.Now().Add(30*time.Millisecond)))

	assert.Eventually(t, func() bool {
		return mon.Snapshot().Status == storage.StatusEmergency
	}, time.Second, 5*time.Millisecond)

	record := mon.Snapshot()
	require.NotNil(t, record.EscalationReason)
	assert.Equal(t, session.ReasonTimerExpired, *record.EscalationReason)

	assert.Eventually(t, func() bool {
		return env.notifier.count() == 1
	}, time.Second, 5*time.Millisecond)

	event, err := env.store.GetEmergencyEvent(context.Background(), record.SessionID)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, session.ReasonTimerExpired, event.TriggerType)
	assert.True(t, event.NoFix)
}

func TestCheckInMovesDeadlineForward(t *testing.T) {
	env := newGuardEnv(t, fastConfig(), nil)
	mon := mustActivate(t, env, createInput(time.Now().Add(50*time.Millisecond)))

	res, err := mon.CheckIn(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.NewDeadline)

	// The original deadline plus buffer passes without escalation.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, storage.StatusActive, mon.Snapshot().Status)
	assert.Equal(t, 0, env.notifier.count())
}

func TestCheckInDuringBufferCancelsEscalation(t *testing.T) {
	cfg := fastConfig()
	cfg.DefaultBuffer = 150 * time.Millisecond
	env := newGuardEnv(t, cfg, nil)
	mon := mustActivate(t, env, createInput(time.Now().Add(20*time.Millisecond)))

	// Let the deadline pass so the buffer wait is pending, then check in
	// inside the grace period.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, storage.StatusActive, mon.Snapshot().Status)

	_, err := mon.CheckIn(context.Background())
	require.NoError(t, err)

	time.Sleep(160 * time.Millisecond)
	assert.Equal(t, storage.StatusActive, mon.Snapshot().Status)
	assert.Equal(t, 0, env.notifier.count())
}

func TestExtendRejectsNonPositiveDuration(t *testing.T) {
	env := newGuardEnv(t, fastConfig(), nil)
	mon := mustActivate(t, env, createInput(time.Now().Add(time.Hour)))

	_, err := mon.Extend(context.Background(), 0)
	assert.ErrorIs(t, err, session.ErrNonPositiveExtension)

	_, err = mon.Extend(context.Background(), -time.Minute)
	assert.ErrorIs(t, err, session.ErrNonPositiveExtension)

	res, err := mon.Extend(context.Background(), time.Hour)
	require.NoError(t, err)
	require.NotNil(t, res.NewDeadline)
}

func TestPanicHoldFiresAtThreshold(t *testing.T) {
	env := newGuardEnv(t, fastConfig(), nil)
	mon := mustActivate(t, env, createInput(time.Now().Add(time.Hour)))

	mon.PanicHoldStart()

	res, err := mon.PanicHoldTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, res.Status)

	assert.Eventually(t, func() bool {
		r, err := mon.PanicHoldTick(context.Background())
		require.NoError(t, err)
		return r.Status == session.StatusEmergency || r.AlreadyTerminal
	}, time.Second, 10*time.Millisecond)

	record := mon.Snapshot()
	require.NotNil(t, record.EscalationReason)
	assert.Equal(t, session.ReasonPanic, *record.EscalationReason)
}

func TestPanicHoldReleaseResetsProgress(t *testing.T) {
	env := newGuardEnv(t, fastConfig(), nil)
	mon := mustActivate(t, env, createInput(time.Now().Add(time.Hour)))

	mon.PanicHoldStart()
	time.Sleep(25 * time.Millisecond)
	mon.PanicHoldRelease()

	// Past the threshold in wall time, but the hold was abandoned; ticks
	// without a fresh start never fire.
	time.Sleep(30 * time.Millisecond)
	res, err := mon.PanicHoldTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, res.Status)
	assert.Equal(t, 0, env.notifier.count())
}

func TestDecoyMatchCancelsSilently(t *testing.T) {
	env := newGuardEnv(t, fastConfig(), nil)
	in := createInput(time.Now().Add(time.Hour))
	in.DecoyCode = "4821"
	mon := mustActivate(t, env, in)

	res, err := mon.Decoy(context.Background(), "4821")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, res.Status)

	record := mon.Snapshot()
	require.NotNil(t, record.EndedVia)
	assert.Equal(t, session.EndedViaDecoy, *record.EndedVia)
	assert.Equal(t, 0, env.notifier.count())

	event, err := env.store.GetEmergencyEvent(context.Background(), record.SessionID)
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestDecoyMismatchEscalates(t *testing.T) {
	env := newGuardEnv(t, fastConfig(), nil)
	in := createInput(time.Now().Add(time.Hour))
	in.DecoyCode = "4821"
	mon := mustActivate(t, env, in)

	res, err := mon.Decoy(context.Background(), "9999")
	require.NoError(t, err)
	assert.Equal(t, session.StatusEmergency, res.Status)

	record := mon.Snapshot()
	require.NotNil(t, record.EscalationReason)
	assert.Equal(t, session.ReasonDecoy, *record.EscalationReason)

	assert.Eventually(t, func() bool {
		return env.notifier.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDecoyWithNoCodeConfiguredEscalates(t *testing.T) {
	env := newGuardEnv(t, fastConfig(), nil)
	mon := mustActivate(t, env, createInput(time.Now().Add(time.Hour)))

	res, err := mon.Decoy(context.Background(), "1234")
	require.NoError(t, err)
	assert.Equal(t, session.StatusEmergency, res.Status)
}

func TestDecoyEmptyEntryIsNoop(t *testing.T) {
	env := newGuardEnv(t, fastConfig(), nil)
	in := createInput(time.Now().Add(time.Hour))
	in.DecoyCode = "4821"
	mon := mustActivate(t, env, in)

	res, err := mon.Decoy(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, res.Status)
	assert.Equal(t, storage.StatusActive, mon.Snapshot().Status)
}

func TestEscalationFiresExactlyOnceUnderConcurrentTriggers(t *testing.T) {
	cfg := fastConfig()
	cfg.DefaultBuffer = time.Millisecond
	env := newGuardEnv(t, cfg, nil)

	in := createInput(time.Now().Add(10 * time.Millisecond))
	in.DecoyCode = "4821"
	mon := mustActivate(t, env, in)

	// Race the timer against panic and decoy-mismatch from many goroutines.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mon.Panic(context.Background())
			assert.NoError(t, err)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mon.Decoy(context.Background(), "0000")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		return env.notifier.count() >= 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	record := mon.Snapshot()
	assert.Equal(t, storage.StatusEmergency, record.Status)
	assert.Equal(t, 1, env.notifier.count())
	assert.Equal(t, 1, env.store.EmergencyEventCount(record.SessionID))
}

func TestOperationsOnTerminalSessionAreReportedNoops(t *testing.T) {
	env := newGuardEnv(t, fastConfig(), nil)
	mon := mustActivate(t, env, createInput(time.Now().Add(time.Hour)))

	_, err := mon.EndEarly(context.Background())
	require.NoError(t, err)

	for name, op := range map[string]func() (session.OpResult, error){
		"check-in": func() (session.OpResult, error) { return mon.CheckIn(context.Background()) },
		"extend":   func() (session.OpResult, error) { return mon.Extend(context.Background(), time.Minute) },
		"end":      func() (session.OpResult, error) { return mon.EndEarly(context.Background()) },
		"panic":    func() (session.OpResult, error) { return mon.Panic(context.Background()) },
		"decoy":    func() (session.OpResult, error) { return mon.Decoy(context.Background(), "0000") },
		"activate": func() (session.OpResult, error) { return mon.Activate(context.Background()) },
	} {
		res, err := op()
		assert.NoError(t, err, name)
		assert.True(t, res.AlreadyTerminal, name)
		assert.Equal(t, session.StatusCompleted, res.Status, name)
	}
}

func TestUnactivatedSessionExpires(t *testing.T) {
	env := newGuardEnv(t, fastConfig(), nil)

	record, err := env.manager.CreateSession(context.Background(), createInput(time.Now().Add(20*time.Millisecond)))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, err := env.manager.GetSession(context.Background(), record.SessionID)
		return err == nil && got.Status == storage.StatusExpired
	}, time.Second, 5*time.Millisecond)

	// Expiry is a quiet end, never an alarm.
	assert.Equal(t, 0, env.notifier.count())
	event, err := env.store.GetEmergencyEvent(context.Background(), record.SessionID)
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestOperationsBeforeActivationAreRejected(t *testing.T) {
	env := newGuardEnv(t, fastConfig(), nil)

	record, err := env.manager.CreateSession(context.Background(), createInput(time.Now().Add(time.Hour)))
	require.NoError(t, err)
	mon, err := env.manager.Get(record.SessionID)
	require.NoError(t, err)

	_, err = mon.CheckIn(context.Background())
	assert.ErrorIs(t, err, session.ErrInvalidTransition)

	_, err = mon.Extend(context.Background(), time.Minute)
	assert.ErrorIs(t, err, session.ErrInvalidTransition)

	_, err = mon.EndEarly(context.Background())
	assert.ErrorIs(t, err, session.ErrInvalidTransition)

	_, err = mon.Decoy(context.Background(), "0000")
	assert.ErrorIs(t, err, session.ErrInvalidTransition)

	// The alarm needs an active session; a created one has no watchers yet.
	_, err = mon.Panic(context.Background())
	assert.ErrorIs(t, err, session.ErrInvalidTransition)
	assert.Equal(t, storage.StatusCreated, mon.Snapshot().Status)
	assert.Equal(t, 0, env.notifier.count())
}

func TestCreateSessionValidation(t *testing.T) {
	env := newGuardEnv(t, fastConfig(), nil)

	cases := map[string]session.CreateSessionInput{
		"missing owner":         {LocationLabel: "Cafe", ScheduledEnd: time.Now().Add(time.Hour)},
		"missing location":      {OwnerID: "user-1", ScheduledEnd: time.Now().Add(time.Hour)},
		"missing scheduled end": {OwnerID: "user-1", LocationLabel: "Cafe"},
	}
	for name, in := range cases {
		_, err := env.manager.CreateSession(context.Background(), in)
		assert.ErrorIs(t, err, session.ErrMissingField, name)
	}
}

func TestManagerGetUnknownSession(t *testing.T) {
	env := newGuardEnv(t, fastConfig(), nil)

	_, err := env.manager.Get("session-does-not-exist")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	_, err = env.manager.GetSession(context.Background(), "session-does-not-exist")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

type fixedProvider struct{}

func (fixedProvider) RequestFix(_ context.Context) (*beacon.Fix, error) {
	return &beacon.Fix{Latitude: 40.7, Longitude: -74.0}, nil
}

type failingProvider struct{}

func (failingProvider) RequestFix(_ context.Context) (*beacon.Fix, error) {
	return nil, errors.New("no gps signal")
}

func TestEscalationCarriesLastKnownFix(t *testing.T) {
	cfg := fastConfig()
	cfg.BeaconPeriod = 10 * time.Millisecond
	cfg.GeoFixTimeout = time.Second
	env := newGuardEnv(t, cfg, beacon.FactoryFunc(func(string) beacon.Provider { return fixedProvider{} }))

	in := createInput(time.Now().Add(time.Hour))
	in.GPSEnabled = true
	mon := mustActivate(t, env, in)

	sessionID := mon.Snapshot().SessionID
	assert.Eventually(t, func() bool {
		pings, err := env.store.ListLocationPings(context.Background(), sessionID)
		return err == nil && len(pings) >= 1
	}, time.Second, 5*time.Millisecond)

	_, err := mon.Panic(context.Background())
	require.NoError(t, err)

	event, err := env.store.GetEmergencyEvent(context.Background(), sessionID)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.False(t, event.NoFix)
	require.NotNil(t, event.LastLatitude)
	assert.InDelta(t, 40.7, *event.LastLatitude, 0.001)
}

func TestTerminalSessionDropsStoredFix(t *testing.T) {
	cfg := fastConfig()
	cfg.BeaconPeriod = 10 * time.Millisecond
	cfg.GeoFixTimeout = time.Second
	push := beacon.NewPushProvider(time2.DefaultClock, time.Minute)
	env := newGuardEnv(t, cfg, push)

	in := createInput(time.Now().Add(time.Hour))
	in.GPSEnabled = true
	mon := mustActivate(t, env, in)

	sessionID := mon.Snapshot().SessionID
	push.Report(sessionID, beacon.Fix{Latitude: 40.7, Longitude: -74.0})

	_, err := push.ProviderFor(sessionID).RequestFix(context.Background())
	require.NoError(t, err)

	_, err = mon.EndEarly(context.Background())
	require.NoError(t, err)

	// The stored position is released once the session finishes.
	assert.Eventually(t, func() bool {
		_, err := push.ProviderFor(sessionID).RequestFix(context.Background())
		return errors.Is(err, beacon.ErrNoRecentFix)
	}, time.Second, 5*time.Millisecond)
}

func TestEscalationWithoutAnyFixReportsNoFix(t *testing.T) {
	cfg := fastConfig()
	cfg.BeaconPeriod = 10 * time.Millisecond
	cfg.GeoFixTimeout = time.Second
	env := newGuardEnv(t, cfg, beacon.FactoryFunc(func(string) beacon.Provider { return failingProvider{} }))

	in := createInput(time.Now().Add(time.Hour))
	in.GPSEnabled = true
	mon := mustActivate(t, env, in)

	sessionID := mon.Snapshot().SessionID
	assert.Eventually(t, func() bool {
		pings, err := env.store.ListLocationPings(context.Background(), sessionID)
		return err == nil && len(pings) >= 1
	}, time.Second, 5*time.Millisecond)

	_, err := mon.Panic(context.Background())
	require.NoError(t, err)

	event, err := env.store.GetEmergencyEvent(context.Background(), sessionID)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.True(t, event.NoFix)

	assert.Eventually(t, func() bool {
		return env.notifier.count() == 1
	}, time.Second, 5*time.Millisecond)
	payload := env.notifier.lastPayload()
	require.NotNil(t, payload)
	assert.True(t, payload.NoFix)
}
