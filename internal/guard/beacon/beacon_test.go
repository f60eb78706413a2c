package beacon_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/rtolen/vairify-guard/internal/guard/beacon"
	"github.com/rtolen/vairify-guard/internal/guard/schedule"
	"github.com/rtolen/vairify-guard/internal/guard/storage"
	"github.com/rtolen/vairify-guard/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	calls int32
	// fail every second call
	flaky bool
}

func (p *scriptedProvider) RequestFix(_ context.Context) (*beacon.Fix, error) {
	n := atomic.AddInt32(&p.calls, 1)
	if p.flaky && n%2 == 0 {
		return nil, errors.New("no gps signal")
	}
	return &beacon.Fix{Latitude: 40.7, Longitude: -74.0}, nil
}

func TestBeaconAppendsPings(t *testing.T) {
	store := storage.NewInMemoryStore()
	sched := schedule.New(time2.DefaultClock)
	provider := &scriptedProvider{}

	b := beacon.New("session-b1", provider, store, sched, metrics.New(), 10*time.Millisecond, time.Second)
	b.Start()
	defer b.Stop()

	assert.Eventually(t, func() bool {
		pings, err := store.ListLocationPings(context.Background(), "session-b1")
		return err == nil && len(pings) >= 3
	}, time.Second, 5*time.Millisecond)

	pings, err := store.ListLocationPings(context.Background(), "session-b1")
	require.NoError(t, err)
	for _, p := range pings {
		assert.False(t, p.FixFailed)
		require.NotNil(t, p.Latitude)
		assert.InDelta(t, 40.7, *p.Latitude, 0.001)
	}
}

func TestBeaconRecordsFailedFixAndKeepsGoing(t *testing.T) {
	store := storage.NewInMemoryStore()
	sched := schedule.New(time2.DefaultClock)
	provider := &scriptedProvider{flaky: true}

	b := beacon.New("session-b2", provider, store, sched, metrics.New(), 10*time.Millisecond, time.Second)
	b.Start()
	defer b.Stop()

	assert.Eventually(t, func() bool {
		pings, err := store.ListLocationPings(context.Background(), "session-b2")
		if err != nil || len(pings) < 4 {
			return false
		}
		failed := 0
		for _, p := range pings {
			if p.FixFailed {
				failed++
			}
		}
		return failed >= 1 && failed < len(pings)
	}, time.Second, 5*time.Millisecond)
}

func TestBeaconStopHaltsLoop(t *testing.T) {
	store := storage.NewInMemoryStore()
	sched := schedule.New(time2.DefaultClock)
	provider := &scriptedProvider{}

	b := beacon.New("session-b3", provider, store, sched, metrics.New(), 10*time.Millisecond, time.Second)
	b.Start()

	assert.Eventually(t, func() bool {
		pings, _ := store.ListLocationPings(context.Background(), "session-b3")
		return len(pings) >= 1
	}, time.Second, 5*time.Millisecond)

	b.Stop()
	b.Stop() // idempotent

	pings, _ := store.ListLocationPings(context.Background(), "session-b3")
	settled := len(pings)
	time.Sleep(50 * time.Millisecond)
	pings, _ = store.ListLocationPings(context.Background(), "session-b3")
	assert.LessOrEqual(t, len(pings), settled+1)
}

func TestLatestPingSkipsFailures(t *testing.T) {
	store := storage.NewInMemoryStore()
	ctx := context.Background()

	lat, lng := 40.7, -74.0
	require.NoError(t, store.AppendLocationPing(ctx, &storage.LocationPing{
		SessionID: "s", Timestamp: time.Now().Add(-2 * time.Minute), Latitude: &lat, Longitude: &lng,
	}))
	require.NoError(t, store.AppendLocationPing(ctx, &storage.LocationPing{
		SessionID: "s", Timestamp: time.Now(), FixFailed: true,
	}))

	latest, err := store.LatestLocationPing(ctx, "s")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.False(t, latest.FixFailed)
	require.NotNil(t, latest.Latitude)
	assert.InDelta(t, 40.7, *latest.Latitude, 0.001)
}
