package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/rtolen/vairify-guard/internal/guard/beacon"
	"github.com/rtolen/vairify-guard/internal/guard/dispatch"
	"github.com/rtolen/vairify-guard/internal/guard/schedule"
	"github.com/rtolen/vairify-guard/internal/guard/storage"
	"github.com/rtolen/vairify-guard/internal/metrics"
	"github.com/rtolen/vairify-guard/pkg/secret"
)

// Manager is the registry of live session monitors. Creation goes through it
// so every session gets its id, its sealed decoy code, its store row and its
// monitor in one place; lookups route API calls to the owning monitor.
type Manager struct {
	mu       sync.RWMutex
	monitors map[string]*Monitor

	store      storage.MetadataStore
	live       storage.LiveStore
	sched      *schedule.Scheduler
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Service
	geo        beacon.ProviderFactory
	box        *secret.Box
	cfg        Config
}

func NewManager(
	store storage.MetadataStore,
	live storage.LiveStore,
	sched *schedule.Scheduler,
	dispatcher *dispatch.Dispatcher,
	m *metrics.Service,
	geo beacon.ProviderFactory,
	box *secret.Box,
	cfg Config,
) *Manager {
	return &Manager{
		monitors:   make(map[string]*Monitor),
		store:      store,
		live:       live,
		sched:      sched,
		dispatcher: dispatcher,
		metrics:    m,
		geo:        geo,
		box:        box,
		cfg:        cfg.withDefaults(),
	}
}

// CreateSession validates the input, seals the decoy code, persists the
// session row and registers a monitor with the abandoned-session expiry
// armed. The session starts in created and does nothing until activated.
func (mgr *Manager) CreateSession(ctx context.Context, in CreateSessionInput) (storage.GuardSession, error) {
	if err := in.validate(); err != nil {
		return storage.GuardSession{}, err
	}

	now := mgr.sched.Clock().Now()

	var sealed []byte
	if in.DecoyCode != "" {
		if mgr.box == nil {
			return storage.GuardSession{}, errors.New("decoy code supplied but no sealing key configured")
		}
		var err error
		sealed, err = mgr.box.Seal([]byte(in.DecoyCode))
		if err != nil {
			return storage.GuardSession{}, errors.Wrap(err, "failed to seal decoy code")
		}
	}

	record := &storage.GuardSession{
		SessionID:       "session-" + uuid.New().String(),
		OwnerID:         in.OwnerID,
		LocationLabel:   in.LocationLabel,
		LocationAddress: in.LocationAddress,
		Latitude:        in.Latitude,
		Longitude:       in.Longitude,
		Memo:            in.Memo,
		ScheduledEnd:    in.ScheduledEnd,
		BufferSeconds:   in.BufferSeconds,
		GPSEnabled:      in.GPSEnabled,
		DecoyCodeSealed: sealed,
		Status:          storage.StatusCreated,
		GuardianIDs:     in.GuardianIDs,
		CreatedAt:       now,
	}

	if err := mgr.store.CreateSession(ctx, record); err != nil {
		return storage.GuardSession{}, errors.Wrap(err, "failed to persist session")
	}

	var provider beacon.Provider
	if mgr.geo != nil {
		provider = mgr.geo.ProviderFor(record.SessionID)
	}

	mon := newMonitor(record, in.DecoyCode, mgr.store, mgr.live, mgr.sched, mgr.dispatcher, mgr.metrics, provider, mgr.cfg, mgr.retireMonitor)

	mgr.mu.Lock()
	mgr.monitors[record.SessionID] = mon
	mgr.mu.Unlock()

	mon.armExpiry()

	log.Info().
		Str("session_id", record.SessionID).
		Str("owner_id", record.OwnerID).
		Time("scheduled_end", record.ScheduledEnd).
		Msg("Session created")

	return mon.Snapshot(), nil
}

// Get returns the live monitor for the session id.
func (mgr *Manager) Get(sessionID string) (*Monitor, error) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	mon, ok := mgr.monitors[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return mon, nil
}

// GetSession reads the current session record, falling back to the store for
// sessions whose monitor has already been retired.
func (mgr *Manager) GetSession(ctx context.Context, sessionID string) (storage.GuardSession, error) {
	mgr.mu.RLock()
	mon, ok := mgr.monitors[sessionID]
	mgr.mu.RUnlock()

	if ok {
		return mon.Snapshot(), nil
	}

	// Sessions resident on another replica are visible through the live
	// cache before falling back to the metadata store.
	if mgr.live != nil {
		if record, err := mgr.live.GetLiveSession(ctx, sessionID); err == nil && record != nil {
			return *record, nil
		}
	}

	record, err := mgr.store.GetSession(ctx, sessionID)
	if err != nil {
		if err == storage.ErrSessionNotFound {
			return storage.GuardSession{}, ErrSessionNotFound
		}
		return storage.GuardSession{}, err
	}
	return *record, nil
}

// Count reports how many monitors are currently registered.
func (mgr *Manager) Count() int {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return len(mgr.monitors)
}

// retireMonitor is handed to each monitor as its terminal callback. Stored
// positions are released right away; the monitor itself lingers for a while
// so late callers still get the reported already-terminal no-op instead of a
// lookup miss.
func (mgr *Manager) retireMonitor(sessionID string) {
	if forgetter, ok := mgr.geo.(beacon.FixForgetter); ok {
		forgetter.Forget(sessionID)
	}

	mgr.sched.After(mgr.cfg.TerminalLinger, func() {
		mgr.mu.Lock()
		delete(mgr.monitors, sessionID)
		mgr.mu.Unlock()

		log.Debug().Str("session_id", sessionID).Msg("Retired finished session monitor")
	})
}

// Shutdown cancels every registered monitor's timers and beacons. Session
// rows stay as they are; no transition is forced.
func (mgr *Manager) Shutdown() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	for _, mon := range mgr.monitors {
		mon.shutdown()
	}
	mgr.monitors = make(map[string]*Monitor)
}
