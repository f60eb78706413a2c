package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrSessionNotFound is returned when no row exists for the session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAlreadyTerminal is returned by the optimistic terminal guard when a
	// terminating update finds the session already terminal. Callers treat it
	// as a no-op outcome, not a fault.
	ErrAlreadyTerminal = errors.New("session already terminal")
)

// MetadataStore is the durable session store boundary: session rows plus the
// append-only check-in, ping and emergency logs.
type MetadataStore interface {
	CreateSession(ctx context.Context, session *GuardSession) error
	GetSession(ctx context.Context, sessionID string) (*GuardSession, error)

	// MarkSessionActive moves created -> active. Fails with ErrAlreadyTerminal
	// if the session is terminal and ErrSessionNotFound if it does not exist.
	MarkSessionActive(ctx context.Context, sessionID string, activatedAt time.Time) error

	// UpdateSessionDeadline persists a forward-moved deadline.
	UpdateSessionDeadline(ctx context.Context, sessionID string, newDeadline time.Time) error

	// TerminateSession applies the optimistic terminal guard: the update only
	// lands if the stored status is not yet terminal, otherwise
	// ErrAlreadyTerminal is returned and the row is untouched.
	TerminateSession(ctx context.Context, sessionID string, status string, escalationReason, endedVia *string, endedAt time.Time) error

	AppendCheckIn(ctx context.Context, event *CheckInEvent) error
	AppendLocationPing(ctx context.Context, ping *LocationPing) error
	AppendEmergencyEvent(ctx context.Context, event *EmergencyEvent) error

	ListCheckIns(ctx context.Context, sessionID string) ([]*CheckInEvent, error)
	ListLocationPings(ctx context.Context, sessionID string) ([]*LocationPing, error)
	// LatestLocationPing returns the most recent successful fix, or nil when
	// the session never produced one.
	LatestLocationPing(ctx context.Context, sessionID string) (*LocationPing, error)
	GetEmergencyEvent(ctx context.Context, sessionID string) (*EmergencyEvent, error)
}

// LiveStore caches the live snapshot of active sessions with a TTL so
// read-heavy surfaces (guardian dashboards) stay off the metadata store.
type LiveStore interface {
	SaveLiveSession(ctx context.Context, session *GuardSession, ttl time.Duration) error
	GetLiveSession(ctx context.Context, sessionID string) (*GuardSession, error)
	DeleteLiveSession(ctx context.Context, sessionID string) error
}
