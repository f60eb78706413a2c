package session

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rtolen/vairify-guard/internal/guard/storage"
)

// Status is the lifecycle state of a guard session.
type Status string

const (
	StatusCreated   Status = storage.StatusCreated
	StatusActive    Status = storage.StatusActive
	StatusEmergency Status = storage.StatusEmergency
	StatusCompleted Status = storage.StatusCompleted
	StatusExpired   Status = storage.StatusExpired
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return storage.IsTerminalStatus(string(s))
}

// Escalation reasons, single-assignment per session.
const (
	ReasonTimerExpired = "timer_expired"
	ReasonPanic        = "panic"
	ReasonDecoy        = "decoy"
)

// How a completed session ended.
const (
	EndedViaOwner = "owner"
	EndedViaDecoy = "decoy"
)

var (
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrNonPositiveExtension = errors.New("extension must be positive")
	ErrSessionNotFound      = errors.New("session not found")
	ErrMissingField         = errors.New("missing required field")
)

// Config carries the monitor tunables, resolved from config.Guard.
type Config struct {
	CheckInExtension time.Duration
	DefaultBuffer    time.Duration
	HoldThreshold    time.Duration
	BeaconPeriod     time.Duration
	GeoFixTimeout    time.Duration
	TerminalLinger   time.Duration
	// StoreTimeout bounds every store call made inside the serialized
	// section, so a slow store can never hold the session lock indefinitely.
	StoreTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.CheckInExtension <= 0 {
		c.CheckInExtension = 30 * time.Minute
	}
	if c.DefaultBuffer <= 0 {
		c.DefaultBuffer = 30 * time.Second
	}
	if c.HoldThreshold <= 0 {
		c.HoldThreshold = 3 * time.Second
	}
	if c.BeaconPeriod <= 0 {
		c.BeaconPeriod = 2 * time.Minute
	}
	if c.GeoFixTimeout <= 0 {
		c.GeoFixTimeout = 10 * time.Second
	}
	if c.TerminalLinger <= 0 {
		c.TerminalLinger = 15 * time.Minute
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	return c
}

// CreateSessionInput is everything the caller supplies at creation. The
// subsystem validates presence only.
type CreateSessionInput struct {
	OwnerID         string
	LocationLabel   string
	LocationAddress string
	Latitude        float64
	Longitude       float64
	Memo            string
	ScheduledEnd    time.Time
	BufferSeconds   int
	GPSEnabled      bool
	DecoyCode       string
	GuardianIDs     []string
}

func (in CreateSessionInput) validate() error {
	if in.OwnerID == "" {
		return errors.Wrap(ErrMissingField, "owner id")
	}
	if in.LocationLabel == "" {
		return errors.Wrap(ErrMissingField, "location label")
	}
	if in.ScheduledEnd.IsZero() {
		return errors.Wrap(ErrMissingField, "scheduled end")
	}
	return nil
}

// OpResult is the outcome of a monitor operation. AlreadyTerminal marks the
// no-op outcome of calling into a finished session; it is reported, never
// fatal.
type OpResult struct {
	Status          Status
	AlreadyTerminal bool
	NewDeadline     *time.Time
}
