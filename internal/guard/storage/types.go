package storage

import "time"

// Session status values as persisted. The domain-level state machine lives in
// internal/guard/session; the store only enforces the terminal guard.
const (
	StatusCreated   = "created"
	StatusActive    = "active"
	StatusEmergency = "emergency"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
)

// IsTerminalStatus reports whether a persisted status admits no further
// transitions.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusEmergency, StatusCompleted, StatusExpired:
		return true
	default:
		return false
	}
}

// GuardSession is the durable row for one safety session.
type GuardSession struct {
	SessionID       string
	OwnerID         string
	LocationLabel   string
	LocationAddress string
	Latitude        float64
	Longitude       float64
	Memo            string
	ScheduledEnd    time.Time
	BufferSeconds   int
	GPSEnabled      bool
	// DecoyCodeSealed is the AES-GCM sealed decoy code, empty when the owner
	// set none. The plaintext never reaches the store.
	DecoyCodeSealed  []byte
	Status           string
	EscalationReason *string
	EndedVia         *string
	GuardianIDs      []string
	CreatedAt        time.Time
	ActivatedAt      *time.Time
	EndedAt          *time.Time
}

// CheckInEvent is one owner safety confirmation.
type CheckInEvent struct {
	SessionID   string
	Timestamp   time.Time
	NewDeadline time.Time
}

// LocationPing is one beacon result, success or explicit failure.
type LocationPing struct {
	SessionID string
	Timestamp time.Time
	Latitude  *float64
	Longitude *float64
	FixFailed bool
}

// EmergencyEvent is written exactly once per session, at the instant the
// session transitions to emergency.
type EmergencyEvent struct {
	SessionID     string
	TriggerType   string
	TriggeredAt   time.Time
	LastFixAt     *time.Time
	LastLatitude  *float64
	LastLongitude *float64
	NoFix         bool
}
