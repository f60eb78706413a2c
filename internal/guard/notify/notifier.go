package notify

import (
	"context"
	"time"
)

// EmergencyPayload is the immutable hand-off assembled by the dispatcher.
// It carries everything a guardian-side surface needs to act; it never
// carries the decoy code.
type EmergencyPayload struct {
	SessionID       string     `json:"session_id"`
	OwnerID         string     `json:"owner_id"`
	Reason          string     `json:"reason"`
	LocationLabel   string     `json:"location_label"`
	LocationAddress string     `json:"location_address"`
	Memo            string     `json:"memo,omitempty"`
	LastLatitude    *float64   `json:"last_latitude,omitempty"`
	LastLongitude   *float64   `json:"last_longitude,omitempty"`
	LastFixAt       *time.Time `json:"last_fix_at,omitempty"`
	NoFix           bool       `json:"no_fix"`
	TriggeredAt     time.Time  `json:"triggered_at"`
}

// Guardian is one member of the session's guardian set, resolved from the
// guardian-group service.
type Guardian struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// DeliveryResult reports the outcome for one recipient.
type DeliveryResult struct {
	GuardianID string
	Delivered  bool
	Error      string
}

// Notifier delivers an emergency payload to a guardian set. Implementations
// must respect the context deadline; a hung delivery must never block the
// session that triggered it.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, payload *EmergencyPayload, guardians []Guardian) ([]DeliveryResult, error)
}

// Directory resolves guardian ids to contactable guardians. Guardian-group
// management is an external collaborator; this is the read boundary the
// dispatcher needs.
type Directory interface {
	ResolveGuardians(ctx context.Context, guardianIDs []string) ([]Guardian, error)
}

// StaticDirectory is a Directory backed by a fixed map, used for tests and
// single-tenant deployments configured at boot.
type StaticDirectory struct {
	guardians map[string]Guardian
}

func NewStaticDirectory(guardians []Guardian) *StaticDirectory {
	m := make(map[string]Guardian, len(guardians))
	for _, g := range guardians {
		m[g.ID] = g
	}
	return &StaticDirectory{guardians: m}
}

func (d *StaticDirectory) ResolveGuardians(_ context.Context, guardianIDs []string) ([]Guardian, error) {
	resolved := make([]Guardian, 0, len(guardianIDs))
	for _, id := range guardianIDs {
		if g, ok := d.guardians[id]; ok {
			resolved = append(resolved, g)
		}
	}
	return resolved, nil
}
