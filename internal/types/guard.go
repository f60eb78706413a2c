package types

import (
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/pkg/errors"
)

// Validatable is implemented by request payloads that carry their own
// validation.
type Validatable interface {
	Validate() error
}

// PostCreateSessionPayload is the request body for creating a guard session.
type PostCreateSessionPayload struct {
	OwnerID         *string         `json:"ownerId"`
	LocationLabel   *string         `json:"locationLabel"`
	LocationAddress string          `json:"locationAddress,omitempty"`
	Latitude        float64         `json:"latitude,omitempty"`
	Longitude       float64         `json:"longitude,omitempty"`
	Memo            string          `json:"memo,omitempty"`
	ScheduledEnd    strfmt.DateTime `json:"scheduledEnd"`
	BufferSeconds   int             `json:"bufferSeconds,omitempty"`
	GPSEnabled      bool            `json:"gpsEnabled,omitempty"`
	DecoyCode       string          `json:"decoyCode,omitempty"`
	GuardianIDs     []string        `json:"guardianIds,omitempty"`
}

func (p *PostCreateSessionPayload) Validate() error {
	if swag.StringValue(p.OwnerID) == "" {
		return errors.New("ownerId is required")
	}
	if swag.StringValue(p.LocationLabel) == "" {
		return errors.New("locationLabel is required")
	}
	if p.ScheduledEnd.IsZero() {
		return errors.New("scheduledEnd is required")
	}
	return nil
}

// PostExtendSessionPayload extends the deadline by the given number of
// minutes.
type PostExtendSessionPayload struct {
	Minutes *int64 `json:"minutes"`
}

func (p *PostExtendSessionPayload) Validate() error {
	if p.Minutes == nil {
		return errors.New("minutes is required")
	}
	return nil
}

// Panic hold gesture phases reported by the client.
const (
	PanicActionStart   = "start"
	PanicActionHold    = "hold"
	PanicActionRelease = "release"
)

// PostPanicPayload reports one phase of the hold-to-confirm gesture.
type PostPanicPayload struct {
	Action *string `json:"action"`
}

func (p *PostPanicPayload) Validate() error {
	switch swag.StringValue(p.Action) {
	case PanicActionStart, PanicActionHold, PanicActionRelease:
		return nil
	}
	return errors.New("action must be one of start, hold, release")
}

// PostReportLocationPayload is a client-reported device position. The beacon
// reads the freshest report on each tick.
type PostReportLocationPayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (p *PostReportLocationPayload) Validate() error {
	if p.Latitude == nil || p.Longitude == nil {
		return errors.New("latitude and longitude are required")
	}
	return nil
}

// PostDecoyPayload submits a code at session end.
type PostDecoyPayload struct {
	Code string `json:"code"`
}

func (p *PostDecoyPayload) Validate() error {
	return nil
}

// GuardSessionResponse is the public view of a session. The decoy code
// never appears in any response shape.
type GuardSessionResponse struct {
	SessionID       *string          `json:"sessionId"`
	OwnerID         *string          `json:"ownerId"`
	LocationLabel   *string          `json:"locationLabel"`
	LocationAddress string           `json:"locationAddress,omitempty"`
	Memo            string           `json:"memo,omitempty"`
	Status          *string          `json:"status"`
	ScheduledEnd    strfmt.DateTime  `json:"scheduledEnd"`
	BufferSeconds   int64            `json:"bufferSeconds"`
	GPSEnabled      bool             `json:"gpsEnabled"`
	GuardianIDs     []string         `json:"guardianIds,omitempty"`
	CreatedAt       strfmt.DateTime  `json:"createdAt"`
	ActivatedAt     *strfmt.DateTime `json:"activatedAt,omitempty"`
	EndedAt         *strfmt.DateTime `json:"endedAt,omitempty"`
	EndedVia        *string          `json:"endedVia,omitempty"`
}

// SessionAckResponse is the uniform acknowledgment for session actions whose
// outcome must not be inferable from the response (decoy submissions and
// panic gestures share it on purpose).
type SessionAckResponse struct {
	SessionID    *string `json:"sessionId"`
	Acknowledged bool    `json:"acknowledged"`
}

// SessionOpResponse reports the outcome of a lifecycle operation.
type SessionOpResponse struct {
	SessionID       *string          `json:"sessionId"`
	Status          *string          `json:"status"`
	AlreadyTerminal bool             `json:"alreadyTerminal,omitempty"`
	NewDeadline     *strfmt.DateTime `json:"newDeadline,omitempty"`
}

// LocationPingResponse is one beacon outcome.
type LocationPingResponse struct {
	Timestamp strfmt.DateTime `json:"timestamp"`
	Latitude  *float64        `json:"latitude,omitempty"`
	Longitude *float64        `json:"longitude,omitempty"`
	FixFailed bool            `json:"fixFailed"`
}

// ListLocationPingsResponse wraps the ping log of one session.
type ListLocationPingsResponse struct {
	SessionID *string                 `json:"sessionId"`
	Pings     []*LocationPingResponse `json:"pings"`
}
