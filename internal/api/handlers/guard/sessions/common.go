package sessions

import (
	"net/http"

	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rtolen/vairify-guard/internal/api"
	"github.com/rtolen/vairify-guard/internal/api/httperrors"
	"github.com/rtolen/vairify-guard/internal/guard/session"
	"github.com/rtolen/vairify-guard/internal/guard/storage"
	"github.com/rtolen/vairify-guard/internal/types"
)

// getMonitor resolves the session id path param to its live monitor.
func getMonitor(s *api.Server, c echo.Context) (*session.Monitor, error) {
	sessionID := c.Param("id")
	if sessionID == "" {
		return nil, httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "session id is required")
	}

	mon, err := s.Sessions.Get(sessionID)
	if err != nil {
		return nil, mapSessionError(err)
	}
	return mon, nil
}

// mapSessionError translates guard subsystem errors into public HTTP errors.
func mapSessionError(err error) error {
	switch errors.Cause(err) {
	case session.ErrSessionNotFound:
		return httperrors.NewHTTPError(http.StatusNotFound, httperrors.TypeSessionNotFound, "session not found")
	case session.ErrInvalidTransition:
		return httperrors.NewHTTPError(http.StatusConflict, httperrors.TypeInvalidState, "operation not valid in current session state")
	case session.ErrNonPositiveExtension:
		return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "extension must be positive")
	case session.ErrMissingField:
		return httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.TypeValidation, "validation failed", err.Error())
	default:
		return err
	}
}

func sessionResponse(record storage.GuardSession) *types.GuardSessionResponse {
	resp := &types.GuardSessionResponse{
		SessionID:       swag.String(record.SessionID),
		OwnerID:         swag.String(record.OwnerID),
		LocationLabel:   swag.String(record.LocationLabel),
		LocationAddress: record.LocationAddress,
		Memo:            record.Memo,
		Status:          swag.String(record.Status),
		ScheduledEnd:    strfmt.DateTime(record.ScheduledEnd),
		BufferSeconds:   int64(record.BufferSeconds),
		GPSEnabled:      record.GPSEnabled,
		GuardianIDs:     record.GuardianIDs,
		CreatedAt:       strfmt.DateTime(record.CreatedAt),
		EndedVia:        record.EndedVia,
	}
	if record.ActivatedAt != nil {
		at := strfmt.DateTime(*record.ActivatedAt)
		resp.ActivatedAt = &at
	}
	if record.EndedAt != nil {
		at := strfmt.DateTime(*record.EndedAt)
		resp.EndedAt = &at
	}
	return resp
}

func opResponse(sessionID string, res session.OpResult) *types.SessionOpResponse {
	resp := &types.SessionOpResponse{
		SessionID:       swag.String(sessionID),
		Status:          swag.String(string(res.Status)),
		AlreadyTerminal: res.AlreadyTerminal,
	}
	if res.NewDeadline != nil {
		deadline := strfmt.DateTime(*res.NewDeadline)
		resp.NewDeadline = &deadline
	}
	return resp
}
