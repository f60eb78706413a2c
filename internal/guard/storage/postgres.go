package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// PostgreSQLStore implements MetadataStore on database/sql.
type PostgreSQLStore struct {
	db *sql.DB
}

func NewPostgreSQLStore(db *sql.DB) *PostgreSQLStore {
	return &PostgreSQLStore{db: db}
}

func (s *PostgreSQLStore) CreateSession(ctx context.Context, session *GuardSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guard_sessions (
			session_id, owner_id, location_label, location_address,
			latitude, longitude, memo, scheduled_end, buffer_seconds,
			gps_enabled, decoy_code_sealed, status, guardian_ids, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		session.SessionID, session.OwnerID, session.LocationLabel, session.LocationAddress,
		session.Latitude, session.Longitude, session.Memo, session.ScheduledEnd, session.BufferSeconds,
		session.GPSEnabled, session.DecoyCodeSealed, session.Status, pq.Array(session.GuardianIDs), session.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert session")
	}
	return nil
}

func (s *PostgreSQLStore) GetSession(ctx context.Context, sessionID string) (*GuardSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, owner_id, location_label, location_address,
			latitude, longitude, memo, scheduled_end, buffer_seconds,
			gps_enabled, decoy_code_sealed, status, escalation_reason,
			ended_via, guardian_ids, created_at, activated_at, ended_at
		FROM guard_sessions WHERE session_id = $1`, sessionID)

	session := &GuardSession{}
	err := row.Scan(
		&session.SessionID, &session.OwnerID, &session.LocationLabel, &session.LocationAddress,
		&session.Latitude, &session.Longitude, &session.Memo, &session.ScheduledEnd, &session.BufferSeconds,
		&session.GPSEnabled, &session.DecoyCodeSealed, &session.Status, &session.EscalationReason,
		&session.EndedVia, pq.Array(&session.GuardianIDs), &session.CreatedAt, &session.ActivatedAt, &session.EndedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan session")
	}
	return session, nil
}

func (s *PostgreSQLStore) MarkSessionActive(ctx context.Context, sessionID string, activatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE guard_sessions SET status = $1, activated_at = $2
		WHERE session_id = $3 AND status = $4`,
		StatusActive, activatedAt, sessionID, StatusCreated)
	if err != nil {
		return errors.Wrap(err, "failed to mark session active")
	}
	return s.guardAffected(ctx, res, sessionID)
}

func (s *PostgreSQLStore) UpdateSessionDeadline(ctx context.Context, sessionID string, newDeadline time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE guard_sessions SET scheduled_end = $1
		WHERE session_id = $2 AND status = $3 AND scheduled_end <= $1`,
		newDeadline, sessionID, StatusActive)
	if err != nil {
		return errors.Wrap(err, "failed to update deadline")
	}
	return s.guardAffected(ctx, res, sessionID)
}

func (s *PostgreSQLStore) TerminateSession(ctx context.Context, sessionID string, status string, escalationReason, endedVia *string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE guard_sessions
		SET status = $1, escalation_reason = $2, ended_via = $3, ended_at = $4
		WHERE session_id = $5 AND status NOT IN ($6, $7, $8)`,
		status, escalationReason, endedVia, endedAt, sessionID,
		StatusEmergency, StatusCompleted, StatusExpired)
	if err != nil {
		return errors.Wrap(err, "failed to terminate session")
	}
	return s.guardAffected(ctx, res, sessionID)
}

// guardAffected maps a zero-row update to the terminal/not-found outcome.
func (s *PostgreSQLStore) guardAffected(ctx context.Context, res sql.Result, sessionID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM guard_sessions WHERE session_id = $1)`, sessionID,
	).Scan(&exists); err != nil {
		return errors.Wrap(err, "failed to check session existence")
	}
	if !exists {
		return ErrSessionNotFound
	}
	return ErrAlreadyTerminal
}

func (s *PostgreSQLStore) AppendCheckIn(ctx context.Context, event *CheckInEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guard_checkins (session_id, ts, new_deadline) VALUES ($1, $2, $3)`,
		event.SessionID, event.Timestamp, event.NewDeadline)
	if err != nil {
		return errors.Wrap(err, "failed to append check-in")
	}
	return nil
}

func (s *PostgreSQLStore) AppendLocationPing(ctx context.Context, ping *LocationPing) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guard_location_pings (session_id, ts, latitude, longitude, fix_failed)
		VALUES ($1, $2, $3, $4, $5)`,
		ping.SessionID, ping.Timestamp, ping.Latitude, ping.Longitude, ping.FixFailed)
	if err != nil {
		return errors.Wrap(err, "failed to append location ping")
	}
	return nil
}

func (s *PostgreSQLStore) AppendEmergencyEvent(ctx context.Context, event *EmergencyEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guard_emergency_events (
			session_id, trigger_type, triggered_at, last_fix_at,
			last_latitude, last_longitude, no_fix
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.SessionID, event.TriggerType, event.TriggeredAt, event.LastFixAt,
		event.LastLatitude, event.LastLongitude, event.NoFix)
	if err != nil {
		return errors.Wrap(err, "failed to append emergency event")
	}
	return nil
}

func (s *PostgreSQLStore) ListCheckIns(ctx context.Context, sessionID string) ([]*CheckInEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, ts, new_deadline FROM guard_checkins
		WHERE session_id = $1 ORDER BY ts ASC`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list check-ins")
	}
	defer rows.Close()

	var events []*CheckInEvent
	for rows.Next() {
		e := &CheckInEvent{}
		if err := rows.Scan(&e.SessionID, &e.Timestamp, &e.NewDeadline); err != nil {
			return nil, errors.Wrap(err, "failed to scan check-in")
		}
		events = append(events, e)
	}
	return events, errors.Wrap(rows.Err(), "check-in rows")
}

func (s *PostgreSQLStore) ListLocationPings(ctx context.Context, sessionID string) ([]*LocationPing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, ts, latitude, longitude, fix_failed FROM guard_location_pings
		WHERE session_id = $1 ORDER BY ts ASC`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list location pings")
	}
	defer rows.Close()

	var pings []*LocationPing
	for rows.Next() {
		p := &LocationPing{}
		if err := rows.Scan(&p.SessionID, &p.Timestamp, &p.Latitude, &p.Longitude, &p.FixFailed); err != nil {
			return nil, errors.Wrap(err, "failed to scan location ping")
		}
		pings = append(pings, p)
	}
	return pings, errors.Wrap(rows.Err(), "location ping rows")
}

func (s *PostgreSQLStore) LatestLocationPing(ctx context.Context, sessionID string) (*LocationPing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, ts, latitude, longitude, fix_failed FROM guard_location_pings
		WHERE session_id = $1 AND fix_failed = FALSE
		ORDER BY ts DESC LIMIT 1`, sessionID)

	p := &LocationPing{}
	err := row.Scan(&p.SessionID, &p.Timestamp, &p.Latitude, &p.Longitude, &p.FixFailed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan latest ping")
	}
	return p, nil
}

func (s *PostgreSQLStore) GetEmergencyEvent(ctx context.Context, sessionID string) (*EmergencyEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, trigger_type, triggered_at, last_fix_at,
			last_latitude, last_longitude, no_fix
		FROM guard_emergency_events WHERE session_id = $1`, sessionID)

	e := &EmergencyEvent{}
	err := row.Scan(&e.SessionID, &e.TriggerType, &e.TriggeredAt, &e.LastFixAt,
		&e.LastLatitude, &e.LastLongitude, &e.NoFix)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan emergency event")
	}
	return e, nil
}
