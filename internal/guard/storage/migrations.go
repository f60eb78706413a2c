package storage

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// migrations are applied in order and must stay idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS guard_sessions (
		session_id        TEXT PRIMARY KEY,
		owner_id          TEXT NOT NULL,
		location_label    TEXT NOT NULL,
		location_address  TEXT NOT NULL DEFAULT '',
		latitude          DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude         DOUBLE PRECISION NOT NULL DEFAULT 0,
		memo              TEXT NOT NULL DEFAULT '',
		scheduled_end     TIMESTAMPTZ NOT NULL,
		buffer_seconds    INTEGER NOT NULL DEFAULT 0,
		gps_enabled       BOOLEAN NOT NULL DEFAULT FALSE,
		decoy_code_sealed BYTEA,
		status            TEXT NOT NULL,
		escalation_reason TEXT,
		ended_via         TEXT,
		guardian_ids      TEXT[] NOT NULL DEFAULT '{}',
		created_at        TIMESTAMPTZ NOT NULL,
		activated_at      TIMESTAMPTZ,
		ended_at          TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_guard_sessions_owner ON guard_sessions (owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_guard_sessions_status ON guard_sessions (status)`,
	`CREATE TABLE IF NOT EXISTS guard_checkins (
		id           BIGSERIAL PRIMARY KEY,
		session_id   TEXT NOT NULL REFERENCES guard_sessions (session_id),
		ts           TIMESTAMPTZ NOT NULL,
		new_deadline TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_guard_checkins_session ON guard_checkins (session_id, ts)`,
	`CREATE TABLE IF NOT EXISTS guard_location_pings (
		id         BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES guard_sessions (session_id),
		ts         TIMESTAMPTZ NOT NULL,
		latitude   DOUBLE PRECISION,
		longitude  DOUBLE PRECISION,
		fix_failed BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_guard_location_pings_session ON guard_location_pings (session_id, ts)`,
	`CREATE TABLE IF NOT EXISTS guard_emergency_events (
		session_id     TEXT PRIMARY KEY REFERENCES guard_sessions (session_id),
		trigger_type   TEXT NOT NULL,
		triggered_at   TIMESTAMPTZ NOT NULL,
		last_fix_at    TIMESTAMPTZ,
		last_latitude  DOUBLE PRECISION,
		last_longitude DOUBLE PRECISION,
		no_fix         BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS guard_guardians (
		guardian_id TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		email       TEXT,
		phone       TEXT
	)`,
}

// Migrate applies the guard schema. Safe to run on every boot.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to apply migration")
		}
	}
	return nil
}
