package notify

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// PGDirectory resolves guardians from the guard_guardians table. Unknown ids
// are skipped, not errors: a stale id in a session's guardian set must not
// block delivery to the rest.
type PGDirectory struct {
	db *sql.DB
}

func NewPGDirectory(db *sql.DB) *PGDirectory {
	return &PGDirectory{db: db}
}

func (d *PGDirectory) ResolveGuardians(ctx context.Context, guardianIDs []string) ([]Guardian, error) {
	if len(guardianIDs) == 0 {
		return nil, nil
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT guardian_id, name, COALESCE(email, ''), COALESCE(phone, '')
		FROM guard_guardians
		WHERE guardian_id = ANY($1)`,
		pq.Array(guardianIDs))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query guardians")
	}
	defer rows.Close()

	var resolved []Guardian
	for rows.Next() {
		var g Guardian
		if err := rows.Scan(&g.ID, &g.Name, &g.Email, &g.Phone); err != nil {
			return nil, errors.Wrap(err, "failed to scan guardian row")
		}
		resolved = append(resolved, g)
	}
	return resolved, errors.Wrap(rows.Err(), "failed to iterate guardian rows")
}
