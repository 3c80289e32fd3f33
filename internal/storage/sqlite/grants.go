package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hengadev/medvault"
)

// GrantStore implements medvault.GrantStore on SQLite.
type GrantStore struct {
	db *sql.DB
}

func (s *GrantStore) Insert(ctx context.Context, grant *medvault.AccessGrant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_grants
			(grant_id, patient_id, doctor_id, wrapped_key, level, granted_at, expires_at, is_active, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		grant.GrantID, grant.PatientID, grant.DoctorID, grant.WrappedMasterKey,
		string(grant.Level), grant.GrantedAt, nullableTime(grant.ExpiresAt),
		boolToInt(grant.IsActive), nullableTime(grant.RevokedAt),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: doctor %s for patient %s",
				medvault.ErrGrantConflict, grant.DoctorID, grant.PatientID)
		}
		return fmt.Errorf("%w: %v", medvault.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *GrantStore) Get(ctx context.Context, grantID string) (*medvault.AccessGrant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT grant_id, patient_id, doctor_id, wrapped_key, level, granted_at, expires_at, is_active, revoked_at
		FROM access_grants WHERE grant_id = ?`, grantID)
	grant, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", medvault.ErrGrantNotFound, grantID)
	}
	return grant, err
}

func (s *GrantStore) ActiveGrant(ctx context.Context, doctorID, patientID string) (*medvault.AccessGrant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT grant_id, patient_id, doctor_id, wrapped_key, level, granted_at, expires_at, is_active, revoked_at
		FROM access_grants
		WHERE doctor_id = ? AND patient_id = ? AND is_active = 1`, doctorID, patientID)
	grant, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return grant, err
}

// Revoke is a compare-and-swap: the WHERE is_active = 1 clause means at most
// one caller ever observes the flip.
func (s *GrantStore) Revoke(ctx context.Context, grantID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE access_grants SET is_active = 0, revoked_at = ?
		WHERE grant_id = ? AND is_active = 1`, at, grantID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", medvault.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Distinguish "already revoked" from "no such grant".
		if _, err := s.Get(ctx, grantID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *GrantStore) ListByPatient(ctx context.Context, patientID string) ([]*medvault.AccessGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT grant_id, patient_id, doctor_id, wrapped_key, level, granted_at, expires_at, is_active, revoked_at
		FROM access_grants WHERE patient_id = ? ORDER BY granted_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", medvault.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var grants []*medvault.AccessGrant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (*medvault.AccessGrant, error) {
	var g medvault.AccessGrant
	var level string
	var active int
	var expiresAt, revokedAt sql.NullTime
	err := row.Scan(&g.GrantID, &g.PatientID, &g.DoctorID, &g.WrappedMasterKey,
		&level, &g.GrantedAt, &expiresAt, &active, &revokedAt)
	if err != nil {
		return nil, err
	}
	g.Level = medvault.AccessLevel(level)
	g.IsActive = active == 1
	if expiresAt.Valid {
		g.ExpiresAt = &expiresAt.Time
	}
	if revokedAt.Valid {
		g.RevokedAt = &revokedAt.Time
	}
	return &g, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
