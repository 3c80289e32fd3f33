package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hengadev/medvault"
)

// SessionStore implements medvault.SessionStore on SQLite.
type SessionStore struct {
	db *sql.DB
}

func (s *SessionStore) Insert(ctx context.Context, session *medvault.BreakGlassSession) error {
	if session.Location == nil {
		// The manager validates this before any write; the store refuses
		// too so no backdoor path can persist a session without a fix.
		return medvault.ErrGeolocationRequired
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO breakglass_sessions
			(session_id, patient_id, requested_by, credential_id, reason,
			 latitude, longitude, accuracy_m, started_at, expires_at, is_active, state, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.PatientID, session.RequestedBy, session.CredentialID,
		session.Reason, session.Location.Latitude, session.Location.Longitude,
		session.Location.Accuracy, session.StartedAt, session.ExpiresAt,
		boolToInt(session.IsActive), string(session.State), nullableTime(session.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", medvault.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*medvault.BreakGlassSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, patient_id, requested_by, credential_id, reason,
		       latitude, longitude, accuracy_m, started_at, expires_at, is_active, state, ended_at
		FROM breakglass_sessions WHERE session_id = ?`, sessionID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", medvault.ErrSessionNotFound, sessionID)
	}
	return session, err
}

// Deactivate flips is_active exactly once. Concurrent expirers race on the
// WHERE clause and all but one see zero rows affected.
func (s *SessionStore) Deactivate(ctx context.Context, sessionID string, state medvault.SessionState, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE breakglass_sessions SET is_active = 0, state = ?, ended_at = ?
		WHERE session_id = ? AND is_active = 1`, string(state), at, sessionID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", medvault.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := s.Get(ctx, sessionID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *SessionStore) ListByPatient(ctx context.Context, patientID string) ([]*medvault.BreakGlassSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, patient_id, requested_by, credential_id, reason,
		       latitude, longitude, accuracy_m, started_at, expires_at, is_active, state, ended_at
		FROM breakglass_sessions WHERE patient_id = ? ORDER BY started_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", medvault.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var sessions []*medvault.BreakGlassSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func scanSession(row rowScanner) (*medvault.BreakGlassSession, error) {
	var sess medvault.BreakGlassSession
	var loc medvault.GeoLocation
	var active int
	var state string
	var endedAt sql.NullTime
	err := row.Scan(&sess.SessionID, &sess.PatientID, &sess.RequestedBy, &sess.CredentialID,
		&sess.Reason, &loc.Latitude, &loc.Longitude, &loc.Accuracy,
		&sess.StartedAt, &sess.ExpiresAt, &active, &state, &endedAt)
	if err != nil {
		return nil, err
	}
	sess.Location = &loc
	sess.IsActive = active == 1
	sess.State = medvault.SessionState(state)
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	return &sess, nil
}
