package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/medvault"
	"github.com/hengadev/medvault/internal/storage/sqlite"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), t.TempDir(), "vault.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newGrant(patientID, doctorID string) *medvault.AccessGrant {
	return &medvault.AccessGrant{
		GrantID:          uuid.NewString(),
		PatientID:        patientID,
		DoctorID:         doctorID,
		WrappedMasterKey: []byte("wrapped-key-material"),
		Level:            medvault.AccessRead,
		GrantedAt:        time.Now().UTC(),
		IsActive:         true,
	}
}

func TestGrantStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	grants := openTestStore(t).Grants()

	exp := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	grant := newGrant("patient-1", "doctor-1")
	grant.ExpiresAt = &exp
	require.NoError(t, grants.Insert(ctx, grant))

	got, err := grants.Get(ctx, grant.GrantID)
	require.NoError(t, err)
	assert.Equal(t, grant.GrantID, got.GrantID)
	assert.Equal(t, grant.WrappedMasterKey, got.WrappedMasterKey)
	assert.Equal(t, medvault.AccessRead, got.Level)
	assert.True(t, got.IsActive)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, exp.Equal(got.ExpiresAt.UTC()))
	assert.Nil(t, got.RevokedAt)
}

func TestGrantStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	grants := openTestStore(t).Grants()

	_, err := grants.Get(ctx, "no-such-grant")
	assert.ErrorIs(t, err, medvault.ErrGrantNotFound)
}

func TestGrantStoreUniqueActivePair(t *testing.T) {
	ctx := context.Background()
	grants := openTestStore(t).Grants()

	require.NoError(t, grants.Insert(ctx, newGrant("patient-1", "doctor-1")))

	// The engine, not application code, rejects the second active grant.
	err := grants.Insert(ctx, newGrant("patient-1", "doctor-1"))
	assert.ErrorIs(t, err, medvault.ErrGrantConflict)

	// Other pairs are unaffected.
	require.NoError(t, grants.Insert(ctx, newGrant("patient-1", "doctor-2")))
	require.NoError(t, grants.Insert(ctx, newGrant("patient-2", "doctor-1")))
}

func TestGrantStoreReissueAfterRevoke(t *testing.T) {
	ctx := context.Background()
	grants := openTestStore(t).Grants()

	first := newGrant("patient-1", "doctor-1")
	require.NoError(t, grants.Insert(ctx, first))

	flipped, err := grants.Revoke(ctx, first.GrantID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, flipped)

	// With the old grant inactive the partial index no longer blocks a new
	// one for the same pair.
	require.NoError(t, grants.Insert(ctx, newGrant("patient-1", "doctor-1")))
}

func TestGrantStoreRevokeSemantics(t *testing.T) {
	ctx := context.Background()
	grants := openTestStore(t).Grants()

	grant := newGrant("patient-1", "doctor-1")
	require.NoError(t, grants.Insert(ctx, grant))

	flipped, err := grants.Revoke(ctx, grant.GrantID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, flipped)

	got, err := grants.Get(ctx, grant.GrantID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.NotNil(t, got.RevokedAt)

	// Second revoke observes no flip and no error.
	flipped, err = grants.Revoke(ctx, grant.GrantID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, flipped)

	// Revoking a grant that never existed is an error, not a no-op.
	_, err = grants.Revoke(ctx, "no-such-grant", time.Now().UTC())
	assert.ErrorIs(t, err, medvault.ErrGrantNotFound)
}

func TestGrantStoreActiveGrant(t *testing.T) {
	ctx := context.Background()
	grants := openTestStore(t).Grants()

	got, err := grants.ActiveGrant(ctx, "doctor-1", "patient-1")
	require.NoError(t, err)
	assert.Nil(t, got, "no grant means nil without error")

	grant := newGrant("patient-1", "doctor-1")
	require.NoError(t, grants.Insert(ctx, grant))

	got, err = grants.ActiveGrant(ctx, "doctor-1", "patient-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, grant.GrantID, got.GrantID)

	_, err = grants.Revoke(ctx, grant.GrantID, time.Now().UTC())
	require.NoError(t, err)

	got, err = grants.ActiveGrant(ctx, "doctor-1", "patient-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGrantStoreListByPatient(t *testing.T) {
	ctx := context.Background()
	grants := openTestStore(t).Grants()

	older := newGrant("patient-1", "doctor-1")
	older.GrantedAt = time.Now().UTC().Add(-time.Hour)
	newer := newGrant("patient-1", "doctor-2")
	require.NoError(t, grants.Insert(ctx, older))
	require.NoError(t, grants.Insert(ctx, newer))
	require.NoError(t, grants.Insert(ctx, newGrant("patient-2", "doctor-1")))

	list, err := grants.ListByPatient(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.GrantID, list[0].GrantID, "newest first")
	assert.Equal(t, older.GrantID, list[1].GrantID)
}

func newSession(patientID string) *medvault.BreakGlassSession {
	now := time.Now().UTC()
	return &medvault.BreakGlassSession{
		SessionID:    uuid.NewString(),
		PatientID:    patientID,
		RequestedBy:  "responder-7",
		CredentialID: "AS-1234-5678",
		Reason:       "roadside emergency",
		Location:     &medvault.GeoLocation{Latitude: 48.85661, Longitude: 2.35222, Accuracy: 8},
		StartedAt:    now,
		ExpiresAt:    now.Add(5 * time.Minute),
		IsActive:     true,
		State:        medvault.SessionActive,
	}
}

func TestSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	sessions := openTestStore(t).Sessions()

	sess := newSession("patient-1")
	require.NoError(t, sessions.Insert(ctx, sess))

	got, err := sessions.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sess.SessionID, got.SessionID)
	assert.Equal(t, medvault.SessionActive, got.State)
	require.NotNil(t, got.Location)
	assert.InDelta(t, 48.85661, got.Location.Latitude, 1e-9)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.EndedAt)
}

func TestSessionStoreRefusesMissingLocation(t *testing.T) {
	ctx := context.Background()
	sessions := openTestStore(t).Sessions()

	sess := newSession("patient-1")
	sess.Location = nil
	err := sessions.Insert(ctx, sess)
	assert.ErrorIs(t, err, medvault.ErrGeolocationRequired)
}

func TestSessionStoreDeactivateOnce(t *testing.T) {
	ctx := context.Background()
	sessions := openTestStore(t).Sessions()

	sess := newSession("patient-1")
	require.NoError(t, sessions.Insert(ctx, sess))

	flipped, err := sessions.Deactivate(ctx, sess.SessionID, medvault.SessionExpired, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, flipped)

	got, err := sessions.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, medvault.SessionExpired, got.State)
	assert.NotNil(t, got.EndedAt)

	// The losing racer sees no flip; the state set first stays.
	flipped, err = sessions.Deactivate(ctx, sess.SessionID, medvault.SessionEnded, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, flipped)

	got, err = sessions.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, medvault.SessionExpired, got.State)

	_, err = sessions.Deactivate(ctx, "no-such-session", medvault.SessionEnded, time.Now().UTC())
	assert.ErrorIs(t, err, medvault.ErrSessionNotFound)
}

func TestAuditLogAppendAndQuery(t *testing.T) {
	ctx := context.Background()
	audit := openTestStore(t).Audit()

	base := time.Now().UTC().Truncate(time.Second)
	entries := []medvault.AuditEntry{
		{
			LogID: uuid.NewString(), PatientID: "patient-1",
			Action: medvault.AuditGrantIssued, PerformedBy: "patient-1",
			Timestamp: base, Details: map[string]string{"doctor_id": "doctor-1"},
		},
		{
			LogID: uuid.NewString(), PatientID: "patient-1",
			Action: medvault.AuditAccessChecked, PerformedBy: "doctor-1",
			Timestamp: base.Add(time.Minute),
		},
		{
			LogID: uuid.NewString(), PatientID: "patient-1",
			Action: medvault.AuditGrantRevoked, PerformedBy: "patient-1",
			Timestamp: base.Add(2 * time.Minute),
		},
		{
			LogID: uuid.NewString(), PatientID: "patient-2",
			Action: medvault.AuditGrantIssued, PerformedBy: "patient-2",
			Timestamp: base,
		},
	}
	for _, e := range entries {
		require.NoError(t, audit.Append(ctx, e))
	}

	all, err := audit.Query(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, medvault.AuditGrantRevoked, all[0].Action, "newest first")
	assert.Equal(t, medvault.AuditGrantIssued, all[2].Action)
	assert.Equal(t, "doctor-1", all[2].Details["doctor_id"])

	filtered, err := audit.Query(ctx, "patient-1", medvault.AuditGrantIssued, medvault.AuditGrantRevoked)
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, medvault.AuditGrantRevoked, filtered[0].Action)
	assert.Equal(t, medvault.AuditGrantIssued, filtered[1].Action)
}

func TestAuditLogRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	audit := openTestStore(t).Audit()

	entry := medvault.AuditEntry{
		LogID: uuid.NewString(), PatientID: "patient-1",
		Action: medvault.AuditGrantIssued, PerformedBy: "patient-1",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, audit.Append(ctx, entry))

	err := audit.Append(ctx, entry)
	assert.ErrorContains(t, err, "duplicate audit log id")
}
