package medvault_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/hengadev/medvault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	patientIdentifier = "AS-1234-5678"
	patientDOB        = "1990-01-15"
	patientCode       = "123456"
)

func registerTestPatient(identity *medvault.SimpleTestIdentity) {
	identity.RegisterPatient(patientIdentifier, "patient-1", patientDOB, patientCode,
		medvault.Contact{Name: "Jordan Lee", Phone: "+33123456789"})
}

func TestVaultNewValidation(t *testing.T) {
	ctx := context.Background()

	stores := medvault.Stores{
		Blobs:    medvault.NewInMemoryBlobStore(),
		Grants:   medvault.NewInMemoryGrantStore(),
		Sessions: medvault.NewInMemorySessionStore(),
		Audit:    medvault.NewInMemoryAuditLog(),
		Secrets:  medvault.NewInMemorySecretStore(),
	}

	_, err := medvault.New(ctx, nil, stores, medvault.Config{ServiceAlias: "x"})
	assert.ErrorIs(t, err, medvault.ErrInvalidConfiguration)

	_, err = medvault.New(ctx, medvault.NewSimpleTestIdentity(), medvault.Stores{}, medvault.Config{ServiceAlias: "x"})
	assert.ErrorIs(t, err, medvault.ErrInvalidConfiguration)

	_, err = medvault.New(ctx, medvault.NewSimpleTestIdentity(), stores, medvault.Config{})
	assert.ErrorIs(t, err, medvault.ErrInvalidConfiguration)

	// Stores are fine but no pepper was ever provisioned for the alias.
	_, err = medvault.New(ctx, medvault.NewSimpleTestIdentity(), stores, medvault.Config{ServiceAlias: "x"})
	assert.ErrorIs(t, err, medvault.ErrStoreUnavailable)
}

func TestLoginDerivesDeterministicSessionKey(t *testing.T) {
	ctx := context.Background()
	v, identity, _, err := medvault.NewTestVault(ctx)
	require.NoError(t, err)
	registerTestPatient(identity)

	s1, err := v.Login(ctx, patientIdentifier, patientDOB, patientCode)
	require.NoError(t, err)
	assert.Equal(t, "patient-1", s1.PatientID)
	assert.True(t, s1.Active())

	blobKey, err := v.StoreRecord(ctx, s1, []byte("blood work 2026-02"))
	require.NoError(t, err)
	v.Logout(s1)
	assert.False(t, s1.Active())

	// A fresh login re-derives the same key; yesterday's blobs stay
	// readable.
	s2, err := v.Login(ctx, patientIdentifier, patientDOB, patientCode)
	require.NoError(t, err)
	plaintext, err := v.FetchRecord(ctx, s2, blobKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("blood work 2026-02"), plaintext)
}

func TestLoginFailuresAndLockout(t *testing.T) {
	ctx := context.Background()
	clock := medvault.NewTestClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	v, identity, _, err := medvault.NewTestVault(ctx, medvault.WithClock(clock.Now))
	require.NoError(t, err)
	registerTestPatient(identity)

	_, err = v.Login(ctx, patientIdentifier, patientDOB, "000000")
	require.ErrorIs(t, err, medvault.ErrAuthenticationFailed)
	assert.Contains(t, err.Error(), "attempt 1 of 3")

	_, err = v.Login(ctx, patientIdentifier, patientDOB, "000000")
	require.ErrorIs(t, err, medvault.ErrAuthenticationFailed)
	assert.Contains(t, err.Error(), "attempt 2 of 3")

	_, err = v.Login(ctx, patientIdentifier, patientDOB, "000000")
	assert.ErrorIs(t, err, medvault.ErrAccountLocked)

	// Even the correct code is refused during the cooldown.
	_, err = v.Login(ctx, patientIdentifier, patientDOB, patientCode)
	assert.ErrorIs(t, err, medvault.ErrAccountLocked)

	clock.Advance(medvault.DefaultLockoutCooldown + time.Second)
	sess, err := v.Login(ctx, patientIdentifier, patientDOB, patientCode)
	require.NoError(t, err)
	assert.True(t, sess.Active())
}

func TestLoginSuccessResetsFailureCounter(t *testing.T) {
	ctx := context.Background()
	v, identity, _, err := medvault.NewTestVault(ctx)
	require.NoError(t, err)
	registerTestPatient(identity)

	_, err = v.Login(ctx, patientIdentifier, patientDOB, "000000")
	require.ErrorIs(t, err, medvault.ErrAuthenticationFailed)
	_, err = v.Login(ctx, patientIdentifier, patientDOB, "000000")
	require.ErrorIs(t, err, medvault.ErrAuthenticationFailed)

	_, err = v.Login(ctx, patientIdentifier, patientDOB, patientCode)
	require.NoError(t, err)

	// The counter started over; the next failure reads attempt 1 again.
	_, err = v.Login(ctx, patientIdentifier, patientDOB, "000000")
	require.ErrorIs(t, err, medvault.ErrAuthenticationFailed)
	assert.Contains(t, err.Error(), "attempt 1 of 3")
}

func TestStoreRecordRequiresLiveSession(t *testing.T) {
	ctx := context.Background()
	v, identity, _, err := medvault.NewTestVault(ctx)
	require.NoError(t, err)
	registerTestPatient(identity)

	sess, err := v.Login(ctx, patientIdentifier, patientDOB, patientCode)
	require.NoError(t, err)
	v.Logout(sess)

	_, err = v.StoreRecord(ctx, sess, []byte("late write"))
	assert.ErrorIs(t, err, medvault.ErrAuthenticationFailed)
}

func TestSharingLifecycle(t *testing.T) {
	ctx := context.Background()
	v, identity, _, err := medvault.NewTestVault(ctx)
	require.NoError(t, err)
	registerTestPatient(identity)

	doctorKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	identity.RegisterDoctor("doctor-2", &doctorKey.PublicKey)

	sess, err := v.Login(ctx, patientIdentifier, patientDOB, patientCode)
	require.NoError(t, err)

	blobKey, err := v.StoreRecord(ctx, sess, []byte("cardiology report"))
	require.NoError(t, err)

	grant, err := v.ShareWithDoctor(ctx, sess, "doctor-2", medvault.AccessRead, 0)
	require.NoError(t, err)
	assert.Equal(t, "patient-1", grant.PatientID)

	// The wrapped capability is not the raw key and only the device private
	// key turns it back into one.
	assert.NotEmpty(t, grant.WrappedMasterKey)

	plaintext, err := v.DoctorFetchRecord(ctx, "doctor-2", "patient-1", blobKey, doctorKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("cardiology report"), plaintext)

	require.NoError(t, v.RevokeGrant(ctx, sess, grant.GrantID))

	probe, err := v.CheckGrant(ctx, "doctor-2", "patient-1")
	require.NoError(t, err)
	assert.Nil(t, probe)

	_, err = v.DoctorFetchRecord(ctx, "doctor-2", "patient-1", blobKey, doctorKey)
	assert.ErrorIs(t, err, medvault.ErrGrantNotFound,
		"revocation wins over any later read attempt")

	// The audit trail holds the full story.
	entries, err := v.AuditTrail(ctx, "patient-1",
		medvault.AuditGrantIssued, medvault.AuditGrantRevoked, medvault.AuditAccessChecked)
	require.NoError(t, err)
	assert.Len(t, entries, 4, "issue, revoke and two access checks")
}

func TestRevokeGrantOwnership(t *testing.T) {
	ctx := context.Background()
	v, identity, _, err := medvault.NewTestVault(ctx)
	require.NoError(t, err)
	registerTestPatient(identity)
	identity.RegisterPatient("BT-0000-0001", "patient-2", "1985-06-02", "222222",
		medvault.Contact{Name: "Sam Park", Phone: "+33600000000"})

	doctorKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	identity.RegisterDoctor("doctor-2", &doctorKey.PublicKey)

	s1, err := v.Login(ctx, patientIdentifier, patientDOB, patientCode)
	require.NoError(t, err)
	grant, err := v.ShareWithDoctor(ctx, s1, "doctor-2", medvault.AccessRead, 0)
	require.NoError(t, err)

	s2, err := v.Login(ctx, "BT-0000-0001", "1985-06-02", "222222")
	require.NoError(t, err)

	err = v.RevokeGrant(ctx, s2, grant.GrantID)
	assert.ErrorIs(t, err, medvault.ErrGrantNotFound,
		"a patient can only revoke their own grants")
}

func TestEmergencyProfileAndBreakGlassEndToEnd(t *testing.T) {
	ctx := context.Background()
	clock := medvault.NewTestClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	notifier := &medvault.RecordingNotifier{}
	v, identity, _, err := medvault.NewTestVault(ctx,
		medvault.WithClock(clock.Now),
		medvault.WithNotifier(notifier),
		medvault.WithMetrics(medvault.NewInMemoryMetricsCollector()),
	)
	require.NoError(t, err)
	registerTestPatient(identity)

	sess, err := v.Login(ctx, patientIdentifier, patientDOB, patientCode)
	require.NoError(t, err)
	require.NoError(t, v.UpdateEmergencyProfile(ctx, sess, testEmergencyData()))
	v.Logout(sess)

	session, err := v.RequestBreakGlass(ctx, medvault.BreakGlassRequest{
		ResponderID:       "responder-7",
		PatientIdentifier: patientIdentifier,
		Location:          &medvault.GeoLocation{Latitude: 48.85661, Longitude: 2.35222},
		Reason:            "collapsed at metro station",
	})
	require.NoError(t, err)
	require.Len(t, notifier.Sent(), 1)

	data, err := v.FetchEmergencyData(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "O-", data.BloodGroup)
	assert.Equal(t, []string{"penicillin"}, data.Allergies)
	assert.Equal(t, []string{"insulin"}, data.CriticalMedications)

	clock.Advance(medvault.DefaultBreakGlassTTL + time.Second)

	_, err = v.FetchEmergencyData(ctx, session.SessionID)
	assert.ErrorIs(t, err, medvault.ErrSessionExpired)

	refreshed, err := v.ExpireBreakGlassIfDue(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, medvault.SessionExpired, refreshed.State)
}

func TestEmergencyProfileReSealOnEdit(t *testing.T) {
	ctx := context.Background()
	v, identity, _, err := medvault.NewTestVault(ctx)
	require.NoError(t, err)
	registerTestPatient(identity)

	sess, err := v.Login(ctx, patientIdentifier, patientDOB, patientCode)
	require.NoError(t, err)
	require.NoError(t, v.UpdateEmergencyProfile(ctx, sess, testEmergencyData()))

	updated := testEmergencyData()
	updated.Allergies = append(updated.Allergies, "latex")
	require.NoError(t, v.UpdateEmergencyProfile(ctx, sess, updated))

	session, err := v.RequestBreakGlass(ctx, medvault.BreakGlassRequest{
		ResponderID:       "responder-7",
		PatientIdentifier: patientIdentifier,
		Location:          &medvault.GeoLocation{Latitude: 48.85661, Longitude: 2.35222},
	})
	require.NoError(t, err)

	data, err := v.FetchEmergencyData(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"penicillin", "latex"}, data.Allergies,
		"break-glass always reads the latest sealed profile")
}
