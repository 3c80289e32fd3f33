package medvault

import (
	"context"
	"crypto/rsa"
	"time"
)

// IdentityService is the authentication collaborator. It owns the challenge
// flow (card lookup, date-of-birth match, one-time code with its 5-minute
// expiry and 3-attempt lockout) and hands back independently verified
// booleans plus contact and public-key material. This package trusts those
// results; it never sees passwords or codes other than the final verified
// code used for derivation.
type IdentityService interface {
	// Verify runs the triple-factor check for a patient login.
	Verify(ctx context.Context, identifier CareID, dateOfBirth, code string) (VerifiedFactors, error)

	// ResolvePatient maps a care identifier to an internal patient id, used
	// when a responder requests break-glass access. Fails with
	// ErrPatientNotFound if the identifier maps to nobody.
	ResolvePatient(ctx context.Context, identifier CareID) (string, error)

	// DoctorPublicKey fetches a doctor's device public key. The key comes
	// from the identity provider's registry, never from the client asking
	// for access.
	DoctorPublicKey(ctx context.Context, doctorID string) (*rsa.PublicKey, error)

	// PatientContact returns where to send break-glass notifications.
	PatientContact(ctx context.Context, patientID string) (Contact, error)
}

// BlobStore is opaque byte storage for encrypted record blobs. It never
// inspects content; everything it holds is sealed before it arrives.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// GrantStore persists access grants. Implementations must make Insert an
// atomic insert-if-no-active-grant per (patientID, doctorID) pair, never a
// read-then-write sequence, and Revoke an idempotent compare-and-swap on
// IsActive.
type GrantStore interface {
	// Insert persists a new grant. Fails with ErrGrantConflict if an active
	// grant already exists for the same (patient, doctor) pair.
	Insert(ctx context.Context, grant *AccessGrant) error

	// Get fetches a grant by id. Fails with ErrGrantNotFound.
	Get(ctx context.Context, grantID string) (*AccessGrant, error)

	// ActiveGrant returns the single active grant for the pair, or nil when
	// there is none. Callers re-check expiry against the clock themselves.
	ActiveGrant(ctx context.Context, doctorID, patientID string) (*AccessGrant, error)

	// Revoke flips IsActive false exactly once. The bool reports whether
	// this call performed the flip; false means it had already happened.
	Revoke(ctx context.Context, grantID string, at time.Time) (bool, error)

	// ListByPatient returns all grants for a patient, newest first.
	ListByPatient(ctx context.Context, patientID string) ([]*AccessGrant, error)
}

// SessionStore persists break-glass sessions. Deactivate must be a
// compare-and-swap on IsActive (true to false) so concurrent expirers
// converge without duplicate effects.
type SessionStore interface {
	Insert(ctx context.Context, session *BreakGlassSession) error

	// Get fetches a session by id. Fails with ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*BreakGlassSession, error)

	// Deactivate moves an active session to the given terminal state. The
	// bool reports whether this call performed the flip.
	Deactivate(ctx context.Context, sessionID string, state SessionState, at time.Time) (bool, error)

	// ListByPatient returns all sessions targeting a patient, newest first.
	ListByPatient(ctx context.Context, patientID string) ([]*BreakGlassSession, error)
}

// AuditLog is the append-only log collaborator. Append is write-once under
// a uniqueness constraint on LogID; no update or delete exists.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error

	// Query returns a patient's entries, newest first, optionally filtered
	// by action.
	Query(ctx context.Context, patientID string, actions ...AuditAction) ([]AuditEntry, error)
}

// Notifier delivers best-effort messages. A failed send is logged by the
// caller and swallowed; it never fails the flow that triggered it.
type Notifier interface {
	Send(ctx context.Context, to Contact, message string) error
}

// SecretStore holds the service pepper and escrowed emergency keys.
// Implementations live in providers/ (HashiCorp Vault KV v2) and in the
// in-memory store used for tests.
type SecretStore interface {
	StorePepper(ctx context.Context, alias string, pepper []byte) error
	GetPepper(ctx context.Context, alias string) ([]byte, error)

	// StoreEmergencyKey escrows a patient's emergency key. Escrow is what
	// makes break-glass possible without the master key; it is scoped to
	// the emergency subset and is a deliberate disclosure tradeoff.
	StoreEmergencyKey(ctx context.Context, patientID string, key []byte) error
	GetEmergencyKey(ctx context.Context, patientID string) ([]byte, error)
}

// Clock abstracts time for deterministic expiry tests.
type Clock func() time.Time
