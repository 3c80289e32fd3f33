package medvault

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Stores bundles the persistence collaborators a Vault needs. In-memory
// implementations for all of them ship with this package; durable sqlite
// stores live in internal/storage/sqlite and cloud providers under
// providers/.
type Stores struct {
	Blobs    BlobStore
	Grants   GrantStore
	Sessions SessionStore
	Audit    AuditLog
	Secrets  SecretStore
}

func (s Stores) validate() error {
	if s.Blobs == nil || s.Grants == nil || s.Sessions == nil || s.Audit == nil || s.Secrets == nil {
		return fmt.Errorf("%w: all stores are required", ErrInvalidConfiguration)
	}
	return nil
}

// Vault is the key-management and access-control core. It ties master-key
// derivation, envelope encryption of record blobs, capability sharing with
// doctors, the emergency-key tier and the break-glass lifecycle to a set of
// injected collaborators. All state beyond the stores lives in the
// PatientSession values it hands out.
type Vault struct {
	identity  IdentityService
	stores    Stores
	cfg       Config
	pepper    [PepperLength]byte
	kdfParams *KDFParams
	clock     Clock
	logger    *slog.Logger
	metrics   MetricsCollector
	notifier  Notifier

	grants     *GrantManager
	breakGlass *BreakGlassManager
	lockouts   *lockoutTracker
}

// New creates a Vault, retrieving the service pepper from the secret store
// and wiring the grant and break-glass managers.
func New(ctx context.Context, identity IdentityService, stores Stores, cfg Config, opts ...VaultOption) (*Vault, error) {
	if identity == nil {
		return nil, fmt.Errorf("%w: identity service is required", ErrInvalidConfiguration)
	}
	if err := stores.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v := &Vault{
		identity: identity,
		stores:   stores,
		cfg:      cfg,
		kdfParams: &KDFParams{
			Iterations: cfg.KDFIterations,
			SaltLength: 32,
		},
		clock:    time.Now,
		logger:   slog.Default(),
		metrics:  &NoOpMetricsCollector{},
		notifier: noopNotifier{},
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	pepperBytes, err := stores.Secrets.GetPepper(ctx, cfg.ServiceAlias)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve pepper for alias %q: %w", cfg.ServiceAlias, err)
	}
	if err := validatePepper(pepperBytes); err != nil {
		return nil, err
	}
	copy(v.pepper[:], pepperBytes)

	v.lockouts = newLockoutTracker(cfg.LockoutCooldown, v.clock)
	v.grants = NewGrantManager(stores.Grants, stores.Audit, v.clock, v.logger, v.metrics)
	v.breakGlass = NewBreakGlassManager(
		stores.Sessions, stores.Audit, identity, stores.Secrets, stores.Blobs,
		v.notifier, v.clock, v.logger, v.metrics, cfg.BreakGlassTTL,
	)
	return v, nil
}

// Login runs the triple-factor verification through the identity provider
// and, only as the final step of a fully verified attempt, derives the
// session master key. A stale or mismatched code never reaches derivation.
// Repeated failures surface a visible attempt counter and engage a cooldown
// lock after the third.
func (v *Vault) Login(ctx context.Context, identifier, dateOfBirth, code string) (*PatientSession, error) {
	careID, err := ParseCareID(identifier)
	if err != nil {
		return nil, err
	}
	if v.lockouts.locked(careID.String()) {
		return nil, ErrAccountLocked
	}

	factors, err := v.identity.Verify(ctx, careID, dateOfBirth, code)
	if err != nil {
		return nil, fmt.Errorf("identity verification failed: %w", err)
	}
	if !factors.AllMatch() {
		attempt, lockedNow := v.lockouts.fail(careID.String())
		v.metrics.IncrementCounter("medvault.login.failed", nil)
		if lockedNow {
			return nil, fmt.Errorf("%w: cooldown engaged after %d attempts", ErrAccountLocked, attempt)
		}
		return nil, NewAuthenticationFailedError(attempt, MaxLoginAttempts)
	}
	v.lockouts.reset(careID.String())

	start := v.clock()
	mk, err := DeriveMasterKey(careID.String(), code, v.pepper[:], v.kdfParams)
	if err != nil {
		return nil, err
	}
	v.metrics.RecordTiming("medvault.kdf.derive", v.clock().Sub(start), nil)

	return &PatientSession{
		PatientID: factors.PatientID,
		CareID:    careID,
		StartedAt: v.clock(),
		key:       mk,
	}, nil
}

// Logout destroys the session master key. Blobs sealed during the session
// stay readable on the next login because derivation is deterministic.
func (v *Vault) Logout(sess *PatientSession) {
	if sess != nil {
		sess.close()
	}
}

// StoreRecord seals a document under the session master key and uploads it
// to the blob store under a fresh opaque key, which is returned. The store
// sees ciphertext only; not even the document category is inferable from
// what lands there.
func (v *Vault) StoreRecord(ctx context.Context, sess *PatientSession, plaintext []byte) (string, error) {
	if !sess.Active() {
		return "", fmt.Errorf("%w: no live session", ErrAuthenticationFailed)
	}
	blob, err := Encrypt(plaintext, sess.key)
	if err != nil {
		return "", err
	}
	data, err := blob.Marshal()
	if err != nil {
		return "", err
	}
	blobKey := "records/" + sess.PatientID + "/" + uuid.NewString()
	if err := v.stores.Blobs.Put(ctx, blobKey, data); err != nil {
		return "", fmt.Errorf("failed to upload record blob: %w", err)
	}
	return blobKey, nil
}

// FetchRecord downloads and opens one of the patient's own record blobs.
func (v *Vault) FetchRecord(ctx context.Context, sess *PatientSession, blobKey string) ([]byte, error) {
	if !sess.Active() {
		return nil, fmt.Errorf("%w: no live session", ErrAuthenticationFailed)
	}
	return v.fetchAndDecrypt(ctx, blobKey, sess.key, sess.PatientID, sess.PatientID)
}

// DeleteRecord removes a record blob from the store.
func (v *Vault) DeleteRecord(ctx context.Context, sess *PatientSession, blobKey string) error {
	if !sess.Active() {
		return fmt.Errorf("%w: no live session", ErrAuthenticationFailed)
	}
	return v.stores.Blobs.Delete(ctx, blobKey)
}

// ShareWithDoctor wraps the session master key under the doctor's public
// key, fetched from the identity provider's registry, and issues the grant.
// The wrapped capability is safe to persist server-side; only the doctor's
// device can turn it back into key material.
func (v *Vault) ShareWithDoctor(ctx context.Context, sess *PatientSession, doctorID string, level AccessLevel, ttl time.Duration) (*AccessGrant, error) {
	if !sess.Active() {
		return nil, fmt.Errorf("%w: no live session", ErrAuthenticationFailed)
	}
	pub, err := v.identity.DoctorPublicKey(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch public key for doctor %s: %w", doctorID, err)
	}
	wrapped, err := WrapMasterKey(sess.key, pub)
	if err != nil {
		return nil, err
	}
	return v.grants.Grant(ctx, sess.PatientID, doctorID, wrapped, level, ttl)
}

// RevokeGrant terminally deactivates one of the patient's grants.
func (v *Vault) RevokeGrant(ctx context.Context, sess *PatientSession, grantID string) error {
	if !sess.Active() {
		return fmt.Errorf("%w: no live session", ErrAuthenticationFailed)
	}
	grant, err := v.stores.Grants.Get(ctx, grantID)
	if err != nil {
		return err
	}
	if grant.PatientID != sess.PatientID {
		return fmt.Errorf("%w: grant %s does not belong to this patient", ErrGrantNotFound, grantID)
	}
	return v.grants.Revoke(ctx, grantID, sess.PatientID)
}

// CheckGrant probes for an active, unexpired grant. Nil without error means
// no access.
func (v *Vault) CheckGrant(ctx context.Context, doctorID, patientID string) (*AccessGrant, error) {
	return v.grants.CheckGrant(ctx, doctorID, patientID)
}

// DoctorFetchRecord is the doctor-side read path: authorize against current
// grant state, unwrap the master key with the device private key, fetch and
// open the blob. Authorization happens at the moment of use; a revocation
// that landed a millisecond earlier wins and the wrapped key is never
// released.
func (v *Vault) DoctorFetchRecord(ctx context.Context, doctorID, patientID, blobKey string, priv *rsa.PrivateKey) ([]byte, error) {
	grant, err := v.grants.Authorize(ctx, doctorID, patientID)
	if err != nil {
		return nil, err
	}
	mk, err := UnwrapMasterKey(grant.WrappedMasterKey, priv)
	if err != nil {
		return nil, err
	}
	defer mk.Zero()
	return v.fetchAndDecrypt(ctx, blobKey, mk, patientID, doctorID)
}

// UpdateEmergencyProfile re-derives the emergency key from the live master
// key, re-seals the emergency subset under it and escrows the key. Runs
// during normal sessions only; break-glass flows never reach this path or
// the master key behind it.
func (v *Vault) UpdateEmergencyProfile(ctx context.Context, sess *PatientSession, data *EmergencyData) error {
	if !sess.Active() {
		return fmt.Errorf("%w: no live session", ErrAuthenticationFailed)
	}
	ek, err := DeriveEmergencyKey(sess.key)
	if err != nil {
		return err
	}
	defer ek.Zero()

	blob, err := SealEmergencyData(data, ek)
	if err != nil {
		return err
	}
	raw, err := blob.Marshal()
	if err != nil {
		return err
	}
	if err := v.stores.Blobs.Put(ctx, EmergencyBlobKey(sess.PatientID), raw); err != nil {
		return fmt.Errorf("failed to upload emergency blob: %w", err)
	}
	if err := v.stores.Secrets.StoreEmergencyKey(ctx, sess.PatientID, ek.Bytes()); err != nil {
		return fmt.Errorf("failed to escrow emergency key: %w", err)
	}

	v.appendAudit(ctx, AuditEntry{
		PatientID:   sess.PatientID,
		Action:      AuditEmergencyUpdated,
		PerformedBy: sess.PatientID,
	})
	return nil
}

// RequestBreakGlass opens a time-boxed emergency session. See
// BreakGlassManager.Request for the precondition semantics.
func (v *Vault) RequestBreakGlass(ctx context.Context, req BreakGlassRequest) (*BreakGlassSession, error) {
	return v.breakGlass.Request(ctx, req)
}

// EndBreakGlass terminates an emergency session early.
func (v *Vault) EndBreakGlass(ctx context.Context, sessionID, endedBy string) error {
	return v.breakGlass.End(ctx, sessionID, endedBy)
}

// FetchEmergencyData reads the emergency subset through an active
// break-glass session.
func (v *Vault) FetchEmergencyData(ctx context.Context, sessionID string) (*EmergencyData, error) {
	return v.breakGlass.FetchEmergencyData(ctx, sessionID)
}

// ExpireBreakGlassIfDue applies lazy expiry to an emergency session and
// returns its refreshed state.
func (v *Vault) ExpireBreakGlassIfDue(ctx context.Context, sessionID string) (*BreakGlassSession, error) {
	return v.breakGlass.ExpireIfDue(ctx, sessionID)
}

// AuditTrail returns a patient's audit entries, newest first.
func (v *Vault) AuditTrail(ctx context.Context, patientID string, actions ...AuditAction) ([]AuditEntry, error) {
	return v.stores.Audit.Query(ctx, patientID, actions...)
}

// Grants exposes the grant manager for callers that need listing.
func (v *Vault) Grants() *GrantManager { return v.grants }

func (v *Vault) fetchAndDecrypt(ctx context.Context, blobKey string, key SymmetricKey, patientID, reader string) ([]byte, error) {
	data, err := v.stores.Blobs.Get(ctx, blobKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blob %s: %w", blobKey, err)
	}
	blob, err := UnmarshalBlob(data)
	if err != nil {
		return nil, err
	}
	plaintext, err := Decrypt(blob, key)
	if err != nil {
		return nil, err
	}

	v.appendAudit(ctx, AuditEntry{
		PatientID:   patientID,
		Action:      AuditRecordDecrypted,
		PerformedBy: reader,
		Details:     map[string]string{"blob_key": blobKey},
	})
	return plaintext, nil
}

func (v *Vault) appendAudit(ctx context.Context, entry AuditEntry) {
	entry.LogID = uuid.NewString()
	entry.Timestamp = v.clock()
	if err := v.stores.Audit.Append(ctx, entry); err != nil {
		v.logger.Error("audit append failed",
			slog.String("action", string(entry.Action)),
			slog.String("patient_id", entry.PatientID),
			slog.Any("error", err))
	}
}

// noopNotifier drops messages. Used when no notifier is configured.
type noopNotifier struct{}

func (noopNotifier) Send(ctx context.Context, to Contact, message string) error { return nil }
