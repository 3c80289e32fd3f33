package medvault

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// GrantManager enforces "a doctor may read only if an active, unexpired
// grant exists". Every issuance, revocation and authorized access is
// append-logged; authorization always re-reads current store state at call
// time and is never answered from a cache.
//
// Known limitation, documented rather than solved: revoking a grant stops
// any further release of the wrapped key, but it cannot claw back a master
// key a doctor's device already unwrapped and cached. That is a fundamental
// property of symmetric envelope sharing.
type GrantManager struct {
	store   GrantStore
	audit   AuditLog
	clock   Clock
	logger  *slog.Logger
	metrics MetricsCollector
}

// NewGrantManager wires a grant manager over a store and audit log.
func NewGrantManager(store GrantStore, audit AuditLog, clock Clock, logger *slog.Logger, metrics MetricsCollector) *GrantManager {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &GrantManager{store: store, audit: audit, clock: clock, logger: logger, metrics: metrics}
}

// Grant issues a capability for one doctor. The store performs an atomic
// insert-if-no-active-grant, so two concurrent calls for the same pair
// cannot both succeed; the loser fails with ErrGrantConflict. A ttl of zero
// means the grant has no expiry.
func (m *GrantManager) Grant(ctx context.Context, patientID, doctorID string, wrappedKey []byte, level AccessLevel, ttl time.Duration) (*AccessGrant, error) {
	if patientID == "" || doctorID == "" {
		return nil, fmt.Errorf("%w: patient and doctor ids are required", ErrInvalidConfiguration)
	}
	if len(wrappedKey) == 0 {
		return nil, fmt.Errorf("%w: wrapped master key is required", ErrInvalidConfiguration)
	}
	if !level.Valid() {
		return nil, fmt.Errorf("%w: unknown access level %q", ErrInvalidConfiguration, level)
	}

	now := m.clock()
	grant := &AccessGrant{
		GrantID:          uuid.NewString(),
		PatientID:        patientID,
		DoctorID:         doctorID,
		WrappedMasterKey: wrappedKey,
		Level:            level,
		GrantedAt:        now,
		IsActive:         true,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		grant.ExpiresAt = &exp
	}

	if err := m.store.Insert(ctx, grant); err != nil {
		return nil, err
	}

	m.metrics.IncrementCounter("medvault.grant.issued", map[string]string{"level": string(level)})
	m.appendAudit(ctx, AuditEntry{
		PatientID:   patientID,
		Action:      AuditGrantIssued,
		PerformedBy: patientID,
		Details: map[string]string{
			"grant_id":  grant.GrantID,
			"doctor_id": doctorID,
			"level":     string(level),
		},
	})
	return grant, nil
}

// Revoke terminally deactivates a grant. Revoking an already revoked grant
// is an idempotent no-op and writes no second audit entry.
func (m *GrantManager) Revoke(ctx context.Context, grantID, revokedBy string) error {
	grant, err := m.store.Get(ctx, grantID)
	if err != nil {
		return err
	}

	flipped, err := m.store.Revoke(ctx, grantID, m.clock())
	if err != nil {
		return err
	}
	if !flipped {
		return nil
	}

	m.metrics.IncrementCounter("medvault.grant.revoked", nil)
	m.appendAudit(ctx, AuditEntry{
		PatientID:   grant.PatientID,
		Action:      AuditGrantRevoked,
		PerformedBy: revokedBy,
		Details: map[string]string{
			"grant_id":  grantID,
			"doctor_id": grant.DoctorID,
		},
	})
	return nil
}

// CheckGrant returns the active, unexpired grant for the pair, or nil when
// no such grant exists. This is a probe: it writes no audit entry. It always
// re-reads the store.
func (m *GrantManager) CheckGrant(ctx context.Context, doctorID, patientID string) (*AccessGrant, error) {
	grant, err := m.store.ActiveGrant(ctx, doctorID, patientID)
	if err != nil {
		return nil, err
	}
	if !grant.Usable(m.clock()) {
		return nil, nil
	}
	return grant, nil
}

// Authorize is the single gate consulted before any doctor-initiated read.
// Unlike CheckGrant it records the access check in the audit log, because it
// precedes an actual data access rather than a probe. The wrapped key is
// only ever released through the grant this returns, so a revocation that
// landed before this call wins: authorization is re-checked at the moment of
// use, never cached across calls.
func (m *GrantManager) Authorize(ctx context.Context, doctorID, patientID string) (*AccessGrant, error) {
	start := m.clock()
	grant, err := m.CheckGrant(ctx, doctorID, patientID)
	if err != nil {
		return nil, err
	}

	granted := grant != nil
	m.metrics.RecordTiming("medvault.grant.check", m.clock().Sub(start), map[string]string{"granted": fmt.Sprintf("%t", granted)})
	m.appendAudit(ctx, AuditEntry{
		PatientID:   patientID,
		Action:      AuditAccessChecked,
		PerformedBy: doctorID,
		Details: map[string]string{
			"doctor_id": doctorID,
			"granted":   fmt.Sprintf("%t", granted),
		},
	})

	if !granted {
		return nil, fmt.Errorf("%w: no active grant for doctor %s", ErrGrantNotFound, doctorID)
	}
	return grant, nil
}

// ListByPatient returns a patient's grants, newest first.
func (m *GrantManager) ListByPatient(ctx context.Context, patientID string) ([]*AccessGrant, error) {
	return m.store.ListByPatient(ctx, patientID)
}

func (m *GrantManager) appendAudit(ctx context.Context, entry AuditEntry) {
	entry.LogID = uuid.NewString()
	entry.Timestamp = m.clock()
	if err := m.audit.Append(ctx, entry); err != nil {
		// The audit log is append-only and unique on log id; a failed write
		// is surfaced to operators through logs, not to the caller.
		m.logger.Error("audit append failed",
			slog.String("action", string(entry.Action)),
			slog.String("patient_id", entry.PatientID),
			slog.Any("error", err))
	}
}
