package medvault

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hengadev/errsx"
)

// BreakGlassRequest is what a first responder submits to open an emergency
// session. The credential identifier is the patient's care id as printed on
// their card or bracelet.
type BreakGlassRequest struct {
	// ResponderID identifies the requesting personnel.
	ResponderID string
	// PatientIdentifier is the structured care identifier of the target
	// patient.
	PatientIdentifier string
	// Location is the responder's geolocation fix. Required; emergency
	// access without a position is refused outright.
	Location *GeoLocation
	// Reason is free text recorded in the audit trail.
	Reason string
}

// BreakGlassManager runs the time-boxed emergency-session state machine:
// REQUESTED -> ACTIVE -> {EXPIRED, ENDED}, both terminal. An active session
// can decrypt exactly one thing, the patient's emergency blob via the
// escrowed emergency key. Nothing a session holds or can reach touches the
// master key.
type BreakGlassManager struct {
	sessions SessionStore
	audit    AuditLog
	identity IdentityService
	secrets  SecretStore
	blobs    BlobStore
	notifier Notifier
	clock    Clock
	logger   *slog.Logger
	metrics  MetricsCollector
	ttl      time.Duration
}

// NewBreakGlassManager wires the emergency-session manager. A zero ttl
// falls back to the fixed 5-minute default.
func NewBreakGlassManager(
	sessions SessionStore,
	audit AuditLog,
	identity IdentityService,
	secrets SecretStore,
	blobs BlobStore,
	notifier Notifier,
	clock Clock,
	logger *slog.Logger,
	metrics MetricsCollector,
	ttl time.Duration,
) *BreakGlassManager {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	if ttl <= 0 {
		ttl = DefaultBreakGlassTTL
	}
	return &BreakGlassManager{
		sessions: sessions,
		audit:    audit,
		identity: identity,
		secrets:  secrets,
		blobs:    blobs,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		ttl:      ttl,
	}
}

// Request validates all three activation preconditions, then atomically
// creates the session: until the credential parses, a geolocation fix is
// present and the target patient resolves, no record of any kind is
// written. Failures name the specific unmet precondition, because a first
// responder needs actionable feedback, not a generic error.
//
// Entering ACTIVE writes exactly one BREAKGLASS_INITIATE audit entry and
// fires a best-effort notification to the patient's contact; a failed
// notification is logged and swallowed, never rolled back into the session.
func (m *BreakGlassManager) Request(ctx context.Context, req BreakGlassRequest) (*BreakGlassSession, error) {
	var errs errsx.Map
	if req.ResponderID == "" {
		errs.Set("responder_id", "responder identity is required")
	}
	if err := errs.AsError(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	careID, err := ParseCareID(req.PatientIdentifier)
	if err != nil {
		return nil, err
	}
	if req.Location == nil {
		return nil, ErrGeolocationRequired
	}
	patientID, err := m.identity.ResolvePatient(ctx, careID)
	if err != nil {
		return nil, err
	}

	now := m.clock()
	session := &BreakGlassSession{
		SessionID:    uuid.NewString(),
		PatientID:    patientID,
		RequestedBy:  req.ResponderID,
		CredentialID: careID.String(),
		Reason:       req.Reason,
		Location:     req.Location,
		StartedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
		IsActive:     true,
		State:        SessionActive,
	}
	if err := m.sessions.Insert(ctx, session); err != nil {
		return nil, err
	}

	m.metrics.IncrementCounter("medvault.breakglass.activated", nil)
	m.appendAudit(ctx, AuditEntry{
		PatientID:   patientID,
		Action:      AuditBreakGlassInitiate,
		PerformedBy: req.ResponderID,
		Details: map[string]string{
			"session_id":    session.SessionID,
			"credential_id": session.CredentialID,
			"latitude":      fmt.Sprintf("%.5f", req.Location.Latitude),
			"longitude":     fmt.Sprintf("%.5f", req.Location.Longitude),
			"reason":        req.Reason,
		},
	})

	m.notifyPatient(ctx, session)
	return session, nil
}

// End is the requester's explicit early termination. The terminal effect is
// the same one-way flip as expiry, with a distinct logged reason. Ending a
// session that already reached a terminal state is a silent no-op.
func (m *BreakGlassManager) End(ctx context.Context, sessionID, endedBy string) error {
	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	flipped, err := m.sessions.Deactivate(ctx, sessionID, SessionEnded, m.clock())
	if err != nil {
		return err
	}
	if !flipped {
		return nil
	}

	m.appendAudit(ctx, AuditEntry{
		PatientID:   session.PatientID,
		Action:      AuditBreakGlassEnded,
		PerformedBy: endedBy,
		Details:     map[string]string{"session_id": sessionID},
	})
	return nil
}

// ExpireIfDue lazily discovers a run-out countdown on any touch of the
// session. Concurrent expirers converge on the store's compare-and-swap:
// whichever call performs the flip writes the single BREAKGLASS_EXPIRED
// entry, every other call is a silent no-op. The refreshed session is
// returned either way.
func (m *BreakGlassManager) ExpireIfDue(ctx context.Context, sessionID string) (*BreakGlassSession, error) {
	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive || !session.Due(m.clock()) {
		return session, nil
	}

	flipped, err := m.sessions.Deactivate(ctx, sessionID, SessionExpired, m.clock())
	if err != nil {
		return nil, err
	}
	if flipped {
		m.metrics.IncrementCounter("medvault.breakglass.expired", nil)
		m.appendAudit(ctx, AuditEntry{
			PatientID:   session.PatientID,
			Action:      AuditBreakGlassExpired,
			PerformedBy: session.RequestedBy,
			Details:     map[string]string{"session_id": sessionID},
		})
	}
	return m.sessions.Get(ctx, sessionID)
}

// FetchEmergencyData is the only read an emergency session can perform. It
// re-checks expiry at the moment of use, fetches the escrowed emergency key
// and opens the emergency blob with it. The master key plays no part here;
// a break-glass flow never invokes master-key derivation and structurally
// cannot reach any blob sealed under it.
func (m *BreakGlassManager) FetchEmergencyData(ctx context.Context, sessionID string) (*EmergencyData, error) {
	session, err := m.ExpireIfDue(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionExpired, sessionID, session.State)
	}

	raw, err := m.secrets.GetEmergencyKey(ctx, session.PatientID)
	if err != nil {
		return nil, fmt.Errorf("no emergency profile on file: %w", err)
	}
	ek, err := EmergencyKeyFromBytes(raw)
	if err != nil {
		return nil, err
	}
	defer ek.Zero()

	data, err := m.blobs.Get(ctx, EmergencyBlobKey(session.PatientID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch emergency blob: %w", err)
	}
	blob, err := UnmarshalBlob(data)
	if err != nil {
		return nil, err
	}
	profile, err := OpenEmergencyData(blob, ek)
	if err != nil {
		return nil, err
	}

	m.appendAudit(ctx, AuditEntry{
		PatientID:   session.PatientID,
		Action:      AuditRecordDecrypted,
		PerformedBy: session.RequestedBy,
		Details: map[string]string{
			"session_id": sessionID,
			"scope":      "emergency",
		},
	})
	return profile, nil
}

// EmergencyBlobKey is the blob-store key a patient's emergency profile
// lives under.
func EmergencyBlobKey(patientID string) string {
	return "emergency/" + patientID
}

func (m *BreakGlassManager) notifyPatient(ctx context.Context, session *BreakGlassSession) {
	contact, err := m.identity.PatientContact(ctx, session.PatientID)
	if err == nil {
		msg := fmt.Sprintf("Emergency access to your profile was activated by %s and expires at %s.",
			session.RequestedBy, session.ExpiresAt.Format(time.RFC3339))
		err = m.notifier.Send(ctx, contact, msg)
	}
	if err != nil {
		m.logger.Warn("break-glass notification failed",
			slog.String("session_id", session.SessionID),
			slog.Any("error", err))
		m.appendAudit(ctx, AuditEntry{
			PatientID:   session.PatientID,
			Action:      AuditNotifyFailed,
			PerformedBy: session.RequestedBy,
			Details:     map[string]string{"session_id": session.SessionID},
		})
	}
}

func (m *BreakGlassManager) appendAudit(ctx context.Context, entry AuditEntry) {
	entry.LogID = uuid.NewString()
	entry.Timestamp = m.clock()
	if err := m.audit.Append(ctx, entry); err != nil {
		m.logger.Error("audit append failed",
			slog.String("action", string(entry.Action)),
			slog.String("patient_id", entry.PatientID),
			slog.Any("error", err))
	}
}
