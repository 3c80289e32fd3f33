package medvault

import "time"

// AccessLevel is the scope of a doctor grant.
type AccessLevel string

const (
	// AccessRead allows reading shared records.
	AccessRead AccessLevel = "READ"
	// AccessReadAppend additionally allows appending new documents.
	AccessReadAppend AccessLevel = "READ_APPEND"
)

func (l AccessLevel) Valid() bool {
	return l == AccessRead || l == AccessReadAppend
}

// AccessGrant is the revocable capability a patient issues to one doctor.
// The wrapped master key inside it is producible only on the patient's own
// device while a live master key is in memory. The only mutation a grant
// ever sees is the one-way flip of IsActive; a reinstated grant is always a
// new entity with a new id.
type AccessGrant struct {
	GrantID          string      `json:"grant_id"`
	PatientID        string      `json:"patient_id"`
	DoctorID         string      `json:"doctor_id"`
	WrappedMasterKey []byte      `json:"wrapped_master_key"`
	Level            AccessLevel `json:"level"`
	GrantedAt        time.Time   `json:"granted_at"`
	ExpiresAt        *time.Time  `json:"expires_at,omitempty"`
	IsActive         bool        `json:"is_active"`
	RevokedAt        *time.Time  `json:"revoked_at,omitempty"`
}

// Usable reports whether the grant authorizes access at the given instant.
func (g *AccessGrant) Usable(now time.Time) bool {
	if g == nil || !g.IsActive {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// SessionState is the lifecycle position of a break-glass session.
type SessionState string

const (
	SessionActive  SessionState = "ACTIVE"
	SessionExpired SessionState = "EXPIRED"
	SessionEnded   SessionState = "ENDED"
)

// GeoLocation is the responder position captured at break-glass activation.
type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy_m,omitempty"`
}

// BreakGlassSession is the time-boxed emergency session record. Once
// IsActive flips false the session is terminal in state Expired or Ended and
// is never reactivated.
type BreakGlassSession struct {
	SessionID    string       `json:"session_id"`
	PatientID    string       `json:"patient_id"`
	RequestedBy  string       `json:"requested_by"`
	CredentialID string       `json:"credential_id"`
	Reason       string       `json:"reason"`
	Location     *GeoLocation `json:"location"`
	StartedAt    time.Time    `json:"started_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
	IsActive     bool         `json:"is_active"`
	State        SessionState `json:"state"`
	EndedAt      *time.Time   `json:"ended_at,omitempty"`
}

// Due reports whether the session's wall-clock countdown has run out.
func (s *BreakGlassSession) Due(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// AuditAction is the closed set of events the append log records.
type AuditAction string

const (
	AuditGrantIssued        AuditAction = "GRANT_ISSUED"
	AuditGrantRevoked       AuditAction = "GRANT_REVOKED"
	AuditAccessChecked      AuditAction = "ACCESS_CHECKED"
	AuditRecordDecrypted    AuditAction = "RECORD_DECRYPTED"
	AuditEmergencyUpdated   AuditAction = "EMERGENCY_PROFILE_UPDATED"
	AuditBreakGlassInitiate AuditAction = "BREAKGLASS_INITIATE"
	AuditBreakGlassEnded    AuditAction = "BREAKGLASS_ENDED"
	AuditBreakGlassExpired  AuditAction = "BREAKGLASS_EXPIRED"
	AuditNotifyFailed       AuditAction = "NOTIFY_FAILED"
)

// AuditEntry is a write-once record. The log contract has no update or
// delete path.
type AuditEntry struct {
	LogID       string            `json:"log_id"`
	PatientID   string            `json:"patient_id"`
	Action      AuditAction       `json:"action"`
	PerformedBy string            `json:"performed_by"`
	Timestamp   time.Time         `json:"timestamp"`
	Details     map[string]string `json:"details,omitempty"`
}

// Contact is where best-effort notifications go.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// VerifiedFactors is what the identity collaborator reports after running
// its own challenge flow. Code expiry and attempt lockout are enforced
// there; this package only consumes the three booleans.
type VerifiedFactors struct {
	IdentifierMatch bool
	DOBMatch        bool
	CodeMatch       bool

	// PatientID is the resolved internal patient id, set when all three
	// factors matched.
	PatientID string
	// Contact is the patient's notification contact.
	Contact Contact
}

// AllMatch reports whether every factor verified.
func (v VerifiedFactors) AllMatch() bool {
	return v.IdentifierMatch && v.DOBMatch && v.CodeMatch
}
