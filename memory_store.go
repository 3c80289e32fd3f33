package medvault

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// In-memory store implementations. They back tests and small single-process
// deployments; durable equivalents live in internal/storage/sqlite and
// providers/. Each one honors the same conditional-write contracts as the
// durable stores, so expiry and conflict behavior is identical either way.

// InMemoryBlobStore is a map-backed BlobStore.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *InMemoryBlobStore) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[key] = cp
	return nil
}

func (s *InMemoryBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: no blob at %s", ErrStoreUnavailable, key)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *InMemoryBlobStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// InMemoryGrantStore keeps grants in a map and serializes Insert so the
// insert-if-no-active-grant check is atomic.
type InMemoryGrantStore struct {
	mu     sync.Mutex
	grants map[string]*AccessGrant
}

func NewInMemoryGrantStore() *InMemoryGrantStore {
	return &InMemoryGrantStore{grants: make(map[string]*AccessGrant)}
}

func (s *InMemoryGrantStore) Insert(ctx context.Context, grant *AccessGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.grants {
		if g.IsActive && g.PatientID == grant.PatientID && g.DoctorID == grant.DoctorID {
			return fmt.Errorf("%w: doctor %s already holds grant %s", ErrGrantConflict, g.DoctorID, g.GrantID)
		}
	}
	cp := *grant
	s.grants[grant.GrantID] = &cp
	return nil
}

func (s *InMemoryGrantStore) Get(ctx context.Context, grantID string) (*AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[grantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGrantNotFound, grantID)
	}
	cp := *g
	return &cp, nil
}

func (s *InMemoryGrantStore) ActiveGrant(ctx context.Context, doctorID, patientID string) (*AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.grants {
		if g.IsActive && g.DoctorID == doctorID && g.PatientID == patientID {
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *InMemoryGrantStore) Revoke(ctx context.Context, grantID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[grantID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrGrantNotFound, grantID)
	}
	if !g.IsActive {
		return false, nil
	}
	g.IsActive = false
	g.RevokedAt = &at
	return true, nil
}

func (s *InMemoryGrantStore) ListByPatient(ctx context.Context, patientID string) ([]*AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*AccessGrant
	for _, g := range s.grants {
		if g.PatientID == patientID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.After(out[j].GrantedAt) })
	return out, nil
}

// InMemorySessionStore keeps break-glass sessions in a map with a
// mutex-guarded compare-and-swap for Deactivate.
type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*BreakGlassSession
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]*BreakGlassSession)}
}

func (s *InMemorySessionStore) Insert(ctx context.Context, session *BreakGlassSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.SessionID]; ok {
		return fmt.Errorf("%w: duplicate session id %s", ErrStoreUnavailable, session.SessionID)
	}
	cp := *session
	s.sessions[session.SessionID] = &cp
	return nil
}

func (s *InMemorySessionStore) Get(ctx context.Context, sessionID string) (*BreakGlassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	cp := *sess
	return &cp, nil
}

func (s *InMemorySessionStore) Deactivate(ctx context.Context, sessionID string, state SessionState, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if !sess.IsActive {
		return false, nil
	}
	sess.IsActive = false
	sess.State = state
	sess.EndedAt = &at
	return true, nil
}

func (s *InMemorySessionStore) ListByPatient(ctx context.Context, patientID string) ([]*BreakGlassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*BreakGlassSession
	for _, sess := range s.sessions {
		if sess.PatientID == patientID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// InMemoryAuditLog is an append-only slice with a uniqueness check on log
// id. There is no update or delete, matching the log contract.
type InMemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
	seen    map[string]bool
}

func NewInMemoryAuditLog() *InMemoryAuditLog {
	return &InMemoryAuditLog{seen: make(map[string]bool)}
}

func (l *InMemoryAuditLog) Append(ctx context.Context, entry AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen[entry.LogID] {
		return fmt.Errorf("%w: duplicate log id %s", ErrStoreUnavailable, entry.LogID)
	}
	l.seen[entry.LogID] = true
	l.entries = append(l.entries, entry)
	return nil
}

func (l *InMemoryAuditLog) Query(ctx context.Context, patientID string, actions ...AuditAction) ([]AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	wanted := make(map[AuditAction]bool, len(actions))
	for _, a := range actions {
		wanted[a] = true
	}
	var out []AuditEntry
	for _, e := range l.entries {
		if e.PatientID != patientID {
			continue
		}
		if len(wanted) > 0 && !wanted[e.Action] {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// InMemorySecretStore holds the pepper and emergency-key escrow in memory.
type InMemorySecretStore struct {
	mu      sync.RWMutex
	peppers map[string][]byte
	escrow  map[string][]byte
}

func NewInMemorySecretStore() *InMemorySecretStore {
	return &InMemorySecretStore{
		peppers: make(map[string][]byte),
		escrow:  make(map[string][]byte),
	}
}

func (s *InMemorySecretStore) StorePepper(ctx context.Context, alias string, pepper []byte) error {
	if len(pepper) != PepperLength {
		return fmt.Errorf("%w: pepper must be exactly %d bytes, got %d",
			ErrInvalidConfiguration, PepperLength, len(pepper))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(pepper))
	copy(cp, pepper)
	s.peppers[alias] = cp
	return nil
}

func (s *InMemorySecretStore) GetPepper(ctx context.Context, alias string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pepper, ok := s.peppers[alias]
	if !ok {
		return nil, fmt.Errorf("%w: no pepper for alias %q", ErrStoreUnavailable, alias)
	}
	cp := make([]byte, len(pepper))
	copy(cp, pepper)
	return cp, nil
}

func (s *InMemorySecretStore) StoreEmergencyKey(ctx context.Context, patientID string, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(key))
	copy(cp, key)
	s.escrow[patientID] = cp
	return nil
}

func (s *InMemorySecretStore) GetEmergencyKey(ctx context.Context, patientID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.escrow[patientID]
	if !ok {
		return nil, fmt.Errorf("%w: no emergency key for patient %s", ErrStoreUnavailable, patientID)
	}
	cp := make([]byte, len(key))
	copy(cp, key)
	return cp, nil
}
