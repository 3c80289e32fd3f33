package medvault

// Test utilities shared by the package tests and by applications embedding
// the library in their own test suites.

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sync"
	"time"
)

// TestKDFParams trades derivation strength for test speed. Never use these
// outside tests.
func TestKDFParams() *KDFParams {
	return &KDFParams{Iterations: MinKDFIterations, SaltLength: 16}
}

// SimpleTestIdentity is an in-memory IdentityService for tests and
// examples. Registered patients verify successfully with any 6-digit code
// matching their configured one.
type SimpleTestIdentity struct {
	mu       sync.RWMutex
	patients map[string]testPatient // keyed by care identifier
	doctors  map[string]*rsa.PublicKey
}

type testPatient struct {
	patientID string
	dob       string
	code      string
	contact   Contact
}

func NewSimpleTestIdentity() *SimpleTestIdentity {
	return &SimpleTestIdentity{
		patients: make(map[string]testPatient),
		doctors:  make(map[string]*rsa.PublicKey),
	}
}

// RegisterPatient adds a patient the test identity will verify.
func (s *SimpleTestIdentity) RegisterPatient(identifier, patientID, dob, code string, contact Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[identifier] = testPatient{patientID: patientID, dob: dob, code: code, contact: contact}
}

// RegisterDoctor records a doctor's device public key.
func (s *SimpleTestIdentity) RegisterDoctor(doctorID string, pub *rsa.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doctors[doctorID] = pub
}

func (s *SimpleTestIdentity) Verify(ctx context.Context, identifier CareID, dateOfBirth, code string) (VerifiedFactors, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[identifier.String()]
	factors := VerifiedFactors{IdentifierMatch: ok}
	if !ok {
		return factors, nil
	}
	factors.DOBMatch = p.dob == dateOfBirth
	factors.CodeMatch = p.code == code
	if factors.AllMatch() {
		factors.PatientID = p.patientID
		factors.Contact = p.contact
	}
	return factors, nil
}

func (s *SimpleTestIdentity) ResolvePatient(ctx context.Context, identifier CareID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[identifier.String()]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPatientNotFound, identifier)
	}
	return p.patientID, nil
}

func (s *SimpleTestIdentity) DoctorPublicKey(ctx context.Context, doctorID string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pub, ok := s.doctors[doctorID]
	if !ok {
		return nil, fmt.Errorf("no registered device key for doctor %s", doctorID)
	}
	return pub, nil
}

func (s *SimpleTestIdentity) PatientContact(ctx context.Context, patientID string) (Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.patients {
		if p.patientID == patientID {
			return p.contact, nil
		}
	}
	return Contact{}, fmt.Errorf("%w: %s", ErrPatientNotFound, patientID)
}

// RecordingNotifier captures sent messages for assertions. Setting Fail
// simulates a broken channel.
type RecordingNotifier struct {
	mu       sync.Mutex
	Fail     bool
	Messages []string
}

func (n *RecordingNotifier) Send(ctx context.Context, to Contact, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail {
		return ErrNotificationFailed
	}
	n.Messages = append(n.Messages, message)
	return nil
}

// Sent returns a copy of the delivered messages.
func (n *RecordingNotifier) Sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.Messages))
	copy(out, n.Messages)
	return out
}

// TestClock is a settable clock for deterministic expiry tests.
type TestClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewTestClock(start time.Time) *TestClock {
	return &TestClock{now: start}
}

func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// NewTestVault builds a Vault over in-memory stores with a random pepper
// already provisioned. It returns the vault, the identity stub for
// registering patients and doctors, and the stores for direct inspection.
func NewTestVault(ctx context.Context, opts ...VaultOption) (*Vault, *SimpleTestIdentity, Stores, error) {
	identity := NewSimpleTestIdentity()
	stores := Stores{
		Blobs:    NewInMemoryBlobStore(),
		Grants:   NewInMemoryGrantStore(),
		Sessions: NewInMemorySessionStore(),
		Audit:    NewInMemoryAuditLog(),
		Secrets:  NewInMemorySecretStore(),
	}

	pepper := make([]byte, PepperLength)
	if _, err := rand.Read(pepper); err != nil {
		return nil, nil, Stores{}, err
	}
	if err := stores.Secrets.StorePepper(ctx, "test-vault", pepper); err != nil {
		return nil, nil, Stores{}, err
	}

	cfg := Config{ServiceAlias: "test-vault"}
	opts = append([]VaultOption{WithKDFParams(TestKDFParams())}, opts...)
	v, err := New(ctx, identity, stores, cfg, opts...)
	if err != nil {
		return nil, nil, Stores{}, err
	}
	return v, identity, stores, nil
}
