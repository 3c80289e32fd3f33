package medvault

import "time"

// PatientSession is the explicit, memory-only state of one logged-in
// patient. It is threaded through every call that needs the master key;
// there is no process-wide current session. The key never leaves the
// session except through the deliberate wrap and emergency-derivation
// paths, and Logout wipes it.
type PatientSession struct {
	PatientID string
	CareID    CareID
	StartedAt time.Time

	key *MasterKey
}

// Key returns the session master key. It is nil after logout.
func (s *PatientSession) Key() *MasterKey { return s.key }

// Active reports whether the session still holds usable key material.
func (s *PatientSession) Active() bool { return s != nil && s.key != nil }

// close zeroes and drops the master key. The session is unusable afterwards.
func (s *PatientSession) close() {
	if s.key != nil {
		s.key.Zero()
		s.key = nil
	}
}
