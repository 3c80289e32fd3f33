// Package medvault is the key-management and tiered-disclosure core for a
// zero-knowledge patient record service.
//
// Patients derive an ephemeral AES-256 master key on their own device from
// their care identifier and a freshly verified one-time code; the key never
// leaves memory and never reaches the server. Record blobs are sealed under
// it with AES-GCM and stored opaquely. Sharing with a doctor wraps the
// master key under the doctor's RSA public key (OAEP) as a revocable
// capability grant. A strictly weaker emergency key, one-way derived via
// HKDF, protects only the emergency-disclosure subset so that the
// break-glass flow can serve first responders a degraded view that
// structurally cannot reach full records.
//
// The operator of the service never holds plaintext or the keys to produce
// it. The one deliberate exception is the escrowed emergency key, which is
// scoped to the emergency profile alone; that escrow is what makes
// break-glass possible without the patient.
//
// Known gap, documented rather than solved: revoking a grant stops further
// release of the wrapped key but cannot claw back a master key a doctor's
// device already unwrapped and cached. Symmetric envelope sharing offers no
// cryptographic post-revocation unreadability without re-keying every blob.
package medvault
