package medvault

import "time"

// Key material sizes
const (
	// KeySize is the size in bytes of every symmetric key in the hierarchy
	// (master and emergency), matching AES-256.
	KeySize = 32

	// PepperLength defines the required length for the service pepper in bytes.
	PepperLength = 32

	// NonceSize is the AES-GCM nonce size in bytes. Nonces are always
	// generated internally; callers can never supply one.
	NonceSize = 12

	// MinRSABits is the smallest RSA modulus accepted for wrapping a master
	// key under a doctor's public key.
	MinRSABits = 2048
)

// Key derivation
const (
	// MinKDFIterations is the floor for PBKDF2 rounds. Configurations below
	// this are rejected.
	MinKDFIterations = 100_000

	// DefaultKDFIterations is the PBKDF2-HMAC-SHA-256 round count used when
	// none is configured.
	DefaultKDFIterations = 120_000

	// OneTimeCodeLength is the number of digits in a verification code.
	OneTimeCodeLength = 6

	// emergencyKeyInfo is the HKDF context label separating the emergency
	// key domain from any other expansion of the master key.
	emergencyKeyInfo = "medvault/emergency-disclosure/v1"

	// saltInfo is the HKDF context label for the per-patient KDF salt.
	saltInfo = "medvault/patient-salt/v1"
)

// AlgorithmAESGCM identifies the only cipher suite blobs are written with.
const AlgorithmAESGCM = "AES-256-GCM"

// Break-glass and authentication policy
const (
	// DefaultBreakGlassTTL is the fixed wall-clock lifetime of an emergency
	// session.
	DefaultBreakGlassTTL = 5 * time.Minute

	// MaxLoginAttempts is the number of failed verifications tolerated
	// before the cooldown lock engages.
	MaxLoginAttempts = 3

	// DefaultLockoutCooldown is how long an identifier stays locked after
	// MaxLoginAttempts consecutive failures.
	DefaultLockoutCooldown = 15 * time.Minute
)

// Environment variable names
const (
	// EnvServiceAlias is the environment variable naming the service for
	// pepper storage, e.g. "patient-vault".
	EnvServiceAlias = "MEDVAULT_SERVICE_ALIAS"

	// EnvKDFIterations overrides the PBKDF2 round count.
	EnvKDFIterations = "MEDVAULT_KDF_ITERATIONS"

	// EnvDBPath is the directory holding the grant/session/audit database.
	EnvDBPath = "MEDVAULT_DB_PATH"

	// EnvDBFilename is the filename of that database.
	EnvDBFilename = "MEDVAULT_DB_FILENAME"
)

// Default values
const (
	DefaultDBPath     = ".medvault"
	DefaultDBFilename = "vault.db"
)

// Storage path templates for secret management providers
const (
	// VaultPepperPathTemplate is the KV v2 path for the service pepper.
	// The %s placeholder is the service alias.
	VaultPepperPathTemplate = "secret/data/medvault/%s/pepper"

	// VaultEmergencyKeyPathTemplate is the KV v2 path for a patient's
	// escrowed emergency key. The %s placeholder is the patient id.
	VaultEmergencyKeyPathTemplate = "secret/data/medvault/emergency/%s"
)
