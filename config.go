package medvault

import (
	"fmt"
	"time"

	"github.com/hengadev/errsx"
	"gopkg.in/yaml.v3"
)

// Config holds the configuration for creating a Vault instance.
//
// This struct contains only data, no behavior. Configuration can be loaded
// from environment variables (LoadConfigFromEnvironment), a YAML file
// (LoadConfigFromFile) or built in code, and is passed explicitly to New.
type Config struct {
	// ServiceAlias identifies this deployment for pepper storage, e.g.
	// "patient-vault". Required.
	ServiceAlias string `yaml:"service_alias"`

	// KDFIterations is the PBKDF2 round count for master-key derivation.
	// Optional; defaults to DefaultKDFIterations, floor MinKDFIterations.
	KDFIterations int `yaml:"kdf_iterations"`

	// BreakGlassTTL is the fixed lifetime of an emergency session.
	// Optional; defaults to DefaultBreakGlassTTL.
	BreakGlassTTL time.Duration `yaml:"break_glass_ttl"`

	// LockoutCooldown is how long logins for an identifier stay refused
	// after MaxLoginAttempts consecutive failures. Optional; defaults to
	// DefaultLockoutCooldown.
	LockoutCooldown time.Duration `yaml:"lockout_cooldown"`

	// DBPath is the directory holding the grant/session/audit database
	// when the sqlite-backed stores are used. Optional; default .medvault.
	DBPath string `yaml:"db_path"`

	// DBFilename is the filename of that database. Optional; default
	// vault.db.
	DBFilename string `yaml:"db_filename"`
}

// UnmarshalYAML accepts duration fields in time.ParseDuration notation,
// e.g. "5m" or "1h30m".
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ServiceAlias    string `yaml:"service_alias"`
		KDFIterations   int    `yaml:"kdf_iterations"`
		BreakGlassTTL   string `yaml:"break_glass_ttl"`
		LockoutCooldown string `yaml:"lockout_cooldown"`
		DBPath          string `yaml:"db_path"`
		DBFilename      string `yaml:"db_filename"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.ServiceAlias = raw.ServiceAlias
	c.KDFIterations = raw.KDFIterations
	c.DBPath = raw.DBPath
	c.DBFilename = raw.DBFilename

	if raw.BreakGlassTTL != "" {
		d, err := time.ParseDuration(raw.BreakGlassTTL)
		if err != nil {
			return fmt.Errorf("break_glass_ttl: %w", err)
		}
		c.BreakGlassTTL = d
	}
	if raw.LockoutCooldown != "" {
		d, err := time.ParseDuration(raw.LockoutCooldown)
		if err != nil {
			return fmt.Errorf("lockout_cooldown: %w", err)
		}
		c.LockoutCooldown = d
	}
	return nil
}

// Validate checks the configuration and applies defaults to optional
// fields. Multiple problems are reported together.
func (c *Config) Validate() error {
	var errs errsx.Map

	if c.ServiceAlias == "" {
		errs.Set("service_alias", "ServiceAlias is required")
	}
	if c.KDFIterations == 0 {
		c.KDFIterations = DefaultKDFIterations
	}
	if c.KDFIterations < MinKDFIterations {
		errs.Set("kdf_iterations", fmt.Sprintf("must be at least %d, got %d", MinKDFIterations, c.KDFIterations))
	}
	if c.BreakGlassTTL < 0 {
		errs.Set("break_glass_ttl", "must not be negative")
	}
	if c.BreakGlassTTL == 0 {
		c.BreakGlassTTL = DefaultBreakGlassTTL
	}
	if c.LockoutCooldown == 0 {
		c.LockoutCooldown = DefaultLockoutCooldown
	}
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	if c.DBFilename == "" {
		c.DBFilename = DefaultDBFilename
	}

	if err := errs.AsError(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return nil
}
