package medvault

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadConfigFromEnvironment loads configuration from environment variables,
// 12-factor style.
//
// Required:
//   - MEDVAULT_SERVICE_ALIAS
//
// Optional (defaults applied by Validate):
//   - MEDVAULT_KDF_ITERATIONS
//   - MEDVAULT_DB_PATH
//   - MEDVAULT_DB_FILENAME
func LoadConfigFromEnvironment() (Config, error) {
	alias := os.Getenv(EnvServiceAlias)
	if alias == "" {
		return Config{}, fmt.Errorf("%s environment variable is required", EnvServiceAlias)
	}

	cfg := Config{
		ServiceAlias: alias,
		DBPath:       os.Getenv(EnvDBPath),
		DBFilename:   os.Getenv(EnvDBFilename),
	}

	if raw := os.Getenv(EnvKDFIterations); raw != "" {
		iters, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%s must be an integer: %w", EnvKDFIterations, err)
		}
		cfg.KDFIterations = iters
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFromDotEnv loads a .env file into the process environment and
// then reads configuration from it. Missing files are not an error; the
// environment simply wins.
func LoadConfigFromDotEnv(path string) (Config, error) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return LoadConfigFromEnvironment()
}

// LoadConfigFromFile reads a YAML configuration file.
func LoadConfigFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
