// Package config loads vault client and simulator settings from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	dErrors "cardvault/pkg/domain-errors"
)

// Environment keys.
const (
	EnvManagementWSDL  = "VAULT_MANAGEMENT_WSDL"
	EnvEndpoint        = "VAULT_ENDPOINT"
	EnvClientCode      = "VAULT_CLIENT_CODE"
	EnvUserName        = "VAULT_USER_NAME"
	EnvPassword        = "VAULT_PASSWORD"
	EnvLocationID      = "VAULT_LOCATION_ID"
	EnvSOAPNamespace   = "VAULT_SOAP_NAMESPACE"
	EnvTimeout         = "VAULT_TIMEOUT"
	EnvBreakerFailures = "VAULT_BREAKER_FAILURES"
	EnvLogLevel        = "VAULT_LOG_LEVEL"
	EnvLogFormat       = "VAULT_LOG_FORMAT"
	EnvSimAddr         = "VAULT_SIM_ADDR"
	EnvSimGlobalUnique = "VAULT_SIM_GLOBAL_UNIQUENESS"
)

// Defaults.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultBreakerFailures = 5
	DefaultSimAddr         = ":8089"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
)

// Vault captures everything needed to talk to (or impersonate) the vault.
type Vault struct {
	ManagementWSDL string
	// Endpoint overrides the address derived from ManagementWSDL.
	Endpoint   string
	ClientCode string
	UserName   string
	Password   string
	LocationID string
	Namespace  string

	Timeout         time.Duration
	BreakerFailures int

	LogLevel  string
	LogFormat string

	SimAddr string
	// SimGlobalUniqueness makes the simulator enforce card numbers across customers.
	SimGlobalUniqueness bool
}

// FromEnv reads the configuration. Files are loaded with godotenv first
// (".env" when none are named and it exists); real environment variables win.
func FromEnv(files ...string) (Vault, error) {
	if err := loadDotEnv(files...); err != nil {
		return Vault{}, err
	}

	cfg := Vault{
		ManagementWSDL:  strings.TrimSpace(os.Getenv(EnvManagementWSDL)),
		Endpoint:        strings.TrimSpace(os.Getenv(EnvEndpoint)),
		ClientCode:      os.Getenv(EnvClientCode),
		UserName:        os.Getenv(EnvUserName),
		Password:        os.Getenv(EnvPassword),
		LocationID:      os.Getenv(EnvLocationID),
		Namespace:       os.Getenv(EnvSOAPNamespace),
		Timeout:         DefaultTimeout,
		BreakerFailures: DefaultBreakerFailures,
		LogLevel:        envOr(EnvLogLevel, DefaultLogLevel),
		LogFormat:       envOr(EnvLogFormat, DefaultLogFormat),
		SimAddr:         envOr(EnvSimAddr, DefaultSimAddr),
	}

	if raw := os.Getenv(EnvSimGlobalUnique); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Vault{}, dErrors.Wrap(err, dErrors.CodeInvalidConfig, EnvSimGlobalUnique+" must be a boolean")
		}
		cfg.SimGlobalUniqueness = b
	}

	if raw := os.Getenv(EnvTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return Vault{}, dErrors.Wrap(err, dErrors.CodeInvalidConfig, EnvTimeout+" must be a non-negative duration")
		}
		cfg.Timeout = d
	}
	if raw := os.Getenv(EnvBreakerFailures); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Vault{}, dErrors.Wrap(err, dErrors.CodeInvalidConfig, EnvBreakerFailures+" must be a non-negative integer")
		}
		cfg.BreakerFailures = n
	}
	return cfg, nil
}

// Validate checks the settings a vault client cannot run without.
func (v Vault) Validate() error {
	if v.ManagementWSDL == "" {
		return dErrors.New(dErrors.CodeInvalidConfig, EnvManagementWSDL+" is required")
	}
	return nil
}

// BreakerEnabled reports whether calls should go through a circuit breaker.
func (v Vault) BreakerEnabled() bool {
	return v.BreakerFailures > 0
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidConfig, "could not load env file")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
