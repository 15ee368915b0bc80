// Package config holds the server settings and how they are read from
// command-line flags and LEDGERKEEP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/ledgerkeep/ledgerkeep/internal/util"
	"github.com/ledgerkeep/ledgerkeep/vault"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageBBolt    = "bbolt"
	StoragePostgres = "postgres"
)

// Config holds runtime settings for the ledgerkeep server.
type Config struct {
	Port        int
	DataDir     string
	Storage     string
	PostgresDSN string

	// MasterSecret is hex-encoded, or raw text when it is not valid hex.
	MasterSecret string
	// JWTSecret verifies HS256 access tokens issued by the auth provider.
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	// RevealRateLimit is the number of credential reveals allowed per user per minute.
	RevealRateLimit int

	TLSCert string
	TLSKey  string

	// AuditWebhookURL receives a JSON copy of every audit event when set.
	AuditWebhookURL  string
	AuditWebhookAuth string

	LogLevel  string
	LogFormat string
}

// envBindings maps flag names to the environment variables that feed them
// when the flag is not given on the command line.
var envBindings = map[string]string{
	"port":               "LEDGERKEEP_PORT",
	"data-dir":           "LEDGERKEEP_DATA_DIR",
	"storage":            "LEDGERKEEP_STORAGE",
	"postgres-dsn":       "LEDGERKEEP_POSTGRES_DSN",
	"master-secret":      "LEDGERKEEP_MASTER_SECRET",
	"jwt-secret":         "LEDGERKEEP_JWT_SECRET",
	"jwt-issuer":         "LEDGERKEEP_JWT_ISSUER",
	"jwt-audience":       "LEDGERKEEP_JWT_AUDIENCE",
	"reveal-rate-limit":  "LEDGERKEEP_REVEAL_RATE_LIMIT",
	"tls-cert":           "LEDGERKEEP_TLS_CERT",
	"tls-key":            "LEDGERKEEP_TLS_KEY",
	"audit-webhook-url":  "LEDGERKEEP_AUDIT_WEBHOOK_URL",
	"audit-webhook-auth": "LEDGERKEEP_AUDIT_WEBHOOK_AUTH",
	"log-level":          "LEDGERKEEP_LOG_LEVEL",
	"log-format":         "LEDGERKEEP_LOG_FORMAT",
}

// LoadDefaults populates Config with development defaults. There is no
// default master secret or JWT secret.
func (c *Config) LoadDefaults() {
	c.Port = 8080
	c.DataDir = "./data"
	c.Storage = StorageBBolt
	c.RevealRateLimit = 30
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// BindFlags registers every setting on fs, using the current values as defaults.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.IntVarP(&c.Port, "port", "p", c.Port, "Port to listen on")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "Directory for the bbolt database")
	fs.StringVar(&c.Storage, "storage", c.Storage, "Storage backend: memory, bbolt or postgres")
	fs.StringVar(&c.PostgresDSN, "postgres-dsn", c.PostgresDSN, "PostgreSQL DSN for the postgres backend")
	fs.StringVar(&c.MasterSecret, "master-secret", c.MasterSecret, "Master secret for credential key derivation (prefer LEDGERKEEP_MASTER_SECRET)")
	fs.StringVar(&c.JWTSecret, "jwt-secret", c.JWTSecret, "HS256 secret used to verify access tokens")
	fs.StringVar(&c.JWTIssuer, "jwt-issuer", c.JWTIssuer, "Required token issuer, if set")
	fs.StringVar(&c.JWTAudience, "jwt-audience", c.JWTAudience, "Required token audience, if set")
	fs.IntVar(&c.RevealRateLimit, "reveal-rate-limit", c.RevealRateLimit, "Credential reveals allowed per user per minute")
	fs.StringVar(&c.TLSCert, "tls-cert", c.TLSCert, "Path to TLS certificate file")
	fs.StringVar(&c.TLSKey, "tls-key", c.TLSKey, "Path to TLS key file")
	fs.StringVar(&c.AuditWebhookURL, "audit-webhook-url", c.AuditWebhookURL, "URL that receives audit events as JSON")
	fs.StringVar(&c.AuditWebhookAuth, "audit-webhook-auth", c.AuditWebhookAuth, `Header sent with audit webhook requests, as "Name: value"`)
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn or error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format: json or text")
}

// ApplyEnv fills every flag that was not set explicitly from its environment
// variable. lookup is usually os.LookupEnv.
func ApplyEnv(fs *pflag.FlagSet, lookup func(string) (string, bool)) error {
	for name, env := range envBindings {
		if fs.Lookup(name) == nil || fs.Changed(name) {
			continue
		}
		value, ok := lookup(env)
		if !ok {
			continue
		}
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
	}
	return nil
}

// Validate checks the settings the server cannot start without. A missing
// master secret is reported as vault.ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error

	secret, err := c.MasterSecretBytes()
	if err != nil {
		errs = append(errs, err)
	} else {
		util.WipeBytes(secret)
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is not set"))
	}
	switch c.Storage {
	case StorageMemory, StorageBBolt:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres storage requires a DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage))
	}
	if c.RevealRateLimit <= 0 {
		errs = append(errs, errors.New("reveal rate limit must be positive"))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errs = append(errs, errors.New("tls cert and key must be set together"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// MasterSecretBytes decodes the master secret. The caller owns the returned
// slice and should wipe it after handing it to vault.New.
func (c *Config) MasterSecretBytes() ([]byte, error) {
	if c.MasterSecret == "" {
		return nil, fmt.Errorf("%w: master secret is not set", vault.ErrConfiguration)
	}
	var secret []byte
	if decoded, err := util.HexDecode(c.MasterSecret); err == nil {
		secret = decoded
	} else {
		secret = []byte(c.MasterSecret)
	}
	if len(secret) < vault.MinMasterSecretLength {
		n := len(secret)
		util.WipeBytes(secret)
		return nil, fmt.Errorf("%w: master secret must be at least %d bytes, got %d",
			vault.ErrConfiguration, vault.MinMasterSecretLength, n)
	}
	return secret, nil
}

// NewLogger builds the process logger described by LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
