// Package config loads insight-engine configuration from YAML and the
// environment. Secrets (database password, vault token, unseal shares) are
// env-only and never read from the YAML file or committed to source.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for insight-engine.
// Environment variables always override YAML values for fields that
// support both.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Metadata store configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Secret store configuration (HashiCorp Vault)
	Vault VaultConfig `yaml:"vault"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT signatures are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL metadata-store configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"insight"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"insight_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// VaultConfig holds secret-store configuration.
type VaultConfig struct {
	// Address is the Vault endpoint URL.
	Address string `yaml:"address" env:"VAULT_ADDR" env-default:"http://127.0.0.1:8200"`

	// Token authenticates every request. Secret - env only.
	Token string `yaml:"-" env:"VAULT_TOKEN"`

	// UnsealKeysStr is a comma-separated ordered list of unseal shares.
	// Secret - env only. Submitted one at a time until the store reports
	// unsealed.
	UnsealKeysStr string `yaml:"-" env:"VAULT_UNSEAL_KEYS"`

	// UnsealKeys is the parsed list from UnsealKeysStr.
	UnsealKeys []string `yaml:"-"`

	// MountPoint is where the KV v2 secrets engine lives.
	MountPoint string `yaml:"mount_point" env:"VAULT_MOUNT_POINT" env-default:"users"`

	// TransitKey is the named transit key used to encrypt connection URIs.
	TransitKey string `yaml:"transit_key" env:"VAULT_TRANSIT_KEY" env-default:"connection-uri-key"`

	// TimeoutSeconds bounds every call to the secret store.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"VAULT_TIMEOUT_SECONDS" env-default:"10"`
}

// Timeout returns the per-call secret store timeout as a duration.
func (c *VaultConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	cfg.parseComplexFields()
	return cfg, nil
}

// LoadFromEnv reads configuration from environment variables only.
// Used when no config.yaml is present.
func LoadFromEnv(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.parseComplexFields()
	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	c.Vault.UnsealKeys = splitAndTrim(c.Vault.UnsealKeysStr)
}

// parseJWKSEndpoints parses "issuer1=url1,issuer2=url2" into a map.
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

// splitAndTrim splits a comma-separated list, dropping empty entries.
func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
