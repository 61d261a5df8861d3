package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// or "1h"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library form
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full LocalZure configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	KeyVault KeyVaultConfig `yaml:"keyvault"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	ListenAddr      string   `yaml:"listen_addr"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// BackendConfig selects and configures the state backend
type BackendConfig struct {
	// Type is one of "memory", "redis" or "bolt"
	Type string `yaml:"type"`

	Redis RedisConfig `yaml:"redis"`
	Bolt  BoltConfig  `yaml:"bolt"`
}

// RedisConfig configures the Redis backend
type RedisConfig struct {
	Addr       string   `yaml:"addr"`
	Password   string   `yaml:"password"`
	DB         int      `yaml:"db"`
	KeyPrefix  string   `yaml:"key_prefix"`
	Timeout    Duration `yaml:"timeout"`
	PoolSize   int      `yaml:"pool_size"`
	RetryCount int      `yaml:"retry_count"`
}

// BoltConfig configures the bolt backend
type BoltConfig struct {
	DataDir string `yaml:"data_dir"`
}

// KeyVaultConfig configures the secret engine
type KeyVaultConfig struct {
	SoftDeleteEnabled bool   `yaml:"soft_delete_enabled"`
	RetentionDays     int    `yaml:"retention_days"`
	VaultDNSSuffix    string `yaml:"vault_dns_suffix"`
}

// OAuthConfig configures the token authority
type OAuthConfig struct {
	Issuer        string   `yaml:"issuer"`
	TokenLifetime Duration `yaml:"token_lifetime"`
}

// LogConfig configures logging output
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is given: in-memory
// backend, soft delete on, token authority on the local listener
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      "127.0.0.1:5666",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Backend: BackendConfig{
			Type: "memory",
			Redis: RedisConfig{
				Addr:       "127.0.0.1:6379",
				KeyPrefix:  "localzure:",
				Timeout:    Duration(5 * time.Second),
				PoolSize:   10,
				RetryCount: 3,
			},
			Bolt: BoltConfig{
				DataDir: "./data",
			},
		},
		KeyVault: KeyVaultConfig{
			SoftDeleteEnabled: true,
			RetentionDays:     90,
			VaultDNSSuffix:    "vault.azure.net",
		},
		OAuth: OAuthConfig{
			Issuer:        "http://127.0.0.1:5666/.localzure/oauth",
			TokenLifetime: Duration(time.Hour),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML configuration file over the defaults. Fields absent
// from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c Config) Validate() error {
	switch c.Backend.Type {
	case "memory", "redis", "bolt":
	default:
		return fmt.Errorf("unknown backend type %q (want memory, redis or bolt)", c.Backend.Type)
	}

	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	if c.Backend.Type == "bolt" && c.Backend.Bolt.DataDir == "" {
		return fmt.Errorf("backend.bolt.data_dir must not be empty")
	}
	if c.OAuth.TokenLifetime <= 0 {
		return fmt.Errorf("oauth.token_lifetime must be positive")
	}
	return nil
}
