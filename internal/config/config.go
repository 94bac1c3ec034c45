// Package config loads and validates the relayd configuration from a YAML
// file and RELAYD_-prefixed environment variables.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/serdar/relayd/internal/logger"
)

const (
	// DefaultConfigFilename is the configuration file looked up when no
	// explicit path is given.
	DefaultConfigFilename = "relayd.yaml"

	// DefaultListenAddress is the address the HTTP server binds to.
	DefaultListenAddress = ":5000"

	// DefaultDatabasePath is the sqlite database file for request history.
	DefaultDatabasePath = "relayd.db"

	// DefaultRequestTimeout bounds the wall-clock duration of relayed calls.
	DefaultRequestTimeout = "30s"

	// DefaultLogLevel is the logging verbosity when none is configured.
	DefaultLogLevel = "info"

	// minJWTSecretLength guards against trivially brute-forceable secrets.
	minJWTSecretLength = 32

	envPrefix = "RELAYD"
)

// Config holds all configuration settings.
type Config struct {
	// ListenAddress is the host:port the HTTP server binds to.
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`
	// DatabasePath is the sqlite file storing request history.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	// JWTSecret signs and verifies bearer tokens. Must be at least 32 characters.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	// RequestTimeout is the upper bound on a relayed call's duration (e.g. "30s").
	RequestTimeout string `mapstructure:"request_timeout" yaml:"request_timeout"`
	// InsecureSkipVerify disables TLS certificate verification on outbound calls.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	// LogLevel specifies the logging verbosity level.
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// ParsedRequestTimeout is the parsed relay timeout.
	ParsedRequestTimeout time.Duration `mapstructure:"-" yaml:"-"`
	// ParsedLogLevel is the parsed zap log level.
	ParsedLogLevel zapcore.Level `mapstructure:"-" yaml:"-"`
}

// Static error definitions for better error handling.
var (
	// ErrEmptyListenAddress indicates that the listen address is missing.
	ErrEmptyListenAddress = errors.New("listen_address cannot be empty")
	// ErrEmptyDatabasePath indicates that the database path is missing.
	ErrEmptyDatabasePath = errors.New("database_path cannot be empty")
	// ErrJWTSecretTooShort indicates that the signing secret is missing or too weak.
	ErrJWTSecretTooShort = fmt.Errorf("jwt_secret must be at least %d characters", minJWTSecretLength)
	// ErrInvalidRequestTimeout indicates that the relay timeout is not positive.
	ErrInvalidRequestTimeout = errors.New("request_timeout must be positive")
	// ErrUnknownLogLevel indicates that the log level is not recognized.
	ErrUnknownLogLevel = errors.New("unknown log level")
)

// LoadConfig loads configuration from the given YAML file (or
// DefaultConfigFilename when empty), applies environment overrides, and
// validates the result. A missing default config file is not an error;
// defaults and environment variables still apply.
func LoadConfig(configFilename string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_address", DefaultListenAddress)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("insecure_skip_verify", false)
	v.SetDefault("log_level", DefaultLogLevel)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := configFilename != ""
	if !explicit {
		configFilename = DefaultConfigFilename
	}

	v.SetConfigFile(configFilename)

	if err := v.ReadInConfig(); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config from file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ValidateConfig checks the configuration for validity and sets derived fields.
func ValidateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return ErrEmptyListenAddress
	}

	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return ErrEmptyDatabasePath
	}

	if len(strings.TrimSpace(cfg.JWTSecret)) < minJWTSecretLength {
		return ErrJWTSecretTooShort
	}

	parsedTimeout, err := time.ParseDuration(cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("failed to parse request timeout: %w", err)
	}

	if parsedTimeout <= 0 {
		return ErrInvalidRequestTimeout
	}

	cfg.ParsedRequestTimeout = parsedTimeout

	parsedLogLevel, isLogLevelCorrect := logger.ParseLogLevel(cfg.LogLevel)
	if !isLogLevelCorrect {
		return fmt.Errorf("%w: '%s'", ErrUnknownLogLevel, cfg.LogLevel)
	}

	cfg.ParsedLogLevel = parsedLogLevel

	return nil
}

// WriteDefault writes a starter configuration file with a freshly generated
// signing secret. It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if path == "" {
		path = DefaultConfigFilename
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	cfg := Config{
		ListenAddress:  DefaultListenAddress,
		DatabasePath:   DefaultDatabasePath,
		JWTSecret:      secret,
		RequestTimeout: DefaultRequestTimeout,
		LogLevel:       DefaultLogLevel,
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}

	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, minJWTSecretLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating signing secret: %w", err)
	}

	return hex.EncodeToString(buf), nil
}
