package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func validConfig() *Config {
	return &Config{
		ListenAddress:  ":5000",
		DatabasePath:   "relayd.db",
		JWTSecret:      testSecret,
		RequestTimeout: "30s",
		LogLevel:       "info",
	}
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(_ *Config) {},
		},
		{
			name:    "empty listen address",
			mutate:  func(c *Config) { c.ListenAddress = "  " },
			wantErr: ErrEmptyListenAddress,
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.DatabasePath = "" },
			wantErr: ErrEmptyDatabasePath,
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.JWTSecret = "too-short" },
			wantErr: ErrJWTSecretTooShort,
		},
		{
			name:    "negative request timeout",
			mutate:  func(c *Config) { c.RequestTimeout = "-5s" },
			wantErr: ErrInvalidRequestTimeout,
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: ErrUnknownLogLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, 30*time.Second, cfg.ParsedRequestTimeout)
			assert.Equal(t, zapcore.InfoLevel, cfg.ParsedLogLevel)
		})
	}
}

func TestValidateConfig_UnparsableTimeout(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.RequestTimeout = "soon"

	require.Error(t, ValidateConfig(cfg))
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relayd.yaml")
	contents := `listen_address: ":8080"
database_path: "history.db"
jwt_secret: "` + testSecret + `"
request_timeout: "10s"
log_level: "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddress)
	assert.Equal(t, "history.db", cfg.DatabasePath)
	assert.Equal(t, 10*time.Second, cfg.ParsedRequestTimeout)
	assert.Equal(t, zapcore.DebugLevel, cfg.ParsedLogLevel)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("RELAYD_JWT_SECRET", testSecret)
	t.Setenv("RELAYD_LISTEN_ADDRESS", ":9999")

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddress)
	assert.Equal(t, testSecret, cfg.JWTSecret)
	assert.Equal(t, DefaultDatabasePath, cfg.DatabasePath)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relayd.yaml")

	require.NoError(t, WriteDefault(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultListenAddress, cfg.ListenAddress)
	assert.GreaterOrEqual(t, len(cfg.JWTSecret), 32)

	// A second write must not clobber the first.
	require.Error(t, WriteDefault(path))
}
