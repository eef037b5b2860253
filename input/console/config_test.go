package console

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "192.168.1.200:22", cfg.Addr())
	assert.Equal(t, "cd /rbctrl && ./robotmon", cfg.Command)
	assert.Equal(t, 24, cfg.Rows)
	assert.Equal(t, 84, cfg.Cols)
	assert.Equal(t, time.Second, cfg.ReadyDelay)
	assert.Equal(t, 2*time.Second, cfg.SettleDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty host", func(c *Config) { c.Host = "" }},
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"no credentials", func(c *Config) { c.CredentialsFile = "" }},
		{"no geometry", func(c *Config) { c.Rows = 0 }},
		{"no poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"negative delay", func(c *Config) { c.SettleDelay = -time.Second }},
		{"no host key policy", func(c *Config) { c.InsecureHostKey = false }},
		{"negative reconnects", func(c *Config) { c.Reconnect.MaxAttempts = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsFatal(err))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestConfig_RetryConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reconnect = ReconnectConfig{MaxAttempts: 4, InitialDelay: time.Second, MaxDelay: 100 * time.Millisecond}

	rc := cfg.retryConfig()
	assert.Equal(t, 4, rc.MaxAttempts)
	assert.Equal(t, time.Second, rc.InitialDelay)
	assert.Equal(t, time.Second, rc.MaxDelay)
}

func TestLoadCredentials(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	t.Run("two lines", func(t *testing.T) {
		creds, err := LoadCredentials(write("ok", "robot\nsecret\n"))
		require.NoError(t, err)
		assert.Equal(t, Credentials{Username: "robot", Password: "secret"}, creds)
	})

	t.Run("whitespace trimmed and extra lines ignored", func(t *testing.T) {
		creds, err := LoadCredentials(write("padded", "  robot \r\n\tsecret\r\nignored\n"))
		require.NoError(t, err)
		assert.Equal(t, Credentials{Username: "robot", Password: "secret"}, creds)
	})

	t.Run("incomplete", func(t *testing.T) {
		_, err := LoadCredentials(write("short", "robot\n"))
		require.Error(t, err)
		assert.True(t, errors.IsFatal(err))
		assert.ErrorIs(t, err, errors.ErrCredentials)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := LoadCredentials(filepath.Join(dir, "absent"))
		require.Error(t, err)
		assert.True(t, errors.IsFatal(err))
		assert.ErrorIs(t, err, errors.ErrCredentials)
		assert.Contains(t, err.Error(), "not found")
	})
}
