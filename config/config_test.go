package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	return l
}

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "192.168.1.200:22", cfg.SessionAddr())
	assert.Equal(t, "192.168.1.200:8055", cfg.ControlAddr())
	assert.Equal(t, 24, cfg.Session.Rows)
	assert.Equal(t, 84, cfg.Session.Cols)
	assert.Equal(t, "cd /rbctrl && ./robotmon", cfg.Session.Command)
	assert.Equal(t, 500*time.Millisecond, cfg.Control.ReadTimeout.D())
	assert.Equal(t, 250*time.Millisecond, cfg.Control.SettleDelay.D())
}

func TestLoader_JSONLayerOverridesOnlyPresentKeys(t *testing.T) {
	path := writeFile(t, "robotmon.json", `{
		"session": {"host": "10.1.1.5", "poll_interval": "50ms"},
		"control": {"read_timeout": "1s"}
	}`)

	l := newTestLoader(nil)
	l.AddLayer(path)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "10.1.1.5", cfg.Session.Host)
	assert.Equal(t, 50*time.Millisecond, cfg.Session.PollInterval.D())
	assert.Equal(t, time.Second, cfg.Control.ReadTimeout.D())

	// untouched keys keep defaults
	assert.Equal(t, DefaultSSHPort, cfg.Session.Port)
	assert.Equal(t, 4096, cfg.Session.ReadChunk)
	assert.Equal(t, DefaultControlPort, cfg.Control.Port)
}

func TestLoader_YAMLLayer(t *testing.T) {
	base := writeFile(t, "base.json", `{"log": {"level": "debug"}}`)
	overlay := writeFile(t, "site.yaml", `
session:
  credentials_file: /etc/robotmon/creds
  reconnect:
    max_attempts: 3
    initial_delay: 1s
    max_delay: 4s
nats:
  enabled: true
  urls: ["nats://broker:4222"]
`)

	l := newTestLoader(nil)
	l.AddLayer(base)
	l.AddLayer(overlay)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/etc/robotmon/creds", cfg.Session.CredentialsFile)
	assert.Equal(t, 3, cfg.Session.Reconnect.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Session.Reconnect.InitialDelay.D())
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, []string{"nats://broker:4222"}, cfg.NATS.URLs)
}

func TestLoader_EnvOverrides(t *testing.T) {
	l := newTestLoader(map[string]string{
		"ROBOTMON_HOST":                   "robot.local",
		"ROBOTMON_CONTROL_PORT":           "9055",
		"ROBOTMON_RECONNECT_MAX_ATTEMPTS": "0",
		"ROBOTMON_NATS_URLS":              "nats://a:4222,nats://b:4222",
		"ROBOTMON_LOG_FORMAT":             "json",
		"ROBOTMON_RECORD_ENABLED":         "true",
		"ROBOTMON_RECORD_PATH":            "/var/log/robotmon.jsonl",
	})
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "robot.local", cfg.Session.Host)
	assert.Equal(t, "robot.local", cfg.Control.Host)
	assert.Equal(t, 9055, cfg.Control.Port)
	assert.Equal(t, 0, cfg.Session.Reconnect.MaxAttempts)
	assert.Len(t, cfg.NATS.URLs, 2)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Record.Enabled)
	assert.Equal(t, "/var/log/robotmon.jsonl", cfg.Record.Path)
}

func TestLoader_BadEnvIsFatal(t *testing.T) {
	l := newTestLoader(map[string]string{"ROBOTMON_SESSION_PORT": "twenty-two"})
	_, err := l.Load()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestLoader_Errors(t *testing.T) {
	l := newTestLoader(nil)
	_, err := l.LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	bad := writeFile(t, "bad.json", `{"session": `)
	_, err = newTestLoader(nil).LoadFile(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrParsingFailed)

	badDuration := writeFile(t, "dur.json", `{"control": {"read_timeout": "soon"}}`)
	_, err = newTestLoader(nil).LoadFile(badDuration)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty host", func(c *Config) { c.Session.Host = "" }, "session.host"},
		{"bad port", func(c *Config) { c.Control.Port = 70000 }, "control.port"},
		{"no host key policy", func(c *Config) { c.Session.InsecureHostKey = false }, "known_hosts_file"},
		{"negative reconnect", func(c *Config) { c.Session.Reconnect.MaxAttempts = -1 }, "max_attempts"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"nats without urls", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.URLs = nil
		}, "nats.urls"},
		{"nats tls cert without key", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.TLS.Enabled = true
			c.NATS.TLS.CertFile = "client.pem"
		}, "nats.tls"},
		{"metrics tls without cert", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.TLS.Enabled = true
		}, "metrics.tls"},
		{"websocket relative path", func(c *Config) {
			c.Web.Enabled = true
			c.Web.Path = "telemetry"
		}, "websocket.path"},
		{"record without path", func(c *Config) {
			c.Record.Enabled = true
			c.Record.Path = ""
		}, "record.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, errors.IsFatal(err))
		})
	}

	l := newTestLoader(map[string]string{"ROBOTMON_LOG_LEVEL": "loud"})
	l.EnableValidation(false)
	_, err := l.Load()
	assert.NoError(t, err)
}

func TestDuration_Encoding(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.D())

	require.NoError(t, json.Unmarshal([]byte(`1000000`), &d))
	assert.Equal(t, time.Millisecond, d.D())

	out, err := json.Marshal(Duration(250 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, `"250ms"`, string(out))

	var y struct {
		Wait Duration `yaml:"wait"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("wait: 2s\n"), &y))
	assert.Equal(t, 2*time.Second, y.Wait.D())
}

func TestConfig_StringMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.NATS.Password = "hunter2"
	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.Contains(t, s, "****")
	assert.Equal(t, "hunter2", cfg.NATS.Password)
}
