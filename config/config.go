package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
	"github.com/benkokes/elite-EI65-robot-controller/pkg/tlsutil"
)

// Defaults shared with the command line layer
const (
	DefaultHost            = "192.168.1.200"
	DefaultSSHPort         = 22
	DefaultControlPort     = 8055
	DefaultCredentialsFile = "robot_credentials"
	DefaultCommand         = "cd /rbctrl && ./robotmon"
	DefaultRows            = 24
	DefaultCols            = 84
)

// Duration is a time.Duration that reads and writes Go duration strings
// ("250ms", "2s"). Bare numbers are taken as nanoseconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := durationFrom(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	parsed, err := durationFrom(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func durationFrom(v any) (Duration, error) {
	switch t := v.(type) {
	case string:
		p, err := time.ParseDuration(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", t, err)
		}
		return Duration(p), nil
	case float64:
		return Duration(int64(t)), nil
	case int:
		return Duration(int64(t)), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("invalid duration value %v", v)
	}
}

// Config is the complete robotmon configuration
type Config struct {
	Session SessionConfig `json:"session" yaml:"session"`
	Control ControlConfig `json:"control" yaml:"control"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	NATS    NATSConfig    `json:"nats" yaml:"nats"`
	Record  RecordConfig  `json:"record" yaml:"record"`
	Web     WebConfig     `json:"websocket" yaml:"websocket"`
	Log     LogConfig     `json:"log" yaml:"log"`
	UI      UIConfig      `json:"ui" yaml:"ui"`
}

// SessionConfig configures the SSH console session
type SessionConfig struct {
	Host            string   `json:"host" yaml:"host"`
	Port            int      `json:"port" yaml:"port"`
	CredentialsFile string   `json:"credentials_file" yaml:"credentials_file"`
	Command         string   `json:"command" yaml:"command"`
	Rows            int      `json:"rows" yaml:"rows"`
	Cols            int      `json:"cols" yaml:"cols"`
	DialTimeout     Duration `json:"dial_timeout" yaml:"dial_timeout"`
	ReadyDelay      Duration `json:"ready_delay" yaml:"ready_delay"`
	SettleDelay     Duration `json:"settle_delay" yaml:"settle_delay"`
	PollInterval    Duration `json:"poll_interval" yaml:"poll_interval"`
	ReadChunk       int      `json:"read_chunk" yaml:"read_chunk"`

	// KnownHostsFile verifies the controller's host key. Empty with
	// InsecureHostKey set accepts any key.
	KnownHostsFile  string `json:"known_hosts_file,omitempty" yaml:"known_hosts_file,omitempty"`
	InsecureHostKey bool   `json:"insecure_host_key" yaml:"insecure_host_key"`

	Reconnect ReconnectConfig `json:"reconnect" yaml:"reconnect"`
}

// ReconnectConfig bounds reconnect attempts after an established session drops.
// MaxAttempts of zero disables reconnecting.
type ReconnectConfig struct {
	MaxAttempts  int      `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     Duration `json:"max_delay" yaml:"max_delay"`
}

// ControlConfig configures the control socket client and dispatcher
type ControlConfig struct {
	Host        string   `json:"host" yaml:"host"`
	Port        int      `json:"port" yaml:"port"`
	DialTimeout Duration `json:"dial_timeout" yaml:"dial_timeout"`
	SettleDelay Duration `json:"settle_delay" yaml:"settle_delay"`
	ReadTimeout Duration `json:"read_timeout" yaml:"read_timeout"`
	Workers     int      `json:"workers" yaml:"workers"`
	QueueSize   int      `json:"queue_size" yaml:"queue_size"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	Path    string `json:"path" yaml:"path"`

	TLS tlsutil.ServerConfig `json:"tls" yaml:"tls"`
}

// NATSConfig configures optional telemetry publication
type NATSConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	URLs          []string `json:"urls,omitempty" yaml:"urls,omitempty"`
	Subject       string   `json:"subject" yaml:"subject"`
	MaxReconnects int      `json:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
	Username      string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string   `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string   `json:"token,omitempty" yaml:"token,omitempty"`

	TLS tlsutil.ClientConfig `json:"tls" yaml:"tls"`
}

// WebConfig configures the WebSocket telemetry broadcaster
type WebConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	Addr         string `json:"addr" yaml:"addr"`
	Path         string `json:"path" yaml:"path"`
	ClientBuffer int    `json:"client_buffer" yaml:"client_buffer"`

	TLS tlsutil.ServerConfig `json:"tls" yaml:"tls"`
}

// RecordConfig configures the JSON Lines telemetry recorder
type RecordConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	Path          string   `json:"path" yaml:"path"`
	Append        bool     `json:"append" yaml:"append"`
	BufferSize    int      `json:"buffer_size" yaml:"buffer_size"`
	FlushInterval Duration `json:"flush_interval" yaml:"flush_interval"`
}

// LogConfig selects log level and format
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// UIConfig tunes the terminal interface
type UIConfig struct {
	TickInterval Duration `json:"tick_interval" yaml:"tick_interval"`
	LogLines     int      `json:"log_lines" yaml:"log_lines"`
	SpeedStep    int      `json:"speed_step" yaml:"speed_step"`
}

// Defaults returns the configuration used when no file or override is given.
func Defaults() *Config {
	return &Config{
		Session: SessionConfig{
			Host:            DefaultHost,
			Port:            DefaultSSHPort,
			CredentialsFile: DefaultCredentialsFile,
			Command:         DefaultCommand,
			Rows:            DefaultRows,
			Cols:            DefaultCols,
			DialTimeout:     Duration(10 * time.Second),
			ReadyDelay:      Duration(time.Second),
			SettleDelay:     Duration(2 * time.Second),
			PollInterval:    Duration(100 * time.Millisecond),
			ReadChunk:       4096,
			InsecureHostKey: true,
			Reconnect: ReconnectConfig{
				MaxAttempts:  10,
				InitialDelay: Duration(500 * time.Millisecond),
				MaxDelay:     Duration(30 * time.Second),
			},
		},
		Control: ControlConfig{
			Host:        DefaultHost,
			Port:        DefaultControlPort,
			DialTimeout: Duration(2 * time.Second),
			SettleDelay: Duration(250 * time.Millisecond),
			ReadTimeout: Duration(500 * time.Millisecond),
			Workers:     1,
			QueueSize:   16,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
			Path: "/metrics",
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			Subject:       "robotmon",
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		Web: WebConfig{
			Addr:         ":8081",
			Path:         "/telemetry",
			ClientBuffer: 64,
		},
		Record: RecordConfig{
			Path:          "robotmon-telemetry.jsonl",
			Append:        true,
			BufferSize:    100,
			FlushInterval: Duration(time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		UI: UIConfig{
			TickInterval: Duration(50 * time.Millisecond),
			LogLines:     200,
			SpeedStep:    100,
		},
	}
}

// Validate checks the configuration for values the monitor cannot run with.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	s := c.Session
	check(s.Host != "", "session.host is required")
	check(validPort(s.Port), "session.port %d out of range", s.Port)
	check(s.CredentialsFile != "", "session.credentials_file is required")
	check(s.Rows > 0 && s.Cols > 0, "session.rows and session.cols must be positive")
	check(s.PollInterval > 0, "session.poll_interval must be positive")
	check(s.ReadChunk > 0, "session.read_chunk must be positive")
	check(s.ReadyDelay >= 0 && s.SettleDelay >= 0, "session delays cannot be negative")
	check(s.KnownHostsFile != "" || s.InsecureHostKey,
		"session.known_hosts_file is required unless session.insecure_host_key is set")
	check(s.Reconnect.MaxAttempts >= 0, "session.reconnect.max_attempts cannot be negative")
	check(s.Reconnect.MaxDelay >= s.Reconnect.InitialDelay,
		"session.reconnect.max_delay must be >= initial_delay")

	ctl := c.Control
	check(ctl.Host != "", "control.host is required")
	check(validPort(ctl.Port), "control.port %d out of range", ctl.Port)
	check(ctl.ReadTimeout > 0, "control.read_timeout must be positive")
	check(ctl.Workers > 0, "control.workers must be positive")
	check(ctl.QueueSize > 0, "control.queue_size must be positive")

	if c.NATS.Enabled {
		check(len(c.NATS.URLs) > 0, "nats.urls is required when nats is enabled")
		check(c.NATS.Subject != "", "nats.subject is required when nats is enabled")
		if err := c.NATS.TLS.Validate(); err != nil {
			problems = append(problems, "nats.tls: "+err.Error())
		}
	}
	if c.Metrics.Enabled {
		if err := c.Metrics.TLS.Validate(); err != nil {
			problems = append(problems, "metrics.tls: "+err.Error())
		}
	}
	if c.Web.Enabled {
		check(c.Web.Addr != "", "websocket.addr is required when the broadcaster is enabled")
		check(strings.HasPrefix(c.Web.Path, "/"), "websocket.path must start with /")
		check(c.Web.ClientBuffer > 0, "websocket.client_buffer must be positive")
		if err := c.Web.TLS.Validate(); err != nil {
			problems = append(problems, "websocket.tls: "+err.Error())
		}
	}
	if c.Record.Enabled {
		check(c.Record.Path != "", "record.path is required when recording is enabled")
		check(c.Record.BufferSize > 0, "record.buffer_size must be positive")
		check(c.Record.FlushInterval > 0, "record.flush_interval must be positive")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not json or text", c.Log.Format))
	}

	check(c.UI.TickInterval > 0, "ui.tick_interval must be positive")
	check(c.UI.LogLines > 0, "ui.log_lines must be positive")

	if len(problems) > 0 {
		return errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"Config", "Validate", "validate configuration")
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// SessionAddr returns host:port of the SSH console.
func (c *Config) SessionAddr() string {
	return c.Session.Host + ":" + strconv.Itoa(c.Session.Port)
}

// ControlAddr returns host:port of the control socket.
func (c *Config) ControlAddr() string {
	return c.Control.Host + ":" + strconv.Itoa(c.Control.Port)
}

// String returns a JSON representation with secrets masked.
func (c *Config) String() string {
	masked := *c
	if masked.NATS.Password != "" {
		masked.NATS.Password = "****"
	}
	if masked.NATS.Token != "" {
		masked.NATS.Token = "****"
	}
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}
