package console

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
	"github.com/benkokes/elite-EI65-robot-controller/pkg/retry"
	"github.com/benkokes/elite-EI65-robot-controller/screen"
)

// ReconnectConfig bounds reconnect attempts after an established session
// drops. MaxAttempts of 0 disables reconnecting.
type ReconnectConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Config holds everything needed to attach to the controller console.
type Config struct {
	Host            string
	Port            int
	CredentialsFile string
	// Command is typed into the shell once it is ready.
	Command string
	Rows    int
	Cols    int

	DialTimeout  time.Duration
	ReadyDelay   time.Duration
	SettleDelay  time.Duration
	PollInterval time.Duration
	ReadChunk    int

	KnownHostsFile  string
	InsecureHostKey bool

	Reconnect ReconnectConfig
}

// DefaultConfig mirrors the console timings the controller expects.
func DefaultConfig() Config {
	return Config{
		Host:            "192.168.1.200",
		Port:            22,
		CredentialsFile: "robot_credentials",
		Command:         "cd /rbctrl && ./robotmon",
		Rows:            screen.DefaultRows,
		Cols:            screen.DefaultCols,
		DialTimeout:     10 * time.Second,
		ReadyDelay:      time.Second,
		SettleDelay:     2 * time.Second,
		PollInterval:    100 * time.Millisecond,
		ReadChunk:       4096,
		InsecureHostKey: true,
		Reconnect: ReconnectConfig{
			MaxAttempts:  10,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     30 * time.Second,
		},
	}
}

// Addr returns host:port of the SSH endpoint.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the configuration without touching the network.
func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Host != "", "host is required")
	check(c.Port > 0 && c.Port <= 65535, fmt.Sprintf("port %d out of range", c.Port))
	check(c.CredentialsFile != "", "credentials file is required")
	check(c.Rows > 0 && c.Cols > 0, "rows and cols must be positive")
	check(c.PollInterval > 0, "poll interval must be positive")
	check(c.ReadChunk > 0, "read chunk must be positive")
	check(c.ReadyDelay >= 0 && c.SettleDelay >= 0, "delays cannot be negative")
	check(c.KnownHostsFile != "" || c.InsecureHostKey, "known hosts file or insecure host key is required")
	check(c.Reconnect.MaxAttempts >= 0, "reconnect attempts cannot be negative")

	if len(problems) > 0 {
		return errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"Config", "Validate", "console configuration")
	}
	return nil
}

func (c Config) retryConfig() retry.Config {
	cfg := retry.Reconnect()
	cfg.MaxAttempts = c.Reconnect.MaxAttempts
	if c.Reconnect.InitialDelay > 0 {
		cfg.InitialDelay = c.Reconnect.InitialDelay
	}
	if c.Reconnect.MaxDelay > 0 {
		cfg.MaxDelay = c.Reconnect.MaxDelay
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	return cfg
}
