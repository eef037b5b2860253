package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/benkokes/elite-EI65-robot-controller/config"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	Host            string
	SSHPort         int
	ControlPort     int
	CredentialsFile string
	KnownHosts      string
	LogLevel        string
	LogFormat       string
	LogFile         string
	Debug           bool
	MetricsAddr     string
	Metrics         bool
	NATS            bool
	NATSURLs        []string
	RecordPath      string
	WebAddr         string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool

	// Command is the subcommand and its arguments; empty runs the TUI.
	Command []string

	flags *pflag.FlagSet
}

func newFlagSet(cfg *CLIConfig) *pflag.FlagSet {
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	fs.SetInterspersed(false)

	fs.StringVarP(&cfg.ConfigPath, "config", "c",
		getEnv("ROBOTMON_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: ROBOTMON_CONFIG)")
	fs.StringVar(&cfg.Host, "host", "",
		"Controller address for both the console and the control socket")
	fs.IntVar(&cfg.SSHPort, "ssh-port", 0, "Console SSH port")
	fs.IntVar(&cfg.ControlPort, "control-port", 0, "Control socket port")
	fs.StringVar(&cfg.CredentialsFile, "credentials", "",
		"Two-line credentials file: username, then password")
	fs.StringVar(&cfg.KnownHosts, "known-hosts", "",
		"known_hosts file used to verify the controller's host key")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("ROBOTMON_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: ROBOTMON_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("ROBOTMON_LOG_FORMAT", ""),
		"Log format: json, text (env: ROBOTMON_LOG_FORMAT)")
	fs.StringVar(&cfg.LogFile, "log-file", "",
		"In TUI mode, also write logs to this file")
	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("ROBOTMON_DEBUG", false),
		"Enable debug logging (env: ROBOTMON_DEBUG)")

	fs.BoolVar(&cfg.Metrics, "metrics", false, "Serve Prometheus metrics and /health")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Metrics listen address")
	fs.BoolVar(&cfg.NATS, "nats", false, "Publish telemetry to NATS")
	fs.StringSliceVar(&cfg.NATSURLs, "nats-url", nil, "NATS server URL (repeatable)")
	fs.StringVar(&cfg.RecordPath, "record", "", "Record telemetry to this JSON Lines file")
	fs.StringVar(&cfg.WebAddr, "ws-addr", "", "Broadcast telemetry to WebSocket clients on this address")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("ROBOTMON_SHUTDOWN_TIMEOUT", 5*time.Second),
		"Graceful shutdown timeout (env: ROBOTMON_SHUTDOWN_TIMEOUT)")

	fs.BoolVarP(&cfg.ShowVersion, "version", "v", false, "Show version information")
	fs.BoolVarP(&cfg.ShowHelp, "help", "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")
	return fs
}

func parseFlags(args []string, stderr io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := newFlagSet(cfg)
	fs.SetOutput(stderr)
	fs.Usage = func() { printHelp(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Command = fs.Args()
	cfg.flags = fs

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// validateFlags checks flag values that the configuration cannot.
func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}
	if cfg.LogLevel != "" && !contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(cfg.LogLevel)) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !contains([]string{"json", "text"}, strings.ToLower(cfg.LogFormat)) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %v", cfg.ShutdownTimeout)
	}
	if len(cfg.Command) > 0 && !contains(subcommands, cfg.Command[0]) {
		return fmt.Errorf("unknown command: %s", cfg.Command[0])
	}
	return nil
}

// applyFlags overrides configuration with flags set on the command line.
func applyFlags(cli *CLIConfig, cfg *config.Config) {
	changed := func(name string) bool {
		return cli.flags != nil && cli.flags.Changed(name)
	}

	if changed("host") {
		cfg.Session.Host = cli.Host
		cfg.Control.Host = cli.Host
	}
	if changed("ssh-port") {
		cfg.Session.Port = cli.SSHPort
	}
	if changed("control-port") {
		cfg.Control.Port = cli.ControlPort
	}
	if changed("credentials") {
		cfg.Session.CredentialsFile = cli.CredentialsFile
	}
	if changed("known-hosts") {
		cfg.Session.KnownHostsFile = cli.KnownHosts
		cfg.Session.InsecureHostKey = cli.KnownHosts == ""
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}
	if changed("metrics") {
		cfg.Metrics.Enabled = cli.Metrics
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = cli.MetricsAddr
		cfg.Metrics.Enabled = true
	}
	if changed("nats") {
		cfg.NATS.Enabled = cli.NATS
	}
	if changed("nats-url") {
		cfg.NATS.URLs = cli.NATSURLs
		cfg.NATS.Enabled = true
	}
	if changed("ws-addr") {
		cfg.Web.Addr = cli.WebAddr
		cfg.Web.Enabled = cli.WebAddr != ""
	}
	if changed("record") {
		cfg.Record.Path = cli.RecordPath
		cfg.Record.Enabled = cli.RecordPath != ""
	}
}

func printHelp(w io.Writer, fs *pflag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - Elite robot controller monitor

Usage:
  %s [flags]                          interactive monitor
  %s [flags] status                   print mode, speed, coord and servo
  %s [flags] stop                     stop motion
  %s [flags] speed N                  set the speed set-point (0-10000)
  %s [flags] move S L U R B T J7 J8   move to joint targets
  %s [flags] watch                    log telemetry without a UI

Keys (interactive):
  y sync   m move   x stop   +/- speed   enter apply speed
  tab select joint   up/down adjust target   q quit

Flags:
`, appName, appName, appName, appName, appName, appName, appName)
	fs.SetOutput(w)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Environment:
  ROBOTMON_* variables override configuration file values, e.g.
  ROBOTMON_HOST, ROBOTMON_CREDENTIALS_FILE, ROBOTMON_NATS_URLS,
  ROBOTMON_RECORD_PATH.

Version: %s
`, Version)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
