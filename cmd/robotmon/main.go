// Package main implements robotmon, the monitor and operator console for
// Elite robot controllers. Without a subcommand it runs the interactive
// terminal interface; status, stop, speed and move issue a single control
// command; watch streams console telemetry to the log.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/benkokes/elite-EI65-robot-controller/config"
	"github.com/benkokes/elite-EI65-robot-controller/pkg/buffer"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "robotmon"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("robotmon failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cli, err := parseFlags(args, stderr)
	if err != nil {
		if stderrors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cli); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cli.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s (%s)\n", appName, Version, BuildTime)
		return nil
	}
	if cli.ShowHelp {
		printHelp(stderr, cli.flags)
		return nil
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if cli.Validate {
		_, _ = fmt.Fprintln(stdout, "Configuration is valid")
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(cli.Command) == 0 {
		return runTUI(ctx, cli, cfg)
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cli.Command[0] == "watch" {
		return runWatch(ctx, cli, cfg, logger)
	}

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	return runOneShot(ctx, a.client, cli.Command, stdout)
}

// loadConfig layers the optional file, ROBOTMON_* variables and flags.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(false)
	if cli.ConfigPath != "" {
		loader.AddLayer(cli.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyFlags(cli, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runWatch(ctx context.Context, cli *CLIConfig, cfg *config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger, appOptions{console: true})
	if err != nil {
		return err
	}
	if err := a.start(ctx); err != nil {
		return err
	}
	logger.Info("Watching console", "addr", cfg.SessionAddr())

	werr := watch(ctx, a.console, cfg.UI.TickInterval.D(), logger)
	if err := a.stop(cli.ShutdownTimeout); err != nil {
		logger.Warn("Shutdown incomplete", "error", err)
	}
	return werr
}

func runTUI(ctx context.Context, cli *CLIConfig, cfg *config.Config) error {
	lines, err := buffer.NewCircularBuffer[string](cfg.UI.LogLines)
	if err != nil {
		return err
	}
	logger, closer, err := setupPaneLogger(cfg.Log.Level, cfg.Log.Format, cli.LogFile, lines)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	a, err := newApp(ctx, cfg, logger, appOptions{console: true, dispatcher: true})
	if err != nil {
		return err
	}
	if err := a.start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := a.stop(cli.ShutdownTimeout); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "shutdown incomplete: %v\n", err)
		}
	}()

	m := newModel(modelDeps{
		Joints:    a.console.JointQueue(),
		Plc:       a.console.PlcQueue(),
		Control:   a.dispatcher,
		Session:   a.console,
		Logs:      lines,
		Logger:    logger,
		Tick:      cfg.UI.TickInterval.D(),
		SpeedStep: cfg.UI.SpeedStep,
	})

	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		if stderrors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
