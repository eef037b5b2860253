package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/benkokes/elite-EI65-robot-controller/control"
	"github.com/benkokes/elite-EI65-robot-controller/input/console"
	"github.com/benkokes/elite-EI65-robot-controller/processor/report"
)

var subcommands = []string{"status", "stop", "speed", "move", "watch"}

// runOneShot executes a control subcommand against commander.
func runOneShot(ctx context.Context, commander control.Commander, args []string, out io.Writer) error {
	switch args[0] {
	case "status":
		return runStatus(ctx, commander, out)
	case "stop":
		if err := commander.Stop(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, "stop sent")
		return nil
	case "speed":
		return runSpeed(ctx, commander, args[1:], out)
	case "move":
		return runMove(ctx, commander, args[1:], out)
	}
	return fmt.Errorf("unknown command: %s", args[0])
}

func runStatus(ctx context.Context, commander control.Commander, out io.Writer) error {
	st := commander.QueryStatus(ctx)
	_, _ = fmt.Fprintf(out, "MODE:  %s\nSPEED: %s\nCOORD: %s\nSERVO: %s\n",
		st.Mode.Value, st.Speed.Value, st.Coord.Value, st.Servo.Value)
	if st.Failed() {
		return fmt.Errorf("status query incomplete")
	}
	return nil
}

func runSpeed(ctx context.Context, commander control.Commander, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("speed takes exactly one value")
	}
	speed, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid speed value (must be an integer): %q", args[0])
	}
	if err := commander.SetSpeed(ctx, speed); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "speed %d sent\n", speed)
	return nil
}

func parseTargets(args []string) (report.JointAngles, error) {
	if len(args) != len(report.JointOrder) {
		return nil, fmt.Errorf("move takes %d joint values (%v), got %d",
			len(report.JointOrder), report.JointOrder, len(args))
	}
	targets := make(report.JointAngles, len(args))
	for i, name := range report.JointOrder {
		v, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %q", name, args[i])
		}
		targets[name] = v
	}
	return targets, nil
}

func runMove(ctx context.Context, commander control.Commander, args []string, out io.Writer) error {
	targets, err := parseTargets(args)
	if err != nil {
		return err
	}
	if err := commander.Move(ctx, targets); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, control.MoveCommand(targets))
	return nil
}

// watch logs every telemetry record until ctx ends or the session fails.
func watch(ctx context.Context, in *console.Input, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-in.Done():
			logTelemetry(in, logger)
			return in.Err()
		case <-ticker.C:
			logTelemetry(in, logger)
		}
	}
}

func logTelemetry(in *console.Input, logger *slog.Logger) {
	for _, j := range in.JointQueue().Drain() {
		attrs := make([]any, 0, 2*len(report.JointOrder))
		for _, name := range report.JointOrder {
			attrs = append(attrs, name, j[name])
		}
		logger.Info("Joint angles", attrs...)
	}
	for _, p := range in.PlcQueue().Drain() {
		logger.Info("PLC states",
			"plc_in", report.FormatBits(p.PlcIn),
			"plc_out", report.FormatBits(p.PlcOut))
	}
}
