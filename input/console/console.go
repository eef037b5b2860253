// Package console attaches to the controller's interactive SSH console and
// turns its redrawn screen into joint-angle and PLC telemetry.
package console

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benkokes/elite-EI65-robot-controller/component"
	"github.com/benkokes/elite-EI65-robot-controller/errors"
	"github.com/benkokes/elite-EI65-robot-controller/metric"
	"github.com/benkokes/elite-EI65-robot-controller/pkg/buffer"
	"github.com/benkokes/elite-EI65-robot-controller/pkg/retry"
	"github.com/benkokes/elite-EI65-robot-controller/processor/report"
	"github.com/benkokes/elite-EI65-robot-controller/screen"
)

// TelemetrySink receives every record the input queues.
type TelemetrySink interface {
	PublishJoints(ctx context.Context, joints report.JointAngles) error
	PublishPlc(ctx context.Context, plc report.PlcStateReport) error
}

// InputDeps holds runtime dependencies for the console input
type InputDeps struct {
	Name            string
	Config          Config
	Sink            TelemetrySink           // optional
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger
}

// Input streams the controller console. One goroutine owns the session;
// results reach consumers only through the joint and PLC queues.
type Input struct {
	name      string
	config    Config
	sink      TelemetrySink
	logger    *slog.Logger
	metrics   *Metrics
	core      *metric.Metrics
	screen    *screen.Buffer
	extractor *report.Extractor

	joints *buffer.Queue[report.JointAngles]
	plc    *buffer.Queue[report.PlcStateReport]

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	running   atomic.Bool
	connected atomic.Bool
	startTime time.Time
	lastError string
	termErr   error

	bytesReceived atomic.Int64
	records       atomic.Int64
	errorCount    atomic.Int64
	reconnects    atomic.Int64
	lastActivity  atomic.Value // time.Time
}

var (
	_ component.Discoverable       = (*Input)(nil)
	_ component.LifecycleComponent = (*Input)(nil)
)

// NewInput creates the console input. Queues are created here so consumers
// can hold them before Start.
func NewInput(deps InputDeps) (*Input, error) {
	name := deps.Name
	if name == "" {
		name = "console"
	}
	cfg := deps.Config
	defaults := DefaultConfig()
	if cfg.Rows <= 0 || cfg.Cols <= 0 {
		cfg.Rows, cfg.Cols = defaults.Rows, defaults.Cols
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.ReadChunk <= 0 {
		cfg.ReadChunk = defaults.ReadChunk
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", name, "host", cfg.Host)

	metrics, err := newMetrics(deps.MetricsRegistry, name)
	if err != nil {
		return nil, err
	}

	joints, err := buffer.NewQueue[report.JointAngles](
		buffer.WithMetrics[report.JointAngles](deps.MetricsRegistry, name+"_joints"))
	if err != nil {
		return nil, err
	}
	plc, err := buffer.NewQueue[report.PlcStateReport](
		buffer.WithMetrics[report.PlcStateReport](deps.MetricsRegistry, name+"_plc"))
	if err != nil {
		return nil, err
	}

	in := &Input{
		name:      name,
		config:    cfg,
		sink:      deps.Sink,
		logger:    logger,
		metrics:   metrics,
		screen:    screen.New(cfg.Cols, cfg.Rows),
		extractor: report.NewExtractor(logger),
		joints:    joints,
		plc:       plc,
	}
	if deps.MetricsRegistry != nil {
		in.core = deps.MetricsRegistry.CoreMetrics()
	}
	in.lastActivity.Store(time.Time{})
	return in, nil
}

// JointQueue carries one JointAngles per screen update that showed a readout.
func (in *Input) JointQueue() *buffer.Queue[report.JointAngles] { return in.joints }

// PlcQueue carries one report per screen update that showed either PLC row.
func (in *Input) PlcQueue() *buffer.Queue[report.PlcStateReport] { return in.plc }

// Screen exposes the reconstructed console for display.
func (in *Input) Screen() *screen.Buffer { return in.screen }

// Connected reports whether an SSH session is currently established.
func (in *Input) Connected() bool { return in.connected.Load() }

// Meta returns the component metadata
func (in *Input) Meta() component.Metadata {
	return component.Metadata{
		Name:        in.name,
		Type:        "input",
		Description: fmt.Sprintf("SSH console stream from %s", in.config.Addr()),
		Version:     "1.0.0",
	}
}

// Health is healthy while the session is connected.
func (in *Input) Health() component.HealthStatus {
	in.mu.RLock()
	defer in.mu.RUnlock()

	var uptime time.Duration
	if !in.startTime.IsZero() {
		uptime = time.Since(in.startTime)
	}
	return component.HealthStatus{
		Healthy:    in.running.Load() && in.connected.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(in.errorCount.Load()),
		LastError:  in.lastError,
		Uptime:     uptime,
	}
}

// DataFlow returns the current data flow metrics
func (in *Input) DataFlow() component.FlowMetrics {
	in.mu.RLock()
	start := in.startTime
	in.mu.RUnlock()

	lastActivity, _ := in.lastActivity.Load().(time.Time)
	flow := component.FlowMetrics{LastActivity: lastActivity}
	if start.IsZero() {
		return flow
	}
	records := in.records.Load()
	if uptime := time.Since(start).Seconds(); uptime > 0 {
		flow.MessagesPerSecond = float64(records) / uptime
		flow.BytesPerSecond = float64(in.bytesReceived.Load()) / uptime
	}
	if records > 0 {
		flow.ErrorRate = float64(in.errorCount.Load()) / float64(records)
	}
	return flow
}

// Initialize validates the configuration. It does no I/O.
func (in *Input) Initialize() error {
	return in.config.Validate()
}

// Start launches the session goroutine. Setup failures surface through
// Health and the log, not here, since they happen asynchronously.
func (in *Input) Start(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.running.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Input", "Start", "start console session")
	}

	if in.cancel != nil {
		in.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	in.cancel = cancel
	in.done = make(chan struct{})
	in.startTime = time.Now()
	in.termErr = nil
	in.running.Store(true)

	go in.run(runCtx, in.done)
	return nil
}

// Stop cancels the session and waits for it to wind down. It is a no-op
// before Start and after a previous Stop.
func (in *Input) Stop(timeout time.Duration) error {
	in.mu.Lock()
	cancel, done := in.cancel, in.done
	in.cancel = nil
	in.running.Store(false)
	in.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"Input", "Stop", "graceful shutdown")
	}
}

// Done is closed when the session goroutine exits, either after Stop or
// after a fatal failure. It is nil before Start.
func (in *Input) Done() <-chan struct{} {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.done
}

// Err returns the failure that ended the session, if any.
func (in *Input) Err() error {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.termErr
}

func (in *Input) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer in.running.Store(false)

	sh, err := in.establish(ctx)
	if err != nil {
		if ctx.Err() == nil {
			in.fail(errors.WrapFatal(err, "Input", "run", "establish session"), "Console session setup failed")
		}
		return
	}
	in.logger.Info("Console session established", "addr", in.config.Addr())

	for {
		in.setConnected(true)
		err := in.stream(ctx, sh)
		_ = sh.Close()
		in.setConnected(false)

		if ctx.Err() != nil {
			in.logger.Info("Console session stopped")
			return
		}
		in.recordError(err)
		in.logger.Warn("Console connection lost", "error", err)

		if in.config.Reconnect.MaxAttempts == 0 {
			in.fail(err, "Console session ended and reconnect is disabled")
			return
		}

		cfg := in.config.retryConfig()
		cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
			in.logger.Warn("Console reconnect attempt failed", "attempt", attempt, "retry_in", delay, "error", err)
		}
		sh, err = retry.DoWithResult(ctx, cfg, func() (*shell, error) {
			return in.establish(ctx)
		})
		if err != nil {
			if ctx.Err() == nil {
				in.fail(err, "Console reconnect failed")
			}
			return
		}

		in.screen.Reset()
		in.reconnects.Add(1)
		if in.metrics != nil {
			in.metrics.reconnects.Inc()
		}
		in.logger.Info("Console session re-established", "reconnects", in.reconnects.Load())
	}
}

// establish dials, opens the shell and runs the startup command.
func (in *Input) establish(ctx context.Context) (*shell, error) {
	sh, err := in.dial(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.startCommand(ctx, sh); err != nil {
		_ = sh.Close()
		return nil, err
	}
	return sh, nil
}

// stream pumps console output through the screen until the session ends.
// It returns nil only when ctx is cancelled.
func (in *Input) stream(ctx context.Context, sh *shell) error {
	chunks := make(chan []byte, 64)
	quit := make(chan struct{})
	defer close(quit)

	var readErr error
	go func() {
		defer close(chunks)
		buf := make([]byte, in.config.ReadChunk)
		for {
			n, err := sh.stdout.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case chunks <- data:
				case <-quit:
					return
				}
			}
			if err != nil {
				readErr = err
				return
			}
		}
	}()

	ticker := time.NewTicker(in.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		batch, open := drain(chunks)
		if len(batch) > 0 {
			in.consume(ctx, batch)
		}
		if !open {
			if stderrors.Is(readErr, io.EOF) {
				return errors.WrapTransient(errors.ErrSessionClosed, "Input", "stream", "read console")
			}
			return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionLost, readErr),
				"Input", "stream", "read console")
		}
	}
}

// drain takes every chunk already waiting without blocking.
func drain(chunks <-chan []byte) (batch [][]byte, open bool) {
	for {
		select {
		case data, ok := <-chunks:
			if !ok {
				return batch, false
			}
			batch = append(batch, data)
		default:
			return batch, true
		}
	}
}

// consume feeds a batch of reads and extracts telemetry from the result.
func (in *Input) consume(ctx context.Context, batch [][]byte) {
	now := time.Now()
	for _, data := range batch {
		in.bytesReceived.Add(int64(len(data)))
		in.screen.FeedString(strings.ToValidUTF8(string(data), ""))
		if in.metrics != nil {
			in.metrics.chunksReceived.Inc()
			in.metrics.bytesReceived.Add(float64(len(data)))
		}
	}
	in.lastActivity.Store(now)
	if in.metrics != nil {
		in.metrics.lastActivity.Set(float64(now.Unix()))
	}

	res, err := in.extractor.Process(in.screen.Snapshot())
	if err != nil {
		in.recordError(err)
		if in.metrics != nil {
			in.metrics.parseErrors.Inc()
		}
	}

	if res.JointsOK {
		in.publishJoints(ctx, res.Joints)
	}
	if !res.Plc.IsEmpty() {
		in.publishPlc(ctx, res.Plc)
	}
}

func (in *Input) publishJoints(ctx context.Context, joints report.JointAngles) {
	if err := in.joints.Write(joints); err != nil {
		in.logger.Debug("Joint queue closed", "error", err)
		return
	}
	in.countRecord("joints")
	if in.sink != nil {
		if err := in.sink.PublishJoints(ctx, joints); err != nil {
			in.logger.Warn("Failed to publish joint angles", "error", err)
		}
	}
}

func (in *Input) publishPlc(ctx context.Context, plc report.PlcStateReport) {
	if err := in.plc.Write(plc); err != nil {
		in.logger.Debug("PLC queue closed", "error", err)
		return
	}
	in.countRecord("plc")
	if in.sink != nil {
		if err := in.sink.PublishPlc(ctx, plc); err != nil {
			in.logger.Warn("Failed to publish PLC states", "error", err)
		}
	}
}

func (in *Input) countRecord(kind string) {
	in.records.Add(1)
	if in.metrics != nil {
		in.metrics.extractions.WithLabelValues(kind).Inc()
	}
	if in.core != nil {
		in.core.RecordTelemetry(kind)
	}
}

func (in *Input) setConnected(ok bool) {
	in.connected.Store(ok)
	if in.metrics != nil {
		v := 0.0
		if ok {
			v = 1
		}
		in.metrics.connected.Set(v)
	}
	if in.core != nil {
		in.core.RecordHealthStatus(in.name, ok)
	}
}

func (in *Input) recordError(err error) {
	if err == nil {
		return
	}
	in.errorCount.Add(1)
	in.mu.Lock()
	in.lastError = err.Error()
	in.mu.Unlock()
	if in.core != nil {
		in.core.RecordError(in.name, errors.Classify(err).String())
	}
}

// fail records a terminal error. Setup failures are never retried.
func (in *Input) fail(err error, msg string) {
	in.recordError(err)
	in.mu.Lock()
	in.termErr = err
	in.mu.Unlock()
	in.logger.Error(msg, "error", err, "fatal", errors.IsFatal(err))
}
