// Package file records console telemetry to a JSON Lines file.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benkokes/elite-EI65-robot-controller/component"
	"github.com/benkokes/elite-EI65-robot-controller/errors"
	"github.com/benkokes/elite-EI65-robot-controller/pkg/timestamp"
	"github.com/benkokes/elite-EI65-robot-controller/processor/report"
)

// Record kinds
const (
	KindJoints = "joints"
	KindPlc    = "plc"
)

// Record is one line of the telemetry file.
type Record struct {
	Timestamp int64              `json:"ts"` // Unix milliseconds
	Kind      string             `json:"kind"`
	Joints    report.JointAngles `json:"joints,omitempty"`
	PlcIn     *string            `json:"plc_in,omitempty"`
	PlcOut    *string            `json:"plc_out,omitempty"`
}

// Config holds configuration for the recorder
type Config struct {
	Path          string
	Append        bool
	BufferSize    int
	FlushInterval time.Duration
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "path is required")
	}
	if c.BufferSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "buffer_size must be positive")
	}
	if c.FlushInterval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "flush_interval must be positive")
	}
	return nil
}

// DefaultConfig returns default configuration for the recorder
func DefaultConfig() Config {
	return Config{
		Path:          "robotmon-telemetry.jsonl",
		Append:        true,
		BufferSize:    100,
		FlushInterval: time.Second,
	}
}

// Output writes telemetry records to a file. Records are buffered and
// written when the buffer fills, on every flush interval and on Stop.
type Output struct {
	name   string
	config Config
	logger *slog.Logger
	now    func() time.Time

	file   *os.File
	writer *bufio.Writer
	fileMu sync.Mutex

	buffer   [][]byte
	bufferMu sync.Mutex

	shutdown    chan struct{}
	wg          sync.WaitGroup
	running     atomic.Bool
	lifecycleMu sync.Mutex

	mu           sync.RWMutex
	startTime    time.Time
	lastActivity time.Time
	lastError    string

	recordsWritten atomic.Int64
	bytesWritten   atomic.Int64
	failures       atomic.Int64
}

// NewOutput creates a recorder. The file is opened by Start.
func NewOutput(cfg Config, logger *slog.Logger) (*Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Output{
		name:   "telemetry-recorder",
		config: cfg,
		logger: logger.With("component", "telemetry-recorder", "path", cfg.Path),
		now:    time.Now,
		buffer: make([][]byte, 0, cfg.BufferSize),
	}, nil
}

// Initialize creates the output directory.
func (f *Output) Initialize() error {
	if err := os.MkdirAll(filepath.Dir(f.config.Path), 0o755); err != nil {
		return errors.WrapFatal(err, "Output", "Initialize", "create output directory")
	}
	return nil
}

// Start opens the file and begins periodic flushing.
func (f *Output) Start(_ context.Context) error {
	f.lifecycleMu.Lock()
	defer f.lifecycleMu.Unlock()

	if f.running.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Output", "Start", "check running state")
	}

	flags := os.O_CREATE | os.O_WRONLY
	if f.config.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(f.config.Path, flags, 0o644)
	if err != nil {
		return errors.WrapFatal(err, "Output", "Start", "open output file")
	}

	f.fileMu.Lock()
	f.file = file
	f.writer = bufio.NewWriter(file)
	f.fileMu.Unlock()

	f.shutdown = make(chan struct{})
	f.wg.Add(1)
	go f.flushLoop(f.shutdown)

	f.mu.Lock()
	f.startTime = f.now()
	f.mu.Unlock()
	f.running.Store(true)

	f.logger.Info("Telemetry recorder started", "append", f.config.Append)
	return nil
}

// Stop flushes what is buffered and closes the file.
func (f *Output) Stop(timeout time.Duration) error {
	f.lifecycleMu.Lock()
	defer f.lifecycleMu.Unlock()

	if !f.running.Swap(false) {
		return nil
	}
	close(f.shutdown)

	waitCh := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout), "Output", "Stop", "wait for flush loop")
	}

	f.flush()

	f.fileMu.Lock()
	defer f.fileMu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file, f.writer = nil, nil
	if err != nil {
		return errors.WrapTransient(err, "Output", "Stop", "close output file")
	}
	f.logger.Info("Telemetry recorder stopped", "records", f.recordsWritten.Load())
	return nil
}

// PublishJoints records one set of joint angles.
func (f *Output) PublishJoints(_ context.Context, joints report.JointAngles) error {
	return f.record(Record{Kind: KindJoints, Joints: joints})
}

// PublishPlc records one PLC state report.
func (f *Output) PublishPlc(_ context.Context, plc report.PlcStateReport) error {
	return f.record(Record{Kind: KindPlc, PlcIn: plc.PlcIn, PlcOut: plc.PlcOut})
}

func (f *Output) record(rec Record) error {
	if !f.running.Load() {
		return errors.WrapTransient(errors.ErrNotStarted, "Output", "record", "recorder not running")
	}

	at := f.now()
	rec.Timestamp = timestamp.ToUnixMs(at)
	line, err := json.Marshal(rec)
	if err != nil {
		f.failures.Add(1)
		return errors.WrapInvalid(err, "Output", "record", "encode record")
	}

	f.bufferMu.Lock()
	f.buffer = append(f.buffer, line)
	full := len(f.buffer) >= f.config.BufferSize
	f.bufferMu.Unlock()

	f.mu.Lock()
	f.lastActivity = at
	f.mu.Unlock()

	if full {
		f.flush()
	}
	return nil
}

func (f *Output) flushLoop(shutdown <-chan struct{}) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-shutdown:
			return
		case <-ticker.C:
			f.flush()
		}
	}
}

// flush writes buffered records and syncs the writer to the file.
func (f *Output) flush() {
	f.bufferMu.Lock()
	if len(f.buffer) == 0 {
		f.bufferMu.Unlock()
		return
	}
	lines := f.buffer
	f.buffer = make([][]byte, 0, f.config.BufferSize)
	f.bufferMu.Unlock()

	f.fileMu.Lock()
	defer f.fileMu.Unlock()

	if f.writer == nil {
		f.failures.Add(int64(len(lines)))
		f.logger.Error("Records dropped, file not open", "count", len(lines))
		return
	}

	for _, line := range lines {
		n, err := f.writer.Write(append(line, '\n'))
		if err != nil {
			f.fail(err)
			continue
		}
		f.recordsWritten.Add(1)
		f.bytesWritten.Add(int64(n))
	}
	if err := f.writer.Flush(); err != nil {
		f.fail(err)
	}
}

func (f *Output) fail(err error) {
	f.failures.Add(1)
	f.mu.Lock()
	f.lastError = err.Error()
	f.mu.Unlock()
	f.logger.Error("Failed to write telemetry record", "error", err)
}

// Stats returns records and bytes written so far.
func (f *Output) Stats() (records, bytes int64) {
	return f.recordsWritten.Load(), f.bytesWritten.Load()
}

// Meta returns component metadata
func (f *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        f.name,
		Type:        "output",
		Description: "JSON Lines telemetry recorder",
		Version:     "1.0.0",
	}
}

// Health returns the current health status
func (f *Output) Health() component.HealthStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var uptime time.Duration
	if !f.startTime.IsZero() {
		uptime = time.Since(f.startTime)
	}
	return component.HealthStatus{
		Healthy:    f.running.Load() && f.lastError == "",
		LastCheck:  time.Now(),
		ErrorCount: int(f.failures.Load()),
		LastError:  f.lastError,
		Uptime:     uptime,
	}
}

// DataFlow returns current data flow metrics
func (f *Output) DataFlow() component.FlowMetrics {
	f.mu.RLock()
	defer f.mu.RUnlock()

	flow := component.FlowMetrics{LastActivity: f.lastActivity}
	if f.startTime.IsZero() {
		return flow
	}
	if elapsed := time.Since(f.startTime).Seconds(); elapsed > 0 {
		flow.MessagesPerSecond = float64(f.recordsWritten.Load()) / elapsed
		flow.BytesPerSecond = float64(f.bytesWritten.Load()) / elapsed
	}
	if written := f.recordsWritten.Load(); written > 0 {
		flow.ErrorRate = float64(f.failures.Load()) / float64(written)
	}
	return flow
}

var _ component.LifecycleComponent = (*Output)(nil)
