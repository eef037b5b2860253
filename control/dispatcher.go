package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/benkokes/elite-EI65-robot-controller/component"
	"github.com/benkokes/elite-EI65-robot-controller/errors"
	"github.com/benkokes/elite-EI65-robot-controller/metric"
	"github.com/benkokes/elite-EI65-robot-controller/pkg/buffer"
	"github.com/benkokes/elite-EI65-robot-controller/pkg/worker"
	"github.com/benkokes/elite-EI65-robot-controller/processor/report"
)

// Commander is the control surface the dispatcher drives. *Client implements it.
type Commander interface {
	Send(ctx context.Context, command string) Response
	Move(ctx context.Context, targets report.JointAngles) error
	Stop(ctx context.Context) error
	SetSpeed(ctx context.Context, speed int) error
	QueryStatus(ctx context.Context) Status
}

// RequestKind selects which Commander call a Request performs.
type RequestKind string

// Request kinds.
const (
	KindQuery  RequestKind = "query"
	KindMove   RequestKind = "move"
	KindStop   RequestKind = "stop"
	KindSpeed  RequestKind = "speed"
	KindStatus RequestKind = "status"
)

// Request is one unit of control work.
type Request struct {
	ID      string             `json:"id"`
	Kind    RequestKind        `json:"kind"`
	Command string             `json:"command,omitempty"`
	Targets report.JointAngles `json:"targets,omitempty"`
	Speed   int                `json:"speed,omitempty"`
}

// QueryRequest builds a query for a single command.
func QueryRequest(command string) Request { return Request{Kind: KindQuery, Command: command} }

// MoveRequest builds a runForward request.
func MoveRequest(targets report.JointAngles) Request {
	cp := make(report.JointAngles, len(targets))
	for k, v := range targets {
		cp[k] = v
	}
	return Request{Kind: KindMove, Targets: cp}
}

// StopRequest builds a stop request.
func StopRequest() Request { return Request{Kind: KindStop} }

// SpeedRequest builds a speed set-point request.
func SpeedRequest(speed int) Request { return Request{Kind: KindSpeed, Speed: speed} }

// StatusRequest builds a full status query.
func StatusRequest() Request { return Request{Kind: KindStatus} }

// Result is a completed Request.
type Result struct {
	Request  Request       `json:"request"`
	Response *Response     `json:"response,omitempty"`
	Status   *Status       `json:"status,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
	Finished time.Time     `json:"finished"`
}

// Failed reports whether the request failed or produced a sentinel value.
func (r Result) Failed() bool {
	switch {
	case r.Err != nil:
		return true
	case r.Response != nil:
		return r.Response.IsError()
	case r.Status != nil:
		return r.Status.Failed()
	}
	return false
}

// DispatcherConfig sizes the dispatcher's worker pool.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
}

// DefaultDispatcherConfig keeps requests serialized on one worker.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{Workers: 1, QueueSize: 32}
}

// Dispatcher runs control requests off the caller's goroutine and hands
// results back through an unbounded queue. Its alert flag is raised by any
// failed request and cleared by the next successful one.
type Dispatcher struct {
	name      string
	commander Commander
	pool      *worker.Pool[Request]
	results   *buffer.Queue[Result]
	metrics   *metric.Metrics
	logger    *slog.Logger

	alert     atomic.Bool
	completed atomic.Int64
	failures  atomic.Int64

	mu         sync.RWMutex
	lastError  string
	lastActive time.Time
	startTime  time.Time
}

// NewDispatcher creates a dispatcher around commander. registry may be nil.
func NewDispatcher(commander Commander, cfg DispatcherConfig, registry *metric.MetricsRegistry, logger *slog.Logger) (*Dispatcher, error) {
	if commander == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Dispatcher", "NewDispatcher", "commander not provided")
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		name:      "control",
		commander: commander,
		logger:    logger.With("component", "dispatcher"),
	}
	if registry != nil {
		d.metrics = registry.CoreMetrics()
	}

	results, err := buffer.NewQueue[Result](buffer.WithMetrics[Result](registry, "control_results"))
	if err != nil {
		return nil, errors.WrapFatal(err, "Dispatcher", "NewDispatcher", "create result queue")
	}
	d.results = results

	pool, err := worker.NewPool(cfg.Workers, cfg.QueueSize, d.process,
		worker.WithMetricsRegistry[Request](registry, "control"))
	if err != nil {
		return nil, errors.WrapFatal(err, "Dispatcher", "NewDispatcher", "create worker pool")
	}
	d.pool = pool
	return d, nil
}

// Initialize satisfies component.LifecycleComponent.
func (d *Dispatcher) Initialize() error {
	return nil
}

// Start launches the workers.
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.pool.Start(ctx); err != nil {
		return errors.WrapInvalid(err, "Dispatcher", "Start", "start worker pool")
	}
	d.mu.Lock()
	d.startTime = time.Now()
	d.mu.Unlock()
	return nil
}

// Stop waits for queued requests up to timeout and closes the result queue.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	err := d.pool.Stop(timeout)
	_ = d.results.Close()
	if err != nil {
		return errors.WrapTransient(err, "Dispatcher", "Stop", "drain worker pool")
	}
	return nil
}

// Submit queues a request without blocking and returns its ID.
func (d *Dispatcher) Submit(req Request) (string, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := d.pool.Submit(req); err != nil {
		return "", errors.WrapTransient(err, "Dispatcher", "Submit", fmt.Sprintf("queue %s request", req.Kind))
	}
	return req.ID, nil
}

// Poll returns all completed results without blocking.
func (d *Dispatcher) Poll() []Result {
	return d.results.Drain()
}

// Alert reports whether the most recent request failed.
func (d *Dispatcher) Alert() bool {
	return d.alert.Load()
}

// Pending returns how many requests are queued or running.
func (d *Dispatcher) Pending() int64 {
	return d.pool.Stats().Pending()
}

func (d *Dispatcher) process(ctx context.Context, req Request) error {
	start := time.Now()
	res := Result{Request: req}

	switch req.Kind {
	case KindQuery:
		resp := d.commander.Send(ctx, req.Command)
		res.Response = &resp
	case KindStatus:
		status := d.commander.QueryStatus(ctx)
		res.Status = &status
	case KindMove:
		res.Err = d.commander.Move(ctx, req.Targets)
	case KindStop:
		res.Err = d.commander.Stop(ctx)
	case KindSpeed:
		res.Err = d.commander.SetSpeed(ctx, req.Speed)
	default:
		res.Err = errors.WrapInvalid(errors.ErrInvalidData, "Dispatcher", "process",
			fmt.Sprintf("unknown request kind %q", req.Kind))
	}

	res.Finished = time.Now()
	res.Duration = res.Finished.Sub(start)
	d.record(res)

	if err := d.results.Write(res); err != nil {
		d.logger.Debug("Result dropped after shutdown", "id", req.ID, "kind", req.Kind)
	}
	if res.Failed() {
		return res.Err
	}
	return nil
}

func (d *Dispatcher) record(res Result) {
	failed := res.Failed()
	d.alert.Store(failed)
	d.completed.Add(1)

	outcome := "success"
	if failed {
		outcome = "error"
		d.failures.Add(1)
	}

	d.mu.Lock()
	d.lastActive = res.Finished
	if failed {
		switch {
		case res.Err != nil:
			d.lastError = res.Err.Error()
		case res.Response != nil:
			d.lastError = res.Response.Value
		default:
			d.lastError = "status query failed"
		}
	}
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.RecordControlCommand(string(res.Request.Kind), outcome, res.Duration)
		if res.Err != nil {
			d.metrics.RecordError(d.name, errors.Classify(res.Err).String())
		}
	}

	if failed {
		d.logger.Warn("Control request failed", "id", res.Request.ID, "kind", res.Request.Kind,
			"error", res.Err, "duration", res.Duration)
		return
	}
	d.logger.Debug("Control request completed", "id", res.Request.ID, "kind", res.Request.Kind,
		"duration", res.Duration)
}

// Meta describes the dispatcher.
func (d *Dispatcher) Meta() component.Metadata {
	return component.Metadata{
		Name:        d.name,
		Type:        "control",
		Description: "Asynchronous control port client",
		Version:     "1.0.0",
	}
}

// Health reports degraded health while the alert flag is raised.
func (d *Dispatcher) Health() component.HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var uptime time.Duration
	if !d.startTime.IsZero() {
		uptime = time.Since(d.startTime)
	}
	return component.HealthStatus{
		Healthy:    !d.alert.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(d.failures.Load()),
		LastError:  d.lastError,
		Uptime:     uptime,
	}
}

// DataFlow reports request throughput since start.
func (d *Dispatcher) DataFlow() component.FlowMetrics {
	d.mu.RLock()
	defer d.mu.RUnlock()

	flow := component.FlowMetrics{LastActivity: d.lastActive}
	if d.startTime.IsZero() {
		return flow
	}
	elapsed := time.Since(d.startTime).Seconds()
	completed := d.completed.Load()
	if elapsed > 0 {
		flow.MessagesPerSecond = float64(completed) / elapsed
	}
	if completed > 0 {
		flow.ErrorRate = float64(d.failures.Load()) / float64(completed)
	}
	return flow
}

var _ component.LifecycleComponent = (*Dispatcher)(nil)
