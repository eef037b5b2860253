package websocket

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/benkokes/elite-EI65-robot-controller/component"
	"github.com/benkokes/elite-EI65-robot-controller/errors"
	"github.com/benkokes/elite-EI65-robot-controller/metric"
	"github.com/benkokes/elite-EI65-robot-controller/pkg/timestamp"
	"github.com/benkokes/elite-EI65-robot-controller/processor/report"
)

// Envelope types
const (
	TypeJoints = "joints"
	TypePlc    = "plc"
)

// Envelope wraps every message sent to clients.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
	Payload   json.RawMessage `json:"payload"`
}

// Config configures the broadcaster
type Config struct {
	Addr string
	Path string
	// ClientBuffer is the number of messages queued per client before
	// further messages to that client are dropped.
	ClientBuffer int
	WriteTimeout time.Duration
	PingInterval time.Duration
	TLS          *tls.Config // optional
}

// DefaultConfig returns the default broadcaster configuration
func DefaultConfig() Config {
	return Config{
		Addr:         ":8081",
		Path:         "/telemetry",
		ClientBuffer: 64,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	switch {
	case c.Path == "" || c.Path[0] != '/':
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "path must start with /")
	case c.ClientBuffer <= 0:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "client_buffer must be positive")
	case c.WriteTimeout <= 0 || c.PingInterval <= 0:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "timeouts must be positive")
	}
	return nil
}

// Output serves a WebSocket endpoint and broadcasts every telemetry record
// to the connected clients. A client that does not keep up loses messages
// rather than slowing down the others. New clients first receive the most
// recent joints and PLC messages.
type Output struct {
	name     string
	config   Config
	logger   *slog.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader
	now      func() time.Time

	clients   map[*client]struct{}
	latest    map[string][]byte
	clientsMu sync.RWMutex

	server   *http.Server
	listener net.Listener
	shutdown chan struct{}
	wg       sync.WaitGroup

	lifecycleMu sync.Mutex
	running     atomic.Bool

	mu           sync.RWMutex
	startTime    time.Time
	lastActivity time.Time

	nextID   atomic.Uint64
	sent     atomic.Int64
	dropped  atomic.Int64
	failures atomic.Int64
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Metrics holds Prometheus metrics for the broadcaster
type Metrics struct {
	clients  prometheus.Gauge
	messages *prometheus.CounterVec
	dropped  prometheus.Counter
}

func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}
	m := &Metrics{
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace, Subsystem: "websocket", Name: "clients",
			Help: "Connected WebSocket clients",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "websocket", Name: "messages_sent_total",
			Help: "Messages delivered to WebSocket clients",
		}, []string{"type"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "websocket", Name: "messages_dropped_total",
			Help: "Messages dropped for clients that fell behind",
		}),
	}
	if err := registry.RegisterGauge("websocket", "clients", m.clients); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("websocket", "messages_sent", m.messages); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("websocket", "messages_dropped", m.dropped); err != nil {
		return nil, err
	}
	return m, nil
}

// NewOutput creates a broadcaster. A nil registry disables its metrics.
func NewOutput(cfg Config, registry *metric.MetricsRegistry, logger *slog.Logger) (*Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	metrics, err := newMetrics(registry)
	if err != nil {
		return nil, errors.WrapFatal(err, "Output", "NewOutput", "register metrics")
	}
	return &Output{
		name:    "websocket-output",
		config:  cfg,
		logger:  logger.With("component", "websocket-output"),
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Dashboards are served from other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		now:     time.Now,
		clients: make(map[*client]struct{}),
		latest:  make(map[string][]byte),
	}, nil
}

// Initialize implements component.LifecycleComponent.
func (w *Output) Initialize() error { return nil }

// Start binds the listener and serves in the background.
func (w *Output) Start(ctx context.Context) error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.running.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Output", "Start", "check running state")
	}

	ln, err := net.Listen("tcp", w.config.Addr)
	if err != nil {
		return errors.WrapFatal(err, "Output", "Start", "listen on "+w.config.Addr)
	}
	if w.config.TLS != nil {
		ln = tls.NewListener(ln, w.config.TLS)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(w.config.Path, w.handleWebSocket)

	w.mu.Lock()
	w.listener = ln
	w.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	w.shutdown = make(chan struct{})
	w.startTime = w.now()
	server, shutdown := w.server, w.shutdown
	w.mu.Unlock()

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			w.logger.Error("WebSocket server failed", "error", err)
		}
	}()
	go w.pingLoop(ctx, shutdown)

	w.running.Store(true)
	w.logger.Info("WebSocket output started", "address", w.Address())
	return nil
}

// Stop closes the server and every client connection.
func (w *Output) Stop(timeout time.Duration) error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if !w.running.Swap(false) {
		return nil
	}

	w.mu.Lock()
	server, shutdown := w.server, w.shutdown
	w.mu.Unlock()
	close(shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	// Hijacked WebSocket connections are not tracked by Shutdown.
	serr := server.Shutdown(ctx)

	w.clientsMu.Lock()
	for c := range w.clients {
		c.close()
	}
	w.clientsMu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout), "Output", "Stop", "wait for clients")
	}

	if serr != nil {
		return errors.WrapTransient(serr, "Output", "Stop", "shut down HTTP server")
	}
	return nil
}

// Address returns the WebSocket URL clients connect to.
func (w *Output) Address() string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	addr := w.config.Addr
	if w.listener != nil {
		addr = w.listener.Addr().String()
	}
	scheme := "ws"
	if w.config.TLS != nil {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s%s", scheme, addr, w.config.Path)
}

// Clients returns the number of connected clients.
func (w *Output) Clients() int {
	w.clientsMu.RLock()
	defer w.clientsMu.RUnlock()
	return len(w.clients)
}

// PublishJoints broadcasts one set of joint angles.
func (w *Output) PublishJoints(_ context.Context, joints report.JointAngles) error {
	return w.broadcast(TypeJoints, joints)
}

// PublishPlc broadcasts one PLC state report.
func (w *Output) PublishPlc(_ context.Context, plc report.PlcStateReport) error {
	return w.broadcast(TypePlc, plc)
}

func (w *Output) broadcast(kind string, payload any) error {
	if !w.running.Load() {
		return errors.WrapTransient(errors.ErrNotStarted, "Output", "broadcast", "output not running")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.WrapInvalid(err, "Output", "broadcast", "encode payload")
	}
	at := w.now()
	data, err := json.Marshal(Envelope{
		Type:      kind,
		ID:        strconv.FormatUint(w.nextID.Add(1), 10),
		Timestamp: timestamp.ToUnixMs(at),
		Payload:   body,
	})
	if err != nil {
		return errors.WrapInvalid(err, "Output", "broadcast", "encode envelope")
	}

	w.clientsMu.Lock()
	w.latest[kind] = data
	for c := range w.clients {
		w.enqueue(c, data)
	}
	w.clientsMu.Unlock()

	w.mu.Lock()
	w.lastActivity = at
	w.mu.Unlock()
	return nil
}

// enqueue never blocks. Callers hold clientsMu.
func (w *Output) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		w.dropped.Add(1)
		if w.metrics != nil {
			w.metrics.dropped.Inc()
		}
	}
}

func (w *Output) handleWebSocket(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.failures.Add(1)
		w.logger.Debug("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, w.config.ClientBuffer),
		done: make(chan struct{}),
	}

	w.clientsMu.Lock()
	if !w.running.Load() {
		w.clientsMu.Unlock()
		_ = conn.Close()
		return
	}
	for _, kind := range []string{TypeJoints, TypePlc} {
		if data, ok := w.latest[kind]; ok {
			w.enqueue(c, data)
		}
	}
	w.clients[c] = struct{}{}
	count := len(w.clients)
	w.wg.Add(2)
	w.clientsMu.Unlock()

	if w.metrics != nil {
		w.metrics.clients.Set(float64(count))
	}
	w.logger.Debug("WebSocket client connected", "remote", r.RemoteAddr, "clients", count)

	go w.writeLoop(c)
	go w.readLoop(c)
}

// readLoop discards client messages and notices disconnects.
func (w *Output) readLoop(c *client) {
	defer w.wg.Done()
	defer w.removeClient(c)

	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (w *Output) writeLoop(c *client) {
	defer w.wg.Done()
	defer w.removeClient(c)

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				w.failures.Add(1)
				return
			}
			w.sent.Add(1)
			if w.metrics != nil {
				w.metrics.messages.WithLabelValues(envelopeType(data)).Inc()
			}
		}
	}
}

func (w *Output) pingLoop(ctx context.Context, shutdown <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		case <-ticker.C:
			w.clientsMu.RLock()
			for c := range w.clients {
				deadline := time.Now().Add(w.config.WriteTimeout)
				if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					c.close()
				}
			}
			w.clientsMu.RUnlock()
		}
	}
}

func (w *Output) removeClient(c *client) {
	c.close()

	w.clientsMu.Lock()
	delete(w.clients, c)
	count := len(w.clients)
	w.clientsMu.Unlock()

	if w.metrics != nil {
		w.metrics.clients.Set(float64(count))
	}
}

func envelopeType(data []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(data, &head) != nil {
		return "unknown"
	}
	return head.Type
}

// Meta returns component metadata
func (w *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        w.name,
		Type:        "output",
		Description: "WebSocket telemetry broadcaster",
		Version:     "1.0.0",
	}
}

// Health returns the current health status
func (w *Output) Health() component.HealthStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var uptime time.Duration
	if !w.startTime.IsZero() {
		uptime = time.Since(w.startTime)
	}
	return component.HealthStatus{
		Healthy:    w.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(w.failures.Load()),
		Uptime:     uptime,
	}
}

// DataFlow returns current data flow metrics
func (w *Output) DataFlow() component.FlowMetrics {
	w.mu.RLock()
	defer w.mu.RUnlock()

	flow := component.FlowMetrics{LastActivity: w.lastActivity}
	if w.startTime.IsZero() {
		return flow
	}
	sent := w.sent.Load()
	if elapsed := time.Since(w.startTime).Seconds(); elapsed > 0 {
		flow.MessagesPerSecond = float64(sent) / elapsed
	}
	if total := sent + w.dropped.Load(); total > 0 {
		flow.ErrorRate = float64(w.dropped.Load()) / float64(total)
	}
	return flow
}

var _ component.LifecycleComponent = (*Output)(nil)
