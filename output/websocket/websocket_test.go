package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
	"github.com/benkokes/elite-EI65-robot-controller/metric"
	"github.com/benkokes/elite-EI65-robot-controller/processor/report"
)

func startOutput(t *testing.T, registry *metric.MetricsRegistry, mutate func(*Config)) *Output {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	if mutate != nil {
		mutate(&cfg)
	}
	out, err := NewOutput(cfg, registry, nil)
	require.NoError(t, err)
	require.NoError(t, out.Initialize())
	require.NoError(t, out.Start(context.Background()))
	t.Cleanup(func() { _ = out.Stop(time.Second) })
	return out
}

func dial(t *testing.T, out *Output) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(out.Address(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return out.Clients() > 0 }, time.Second, 5*time.Millisecond)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	for name, mutate := range map[string]func(*Config){
		"relative path": func(c *Config) { c.Path = "telemetry" },
		"zero buffer":   func(c *Config) { c.ClientBuffer = 0 },
		"zero timeout":  func(c *Config) { c.WriteTimeout = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.True(t, errors.IsInvalid(cfg.Validate()))
		})
	}
}

func TestOutput_BroadcastsTelemetry(t *testing.T) {
	out := startOutput(t, nil, nil)
	assert.True(t, strings.HasPrefix(out.Address(), "ws://127.0.0.1:"))

	first, second := dial(t, out), dial(t, out)
	require.Eventually(t, func() bool { return out.Clients() == 2 }, time.Second, 5*time.Millisecond)

	in := "1010"
	require.NoError(t, out.PublishJoints(context.Background(), report.JointAngles{"S": 1.5}))
	require.NoError(t, out.PublishPlc(context.Background(), report.PlcStateReport{PlcIn: &in}))

	for _, conn := range []*websocket.Conn{first, second} {
		env := readEnvelope(t, conn)
		assert.Equal(t, TypeJoints, env.Type)
		assert.JSONEq(t, `{"S":1.5}`, string(env.Payload))
		assert.Positive(t, env.Timestamp)

		env = readEnvelope(t, conn)
		assert.Equal(t, TypePlc, env.Type)
		assert.JSONEq(t, `{"plc_in":"1010"}`, string(env.Payload))
	}
}

func TestOutput_NewClientGetsLatest(t *testing.T) {
	out := startOutput(t, nil, nil)

	require.NoError(t, out.PublishJoints(context.Background(), report.JointAngles{"S": 1}))
	require.NoError(t, out.PublishJoints(context.Background(), report.JointAngles{"S": 2}))

	env := readEnvelope(t, dial(t, out))
	assert.Equal(t, TypeJoints, env.Type)
	assert.Equal(t, "2", env.ID)
	assert.JSONEq(t, `{"S":2}`, string(env.Payload))
}

func TestOutput_SlowClientDropsMessages(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	out := startOutput(t, registry, func(c *Config) { c.ClientBuffer = 1 })

	out.clientsMu.Lock()
	stalled := &client{send: make(chan []byte, 1), done: make(chan struct{})}
	out.clients[stalled] = struct{}{}
	out.clientsMu.Unlock()

	for i := 0; i < 3; i++ {
		require.NoError(t, out.PublishJoints(context.Background(), report.JointAngles{"S": float64(i)}))
	}
	assert.Equal(t, int64(2), out.dropped.Load())
	assert.Equal(t, 1.0, out.DataFlow().ErrorRate)

	out.clientsMu.Lock()
	delete(out.clients, stalled)
	out.clientsMu.Unlock()
}

func TestOutput_ClientDisconnect(t *testing.T) {
	out := startOutput(t, nil, nil)
	conn := dial(t, out)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return out.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestOutput_Lifecycle(t *testing.T) {
	out := startOutput(t, nil, nil)
	assert.True(t, errors.IsFatal(out.Start(context.Background())))
	assert.True(t, out.Health().Healthy)

	conn := dial(t, out)
	require.NoError(t, out.Stop(time.Second))
	require.NoError(t, out.Stop(time.Second))
	assert.False(t, out.Health().Healthy)

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server closed the connection")

	err = out.PublishJoints(context.Background(), report.JointAngles{"S": 1})
	assert.True(t, errors.IsTransient(err))
}
