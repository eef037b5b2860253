package natsclient

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
	"github.com/benkokes/elite-EI65-robot-controller/processor/report"
	"github.com/benkokes/elite-EI65-robot-controller/testutil"
)

func unusedURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "nats://" + addr
}

func TestNewClient(t *testing.T) {
	client, err := NewClient([]string{"nats://a:4222", "nats://b:4222"})
	require.NoError(t, err)

	assert.Equal(t, "nats://a:4222,nats://b:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewClient([]string{"nats://localhost:4222"}, WithTimeout(0))
	require.Error(t, err)

	_, err = NewClient([]string{"nats://localhost:4222"}, WithCircuitBreakerThreshold(0))
	require.Error(t, err)
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "circuit_open", StatusCircuitOpen.String())
	assert.Equal(t, "unknown", ConnectionStatus(99).String())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	client, err := NewClient([]string{"nats://invalid:4222"}, WithCircuitBreakerThreshold(3))
	require.NoError(t, err)

	client.recordFailure()
	client.recordFailure()
	assert.NotEqual(t, StatusCircuitOpen, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(3), client.Failures())
	assert.Equal(t, 2*time.Second, client.Backoff())

	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	client, err := NewClient([]string{"nats://invalid:4222"}, WithCircuitBreakerThreshold(1))
	require.NoError(t, err)

	client.recordFailure()
	require.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, time.Second, client.Backoff())
}

func TestCircuitBreaker_BackoffCapped(t *testing.T) {
	client, err := NewClient([]string{"nats://invalid:4222"}, WithCircuitBreakerThreshold(1))
	require.NoError(t, err)
	client.maxBackoff = 3 * time.Second

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 3*time.Second, client.Backoff())
}

func TestConnect_Unreachable(t *testing.T) {
	client, err := NewClient([]string{unusedURL(t)},
		WithTimeout(200*time.Millisecond),
		WithMaxReconnects(0),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = client.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, int32(1), client.Failures())
	assert.NotEqual(t, StatusConnected, client.Status())
}

func TestPublish_NotConnected(t *testing.T) {
	client, err := NewClient([]string{"nats://localhost:4222"})
	require.NoError(t, err)

	err = client.Publish(context.Background(), "x", []byte("y"))
	assert.ErrorIs(t, err, ErrNotConnected)

	err = client.Subscribe(context.Background(), "x", func(context.Context, []byte) {})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClose_Idempotent(t *testing.T) {
	client, err := NewClient([]string{"nats://localhost:4222"}, WithCredentials("u", "p"), WithToken("t"))
	require.NoError(t, err)

	require.NoError(t, client.Close(context.Background()))
	require.NoError(t, client.Close(context.Background()))
	assert.Empty(t, client.username)
	assert.Empty(t, client.password)
	assert.Empty(t, client.token)

	err = client.Connect(context.Background())
	require.Error(t, err)
}

func TestTelemetryPublisher_PublishJoints(t *testing.T) {
	mock := testutil.NewMockNATSClient()
	pub := NewTelemetryPublisher(mock, "cell1", nil)
	pub.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	joints := report.JointAngles{"S": 1.5, "L": -2, "U": 0, "R": 0, "B": 0, "T": 0, "J7": 0, "J8": 0}
	require.NoError(t, pub.PublishJoints(context.Background(), joints))

	data := testutil.WaitForMessage(t, mock, "cell1.joints", time.Second)
	var msg JointsMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, joints, msg.Joints)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), msg.Timestamp)

	published, failed := pub.Stats()
	assert.Equal(t, int64(1), published)
	assert.Equal(t, int64(0), failed)
}

func TestTelemetryPublisher_PublishPlc(t *testing.T) {
	mock := testutil.NewMockNATSClient()
	pub := NewTelemetryPublisher(mock, "", nil)

	in := testutil.AlternatingBits()
	require.NoError(t, pub.PublishPlc(context.Background(), report.PlcStateReport{PlcIn: &in}))

	assert.Equal(t, "robotmon.plc", pub.PlcSubject())
	data := testutil.WaitForMessage(t, mock, "robotmon.plc", time.Second)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, in, raw["plc_in"])
	assert.NotContains(t, raw, "plc_out")
	assert.Contains(t, raw, "timestamp")
}

func TestTelemetryPublisher_TransportFailure(t *testing.T) {
	mock := testutil.NewMockNATSClient()
	mock.FailPublish(ErrNotConnected)
	pub := NewTelemetryPublisher(mock, "robotmon", nil)

	err := pub.PublishJoints(context.Background(), report.JointAngles{"S": 1})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrNotConnected))

	_, failed := pub.Stats()
	assert.Equal(t, int64(1), failed)
	assert.Zero(t, mock.GetMessageCount("robotmon.joints"))
}
