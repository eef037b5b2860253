package control

import (
	"context"
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

func newTestClient(addr string) *Client {
	return NewClient(ClientConfig{
		Addr:        addr,
		DialTimeout: time.Second,
		ReadTimeout: 200 * time.Millisecond,
	}, nil)
}

func TestInterpret(t *testing.T) {
	tests := []struct {
		name    string
		command string
		raw     string
		want    string
	}{
		{"speed with prompt", CommandSpeed, "mcserver> 1500", "1500"},
		{"speed without prompt", CommandSpeed, "1500", NoSpeedValue},
		{"servo on", CommandServo, "Servo ON", "ON"},
		{"servo off lower case", CommandServo, "servo off\r\nmcserver>", "OFF"},
		{"servo unknown", CommandServo, "mcserver>", ServoUnknownValue},
		{"coord cylinder", CommandCoord, "mcserver>current mode: cylinder", "CYLINDER"},
		{"coord cyl", CommandCoord, "mcserver>current mode: cyl", "CYL"},
		{"coord joint mixed case", CommandCoord, "MCSERVER>Current Mode: Joint", "JOINT"},
		{"coord unknown", CommandCoord, "mcserver>current mode: world", CoordUnknownValue},
		{"mode", CommandMode, "mcserver>current mode: teach", "TEACH"},
		{"mode unknown", CommandMode, "nothing useful", ModeUnknownValue},
		{"raw passthrough", "version", "v1.2.3", "v1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := Interpret(tt.command, tt.raw)
			assert.Equal(t, tt.want, resp.Value)
			assert.Equal(t, tt.raw, resp.Raw)
			assert.Equal(t, tt.command, resp.Command)
			assert.NoError(t, resp.Err)
		})
	}
}

func TestResponse_IsError(t *testing.T) {
	assert.False(t, Response{Value: "1500"}.IsError())
	assert.True(t, Response{Value: NoSpeedValue}.IsError())
	assert.True(t, Response{Value: ErrorValue}.IsError())
	assert.True(t, Response{Value: "", Err: errors.ErrNoConnection}.IsError())
	assert.Equal(t, "ON", Response{Value: "ON"}.String())
}

func TestClient_SendSpeed(t *testing.T) {
	srv := testutil.NewControlServer(t).Reply("speed", "mcserver> 1500\r\n")
	client := newTestClient(srv.Addr())

	resp := client.Send(context.Background(), CommandSpeed)

	require.NoError(t, resp.Err)
	assert.Equal(t, "1500", resp.Value)
	assert.Equal(t, "mcserver> 1500", resp.Raw)
	assert.Equal(t, []string{"speed"}, srv.Commands())
}

func TestClient_SendStripsEscapeSequences(t *testing.T) {
	srv := testutil.NewControlServer(t).Reply("servo", "\x1b[32mServo ON\x1b[0m\r\n")
	client := newTestClient(srv.Addr())

	resp := client.Send(context.Background(), CommandServo)

	require.NoError(t, resp.Err)
	assert.Equal(t, "ON", resp.Value)
	assert.Equal(t, "Servo ON", resp.Raw)
}

func TestClient_SendDropsInvalidUTF8(t *testing.T) {
	srv := testutil.NewControlServer(t).Reply("version", "v1\xff.2")
	client := newTestClient(srv.Addr())

	resp := client.Send(context.Background(), "version")

	require.NoError(t, resp.Err)
	assert.Equal(t, "v1.2", resp.Value)
}

func TestClient_SendAccumulatesUntilPrompt(t *testing.T) {
	srv := testutil.NewControlServer(t).Script("speed", testutil.ControlReply{
		Chunks: []string{"speed is\r\n", "mcserver> 42"},
		Gap:    30 * time.Millisecond,
		Hold:   time.Second,
	})
	client := newTestClient(srv.Addr())

	start := time.Now()
	resp := client.Send(context.Background(), CommandSpeed)

	assert.Equal(t, "42", resp.Value)
	assert.Equal(t, "speed is\r\nmcserver> 42", resp.Raw)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "prompt should end the read early")
}

func TestClient_SendStopsAtFirstPromptChunk(t *testing.T) {
	srv := testutil.NewControlServer(t).Script("mode", testutil.ControlReply{
		Chunks: []string{"mcserver>", "current mode: teach"},
		Gap:    150 * time.Millisecond,
	})
	client := newTestClient(srv.Addr())

	resp := client.Send(context.Background(), CommandMode)

	assert.Equal(t, ModeUnknownValue, resp.Value)
	assert.Equal(t, "mcserver>", resp.Raw)
}

func TestClient_SendReturnsPartialReplyOnTimeout(t *testing.T) {
	srv := testutil.NewControlServer(t).Script("status", testutil.ControlReply{
		Chunks: []string{"partial"},
		Hold:   2 * time.Second,
	})
	client := newTestClient(srv.Addr())

	start := time.Now()
	resp := client.Send(context.Background(), "status")

	require.NoError(t, resp.Err)
	assert.Equal(t, "partial", resp.Value)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_SendTricklingReplyKeepsOverallTimeout(t *testing.T) {
	// Each chunk lands before a per-read deadline would expire, so only a
	// deadline fixed at the start of reading ends the call on time.
	srv := testutil.NewControlServer(t).Script("status", testutil.ControlReply{
		Chunks: []string{"a", "b", "c", "d"},
		Gap:    150 * time.Millisecond,
		Hold:   time.Second,
	})
	client := newTestClient(srv.Addr())

	start := time.Now()
	resp := client.Send(context.Background(), "status")
	elapsed := time.Since(start)

	require.NoError(t, resp.Err)
	assert.Equal(t, "ab", resp.Value)
	assert.Less(t, elapsed, 290*time.Millisecond)
}

func TestClient_SendConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	resp := newTestClient(addr).Send(context.Background(), CommandSpeed)

	assert.Equal(t, ErrorValue, resp.Value)
	assert.True(t, resp.IsError())
	require.Error(t, resp.Err)
	assert.True(t, errors.IsTransient(resp.Err))
	assert.True(t, stderrors.Is(resp.Err, errors.ErrNoConnection))
}

func TestClient_SendHonoursContext(t *testing.T) {
	srv := testutil.NewControlServer(t).Script("speed", testutil.ControlReply{Hold: 2 * time.Second})
	client := NewClient(ClientConfig{
		Addr:        srv.Addr(),
		DialTimeout: time.Second,
		ReadTimeout: 5 * time.Second,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	resp := client.Send(ctx, CommandSpeed)

	assert.Equal(t, ErrorValue, resp.Value)
	assert.Error(t, resp.Err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestMoveCommand(t *testing.T) {
	targets := report.JointAngles{"S": 1, "L": -2.5, "U": 0.125, "R": 4, "B": 5, "T": 6.000001}

	assert.Equal(t,
		"runForward 1.000000 -2.500000 0.125000 4.000000 5.000000 6.000001 0 0",
		MoveCommand(targets))
	assert.Equal(t, "runForward 0 0 0 0 0 0 0 0", MoveCommand(nil))
}

func TestClient_FireAndForgetCommands(t *testing.T) {
	srv := testutil.NewControlServer(t)
	client := newTestClient(srv.Addr())
	ctx := context.Background()

	require.NoError(t, client.Move(ctx, report.JointAngles{"S": 1, "J7": 7, "J8": 8}))
	require.NoError(t, client.Stop(ctx))
	require.NoError(t, client.SetSpeed(ctx, 1500))

	cmds := srv.WaitForCommands(t, 3, time.Second)
	assert.ElementsMatch(t, []string{
		"runForward 1.000000 0 0 0 0 0 7.000000 8.000000",
		"stop",
		"speed 1500",
	}, cmds)
}

func TestClient_SetSpeedValidatesRange(t *testing.T) {
	srv := testutil.NewControlServer(t)
	client := newTestClient(srv.Addr())

	for _, speed := range []int{-1, 10001} {
		err := client.SetSpeed(context.Background(), speed)
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
		assert.True(t, stderrors.Is(err, ErrSpeedOutOfRange))
	}

	require.NoError(t, client.SetSpeed(context.Background(), MaxSpeed))
	require.NoError(t, client.SetSpeed(context.Background(), MinSpeed))
	assert.ElementsMatch(t, []string{"speed 10000", "speed 0"}, srv.WaitForCommands(t, 2, time.Second))
}

func TestClient_FireAndForgetUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err = newTestClient(addr).Stop(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestClient_QueryStatus(t *testing.T) {
	srv := testutil.NewControlServer(t).
		Reply("mode", "mcserver>current mode: teach").
		Reply("speed", "mcserver> 800").
		Reply("coord", "mcserver>current mode: joint").
		Reply("servo", "servo on\r\nmcserver>")
	client := newTestClient(srv.Addr())

	status := client.QueryStatus(context.Background())

	assert.Equal(t, "TEACH", status.Mode.Value)
	assert.Equal(t, "800", status.Speed.Value)
	assert.Equal(t, "JOINT", status.Coord.Value)
	assert.Equal(t, "ON", status.Servo.Value)
	assert.False(t, status.Failed())
	assert.Equal(t, []string{"mode", "speed", "coord", "servo"}, srv.Commands())
}
