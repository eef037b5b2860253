package file

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
	"github.com/benkokes/elite-EI65-robot-controller/pkg/timestamp"
	"github.com/benkokes/elite-EI65-robot-controller/processor/report"
)

var fixedTime = time.Date(2025, 3, 14, 15, 9, 26, 535_000_000, time.UTC)

func newTestOutput(t *testing.T, mutate func(*Config)) *Output {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "nested", "telemetry.jsonl")
	cfg.FlushInterval = time.Hour
	if mutate != nil {
		mutate(&cfg)
	}
	out, err := NewOutput(cfg, nil)
	require.NoError(t, err)
	out.now = func() time.Time { return fixedTime }
	require.NoError(t, out.Initialize())
	require.NoError(t, out.Start(context.Background()))
	t.Cleanup(func() { _ = out.Stop(time.Second) })
	return out
}

func readRecords(t *testing.T, path string) []Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	for name, mutate := range map[string]func(*Config){
		"no path":       func(c *Config) { c.Path = "" },
		"zero buffer":   func(c *Config) { c.BufferSize = 0 },
		"zero interval": func(c *Config) { c.FlushInterval = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := NewOutput(cfg, nil)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestOutput_WritesRecordsOnStop(t *testing.T) {
	out := newTestOutput(t, nil)
	ctx := context.Background()
	in := "1010"

	require.NoError(t, out.PublishJoints(ctx, report.JointAngles{"S": 1.5, "L": -2}))
	require.NoError(t, out.PublishPlc(ctx, report.PlcStateReport{PlcIn: &in}))
	require.NoError(t, out.Stop(time.Second))

	records := readRecords(t, out.config.Path)
	require.Len(t, records, 2)

	assert.Equal(t, KindJoints, records[0].Kind)
	assert.Equal(t, timestamp.ToUnixMs(fixedTime), records[0].Timestamp)
	assert.Equal(t, 1.5, records[0].Joints["S"])

	assert.Equal(t, KindPlc, records[1].Kind)
	require.NotNil(t, records[1].PlcIn)
	assert.Equal(t, "1010", *records[1].PlcIn)
	assert.Nil(t, records[1].PlcOut)

	n, bytes := out.Stats()
	assert.Equal(t, int64(2), n)
	assert.Positive(t, bytes)
}

func TestOutput_FlushesWhenBufferFills(t *testing.T) {
	out := newTestOutput(t, func(c *Config) { c.BufferSize = 2 })
	ctx := context.Background()

	require.NoError(t, out.PublishJoints(ctx, report.JointAngles{"S": 1}))
	assert.Empty(t, readRecords(t, out.config.Path))

	require.NoError(t, out.PublishJoints(ctx, report.JointAngles{"S": 2}))
	assert.Len(t, readRecords(t, out.config.Path), 2)
}

func TestOutput_FlushesOnInterval(t *testing.T) {
	out := newTestOutput(t, func(c *Config) { c.FlushInterval = 10 * time.Millisecond })

	require.NoError(t, out.PublishJoints(context.Background(), report.JointAngles{"S": 1}))
	require.Eventually(t, func() bool {
		return len(readRecords(t, out.config.Path)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestOutput_AppendAndTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"ts":1,"kind":"joints"}`+"\n"), 0o644))

	out := newTestOutput(t, func(c *Config) { c.Path = path })
	require.NoError(t, out.PublishJoints(context.Background(), report.JointAngles{"S": 1}))
	require.NoError(t, out.Stop(time.Second))
	assert.Len(t, readRecords(t, path), 2)

	out = newTestOutput(t, func(c *Config) { c.Path = path; c.Append = false })
	require.NoError(t, out.PublishJoints(context.Background(), report.JointAngles{"S": 1}))
	require.NoError(t, out.Stop(time.Second))
	assert.Len(t, readRecords(t, path), 1)
}

func TestOutput_Lifecycle(t *testing.T) {
	out := newTestOutput(t, nil)

	err := out.Start(context.Background())
	assert.True(t, errors.IsFatal(err), "second start")
	assert.True(t, out.Health().Healthy)
	assert.Equal(t, "output", out.Meta().Type)

	require.NoError(t, out.Stop(time.Second))
	require.NoError(t, out.Stop(time.Second), "stop is idempotent")
	assert.False(t, out.Health().Healthy)

	err = out.PublishJoints(context.Background(), report.JointAngles{"S": 1})
	assert.True(t, errors.IsTransient(err))
}
