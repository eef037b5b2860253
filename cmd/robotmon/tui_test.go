package main

import (
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benkokes/elite-EI65-robot-controller/control"
	"github.com/benkokes/elite-EI65-robot-controller/pkg/buffer"
	"github.com/benkokes/elite-EI65-robot-controller/processor/report"
)

type fakeRequester struct {
	mu        sync.Mutex
	submitted []control.Request
	results   []control.Result
	alert     bool
}

func (f *fakeRequester) Submit(req control.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	return "id", nil
}

func (f *fakeRequester) Poll() []control.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.results
	f.results = nil
	return out
}

func (f *fakeRequester) Alert() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alert
}

func (f *fakeRequester) push(res control.Result, alert bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, res)
	f.alert = alert
}

func (f *fakeRequester) kinds() []control.RequestKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]control.RequestKind, len(f.submitted))
	for i, r := range f.submitted {
		out[i] = r.Kind
	}
	return out
}

func (f *fakeRequester) last() control.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted[len(f.submitted)-1]
}

type testHarness struct {
	model  model
	joints *buffer.Queue[report.JointAngles]
	plc    *buffer.Queue[report.PlcStateReport]
	ctl    *fakeRequester
	logs   *buffer.CircularBuffer[string]
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	joints, err := buffer.NewQueue[report.JointAngles]()
	require.NoError(t, err)
	plc, err := buffer.NewQueue[report.PlcStateReport]()
	require.NoError(t, err)
	logs, err := buffer.NewCircularBuffer[string](200)
	require.NoError(t, err)

	ctl := &fakeRequester{}
	h := &testHarness{joints: joints, plc: plc, ctl: ctl, logs: logs}
	h.model = newModel(modelDeps{Joints: joints, Plc: plc, Control: ctl, Logs: logs, Logger: newTestPaneLogger(logs)})
	return h
}

func (h *testHarness) logged(substr string) bool {
	for _, line := range h.logs.Snapshot() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func (h *testHarness) send(msg tea.Msg) tea.Cmd {
	next, cmd := h.model.Update(msg)
	h.model = next.(model)
	return cmd
}

func (h *testHarness) key(s string) tea.Cmd {
	switch s {
	case "enter":
		return h.send(tea.KeyMsg{Type: tea.KeyEnter})
	case "tab":
		return h.send(tea.KeyMsg{Type: tea.KeyTab})
	case "up":
		return h.send(tea.KeyMsg{Type: tea.KeyUp})
	case "down":
		return h.send(tea.KeyMsg{Type: tea.KeyDown})
	}
	return h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func angles(v float64) report.JointAngles {
	out := make(report.JointAngles)
	for _, name := range report.JointOrder {
		out[name] = v
	}
	return out
}

func TestModel_InitQueriesStatus(t *testing.T) {
	h := newHarness(t)
	cmd := h.model.Init()
	require.NotNil(t, cmd)
	assert.Equal(t, []control.RequestKind{control.KindStatus}, h.ctl.kinds())
}

func TestModel_TickDrainsQueues(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.joints.Write(angles(1)))
	require.NoError(t, h.joints.Write(angles(2)))
	in := report.PlcStateReport{PlcIn: ptr(strings.Repeat("10", 32))}
	require.NoError(t, h.plc.Write(in))

	cmd := h.send(tickMsg{})
	assert.NotNil(t, cmd, "tick reschedules itself")

	assert.Equal(t, angles(2), h.model.current)
	assert.Equal(t, in, h.model.plc)
	assert.True(t, h.joints.IsEmpty())
	assert.True(t, h.plc.IsEmpty())

	// Targets take the first readout only.
	assert.Equal(t, angles(1), h.model.targets)

	require.NoError(t, h.joints.Write(angles(3)))
	h.send(tickMsg{})
	assert.Equal(t, angles(3), h.model.current)
	assert.Equal(t, angles(1), h.model.targets)
}

func TestModel_SyncCopiesAnglesAndQueriesStatus(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.joints.Write(angles(1)))
	h.send(tickMsg{})
	require.NoError(t, h.joints.Write(angles(5)))
	h.send(tickMsg{})

	h.key("y")
	assert.Equal(t, angles(5), h.model.targets)
	assert.Equal(t, control.KindStatus, h.ctl.last().Kind)
	assert.True(t, h.logged("Synced joint values"))
}

func TestModel_SyncWithoutData(t *testing.T) {
	h := newHarness(t)

	h.key("y")
	assert.Equal(t, angles(0), h.model.targets)
	assert.True(t, h.logged("No joint data to sync"))
	assert.Equal(t, control.KindStatus, h.ctl.last().Kind)
}

func TestModel_MoveAndStop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.joints.Write(angles(2.5)))
	h.send(tickMsg{})

	h.key("m")
	req := h.ctl.last()
	assert.Equal(t, control.KindMove, req.Kind)
	assert.Equal(t, angles(2.5), req.Targets)

	h.key("x")
	assert.Equal(t, control.KindStop, h.ctl.last().Kind)
}

func TestModel_EditTargets(t *testing.T) {
	h := newHarness(t)

	h.key("tab")
	h.key("up")
	h.key("up")
	h.key("tab")
	h.key("down")

	assert.Equal(t, 0.0, h.model.targets["S"])
	assert.Equal(t, 2.0, h.model.targets["L"])
	assert.Equal(t, -1.0, h.model.targets["U"])

	h.key("m")
	assert.Equal(t, "runForward 0.000000 2.000000 -1.000000 0.000000 0.000000 0.000000 0.000000 0.000000",
		control.MoveCommand(h.ctl.last().Targets))
}

func TestModel_SpeedSetpoint(t *testing.T) {
	h := newHarness(t)

	h.key("-")
	assert.Equal(t, 0, h.model.setpoint, "clamped at the minimum")

	h.key("+")
	h.key("+")
	assert.Equal(t, 200, h.model.setpoint)

	h.key("enter")
	req := h.ctl.last()
	assert.Equal(t, control.KindSpeed, req.Kind)
	assert.Equal(t, 200, req.Speed)

	h.model.setpoint = control.MaxSpeed
	h.key("+")
	assert.Equal(t, control.MaxSpeed, h.model.setpoint)
}

func TestModel_StatusResultSeedsSetpoint(t *testing.T) {
	h := newHarness(t)
	st := control.Status{
		Mode:  control.Interpret("mode", "mcserver>current mode: teach"),
		Speed: control.Interpret("speed", "mcserver> 1500"),
		Coord: control.Interpret("coord", "mcserver>current mode: joint"),
		Servo: control.Interpret("servo", "Servo ON"),
	}
	h.ctl.push(control.Result{Request: control.StatusRequest(), Status: &st}, false)
	h.send(tickMsg{})

	assert.Equal(t, "TEACH", h.model.mode)
	assert.Equal(t, "1500", h.model.speed)
	assert.Equal(t, "JOINT", h.model.coord)
	assert.Equal(t, "ON", h.model.servo)
	assert.Equal(t, 1500, h.model.setpoint)

	// A later report does not overwrite the operator's set-point.
	h.key("+")
	resp := control.Interpret("speed", "mcserver> 500")
	h.ctl.push(control.Result{Request: control.QueryRequest("speed"), Response: &resp}, false)
	h.send(tickMsg{})
	assert.Equal(t, "500", h.model.speed)
	assert.Equal(t, 1600, h.model.setpoint)
}

func TestModel_AlertFollowsDispatcher(t *testing.T) {
	h := newHarness(t)

	h.ctl.push(control.Result{Request: control.StopRequest()}, true)
	h.send(tickMsg{})
	assert.True(t, h.model.alert)

	h.ctl.push(control.Result{Request: control.StopRequest()}, false)
	h.send(tickMsg{})
	assert.False(t, h.model.alert)
}

func TestModel_View(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.joints.Write(angles(1.5)))
	require.NoError(t, h.plc.Write(report.PlcStateReport{PlcIn: ptr(strings.Repeat("0", 64))}))
	require.NoError(t, h.logs.Write("[12:00:00] hello"))
	h.send(tickMsg{})

	view := h.model.View()
	assert.Contains(t, view, "S: 1.500000")
	assert.Contains(t, view, "PLC IN:")
	assert.Contains(t, view, "00000000 00000000")
	assert.Contains(t, view, "-------- --------", "absent PLC OUT renders as placeholder")
	assert.Contains(t, view, "hello")
}

func TestModel_Quit(t *testing.T) {
	h := newHarness(t)
	cmd := h.key("q")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func ptr(s string) *string { return &s }
