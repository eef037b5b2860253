package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/benkokes/elite-EI65-robot-controller/control"
	"github.com/benkokes/elite-EI65-robot-controller/pkg/buffer"
	"github.com/benkokes/elite-EI65-robot-controller/processor/report"
)

// requester is the part of control.Dispatcher the interface drives.
type requester interface {
	Submit(req control.Request) (string, error)
	Poll() []control.Result
	Alert() bool
}

// session reports console connectivity.
type session interface {
	Connected() bool
	Err() error
}

type tickMsg time.Time

// Target nudges for up/down and page up/page down.
const (
	targetStep     = 1.0
	targetPageStep = 10.0
)

var (
	alertBackground = lipgloss.Color("#F08080") // light coral
	bitsSet         = lipgloss.Color("2")
	bitsClear       = lipgloss.Color("1")
	bitsAbsent      = lipgloss.Color("8")

	titleStyle    = lipgloss.NewStyle().Bold(true)
	labelStyle    = lipgloss.NewStyle().Faint(true)
	valueStyle    = lipgloss.NewStyle().Bold(true)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	helpStyle     = lipgloss.NewStyle().Faint(true)
)

type modelDeps struct {
	Joints    *buffer.Queue[report.JointAngles]
	Plc       *buffer.Queue[report.PlcStateReport]
	Control   requester
	Session   session
	Logs      *buffer.CircularBuffer[string]
	Logger    *slog.Logger
	Tick      time.Duration
	SpeedStep int
	LogLines  int
}

// model is the operator interface. It only ever polls: queues and
// dispatcher results are drained on each tick.
type model struct {
	deps modelDeps

	current   report.JointAngles
	targets   report.JointAngles
	populated bool
	selected  int

	plc report.PlcStateReport

	mode, speed, coord, servo string
	setpoint                  int
	setpointKnown             bool

	alert bool
	width int
}

func newModel(deps modelDeps) model {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tick <= 0 {
		deps.Tick = 50 * time.Millisecond
	}
	if deps.SpeedStep <= 0 {
		deps.SpeedStep = 100
	}
	if deps.LogLines <= 0 {
		deps.LogLines = 8
	}
	targets := make(report.JointAngles, len(report.JointOrder))
	for _, name := range report.JointOrder {
		targets[name] = 0
	}
	return model{deps: deps, targets: targets}
}

func (m model) tickCmd() tea.Cmd {
	return tea.Tick(m.deps.Tick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	m.submit(control.StatusRequest())
	return m.tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.poll()
		return m, m.tickCmd()
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *model) poll() {
	for _, j := range m.deps.Joints.Drain() {
		m.current = j
		if !m.populated {
			m.targets = copyAngles(j)
			m.populated = true
		}
	}
	for _, p := range m.deps.Plc.Drain() {
		m.plc = p
	}
	for _, res := range m.deps.Control.Poll() {
		m.apply(res)
	}
	m.alert = m.deps.Control.Alert()
}

func (m *model) apply(res control.Result) {
	if res.Status != nil {
		m.mode = res.Status.Mode.Value
		m.coord = res.Status.Coord.Value
		m.servo = res.Status.Servo.Value
		m.setSpeed(res.Status.Speed.Value)
		return
	}
	if res.Response == nil {
		return
	}
	switch res.Response.Command {
	case control.CommandMode:
		m.mode = res.Response.Value
	case control.CommandSpeed:
		m.setSpeed(res.Response.Value)
	case control.CommandCoord:
		m.coord = res.Response.Value
	case control.CommandServo:
		m.servo = res.Response.Value
	}
}

// setSpeed shows the reported speed and seeds the set-point from the
// first numeric report.
func (m *model) setSpeed(value string) {
	m.speed = value
	if m.setpointKnown {
		return
	}
	if n, err := strconv.Atoi(value); err == nil {
		m.setpoint = clampSpeed(n)
		m.setpointKnown = true
	}
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "y":
		m.sync()
	case "m":
		m.submit(control.MoveRequest(m.targets))
	case "x":
		m.submit(control.StopRequest())
	case "+", "=":
		m.setpoint = clampSpeed(m.setpoint + m.deps.SpeedStep)
		m.setpointKnown = true
	case "-":
		m.setpoint = clampSpeed(m.setpoint - m.deps.SpeedStep)
		m.setpointKnown = true
	case "enter":
		m.submit(control.SpeedRequest(m.setpoint))
	case "tab", "right":
		m.selected = (m.selected + 1) % len(report.JointOrder)
	case "shift+tab", "left":
		m.selected = (m.selected + len(report.JointOrder) - 1) % len(report.JointOrder)
	case "up":
		m.nudge(targetStep)
	case "down":
		m.nudge(-targetStep)
	case "pgup":
		m.nudge(targetPageStep)
	case "pgdown":
		m.nudge(-targetPageStep)
	}
	return m, nil
}

// sync copies the live angles into the move targets and refreshes status.
func (m *model) sync() {
	if m.current != nil {
		m.targets = copyAngles(m.current)
		m.populated = true
		m.deps.Logger.Info("Synced joint values")
	} else {
		m.deps.Logger.Info("No joint data to sync")
	}
	m.submit(control.StatusRequest())
}

func (m *model) nudge(delta float64) {
	name := report.JointOrder[m.selected]
	targets := copyAngles(m.targets)
	targets[name] += delta
	m.targets = targets
}

func (m model) submit(req control.Request) {
	if _, err := m.deps.Control.Submit(req); err != nil {
		m.deps.Logger.Warn("Request not queued", "kind", req.Kind, "error", err)
	}
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("ROBOTMON"))
	b.WriteString("  ")
	b.WriteString(m.sessionLine())
	b.WriteString("\n\n")

	fields := []struct{ label, value string }{
		{"MODE:", m.mode}, {"SPEED:", m.speed}, {"COORD:", m.coord}, {"SERVO:", m.servo},
	}
	for i, f := range fields {
		if i > 0 {
			b.WriteString("   ")
		}
		b.WriteString(labelStyle.Render(f.label) + " " + valueStyle.Render(f.value))
	}
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Joints  ") + " " + m.jointLine(m.current, -1) + "\n")
	b.WriteString(labelStyle.Render("Targets ") + " " + m.jointLine(m.targets, m.selected) + "\n\n")

	b.WriteString(labelStyle.Render("PLC IN: ") + " " + plcBits(m.plc.PlcIn) + "\n")
	b.WriteString(labelStyle.Render("PLC OUT:") + " " + plcBits(m.plc.PlcOut) + "\n\n")

	fmt.Fprintf(&b, "%s %s\n\n", labelStyle.Render("Speed set-point:"), valueStyle.Render(strconv.Itoa(m.setpoint)))

	lines := m.deps.Logs.Snapshot()
	if len(lines) > m.deps.LogLines {
		lines = lines[len(lines)-m.deps.LogLines:]
	}
	for _, line := range lines {
		b.WriteString(line + "\n")
	}
	for i := len(lines); i < m.deps.LogLines; i++ {
		b.WriteString("\n")
	}

	b.WriteString("\n" + helpStyle.Render(
		"y sync  m move  x stop  +/- speed  enter apply speed  tab/↑↓ edit target  q quit"))

	view := b.String()
	if m.alert {
		style := lipgloss.NewStyle().Background(alertBackground)
		if m.width > 0 {
			style = style.Width(m.width)
		}
		view = style.Render(view)
	}
	return view
}

func (m model) sessionLine() string {
	switch {
	case m.deps.Session == nil:
		return ""
	case m.deps.Session.Connected():
		return "console: connected"
	case m.deps.Session.Err() != nil:
		return "console: failed (" + m.deps.Session.Err().Error() + ")"
	default:
		return "console: connecting"
	}
}

func (m model) jointLine(angles report.JointAngles, selected int) string {
	parts := make([]string, len(report.JointOrder))
	for i, name := range report.JointOrder {
		value := "-"
		if angles != nil {
			value = fmt.Sprintf("%.6f", angles[name])
		}
		part := fmt.Sprintf("%s: %s", name, value)
		if i == selected {
			part = selectedStyle.Render(part)
		}
		parts[i] = part
	}
	return strings.Join(parts, "  ")
}

// plcBits colours a PLC field: green with any bit set, red when all clear,
// grey when the block was not on screen.
func plcBits(bits *string) string {
	color := bitsAbsent
	switch {
	case bits == nil:
	case report.AnySet(bits):
		color = bitsSet
	default:
		color = bitsClear
	}
	return lipgloss.NewStyle().Foreground(color).Render(report.FormatBits(bits))
}

func copyAngles(src report.JointAngles) report.JointAngles {
	out := make(report.JointAngles, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func clampSpeed(n int) int {
	return max(control.MinSpeed, min(control.MaxSpeed, n))
}
