package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benkokes/elite-EI65-robot-controller/testutil"
)

func TestMonitor_Check(t *testing.T) {
	console := testutil.NewMockComponent("console")
	control := testutil.NewMockComponent("control")

	m := NewMonitor("robotmon")
	m.RegisterComponent(control)
	m.RegisterComponent(console)

	s := m.Check()
	assert.True(t, s.IsHealthy())
	assert.Equal(t, "robotmon", s.Component)
	require.Len(t, s.SubStatuses, 2)
	assert.Equal(t, "console", s.SubStatuses[0].Component)
	assert.Equal(t, "control", s.SubStatuses[1].Component)

	control.SetHealth(true, 2, "dial tcp 192.168.1.200:5000: connection refused")
	s = m.Check()
	assert.True(t, s.IsDegraded())
	assert.NotContains(t, s.SubStatuses[1].Message, "192.168.1.200")

	console.SetHealth(false, 1, "session closed")
	s = m.Check()
	assert.True(t, s.IsUnhealthy())
	assert.False(t, s.Healthy)
}

func TestMonitor_RegisterReplaces(t *testing.T) {
	m := NewMonitor("robotmon")
	m.Register("nats", func() Status { return NewUnhealthy("", "down") })
	m.Register("nats", func() Status { return NewHealthy("", "up") })

	s := m.Check()
	require.Len(t, s.SubStatuses, 1)
	assert.Equal(t, "nats", s.SubStatuses[0].Component)
	assert.Equal(t, "up", s.SubStatuses[0].Message)
}

func TestMonitor_Empty(t *testing.T) {
	assert.True(t, NewMonitor("robotmon").Check().IsHealthy())
}
