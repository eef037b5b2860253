package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/benkokes/elite-EI65-robot-controller/component"
)

// MockComponent is a lifecycle component with scriptable health and errors.
type MockComponent struct {
	mu sync.Mutex

	Name     string
	StartErr error
	StopErr  error

	healthy    bool
	errorCount int
	lastError  string

	Started    bool
	Stopped    bool
	StartCalls int
	StopCalls  int
}

var _ component.LifecycleComponent = (*MockComponent)(nil)

// NewMockComponent creates a healthy mock named name.
func NewMockComponent(name string) *MockComponent {
	return &MockComponent{Name: name, healthy: true}
}

// SetHealth changes what Health reports.
func (m *MockComponent) SetHealth(healthy bool, errorCount int, lastError string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
	m.errorCount = errorCount
	m.lastError = lastError
}

// Meta implements component.Discoverable.
func (m *MockComponent) Meta() component.Metadata {
	return component.Metadata{Name: m.Name, Type: "mock", Version: "test"}
}

// Health implements component.Discoverable.
func (m *MockComponent) Health() component.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return component.HealthStatus{
		Healthy:    m.healthy,
		LastCheck:  time.Now(),
		ErrorCount: m.errorCount,
		LastError:  m.lastError,
	}
}

// DataFlow implements component.Discoverable.
func (m *MockComponent) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{}
}

// Initialize implements component.LifecycleComponent.
func (m *MockComponent) Initialize() error {
	return nil
}

// Start records the call and returns StartErr.
func (m *MockComponent) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StartCalls++
	if m.StartErr != nil {
		return m.StartErr
	}
	m.Started = true
	return nil
}

// Stop records the call and returns StopErr.
func (m *MockComponent) Stop(_ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopCalls++
	m.Stopped = true
	return m.StopErr
}
