package component

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
)

// Manager starts components in registration order and stops them in reverse.
type Manager struct {
	mu         sync.Mutex
	components []*managed
	logger     *slog.Logger
}

type managed struct {
	comp      LifecycleComponent
	state     State
	lastError error
}

// NewManager creates an empty manager. A nil logger falls back to slog.Default.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With("component", "manager")}
}

// Add registers a component. Components must be added before Start.
func (m *Manager) Add(c LifecycleComponent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, &managed{comp: c, state: StateCreated})
}

// Start initializes and starts every component. On failure the components
// already started are stopped again.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, mc := range m.components {
		name := mc.comp.Meta().Name
		if err := mc.comp.Initialize(); err != nil {
			mc.state, mc.lastError = StateFailed, err
			m.rollback(i)
			return errors.Wrap(err, "Manager", "Start", fmt.Sprintf("initialize %s", name))
		}
		mc.state = StateInitialized

		if err := mc.comp.Start(ctx); err != nil {
			mc.state, mc.lastError = StateFailed, err
			m.rollback(i)
			return errors.Wrap(err, "Manager", "Start", fmt.Sprintf("start %s", name))
		}
		mc.state = StateStarted
		m.logger.Debug("component started", "name", name)
	}
	return nil
}

// rollback stops components [0, n) in reverse order. Caller holds mu.
func (m *Manager) rollback(n int) {
	for i := n - 1; i >= 0; i-- {
		mc := m.components[i]
		if mc.state != StateStarted {
			continue
		}
		if err := mc.comp.Stop(time.Second); err != nil {
			m.logger.Warn("rollback stop failed", "name", mc.comp.Meta().Name, "error", err)
		}
		mc.state = StateStopped
	}
}

// Stop stops every started component in reverse order, sharing the timeout
// budget between them. The first error is returned after all have been stopped.
func (m *Manager) Stop(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	deadline := time.Now().Add(timeout)
	var firstErr error
	for i := len(m.components) - 1; i >= 0; i-- {
		mc := m.components[i]
		if mc.state != StateStarted {
			continue
		}
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if err := mc.comp.Stop(remaining); err != nil {
			mc.state, mc.lastError = StateFailed, err
			if firstErr == nil {
				firstErr = errors.Wrap(err, "Manager", "Stop", fmt.Sprintf("stop %s", mc.comp.Meta().Name))
			}
			continue
		}
		mc.state = StateStopped
	}
	return firstErr
}

// States returns the lifecycle state of each component keyed by name.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]State, len(m.components))
	for _, mc := range m.components {
		out[mc.comp.Meta().Name] = mc.state
	}
	return out
}

// Components returns the registered components in start order.
func (m *Manager) Components() []LifecycleComponent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]LifecycleComponent, len(m.components))
	for i, mc := range m.components {
		out[i] = mc.comp
	}
	return out
}
