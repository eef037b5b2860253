package health

import (
	"sort"
	"sync"

	"github.com/benkokes/elite-EI65-robot-controller/component"
)

// Monitor collects health from registered components on demand.
type Monitor struct {
	mu       sync.RWMutex
	name     string
	checkers map[string]func() Status
}

// NewMonitor creates a monitor reporting under the given system name.
func NewMonitor(name string) *Monitor {
	return &Monitor{
		name:     name,
		checkers: make(map[string]func() Status),
	}
}

// Register adds a named health check. A later registration replaces an earlier one.
func (m *Monitor) Register(name string, check func() Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = check
}

// RegisterComponent adds a check backed by the component's own Health report.
func (m *Monitor) RegisterComponent(c component.Discoverable) {
	name := c.Meta().Name
	m.Register(name, func() Status {
		return FromComponentHealth(name, c.Health())
	})
}

// Check runs every registered check and aggregates the results in name order.
func (m *Monitor) Check() Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	checks := make(map[string]func() Status, len(m.checkers))
	for k, v := range m.checkers {
		checks[k] = v
	}
	m.mu.RUnlock()

	sort.Strings(names)
	subs := make([]Status, 0, len(names))
	for _, name := range names {
		s := checks[name]()
		s.Component = name
		subs = append(subs, s)
	}
	return Aggregate(m.name, subs)
}
