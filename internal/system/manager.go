package system

import (
	"context"
	"fmt"
	"sync"
)

// Manager starts registered services in registration order and stops them in
// reverse order. A failed start rolls back the services already running.
type Manager struct {
	mu       sync.Mutex
	services []Service
	names    map[string]bool
	started  []Service
	running  bool
}

func NewManager() *Manager {
	return &Manager{names: make(map[string]bool)}
}

// Register adds a service. Names must be unique and registration must happen
// before Start.
func (m *Manager) Register(svc Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("manager already started")
	}
	name := svc.Name()
	if name == "" {
		return fmt.Errorf("service name is required")
	}
	if m.names[name] {
		return fmt.Errorf("service %q already registered", name)
	}
	m.names[name] = true
	m.services = append(m.services, svc)
	return nil
}

func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			m.stopLocked(ctx)
			return fmt.Errorf("starting %s: %w", svc.Name(), err)
		}
		m.started = append(m.started, svc)
	}
	m.running = true
	return nil
}

func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.stopLocked(ctx)
	m.running = false
	return err
}

func (m *Manager) stopLocked(ctx context.Context) error {
	var firstErr error
	for i := len(m.started) - 1; i >= 0; i-- {
		svc := m.started[i]
		if err := svc.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stopping %s: %w", svc.Name(), err)
		}
	}
	m.started = nil
	return firstErr
}
