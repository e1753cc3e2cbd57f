package connector

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a new, unconnected Connector.
type Factory func() Connector

// Registry maps driver names to connector factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// RegisterDriver registers a connector factory for a driver name.
func (r *Registry) RegisterDriver(driver string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[driver] = factory
}

// New returns a fresh connector for driver without connecting it.
func (r *Registry) New(driver string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver: %s (available: %v)", driver, r.drivers())
	}
	return factory(), nil
}

// Connect creates a connector for cfg.Driver and opens its pool. The DSN is
// passed through SanitizeDSN first.
func (r *Registry) Connect(cfg Config) (Connector, error) {
	conn, err := r.New(cfg.Driver)
	if err != nil {
		return nil, err
	}
	cfg.DSN = SanitizeDSN(cfg.Driver, cfg.DSN)
	if err := conn.Connect(cfg); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	return conn, nil
}

// Drivers returns the registered driver names, sorted.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.drivers()
}

func (r *Registry) drivers() []string {
	names := make([]string, 0, len(r.factories))
	for d := range r.factories {
		names = append(names, d)
	}
	sort.Strings(names)
	return names
}
