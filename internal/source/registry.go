package source

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"data-exporter/internal/config"
)

var (
	ErrUnknownType   = errors.New("unknown data source type")
	ErrDuplicateType = errors.New("data source type already registered")
)

// Registry maps type tags to collector factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(sourceType string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[sourceType]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, sourceType)
	}
	r.factories[sourceType] = factory
	return nil
}

// MustRegister panics if the type is already registered.
func (r *Registry) MustRegister(sourceType string, factory Factory) {
	if err := r.Register(sourceType, factory); err != nil {
		panic(err)
	}
}

// New builds the collector for cfg.Type.
func (r *Registry) New(cfg config.DataSource, logger *zap.Logger) (Collector, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q for data source %q (supported: %s)",
			ErrUnknownType, cfg.Type, cfg.Name, strings.Join(r.Types(), ", "))
	}

	c, err := factory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create %s collector %q: %w", cfg.Type, cfg.Name, err)
	}
	return c, nil
}

// Types returns the registered type tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
