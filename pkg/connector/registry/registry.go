// Package registry maps connector names to factories so the CLI can build
// a source by name.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ajitpratap0/tap-jotform/pkg/connector/core"
	"github.com/ajitpratap0/tap-jotform/pkg/errors"
	"go.uber.org/zap"
)

// SourceFactory is a function that creates source connector instances.
type SourceFactory func(logger *zap.Logger) (core.Source, error)

// ConnectorInfo provides information about a connector
type ConnectorInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

// Registry manages connector registration and instantiation
type Registry struct {
	sources map[string]SourceFactory
	infos   map[string]*ConnectorInfo
	mu      sync.RWMutex
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]SourceFactory),
		infos:   make(map[string]*ConnectorInfo),
	}
}

// RegisterSource registers a source connector factory
func (r *Registry) RegisterSource(name string, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source connector %s already registered", name))
	}

	r.sources[name] = factory
	return nil
}

// RegisterInfo records descriptive information for a connector
func (r *Registry) RegisterInfo(info *ConnectorInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.infos[info.Name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("connector %s already in catalog", info.Name))
	}

	r.infos[info.Name] = info
	return nil
}

// CreateSource creates a source connector instance
func (r *Registry) CreateSource(name string, logger *zap.Logger) (core.Source, error) {
	r.mu.RLock()
	factory, exists := r.sources[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source connector %s not found", name))
	}

	source, err := factory(logger)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create source connector %s", name))
	}

	return source, nil
}

// GetInfo retrieves connector information
func (r *Registry) GetInfo(name string) (*ConnectorInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.infos[name]
	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("connector %s not found in catalog", name))
	}
	return info, nil
}

// ListSources returns the registered source connectors, sorted
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]string, 0, len(r.sources))
	for name := range r.sources {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	return sources
}

// HasSource checks if a source connector is registered
func (r *Registry) HasSource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sources[name]
	return exists
}

// Global registry functions

// RegisterSource registers a source connector in the global registry
func RegisterSource(name string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(name, factory)
}

// RegisterConnectorInfo registers connector information in the global registry
func RegisterConnectorInfo(info *ConnectorInfo) error {
	return globalRegistry.RegisterInfo(info)
}

// CreateSource creates a source connector from the global registry
func CreateSource(name string, logger *zap.Logger) (core.Source, error) {
	return globalRegistry.CreateSource(name, logger)
}

// GetConnectorInfo retrieves connector information from the global registry
func GetConnectorInfo(name string) (*ConnectorInfo, error) {
	return globalRegistry.GetInfo(name)
}

// ListSources returns registered sources from the global registry
func ListSources() []string {
	return globalRegistry.ListSources()
}

// HasSource checks if a source is registered in the global registry
func HasSource(name string) bool {
	return globalRegistry.HasSource(name)
}
