package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/upb/llm-governance/config"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

type entry struct {
	desc    Descriptor
	adapter Adapter
	index   int
}

// Catalog is the closed set of routing candidates, each bound to the adapter
// that serves it. Several descriptors may share one adapter.
type Catalog struct {
	mu      sync.RWMutex
	entries []entry
	byName  map[string]int
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{byName: make(map[string]int)}
}

// Register binds a descriptor to its adapter
func (c *Catalog) Register(desc Descriptor, adapter Adapter) error {
	if adapter == nil {
		return errors.New("adapter cannot be nil")
	}
	if desc.Name == "" {
		return errors.New("descriptor name cannot be empty")
	}
	if desc.CostCeiling < 0 {
		return fmt.Errorf("descriptor %q has negative cost ceiling", desc.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byName[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, desc.Name)
	}
	if desc.PricingModel == "" {
		desc.PricingModel = desc.Name
	}
	c.byName[desc.Name] = len(c.entries)
	c.entries = append(c.entries, entry{desc: desc, adapter: adapter, index: len(c.entries)})
	return nil
}

// Ordered returns descriptors by ascending Rank; equal ranks keep registration order
func (c *Catalog) Ordered() []Descriptor {
	c.mu.RLock()
	sorted := make([]entry, len(c.entries))
	copy(sorted, c.entries)
	c.mu.RUnlock()

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].desc.Rank < sorted[j].desc.Rank
	})

	out := make([]Descriptor, len(sorted))
	for i, e := range sorted {
		out[i] = e.desc
	}
	return out
}

// Adapter returns the adapter serving the named descriptor
func (c *Catalog) Adapter(name string) (Adapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return c.entries[i].adapter, nil
}

// Len returns the number of registered descriptors
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// BuildCatalog binds every provider of cfg to an adapter looked up by
// descriptor name. Each descriptor must have an adapter.
func BuildCatalog(cfg *config.Catalog, adapters map[string]Adapter) (*Catalog, error) {
	c := NewCatalog()
	for _, p := range cfg.Providers {
		adapter, ok := adapters[p.Name]
		if !ok {
			return nil, fmt.Errorf("no adapter for provider %q", p.Name)
		}
		desc := Descriptor{
			Name:         p.Name,
			PricingModel: p.PricingModel,
			CostCeiling:  p.CostCeiling,
			Rank:         p.Rank,
		}
		if err := c.Register(desc, adapter); err != nil {
			return nil, err
		}
	}
	return c, nil
}
