package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is the provider ordering and price table, optionally read from YAML.
type Catalog struct {
	Providers []CatalogProvider      `yaml:"providers"`
	Pricing   map[string]CatalogPrice `yaml:"pricing"`
}

// CatalogProvider describes one routing candidate.
type CatalogProvider struct {
	Name         string  `yaml:"name"`
	PricingModel string  `yaml:"pricing_model"`
	CostCeiling  float64 `yaml:"cost_ceiling"`
	Rank         int     `yaml:"rank"`
}

// CatalogPrice is a per-1K-token price pair in USD.
type CatalogPrice struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// DefaultCatalog returns the built-in gemma-then-openai ordering.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Providers: []CatalogProvider{
			{Name: "gemma", PricingModel: "gemma", CostCeiling: 0.002, Rank: 1},
			{Name: "openai", PricingModel: "gpt-3.5-turbo", CostCeiling: 0.02, Rank: 2},
		},
	}
}

// LoadCatalog reads a catalog file. An empty path yields DefaultCatalog.
// Environment variables in the file are expanded before parsing.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	cat := &Catalog{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(cat.Providers) == 0 {
		cat.Providers = DefaultCatalog().Providers
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	return cat, nil
}

// Validate checks names are unique and amounts are non-negative.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d has no name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider %q", p.Name)
		}
		seen[p.Name] = true
		if p.CostCeiling < 0 {
			return fmt.Errorf("provider %q has negative cost ceiling", p.Name)
		}
	}
	for model, price := range c.Pricing {
		if price.InputPer1K < 0 || price.OutputPer1K < 0 {
			return fmt.Errorf("model %q has negative price", model)
		}
	}
	return nil
}
