package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pipeline describes one selectable processing pipeline.
type Pipeline struct {
	Name        string `yaml:"name"`        // display name for the submission form
	ID          string `yaml:"id"`          // identifier sent to the platform
	Description string `yaml:"description"` //
	Datatype    string `yaml:"datatype"`    // default output datatype
}

// Catalog is the set of pipelines the front-end may submit.
type Catalog struct {
	Pipelines []Pipeline `yaml:"pipelines"`

	byID map[string]Pipeline
}

// LoadCatalog reads and validates a pipeline catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses YAML catalog content.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline catalog: %w", err)
	}
	if len(c.Pipelines) == 0 {
		return nil, fmt.Errorf("pipeline catalog defines no pipelines")
	}

	c.byID = make(map[string]Pipeline, len(c.Pipelines))
	for i, p := range c.Pipelines {
		if p.ID == "" {
			return nil, fmt.Errorf("pipeline %d has no id", i)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("pipeline %q has no name", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate pipeline id %q", p.ID)
		}
		c.byID[p.ID] = p
	}
	return &c, nil
}

// Lookup resolves a pipeline id to its default datatype.
func (c *Catalog) Lookup(id string) (string, bool) {
	p, ok := c.byID[id]
	return p.Datatype, ok
}

// Get returns the full pipeline entry.
func (c *Catalog) Get(id string) (Pipeline, bool) {
	p, ok := c.byID[id]
	return p, ok
}
