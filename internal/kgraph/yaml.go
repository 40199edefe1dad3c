package kgraph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is the on-disk YAML shape of the knowledge graph.
type Catalog struct {
	Concepts []Concept      `yaml:"concepts"`
	Edges    []TransferEdge `yaml:"transfer_edges"`
}

// LoadYAML reads and validates a catalog file.
func LoadYAML(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kgraph: read catalog: %w", err)
	}
	return ParseYAML(data)
}

func ParseYAML(data []byte) (*Graph, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("kgraph: parse catalog: %w", err)
	}
	if len(cat.Concepts) == 0 {
		return nil, fmt.Errorf("kgraph: catalog has no concepts")
	}
	return New(cat.Concepts, cat.Edges)
}
