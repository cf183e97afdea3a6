package flow

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is a workflow as stored in a file: a graph plus the variables a
// run starts with.
type Definition struct {
	Name        string         `json:"name"                  yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"   yaml:"variables,omitempty"`
	Nodes       []Node         `json:"nodes"                 yaml:"nodes"`
	Edges       []Edge         `json:"edges"                 yaml:"edges"`
}

// LoadDefinition decodes a YAML or JSON definition. A missing name is derived
// from the description.
func LoadDefinition(r io.Reader) (*Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("definition is empty")
		}
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	if def.Name == "" {
		def.Name = WorkflowName(def.Description)
	}
	return &def, nil
}

// LoadDefinitionFile reads a definition from path.
func LoadDefinitionFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	def, err := LoadDefinition(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Graph returns the definition's nodes and edges as a Graph.
func (d *Definition) Graph() *Graph {
	return NewGraph(d.Nodes, d.Edges)
}
