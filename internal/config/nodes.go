package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"cloudpico-humidity/internal/flow"
)

// NodeSpec is one entry of the nodes file. Formula falls back to wetterochs
// when empty or unknown. Input is the MQTT topic filter to subscribe to and
// Output defaults to humidity/<name>.
type NodeSpec struct {
	Name             string `yaml:"name"`
	Formula          string `yaml:"formula"`
	TemperatureTopic string `yaml:"temperatureTopic"`
	HumidityTopic    string `yaml:"humidityTopic"`
	Input            string `yaml:"input"`
	Output           string `yaml:"output"`
}

type nodesFile struct {
	Nodes []NodeSpec `yaml:"nodes"`
}

func (s *NodeSpec) normalize() error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return errors.New("node name is required")
	}
	if s.Input == "" {
		return fmt.Errorf("node %q: input topic is required", s.Name)
	}
	if s.Output == "" {
		s.Output = "humidity/" + s.Name
	}
	if strings.ContainsAny(s.Output, "+#") {
		return fmt.Errorf("node %q: output topic %q must not contain wildcards", s.Name, s.Output)
	}
	return nil
}

func (s NodeSpec) Definition() flow.Definition {
	return flow.Definition{
		Name:             s.Name,
		Formula:          s.Formula,
		TemperatureTopic: s.TemperatureTopic,
		HumidityTopic:    s.HumidityTopic,
		Input:            s.Input,
		Output:           s.Output,
	}
}

// LoadNodes reads and validates the nodes file at path.
func LoadNodes(path string) ([]flow.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nodes file: %w", err)
	}
	return ParseNodes(data)
}

func ParseNodes(data []byte) ([]flow.Definition, error) {
	var f nodesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse nodes file: %w", err)
	}
	if len(f.Nodes) == 0 {
		return nil, errors.New("nodes file defines no nodes")
	}

	seen := make(map[string]bool, len(f.Nodes))
	defs := make([]flow.Definition, 0, len(f.Nodes))
	for i := range f.Nodes {
		ns := f.Nodes[i]
		if err := ns.normalize(); err != nil {
			return nil, fmt.Errorf("nodes[%d]: %w", i, err)
		}
		if seen[ns.Name] {
			return nil, fmt.Errorf("nodes[%d]: duplicate node name %q", i, ns.Name)
		}
		seen[ns.Name] = true
		defs = append(defs, ns.Definition())
	}
	return defs, nil
}

// Nodes returns the definitions to deploy: the nodes file when configured,
// otherwise the single env-defined node.
func (c Config) Nodes() ([]flow.Definition, error) {
	if c.NodesFile == "" {
		return []flow.Definition{c.DefaultNode.Definition()}, nil
	}
	return LoadNodes(c.NodesFile)
}
