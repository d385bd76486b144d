package llm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AgentDefinition binds a capability to a remote agent id.
type AgentDefinition struct {
	Kind        string `yaml:"kind"`
	AgentID     string `yaml:"agent_id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type definitionsFile struct {
	Agents []AgentDefinition `yaml:"agents"`
}

// LoadAgentDefinitions reads an agents file and returns agent ids keyed by kind.
func LoadAgentDefinitions(path string) (map[Kind]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent definitions: %w", err)
	}
	return ParseAgentDefinitions(data)
}

// ParseAgentDefinitions decodes YAML agent definitions. Duplicate kinds are rejected.
func ParseAgentDefinitions(data []byte) (map[Kind]string, error) {
	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse agent definitions: %w", err)
	}
	out := make(map[Kind]string, len(file.Agents))
	for i, def := range file.Agents {
		kind, err := ParseKind(def.Kind)
		if err != nil {
			return nil, &ConfigurationError{Field: fmt.Sprintf("agents[%d].kind", i), Reason: err.Error()}
		}
		if _, dup := out[kind]; dup {
			return nil, &ConfigurationError{Field: fmt.Sprintf("agents[%d].kind", i), Reason: "duplicate kind " + def.Kind}
		}
		if def.AgentID == "" {
			return nil, &ConfigurationError{Field: fmt.Sprintf("agents[%d].agent_id", i), Reason: "must be set"}
		}
		out[kind] = def.AgentID
	}
	return out, nil
}
