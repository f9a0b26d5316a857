package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spetersoncode/aguibridge/runtime"
)

// AgentsFile is the YAML document listing the agents a server exposes at
// /api/agents/:name.
//
//	agents:
//	  - name: weather
//	    description: Answers weather questions
//	    instruction: You report the weather.
//	    tools: [get_weather]
type AgentsFile struct {
	Agents []AgentDef `yaml:"agents"`
}

// AgentDef defines one agent. An empty tool list grants every backend tool.
type AgentDef struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Instruction string   `yaml:"instruction"`
	Tools       []string `yaml:"tools"`
}

// LoadAgents reads and parses an agents file.
func LoadAgents(path string) (*AgentsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	return ParseAgents(data)
}

// ParseAgents parses an agents document and checks names are present and
// unique.
func ParseAgents(data []byte) (*AgentsFile, error) {
	var f AgentsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse agents file: %w", err)
	}
	if len(f.Agents) == 0 {
		return nil, fmt.Errorf("agents file defines no agents")
	}
	seen := make(map[string]bool, len(f.Agents))
	for i, a := range f.Agents {
		if a.Name == "" {
			return nil, fmt.Errorf("agent %d: name is required", i)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("agent %q defined twice", a.Name)
		}
		seen[a.Name] = true
	}
	return &f, nil
}

// Build resolves the definition against the available backend tools.
func (d AgentDef) Build(available []runtime.Tool) (*runtime.Agent, error) {
	agent := &runtime.Agent{
		Name:        d.Name,
		Description: d.Description,
		Instruction: runtime.StaticInstruction(d.Instruction),
	}
	if len(d.Tools) == 0 {
		agent.Tools = available
		return agent, nil
	}

	byName := make(map[string]runtime.Tool, len(available))
	for _, t := range available {
		byName[t.Name()] = t
	}
	for _, name := range d.Tools {
		t, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("agent %q: unknown tool %q", d.Name, name)
		}
		agent.Tools = append(agent.Tools, t)
	}
	return agent, nil
}
