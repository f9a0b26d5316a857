package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/aguibridge/runtime"
)

const agentsYAML = `
agents:
  - name: weather
    description: Answers weather questions
    instruction: You report the weather.
    tools: [get_weather]
  - name: general
    instruction: You help.
`

func TestLoadAgents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(agentsYAML), 0o600))

	f, err := LoadAgents(path)
	require.NoError(t, err)
	require.Len(t, f.Agents, 2)
	assert.Equal(t, "weather", f.Agents[0].Name)
	assert.Equal(t, []string{"get_weather"}, f.Agents[0].Tools)

	tools := demoTools()
	weather, err := f.Agents[0].Build(tools)
	require.NoError(t, err)
	assert.Equal(t, []string{"get_weather"}, weather.ToolNames())
	assert.Equal(t, runtime.StaticInstruction("You report the weather."), weather.Instruction)

	general, err := f.Agents[1].Build(tools)
	require.NoError(t, err)
	assert.Len(t, general.Tools, len(tools), "no tool list grants every tool")
}

func TestParseAgents_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":        "agents: []",
		"missing name": "agents:\n  - instruction: hi",
		"duplicate":    "agents:\n  - name: a\n  - name: a",
		"bad yaml":     "agents: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAgents([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestAgentDef_UnknownTool(t *testing.T) {
	_, err := AgentDef{Name: "a", Tools: []string{"missing"}}.Build(demoTools())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown tool "missing"`)
}
