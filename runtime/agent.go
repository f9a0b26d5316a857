package runtime

import (
	"context"
	"slices"
)

// TransferToAgentTool is reserved by runtimes for agent hand-off.
const TransferToAgentTool = "transfer_to_agent"

// Instruction yields the system instruction for an agent. It is either a
// fixed string or computed per invocation.
type Instruction interface {
	Resolve(ctx context.Context) (string, error)
}

// StaticInstruction is a fixed instruction string.
type StaticInstruction string

func (s StaticInstruction) Resolve(context.Context) (string, error) { return string(s), nil }

// ComputedInstruction derives the instruction at invocation time.
type ComputedInstruction func(ctx context.Context) (string, error)

func (f ComputedInstruction) Resolve(ctx context.Context) (string, error) { return f(ctx) }

// AppendInstruction returns an instruction that resolves base and appends
// extra separated by a blank line. A static base stays static.
func AppendInstruction(base Instruction, extra string) Instruction {
	if extra == "" {
		return base
	}
	switch b := base.(type) {
	case nil:
		return StaticInstruction(extra)
	case StaticInstruction:
		return StaticInstruction(joinInstruction(string(b), extra))
	default:
		return ComputedInstruction(func(ctx context.Context) (string, error) {
			s, err := b.Resolve(ctx)
			if err != nil {
				return "", err
			}
			return joinInstruction(s, extra), nil
		})
	}
}

func joinInstruction(base, extra string) string {
	if base == "" {
		return extra
	}
	return base + "\n\n" + extra
}

// Agent is the definition a Runner executes.
type Agent struct {
	Name        string
	Description string
	Instruction Instruction
	Tools       []Tool
}

// WithInstruction returns a copy of the agent with a different instruction.
func (a *Agent) WithInstruction(ins Instruction) *Agent {
	c := *a
	c.Instruction = ins
	return &c
}

// WithTools returns a copy of the agent with extra tools appended.
func (a *Agent) WithTools(tools ...Tool) *Agent {
	c := *a
	c.Tools = append(slices.Clone(a.Tools), tools...)
	return &c
}

// ToolNames returns the names of the agent's tools.
func (a *Agent) ToolNames() []string {
	names := make([]string, 0, len(a.Tools))
	for _, t := range a.Tools {
		names = append(names, t.Name())
	}
	return names
}

// Tool returns the named tool, if present.
func (a *Agent) Tool(name string) (Tool, bool) {
	for _, t := range a.Tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}
