package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spetersoncode/aguibridge/runtime"
)

// demoTools returns the built-in backend tools. They are served to agents
// when AGUI_DEMO_TOOLS is set and published by the mcp command.
func demoTools() []runtime.Tool {
	return []runtime.Tool{
		&runtime.FuncTool{
			ToolName:        "get_weather",
			ToolDescription: "Get the current weather for a location",
			Schema: json.RawMessage(`{"type":"object","properties":{
				"location":{"type":"string","description":"City name, e.g. Paris"}},
				"required":["location"]}`),
			Fn: weather,
		},
		&runtime.FuncTool{
			ToolName:        "get_time",
			ToolDescription: "Get the current time",
			Schema: json.RawMessage(`{"type":"object","properties":{
				"format":{"type":"string","description":"Time format: 'rfc3339', 'unix', or 'human'","enum":["rfc3339","unix","human"]}}}`),
			Fn: currentTime(time.Now),
		},
		&runtime.FuncTool{
			ToolName:        "echo",
			ToolDescription: "Echo back the input message (useful for testing)",
			Schema: json.RawMessage(`{"type":"object","properties":{
				"message":{"type":"string","description":"Message to echo back"}},
				"required":["message"]}`),
			Fn: echo,
		},
		&runtime.FuncTool{
			ToolName:        "calculate",
			ToolDescription: "Perform basic arithmetic",
			Schema: json.RawMessage(`{"type":"object","properties":{
				"operation":{"type":"string","enum":["add","subtract","multiply","divide"]},
				"a":{"type":"number","description":"First number"},
				"b":{"type":"number","description":"Second number"}},
				"required":["operation","a","b"]}`),
			Fn: calculate,
		},
	}
}

func weather(ctx context.Context, args map[string]any) (map[string]any, error) {
	location, _ := args["location"].(string)
	if location == "" {
		return nil, fmt.Errorf("location is required")
	}
	select {
	case <-time.After(50 * time.Millisecond): // Simulate API latency
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return map[string]any{
		"location":    location,
		"temperature": 22,
		"conditions":  "Sunny",
		"unit":        "celsius",
	}, nil
}

func currentTime(now func() time.Time) func(context.Context, map[string]any) (map[string]any, error) {
	return func(_ context.Context, args map[string]any) (map[string]any, error) {
		t := now().UTC()
		format, _ := args["format"].(string)
		var s string
		switch strings.ToLower(format) {
		case "rfc3339":
			s = t.Format(time.RFC3339)
		case "unix":
			s = fmt.Sprintf("%d", t.Unix())
		default:
			s = t.Format("Monday, January 2, 2006 at 3:04 PM MST")
		}
		return map[string]any{"time": s, "timezone": "UTC"}, nil
	}
}

func echo(_ context.Context, args map[string]any) (map[string]any, error) {
	msg, ok := args["message"].(string)
	if !ok {
		return nil, fmt.Errorf("message must be a string")
	}
	return map[string]any{"echo": msg}, nil
}

func calculate(_ context.Context, args map[string]any) (map[string]any, error) {
	a, okA := args["a"].(float64)
	b, okB := args["b"].(float64)
	if !okA || !okB {
		return nil, fmt.Errorf("a and b must be numbers")
	}

	var result float64
	switch op, _ := args["operation"].(string); op {
	case "add":
		result = a + b
	case "subtract":
		result = a - b
	case "multiply":
		result = a * b
	case "divide":
		if b == 0 {
			return nil, fmt.Errorf("cannot divide by zero")
		}
		result = a / b
	default:
		return nil, fmt.Errorf("unknown operation: %s", op)
	}
	return map[string]any{"result": result}, nil
}
