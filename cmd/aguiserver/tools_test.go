package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		op      string
		a, b    float64
		want    float64
		wantErr bool
	}{
		{op: "add", a: 2, b: 3, want: 5},
		{op: "subtract", a: 2, b: 3, want: -1},
		{op: "multiply", a: 2, b: 3, want: 6},
		{op: "divide", a: 3, b: 2, want: 1.5},
		{op: "divide", a: 1, b: 0, wantErr: true},
		{op: "modulo", a: 1, b: 2, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			out, err := calculate(context.Background(), map[string]any{"operation": tt.op, "a": tt.a, "b": tt.b})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out["result"])
		})
	}
}

func TestCurrentTime(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fn := currentTime(func() time.Time { return fixed })

	out, err := fn(context.Background(), map[string]any{"format": "unix"})
	require.NoError(t, err)
	assert.Equal(t, "1740830400", out["time"])

	out, err = fn(context.Background(), map[string]any{"format": "rfc3339"})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T12:00:00Z", out["time"])
}

func TestEcho(t *testing.T) {
	out, err := echo(context.Background(), map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"echo": "hi"}, out)

	_, err = echo(context.Background(), map[string]any{"message": 3})
	assert.Error(t, err)
}

func TestWeather_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := weather(ctx, map[string]any{"location": "Paris"})
	assert.ErrorIs(t, err, context.Canceled)
}
