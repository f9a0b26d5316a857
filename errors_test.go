package aguibridge

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	assert.Equal(t, "empty input", ErrEmptyInput.Error())
	wrapped := fmt.Errorf("resume: %w", ErrNoToolResults)
	assert.True(t, errors.Is(wrapped, ErrNoToolResults))
	assert.False(t, errors.Is(wrapped, ErrCapacityExceeded))
}

func TestCategorizedError(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		transient bool
		permanent bool
		userInput bool
	}{
		{"transient", NewTransientError("rate limited", 429, nil), true, false, false},
		{"permanent", NewPermanentError("bad key", 401, nil), false, true, false},
		{"user input", NewUserInputError("bad request", 400, nil), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("call model: %w", tt.err)
			assert.Equal(t, tt.transient, IsTransient(wrapped))
			assert.Equal(t, tt.permanent, IsPermanent(wrapped))
			assert.Equal(t, tt.userInput, IsUserInput(wrapped))
			assert.Equal(t, tt.transient, tt.err.Retryable())
			assert.Equal(t, tt.err.Code, StatusCodeOf(wrapped))
		})
	}

	t.Run("retry delay", func(t *testing.T) {
		err := NewTransientErrorWithRetry("slow down", 429, 3*time.Second, nil)
		assert.Equal(t, 3*time.Second, RetryAfterOf(fmt.Errorf("x: %w", err)))
		assert.Zero(t, RetryAfterOf(errors.New("plain")))
	})

	t.Run("cause is unwrapped", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := NewTransientError("stream failed", 0, cause)
		assert.Equal(t, "stream failed: connection reset", err.Error())
		assert.True(t, errors.Is(err, cause))
	})
}

func TestRunError(t *testing.T) {
	t.Run("message includes code", func(t *testing.T) {
		err := NewRunError(CodeExecutionTimeout, "Execution timed out", nil)
		assert.Equal(t, "EXECUTION_TIMEOUT: Execution timed out", err.Error())
	})

	t.Run("code survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("drain: %w", NewRunError(CodeNoToolResults, "No tool results found in submission", ErrNoToolResults))
		assert.Equal(t, CodeNoToolResults, RunErrorCodeOf(err, CodeExecution))
		assert.True(t, errors.Is(err, ErrNoToolResults))
	})

	t.Run("fallback code", func(t *testing.T) {
		assert.Equal(t, CodeExecution, RunErrorCodeOf(errors.New("boom"), CodeExecution))
	})
}
