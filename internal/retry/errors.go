package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	bridge "github.com/spetersoncode/aguibridge"
)

// Retryable reports whether a failed attempt should be tried again. A
// categorized error decides by its category. Among uncategorized errors only
// dropped or timed out connections qualify; cancellation never does.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ce bridge.CategorizedError
	if errors.As(err, &ce) {
		return ce.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
