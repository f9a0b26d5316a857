package llm

import (
	"net/http"
	"strconv"
	"time"

	bridge "github.com/spetersoncode/aguibridge"
)

// StatusError categorizes a provider API error by its HTTP status code so
// the runner can tell retryable failures from permanent ones. A positive
// retryAfter marks the error transient.
func StatusError(err error, code int, retryAfter time.Duration) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if retryAfter > 0 {
		return bridge.NewTransientErrorWithRetry(msg, code, retryAfter, err)
	}

	switch CategorizeStatusCode(code) {
	case bridge.ErrorTransient:
		return bridge.NewTransientError(msg, code, err)
	case bridge.ErrorUserInput:
		return bridge.NewUserInputError(msg, code, err)
	default:
		return bridge.NewPermanentError(msg, code, err)
	}
}

// CategorizeStatusCode determines the error category from an HTTP status code.
func CategorizeStatusCode(code int) bridge.ErrorCategory {
	switch {
	case code == http.StatusTooManyRequests:
		return bridge.ErrorTransient
	case code == 529: // overloaded
		return bridge.ErrorTransient
	case code >= 500 && code < 600:
		return bridge.ErrorTransient
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return bridge.ErrorPermanent
	case code == http.StatusBadRequest || code == http.StatusNotFound || code == http.StatusUnprocessableEntity:
		return bridge.ErrorUserInput
	default:
		return bridge.ErrorPermanent
	}
}

// ParseRetryAfter extracts the Retry-After duration from an HTTP response.
// It returns 0 if the header is missing or cannot be parsed.
func ParseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}
	return 0
}
