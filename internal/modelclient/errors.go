package modelclient

import "errors"

// Transient provider errors: retryable (network, 5xx, rate-limit).
var (
	ErrNetwork     = errors.New("model provider: network error")
	ErrServerError = errors.New("model provider: server error")
	ErrRateLimited = errors.New("model provider: rate limited")
)

// Permanent provider errors: never retried.
var (
	ErrInvalidRequest = errors.New("model provider: invalid request")
	ErrAuthFailed     = errors.New("model provider: auth failure")
	ErrPayloadTooLarge = errors.New("model provider: payload too large")
)

// retryable reports whether err should be retried under the policy in
// spec.md §4.A. Unrecognized errors are treated as non-retryable, matching
// the spec's "anything else fails immediately" default.
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrServerError), errors.Is(err, ErrRateLimited):
		return true
	default:
		return false
	}
}
