package rpc

import (
	"context"
	"errors"
	"strings"
)

// IsRateLimitError checks if the error indicates upstream rate limiting
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "capacity exceeded") ||
		strings.Contains(errStr, "compute units")
}

// isTooManyResultsError checks if the error is related to a getLogs query
// exceeding the provider's result limit
func isTooManyResultsError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "query returned more than 10000 results") ||
		strings.Contains(errStr, "query timeout exceeded") ||
		strings.Contains(errStr, "too many results") ||
		strings.Contains(errStr, "exceeded maximum") ||
		strings.Contains(errStr, "log response size exceeded")
}

// IsRevertError checks if the error is a contract execution revert.
// Reverts are permanent: a burned token's ownerOf reverts on every attempt.
func IsRevertError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "execution reverted")
}

// isRetryable reports whether an RPC error is worth retrying with backoff
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsRevertError(err) {
		return false
	}
	if IsRateLimitError(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "temporarily unavailable") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503")
}
