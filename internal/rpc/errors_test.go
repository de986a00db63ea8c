package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"http 429", errors.New("429 Too Many Requests"), true},
		{"rate limit", errors.New("your app has exceeded its rate limit"), true},
		{"compute units", errors.New("exceeded its compute units per second capacity"), true},
		{"unrelated", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimitError(tt.err))
		})
	}
}

func TestIsTooManyResultsError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"geth limit", errors.New("query returned more than 10000 results"), true},
		{"response size", errors.New("log response size exceeded"), true},
		{"query timeout", errors.New("query timeout exceeded"), true},
		{"unrelated", errors.New("execution reverted"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTooManyResultsError(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), false},
		{"revert", errors.New("execution reverted: ERC721: invalid token ID"), false},
		{"rate limit", errors.New("429 too many requests"), true},
		{"timeout", errors.New("i/o timeout"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"bad gateway", errors.New("502 Bad Gateway"), true},
		{"unknown", errors.New("invalid argument"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}
