package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"wrapped transient", NewTransientError(errors.New("503"), 503), true},
		{"deeply wrapped transient", fmt.Errorf("fetch: %w", NewTransientError(errors.New("429"), 429)), true},
		{"net timeout", timeoutError{}, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"reset by peer string", errors.New("read: connection reset by peer"), true},
		{"no such host", errors.New("dial tcp: lookup api.example.com: no such host"), true},
		{"tls handshake timeout", errors.New("net/http: TLS handshake timeout"), true},
		{"plain error", errors.New("unexpected json shape"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestHTTPStatusError(t *testing.T) {
	base := errors.New("request failed")

	wrapped := HTTPStatusError(503, base)
	assert.True(t, IsTransient(wrapped))
	assert.ErrorIs(t, wrapped, base)

	unchanged := HTTPStatusError(404, base)
	assert.False(t, IsTransient(unchanged))
	assert.Same(t, base, unchanged)
}

func TestTransientErrorUnwrap(t *testing.T) {
	base := errors.New("too many requests")
	te := NewTransientError(base, 429)

	assert.ErrorIs(t, te, base)
	assert.Equal(t, base.Error(), te.Error())
	assert.Equal(t, 429, te.StatusCode)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTypeTransient, Classify(NewTransientError(errors.New("503"), 503)))
	assert.Equal(t, ErrorTypePermanent, Classify(errors.New("bad catalog schema")))
}

func TestDLQEntryCanRetry(t *testing.T) {
	entry := DLQEntry{
		ArticleID:   "a1",
		ErrorType:   ErrorTypeTransient,
		RetryCount:  2,
		MaxRetries:  3,
		NextRetryAt: time.Now(),
	}
	assert.True(t, entry.CanRetry())

	entry.RetryCount = 3
	assert.False(t, entry.CanRetry())
}
