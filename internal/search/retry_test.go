package search

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &StatusError{Code: http.StatusTooManyRequests}, true},
		{"503", &StatusError{Code: http.StatusServiceUnavailable}, true},
		{"400", &StatusError{Code: http.StatusBadRequest}, false},
		{"wrapped 500", errors.Join(errors.New("ctx"), &StatusError{Code: 500}), true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoff(0))
	assert.Equal(t, 300*time.Millisecond, backoff(1))
	assert.Equal(t, 900*time.Millisecond, backoff(2))
	assert.Equal(t, maxBackoff, backoff(10))
}

func TestDoWithRetryValue(t *testing.T) {
	calls := 0
	v, err := doWithRetryValue(context.Background(), 3, func() (int, error) {
		calls++
		if calls < 2 {
			return 0, &StatusError{Code: 502}
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, calls)
}

func TestDoWithRetryValueStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := doWithRetryValue(context.Background(), 3, func() (int, error) {
		calls++
		return 0, &StatusError{Code: 401}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithRetryValueHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := doWithRetryValue(ctx, 3, func() (int, error) {
		return 0, &StatusError{Code: 503}
	})
	assert.ErrorIs(t, err, context.Canceled)
}
