package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "connection refused",
			err:  errors.New("dial tcp 127.0.0.1:9222: connection refused"),
			want: KindNetwork,
		},
		{
			name: "connection reset",
			err:  errors.New("read: connection reset by peer"),
			want: KindNetwork,
		},
		{
			name: "timeout message",
			err:  errors.New("Timeout 30000ms exceeded"),
			want: KindTimeout,
		},
		{
			name: "context deadline",
			err:  context.DeadlineExceeded,
			want: KindTimeout,
		},
		{
			name: "wrapped context deadline",
			err:  fmt.Errorf("navigation failed: %w", context.DeadlineExceeded),
			want: KindTimeout,
		},
		{
			name: "context canceled",
			err:  context.Canceled,
			want: KindFatal,
		},
		{
			name: "quota exhausted",
			err:  errors.New("daily engine quota exceeded"),
			want: KindQuota,
		},
		{
			name: "protocol error",
			err:  errors.New("websocket: unexpected message type"),
			want: KindProtocol,
		},
		{
			name: "unknown failure is fatal",
			err:  errors.New("something inexplicable"),
			want: KindFatal,
		},
		{
			name: "pre-classified error keeps its kind",
			err:  &Error{Kind: KindProtocol, Err: errors.New("quota mentioned but already classified")},
			want: KindProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestKindRetryable(t *testing.T) {
	assert.True(t, KindNetwork.Retryable())
	assert.True(t, KindTimeout.Retryable())
	assert.True(t, KindProtocol.Retryable())
	assert.False(t, KindQuota.Retryable())
	assert.False(t, KindFatal.Retryable())
}

func TestClassifiedPreservesCause(t *testing.T) {
	cause := errors.New("launch exploded")
	err := Classified(KindNetwork, cause)

	var classified *Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, KindNetwork, classified.Kind)
	assert.ErrorIs(t, err, cause)
}

func TestClassifiedDoesNotRewrap(t *testing.T) {
	cause := errors.New("boom")
	once := Classified(KindTimeout, cause)
	twice := Classified(KindNetwork, once)

	// The first classification wins; no blanket re-wrapping.
	assert.Equal(t, once, twice)
	assert.Equal(t, KindTimeout, Classify(twice))
}

func TestClassifiedNil(t *testing.T) {
	assert.Nil(t, Classified(KindNetwork, nil))
}
