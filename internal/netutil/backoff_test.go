package netutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesUpToCap(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second)
	assert.Equal(t, 1*time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 4*time.Second, b.Next())
	for i := 0; i < 10; i++ {
		b.Next()
	}
	assert.Equal(t, 30*time.Second, b.Next())
}

func TestBackoffResetReturnsToInitialDelay(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second)
	b.Next()
	b.Next()
	b.Reset()
	assert.Equal(t, 1*time.Second, b.Next())
}

func TestLimiterWaitHonorsCancelledContext(t *testing.T) {
	l := NewLimiter(0.001, 1)
	ctx, cancel := context.WithCancel(context.Background())

	// First request consumes the burst token.
	assert.NoError(t, l.Wait(ctx, "host"))

	cancel()
	assert.Error(t, l.Wait(ctx, "host"))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("test")
	fail := func() (interface{}, error) { return nil, assert.AnError }
	for i := 0; i < 3; i++ {
		_, err := b.Execute(fail)
		assert.Error(t, err)
	}
	// Tripped: calls are rejected without running fn.
	ran := false
	_, err := b.Execute(func() (interface{}, error) {
		ran = true
		return nil, nil
	})
	assert.Error(t, err)
	assert.False(t, ran)
}
