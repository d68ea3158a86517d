package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewMicroBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, b.TryAcquire())
		b.OnFailure()
	}

	assert.False(t, b.TryAcquire())
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	b := NewMicroBreaker(3, time.Minute)

	b.OnFailure()
	b.OnFailure()
	assert.True(t, b.TryAcquire())

	// success resets the streak
	b.OnSuccess()
	b.OnFailure()
	b.OnFailure()
	assert.True(t, b.TryAcquire())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := NewMicroBreaker(1, 10*time.Millisecond)
	b.OnFailure()
	assert.False(t, b.TryAcquire())

	time.Sleep(15 * time.Millisecond)

	// one probe goes through, the rest wait on its outcome
	assert.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	b := NewMicroBreaker(1, 10*time.Millisecond)
	b.OnFailure()
	time.Sleep(15 * time.Millisecond)

	assert.True(t, b.TryAcquire())
	b.OnSuccess()

	assert.True(t, b.TryAcquire())
	assert.True(t, b.TryAcquire())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b := NewMicroBreaker(1, 50*time.Millisecond)
	b.OnFailure()
	time.Sleep(60 * time.Millisecond)

	assert.True(t, b.TryAcquire())
	b.OnFailure()

	assert.False(t, b.TryAcquire())
}
