package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, time.Minute, 0, nil, zap.NewNop())

	cb.RecordFailure(0)
	assert.True(t, cb.CanExecute())

	cb.RecordFailure(0)
	assert.False(t, cb.CanExecute())
	status := cb.GetStatus()
	assert.Equal(t, CircuitStateOpen, status.State)
	assert.NotNil(t, status.NextRetryTime)
}

func TestCircuitBreakerHalfOpenAfterTimeout(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 1, time.Second, 0, nil, zap.NewNop())
	cb.now = func() time.Time { return now }

	cb.RecordFailure(0)
	assert.Equal(t, CircuitStateOpen, cb.GetState())

	now = now.Add(2 * time.Second)
	assert.Equal(t, CircuitStateHalfOpen, cb.GetState())

	cb.RecordSuccess()
	assert.Equal(t, CircuitStateClosed, cb.GetState())
	assert.Equal(t, 0, cb.GetStatus().FailureCount)
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 3, time.Second, 0, nil, zap.NewNop())
	cb.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		cb.RecordFailure(0)
	}
	now = now.Add(2 * time.Second)
	assert.Equal(t, CircuitStateHalfOpen, cb.GetState())

	cb.RecordFailure(0)
	assert.Equal(t, CircuitStateOpen, cb.GetState())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Hour, 0, nil, nil)
	cb.RecordFailure(0)
	cb.Reset()
	assert.True(t, cb.CanExecute())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestMathHelpers(t *testing.T) {
	assert.Equal(t, 1, Clamp(-4, 1, 16))
	assert.Equal(t, 16, Clamp(40, 1, 16))
	assert.Equal(t, 5, Clamp(5, 1, 16))
	assert.InDelta(t, 7.8, RoundTo(7.75, 1), 1e-9)
}

func TestStringHelpers(t *testing.T) {
	assert.Equal(t, "abc...", TruncateString("abcdef", 3))
	assert.Equal(t, "abc", TruncateString("abc", 3))
	assert.Equal(t, "a b c", CollapseWhitespace("  a\n\tb   c "))
	assert.Equal(t, "tokyo", Normalize("  Tokyo "))
}
