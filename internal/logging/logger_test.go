package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("warn"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	var typed *componentLogger
	assert.NotNil(t, OrNop(typed))
	// Must not panic even though the underlying pointer is nil.
	OrNop(typed).Info("hello %s", "world")

	real := NewComponentLogger("test")
	assert.Equal(t, real, OrNop(real))
}

func TestIsNil(t *testing.T) {
	assert.True(t, IsNil(nil))
	var typed *componentLogger
	assert.True(t, IsNil(typed))
	assert.False(t, IsNil(Nop()))
}
