package statevector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	sv := New()
	assert.True(t, sv.Loca2D())
	assert.True(t, sv.Mapping2D())
	assert.True(t, sv.KeepPosition())
	assert.Equal(t, IDLE, sv.CommandSource())
}

func TestKeepPositionTransition(t *testing.T) {
	sv := New()
	prev := sv.SetKeepPosition(false)
	assert.True(t, prev)
	assert.False(t, sv.KeepPosition())
}

func TestCommandSourceTransition(t *testing.T) {
	sv := New()
	prev := sv.SetCommandSource(AUTONOMOUS)
	assert.Equal(t, IDLE, prev)
	assert.Equal(t, AUTONOMOUS, sv.CommandSource())
}

func TestBigSearchAreaClamped(t *testing.T) {
	sv := New()
	sv.SetBigSearchArea(5)
	assert.Equal(t, int32(2), sv.BigSearchArea())
	sv.SetBigSearchArea(-5)
	assert.Equal(t, int32(0), sv.BigSearchArea())
}
