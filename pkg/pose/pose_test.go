package pose

import (
	"testing"
	"time"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetRobotPosIncrementsID(t *testing.T) {
	s := NewService()
	_, id0 := s.Current()

	id1 := s.SetRobotPos(geom.FromDegrees(90), 1000, 500)
	require.NotEqual(t, id0, id1)

	p, id := s.Current()
	assert.Equal(t, id1, id)
	assert.Equal(t, int32(1000), p.X)
	assert.Equal(t, int32(500), p.Y)
}

func TestCorrectIsAtomicPair(t *testing.T) {
	s := NewService()
	s.SetRobotPos(0, 0, 0)
	_, before := s.Current()

	after := s.Correct(geom.FromDegrees(10), 50, -20)
	p, id := s.Current()

	assert.NotEqual(t, before, after)
	assert.Equal(t, after, id)
	assert.Equal(t, int32(50), p.X)
	assert.Equal(t, int32(-20), p.Y)
}

func TestCorrectionIDWraps(t *testing.T) {
	s := NewService()
	var last CorrectionID
	for i := 0; i < 150; i++ {
		last = s.Correct(0, 1, 1)
		assert.GreaterOrEqual(t, int32(last), int32(0))
		assert.LessOrEqual(t, int32(last), int32(99))
	}
}

func TestNoteStaleFrameForcesCorrectionAfter20(t *testing.T) {
	s := NewService()
	_, id0 := s.Current()

	var forced bool
	var newID CorrectionID
	for i := 0; i < 20; i++ {
		forced, newID = s.NoteStaleFrame()
		assert.False(t, forced)
	}
	forced, newID = s.NoteStaleFrame()
	require.True(t, forced)
	assert.NotEqual(t, id0, newID)
}

func TestFreshPose(t *testing.T) {
	s := NewService()
	s.SetRobotPos(0, 0, 0)
	now := time.Now()
	assert.True(t, s.Fresh(now, 200*time.Millisecond))
	assert.False(t, s.Fresh(now.Add(500*time.Millisecond), 200*time.Millisecond))
}
