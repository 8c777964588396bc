package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAngleWrapsOnAdd(t *testing.T) {
	a := FromDegrees(170)
	b := FromDegrees(20)
	sum := a.Add(b)
	// 170 + 20 = 190 degrees, which wraps to -170 in [-180, 180).
	assert.InDelta(t, -170.0, sum.Degrees(), 0.01)
}

func TestAngleRoundTrip(t *testing.T) {
	for _, deg := range []float64{0, 45, 90, 179, -179, -90} {
		a := FromDegrees(deg)
		assert.InDelta(t, deg, a.Degrees(), 0.01)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, int32(50), Clamp(10, 50, 250))
	assert.Equal(t, int32(250), Clamp(999, 50, 250))
	assert.Equal(t, int32(120), Clamp(120, 50, 250))
}

func TestProjectAndHeading(t *testing.T) {
	p := Point2{X: 0, Y: 0}
	ang := FromDegrees(0)
	q := Project(p, ang, 1000)
	assert.InDelta(t, 1000.0, float64(q.X), 1.0)
	assert.InDelta(t, 0.0, float64(q.Y), 1.0)

	h := HeadingTo(p, q)
	assert.InDelta(t, 0.0, h.Degrees(), 0.5)
}
