package worldmap

import (
	"testing"
	"time"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/pose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegionIdempotent(t *testing.T) {
	w := New(nil)
	w.LoadRegion(0, 0)
	require.True(t, w.Resident(0, 0))
	require.True(t, w.Resident(2, 2))
	require.False(t, w.Resident(3, 3))

	w.LoadRegion(0, 0)
	assert.True(t, w.Resident(0, 0))
}

func TestUnloadFarFreesOutsideWindow(t *testing.T) {
	w := New(nil)
	w.LoadRegion(0, 0)
	require.True(t, w.Resident(2, 2))

	w.UnloadFar(0, 0)
	assert.True(t, w.Resident(0, 0))

	w.LoadRegion(10, 10)
	w.UnloadFar(10, 10)
	assert.False(t, w.Resident(0, 0))
	assert.True(t, w.Resident(10, 10))
}

func TestNonResidentCellIsOccupied(t *testing.T) {
	w := New(nil)
	assert.True(t, w.IsOccupied(1_000_000, 1_000_000))
}

func TestAddRemoveConstraintRoundTrip(t *testing.T) {
	w := New(nil)
	w.LoadRegion(0, 0)
	assert.False(t, w.IsOccupied(100, 100))

	w.AddConstraint(100, 100)
	assert.True(t, w.IsOccupied(100, 100))

	w.RemoveConstraint(100, 100)
	assert.False(t, w.IsOccupied(100, 100))
}

func TestClearWithinRobotClearsCollision(t *testing.T) {
	w := New(nil)
	w.LoadRegion(0, 0)
	w.MapCollisionObstacle(0, 0, 0, "bump", false, 0)
	assert.True(t, w.IsOccupied(0, 0))

	w.ClearWithinRobot(pose.Pose{X: 0, Y: 0, Timestamp: time.Now()})
	assert.False(t, w.IsOccupied(0, 0))
}

func TestLineOfSightBlockedByObstacle(t *testing.T) {
	w := New(nil)
	w.LoadRegion(0, 0)
	from := geom.Point2{X: 0, Y: 0}
	to := geom.Point2{X: 1000, Y: 0}

	assert.True(t, w.LineOfSight(from, to))

	w.MapCollisionObstacle(0, 500, 0, "bump", false, 0)
	assert.False(t, w.LineOfSight(from, to))
}

func TestMapTofReturnsMeanCenterAndMarksObstacles(t *testing.T) {
	w := New(nil)
	w.LoadRegion(0, 0)
	batch := []TofFrame{
		{Pose: pose.Pose{X: 0, Y: 0}, Obstacles: []geom.Point2{{X: 200, Y: 0}}},
		{Pose: pose.Pose{X: 100, Y: 0}, Obstacles: []geom.Point2{{X: 300, Y: 0}}},
	}
	midX, midY := w.MapTof(batch)
	assert.Equal(t, int32(50), midX)
	assert.Equal(t, int32(0), midY)
	assert.True(t, w.IsOccupied(200, 0))
	assert.True(t, w.IsOccupied(300, 0))
}

func TestMapLidarsPicksBestAlignedCorrection(t *testing.T) {
	w := New(nil)
	w.LoadRegion(0, 0)
	// Seed occupancy at (1020, 0): a true obstacle 20mm further than the scan
	// assumes, so the best correction should nudge +x.
	w.MapSonars([]SonarPoint{{Pose: pose.Pose{X: 0, Y: 0}, Angle: 0, DistMM: 1020}})

	scan := LidarScan{
		Pose: pose.Pose{X: 0, Y: 0, Ang: 0},
		Points: []LidarPoint{
			{Angle: 0, DistMM: 1000},
		},
	}
	dAng, dx, dy := w.MapLidars([]LidarScan{scan})
	_ = dAng
	_ = dy
	assert.GreaterOrEqual(t, dx, int32(0))
}
