package routing

import (
	"testing"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindPathStraightLineOnClearMap(t *testing.T) {
	world := worldmap.New(nil)
	world.LoadRegion(0, 0)
	world.EnsureRegionFor(1000, 0)
	p := NewPlanner(world)

	path := p.FindPath(0, 0, 1000, 0, false)
	require.NotEmpty(t, path)
	assert.Equal(t, int32(0), path[0].X)
	last := path[len(path)-1]
	assert.InDelta(t, 1000, last.X, float64(worldmap.CellMM))
}

func TestFindPathReturnsNilWhenGoalOccupied(t *testing.T) {
	world := worldmap.New(nil)
	world.LoadRegion(0, 0)
	world.MapCollisionObstacle(0, 200, 0, "seed", false, 0)
	p := NewPlanner(world)

	path := p.FindPath(0, 0, 200, 0, false)
	assert.Nil(t, path)
}

func TestFindPathRoutesAroundObstacleWall(t *testing.T) {
	world := worldmap.New(nil)
	world.LoadRegion(0, 0)
	for y := int32(-400); y <= 400; y += worldmap.CellMM {
		world.MapCollisionObstacle(0, 400, y, "wall", false, 0)
	}
	p := NewPlanner(world)

	path := p.FindPath(0, 0, 800, 0, false)
	assert.NotEmpty(t, path)
}

func TestBuildRouteBufferClampsTakeNextEarly(t *testing.T) {
	path := []geom.Point2{{X: 0, Y: 0}, {X: 3000, Y: 0}, {X: 3050, Y: 0}}
	route := BuildRouteBuffer(path, 1)
	require.Len(t, route.Waypoints, 3)
	assert.Equal(t, int32(TakeNextEarlyMax), route.Waypoints[0].TakeNextEarly)
	assert.Equal(t, int32(TerminalTakeNextEarly), route.Waypoints[2].TakeNextEarly)
}
