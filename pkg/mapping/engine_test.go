package mapping

import (
	"context"
	"testing"

	"github.com/rn1robotics/hostcore/pkg/motion"
	"github.com/rn1robotics/hostcore/pkg/pose"
	"github.com/rn1robotics/hostcore/pkg/statevector"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSpeedLimitThresholds(t *testing.T) {
	assert.Equal(t, int32(18), DeriveSpeedLimit(ObstacleHistogram{Far: 101}, 70, 70))
	assert.Equal(t, int32(25), DeriveSpeedLimit(ObstacleHistogram{Far: 8}, 70, 70))
	assert.Equal(t, int32(25), DeriveSpeedLimit(ObstacleHistogram{Mid: 71}, 70, 70))
	assert.Equal(t, int32(35), DeriveSpeedLimit(ObstacleHistogram{Mid: 8}, 70, 70))
	assert.Equal(t, int32(42), DeriveSpeedLimit(ObstacleHistogram{Near: 21}, 70, 70))
}

func TestDeriveSpeedLimitRampsTowardCeilingWhenClear(t *testing.T) {
	got := DeriveSpeedLimit(ObstacleHistogram{}, 10, 70)
	assert.Greater(t, got, int32(10))
	assert.LessOrEqual(t, got, int32(70))
}

func TestDeriveSpeedLimitNeverExceedsCeiling(t *testing.T) {
	got := DeriveSpeedLimit(ObstacleHistogram{}, 65, 70)
	assert.LessOrEqual(t, got, int32(70))
}

type fakeRoutes struct {
	active      bool
	connected   bool
	regenCalls  int
	lastCenterX int32
}

func (f *fakeRoutes) RouteActive() bool     { return f.active }
func (f *fakeRoutes) ClientConnected() bool { return f.connected }
func (f *fakeRoutes) RegenRoutingPages(cx, cy int32) {
	f.regenCalls++
	f.lastCenterX = cx
}

func TestEngineTickIngestsLidarWithMatchingCorrIDIntoQueue(t *testing.T) {
	poses := pose.NewService()
	world := worldmap.New(nil)
	world.LoadRegion(0, 0)
	sv := statevector.New()
	link := motion.NewFakeLink(4)
	defer link.Close()
	mc := motion.NewClient(link)

	lidars := make(chan worldmap.LidarScan, 1)
	_, curID := poses.Current()
	lidars <- worldmap.LidarScan{Pose: pose.Pose{}, CorrID: curID, Points: []worldmap.LidarPoint{{Angle: 0, DistMM: 1000}}}

	e := New(Config{
		Poses:  poses,
		World:  world,
		States: sv,
		Motion: mc,
		Lidars: lidars,
		Tofs:   make(chan worldmap.TofFrame),
		Sonars: make(chan worldmap.SonarPoint),
	})

	e.Tick(context.Background())
	assert.Len(t, e.lidarQueue, 1)
}

func TestEngineTickDropsStaleLidarFrame(t *testing.T) {
	poses := pose.NewService()
	poses.SetRobotPos(0, 0, 0) // advances corr id
	world := worldmap.New(nil)
	world.LoadRegion(0, 0)
	sv := statevector.New()

	lidars := make(chan worldmap.LidarScan, 1)
	lidars <- worldmap.LidarScan{CorrID: 9999, Points: []worldmap.LidarPoint{{Angle: 0, DistMM: 1000}}}

	e := New(Config{
		Poses:  poses,
		World:  world,
		States: sv,
		Lidars: lidars,
		Tofs:   make(chan worldmap.TofFrame),
		Sonars: make(chan worldmap.SonarPoint),
	})

	e.Tick(context.Background())
	assert.Len(t, e.lidarQueue, 0)
}

func TestEngineTofBatchTriggersRoutingPageRegenWhenRouteActive(t *testing.T) {
	poses := pose.NewService()
	world := worldmap.New(nil)
	world.LoadRegion(0, 0)
	sv := statevector.New()
	sv.SetMapping3D(true)
	routes := &fakeRoutes{active: true}

	tofs := make(chan worldmap.TofFrame, tofBatchSizeStationary)
	for i := 0; i < tofBatchSizeStationary; i++ {
		tofs <- worldmap.TofFrame{Pose: pose.Pose{X: 100, Y: 0}}
	}

	e := New(Config{
		Poses:  poses,
		World:  world,
		States: sv,
		Routes: routes,
		Lidars: make(chan worldmap.LidarScan),
		Tofs:   tofs,
		Sonars: make(chan worldmap.SonarPoint),
	})

	for i := 0; i < tofBatchSizeStationary; i++ {
		e.Tick(context.Background())
	}
	require.Equal(t, 1, routes.regenCalls)
	assert.Equal(t, int32(100), routes.lastCenterX)
}

func TestEngineReleaseMotorsOnKeepPositionFalseTransition(t *testing.T) {
	poses := pose.NewService()
	world := worldmap.New(nil)
	world.LoadRegion(0, 0)
	sv := statevector.New()
	link := motion.NewFakeLink(4)
	defer link.Close()
	mc := motion.NewClient(link)

	e := New(Config{
		Poses:  poses,
		World:  world,
		States: sv,
		Motion: mc,
		Lidars: make(chan worldmap.LidarScan),
		Tofs:   make(chan worldmap.TofFrame),
		Sonars: make(chan worldmap.SonarPoint),
	})

	sv.SetKeepPosition(false)
	e.Tick(context.Background())
	assert.Contains(t, link.Calls, "release_motors")
}
