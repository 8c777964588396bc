package navigation

import (
	"context"
	"testing"
	"time"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/motion"
	"github.com/rn1robotics/hostcore/pkg/pose"
	"github.com/rn1robotics/hostcore/pkg/routing"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRerouter struct {
	result routing.Result
	err    error
	calls  int
}

func (f *fakeRerouter) Reroute(ctx context.Context, destX, destY int32) (routing.Result, error) {
	f.calls++
	return f.result, f.err
}

func setupWorld() *worldmap.WorldMap {
	w := worldmap.New(nil)
	w.LoadRegion(0, 0)
	w.EnsureRegionFor(3000, 0)
	return w
}

func TestStateBeginFollowingResetsCounters(t *testing.T) {
	s := NewState()
	route := routing.BuildRouteBuffer([]geom.Point2{{X: 0, Y: 0}, {X: 1000, Y: 0}}, 1)
	s.BeginFollowing(route)
	assert.True(t, s.FollowRoute())
	assert.Equal(t, 0, s.RoutePos())
}

func TestStateRouteNotFoundClearsFollowRoute(t *testing.T) {
	s := NewState()
	s.BeginFollowing(routing.RouteBuffer{Waypoints: []routing.Waypoint{{X: 100}}})
	s.RouteNotFound()
	assert.False(t, s.FollowRoute())
	assert.True(t, s.RouteFinishedOrNotFound())
}

func TestFollowRouteFinishesOnLastWaypointWithinTakeNextEarly(t *testing.T) {
	world := setupWorld()
	poses := pose.NewService()
	link := motion.NewFakeLink(4)
	defer link.Close()
	mc := motion.NewClient(link)
	state := NewState()
	state.BeginFollowing(routing.RouteBuffer{
		Waypoints: []routing.Waypoint{{X: 1000, Y: 0, TakeNextEarly: 20}},
		IDCnt:     1,
	})
	checker := NewObstacleChecker(world, poses, mc)
	fr := NewFollowRoute(state, mc, poses, world, checker, nil, nil)

	fb := motion.Feedback{CurMove: motion.XYMove{ID: motion.MoveID(1, 0), RemainingMM: 10}}
	fr.Tick(context.Background(), time.Now(), fb)
	assert.False(t, state.FollowRoute())
	assert.True(t, state.RouteFinishedOrNotFound())
}

func TestFollowRouteEntersRecoveryOnMicronaviStop(t *testing.T) {
	world := setupWorld()
	poses := pose.NewService()
	link := motion.NewFakeLink(4)
	defer link.Close()
	mc := motion.NewClient(link)
	state := NewState()
	state.BeginFollowing(routing.RouteBuffer{
		Waypoints: []routing.Waypoint{{X: 1000, Y: 0, TakeNextEarly: 100}},
		IDCnt:     1,
	})
	checker := NewObstacleChecker(world, poses, mc)
	recovery := NewRecovery(state, mc, poses, world, nil, nil)
	fr := NewFollowRoute(state, mc, poses, world, checker, nil, recovery)

	fb := motion.Feedback{CurMove: motion.XYMove{ID: motion.MoveID(1, 0), RemainingMM: 500, MicronaviStopFlags: 1}}
	fr.Tick(context.Background(), time.Now(), fb)
	assert.True(t, recovery.Active())
	assert.Equal(t, 1, recovery.Stage())
}

func TestFollowRouteReroutesAfterStopLimitExhausted(t *testing.T) {
	world := setupWorld()
	poses := pose.NewService()
	link := motion.NewFakeLink(4)
	defer link.Close()
	mc := motion.NewClient(link)
	state := NewState()
	state.BeginFollowing(routing.RouteBuffer{
		Waypoints: []routing.Waypoint{{X: 1000, Y: 0, TakeNextEarly: 100}},
		IDCnt:     1,
	})
	for i := 0; i < MicronaviStopLimit-1; i++ {
		state.IncMicronaviStops()
	}
	rerouter := &fakeRerouter{result: routing.Result{NoRouteFound: true}}
	checker := NewObstacleChecker(world, poses, mc)
	fr := NewFollowRoute(state, mc, poses, world, checker, rerouter, NewRecovery(state, mc, poses, world, nil, nil))
	fr.SetGoal(1000, 0)

	fb := motion.Feedback{CurMove: motion.XYMove{ID: motion.MoveID(1, 0), RemainingMM: 500, MicronaviStopFlags: 1}}
	fr.Tick(context.Background(), time.Now(), fb)
	assert.Equal(t, 1, rerouter.calls)
	assert.True(t, state.RouteFinishedOrNotFound())
}

func TestObstacleCheckerRespectsCadenceAndFreshness(t *testing.T) {
	world := setupWorld()
	poses := pose.NewService()
	link := motion.NewFakeLink(4)
	defer link.Close()
	mc := motion.NewClient(link)
	checker := NewObstacleChecker(world, poses, mc)

	outcome := checker.Check(context.Background(), time.Now(), geom.Point2{X: 1000, Y: 0}, 0)
	assert.Equal(t, OutcomeClear, outcome)

	again := checker.Check(context.Background(), time.Now(), geom.Point2{X: 1000, Y: 0}, 0)
	assert.Equal(t, OutcomeSkipped, again)
}

func TestObstacleCheckerStopsAndRecoversWhenBlocked(t *testing.T) {
	world := setupWorld()
	for x := int32(100); x <= 900; x += worldmap.CellMM {
		world.MapCollisionObstacle(0, x, 0, "wall", false, 0)
	}
	poses := pose.NewService()
	link := motion.NewFakeLink(4)
	defer link.Close()
	mc := motion.NewClient(link)
	checker := NewObstacleChecker(world, poses, mc)

	outcome := checker.Check(context.Background(), time.Now(), geom.Point2{X: 1000, Y: 0}, 0)
	assert.Equal(t, OutcomeStopAndRecover, outcome)
	assert.Contains(t, link.Calls, "stop_movement")
}

func TestRecoveryStage1ClearsFollowAndDrivesBack(t *testing.T) {
	world := setupWorld()
	poses := pose.NewService()
	link := motion.NewFakeLink(4)
	defer link.Close()
	mc := motion.NewClient(link)
	state := NewState()
	state.BeginFollowing(routing.RouteBuffer{Waypoints: []routing.Waypoint{{X: 1000}}})

	r := NewRecovery(state, mc, poses, world, nil, nil)
	r.Enter(1)
	r.Tick(context.Background(), time.Now())
	assert.False(t, state.FollowRoute())
	require.Contains(t, link.Calls, "turn_and_go_rel_rel")
	assert.Equal(t, 2, r.Stage())
}

func TestRecoveryGivesUpAtStage12(t *testing.T) {
	world := setupWorld()
	poses := pose.NewService()
	link := motion.NewFakeLink(4)
	defer link.Close()
	mc := motion.NewClient(link)
	state := NewState()
	r := NewRecovery(state, mc, poses, world, &fakeRerouter{result: routing.Result{NoRouteFound: true}}, nil)
	r.Enter(11)
	r.stageStart = time.Now().Add(-10 * time.Second)
	r.Tick(context.Background(), time.Now())
	assert.Equal(t, 12, r.Stage())
}

func TestChargerFSMAbortsOnFirstApproachRouteFailure(t *testing.T) {
	world := setupWorld()
	poses := pose.NewService()
	link := motion.NewFakeLink(4)
	defer link.Close()
	mc := motion.NewClient(link)
	rerouter := &fakeRerouter{result: routing.Result{NoRouteFound: true}}
	c := NewChargerFSM(mc, poses, world, rerouter, ChargerPose{FirstX: 500}, nil)
	c.Start()
	c.Tick(context.Background(), time.Now(), nil, false)
	assert.Equal(t, 0, c.Stage())
}

func TestChargerFSMReachesChargingOnSuccessStatus(t *testing.T) {
	world := setupWorld()
	poses := pose.NewService()
	link := motion.NewFakeLink(4)
	defer link.Close()
	mc := motion.NewClient(link)
	c := NewChargerFSM(mc, poses, world, nil, ChargerPose{}, nil)
	c.Start()
	c.mu.Lock()
	c.stage = 8
	c.stageStart = time.Now()
	c.mu.Unlock()
	c.Tick(context.Background(), time.Now(), chargingNowStatus{}, false)
	assert.Equal(t, 0, c.Stage())
}

type chargingNowStatus struct{}

func (chargingNowStatus) Charging() bool { return true }
func (chargingNowStatus) Charged() bool  { return false }
