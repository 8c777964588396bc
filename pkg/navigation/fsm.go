package navigation

import (
	"context"
	"time"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/motion"
	"github.com/rn1robotics/hostcore/pkg/pose"
	"github.com/rn1robotics/hostcore/pkg/routing"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
)

// skipMaxDistMM, steerManeuverRemainMM and remainingLidarMappingMM are the
// follow-route distance thresholds from §4.5.1.
const (
	skipMaxDistMM          = 800
	steerManeuverRemainMM  = 30
	remainingLidarMappingMM = 250
)

// Rerouter requests a new route to the given destination, used both on
// micronavi-stop exhaustion (§4.5.1) and by Recovery (§4.5.3).
type Rerouter interface {
	Reroute(ctx context.Context, destX, destY int32) (routing.Result, error)
}

// FollowRoute is the follow-route machine (§4.5.1).
type FollowRoute struct {
	state    *State
	mc       *motion.Client
	poses    *pose.Service
	world    *worldmap.WorldMap
	checker  *ObstacleChecker
	reroute  Rerouter
	recovery *Recovery

	destX, destY int32 // the final goal, for reroute-on-stop-exhaustion
}

// NewFollowRoute builds a FollowRoute machine.
func NewFollowRoute(state *State, mc *motion.Client, poses *pose.Service, world *worldmap.WorldMap, checker *ObstacleChecker, reroute Rerouter, recovery *Recovery) *FollowRoute {
	return &FollowRoute{state: state, mc: mc, poses: poses, world: world, checker: checker, reroute: reroute, recovery: recovery}
}

// SetGoal records the route's ultimate destination, used if micronavi-stops
// exhausts and a reroute-to-same-goal is required (§4.5.1).
func (f *FollowRoute) SetGoal(destX, destY int32) {
	f.destX, f.destY = destX, destY
}

// Tick runs one iteration of the follow-route machine for the given MCU
// feedback frame (the "current-move id matches" precondition is checked
// internally against state's id_cnt/route_pos).
func (f *FollowRoute) Tick(ctx context.Context, now time.Time, fb motion.Feedback) {
	if !f.state.FollowRoute() {
		return
	}
	wantID := motion.MoveID(f.state.IDCnt(), f.state.RoutePos())
	if fb.CurMove.ID != wantID {
		return
	}

	if fb.CurMove.MicronaviStopFlags != 0 || fb.CurMove.FeedbackStopFlags != 0 {
		f.onStop(ctx)
		return
	}

	wp, ok := f.state.CurrentWaypoint()
	if !ok {
		f.finish()
		return
	}

	if f.state.IDCnt() == 0 && fb.CurMove.RemainingMM < steerManeuverRemainMM {
		f.opportunisticSkipAndReissue(ctx)
		return
	}

	if fb.CurMove.RemainingMM < remainingLidarMappingMM {
		f.state.SetGoodTimeForLidarMapping(true)
	}

	if fb.CurMove.RemainingMM < wp.TakeNextEarly {
		f.state.ResetManeuverCount()
		if f.state.AdvanceRoutePos() {
			f.opportunisticSkipAndReissue(ctx)
			f.state.ResetMicronaviStops()
		} else {
			f.finish()
		}
		return
	}

	target := geom.Point2{X: wp.X, Y: wp.Y}
	if f.checker.Check(ctx, now, target, int(wp.Backmode)) == OutcomeStopAndRecover && f.recovery != nil {
		f.recovery.Enter(1)
	}
}

func (f *FollowRoute) onStop(ctx context.Context) {
	n := f.state.IncMicronaviStops()
	if n < MicronaviStopLimit {
		f.recovery.Enter(1)
		return
	}
	if f.reroute != nil {
		result, err := f.reroute.Reroute(ctx, f.destX, f.destY)
		if err != nil || result.NoRouteFound {
			f.state.FinishRoute()
		}
	}
}

// opportunisticSkipAndReissue advances route_pos across any run of
// backmode==0 waypoints within skipMaxDistMM that have direct
// line-of-sight, then reissues move_to for the now-current waypoint
// (§4.5.1).
func (f *FollowRoute) opportunisticSkipAndReissue(ctx context.Context) {
	p, _ := f.poses.Current()
	from := p.Point()
	for {
		next, ok := f.state.PeekWaypoint(1)
		if !ok {
			break
		}
		if !withinAndForward(from, next, skipMaxDistMM) {
			break
		}
		if !f.world.LineOfSight(from, geom.Point2{X: next.X, Y: next.Y}) {
			break
		}
		if !f.state.AdvanceRoutePos() {
			f.finish()
			return
		}
	}

	wp, ok := f.state.CurrentWaypoint()
	if !ok {
		f.finish()
		return
	}
	_, _ = f.mc.GoToWaypoint(ctx, wp.X, wp.Y, wp.Backmode, f.state.RoutePos(), 0)
}

func (f *FollowRoute) finish() {
	f.state.FinishRoute()
}
