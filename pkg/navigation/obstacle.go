package navigation

import (
	"context"
	"time"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/motion"
	"github.com/rn1robotics/hostcore/pkg/pose"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
)

// liveObstacleCheckInterval is the minimum gap between Live Obstacle Check
// invocations (§4.5.1: "at most every 100 ms").
const liveObstacleCheckInterval = 100 * time.Millisecond

// maxPoseAge is the freshness bound a Live Obstacle Check invocation must
// observe (§4.5.2, §8 testable property).
const maxPoseAge = 200 * time.Millisecond

// lookAheadCapMM caps how far ahead of the robot the check looks (§4.5.2).
const lookAheadCapMM = 1200

// obstacleHitLimit is the hitcnt threshold that escalates from a speed
// clamp to a full stop-and-recover (§4.5.2).
const obstacleHitLimit = 3

// clampSpeedOnObstacle is the speed ceiling applied whenever any obstacle is
// seen ahead, regardless of hitcnt (§4.5.2).
const clampSpeedOnObstacle = 18

// ObstacleChecker runs the Live Obstacle Check (§4.5.2): for backmode==0
// waypoints only, looks ahead along the direct line to the next waypoint
// and counts obstacle cells.
type ObstacleChecker struct {
	world *worldmap.WorldMap
	poses *pose.Service
	mc    *motion.Client

	lastRun time.Time
}

// NewObstacleChecker builds an ObstacleChecker.
func NewObstacleChecker(world *worldmap.WorldMap, poses *pose.Service, mc *motion.Client) *ObstacleChecker {
	return &ObstacleChecker{world: world, poses: poses, mc: mc}
}

// Outcome reports what the check decided.
type Outcome int

const (
	// OutcomeSkipped means the check did not run this tick (cadence or
	// staleness gate).
	OutcomeSkipped Outcome = iota
	// OutcomeClear means no escalation was needed.
	OutcomeClear
	// OutcomeClampOnly means a speed clamp was applied but no stop.
	OutcomeClampOnly
	// OutcomeStopAndRecover means the path ahead is blocked enough to stop
	// and enter Recovery stage 1.
	OutcomeStopAndRecover
)

// Check runs one Live Obstacle Check invocation against the given waypoint,
// respecting the 100ms cadence and the 200ms pose-freshness bound.
func (o *ObstacleChecker) Check(ctx context.Context, now time.Time, wp geom.Point2, backmode int) Outcome {
	if backmode != 0 {
		return OutcomeSkipped
	}
	if now.Sub(o.lastRun) < liveObstacleCheckInterval {
		return OutcomeSkipped
	}
	if !o.poses.Fresh(now, maxPoseAge) {
		return OutcomeSkipped
	}
	o.lastRun = now

	p, _ := o.poses.Current()
	from := p.Point()
	dist := geom.DistanceTo(from, wp)
	lookAhead := dist
	if lookAhead > lookAheadCapMM {
		lookAhead = lookAheadCapMM
	}
	heading := geom.HeadingTo(from, wp)
	target := geom.Project(from, heading, lookAhead)

	hitcnt := o.world.CountObstaclesOnPath(from, target)
	if hitcnt == 0 {
		return OutcomeClear
	}

	_ = o.mc.LimitSpeed(ctx, clampSpeedOnObstacle)
	if hitcnt < obstacleHitLimit {
		return OutcomeClampOnly
	}

	_ = o.mc.Stop(ctx)
	return OutcomeStopAndRecover
}
