package navigation

import (
	"context"
	"sync"
	"time"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/logging"
	"github.com/rn1robotics/hostcore/pkg/motion"
	"github.com/rn1robotics/hostcore/pkg/pose"
	"github.com/rn1robotics/hostcore/pkg/routing"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
)

var recoveryLog = logging.Component("navigation.recovery")

// theta is the base turn step used to derive each stage's probe angle
// (§4.5.3).
const theta = 10.0 // degrees

// Recovery timer thresholds (§4.5.3, §5 "explicit 1.0/1.5/2.5/3.0/5.0s timers").
const (
	stageTimer1s   = 1 * time.Second
	stageTimer2_5s = 2500 * time.Millisecond
	stageTimer5s   = 5 * time.Second
)

const (
	lookAheadProbeMM  = 150
	creepStepMM       = 100
	creepBudget       = 3
	creepStopDistMM   = 300
	daijuRetryLimit   = 4 // stages 8..11
)

// Recovery implements the 12-stage lookaround/creep/reroute machine
// (§4.5.3). Stage transitions are driven by Tick, called every scheduler
// tick; timers are measured against a monotonic clock captured at stage
// entry.
type Recovery struct {
	mu sync.Mutex

	state *State
	mc    *motion.Client
	poses *pose.Service
	world *worldmap.WorldMap
	reroute Rerouter

	destX, destY int32
	stage        int
	stageStart   time.Time
	creepCount   int
	autonomous   func() bool
}

// NewRecovery builds a Recovery machine.
func NewRecovery(state *State, mc *motion.Client, poses *pose.Service, world *worldmap.WorldMap, reroute Rerouter, autonomousMode func() bool) *Recovery {
	return &Recovery{state: state, mc: mc, poses: poses, world: world, reroute: reroute, autonomous: autonomousMode}
}

// Enter starts Recovery at the given stage (1 unless called internally).
func (r *Recovery) Enter(stage int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stage = stage
	r.stageStart = time.Now()
	r.creepCount = 0
}

// SetGoal records the destination used for reroute attempts within Recovery.
func (r *Recovery) SetGoal(destX, destY int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destX, r.destY = destX, destY
}

// Active reports whether Recovery currently owns Navigation.
func (r *Recovery) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage != 0
}

// Stage returns the current stage (0 means inactive).
func (r *Recovery) Stage() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// Abort force-clears Recovery, used by the Command Dispatcher's full-stop
// and mode-reset commands (§6 CR_MODE) to cancel an in-progress recovery
// rather than letting its timers run out.
func (r *Recovery) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stage = 0
}

// Tick advances the Recovery machine by one step if its current stage's
// timer has elapsed.
func (r *Recovery) Tick(ctx context.Context, now time.Time) {
	r.mu.Lock()
	stage := r.stage
	elapsed := now.Sub(r.stageStart)
	r.mu.Unlock()

	switch stage {
	case 0:
		return
	case 1:
		r.runStage1(ctx)
	case 2:
		if elapsed >= stageTimer1s {
			r.runStage2(ctx)
		}
	case 3:
		if elapsed >= stageTimer1s {
			r.runTurnStage(ctx, -1.8, -20, -4)
		}
	case 4:
		if elapsed >= stageTimer1s {
			r.runTurnStage(ctx, 1.0, 0, 12)
		}
	case 5:
		if elapsed >= stageTimer1s {
			r.runTurnStage(ctx, 1.8, 0, 4)
		}
	case 6:
		if elapsed >= stageTimer1s {
			r.runStage6(ctx)
		}
	case 7:
		if elapsed >= stageTimer2_5s {
			r.runStage7(ctx)
		}
	case 8, 9, 10, 11:
		if elapsed >= stageTimer5s {
			r.runDaijuRetryStage(ctx, stage)
		}
	case 12:
		recoveryLog.Warn().Msg("recovery give-up")
	}
}

func (r *Recovery) runStage1(ctx context.Context) {
	r.state.StopFollowing()
	_ = r.mc.SteerTurn(ctx, 0, -50, 50)
	r.advanceTo(2)
}

func (r *Recovery) runStage2(ctx context.Context) {
	if r.autonomous != nil && r.autonomous() {
		r.reroute0(ctx)
		return
	}
	r.attemptTurn(ctx, -1.0, -4)
	r.advanceTo(3)
}

// runTurnStage implements the shared shape of stages 3/4/5: attempt a
// turn of factor*theta with the given creep, else wiggle by wiggleDeg.
func (r *Recovery) runTurnStage(ctx context.Context, factor float64, creepMM int32, wiggleDeg float64) {
	r.attemptTurnWithCreep(ctx, factor, creepMM, wiggleDeg)
	r.mu.Lock()
	next := r.stage + 1
	r.mu.Unlock()
	r.advanceTo(next)
}

func (r *Recovery) runStage6(ctx context.Context) {
	ok := r.feasibleTurnTowardWaypoint(ctx, 50)
	if ok {
		r.Enter(0) // exit recovery: feasible turn issued, follow-route resumes
		return
	}
	r.reroute0(ctx)
}

func (r *Recovery) runStage7(ctx context.Context) {
	r.mu.Lock()
	creeps := r.creepCount
	r.mu.Unlock()

	wp, ok := r.state.CurrentWaypoint()
	if !ok {
		r.reroute0(ctx)
		return
	}
	p, _ := r.poses.Current()
	from := p.Point()
	dist := geom.DistanceTo(from, geom.Point2{X: wp.X, Y: wp.Y})

	if dist > creepStopDistMM && creeps < creepBudget {
		heading := geom.HeadingTo(from, geom.Point2{X: wp.X, Y: wp.Y})
		target := geom.Project(from, heading, creepStepMM)
		if r.world.LineOfSight(from, target) {
			_ = r.mc.SteerTurn(ctx, geom.FromDegrees(5), creepStepMM, 40)
			r.mu.Lock()
			r.creepCount++
			r.stageStart = time.Now()
			r.mu.Unlock()
			return
		}
	}
	r.reroute0(ctx)
}

func (r *Recovery) runDaijuRetryStage(ctx context.Context, stage int) {
	_ = r.mc.DaijuMode(ctx, true)
	result, err := r.reroute.Reroute(ctx, r.goalX(), r.goalY())
	_ = r.mc.DaijuMode(ctx, false)
	if err == nil && !result.NoRouteFound {
		r.Enter(0)
		return
	}
	if stage >= 8+daijuRetryLimit-1 {
		r.Enter(12)
		return
	}
	r.advanceTo(stage + 1)
}

// reroute0 requests a reroute to the same goal; on failure advances into
// the daiju-retry ladder (stage 8), on success exits Recovery.
func (r *Recovery) reroute0(ctx context.Context) {
	if r.reroute == nil {
		r.advanceTo(8)
		return
	}
	result, err := r.reroute.Reroute(ctx, r.goalX(), r.goalY())
	if err != nil || result.NoRouteFound {
		r.advanceTo(8)
		return
	}
	r.Enter(0)
}

func (r *Recovery) goalX() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destX
}
func (r *Recovery) goalY() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destY
}

// attemptTurn is attemptTurnWithCreep with no creep.
func (r *Recovery) attemptTurn(ctx context.Context, factor, wiggleDeg float64) {
	r.attemptTurnWithCreep(ctx, factor, 0, wiggleDeg)
}

// attemptTurnWithCreep issues a turn to the heading toward the waypoint
// offset by factor*theta degrees, plus creepMM of travel if feasible (clear line of sight over the
// creep distance); otherwise issues an in-place wiggle of wiggleDeg.
func (r *Recovery) attemptTurnWithCreep(ctx context.Context, factor float64, creepMM int32, wiggleDeg float64) {
	wp, ok := r.state.CurrentWaypoint()
	if !ok {
		_ = r.mc.SteerTurn(ctx, geom.FromDegrees(wiggleDeg), 0, 30)
		return
	}
	p, _ := r.poses.Current()
	from := p.Point()
	toward := geom.HeadingTo(from, geom.Point2{X: wp.X, Y: wp.Y})
	dAng := toward.Add(geom.FromDegrees(factor * theta)).Sub(p.Ang)

	checkDist := creepMM
	if checkDist < 0 {
		checkDist = -checkDist
	}
	if checkDist == 0 {
		checkDist = lookAheadProbeMM
	}
	target := geom.Project(from, p.Ang.Add(dAng), float32(checkDist))
	if r.world.LineOfSight(from, target) {
		_ = r.mc.SteerTurn(ctx, dAng, creepMM, 40)
		return
	}
	_ = r.mc.SteerTurn(ctx, geom.FromDegrees(wiggleDeg), 0, 30)
}

func (r *Recovery) feasibleTurnTowardWaypoint(ctx context.Context, creepMM int32) bool {
	wp, ok := r.state.CurrentWaypoint()
	if !ok {
		return false
	}
	p, _ := r.poses.Current()
	from := p.Point()
	toward := geom.HeadingTo(from, geom.Point2{X: wp.X, Y: wp.Y})
	target := geom.Project(from, toward, float32(creepMM))
	if !r.world.LineOfSight(from, target) {
		return false
	}
	_ = r.mc.SteerTurn(ctx, toward.Sub(p.Ang), creepMM, 40)
	return true
}

func (r *Recovery) advanceTo(stage int) {
	r.mu.Lock()
	r.stage = stage
	r.stageStart = time.Now()
	r.creepCount = 0
	r.mu.Unlock()
}

// routingRerouter adapts a routing.Coordinator into the Rerouter interface
// Recovery and FollowRoute depend on.
type routingRerouter struct {
	coord *routing.Coordinator
}

// NewRerouter wraps a routing.Coordinator as a Rerouter.
func NewRerouter(coord *routing.Coordinator) Rerouter {
	return routingRerouter{coord: coord}
}

func (r routingRerouter) Reroute(ctx context.Context, destX, destY int32) (routing.Result, error) {
	return r.coord.Request(ctx, routing.Request{DestX: destX, DestY: destY})
}
