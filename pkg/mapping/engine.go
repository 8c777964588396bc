package mapping

import (
	"context"
	"time"

	"github.com/rn1robotics/hostcore/pkg/logging"
	"github.com/rn1robotics/hostcore/pkg/motion"
	"github.com/rn1robotics/hostcore/pkg/pose"
	"github.com/rn1robotics/hostcore/pkg/statevector"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
)

var log = logging.Component("mapping")

const (
	tickInterval           = 150 * time.Millisecond
	syncIntervalIdle       = 30 * time.Second
	syncIntervalConnected  = 7 * time.Second
	keepaliveEveryTicks    = 500
	tofBatchSizeMoving     = 3
	tofBatchSizeStationary = 20
	lidarQueueBigSearch    = 11
	lidarQueueGoodTime     = 3
	lidarQueueAlways       = 4
)

// Exploration is the autonomous-exploration tick collaborator (§4.3 item 1).
// Its internals are out of scope; the engine only needs to invoke it once
// per iteration when autonomous exploration owns the robot.
type Exploration interface {
	Tick(ctx context.Context) error
}

// RouteStatus reports whether a route is active and whether a client is
// currently connected, both of which change the engine's cadence (§4.3
// items 4 and 6) and its obligation to regenerate routing pages (§4.1
// invariant).
type RouteStatus interface {
	RouteActive() bool
	ClientConnected() bool
	RegenRoutingPages(centerX, centerY int32)
}

// ToFSampler supplies the latest obstacle-level histogram used to derive
// the speed limit (§4.3 item 2). Reducing a ToF frame to near/mid/far
// buckets is the sensor layer's job; the engine only consumes the result.
type ToFSampler interface {
	Histogram() ObstacleHistogram
}

// Engine runs the Mapping Engine continuous loop.
type Engine struct {
	poses *pose.Service
	world *worldmap.WorldMap
	sv    *statevector.StateVector
	mc    *motion.Client

	lidars <-chan worldmap.LidarScan
	tofs   <-chan worldmap.TofFrame
	sonars <-chan worldmap.SonarPoint

	explore  Exploration
	routes   RouteStatus
	tofHisto ToFSampler

	maxSpeedlim int32

	curSpeedlim        int32
	lastSpeedAdjust    time.Time
	lastSync           time.Time
	tickCount          int64
	tofBatch           []worldmap.TofFrame
	lidarQueue         []worldmap.LidarScan
	lastCommandSource  statevector.CommandSource
	lastKeepPosition   bool
	stillMoving        func() bool
	charging           func() bool
	goodTimeForLidar   func() bool
	clearGoodTimeForLidar func()
}

// Config wires the Engine's collaborators.
type Config struct {
	Poses       *pose.Service
	World       *worldmap.WorldMap
	States      *statevector.StateVector
	Motion      *motion.Client
	Lidars      <-chan worldmap.LidarScan
	Tofs        <-chan worldmap.TofFrame
	Sonars      <-chan worldmap.SonarPoint
	Explore     Exploration
	Routes      RouteStatus
	ToF         ToFSampler
	MaxSpeedlim int32
	// IsMoving reports whether the robot is currently under way, used to
	// choose the 3D-ToF batch flush threshold (§4.3 item 3).
	IsMoving func() bool
	// Charging reports whether the robot is currently docked and charging;
	// 3D-ToF frames are not batched while charging (§4.3 item 3).
	Charging func() bool
	// GoodTimeForLidarMapping reports whether conditions currently favor a
	// scan-match call (e.g. the robot is between moves); exact heuristic is
	// out of scope (§1), callers may always return true.
	GoodTimeForLidarMapping func() bool
	// ClearGoodTimeForLidarMapping resets the GoodTimeForLidarMapping hint
	// once the engine has consumed it for a trigger decision, so a single
	// qualifying window doesn't perpetually relax the lidar-queue threshold
	// (§9 Open Questions / ground truth rn1host.c's trigger-consumption reset).
	ClearGoodTimeForLidarMapping func()
}

// New builds an Engine.
func New(cfg Config) *Engine {
	max := cfg.MaxSpeedlim
	if max <= 0 || max > MaxSpeedlim {
		max = MaxSpeedlim
	}
	return &Engine{
		poses:            cfg.Poses,
		world:            cfg.World,
		sv:               cfg.States,
		mc:               cfg.Motion,
		lidars:           cfg.Lidars,
		tofs:             cfg.Tofs,
		sonars:           cfg.Sonars,
		explore:          cfg.Explore,
		routes:           cfg.Routes,
		tofHisto:         cfg.ToF,
		maxSpeedlim:      max,
		curSpeedlim:      max,
		stillMoving:      cfg.IsMoving,
		charging:         cfg.Charging,
		goodTimeForLidar: cfg.GoodTimeForLidarMapping,
		clearGoodTimeForLidar: cfg.ClearGoodTimeForLidarMapping,
		lastKeepPosition: cfg.States != nil && cfg.States.KeepPosition(),
	}
}

// Run drives the continuous loop at tickInterval cadence until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	now := time.Now()
	e.lastSync = now
	e.lastSpeedAdjust = now

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// Tick runs exactly one iteration of the ordered loop; exported so tests can
// drive it deterministically without waiting on the ticker.
func (e *Engine) Tick(ctx context.Context) {
	e.tick(ctx)
}

func (e *Engine) tick(ctx context.Context) {
	e.tickCount++
	now := time.Now()

	// 1. autonomous-exploration tick
	if e.explore != nil && e.sv.CommandSource() == statevector.AUTONOMOUS {
		if err := e.explore.Tick(ctx); err != nil {
			log.Warn().Err(err).Msg("exploration tick failed")
		}
	}

	// 2. derive speed limit, at most every 150ms
	if e.tofHisto != nil && now.Sub(e.lastSpeedAdjust) >= tickInterval {
		h := e.tofHisto.Histogram()
		e.curSpeedlim = DeriveSpeedLimit(h, e.curSpeedlim, e.maxSpeedlim)
		e.lastSpeedAdjust = now
		if e.mc != nil {
			if err := e.mc.LimitSpeed(ctx, e.curSpeedlim); err != nil {
				log.Warn().Err(err).Msg("limit_speed failed")
			}
		}
	}

	// 3. ingest at most one 3D-ToF frame
	e.ingestTof()

	// 4. ingest one lidar frame
	e.ingestLidar(ctx)

	// 5. ingest one sonar point
	e.ingestSonar()

	// 6. periodic sync
	e.maybeSync(now)

	// 7. keep_position / command_source transitions
	e.handleTransitions(ctx)
}

func (e *Engine) ingestTof() {
	select {
	case frame, ok := <-e.tofs:
		if !ok {
			return
		}
		_, curID := e.poses.Current()
		if frame.CorrID != curID {
			return
		}
		notCharging := e.charging == nil || !e.charging()
		if (frame.Pose.X != 0 || frame.Pose.Y != 0) && e.sv.Mapping3D() && notCharging {
			e.tofBatch = append(e.tofBatch, frame)
		}
	default:
	}

	threshold := tofBatchSizeStationary
	if e.stillMoving != nil && e.stillMoving() {
		threshold = tofBatchSizeMoving
	}
	if len(e.tofBatch) < threshold {
		return
	}

	midX, midY := e.world.MapTof(e.tofBatch)
	e.tofBatch = e.tofBatch[:0]
	if e.routes != nil && e.routes.RouteActive() {
		e.routes.RegenRoutingPages(midX, midY)
	}
}

func (e *Engine) ingestLidar(ctx context.Context) {
	select {
	case scan, ok := <-e.lidars:
		if !ok {
			return
		}
		_, curID := e.poses.Current()
		if scan.CorrID != curID {
			if forced, newID := e.poses.NoteStaleFrame(); forced {
				log.Info().Int32("corr_id", int32(newID)).Msg("forced no-op correction after stale lidar streak")
			}
			return
		}
		e.lidarQueue = append(e.lidarQueue, scan)
		if e.sv.MappingCollisions() {
			e.world.ClearWithinRobot(scan.Pose)
		}
	default:
	}

	big := e.sv.BigSearchArea() != 0
	goodTime := e.goodTimeForLidar == nil || e.goodTimeForLidar()
	n := len(e.lidarQueue)

	trigger := (big && n > lidarQueueBigSearch) ||
		(!big && ((goodTime && n > lidarQueueGoodTime) || n > lidarQueueAlways))
	if !trigger {
		return
	}
	if goodTime && e.clearGoodTimeForLidar != nil {
		e.clearGoodTimeForLidar()
	}

	dAng, dx, dy := e.world.MapLidars(e.lidarQueue)
	scale := float32(0.5)
	if e.sv.BigSearchArea() != 0 {
		scale = 1.0
	}
	scaledAng := dAng.Scale(scale)
	scaledDx := int32(float32(dx) * scale)
	scaledDy := int32(float32(dy) * scale)
	newID := e.poses.Correct(scaledAng, scaledDx, scaledDy)
	if e.mc != nil {
		if err := e.mc.CorrectRobotPos(ctx, scaledAng, scaledDx, scaledDy, int32(newID)); err != nil {
			log.Warn().Err(err).Msg("correct_robot_pos failed")
		}
	}

	e.lidarQueue = e.lidarQueue[:0]
}

func (e *Engine) ingestSonar() {
	select {
	case s, ok := <-e.sonars:
		if !ok {
			return
		}
		e.world.MapSonars([]worldmap.SonarPoint{s})
	default:
	}
}

func (e *Engine) maybeSync(now time.Time) {
	interval := syncIntervalIdle
	if e.routes != nil && e.routes.ClientConnected() {
		interval = syncIntervalConnected
	}
	if now.Sub(e.lastSync) < interval {
		return
	}
	e.lastSync = now
	p, _ := e.poses.Current()
	coord, _, _ := worldmap.MMToPage(p.X, p.Y)
	e.world.UnloadFar(coord.X, coord.Y)
}

func (e *Engine) handleTransitions(ctx context.Context) {
	source := e.sv.CommandSource()
	if source == statevector.AUTONOMOUS && e.lastCommandSource != statevector.AUTONOMOUS {
		e.sv.SetMapping2D(true)
		e.sv.SetLoca2D(true)
	}
	e.lastCommandSource = source

	keeping := e.sv.KeepPosition()
	if e.lastKeepPosition && !keeping && e.mc != nil {
		if err := e.mc.ReleaseMotors(ctx); err != nil {
			log.Warn().Err(err).Msg("release_motors failed")
		}
	}
	e.lastKeepPosition = keeping

	if !keeping {
		return
	}
	if e.tickCount%keepaliveEveryTicks == 0 && e.mc != nil {
		if err := e.mc.Keepalive(ctx); err != nil {
			log.Warn().Err(err).Msg("keepalive failed")
		}
	}
}
