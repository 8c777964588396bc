package navigation

import (
	"context"
	"sync"
	"time"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/logging"
	"github.com/rn1robotics/hostcore/pkg/motion"
	"github.com/rn1robotics/hostcore/pkg/pose"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
)

var chargerLog = logging.Component("navigation.charger")

// ChargerPose is the persisted docking geometry (§6 charger_pos.txt:
// "first_x first_y second_x second_y ang fwd").
type ChargerPose struct {
	FirstX, FirstY   int32
	SecondX, SecondY int32
	Ang              geom.Angle
	FwdMM            int32
}

// Charger stage timers (§4.5.4).
const (
	chargerStage3Timer = 2500 * time.Millisecond
	chargerStage4Timer = 3 * time.Second
	chargerStage6Timer = 3 * time.Second
	chargerStage7Timer = 1500 * time.Millisecond
	chargerStage8Watchdog = 90 * time.Second
)

// chargerReapproachToleranceMM and chargerSecondApproachToleranceMM are the
// distance tolerances that force a restart at stage 1 (§4.5.4 stages 2, 5).
const (
	chargerReapproachToleranceMM     = 300
	chargerSecondApproachToleranceMM = 180
)

const chargerSecondApproachSpeed = 20

// ChargingStatus reports live battery/charging state, read from the
// latest motion.Feedback.
type ChargingStatus interface {
	Charging() bool
	Charged() bool
}

// ChargerFSM implements the 8-stage charger-mount machine (§4.5.4).
type ChargerFSM struct {
	mu sync.Mutex

	mc    *motion.Client
	poses *pose.Service
	world *worldmap.WorldMap
	reroute Rerouter

	dock       ChargerPose
	stage      int
	stageStart time.Time

	lidarIgnoreOver bool
	lastFour        func() []worldmap.LidarScan
}

// NewChargerFSM builds a ChargerFSM for the given dock geometry.
func NewChargerFSM(mc *motion.Client, poses *pose.Service, world *worldmap.WorldMap, reroute Rerouter, dock ChargerPose, lastFour func() []worldmap.LidarScan) *ChargerFSM {
	return &ChargerFSM{mc: mc, poses: poses, world: world, reroute: reroute, dock: dock, lastFour: lastFour}
}

// Start enters stage 1.
func (c *ChargerFSM) Start() { c.enter(1) }

// Stage returns the current stage (0 means inactive).
func (c *ChargerFSM) Stage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// SuppressLiveObstacleCheck reports whether Live Obstacle Check must be
// suppressed this tick (§4.5.4: "suppressed while stage >= 4").
func (c *ChargerFSM) SuppressLiveObstacleCheck() bool {
	return c.Stage() >= 4
}

func (c *ChargerFSM) enter(stage int) {
	c.mu.Lock()
	c.stage = stage
	c.stageStart = time.Now()
	c.mu.Unlock()
}

func (c *ChargerFSM) elapsed(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.stageStart)
}

// Tick advances the charger FSM. status reports live MCU charging telemetry.
func (c *ChargerFSM) Tick(ctx context.Context, now time.Time, status ChargingStatus, routeFollowed bool) {
	switch c.Stage() {
	case 0:
		return
	case 1:
		c.runStage1(ctx)
	case 2:
		if routeFollowed {
			c.runStage2(ctx)
		}
	case 3:
		if c.elapsed(now) >= chargerStage3Timer {
			c.runStage3(ctx)
		}
	case 4:
		c.mu.Lock()
		ready := c.lidarIgnoreOver
		c.mu.Unlock()
		if ready && c.elapsed(now) >= chargerStage4Timer {
			c.runStage4(ctx)
		}
	case 5:
		c.runStage5(ctx)
	case 6:
		if c.elapsed(now) >= chargerStage6Timer {
			c.runStage6(ctx)
		}
	case 7:
		if c.elapsed(now) >= chargerStage7Timer {
			c.runStage7(ctx)
		}
	case 8:
		c.runStage8(ctx, now, status)
	}
}

func (c *ChargerFSM) runStage1(ctx context.Context) {
	_ = c.mc.DaijuMode(ctx, false)
	if c.reroute == nil {
		chargerLog.Warn().Msg("no rerouter configured, aborting charger FSM")
		c.enter(0)
		return
	}
	result, err := c.reroute.Reroute(ctx, c.dock.FirstX, c.dock.FirstY)
	if err != nil || result.NoRouteFound {
		chargerLog.Warn().Msg("charger first-approach route failed, aborting")
		c.enter(0)
		return
	}
	c.enter(2)
}

func (c *ChargerFSM) runStage2(ctx context.Context) {
	p, _ := c.poses.Current()
	dist := geom.DistanceTo(p.Point(), geom.Point2{X: c.dock.FirstX, Y: c.dock.FirstY})
	if dist > chargerReapproachToleranceMM {
		c.runStage1(ctx)
		return
	}
	_ = c.mc.TurnToHeading(ctx, c.dock.Ang, 0, 30, true)
	c.enter(3)
}

func (c *ChargerFSM) runStage3(ctx context.Context) {
	if c.lastFour != nil {
		scans := c.lastFour()
		if len(scans) > 0 {
			dAng, dx, dy := c.world.MapLidars(scans)
			newID := c.poses.Correct(dAng, dx, dy)
			_ = c.mc.CorrectRobotPos(ctx, dAng, dx, dy, int32(newID))
		}
	}
	c.mu.Lock()
	c.lidarIgnoreOver = true
	c.mu.Unlock()
	c.enter(4)
}

func (c *ChargerFSM) runStage4(ctx context.Context) {
	_ = c.mc.ChargerApproach(ctx, c.dock.SecondX, c.dock.SecondY, chargerSecondApproachSpeed)
	c.enter(5)
}

func (c *ChargerFSM) runStage5(ctx context.Context) {
	p, _ := c.poses.Current()
	dist := geom.DistanceTo(p.Point(), geom.Point2{X: c.dock.SecondX, Y: c.dock.SecondY})
	if dist > chargerSecondApproachToleranceMM {
		c.runStage1(ctx)
		return
	}
	_ = c.mc.TurnToHeading(ctx, c.dock.Ang, c.dock.FwdMM, 20, true)
	c.enter(6)
}

func (c *ChargerFSM) runStage6(ctx context.Context) {
	_ = c.mc.TurnToHeading(ctx, c.dock.Ang, 0, 20, true)
	c.enter(7)
}

func (c *ChargerFSM) runStage7(ctx context.Context) {
	_ = c.mc.FindCharger(ctx)
	c.enter(8)
}

func (c *ChargerFSM) runStage8(ctx context.Context, now time.Time, status ChargingStatus) {
	if status != nil && (status.Charging() || status.Charged()) {
		chargerLog.Info().Msg("charging")
		c.enter(0)
		return
	}
	if c.elapsed(now) >= chargerStage8Watchdog {
		chargerLog.Warn().Msg("charger mount watchdog expired, restarting")
		c.runStage1(ctx)
	}
}
