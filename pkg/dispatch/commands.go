package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/motion"
	"github.com/rn1robotics/hostcore/pkg/navigation"
	"github.com/rn1robotics/hostcore/pkg/pose"
	"github.com/rn1robotics/hostcore/pkg/routing"
	"github.com/rn1robotics/hostcore/pkg/statevector"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
)

// ErrInvalidCommand is returned for a command whose parameters are out of
// range in a way §7 does not say to silently clamp.
var ErrInvalidCommand = errors.New("dispatch: invalid command")

// maintenanceMagic is the single accepted CR_MAINTENANCE magic value (§6);
// anything else is logged and ignored (§7 "command-side protocol violation").
const maintenanceMagic = 0x12345678

// defaultSpeedLim is substituted for an out-of-range CR_SPEEDLIM value
// rather than rejecting the command (§6: "clamped to [1,70], else default
// 45").
const defaultSpeedLim = 45

// Kind identifies a command variant (§6 client TCP messages plus the
// operator console keys, folded into the same dispatch path).
type Kind int

const (
	KindDest Kind = iota
	KindRoute
	KindCharge
	KindAddConstraint
	KindRemConstraint
	KindMode
	KindManu
	KindMaintenance
	KindSpeedLim
	KindStateVect
	KindSetPos
	KindZeroPose
	KindSavePose
	KindLoadPose
	KindMassiveSearch
	KindConfigureCharger
	KindEngageCharger
	KindToggleKeepPosition
	KindToggleVerbose
	KindConsoleExit
)

var kindNames = map[Kind]string{
	KindDest:               "dest",
	KindRoute:              "route",
	KindCharge:             "charge",
	KindAddConstraint:      "add_constraint",
	KindRemConstraint:      "rem_constraint",
	KindMode:               "mode",
	KindManu:               "manu",
	KindMaintenance:        "maintenance",
	KindSpeedLim:           "speedlim",
	KindStateVect:          "statevect",
	KindSetPos:             "set_pos",
	KindZeroPose:           "zero_pose",
	KindSavePose:           "save_pose",
	KindLoadPose:           "load_pose",
	KindMassiveSearch:      "massive_search",
	KindConfigureCharger:   "configure_charger",
	KindEngageCharger:      "engage_charger",
	KindToggleKeepPosition: "toggle_keep_position",
	KindToggleVerbose:      "toggle_verbose",
	KindConsoleExit:        "console_exit",
}

// String names a Kind for log output.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Priority is the dispatcher's `{preempt_map, preempt_rout, preempt_nav}`
// triple (§9 Design Notes, resolving the "priority_bits always 0" Open
// Question — see DESIGN.md for the reasoning behind each Kind's mapping
// below rather than leaving every command non-preempting).
type Priority struct {
	Map  bool
	Rout bool
	Nav  bool
}

// Any reports whether the triple requests preemption of at least one
// worker.
func (p Priority) Any() bool { return p.Map || p.Rout || p.Nav }

// defaultPriority returns the priority triple a command of the given kind
// carries absent an explicit override.
func defaultPriority(k Kind) Priority {
	switch k {
	case KindDest, KindRoute:
		return Priority{Rout: true, Nav: true}
	case KindCharge:
		return Priority{Nav: true}
	case KindAddConstraint, KindRemConstraint:
		return Priority{Map: true}
	case KindMode, KindMaintenance, KindConsoleExit:
		return Priority{Map: true, Rout: true, Nav: true}
	case KindManu:
		return Priority{Nav: true}
	case KindSetPos:
		return Priority{Map: true, Nav: true}
	default:
		return Priority{}
	}
}

// Command is a tagged variant carrying exactly the parameters its Kind
// needs (§9: "model commands as tagged variants").
type Command struct {
	Kind     Kind
	Priority Priority

	// CorrelationID ties a submitted command to its Ack in log output; the
	// TCP server assigns one per inbound frame, the console assigns one per
	// keypress.
	CorrelationID string

	DestX, DestY int32
	Backmode     int32
	NoTight      bool

	Mode   int
	ManuOp int // 10=fwd, 11=back, 12=left, 13=right (§6)

	MaintenanceMagic uint32

	SpeedLim int32

	StateVect StateVectUpdate

	SetPosAng      geom.Angle
	SetPosX,SetPosY int32

	ConstraintX, ConstraintY int32

	RequestedExitCode int
}

// StateVectUpdate mirrors the flags a CR_STATEVECT command may set (§3).
type StateVectUpdate struct {
	Loca2D, Loca3D                     bool
	Mapping2D, Mapping3D               bool
	MappingCollisions                  bool
	KeepPosition                       bool
	BigSearchArea                      int32
}

// NewCommand builds a Command with Kind's default priority triple, which
// callers may override before submitting.
func NewCommand(kind Kind) Command {
	return Command{Kind: kind, Priority: defaultPriority(kind)}
}

// Ack is the dispatcher's synchronous result for a submitted command.
type Ack struct {
	OK           bool
	NoRouteFound bool
	ExitCode     *int
	Err          error
}

// Deps bundles the collaborators a command's execution touches. Persist is
// optional (nil-safe); the Communication worker supplies a concrete
// implementation once persistence is wired (pkg/robot).
type Deps struct {
	Motion   *motion.Client
	Poses    *pose.Service
	World    *worldmap.WorldMap
	State    *statevector.StateVector
	Router   *routing.Coordinator
	Nav      *navigation.State
	Follow   *navigation.FollowRoute
	Recovery *navigation.Recovery
	Charger  *navigation.ChargerFSM
	Persist  Persistence
}

// Persistence is the seam to the robot_pos.txt/charger_pos.txt files (§6).
// Out of scope for this package; pkg/robot implements it.
type Persistence interface {
	SaveRobotPos(ang geom.Angle, x, y int32) error
	LoadRobotPos() (ang geom.Angle, x, y int32, err error)
	SaveChargerPos(navigation.ChargerPose) error
	LoadChargerPos() (navigation.ChargerPose, error)
}

// Exec runs the command against deps and returns its synchronous result.
// It never blocks on worker preemption — that handshake is the
// Dispatcher's job, run before Exec is called.
func (c Command) Exec(ctx context.Context, d *Deps) Ack {
	switch c.Kind {
	case KindDest:
		return c.execDest(ctx, d)
	case KindRoute:
		return c.execRoute(ctx, d)
	case KindCharge:
		return c.execCharge(d)
	case KindAddConstraint:
		d.World.AddConstraint(c.ConstraintX, c.ConstraintY)
		return Ack{OK: true}
	case KindRemConstraint:
		d.World.RemoveConstraint(c.ConstraintX, c.ConstraintY)
		return Ack{OK: true}
	case KindMode:
		return c.execMode(ctx, d)
	case KindManu:
		return c.execManu(ctx, d)
	case KindMaintenance:
		return c.execMaintenance(d)
	case KindSpeedLim:
		return c.execSpeedLim(ctx, d)
	case KindStateVect:
		c.applyStateVect(d.State)
		return Ack{OK: true}
	case KindSetPos:
		return c.execSetPos(ctx, d)
	case KindZeroPose:
		_ = d.Poses.SetRobotPos(0, 0, 0)
		return Ack{OK: true}
	case KindSavePose:
		return c.execSavePose(d)
	case KindLoadPose:
		return c.execLoadPose(ctx, d)
	case KindMassiveSearch:
		d.State.SetBigSearchArea(2)
		return Ack{OK: true}
	case KindConfigureCharger:
		return c.execConfigureCharger(d)
	case KindEngageCharger:
		if d.Charger != nil {
			d.Charger.Start()
		}
		return Ack{OK: true}
	case KindToggleKeepPosition:
		prev := d.State.SetKeepPosition(!d.State.KeepPosition())
		if prev && !d.State.KeepPosition() {
			_ = d.Motion.ReleaseMotors(ctx)
		}
		return Ack{OK: true}
	case KindToggleVerbose:
		d.State.SetVerbose(!d.State.Verbose())
		return Ack{OK: true}
	case KindConsoleExit:
		code := c.RequestedExitCode
		return Ack{OK: true, ExitCode: &code}
	default:
		return Ack{Err: fmt.Errorf("%w: kind %d", ErrInvalidCommand, c.Kind)}
	}
}

// execDest implements CR_DEST (§6): a manual, un-routed destination move.
// backmode bit 0b1000 requests turning to face (x,y) in place rather than
// driving there, per original_source/rn1host.c's TCP_CR_DEST_MID handler.
func (c Command) execDest(ctx context.Context, d *Deps) Ack {
	d.State.SetKeepPosition(true)
	_ = d.Motion.DaijuMode(ctx, false)
	if d.Nav != nil {
		d.Nav.StopFollowing()
	}
	if d.Recovery != nil {
		d.Recovery.Abort()
	}
	if c.Backmode&0b1000 != 0 {
		p, _ := d.Poses.Current()
		heading := geom.HeadingTo(p.Point(), geom.Point2{X: c.DestX, Y: c.DestY})
		if err := d.Motion.TurnToHeading(ctx, heading, 0, defaultSpeedLim, true); err != nil {
			return Ack{Err: err}
		}
		return Ack{OK: true}
	}
	_, err := d.Motion.GoToWaypoint(ctx, c.DestX, c.DestY, motion.Backmode(c.Backmode), 0, defaultSpeedLim)
	if err != nil {
		return Ack{Err: err}
	}
	return Ack{OK: true}
}

func (c Command) execRoute(ctx context.Context, d *Deps) Ack {
	result, err := d.Router.Request(ctx, routing.Request{
		DestX: c.DestX, DestY: c.DestY, NoTight: c.NoTight,
	})
	if err != nil {
		return Ack{Err: err}
	}
	if d.Follow != nil {
		d.Follow.SetGoal(c.DestX, c.DestY)
	}
	if d.Recovery != nil {
		d.Recovery.SetGoal(c.DestX, c.DestY)
	}
	return Ack{OK: !result.NoRouteFound, NoRouteFound: result.NoRouteFound}
}

func (c Command) execCharge(d *Deps) Ack {
	if d.Charger == nil {
		return Ack{Err: ErrInvalidCommand}
	}
	d.Charger.Start()
	return Ack{OK: true}
}

// execMode implements the ten legacy composite modes (§6: "legacy 0..9
// composite modes; see behaviors in §4.6/source"), resolved against
// original_source/rn1host.c's TCP_CR_MODE_MID switch rather than guessed.
func (c Command) execMode(ctx context.Context, d *Deps) Ack {
	sv := d.State
	stopNav := func() {
		if d.Nav != nil {
			d.Nav.StopFollowing()
		}
		if d.Recovery != nil {
			d.Recovery.Abort()
		}
	}
	switch c.Mode {
	case 0: // idle, mapping/localization fully off, hold position
		sv.SetKeepPosition(true)
		_ = d.Motion.DaijuMode(ctx, false)
		sv.SetLoca2D(false)
		sv.SetLoca3D(false)
		sv.SetMapping2D(false)
		sv.SetMapping3D(false)
		sv.SetMappingCollisions(false)
	case 1: // idle, mapping/localization fully on, hold position
		sv.SetKeepPosition(true)
		_ = d.Motion.DaijuMode(ctx, false)
		stopNav()
		sv.SetLoca2D(true)
		sv.SetLoca3D(true)
		sv.SetMapping2D(true)
		sv.SetMapping3D(true)
		sv.SetMappingCollisions(true)
	case 2, 3: // autonomous exploration (skip-compass / from-compass)
		sv.SetKeepPosition(true)
		_ = d.Motion.DaijuMode(ctx, false)
		sv.SetCommandSource(statevector.AUTONOMOUS)
		sv.SetLoca2D(true)
		sv.SetLoca3D(true)
		sv.SetMapping2D(true)
		sv.SetMapping3D(true)
		sv.SetMappingCollisions(true)
	case 4: // daiju, mapping/localization off
		stopNav()
		sv.SetKeepPosition(true)
		_ = d.Motion.DaijuMode(ctx, true)
		sv.SetLoca2D(false)
		sv.SetLoca3D(false)
		sv.SetMapping2D(false)
		sv.SetMapping3D(false)
		sv.SetMappingCollisions(false)
	case 5: // idle, release motors, mapping/localization on
		stopNav()
		sv.SetKeepPosition(false)
		_ = d.Motion.ReleaseMotors(ctx)
		sv.SetLoca2D(true)
		sv.SetLoca3D(true)
		sv.SetMapping2D(true)
		sv.SetMapping3D(true)
		sv.SetMappingCollisions(true)
	case 6: // idle, release motors, mapping/localization off
		stopNav()
		sv.SetKeepPosition(false)
		_ = d.Motion.ReleaseMotors(ctx)
		sv.SetLoca2D(false)
		sv.SetLoca3D(false)
		sv.SetMapping2D(false)
		sv.SetMapping3D(false)
		sv.SetMappingCollisions(false)
	case 7: // configure charger position from current pose
		return c.execConfigureCharger(d)
	case 8: // full stop
		stopNav()
		_ = d.Motion.Stop(ctx)
	case 9: // no-op, reserved
	default:
		return Ack{Err: fmt.Errorf("%w: mode %d", ErrInvalidCommand, c.Mode)}
	}
	return Ack{OK: true}
}

// execManu implements CR_MANU (§6: ops 10..13 = fwd/back/left/right nudge).
func (c Command) execManu(ctx context.Context, d *Deps) Ack {
	d.State.SetKeepPosition(true)
	_ = d.Motion.DaijuMode(ctx, false)
	if d.Nav != nil {
		d.Nav.StopFollowing()
	}
	if d.Recovery != nil {
		d.Recovery.Abort()
	}
	const nudgeMM = 200
	const nudgeSpeed = 20
	var err error
	switch c.ManuOp {
	case 10: // fwd
		err = d.Motion.SteerTurn(ctx, 0, nudgeMM, nudgeSpeed)
	case 11: // back
		err = d.Motion.SteerTurn(ctx, 0, -nudgeMM, nudgeSpeed)
	case 12: // left
		err = d.Motion.SteerTurn(ctx, geom.FromDegrees(15), 0, nudgeSpeed)
	case 13: // right
		err = d.Motion.SteerTurn(ctx, geom.FromDegrees(-15), 0, nudgeSpeed)
	default:
		return Ack{Err: fmt.Errorf("%w: manu op %d", ErrInvalidCommand, c.ManuOp)}
	}
	if err != nil {
		return Ack{Err: err}
	}
	return Ack{OK: true}
}

// execMaintenance implements CR_MAINTENANCE: on the correct magic, arms the
// process exit code; on a wrong magic, logs and ignores (§7).
func (c Command) execMaintenance(d *Deps) Ack {
	if c.MaintenanceMagic != maintenanceMagic {
		log.Warn().Uint32("magic", c.MaintenanceMagic).Msg("maintenance command with wrong magic, ignoring")
		return Ack{OK: false}
	}
	code := 0
	return Ack{OK: true, ExitCode: &code}
}

// execSpeedLim implements CR_SPEEDLIM: clamp to [1,70], else default 45
// (§6, §8 speed invariant).
func (c Command) execSpeedLim(ctx context.Context, d *Deps) Ack {
	lim := c.SpeedLim
	if lim < 1 || lim > 70 {
		lim = defaultSpeedLim
	}
	if err := d.Motion.LimitSpeed(ctx, lim); err != nil {
		return Ack{Err: err}
	}
	return Ack{OK: true}
}

func (c Command) applyStateVect(sv *statevector.StateVector) {
	u := c.StateVect
	sv.SetLoca2D(u.Loca2D)
	sv.SetLoca3D(u.Loca3D)
	sv.SetMapping2D(u.Mapping2D)
	sv.SetMapping3D(u.Mapping3D)
	sv.SetMappingCollisions(u.MappingCollisions)
	sv.SetKeepPosition(u.KeepPosition)
	sv.SetBigSearchArea(u.BigSearchArea)
}

// execSetPos implements CR_SETPOS: sets the pose, bumps pos_corr_id, and
// relies on the sensor intake's stale-frame check to drop the next two
// 3D-ToF frames (the "flush" is structural: those frames are tagged with the
// old pos_corr_id at capture time, and the mapping engine's ingestTof
// discards them on mismatch the same way ingestLidar does, §4.3 item 4 /
// §12).
func (c Command) execSetPos(ctx context.Context, d *Deps) Ack {
	d.Poses.SetRobotPos(c.SetPosAng, c.SetPosX, c.SetPosY)
	if err := d.Motion.SetRobotPos(ctx, c.SetPosAng, c.SetPosX, c.SetPosY); err != nil {
		return Ack{Err: err}
	}
	return Ack{OK: true}
}

func (c Command) execSavePose(d *Deps) Ack {
	if d.Persist == nil {
		return Ack{Err: ErrInvalidCommand}
	}
	p, _ := d.Poses.Current()
	if err := d.Persist.SaveRobotPos(p.Ang, p.X, p.Y); err != nil {
		return Ack{Err: err}
	}
	return Ack{OK: true}
}

func (c Command) execLoadPose(ctx context.Context, d *Deps) Ack {
	if d.Persist == nil {
		return Ack{Err: ErrInvalidCommand}
	}
	ang, x, y, err := d.Persist.LoadRobotPos()
	if err != nil {
		return Ack{Err: err}
	}
	d.Poses.SetRobotPos(ang, x, y)
	if err := d.Motion.SetRobotPos(ctx, ang, x, y); err != nil {
		return Ack{Err: err}
	}
	return Ack{OK: true}
}

func (c Command) execConfigureCharger(d *Deps) Ack {
	if d.Persist == nil {
		return Ack{Err: ErrInvalidCommand}
	}
	p, _ := d.Poses.Current()
	dock := navigation.ChargerPose{FirstX: p.X, FirstY: p.Y, Ang: p.Ang}
	if err := d.Persist.SaveChargerPos(dock); err != nil {
		return Ack{Err: err}
	}
	return Ack{OK: true}
}
