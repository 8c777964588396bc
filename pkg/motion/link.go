// Package motion wraps the MCU motion-control protocol described in
// spec.md §6: the abstract byte-framed request/response protocol that
// issues move_to/turn_and_go/stop/etc. commands and streams back pose and
// movement feedback.
//
// Per spec.md §1 Out of scope, the wire framing and keepalive protocol
// details belong to the serial transport, not this package. MotionLink is
// the seam: the core only depends on these verbs and the Feedback stream; a
// concrete transport (SerialLink in serial_link.go, or FakeLink below in
// tests) fulfills it.
package motion

import (
	"context"
	"time"

	"github.com/rn1robotics/hostcore/pkg/geom"
)

// Backmode encodes a waypoint's travel-direction variant (§3 RouteBuffer).
type Backmode int

const (
	// BackmodeForward drives forward toward the waypoint.
	BackmodeForward Backmode = iota
	// BackmodeReverse drives in reverse toward the waypoint.
	BackmodeReverse
	// BackmodeRotateOnly only rotates in place to face the waypoint's angle.
	BackmodeRotateOnly
)

// MoveFlags carries per-move bits beyond position/speed. It holds only the
// accurate-turn flag; the obstacle-avoidance margin is set through the
// separate SetHWObstacleAvoidanceMargin verb.
type MoveFlags struct {
	Accurate bool
}

// Reserved move-id components (§6).
const (
	// SteerManeuverIDCnt is the id_cnt reserved for steer maneuvers
	// (recovery turns), not route-following moves.
	SteerManeuverIDCnt = 0
	// ChargerApproachMoveID is the reserved move id (0x7F) for the charger
	// second-approach move_to (§4.5.4 stage 4).
	ChargerApproachMoveID = 0x7F
)

// MoveID packs (id_cnt<<4 | route_pos&0xF) per §6.
func MoveID(idCnt, routePos int) uint8 {
	return uint8((idCnt&0xF)<<4 | (routePos & 0xF))
}

// MotionLink is the abstract MCU motion protocol. Implementations own byte
// framing and keepalive details (out of scope here).
type MotionLink interface {
	MoveTo(ctx context.Context, x, y int32, backmode Backmode, id uint8, speedlim int32, flags MoveFlags) error
	TurnAndGoAbsRel(ctx context.Context, ang geom.Angle, distMM int32, speed int32, accurate bool) error
	TurnAndGoRelRel(ctx context.Context, dAng geom.Angle, distMM int32, speed int32) error
	StopMovement(ctx context.Context) error
	LimitSpeed(ctx context.Context, speed int32) error
	ReleaseMotors(ctx context.Context) error
	DaijuMode(ctx context.Context, on bool) error
	FindCharger(ctx context.Context) error
	SetHWObstacleAvoidanceMargin(ctx context.Context, marginMM int32) error
	SendKeepalive(ctx context.Context) error
	SetRobotPos(ctx context.Context, ang geom.Angle, x, y int32) error
	CorrectRobotPos(ctx context.Context, dAng geom.Angle, dx, dy int32, posCorrID int32) error

	// Feedback streams MCU responses as they arrive. Implementations must
	// close the channel when the underlying transport is closed or ctx is
	// done.
	Feedback() <-chan Feedback
}

// FakeLink is an in-memory MotionLink used by tests and by the charger/
// recovery FSM unit tests; it records issued calls and lets the test push
// synthetic feedback.
type FakeLink struct {
	feedback chan Feedback
	Calls    []string
}

// NewFakeLink creates a FakeLink with the given feedback channel buffer.
func NewFakeLink(buffer int) *FakeLink {
	return &FakeLink{feedback: make(chan Feedback, buffer)}
}

func (f *FakeLink) record(call string) { f.Calls = append(f.Calls, call) }

func (f *FakeLink) MoveTo(ctx context.Context, x, y int32, backmode Backmode, id uint8, speedlim int32, flags MoveFlags) error {
	f.record("move_to")
	return nil
}
func (f *FakeLink) TurnAndGoAbsRel(ctx context.Context, ang geom.Angle, distMM int32, speed int32, accurate bool) error {
	f.record("turn_and_go_abs_rel")
	return nil
}
func (f *FakeLink) TurnAndGoRelRel(ctx context.Context, dAng geom.Angle, distMM int32, speed int32) error {
	f.record("turn_and_go_rel_rel")
	return nil
}
func (f *FakeLink) StopMovement(ctx context.Context) error { f.record("stop_movement"); return nil }
func (f *FakeLink) LimitSpeed(ctx context.Context, speed int32) error {
	f.record("limit_speed")
	return nil
}
func (f *FakeLink) ReleaseMotors(ctx context.Context) error { f.record("release_motors"); return nil }
func (f *FakeLink) DaijuMode(ctx context.Context, on bool) error {
	f.record("daiju_mode")
	return nil
}
func (f *FakeLink) FindCharger(ctx context.Context) error { f.record("find_charger"); return nil }
func (f *FakeLink) SetHWObstacleAvoidanceMargin(ctx context.Context, marginMM int32) error {
	f.record("set_hw_obstacle_avoidance_margin")
	return nil
}
func (f *FakeLink) SendKeepalive(ctx context.Context) error { f.record("send_keepalive"); return nil }
func (f *FakeLink) SetRobotPos(ctx context.Context, ang geom.Angle, x, y int32) error {
	f.record("set_robot_pos")
	return nil
}
func (f *FakeLink) CorrectRobotPos(ctx context.Context, dAng geom.Angle, dx, dy int32, posCorrID int32) error {
	f.record("correct_robot_pos")
	return nil
}
func (f *FakeLink) Feedback() <-chan Feedback { return f.feedback }

// Push injects a synthetic feedback frame, used by tests to drive the
// Navigation FSM.
func (f *FakeLink) Push(fb Feedback) {
	if fb.Timestamp.IsZero() {
		fb.Timestamp = time.Now()
	}
	f.feedback <- fb
}

// Close closes the feedback channel.
func (f *FakeLink) Close() { close(f.feedback) }
