package motion

import (
	"context"
	"fmt"

	"github.com/rn1robotics/hostcore/pkg/geom"
)

// Client is the ergonomic wrapper the rest of the core talks to. It owns
// move-id bookkeeping (id_cnt/route_pos packing, §6) and turns a MotionLink's
// raw verbs into the handful of calls Navigation, Recovery, and the Charger
// FSM actually issue.
type Client struct {
	link MotionLink
	idCnt int
}

// NewClient wraps a MotionLink. id_cnt starts at 1 so the reserved
// SteerManeuverIDCnt (0) stays free for recovery turns.
func NewClient(link MotionLink) *Client {
	return &Client{link: link, idCnt: 1}
}

// NextIDCnt advances and returns the route-following id_cnt, wrapping within
// the 4-bit field used by MoveID.
func (c *Client) NextIDCnt() int {
	c.idCnt = (c.idCnt + 1) & 0xF
	if c.idCnt == SteerManeuverIDCnt {
		c.idCnt = 1
	}
	return c.idCnt
}

// GoToWaypoint issues a move_to for the given route position, tagging the
// move with the current id_cnt so feedback can be matched back to it.
func (c *Client) GoToWaypoint(ctx context.Context, x, y int32, backmode Backmode, routePos int, speedlim int32) (uint8, error) {
	id := MoveID(c.idCnt, routePos)
	if err := c.link.MoveTo(ctx, x, y, backmode, id, speedlim, MoveFlags{}); err != nil {
		return 0, fmt.Errorf("motion: move_to: %w", err)
	}
	return id, nil
}

// SteerTurn issues a recovery/lookaround relative turn through
// turn_and_go_rel_rel. That verb carries no move id, so no id_cnt (reserved
// SteerManeuverIDCnt or otherwise) is sent with the turn.
func (c *Client) SteerTurn(ctx context.Context, dAng geom.Angle, distMM, speed int32) error {
	if err := c.link.TurnAndGoRelRel(ctx, dAng, distMM, speed); err != nil {
		return fmt.Errorf("motion: turn_and_go_rel_rel: %w", err)
	}
	return nil
}

// TurnToHeading issues an absolute turn-and-go, used by charger approach and
// route-following to face a waypoint's fixed heading.
func (c *Client) TurnToHeading(ctx context.Context, ang geom.Angle, distMM, speed int32, accurate bool) error {
	if err := c.link.TurnAndGoAbsRel(ctx, ang, distMM, speed, accurate); err != nil {
		return fmt.Errorf("motion: turn_and_go_abs_rel: %w", err)
	}
	return nil
}

// ChargerApproach issues the reserved second-approach move (§4.5.4 stage 4).
func (c *Client) ChargerApproach(ctx context.Context, x, y int32, speedlim int32) error {
	if err := c.link.MoveTo(ctx, x, y, BackmodeReverse, ChargerApproachMoveID, speedlim, MoveFlags{}); err != nil {
		return fmt.Errorf("motion: charger approach move_to: %w", err)
	}
	return nil
}

// Stop issues stop_movement.
func (c *Client) Stop(ctx context.Context) error {
	if err := c.link.StopMovement(ctx); err != nil {
		return fmt.Errorf("motion: stop_movement: %w", err)
	}
	return nil
}

// LimitSpeed forwards a speed limit derived by the mapping/exploration loop
// (§4.3 speed-limit table).
func (c *Client) LimitSpeed(ctx context.Context, speed int32) error {
	if err := c.link.LimitSpeed(ctx, speed); err != nil {
		return fmt.Errorf("motion: limit_speed: %w", err)
	}
	return nil
}

// ReleaseMotors forwards release_motors (operator E-stop release, §6).
func (c *Client) ReleaseMotors(ctx context.Context) error {
	if err := c.link.ReleaseMotors(ctx); err != nil {
		return fmt.Errorf("motion: release_motors: %w", err)
	}
	return nil
}

// DaijuMode toggles free-wheeling mode.
func (c *Client) DaijuMode(ctx context.Context, on bool) error {
	if err := c.link.DaijuMode(ctx, on); err != nil {
		return fmt.Errorf("motion: daiju_mode: %w", err)
	}
	return nil
}

// FindCharger kicks off the MCU's own charger-seeking behavior (§4.5.4 stage 7).
func (c *Client) FindCharger(ctx context.Context) error {
	if err := c.link.FindCharger(ctx); err != nil {
		return fmt.Errorf("motion: find_charger: %w", err)
	}
	return nil
}

// SetHWObstacleAvoidanceMargin forwards an obstacle-margin override.
func (c *Client) SetHWObstacleAvoidanceMargin(ctx context.Context, marginMM int32) error {
	if err := c.link.SetHWObstacleAvoidanceMargin(ctx, marginMM); err != nil {
		return fmt.Errorf("motion: set_hw_obstacle_avoidance_margin: %w", err)
	}
	return nil
}

// Keepalive forwards a keepalive tick. The mapping engine calls this roughly
// every 500 loop iterations (§12).
func (c *Client) Keepalive(ctx context.Context) error {
	if err := c.link.SendKeepalive(ctx); err != nil {
		return fmt.Errorf("motion: keepalive: %w", err)
	}
	return nil
}

// SetRobotPos forwards an absolute pose reset (operator "set position" key, §6).
func (c *Client) SetRobotPos(ctx context.Context, ang geom.Angle, x, y int32) error {
	if err := c.link.SetRobotPos(ctx, ang, x, y); err != nil {
		return fmt.Errorf("motion: set_robot_pos: %w", err)
	}
	return nil
}

// CorrectRobotPos forwards a scan-match pose nudge, tagged with the
// pose-correction epoch id so the MCU (and our own pose.Service) can drop
// stale corrections.
func (c *Client) CorrectRobotPos(ctx context.Context, dAng geom.Angle, dx, dy int32, posCorrID int32) error {
	if err := c.link.CorrectRobotPos(ctx, dAng, dx, dy, posCorrID); err != nil {
		return fmt.Errorf("motion: correct_robot_pos: %w", err)
	}
	return nil
}

// Feedback exposes the underlying link's feedback stream.
func (c *Client) Feedback() <-chan Feedback { return c.link.Feedback() }
