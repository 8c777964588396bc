package navigation

import (
	"context"
	"time"

	"github.com/rn1robotics/hostcore/pkg/motion"
)

// tickInterval is the Navigation worker's scheduler cadence; both
// sub-FSMs share this tick (§4.5, §5 "same scheduler tick").
const tickInterval = 50 * time.Millisecond

// Controller runs the two interleaved Navigation sub-FSMs against a stream
// of MCU feedback (§4.5): the follow-route machine (with its Recovery
// escalation) and the Charger-mount machine.
type Controller struct {
	state    *State
	follow   *FollowRoute
	recovery *Recovery
	charger  *ChargerFSM
	status   ChargingStatus
}

// NewController wires a Controller from its already-constructed parts.
func NewController(state *State, follow *FollowRoute, recovery *Recovery, charger *ChargerFSM) *Controller {
	return &Controller{state: state, follow: follow, recovery: recovery, charger: charger}
}

// Run drains feedback until ctx is done, keeping only the latest frame, and
// on every tickInterval tick runs the sub-FSMs against it: the charger FSM
// first when active (from stage 4 on it is the only one that runs), then
// Recovery when active, otherwise the follow-route machine.
func (c *Controller) Run(ctx context.Context, feedback <-chan motion.Feedback) error {
	var latest motion.Feedback
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fb, ok := <-feedback:
			if !ok {
				return nil
			}
			latest = fb
		case now := <-ticker.C:
			c.tick(ctx, now, latest)
		}
	}
}

func (c *Controller) tick(ctx context.Context, now time.Time, fb motion.Feedback) {
	if c.charger != nil && c.charger.Stage() != 0 {
		c.charger.Tick(ctx, now, c.status, !c.state.FollowRoute())
		if c.charger.SuppressLiveObstacleCheck() {
			return
		}
	}
	if c.recovery != nil && c.recovery.Active() {
		c.recovery.Tick(ctx, now)
		return
	}
	if c.follow != nil {
		c.follow.Tick(ctx, now, fb)
	}
}

// SetChargingStatus updates the live battery/charging telemetry consumed by
// the charger FSM's stage 8 wait.
func (c *Controller) SetChargingStatus(status ChargingStatus) { c.status = status }
