package motion

import (
	"time"

	"github.com/rn1robotics/hostcore/pkg/geom"
)

// XYMove mirrors the MCU's cur_xymove feedback block (§6): progress of the
// currently executing move, plus the reflex-stop flags the Navigation FSM
// reacts to.
type XYMove struct {
	ID                   uint8
	RemainingMM          int32
	MicronaviStopFlags   uint32
	FeedbackStopFlags    uint32
	MicronaviActionFlags uint32
	StopXcelVector       [3]float32
}

// PowerStatus mirrors the MCU's battery/charge telemetry.
type PowerStatus struct {
	BatteryPercent int
	Charging       bool
	Charged        bool
}

// Feedback is one MCU response frame (§6: "Responses stream current (ang, x,
// y, timestamp), cur_xymove, power status, ...").
type Feedback struct {
	Ang       geom.Angle
	X, Y      int32
	Timestamp time.Time
	CurMove   XYMove
	Power     PowerStatus
}
