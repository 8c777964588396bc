// Package mapping implements the Mapping Engine continuous loop (spec.md
// §4.3): it ingests sensor-intake frames, runs scan-matching pose
// correction, maintains the world map, and derives the adaptive speed
// limit. Grounded on the teacher's x/robotics/pipeline step/run loop shape:
// a fixed ordered sequence of steps run every tick, each step a small
// method rather than a monolithic function.
package mapping

import "github.com/rn1robotics/hostcore/pkg/geom"

// ObstacleHistogram is the 3D-ToF-derived obstacle-level bucket count used
// to derive the speed limit (§4.3 item 2): counts of obstacle points found
// in the near/mid/far bands ahead of the robot.
type ObstacleHistogram struct {
	Near, Mid, Far int
}

// MaxSpeedlim is the configured ceiling speed limit never exceeded by the
// adaptive ramp (§8 testable property: 0 < cur_speedlim <= max_speedlim <= 70).
const MaxSpeedlim = 70

// DeriveSpeedLimit maps an obstacle histogram to a speed-limit ceiling per
// the threshold table in §4.3. When no band trips a threshold, it allows a
// ramp toward maxSpeedlim from the current value.
func DeriveSpeedLimit(h ObstacleHistogram, current, maxSpeedlim int32) int32 {
	if maxSpeedlim > MaxSpeedlim {
		maxSpeedlim = MaxSpeedlim
	}
	switch {
	case h.Far > 100:
		return clampToCeiling(18, maxSpeedlim)
	case h.Far > 7:
		return clampToCeiling(25, maxSpeedlim)
	case h.Mid > 70:
		return clampToCeiling(25, maxSpeedlim)
	case h.Mid > 7:
		return clampToCeiling(35, maxSpeedlim)
	case h.Near > 20:
		return clampToCeiling(42, maxSpeedlim)
	default:
		return rampToward(current, maxSpeedlim)
	}
}

func clampToCeiling(v, ceiling int32) int32 {
	return geom.Clamp(v, 1, ceiling)
}

// rampStepPerTick is the per-tick step allowed when ramping the speed limit
// back up toward the ceiling once no obstacle band is tripped.
const rampStepPerTick = 2

func rampToward(current, maxSpeedlim int32) int32 {
	if current >= maxSpeedlim {
		return maxSpeedlim
	}
	next := current + rampStepPerTick
	if next > maxSpeedlim {
		next = maxSpeedlim
	}
	if next < 1 {
		next = 1
	}
	return next
}
