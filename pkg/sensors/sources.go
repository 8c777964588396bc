// Package sensors owns the Sensor Intake worker (spec.md §4.1): it polls the
// lidar, 3D-ToF, and sonar sources, tags each captured frame with the
// pose-correction id in effect at capture time, and forwards frames to the
// mapping engine. The polling abstraction is grounded on the teacher's
// x/devices/lidar.Device interface: callback-driven reads of a raw scan, with
// the core deciding what a "frame" means for its own domain.
package sensors

import (
	"context"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
)

// LidarSource is a single lidar channel. Two channels exist on the real
// robot (significant and basic, §12): the core prefers the significant
// channel's points and falls back to the basic channel only where the
// significant channel reports no point for an angle.
type LidarSource interface {
	// ReadScan blocks until a scan is available or ctx is done, returning the
	// raw points in sensor frame (angle relative to the robot's heading).
	ReadScan(ctx context.Context) ([]worldmap.LidarPoint, error)
	Close() error
}

// TofSource reads one 3D-ToF frame, already reduced to 2D obstacle points in
// sensor frame (the 3D->2D flattening is out of scope, §1).
type TofSource interface {
	ReadFrame(ctx context.Context) ([]geom.Point2, error)
	Close() error
}

// SonarSource reads the ring of sonar transducers, returning one reading per
// active transducer for this poll.
type SonarSource interface {
	ReadRing(ctx context.Context) ([]SonarReading, error)
	Close() error
}

// SonarReading is one transducer's range reading in sensor frame.
type SonarReading struct {
	Angle  geom.Angle
	DistMM int32
}

// MergeLidarChannels prefers points from significant where present, filling
// gaps (no point near a given angle) from basic. Grounded on the
// significant/basic preference rule recovered from original_source/rn1host.c
// (§12).
func MergeLidarChannels(significant, basic []worldmap.LidarPoint) []worldmap.LidarPoint {
	if len(significant) == 0 {
		return basic
	}
	have := make(map[int32]bool, len(significant))
	for _, p := range significant {
		have[int32(p.Angle)] = true
	}
	out := make([]worldmap.LidarPoint, len(significant), len(significant)+len(basic))
	copy(out, significant)
	for _, p := range basic {
		if !have[int32(p.Angle)] {
			out = append(out, p)
		}
	}
	return out
}
