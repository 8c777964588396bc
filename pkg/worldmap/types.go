package worldmap

import (
	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/pose"
)

// LidarPoint is one range/angle reading, angle relative to the capturing
// pose's heading.
type LidarPoint struct {
	Angle  geom.Angle
	DistMM int32
}

// LidarScan is a full 2D lidar sweep tagged with the pose and
// pose-correction id it was captured at, consumed by MapLidars for
// scan-matching (§4.1). CorrID lets the mapping engine detect a stale scan
// (captured under a correction epoch that has since advanced, §4.2/§4.3
// item 4).
type LidarScan struct {
	Pose   pose.Pose
	CorrID pose.CorrectionID
	Points []LidarPoint
}

// WorldPoints returns the scan's points projected into world-frame
// millimeter coordinates using the scan's capture pose.
func (s LidarScan) WorldPoints() []geom.Point2 {
	out := make([]geom.Point2, len(s.Points))
	for i, pt := range s.Points {
		ang := s.Pose.Ang.Add(pt.Angle)
		out[i] = geom.Project(s.Pose.Point(), ang, float32(pt.DistMM))
	}
	return out
}

// TofFrame is one 3D-ToF capture, reduced to the 2D obstacle footprint it
// projects onto the map, tagged with the pose at capture (§4.1 map_3dtof).
// CorrID mirrors LidarScan's: it lets the mapping engine discard frames
// captured under a correction epoch that has since advanced, e.g. the two
// 3D-ToF frames CR_SETPOS flushes (§6, §8).
type TofFrame struct {
	Pose      pose.Pose
	CorrID    pose.CorrectionID
	Obstacles []geom.Point2
}

// SonarPoint is a single sonar range reading (§4.1 map_sonars).
type SonarPoint struct {
	Pose   pose.Pose
	Angle  geom.Angle
	DistMM int32
}

// WorldPoint returns the sonar hit projected into world coordinates.
func (s SonarPoint) WorldPoint() geom.Point2 {
	return geom.Project(s.Pose.Point(), s.Pose.Ang.Add(s.Angle), float32(s.DistMM))
}
