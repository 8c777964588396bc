// Package pose owns the single process-wide Pose instance and the
// PoseCorrectionId epoch counter described in spec.md §3 and §4.2.
//
// The original C source left shared mutable state (map, pose, state
// vector) entirely unprotected (spec.md §5, §9). This package is the
// reimplementation's answer for pose: a small critical section guarding pose
// and pos_corr_id together, so a reader always observes a (pose, id) pair
// that was published atomically by the same correction.
package pose

import (
	"sync"
	"time"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/logging"
)

var log = logging.Component("pose")

// CorrectionID is the wrapping [0,99] pose-correction epoch (spec.md §3).
type CorrectionID int32

const maxCorrectionID = 99

func (c CorrectionID) next() CorrectionID {
	n := c + 1
	if n > maxCorrectionID {
		n = 0
	}
	return n
}

// Pose is the robot's estimated position and heading at a point in time.
type Pose struct {
	Ang       geom.Angle
	X, Y      int32
	Timestamp time.Time
}

// Point returns the millimeter position as a geom.Point2.
func (p Pose) Point() geom.Point2 { return geom.Point2{X: p.X, Y: p.Y} }

// Service is the process-wide pose + correction-id holder. All reads and
// writes go through it so that pos_corr_id is always observed consistently
// with the pose it tags (§5 ordering guarantee).
type Service struct {
	mu     sync.RWMutex
	pose   Pose
	corrID CorrectionID

	// staleStreak counts consecutive lidar frames seen with a stale
	// pos_corr_id; used by the mapping engine to force a no-op correction
	// after 20 stale frames (§4.2).
	staleStreak int
}

// NewService creates a pose service initialized to the origin.
func NewService() *Service {
	return &Service{pose: Pose{Timestamp: time.Now()}}
}

// Current returns the current pose and its correction id atomically.
func (s *Service) Current() (Pose, CorrectionID) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pose, s.corrID
}

// CorrectionID returns just the id, for sensor frames that only need to tag
// themselves at capture time.
func (s *Service) CorrectionID() CorrectionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.corrID
}

// SetRobotPos resets the pose to an absolute value (from CR_SETPOS or the
// console '0'/'s' keys) and forces a pos_corr_id increment (§4.2).
func (s *Service) SetRobotPos(ang geom.Angle, x, y int32) CorrectionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose = Pose{Ang: ang, X: x, Y: y, Timestamp: time.Now()}
	s.corrID = s.corrID.next()
	s.staleStreak = 0
	log.Info().Int32("ang_deg", int32(ang.Degrees())).Int32("x", x).Int32("y", y).
		Int32("corr_id", int32(s.corrID)).Msg("set_robot_pos")
	return s.corrID
}

// Correct applies a scan-match correction delta and publishes a new
// pos_corr_id. The delta passed in must already have any damping/scaling
// applied by the caller (§4.2: half when localize_with_big_search_area=0,
// full when =1, one-third at route-start). The pose and id update is a
// single critical section so no reader ever observes one without the other
// (testable property: atomicity of pose correction).
func (s *Service) Correct(dAng geom.Angle, dx, dy int32) CorrectionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose.Ang = s.pose.Ang.Add(dAng)
	s.pose.X += dx
	s.pose.Y += dy
	s.pose.Timestamp = time.Now()
	s.corrID = s.corrID.next()
	s.staleStreak = 0
	return s.corrID
}

// NoteStaleFrame records that a lidar frame arrived tagged with a
// pos_corr_id that no longer matches. After more than 20 consecutive stale
// frames it forces a no-op correction (delta 0,0,0) purely to advance the id
// and resynchronize the pipeline (§4.2; flagged as an open question in
// DESIGN.md — we implement the behavior as specified without resolving
// whether it is intentional).
func (s *Service) NoteStaleFrame() (forced bool, newID CorrectionID) {
	s.mu.Lock()
	s.staleStreak++
	streak := s.staleStreak
	s.mu.Unlock()

	if streak <= 20 {
		return false, 0
	}
	return true, s.Correct(0, 0, 0)
}

// Age returns how long ago the current pose was last updated.
func (s *Service) Age(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.pose.Timestamp)
}

// Fresh reports whether the pose was updated within maxAge of now. Used by
// the Live Obstacle Check, which must never act on a pose older than 200ms
// (§4.5.2, §8 testable property).
func (s *Service) Fresh(now time.Time, maxAge time.Duration) bool {
	return s.Age(now) <= maxAge
}
