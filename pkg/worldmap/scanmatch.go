package worldmap

import "github.com/rn1robotics/hostcore/pkg/geom"

// searchOffsetsMM and searchAnglesDeg bound the scan-match search: a small
// discrete neighborhood around the zero-correction hypothesis. This keeps
// MapLidars cheap enough to run every mapping tick while still correcting
// the kind of small odometry drift the MCU accumulates between lidar scans.
var (
	searchOffsetsMM = []int32{-80, -40, -20, 0, 20, 40, 80}
	searchAnglesDeg = []float64{-4, -2, -1, 0, 1, 2, 4}
)

// MapLidars runs scan-matching of the most recent n lidar scans against the
// current occupancy map and returns the pose correction delta that best
// aligns them (§4.1 map_lidars). The returned delta is the *full* match
// delta; scaling it for damping (§4.2) is the caller's responsibility.
//
// The match score for a candidate (dAng, dx, dy) is the count of scan points
// that would land on an already-occupied cell after applying the candidate
// correction to the scan's capture pose. This is a small local search, not a
// full ICP/correlative scan matcher — the planner/matcher internals are
// explicitly out of scope (spec.md §1); this implementation exists so the
// rest of the pipeline (pose correction, routing's pre-route localization)
// has a concrete, exercised collaborator.
func (w *WorldMap) MapLidars(scans []LidarScan) (dAng geom.Angle, dx, dy int32) {
	if len(scans) == 0 {
		return 0, 0, 0
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	bestScore := -1
	var bestAng geom.Angle
	var bestDx, bestDy int32

	for _, adeg := range searchAnglesDeg {
		cand := geom.FromDegrees(adeg)
		for _, ox := range searchOffsetsMM {
			for _, oy := range searchOffsetsMM {
				score := w.scoreCorrectionLocked(scans, cand, ox, oy)
				if score > bestScore {
					bestScore = score
					bestAng = cand
					bestDx = ox
					bestDy = oy
				}
			}
		}
	}

	return bestAng, bestDx, bestDy
}

func (w *WorldMap) scoreCorrectionLocked(scans []LidarScan, dAng geom.Angle, dx, dy int32) int {
	score := 0
	for _, scan := range scans {
		correctedPose := scan.Pose
		correctedPose.Ang = correctedPose.Ang.Add(dAng)
		correctedPose.X += dx
		correctedPose.Y += dy

		for _, pt := range scan.Points {
			ang := correctedPose.Ang.Add(pt.Angle)
			wp := geom.Project(correctedPose.Point(), ang, float32(pt.DistMM))
			coord, cx, cy := MMToPage(wp.X, wp.Y)
			p, ok := w.pages[coord]
			if !ok {
				continue
			}
			if p.Occupancy[cy][cx] != 0 {
				score++
			}
		}
	}
	return score
}
