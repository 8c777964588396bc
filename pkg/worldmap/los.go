package worldmap

import "github.com/rn1robotics/hostcore/pkg/geom"

// LineOfSight walks the segment from `from` to `to` in CellMM-sized steps
// and reports whether every cell along the way is unoccupied. Adapted from
// the teacher's grid ray-casting routine (pkg/core/math/grid/raycast.go),
// swapped from a float32 occupancy-grid matrix to the paged millimeter
// WorldMap. Used by the follow-route opportunistic waypoint skip (§4.5.1),
// the Live Obstacle Check (§4.5.2), and the stage-7 creep visibility gate
// (§4.5.3).
func (w *WorldMap) LineOfSight(from, to geom.Point2) bool {
	dist := geom.DistanceTo(from, to)
	if dist <= 0 {
		return true
	}
	steps := int(dist/CellMM) + 1
	dx := float32(to.X-from.X) / float32(steps)
	dy := float32(to.Y-from.Y) / float32(steps)

	x, y := float32(from.X), float32(from.Y)
	for i := 0; i <= steps; i++ {
		if w.IsOccupied(int32(x), int32(y)) {
			return false
		}
		x += dx
		y += dy
	}
	return true
}

// CountObstaclesOnPath counts occupied cells on the direct segment from
// `from` to `to`, used by check_direct_route_non_turning_hitcnt (§4.5.2).
func (w *WorldMap) CountObstaclesOnPath(from, to geom.Point2) int {
	dist := geom.DistanceTo(from, to)
	if dist <= 0 {
		return 0
	}
	steps := int(dist/CellMM) + 1
	dx := float32(to.X-from.X) / float32(steps)
	dy := float32(to.Y-from.Y) / float32(steps)

	x, y := float32(from.X), float32(from.Y)
	hits := 0
	for i := 0; i <= steps; i++ {
		if w.IsOccupied(int32(x), int32(y)) {
			hits++
		}
		x += dx
		y += dy
	}
	return hits
}
