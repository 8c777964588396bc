// Package routing implements the Routing Coordinator (spec.md §4.4): a
// single-in-flight request/response planner that turns (dest_x, dest_y)
// into a RouteBuffer of waypoints, grounded on the teacher's x/math/grid
// A* (astar.go) adapted to run directly against the occupancy map instead
// of a dense matrix.
package routing

import (
	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/motion"
)

// MaxWaypoints is the RouteBuffer truncation limit (§4.4).
const MaxWaypoints = 200

// TerminalTakeNextEarly is the take_next_early value forced for the last
// waypoint in a route (§4.4).
const TerminalTakeNextEarly = 20

// TakeNextEarlyMin and TakeNextEarlyMax bound the clamp applied to every
// non-terminal waypoint's take_next_early (§4.4).
const (
	TakeNextEarlyMin = 50
	TakeNextEarlyMax = 250
)

// Waypoint is one stop along a planned route.
type Waypoint struct {
	X, Y          int32
	Ang           geom.Angle
	Backmode      motion.Backmode
	TakeNextEarly int32
}

// RouteBuffer is the planned path the Navigation FSM follows (§3).
type RouteBuffer struct {
	Waypoints []Waypoint
	IDCnt     int
}

// BuildRouteBuffer turns a raw planner path (world-frame points) into a
// RouteBuffer: truncates to MaxWaypoints, derives each waypoint's heading
// toward the next point, and computes take_next_early per waypoint (§4.4).
func BuildRouteBuffer(path []geom.Point2, idCnt int) RouteBuffer {
	if len(path) > MaxWaypoints {
		path = path[:MaxWaypoints]
	}
	wps := make([]Waypoint, len(path))
	for i, pt := range path {
		wp := Waypoint{X: pt.X, Y: pt.Y, Backmode: motion.BackmodeForward}
		if i+1 < len(path) {
			next := path[i+1]
			wp.Ang = geom.HeadingTo(pt, next)
			segLen := int32(geom.DistanceTo(pt, next))
			wp.TakeNextEarly = geom.Clamp(segLen/10, TakeNextEarlyMin, TakeNextEarlyMax)
		} else {
			wp.TakeNextEarly = TerminalTakeNextEarly
		}
		wps[i] = wp
	}
	return RouteBuffer{Waypoints: wps, IDCnt: idCnt}
}
