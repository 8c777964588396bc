// Package navigation implements the two interleaved Navigation sub-FSMs
// (spec.md §4.5): the follow-route machine, Live Obstacle Check, the
// 12-stage Recovery machine, and the 8-stage Charger-mount machine.
// Grounded on the teacher's x/robotics pipeline step-loop shape: one struct
// owns a small explicit stage/state field and a Tick method advances it.
package navigation

import (
	"sync"
	"time"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/routing"
)

// MicronaviStopLimit is the micronavi_stops threshold: stops 1..6 enter
// Recovery, the 7th triggers a direct reroute (§4.5.1, §8).
const MicronaviStopLimit = 7

// State is the shared Navigation state both sub-FSMs read and write:
// follow_route/start_route/route_pos/id_cnt plus the counters the recovery
// and obstacle-check logic consume.
type State struct {
	mu sync.Mutex

	followRoute bool
	startRoute  bool
	route       routing.RouteBuffer
	routePos    int

	micronaviStops int
	maneuverCnt    int

	goodTimeForLidarMapping bool
	routeFinishedOrNotFound bool
}

// NewState returns a zeroed navigation State.
func NewState() *State { return &State{} }

// BeginFollowing implements routing.NavState: installs a new route and
// resets per-route counters (§4.4).
func (s *State) BeginFollowing(route routing.RouteBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = route
	s.routePos = 0
	s.followRoute = true
	s.startRoute = true
	s.micronaviStops = 0
	s.maneuverCnt = 0
	s.routeFinishedOrNotFound = false
}

// RouteNotFound implements routing.NavState: clears follow_route and marks
// the route as finished-or-not-found (§4.4).
func (s *State) RouteNotFound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followRoute = false
	s.routeFinishedOrNotFound = true
}

// FollowRoute reports whether the follow-route machine should run this
// tick.
func (s *State) FollowRoute() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.followRoute
}

// CurrentWaypoint returns the waypoint at route_pos and whether one exists.
func (s *State) CurrentWaypoint() (routing.Waypoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.routePos < 0 || s.routePos >= len(s.route.Waypoints) {
		return routing.Waypoint{}, false
	}
	return s.route.Waypoints[s.routePos], true
}

// PeekWaypoint returns the waypoint at route_pos+offset, if any, without
// advancing route_pos (used for opportunistic skip look-ahead, §4.5.1).
func (s *State) PeekWaypoint(offset int) (routing.Waypoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.routePos + offset
	if i < 0 || i >= len(s.route.Waypoints) {
		return routing.Waypoint{}, false
	}
	return s.route.Waypoints[i], true
}

// AdvanceRoutePos moves route_pos forward by one and reports whether a
// waypoint remains.
func (s *State) AdvanceRoutePos() (hasNext bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routePos++
	return s.routePos < len(s.route.Waypoints)
}

// RoutePos returns the current route position.
func (s *State) RoutePos() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.routePos
}

// IDCnt returns the route's id_cnt.
func (s *State) IDCnt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route.IDCnt
}

// FinishRoute marks SUCCESS completion: clears follow_route and sets
// route_finished_or_notfound (§4.5.1).
func (s *State) FinishRoute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followRoute = false
	s.routeFinishedOrNotFound = true
}

// ResetManeuverCount resets maneuver_cnt (§4.5.1, on take_next_early trigger).
func (s *State) ResetManeuverCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maneuverCnt = 0
}

// ResetMicronaviStops resets micronavi_stops after a successful waypoint
// advance (§4.5.1).
func (s *State) ResetMicronaviStops() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.micronaviStops = 0
}

// IncMicronaviStops increments micronavi_stops and returns the new count.
func (s *State) IncMicronaviStops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.micronaviStops++
	return s.micronaviStops
}

// SetGoodTimeForLidarMapping sets the hint consumed by the mapping engine's
// lidar-queue trigger (§4.3 item 4, §4.5.1).
func (s *State) SetGoodTimeForLidarMapping(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goodTimeForLidarMapping = v
}

// GoodTimeForLidarMapping implements mapping.Engine's GoodTimeForLidarMapping hook.
func (s *State) GoodTimeForLidarMapping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goodTimeForLidarMapping
}

// RouteFinishedOrNotFound reports the corresponding flag.
func (s *State) RouteFinishedOrNotFound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.routeFinishedOrNotFound
}

// StopFollowing force-clears follow_route, used by Recovery stage 1 (§4.5.3).
func (s *State) StopFollowing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followRoute = false
}

// withinAndForward reports whether a forward waypoint is within the given
// distance and backmode-forward, the precondition for opportunistic skip
// (§4.5.1).
func withinAndForward(from geom.Point2, wp routing.Waypoint, maxDistMM float32) bool {
	if wp.Backmode != 0 {
		return false
	}
	return geom.DistanceTo(from, geom.Point2{X: wp.X, Y: wp.Y}) <= maxDistMM
}
