package routing

import (
	"context"
	"sync/atomic"

	"github.com/rn1robotics/hostcore/pkg/logging"
	"github.com/rn1robotics/hostcore/pkg/pose"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
)

var log = logging.Component("routing")

// Request is the caller-set routing parameters (§4.4): destination plus the
// two behavior flags.
type Request struct {
	DestX, DestY  int32
	DontMapLidars bool
	NoTight       bool
}

// Result is the Coordinator's reply: either a populated route or
// no_route_found (§4.4).
type Result struct {
	NoRouteFound bool
	Route        RouteBuffer
}

// NavState receives the Coordinator's side effects on success/failure
// (§4.4): set/clear follow_route, route_pos, and the route-finished flag.
// Kept as a narrow interface so routing does not need to import navigation.
type NavState interface {
	BeginFollowing(route RouteBuffer)
	RouteNotFound()
}

// ClientNotifier emits the RouteMessage/IDLE info messages to any connected
// client (§4.4). Out of scope wire format; this is the seam.
type ClientNotifier interface {
	RouteMessage(route RouteBuffer)
	IdleMessage()
}

// LidarHistory supplies the last four accepted lidar scans for the
// pre-route localization correction (§4.4).
type LidarHistory func() []worldmap.LidarScan

// Coordinator serializes routing requests: exactly one request may be in
// flight at a time (§4.4). Grounded on the channel-as-mutex idiom the
// teacher uses for its pipeline step scheduling (x/robotics/pipeline):
// a buffered channel of size 1 stands in for the mutex+condvar pair, and
// the requester blocks until it holds the token, then plans the route
// itself before handing the token back.
type Coordinator struct {
	planner *Planner
	poses   *pose.Service
	world   *worldmap.WorldMap

	lastFour LidarHistory
	nav      NavState
	notify   ClientNotifier

	slot chan struct{} // single-in-flight token

	idCnt int32 // route counter; nextIDCnt folds it into an id_cnt in [1,7]

	active          atomic.Bool
	clientConnected atomic.Bool
}

// NewCoordinator builds a Coordinator over the given planner/pose/world.
func NewCoordinator(planner *Planner, poses *pose.Service, world *worldmap.WorldMap, lastFour LidarHistory, nav NavState, notify ClientNotifier) *Coordinator {
	c := &Coordinator{
		planner:  planner,
		poses:    poses,
		world:    world,
		lastFour: lastFour,
		nav:      nav,
		notify:   notify,
		slot:     make(chan struct{}, 1),
		idCnt:    1,
	}
	c.slot <- struct{}{}
	return c
}

// SetClientConnected records whether a client is currently attached, read
// by the Mapping Engine for its sync cadence (§4.3 item 6).
func (c *Coordinator) SetClientConnected(connected bool) { c.clientConnected.Store(connected) }

// ClientConnected implements mapping.RouteStatus.
func (c *Coordinator) ClientConnected() bool { return c.clientConnected.Load() }

// RouteActive implements mapping.RouteStatus.
func (c *Coordinator) RouteActive() bool { return c.active.Load() }

// RegenRoutingPages implements mapping.RouteStatus: regenerates the 3x3
// routing pages around a 3D-ToF batch center when a route is active (§4.1
// invariant).
func (c *Coordinator) RegenRoutingPages(centerX, centerY int32) {
	coord, _, _ := worldmap.MMToPage(centerX, centerY)
	for dy := int32(-1); dy <= 1; dy++ {
		for dx := int32(-1); dx <= 1; dx++ {
			c.world.GenRoutingPage(coord.X+dx, coord.Y+dy, true)
		}
	}
}

// Request plans a route to req's destination, blocking the caller until the
// single in-flight slot is available and the plan completes.
func (c *Coordinator) Request(ctx context.Context, req Request) (Result, error) {
	select {
	case <-c.slot:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	defer func() { c.slot <- struct{}{} }()

	if !req.DontMapLidars && c.lastFour != nil {
		scans := c.lastFour()
		if len(scans) > 0 {
			dAng, dx, dy := c.world.MapLidars(scans)
			newID := c.poses.Correct(dAng.Scale(0.5), dx/2, dy/2)
			_ = newID
		}
	}

	curPose, _ := c.poses.Current()
	c.world.EnsureRegionFor(req.DestX, req.DestY)
	path := c.planner.FindPath(curPose.X, curPose.Y, req.DestX, req.DestY, req.NoTight)

	if len(path) == 0 {
		c.active.Store(false)
		if c.nav != nil {
			c.nav.RouteNotFound()
		}
		if c.notify != nil {
			c.notify.IdleMessage()
		}
		log.Info().Int32("dest_x", req.DestX).Int32("dest_y", req.DestY).Msg("no_route_found")
		return Result{NoRouteFound: true}, nil
	}

	id := c.nextIDCnt()
	route := BuildRouteBuffer(path, id)

	c.active.Store(true)
	if c.nav != nil {
		c.nav.BeginFollowing(route)
	}
	if c.notify != nil {
		c.notify.RouteMessage(route)
	}
	log.Info().Int("waypoints", len(route.Waypoints)).Int("id_cnt", id).Msg("route_found")
	return Result{Route: route}, nil
}

// nextIDCnt returns the next route id_cnt in [1,7] (§4.4). Only ever called
// while holding the single-in-flight slot, so no extra synchronization is
// needed beyond the atomic counter itself.
func (c *Coordinator) nextIDCnt() int {
	n := int(atomic.AddInt32(&c.idCnt, 1))
	return ((n - 1) % 7) + 1
}
