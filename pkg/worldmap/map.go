// Package worldmap implements the World Store (spec.md §4.1): the paged 2D
// occupancy map plus the sonar/collision/lidar/3D-ToF update primitives and
// the scan-matching pose correction.
//
// The original C source left the map entirely unprotected under concurrent
// access (spec.md §9). Here it is modeled as a shared resource behind a
// single sync.RWMutex: readers (routing's planner, navigation's line-of-
// sight checks) take RLock, and writers (the Mapping Engine, constraint
// commands, region loading) take Lock.
package worldmap

import (
	"errors"
	"sync"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/logging"
	"github.com/rn1robotics/hostcore/pkg/pose"
)

var log = logging.Component("worldmap")

// ErrPageNotResident is returned when an operation needs a page outside the
// currently loaded 5x5 window and the caller did not load it first.
var ErrPageNotResident = errors.New("worldmap: page not resident")

// Persistence is the out-of-scope external collaborator for map page
// storage (spec.md §1 Out of scope, §6 Persisted files). Any format is
// acceptable; the core only needs Load/Save per page.
type Persistence interface {
	LoadPage(coord PageCoord) (*Page, bool)
	SavePage(p *Page) error
}

// nullPersistence is used when no Persistence is configured; pages are
// created empty and never saved.
type nullPersistence struct{}

func (nullPersistence) LoadPage(PageCoord) (*Page, bool) { return nil, false }
func (nullPersistence) SavePage(*Page) error             { return nil }

// WorldMap is the process-wide paged occupancy map.
type WorldMap struct {
	mu    sync.RWMutex
	pages map[PageCoord]*Page
	robot PageCoord

	persist Persistence
}

// New creates an empty WorldMap. persist may be nil to use an in-memory-only
// null implementation.
func New(persist Persistence) *WorldMap {
	if persist == nil {
		persist = nullPersistence{}
	}
	return &WorldMap{
		pages:   make(map[PageCoord]*Page),
		persist: persist,
	}
}

// LoadRegion ensures the 5x5 window of pages around (px,py) is resident.
// Idempotent (§4.1).
func (w *WorldMap) LoadRegion(px, py int32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.robot = PageCoord{X: px, Y: py}
	half := int32(ResidentWindow / 2)
	for dx := -half; dx <= half; dx++ {
		for dy := -half; dy <= half; dy++ {
			c := PageCoord{X: px + dx, Y: py + dy}
			w.ensurePageLocked(c)
		}
	}
}

func (w *WorldMap) ensurePageLocked(c PageCoord) *Page {
	if p, ok := w.pages[c]; ok {
		return p
	}
	if p, ok := w.persist.LoadPage(c); ok {
		w.pages[c] = p
		return p
	}
	p := newPage(c)
	w.pages[c] = p
	return p
}

// Resident reports whether the page at (px,py) is currently loaded.
func (w *WorldMap) Resident(px, py int32) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.pages[PageCoord{X: px, Y: py}]
	return ok
}

// EnsureRegionFor loads the 5x5 window around the page containing the
// world-frame point (x,y) in millimeters, used before planning a route whose
// goal page is not yet resident (§4.1 invariant: goal region must be loaded
// before planning).
func (w *WorldMap) EnsureRegionFor(x, y int32) {
	center, _, _ := MMToPage(x, y)
	w.mu.Lock()
	defer w.mu.Unlock()
	half := int32(ResidentWindow / 2)
	for dx := -half; dx <= half; dx++ {
		for dy := -half; dy <= half; dy++ {
			w.ensurePageLocked(PageCoord{X: center.X + dx, Y: center.Y + dy})
		}
	}
}

// UnloadFar syncs and frees pages outside the 5x5 window around (px,py).
func (w *WorldMap) UnloadFar(px, py int32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	half := int32(ResidentWindow / 2)
	for c, p := range w.pages {
		if c == (PageCoord{X: px, Y: py}) {
			continue
		}
		if abs32(c.X-px) <= half && abs32(c.Y-py) <= half {
			continue
		}
		if p.dirty {
			if err := w.persist.SavePage(p); err != nil {
				log.Warn().Err(err).Int32("px", c.X).Int32("py", c.Y).Msg("page sync failed")
			}
		}
		delete(w.pages, c)
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// IsOccupied reports whether the occupancy cell at world coordinate (x,y) is
// marked occupied. Returns true (blocked) for non-resident pages so routing
// and line-of-sight checks fail closed rather than planning through unknown
// space.
func (w *WorldMap) IsOccupied(x, y int32) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	coord, cx, cy := MMToPage(x, y)
	p, ok := w.pages[coord]
	if !ok {
		return true
	}
	return p.Occupancy[cy][cx] != 0 || p.Collision[cy][cx] != 0
}

// MapSonars inserts sonar hits as occupancy into their resident pages
// (§4.1 map_sonars).
func (w *WorldMap) MapSonars(pts []SonarPoint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range pts {
		wp := s.WorldPoint()
		w.markOccupiedLocked(wp.X, wp.Y)
	}
}

func (w *WorldMap) markOccupiedLocked(x, y int32) {
	coord, cx, cy := MMToPage(x, y)
	p, ok := w.pages[coord]
	if !ok {
		return
	}
	p.Occupancy[cy][cx] = 1
	p.dirty = true
}

// MapCollisionObstacle records a bump/impact-sensor obstacle at the given
// world pose (§4.1 map_collision_obstacle). reason and the xcel fields are
// carried for diagnostics/telemetry only; they do not change how the cell is
// marked.
func (w *WorldMap) MapCollisionObstacle(ang geom.Angle, x, y int32, reason string, xcelValid bool, xcelAng geom.Angle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	coord, cx, cy := MMToPage(x, y)
	p, ok := w.pages[coord]
	if !ok {
		return
	}
	p.Collision[cy][cx] = 1
	p.dirty = true
	log.Debug().Str("reason", reason).Int32("x", x).Int32("y", y).Bool("xcel_valid", xcelValid).Msg("collision obstacle")
}

// ClearWithinRobot clears the collision cells within one cell radius of the
// given pose; occupancy cells are left as they are. Per §4.1 this must run exactly once per accepted lidar
// frame when collision mapping is enabled; that call-once discipline is the
// mapping engine's responsibility, not this method's.
func (w *WorldMap) ClearWithinRobot(p pose.Pose) {
	w.mu.Lock()
	defer w.mu.Unlock()
	coord, cx, cy := MMToPage(p.X, p.Y)
	pg, ok := w.pages[coord]
	if !ok {
		return
	}
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			x, y := int(cx)+dx, int(cy)+dy
			if x < 0 || y < 0 || x >= PageSize || y >= PageSize {
				continue
			}
			pg.Collision[y][x] = 0
		}
	}
	pg.dirty = true
}

// AddConstraint marks a 5x5 tile block (40mm spacing) around the point as a
// manual no-go constraint (CR_ADDCONSTRAINT, §6).
func (w *WorldMap) AddConstraint(x, y int32) {
	w.setConstraintBlock(x, y, 1)
}

// RemoveConstraint clears the 5x5 tile block (CR_REMCONSTRAINT, §6).
func (w *WorldMap) RemoveConstraint(x, y int32) {
	w.setConstraintBlock(x, y, 0)
}

func (w *WorldMap) setConstraintBlock(x, y int32, val uint8) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dy := int32(-2); dy <= 2; dy++ {
		for dx := int32(-2); dx <= 2; dx++ {
			wx := x + dx*CellMM
			wy := y + dy*CellMM
			coord, cx, cy := MMToPage(wx, wy)
			p, ok := w.pages[coord]
			if !ok {
				continue
			}
			p.Collision[cy][cx] = val
			p.dirty = true
		}
	}
}

// GenRoutingPage regenerates routing metadata for a page. force bypasses the
// "already generated" shortcut. The 3x3 regeneration around a 3D-ToF batch
// center, and the routing-page invariant that it only matters while a route
// is active, are the mapping engine's responsibility to invoke correctly;
// this method just performs the (idempotent unless forced) regeneration.
func (w *WorldMap) GenRoutingPage(px, py int32, force bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := PageCoord{X: px, Y: py}
	p, ok := w.pages[c]
	if !ok {
		return
	}
	if p.RoutingGen && !force {
		return
	}
	p.RoutingGen = true
}

// MapTof inserts a batch of 3D-ToF obstacle projections and returns the
// integer-mean capture pose (mid_x, mid_y) used to decide which 3x3 routing
// pages must be regenerated (§4.1 invariant, §12 supplemented detail from
// original_source/rn1host.c).
func (w *WorldMap) MapTof(batch []TofFrame) (midX, midY int32) {
	if len(batch) == 0 {
		return 0, 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	var sumX, sumY int64
	for _, f := range batch {
		sumX += int64(f.Pose.X)
		sumY += int64(f.Pose.Y)
		for _, o := range f.Obstacles {
			w.markOccupiedLocked(o.X, o.Y)
		}
	}
	return int32(sumX / int64(len(batch))), int32(sumY / int64(len(batch)))
}
