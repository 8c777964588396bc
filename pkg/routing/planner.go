package routing

import (
	"container/heap"

	"github.com/chewxy/math32"
	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
)

// Planner finds a path between two world-frame points. Grounded on the
// teacher's x/math/grid A* (4/8-directional grid search, Euclidean
// heuristic), adapted to query WorldMap.IsOccupied directly instead of a
// dense matrix so the search always reflects the live map (§4.1).
type Planner struct {
	world         *worldmap.WorldMap
	allowDiagonal bool
}

// NewPlanner builds a Planner over the given world map.
func NewPlanner(world *worldmap.WorldMap) *Planner {
	return &Planner{world: world, allowDiagonal: true}
}

type cell struct{ x, y int32 }

type searchNode struct {
	c          cell
	g, f       float32
	parent     *searchNode
	heapIndex  int
}

type openSet []*searchNode

func (o openSet) Len() int            { return len(o) }
func (o openSet) Less(i, j int) bool  { return o[i].f < o[j].f }
func (o openSet) Swap(i, j int) {
	o[i], o[j] = o[j], o[i]
	o[i].heapIndex, o[j].heapIndex = i, j
}
func (o *openSet) Push(x any) {
	n := x.(*searchNode)
	n.heapIndex = len(*o)
	*o = append(*o, n)
}
func (o *openSet) Pop() any {
	old := *o
	n := len(old)
	item := old[n-1]
	*o = old[:n-1]
	return item
}

// FindPath runs A* from (startX,startY) to (goalX,goalY), both in
// world-frame millimeters, and returns a world-frame waypoint path. Returns
// nil if no path exists (no_route_found, §4.4).
func (p *Planner) FindPath(startX, startY, goalX, goalY int32, noTight bool) []geom.Point2 {
	startCell := toCell(startX, startY)
	goalCell := toCell(goalX, goalY)

	if p.occupiedCell(goalCell) {
		return nil
	}

	open := &openSet{}
	heap.Init(open)
	start := &searchNode{c: startCell, g: 0, f: heuristic(startCell, goalCell)}
	heap.Push(open, start)

	visited := map[cell]*searchNode{startCell: start}
	closed := map[cell]bool{}

	const maxExpansions = 20000
	expansions := 0

	for open.Len() > 0 {
		expansions++
		if expansions > maxExpansions {
			return nil
		}
		cur := heap.Pop(open).(*searchNode)
		if cur.c == goalCell {
			return p.reconstruct(cur)
		}
		closed[cur.c] = true

		for _, nb := range p.neighbors(cur.c, noTight) {
			if closed[nb] {
				continue
			}
			step := float32(1.0)
			if nb.x != cur.c.x && nb.y != cur.c.y {
				step = math32.Sqrt2
			}
			g := cur.g + step
			existing, ok := visited[nb]
			if ok && g >= existing.g {
				continue
			}
			if !ok {
				existing = &searchNode{c: nb}
				visited[nb] = existing
				heap.Push(open, existing)
			}
			existing.g = g
			existing.f = g + heuristic(nb, goalCell)
			existing.parent = cur
			heap.Fix(open, existing.heapIndex)
		}
	}
	return nil
}

func (p *Planner) neighbors(c cell, noTight bool) []cell {
	deltas := [][2]int32{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	if p.allowDiagonal {
		deltas = append(deltas, [2]int32{1, 1}, [2]int32{1, -1}, [2]int32{-1, 1}, [2]int32{-1, -1})
	}
	out := make([]cell, 0, len(deltas))
	for _, d := range deltas {
		nb := cell{x: c.x + d[0], y: c.y + d[1]}
		if p.occupiedCell(nb) {
			continue
		}
		if noTight && p.nearObstacle(nb) {
			continue
		}
		out = append(out, nb)
	}
	return out
}

// nearObstacle checks the 8 neighbors for occupancy, used by no_tight to
// keep the path a cell away from walls (§4.4 dest_x/dest_y no_tight flag).
func (p *Planner) nearObstacle(c cell) bool {
	for dy := int32(-1); dy <= 1; dy++ {
		for dx := int32(-1); dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if p.occupiedCell(cell{x: c.x + dx, y: c.y + dy}) {
				return true
			}
		}
	}
	return false
}

func (p *Planner) occupiedCell(c cell) bool {
	x, y := fromCell(c)
	return p.world.IsOccupied(x, y)
}

func (p *Planner) reconstruct(n *searchNode) []geom.Point2 {
	var cells []cell
	for cur := n; cur != nil; cur = cur.parent {
		cells = append(cells, cur.c)
	}
	path := make([]geom.Point2, len(cells))
	for i, c := range cells {
		x, y := fromCell(c)
		path[len(cells)-1-i] = geom.Point2{X: x, Y: y}
	}
	return path
}

func heuristic(a, b cell) float32 {
	dx := float32(b.x - a.x)
	dy := float32(b.y - a.y)
	return math32.Sqrt(dx*dx + dy*dy)
}

func toCell(x, y int32) cell {
	return cell{x: x / worldmap.CellMM, y: y / worldmap.CellMM}
}

func fromCell(c cell) (x, y int32) {
	return c.x * worldmap.CellMM, c.y * worldmap.CellMM
}
