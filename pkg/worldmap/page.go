package worldmap

// PageSize is the edge length, in grid cells, of one map page. Each cell
// covers CellMM millimeters, so a page covers PageSize*CellMM millimeters.
const (
	PageSize = 64
	CellMM   = 40
	// ResidentWindow is the odd window size (5x5) kept loaded around the
	// robot's current page (§3 WorldMap invariant).
	ResidentWindow = 5
)

// PageCoord indexes a page by its integer grid coordinates.
type PageCoord struct {
	X, Y int32
}

// Obstacle3D is a 3D-ToF-derived obstacle cell projected into the page.
type Obstacle3D struct {
	X, Y int32
}

// Page holds one resident tile of the world map: 2D occupancy (lidar),
// collision markers (bump/impact), and 3D-projected obstacles (ToF).
type Page struct {
	Coord      PageCoord
	Occupancy  [PageSize][PageSize]uint8
	Collision  [PageSize][PageSize]uint8
	Obstacles3D []Obstacle3D
	RoutingGen  bool // true once a routing page has been generated for this tile
	dirty      bool
}

func newPage(coord PageCoord) *Page {
	return &Page{Coord: coord}
}

// MMToPage converts a millimeter world coordinate to the page that contains
// it plus the cell offset within that page.
func MMToPage(x, y int32) (coord PageCoord, cellX, cellY int32) {
	pageMM := int32(PageSize * CellMM)
	px := floorDiv(x, pageMM)
	py := floorDiv(y, pageMM)
	ox := x - px*pageMM
	oy := y - py*pageMM
	return PageCoord{X: px, Y: py}, ox / CellMM, oy / CellMM
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
