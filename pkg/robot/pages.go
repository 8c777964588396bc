package robot

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rn1robotics/hostcore/pkg/worldmap"
)

// FilePagePersistence implements worldmap.Persistence, storing each map page
// as its own gob-encoded file under Dir, named by its page coordinate. No
// third-party serializer in the retrieval pack targets fixed-size occupancy
// grids specifically (the pack's marshaller abstraction is built around
// proto/json/yaml document shapes); gob is the stdlib's own answer for
// exactly this case and needs no schema.
type FilePagePersistence struct {
	Dir string
}

type encodedPage struct {
	Coord       worldmap.PageCoord
	Occupancy   [worldmap.PageSize][worldmap.PageSize]uint8
	Collision   [worldmap.PageSize][worldmap.PageSize]uint8
	Obstacles3D []worldmap.Obstacle3D
	RoutingGen  bool
}

func (fp FilePagePersistence) path(c worldmap.PageCoord) string {
	return filepath.Join(fp.Dir, fmt.Sprintf("page_%d_%d.gob", c.X, c.Y))
}

// LoadPage implements worldmap.Persistence.
func (fp FilePagePersistence) LoadPage(coord worldmap.PageCoord) (*worldmap.Page, bool) {
	f, err := os.Open(fp.path(coord))
	if err != nil {
		return nil, false
	}
	defer f.Close()

	var enc encodedPage
	if err := gob.NewDecoder(f).Decode(&enc); err != nil {
		log.Warn().Err(err).Str("path", fp.path(coord)).Msg("discarding corrupt page file")
		return nil, false
	}
	return &worldmap.Page{
		Coord:       enc.Coord,
		Occupancy:   enc.Occupancy,
		Collision:   enc.Collision,
		Obstacles3D: enc.Obstacles3D,
		RoutingGen:  enc.RoutingGen,
	}, true
}

// SavePage implements worldmap.Persistence.
func (fp FilePagePersistence) SavePage(p *worldmap.Page) error {
	if err := os.MkdirAll(fp.Dir, 0o755); err != nil {
		return fmt.Errorf("robot: page dir: %w", err)
	}
	f, err := os.Create(fp.path(p.Coord))
	if err != nil {
		return fmt.Errorf("robot: create page file: %w", err)
	}
	defer f.Close()

	enc := encodedPage{
		Coord:       p.Coord,
		Occupancy:   p.Occupancy,
		Collision:   p.Collision,
		Obstacles3D: p.Obstacles3D,
		RoutingGen:  p.RoutingGen,
	}
	if err := gob.NewEncoder(f).Encode(enc); err != nil {
		return fmt.Errorf("robot: encode page: %w", err)
	}
	return nil
}
