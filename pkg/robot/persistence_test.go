package robot

import (
	"path/filepath"
	"testing"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/navigation"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePersistenceRobotPosRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := FilePersistence{RobotPosPath: filepath.Join(dir, "robot_pos.txt")}

	ang := geom.FromDegrees(123.5)
	require.NoError(t, p.SaveRobotPos(ang, -450, 6200))

	gotAng, x, y, err := p.LoadRobotPos()
	require.NoError(t, err)
	assert.Equal(t, ang, gotAng)
	assert.Equal(t, int32(-450), x)
	assert.Equal(t, int32(6200), y)
}

func TestFilePersistenceChargerPosRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := FilePersistence{ChargerPosPath: filepath.Join(dir, "charger_pos.txt")}

	dock := navigation.ChargerPose{
		FirstX: 100, FirstY: 200,
		SecondX: 300, SecondY: 400,
		Ang:   geom.FromDegrees(90),
		FwdMM: 250,
	}
	require.NoError(t, p.SaveChargerPos(dock))

	got, err := p.LoadChargerPos()
	require.NoError(t, err)
	assert.Equal(t, dock, got)
}

func TestFilePersistenceLoadMissingFileErrors(t *testing.T) {
	dir := t.TempDir()
	p := FilePersistence{RobotPosPath: filepath.Join(dir, "missing.txt")}
	_, _, _, err := p.LoadRobotPos()
	assert.Error(t, err)
}

func TestFilePagePersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fp := FilePagePersistence{Dir: dir}

	page := &worldmap.Page{
		Coord:      worldmap.PageCoord{X: 2, Y: -3},
		RoutingGen: true,
	}
	page.Occupancy[0][0] = 1
	page.Collision[1][2] = 1
	page.Obstacles3D = append(page.Obstacles3D, worldmap.Obstacle3D{X: 10, Y: 20})

	require.NoError(t, fp.SavePage(page))

	got, ok := fp.LoadPage(page.Coord)
	require.True(t, ok)
	assert.Equal(t, page.Coord, got.Coord)
	assert.Equal(t, page.Occupancy, got.Occupancy)
	assert.Equal(t, page.Collision, got.Collision)
	assert.Equal(t, page.Obstacles3D, got.Obstacles3D)
	assert.True(t, got.RoutingGen)
}

func TestFilePagePersistenceMissingPage(t *testing.T) {
	fp := FilePagePersistence{Dir: t.TempDir()}
	_, ok := fp.LoadPage(worldmap.PageCoord{X: 99, Y: 99})
	assert.False(t, ok)
}
