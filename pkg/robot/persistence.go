package robot

import (
	"fmt"
	"os"
	"strings"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/navigation"
)

// FilePersistence implements dispatch.Persistence against the flat text
// files the operator console's save/load keys read and write (§6: "Persisted
// files - robot_pos.txt 'ang x y', charger_pos.txt 'first_x first_y
// second_x second_y ang fwd'"). Both formats store the fixed-point angle's
// raw int32 wire value so a save-then-load round trip is exact (§8 testable
// property).
type FilePersistence struct {
	RobotPosPath   string
	ChargerPosPath string
}

// SaveRobotPos writes robot_pos.txt.
func (p FilePersistence) SaveRobotPos(ang geom.Angle, x, y int32) error {
	line := fmt.Sprintf("%d %d %d\n", int32(ang), x, y)
	if err := os.WriteFile(p.RobotPosPath, []byte(line), 0o644); err != nil {
		return fmt.Errorf("robot: save robot_pos: %w", err)
	}
	return nil
}

// LoadRobotPos reads robot_pos.txt.
func (p FilePersistence) LoadRobotPos() (ang geom.Angle, x, y int32, err error) {
	fields, err := readFields(p.RobotPosPath, 3)
	if err != nil {
		return 0, 0, 0, err
	}
	var a, px, py int32
	if _, err := fmt.Sscanf(fields, "%d %d %d", &a, &px, &py); err != nil {
		return 0, 0, 0, fmt.Errorf("robot: parse robot_pos: %w", err)
	}
	return geom.Angle(a), px, py, nil
}

// SaveChargerPos writes charger_pos.txt.
func (p FilePersistence) SaveChargerPos(dock navigation.ChargerPose) error {
	line := fmt.Sprintf("%d %d %d %d %d %d\n",
		dock.FirstX, dock.FirstY, dock.SecondX, dock.SecondY, int32(dock.Ang), dock.FwdMM)
	if err := os.WriteFile(p.ChargerPosPath, []byte(line), 0o644); err != nil {
		return fmt.Errorf("robot: save charger_pos: %w", err)
	}
	return nil
}

// LoadChargerPos reads charger_pos.txt.
func (p FilePersistence) LoadChargerPos() (navigation.ChargerPose, error) {
	fields, err := readFields(p.ChargerPosPath, 6)
	if err != nil {
		return navigation.ChargerPose{}, err
	}
	var fx, fy, sx, sy, ang, fwd int32
	if _, err := fmt.Sscanf(fields, "%d %d %d %d %d %d", &fx, &fy, &sx, &sy, &ang, &fwd); err != nil {
		return navigation.ChargerPose{}, fmt.Errorf("robot: parse charger_pos: %w", err)
	}
	return navigation.ChargerPose{
		FirstX: fx, FirstY: fy,
		SecondX: sx, SecondY: sy,
		Ang: geom.Angle(ang), FwdMM: fwd,
	}, nil
}

func readFields(path string, minFields int) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("robot: read %s: %w", path, err)
	}
	line := strings.TrimSpace(string(b))
	if len(strings.Fields(line)) < minFields {
		return "", fmt.Errorf("robot: %s: expected %d fields, got %q", path, minFields, line)
	}
	return line, nil
}
