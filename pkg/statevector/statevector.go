// Package statevector holds the StateVector described in spec.md §3: a set
// of flags mutated by the Command Dispatcher and read by every worker.
//
// Per spec.md §5/§9, scalar state-vector flags are reimplemented as atomics
// rather than sharing a struct behind a single mutex, since every flag is
// read far more often than it is written and readers never need a
// consistent snapshot across multiple flags.
package statevector

import "sync/atomic"

// CommandSource enumerates who currently owns command issuance.
type CommandSource int32

const (
	// IDLE means no command source is actively driving the robot.
	IDLE CommandSource = iota
	// USER means a client/operator command is in control.
	USER
	// AUTONOMOUS means the autonomous-exploration loop is in control.
	AUTONOMOUS
)

// StateVector is the set of atomic flags read by Mapping, Routing, and
// Navigation, and written by the Command Dispatcher.
type StateVector struct {
	loca2D             atomic.Bool
	loca3D             atomic.Bool
	mapping2D          atomic.Bool
	mapping3D          atomic.Bool
	mappingCollisions  atomic.Bool
	keepPosition       atomic.Bool
	bigSearchArea      atomic.Int32 // 0, 1, or 2
	commandSource      atomic.Int32
	verbose            atomic.Bool
}

// New returns a StateVector with the defaults used at boot: 2D mapping and
// 2D localization on, 3D mapping, 3D localization and collision mapping off,
// keep_position on, command source idle.
func New() *StateVector {
	sv := &StateVector{}
	sv.loca2D.Store(true)
	sv.mapping2D.Store(true)
	sv.keepPosition.Store(true)
	sv.commandSource.Store(int32(IDLE))
	return sv
}

func (sv *StateVector) Loca2D() bool            { return sv.loca2D.Load() }
func (sv *StateVector) SetLoca2D(v bool)        { sv.loca2D.Store(v) }
func (sv *StateVector) Loca3D() bool            { return sv.loca3D.Load() }
func (sv *StateVector) SetLoca3D(v bool)        { sv.loca3D.Store(v) }
func (sv *StateVector) Mapping2D() bool         { return sv.mapping2D.Load() }
func (sv *StateVector) SetMapping2D(v bool)     { sv.mapping2D.Store(v) }
func (sv *StateVector) Mapping3D() bool         { return sv.mapping3D.Load() }
func (sv *StateVector) SetMapping3D(v bool)     { sv.mapping3D.Store(v) }
func (sv *StateVector) MappingCollisions() bool { return sv.mappingCollisions.Load() }
func (sv *StateVector) SetMappingCollisions(v bool) {
	sv.mappingCollisions.Store(v)
}
func (sv *StateVector) Verbose() bool     { return sv.verbose.Load() }
func (sv *StateVector) SetVerbose(v bool) { sv.verbose.Store(v) }

// KeepPosition reports whether the MCU should hold motor position. SetKeepPosition
// returns the previous value so callers can detect the false transition that
// releases motors (§4.3 item 7).
func (sv *StateVector) KeepPosition() bool { return sv.keepPosition.Load() }
func (sv *StateVector) SetKeepPosition(v bool) (previous bool) {
	return sv.keepPosition.Swap(v)
}

// BigSearchArea is localize_with_big_search_area, in {0,1,2} (§3).
func (sv *StateVector) BigSearchArea() int32 { return sv.bigSearchArea.Load() }
func (sv *StateVector) SetBigSearchArea(v int32) {
	if v < 0 {
		v = 0
	}
	if v > 2 {
		v = 2
	}
	sv.bigSearchArea.Store(v)
}

// CommandSource returns the current command source. SetCommandSource returns
// the previous value; the mapping engine detects the IDLE/USER -> AUTONOMOUS
// transition (§4.3 item 7) by comparing successive CommandSource reads.
func (sv *StateVector) CommandSource() CommandSource {
	return CommandSource(sv.commandSource.Load())
}
func (sv *StateVector) SetCommandSource(v CommandSource) (previous CommandSource) {
	return CommandSource(sv.commandSource.Swap(int32(v)))
}
