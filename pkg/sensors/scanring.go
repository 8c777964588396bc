package sensors

import (
	"sync"

	"github.com/rn1robotics/hostcore/pkg/worldmap"
)

// scanRingSize is the "last four accepted lidar scans" window the Routing
// Coordinator and the Charger FSM both read before a scan-match correction
// (§4.4, §4.5.4 stage 3).
const scanRingSize = 4

// ScanRing keeps the most recent accepted lidar scans, fed by TeeScans as
// they flow from Intake toward the mapping engine.
type ScanRing struct {
	mu    sync.Mutex
	scans []worldmap.LidarScan
}

// NewScanRing builds an empty ring.
func NewScanRing() *ScanRing {
	return &ScanRing{scans: make([]worldmap.LidarScan, 0, scanRingSize)}
}

// Last returns a copy of the currently held scans, oldest first, implementing
// routing.LidarHistory and the charger FSM's lastFour collaborator.
func (r *ScanRing) Last() []worldmap.LidarScan {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]worldmap.LidarScan, len(r.scans))
	copy(out, r.scans)
	return out
}

func (r *ScanRing) push(scan worldmap.LidarScan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans = append(r.scans, scan)
	if len(r.scans) > scanRingSize {
		r.scans = r.scans[len(r.scans)-scanRingSize:]
	}
}

// TeeScans forwards every scan from in to the returned channel, recording
// each one into r first, so the mapping engine still sees every scan the
// intake produced while the ring builds the routing/charger lookback window.
func TeeScans(r *ScanRing, in <-chan worldmap.LidarScan) <-chan worldmap.LidarScan {
	out := make(chan worldmap.LidarScan, cap(in))
	go func() {
		defer close(out)
		for scan := range in {
			r.push(scan)
			out <- scan
		}
	}()
	return out
}
