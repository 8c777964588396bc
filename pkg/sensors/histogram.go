package sensors

import (
	"context"
	"sync/atomic"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/mapping"
)

// Obstacle distance bands, in millimeters ahead of the robot, used to
// bucket each 3D-ToF frame into the near/mid/far histogram the mapping
// engine's speed-limit derivation reads (§4.3 item 2). Exact heuristic is
// out of scope (§1); these thresholds only need to split "close", "medium",
// and "far" obstacles plausibly.
const (
	nearBandMM = 400
	midBandMM  = 1000
	farBandMM  = 2200
)

// HistogramTracker wraps a TofSource, bucketing each frame's obstacle
// points into an ObstacleHistogram as they pass through, so the mapping
// engine can read a running histogram without a second consumer racing the
// Intake's own drain of the Tofs channel.
type HistogramTracker struct {
	source TofSource

	near, mid, far atomic.Int64
}

// WrapTofSource builds a HistogramTracker around an existing TofSource.
func WrapTofSource(source TofSource) *HistogramTracker {
	return &HistogramTracker{source: source}
}

// ReadFrame implements TofSource, updating the running histogram before
// returning the frame unchanged.
func (h *HistogramTracker) ReadFrame(ctx context.Context) ([]geom.Point2, error) {
	obstacles, err := h.source.ReadFrame(ctx)
	if err != nil {
		return nil, err
	}
	h.bucket(obstacles)
	return obstacles, nil
}

func (h *HistogramTracker) bucket(obstacles []geom.Point2) {
	var near, mid, far int64
	origin := geom.Point2{}
	for _, o := range obstacles {
		dist := geom.DistanceTo(origin, o)
		switch {
		case dist <= nearBandMM:
			near++
		case dist <= midBandMM:
			mid++
		case dist <= farBandMM:
			far++
		}
	}
	h.near.Store(near)
	h.mid.Store(mid)
	h.far.Store(far)
}

// Histogram implements mapping.ToFSampler.
func (h *HistogramTracker) Histogram() mapping.ObstacleHistogram {
	return mapping.ObstacleHistogram{
		Near: int(h.near.Load()),
		Mid:  int(h.mid.Load()),
		Far:  int(h.far.Load()),
	}
}

// Close releases the wrapped source.
func (h *HistogramTracker) Close() error { return h.source.Close() }
