package sensors

import (
	"context"

	"github.com/rn1robotics/hostcore/pkg/logging"
	"github.com/rn1robotics/hostcore/pkg/pose"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
)

var log = logging.Component("sensors")

// Intake polls the lidar/tof/sonar sources and publishes pose-tagged frames
// for the mapping engine to consume. It owns no map/pose state itself -
// tagging a frame only reads the current (pose, corrID) pair, it never
// mutates it (§4.1/§4.2 separation of concerns).
type Intake struct {
	poses *pose.Service

	significant LidarSource
	basic       LidarSource
	tof         TofSource
	sonar       SonarSource

	Lidars chan worldmap.LidarScan
	Tofs   chan worldmap.TofFrame
	Sonars chan worldmap.SonarPoint
}

// Config selects which sources are wired up; nil sources are skipped.
type Config struct {
	Significant LidarSource
	Basic       LidarSource
	Tof         TofSource
	Sonar       SonarSource
}

// NewIntake builds an Intake against the given pose service and sources.
func NewIntake(poses *pose.Service, cfg Config) *Intake {
	return &Intake{
		poses:       poses,
		significant: cfg.Significant,
		basic:       cfg.Basic,
		tof:         cfg.Tof,
		sonar:       cfg.Sonar,
		Lidars:      make(chan worldmap.LidarScan, 4),
		Tofs:        make(chan worldmap.TofFrame, 4),
		Sonars:      make(chan worldmap.SonarPoint, 16),
	}
}

// Run polls every configured source concurrently until ctx is done, then
// closes all output channels.
func (in *Intake) Run(ctx context.Context) error {
	defer close(in.Lidars)
	defer close(in.Tofs)
	defer close(in.Sonars)

	done := make(chan struct{})
	active := 0
	if in.significant != nil || in.basic != nil {
		active++
		go in.pollLidar(ctx, done)
	}
	if in.tof != nil {
		active++
		go in.pollTof(ctx, done)
	}
	if in.sonar != nil {
		active++
		go in.pollSonar(ctx, done)
	}
	for i := 0; i < active; i++ {
		<-done
	}
	return ctx.Err()
}

func (in *Intake) pollLidar(ctx context.Context, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		var sig, bas []worldmap.LidarPoint
		if in.significant != nil {
			pts, err := in.significant.ReadScan(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Msg("significant lidar read failed")
				continue
			}
			sig = pts
		}
		if in.basic != nil {
			pts, err := in.basic.ReadScan(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Msg("basic lidar read failed")
			} else {
				bas = pts
			}
		}
		p, corrID := in.poses.Current()
		scan := worldmap.LidarScan{Pose: p, CorrID: corrID, Points: MergeLidarChannels(sig, bas)}
		select {
		case in.Lidars <- scan:
		case <-ctx.Done():
			return
		}
	}
}

func (in *Intake) pollTof(ctx context.Context, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		obstacles, err := in.tof.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("tof read failed")
			continue
		}
		p, corrID := in.poses.Current()
		frame := worldmap.TofFrame{Pose: p, CorrID: corrID, Obstacles: obstacles}
		select {
		case in.Tofs <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func (in *Intake) pollSonar(ctx context.Context, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		readings, err := in.sonar.ReadRing(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("sonar read failed")
			continue
		}
		p, _ := in.poses.Current()
		for _, r := range readings {
			sp := worldmap.SonarPoint{Pose: p, Angle: r.Angle, DistMM: r.DistMM}
			select {
			case in.Sonars <- sp:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close releases any wired sources.
func (in *Intake) Close() {
	for _, c := range []interface{ Close() error }{in.significant, in.basic, in.tof, in.sonar} {
		if c != nil {
			_ = c.Close()
		}
	}
}
