package sensors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/pose"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeLidarChannelsPrefersSignificant(t *testing.T) {
	sig := []worldmap.LidarPoint{{Angle: 0, DistMM: 1000}}
	bas := []worldmap.LidarPoint{{Angle: 0, DistMM: 5000}, {Angle: geom.FromDegrees(90), DistMM: 2000}}
	merged := MergeLidarChannels(sig, bas)
	require.Len(t, merged, 2)
	assert.Equal(t, int32(1000), merged[0].DistMM)
}

func TestMergeLidarChannelsFallsBackWhenSignificantEmpty(t *testing.T) {
	bas := []worldmap.LidarPoint{{Angle: 0, DistMM: 5000}}
	merged := MergeLidarChannels(nil, bas)
	assert.Equal(t, bas, merged)
}

type fakeLidarSource struct {
	scans [][]worldmap.LidarPoint
	i     int
}

func (f *fakeLidarSource) ReadScan(ctx context.Context) ([]worldmap.LidarPoint, error) {
	if f.i >= len(f.scans) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s := f.scans[f.i]
	f.i++
	return s, nil
}
func (f *fakeLidarSource) Close() error { return nil }

type erroringTofSource struct{}

func (erroringTofSource) ReadFrame(ctx context.Context) ([]geom.Point2, error) {
	<-ctx.Done()
	return nil, errors.New("done")
}
func (erroringTofSource) Close() error { return nil }

func TestIntakeRunPublishesLidarScanWithTaggedPose(t *testing.T) {
	poses := pose.NewService()
	poses.SetRobotPos(0, 500, 500)

	src := &fakeLidarSource{scans: [][]worldmap.LidarPoint{{{Angle: 0, DistMM: 1000}}}}
	in := NewIntake(poses, Config{Significant: src})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- in.Run(ctx) }()

	select {
	case scan := <-in.Lidars:
		assert.Equal(t, int32(500), scan.Pose.X)
		assert.Equal(t, int32(500), scan.Pose.Y)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for lidar scan")
	}
	cancel()
	<-errCh
}

func TestIntakeRunClosesChannelsOnContextDone(t *testing.T) {
	poses := pose.NewService()
	in := NewIntake(poses, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, in.Run(ctx))
	_, ok := <-in.Lidars
	assert.False(t, ok)
}
