package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/rn1robotics/hostcore/pkg/motion"
	"github.com/rn1robotics/hostcore/pkg/navigation"
	"github.com/rn1robotics/hostcore/pkg/pose"
	"github.com/rn1robotics/hostcore/pkg/routing"
	"github.com/rn1robotics/hostcore/pkg/statevector"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeps() (*Deps, *motion.FakeLink) {
	link := motion.NewFakeLink(8)
	mc := motion.NewClient(link)
	poses := pose.NewService()
	world := worldmap.New(nil)
	world.LoadRegion(0, 0)
	sv := statevector.New()
	planner := routing.NewPlanner(world)
	navState := navigation.NewState()
	coord := routing.NewCoordinator(planner, poses, world, nil, navState, noopNotifier{})
	checker := navigation.NewObstacleChecker(world, poses, mc)
	recovery := navigation.NewRecovery(navState, mc, poses, world, navigation.NewRerouter(coord), nil)
	follow := navigation.NewFollowRoute(navState, mc, poses, world, checker, navigation.NewRerouter(coord), recovery)
	charger := navigation.NewChargerFSM(mc, poses, world, navigation.NewRerouter(coord), navigation.ChargerPose{}, nil)

	return &Deps{
		Motion:   mc,
		Poses:    poses,
		World:    world,
		State:    sv,
		Router:   coord,
		Nav:      navState,
		Follow:   follow,
		Recovery: recovery,
		Charger:  charger,
	}, link
}

type noopNotifier struct{}

func (noopNotifier) RouteMessage(routing.RouteBuffer) {}
func (noopNotifier) IdleMessage()                     {}

func TestDefaultPriorityMapping(t *testing.T) {
	assert.Equal(t, Priority{Rout: true, Nav: true}, defaultPriority(KindDest))
	assert.Equal(t, Priority{Rout: true, Nav: true}, defaultPriority(KindRoute))
	assert.Equal(t, Priority{Nav: true}, defaultPriority(KindCharge))
	assert.Equal(t, Priority{Map: true}, defaultPriority(KindAddConstraint))
	assert.Equal(t, Priority{Map: true, Rout: true, Nav: true}, defaultPriority(KindMode))
	assert.Equal(t, Priority{}, defaultPriority(KindSpeedLim))
}

func TestExecSpeedLimClampsOutOfRange(t *testing.T) {
	deps, link := testDeps()
	cmd := NewCommand(KindSpeedLim)
	cmd.SpeedLim = 999
	ack := cmd.Exec(context.Background(), deps)
	require.True(t, ack.OK)
	assert.Contains(t, link.Calls, "limit_speed")
}

func TestExecMaintenanceWrongMagicIgnored(t *testing.T) {
	deps, _ := testDeps()
	cmd := NewCommand(KindMaintenance)
	cmd.MaintenanceMagic = 0xBAD
	ack := cmd.Exec(context.Background(), deps)
	assert.False(t, ack.OK)
	assert.Nil(t, ack.ExitCode)
}

func TestExecMaintenanceCorrectMagicArmsExit(t *testing.T) {
	deps, _ := testDeps()
	cmd := NewCommand(KindMaintenance)
	cmd.MaintenanceMagic = maintenanceMagic
	ack := cmd.Exec(context.Background(), deps)
	require.NotNil(t, ack.ExitCode)
	assert.Equal(t, 0, *ack.ExitCode)
}

func TestExecModeZeroDisablesMappingAndLocalization(t *testing.T) {
	deps, _ := testDeps()
	deps.State.SetMapping2D(true)
	deps.State.SetLoca2D(true)
	cmd := NewCommand(KindMode)
	cmd.Mode = 0
	ack := cmd.Exec(context.Background(), deps)
	require.True(t, ack.OK)
	assert.False(t, deps.State.Mapping2D())
	assert.False(t, deps.State.Loca2D())
	assert.True(t, deps.State.KeepPosition())
}

func TestExecRouteOnClearMapSucceeds(t *testing.T) {
	deps, _ := testDeps()
	deps.World.EnsureRegionFor(3000, 0)
	cmd := NewCommand(KindRoute)
	cmd.DestX, cmd.DestY = 3000, 0
	ack := cmd.Exec(context.Background(), deps)
	require.True(t, ack.OK)
	assert.False(t, ack.NoRouteFound)
	assert.True(t, deps.Nav.FollowRoute())
}

func TestDispatcherCancelsCancelSafeWorker(t *testing.T) {
	deps, _ := testDeps()
	d := New(deps)

	started := make(chan struct{}, 4)
	ctrl := d.RegisterWorker(context.Background(), WorkerMapping, func(ctx context.Context) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	})
	ctrl.SetCancelSafe(true)
	<-started

	cmd := Command{Kind: KindAddConstraint, Priority: Priority{Map: true}, ConstraintX: 100, ConstraintY: 100}
	ack := d.Submit(context.Background(), cmd)
	assert.True(t, ack.OK)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker was not re-spawned after cancel-and-restart preemption")
	}
}

func TestDispatcherWaitsForQuiesceWhenNotCancelSafe(t *testing.T) {
	deps, _ := testDeps()
	d := New(deps)

	reachedBoundary := make(chan struct{})
	resumed := make(chan struct{}, 1)
	var ctrl *WorkerControl
	registered := make(chan struct{})
	ctrl = d.RegisterWorker(context.Background(), WorkerMapping, func(ctx context.Context) error {
		<-registered
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if ctrl.PauseRequested() {
				close(reachedBoundary)
				ctrl.Quiesce()
				resumed <- struct{}{}
			}
			time.Sleep(5 * time.Millisecond)
		}
	})
	close(registered)
	// cancelSafe defaults false, so this preemption must wait-for-quiesce.

	done := make(chan Ack, 1)
	go func() {
		cmd := Command{Kind: KindAddConstraint, Priority: Priority{Map: true}, ConstraintX: 0, ConstraintY: 0}
		done <- d.Submit(context.Background(), cmd)
	}()

	select {
	case <-reachedBoundary:
	case <-time.After(time.Second):
		t.Fatal("worker never reached pause boundary")
	}

	select {
	case ack := <-done:
		assert.True(t, ack.OK)
	case <-time.After(time.Second):
		t.Fatal("Submit did not complete")
	}

	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatal("worker was never resumed")
	}
}

func TestConsoleCommandMapping(t *testing.T) {
	cmd, ok := consoleCommand('q')
	require.True(t, ok)
	assert.Equal(t, KindConsoleExit, cmd.Kind)
	assert.Equal(t, 0, cmd.RequestedExitCode)

	cmd, ok = consoleCommand('Q')
	require.True(t, ok)
	assert.Equal(t, 5, cmd.RequestedExitCode)

	cmd, ok = consoleCommand('S')
	require.True(t, ok)
	assert.Equal(t, KindSavePose, cmd.Kind)

	_, ok = consoleCommand('p')
	assert.False(t, ok)
}

func TestDecodeEncodeRouteFrameRoundTrip(t *testing.T) {
	payload := make([]byte, 9)
	putInt32(payload, 0, 3000)
	putInt32(payload, 4, 0)
	payload[8] = 1
	cmd, err := decodeCommand(crRoute, payload)
	require.NoError(t, err)
	assert.Equal(t, int32(3000), cmd.DestX)
	assert.True(t, cmd.NoTight)

	resp := encodeAck(crRoute, Ack{OK: true})
	assert.Equal(t, rcRouteStatus, resp.mid)
	assert.Equal(t, byte(routeStatusSuccess), resp.payload[0])
}
