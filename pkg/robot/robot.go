// Package robot wires the host core's collaborators together and runs the
// scheduling model described in spec.md §5: four OS-level parallel workers
// (Navigation, Routing, Mapping, Communication) plus the sensor ingest
// workers. The sensor intake, Communication (the TCP server) and the
// operator console run under golang.org/x/sync/errgroup the way the
// teacher's x/robotics/pipeline runner supervises its own worker set;
// Mapping, Routing and Navigation run as Dispatcher workers. Run blocks
// until ctx is done or an errgroup member returns.
package robot

import (
	"context"
	"fmt"
	"os"

	"github.com/rn1robotics/hostcore/pkg/config"
	"github.com/rn1robotics/hostcore/pkg/dispatch"
	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/logging"
	"github.com/rn1robotics/hostcore/pkg/mapping"
	"github.com/rn1robotics/hostcore/pkg/motion"
	"github.com/rn1robotics/hostcore/pkg/navigation"
	"github.com/rn1robotics/hostcore/pkg/pose"
	"github.com/rn1robotics/hostcore/pkg/routing"
	"github.com/rn1robotics/hostcore/pkg/sensors"
	"github.com/rn1robotics/hostcore/pkg/statevector"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
	"golang.org/x/sync/errgroup"
)

var log = logging.Component("robot")

// logNotifier implements routing.ClientNotifier by logging; the wire format
// for pushing RC_ROUTE_STATUS/IDLE notices to a connected client asynchronously
// is out of scope (spec.md §1, "we specify only what the core requests and
// receives") - the seam is wired to a working collaborator rather than left
// nil, and dispatch's synchronous Ack already carries the route result back
// to whichever caller issued the command.
type logNotifier struct{}

func (logNotifier) RouteMessage(route routing.RouteBuffer) {
	log.Info().Int("waypoints", len(route.Waypoints)).Msg("route_message")
}
func (logNotifier) IdleMessage() { log.Info().Msg("idle_message") }

// noopExploration implements mapping.Exploration; autonomous exploration's
// internal search strategy is out of scope (spec.md §1). Engine still calls
// Tick every iteration command_source==AUTONOMOUS, so the seam is real, just
// inert until a concrete explorer is wired in.
type noopExploration struct{}

func (noopExploration) Tick(context.Context) error { return nil }

// Robot bundles every collaborator built by New, for tests and for Run.
type Robot struct {
	cfg config.Config

	poses    *pose.Service
	world    *worldmap.WorldMap
	state    *statevector.StateVector
	mc       *motion.Client
	feedback *motion.FeedbackTracker

	intake     *sensors.Intake
	scanRing   *sensors.ScanRing
	engine     *mapping.Engine
	coord      *routing.Coordinator
	navState   *navigation.State
	controller *navigation.Controller
	charger    *navigation.ChargerFSM

	dispatcher *dispatch.Dispatcher
	console    *dispatch.Console
	server     *dispatch.Server

	persist FilePersistence
}

// Deps lets callers supply transports the hardware-specific main wires up;
// nil sensor sources are tolerated (sensors.Intake skips what isn't
// configured) since concrete lidar/3D-ToF/sonar drivers are out of scope
// here (spec.md §1, "raw sensor/MCU byte protocols ... out of scope").
type Deps struct {
	Motion    motion.MotionLink
	Console   *dispatch.Console // caller may pass nil to build the default stdin console
	Lidar     sensors.Config
	Tof       sensors.TofSource
}

// New builds a Robot from cfg and deps, wiring every collaborator with the
// concrete types adapted from the teacher: pose.Service, worldmap.WorldMap,
// statevector.StateVector, motion.Client, routing's A*-backed Planner and
// Coordinator, and the Navigation sub-FSMs behind a shared Controller.
func New(cfg config.Config, deps Deps) (*Robot, error) {
	poses := pose.NewService()

	persist := FilePersistence{RobotPosPath: cfg.Persist.RobotPosFile, ChargerPosPath: cfg.Persist.ChargerPosFile}
	pagePersist := FilePagePersistence{Dir: cfg.Persist.MapDir}
	world := worldmap.New(pagePersist)
	world.LoadRegion(0, 0)

	sv := statevector.New()
	mc := motion.NewClient(deps.Motion)

	planner := routing.NewPlanner(world)
	navState := navigation.NewState()

	scanRing := sensors.NewScanRing()
	coord := routing.NewCoordinator(planner, poses, world, scanRing.Last, navState, logNotifier{})

	checker := navigation.NewObstacleChecker(world, poses, mc)
	rerouter := navigation.NewRerouter(coord)
	recovery := navigation.NewRecovery(navState, mc, poses, world, rerouter, func() bool {
		return sv.CommandSource() == statevector.AUTONOMOUS
	})
	follow := navigation.NewFollowRoute(navState, mc, poses, world, checker, rerouter, recovery)

	dock, err := persist.LoadChargerPos()
	if err != nil {
		dock = chargerPoseFromConfig(cfg.Charger)
	}
	charger := navigation.NewChargerFSM(mc, poses, world, rerouter, dock, scanRing.Last)
	controller := navigation.NewController(navState, follow, recovery, charger)

	var tofHisto *sensors.HistogramTracker
	var tofSource sensors.TofSource
	if deps.Tof != nil {
		tofHisto = sensors.WrapTofSource(deps.Tof)
		tofSource = tofHisto
	}
	lidarCfg := deps.Lidar
	lidarCfg.Tof = tofSource
	intake := sensors.NewIntake(poses, lidarCfg)

	var tofSampler mapping.ToFSampler
	if tofHisto != nil {
		tofSampler = tofHisto
	}
	feedback := motion.NewFeedbackTracker()
	controller.SetChargingStatus(feedback)

	engine := mapping.New(mapping.Config{
		Poses:       poses,
		World:       world,
		States:      sv,
		Motion:      mc,
		Lidars:      sensors.TeeScans(scanRing, intake.Lidars),
		Tofs:        intake.Tofs,
		Sonars:      intake.Sonars,
		Explore:     noopExploration{},
		Routes:      coord,
		ToF:         tofSampler,
		MaxSpeedlim: cfg.Motion.MaxSpeedlim,
		IsMoving:    func() bool { return navState.FollowRoute() },
		Charging:    feedback.Charging,
		GoodTimeForLidarMapping:      navState.GoodTimeForLidarMapping,
		ClearGoodTimeForLidarMapping: func() { navState.SetGoodTimeForLidarMapping(false) },
	})

	dispatchDeps := &dispatch.Deps{
		Motion:   mc,
		Poses:    poses,
		World:    world,
		State:    sv,
		Router:   coord,
		Nav:      navState,
		Follow:   follow,
		Recovery: recovery,
		Charger:  charger,
		Persist:  persist,
	}
	dispatcher := dispatch.New(dispatchDeps)

	server, err := dispatch.Listen(cfg.TCP.Addr, dispatcher, coord)
	if err != nil {
		return nil, fmt.Errorf("robot: %w", err)
	}

	console := deps.Console
	if console == nil {
		console = dispatch.NewConsole(os.Stdin, dispatcher)
	}

	return &Robot{
		cfg:        cfg,
		poses:      poses,
		world:      world,
		state:      sv,
		mc:         mc,
		feedback:   feedback,
		intake:     intake,
		scanRing:   scanRing,
		engine:     engine,
		coord:      coord,
		navState:   navState,
		controller: controller,
		charger:    charger,
		dispatcher: dispatcher,
		console:    console,
		server:     server,
		persist:    persist,
	}, nil
}

func chargerPoseFromConfig(c config.Charger) navigation.ChargerPose {
	return navigation.ChargerPose{
		FirstX: c.FirstX, FirstY: c.FirstY,
		SecondX: c.SecondX, SecondY: c.SecondY,
		Ang:   geom.FromDegrees(c.AngDeg),
		FwdMM: c.FwdMM,
	}
}

// Run starts every worker and blocks until ctx is done or a member of the
// errgroup returns an error. The errgroup runs the sensor intake,
// Communication (the TCP server) and the operator console. Mapping, Routing,
// and Navigation are registered with the Dispatcher instead, so Command
// Dispatcher preemption (§4.6) can reach them; the Dispatcher logs their
// errors, and those errors do not end Run.
func (r *Robot) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.intake.Run(ctx) })

	mappingCtrl := r.dispatcher.RegisterWorker(ctx, dispatch.WorkerMapping, r.engine.Run)
	mappingCtrl.SetCancelSafe(true) // the tick loop has no unsafe critical window to wait out

	navCtrl := r.dispatcher.RegisterWorker(ctx, dispatch.WorkerNavigation, func(ctx context.Context) error {
		return r.controller.Run(ctx, motion.TeeFeedback(r.feedback, r.mc.Feedback()))
	})
	navCtrl.SetCancelSafe(true)

	// Routing has no continuous loop of its own: Coordinator.Request runs
	// synchronously inside Command Dispatcher's Submit, collapsing the
	// original "block on need-routing condvar, wake, compute" shape (§5)
	// into a direct call. The registration still gives preemption a named
	// worker to address; there is nothing to cancel or quiesce.
	routingCtrl := r.dispatcher.RegisterWorker(ctx, dispatch.WorkerRouting, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	routingCtrl.SetCancelSafe(true)

	g.Go(func() error { return r.server.Run(ctx) })
	g.Go(func() error { return r.console.Run(ctx) })

	log.Info().Str("tcp_addr", r.cfg.TCP.Addr).Msg("host core started")
	return g.Wait()
}
