package routing

import (
	"context"
	"sync"
	"testing"

	"github.com/rn1robotics/hostcore/pkg/pose"
	"github.com/rn1robotics/hostcore/pkg/worldmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNav struct {
	mu        sync.Mutex
	began     []RouteBuffer
	notFounds int
}

func (f *fakeNav) BeginFollowing(r RouteBuffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.began = append(f.began, r)
}
func (f *fakeNav) RouteNotFound() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notFounds++
}

type fakeNotifier struct {
	mu       sync.Mutex
	routes   int
	idleMsgs int
}

func (f *fakeNotifier) RouteMessage(RouteBuffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes++
}
func (f *fakeNotifier) IdleMessage() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idleMsgs++
}

func TestCoordinatorFindsRouteOnClearMap(t *testing.T) {
	world := worldmap.New(nil)
	world.LoadRegion(0, 0)
	world.EnsureRegionFor(2000, 0)
	planner := NewPlanner(world)
	poses := pose.NewService()
	nav := &fakeNav{}
	notify := &fakeNotifier{}

	c := NewCoordinator(planner, poses, world, nil, nav, notify)
	result, err := c.Request(context.Background(), Request{DestX: 2000, DestY: 0})
	require.NoError(t, err)
	assert.False(t, result.NoRouteFound)
	assert.NotEmpty(t, result.Route.Waypoints)
	assert.Equal(t, 1, notify.routes)
	assert.Len(t, nav.began, 1)
	assert.True(t, c.RouteActive())
}

func TestCoordinatorReportsNoRouteFoundWhenGoalOccupied(t *testing.T) {
	world := worldmap.New(nil)
	world.LoadRegion(0, 0)
	world.MapCollisionObstacle(0, 0, 0, "seed", false, 0)
	planner := NewPlanner(world)
	poses := pose.NewService()
	nav := &fakeNav{}
	notify := &fakeNotifier{}

	c := NewCoordinator(planner, poses, world, nil, nav, notify)
	result, err := c.Request(context.Background(), Request{DestX: 0, DestY: 0})
	require.NoError(t, err)
	assert.True(t, result.NoRouteFound)
	assert.Equal(t, 1, nav.notFounds)
	assert.Equal(t, 1, notify.idleMsgs)
	assert.False(t, c.RouteActive())
}

func TestCoordinatorSerializesConcurrentRequests(t *testing.T) {
	world := worldmap.New(nil)
	world.LoadRegion(0, 0)
	world.EnsureRegionFor(1000, 0)
	planner := NewPlanner(world)
	poses := pose.NewService()

	c := NewCoordinator(planner, poses, world, nil, &fakeNav{}, &fakeNotifier{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Request(context.Background(), Request{DestX: 1000, DestY: 0})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
