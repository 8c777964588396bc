package motion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGoToWaypointPacksMoveID(t *testing.T) {
	link := NewFakeLink(4)
	defer link.Close()
	c := NewClient(link)

	id, err := c.GoToWaypoint(context.Background(), 100, 200, BackmodeForward, 3, 500)
	require.NoError(t, err)
	assert.Equal(t, MoveID(c.idCnt, 3), id)
	assert.Contains(t, link.Calls, "move_to")
}

func TestClientNextIDCntSkipsSteerReserved(t *testing.T) {
	c := NewClient(NewFakeLink(1))
	for i := 0; i < 20; i++ {
		got := c.NextIDCnt()
		assert.NotEqual(t, SteerManeuverIDCnt, got)
	}
}

func TestClientSteerTurnUsesRelRel(t *testing.T) {
	link := NewFakeLink(1)
	defer link.Close()
	c := NewClient(link)
	require.NoError(t, c.SteerTurn(context.Background(), 1000, 0, 100))
	assert.Contains(t, link.Calls, "turn_and_go_rel_rel")
}

func TestClientChargerApproachUsesReservedID(t *testing.T) {
	link := NewFakeLink(1)
	defer link.Close()
	c := NewClient(link)
	require.NoError(t, c.ChargerApproach(context.Background(), 0, 0, 50))
	assert.Contains(t, link.Calls, "move_to")
}

func TestClientFeedbackPassthrough(t *testing.T) {
	link := NewFakeLink(1)
	defer link.Close()
	c := NewClient(link)
	link.Push(Feedback{X: 42})
	fb := <-c.Feedback()
	assert.Equal(t, int32(42), fb.X)
}
