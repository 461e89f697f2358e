package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/snapgram/internal/cluster"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type clusterNode struct {
	hub  *Hub
	done chan error
}

func startNode(t *testing.T, bus *cluster.Bus, id string) *clusterNode {
	t.Helper()
	broker := bus.Broker()
	hub := NewHub(HubConfig{
		Broker:       broker,
		InstanceID:   id,
		SyncInterval: time.Minute,
	})
	n := &clusterNode{hub: hub, done: make(chan error, 1)}
	go func() { n.done <- hub.Run(context.Background()) }()
	t.Cleanup(func() {
		_ = n.stop()
		_ = broker.Close()
	})
	return n
}

func (n *clusterNode) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	return n.hub.Shutdown(ctx)
}

// startPair starts two hubs on one bus and waits until each knows the other
func startPair(t *testing.T) (*clusterNode, *clusterNode) {
	t.Helper()
	bus := cluster.NewBus()
	a := startNode(t, bus, "instance-a")
	require.Eventually(t, a.hub.running.Load, waitFor, tick)
	b := startNode(t, bus, "instance-b")

	require.Eventually(t, func() bool {
		return a.hub.Stats().RemoteInstances == 1 && b.hub.Stats().RemoteInstances == 1
	}, waitFor, tick)
	return a, b
}

func TestClusterRosterSpansInstances(t *testing.T) {
	a, b := startPair(t)

	viewer := newFakeConn("")
	a.hub.Attach(viewer)

	b.hub.Attach(newFakeConn("bob"))
	a.hub.Attach(newFakeConn("alice"))

	require.Eventually(t, func() bool { return a.hub.IsOnline("bob") }, waitFor, tick)
	require.Eventually(t, func() bool { return b.hub.IsOnline("alice") }, waitFor, tick)

	assert.Equal(t, []string{"alice", "bob"}, a.hub.OnlineUsers())
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"alice", "bob"}, viewer.lastRoster())
	}, waitFor, tick)

	// lookup stays local
	_, ok := a.hub.Lookup("bob")
	assert.False(t, ok)
}

func TestClusterDeliverForwardsToOwningInstance(t *testing.T) {
	a, b := startPair(t)

	bob := newFakeConn("bob")
	b.hub.Attach(bob)
	require.Eventually(t, func() bool { return a.hub.IsOnline("bob") }, waitFor, tick)

	sent := ConversationStatePayload{ConversationID: "c1", ActorUserID: "alice"}
	assert.True(t, a.hub.Deliver("bob", EventMessageRequestDeclined, sent))

	require.Eventually(t, func() bool {
		return len(bob.events(EventMessageRequestDeclined)) == 1
	}, waitFor, tick)

	var got ConversationStatePayload
	require.NoError(t, bob.events(EventMessageRequestDeclined)[0].ParsePayload(&got))
	assert.Equal(t, sent, got)
	assert.Positive(t, a.hub.Stats().ClusterOut)
	assert.Positive(t, b.hub.Stats().ClusterIn)
}

func TestClusterDeliverToUnknownUserStaysLocal(t *testing.T) {
	a, _ := startPair(t)
	out := a.hub.Stats().ClusterOut

	assert.False(t, a.hub.Deliver("nobody", EventNotification, "x"))
	assert.Equal(t, out, a.hub.Stats().ClusterOut)
}

func TestClusterLeaveDropsRemoteUsers(t *testing.T) {
	a, b := startPair(t)

	viewer := newFakeConn("")
	a.hub.Attach(viewer)
	b.hub.Attach(newFakeConn("bob"))
	require.Eventually(t, func() bool { return a.hub.IsOnline("bob") }, waitFor, tick)

	require.NoError(t, b.stop())
	require.NoError(t, <-b.done)

	require.Eventually(t, func() bool { return !a.hub.IsOnline("bob") }, waitFor, tick)
	assert.Equal(t, 0, a.hub.Stats().RemoteInstances)
	assert.Eventually(t, func() bool {
		roster := viewer.lastRoster()
		return roster != nil && len(roster) == 0
	}, waitFor, tick)
}

func TestClusterDisconnectPropagates(t *testing.T) {
	a, b := startPair(t)

	bob := newFakeConn("bob")
	b.hub.Attach(bob)
	require.Eventually(t, func() bool { return a.hub.IsOnline("bob") }, waitFor, tick)

	bob.Close("gone")
	b.hub.Detach(bob)
	require.Eventually(t, func() bool { return !a.hub.IsOnline("bob") }, waitFor, tick)
	assert.Empty(t, a.hub.OnlineUsers())
}
