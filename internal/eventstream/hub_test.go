package eventstream

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kooshapari/swarmcoordinator/internal/swarm"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestHubRegisterUnregisterTracksClientCount(t *testing.T) {
	bus := swarm.NewEventBus(testLogger())
	hub := NewHub(bus, testLogger())
	go hub.Start()
	t.Cleanup(hub.Stop)

	client := &Client{id: "c1", hub: hub, send: make(chan Message, 4), logger: testLogger(), topics: make(map[string]bool)}
	hub.RegisterClient(client)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		hub.UnregisterClient(client)
		return hub.ClientCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestHubBroadcastsOnlyToInterestedClients(t *testing.T) {
	bus := swarm.NewEventBus(testLogger())
	hub := NewHub(bus, testLogger())
	go hub.Start()
	t.Cleanup(hub.Stop)

	interested := &Client{id: "interested", hub: hub, send: make(chan Message, 4), logger: testLogger(), topics: map[string]bool{"task": true}}
	uninterested := &Client{id: "uninterested", hub: hub, send: make(chan Message, 4), logger: testLogger(), topics: map[string]bool{"consensus": true}}
	hub.RegisterClient(interested)
	hub.RegisterClient(uninterested)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	bus.Publish(swarm.Event{Type: "task.assigned", Source: "test"})

	select {
	case msg := <-interested.send:
		assert.Equal(t, "task.assigned", msg.Type)
	case <-time.After(time.Second):
		t.Fatal("interested client never received the event")
	}

	select {
	case msg := <-uninterested.send:
		t.Fatalf("uninterested client unexpectedly received %v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClientInterestedInEmptyTopicsMeansAll(t *testing.T) {
	c := &Client{topics: make(map[string]bool)}
	assert.True(t, c.interestedIn("anything"))
}

func TestClientInterestedInPrefixMatch(t *testing.T) {
	c := &Client{topics: map[string]bool{"task": true}}
	assert.True(t, c.interestedIn("task.assigned"))
	assert.False(t, c.interestedIn("consensus.achieved"))
}
