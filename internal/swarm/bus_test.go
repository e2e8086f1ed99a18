package swarm

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusMessageOrderingByPriority(t *testing.T) {
	events := NewEventBus(testLogger())
	bus := NewBus(100, testLogger(), events)
	bus.Start()
	defer bus.Stop()

	var mu sync.Mutex
	var received []MessagePriority
	done := make(chan struct{})
	bus.Subscribe("dest", func(m Message) {
		mu.Lock()
		received = append(received, m.Priority)
		if len(received) == 3 {
			close(done)
		}
		mu.Unlock()
	})

	_, err := bus.Send(Message{To: "dest", Priority: MsgLow, TTLMs: 5000})
	require.NoError(t, err)
	_, err = bus.Send(Message{To: "dest", Priority: MsgUrgent, TTLMs: 5000})
	require.NoError(t, err)
	_, err = bus.Send(Message{To: "dest", Priority: MsgNormal, TTLMs: 5000})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []MessagePriority{MsgUrgent, MsgNormal, MsgLow}, received)
}

func TestBusBackPressureFailsFastOnFullQueue(t *testing.T) {
	bus := NewBus(2, testLogger(), nil)

	_, err := bus.Send(Message{To: "dest", Priority: MsgNormal, TTLMs: 5000})
	require.NoError(t, err)
	_, err = bus.Send(Message{To: "dest", Priority: MsgNormal, TTLMs: 5000})
	require.NoError(t, err)
	_, err = bus.Send(Message{To: "dest", Priority: MsgNormal, TTLMs: 5000})
	assert.Error(t, err)
}

func TestBusExpiredMessagesNeverDelivered(t *testing.T) {
	events := NewEventBus(testLogger())
	bus := NewBus(100, testLogger(), events)
	bus.Start()
	defer bus.Stop()

	var delivered bool
	var mu sync.Mutex
	bus.Subscribe("dest", func(m Message) {
		mu.Lock()
		delivered = true
		mu.Unlock()
	})

	_, err := bus.Send(Message{To: "dest", Priority: MsgNormal, TTLMs: 1})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, delivered)
}
