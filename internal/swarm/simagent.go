package swarm

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// SimAgent is a trivial in-process implementation of the agent runtime
// contract (subscribe, respond to task_assign with task_complete/task_fail,
// emit periodic heartbeats). It exists to exercise the message bus and
// coordinator in tests and CLI demos; it carries no domain business logic.
type SimAgent struct {
	id     string
	bus    *Bus
	logger *logrus.Logger
	stop   chan struct{}
	fail   func(Task) bool
}

// NewSimAgent wires a simulated agent into the bus under agentID. fail, if
// non-nil, decides whether a given task should be reported as failed.
func NewSimAgent(agentID string, bus *Bus, logger *logrus.Logger, fail func(Task) bool) *SimAgent {
	a := &SimAgent{id: agentID, bus: bus, logger: logger, stop: make(chan struct{}), fail: fail}
	bus.Subscribe(agentID, a.handle)
	return a
}

func (a *SimAgent) handle(m Message) {
	switch m.Type {
	case MsgTaskAssign:
		go a.execute(m)
	case MsgTaskFail:
		// cancellation notice; nothing to clean up for the simulator.
	}
}

func (a *SimAgent) execute(m Message) {
	time.Sleep(time.Duration(5+rand.Intn(15)) * time.Millisecond)
	taskID, _ := m.Payload["taskId"].(string)
	failed := false
	var task Task
	if t, ok := m.Payload["task"].(Task); ok {
		task = t
		if a.fail != nil {
			failed = a.fail(task)
		}
	}
	if failed {
		_, _ = a.bus.Send(Message{
			Type: MsgTaskFail, From: a.id, To: "coordinator",
			Payload:  map[string]interface{}{"taskId": taskID, "error": "simulated failure"},
			Priority: MsgHigh,
			TTLMs:    10000,
		})
		return
	}
	_, _ = a.bus.Send(Message{
		Type: MsgTaskComplete, From: a.id, To: "coordinator",
		Payload:  map[string]interface{}{"taskId": taskID, "result": map[string]interface{}{"qualityScore": 0.9}},
		Priority: MsgNormal,
		TTLMs:    10000,
	})
}

// Heartbeat sends a single heartbeat message to the coordinator.
func (a *SimAgent) Heartbeat() {
	_, _ = a.bus.Send(Message{
		Type: MsgHeartbeat, From: a.id, To: "coordinator",
		Payload:  map[string]interface{}{"health": 1.0},
		Priority: MsgLow,
		TTLMs:    5000,
	})
}

// StartHeartbeating emits a heartbeat on the given interval until Stop.
func (a *SimAgent) StartHeartbeating(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.stop:
				return
			case <-ticker.C:
				a.Heartbeat()
			}
		}
	}()
}

// Stop halts background heartbeating.
func (a *SimAgent) Stop() {
	close(a.stop)
}
