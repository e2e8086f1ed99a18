package swarm

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kooshapari/swarmcoordinator/internal/metrics"
)

// Subscriber is the callback an agent runtime registers to receive messages.
type Subscriber func(Message)

// BusStats holds the message bus's running delivery counters.
type BusStats struct {
	Enqueued  int64
	Delivered int64
	Dropped   int64
	Failed    int64
}

const maxHistory = 10000
const maxLatencySamples = 1000

// Bus is the priority-queued, acked, TTL-bound message bus between agents.
// Delivery to a given destination is single-threaded, preserving per-source
// ordering within a priority band.
type Bus struct {
	logger       *logrus.Logger
	maxQueueSize int
	retryConfig  RetryConfig

	mu          sync.Mutex
	queues      map[string][4]*list.List // indexed by priorityRank
	subscribers map[string]Subscriber
	limiters    map[string]*rate.Limiter
	pendingAcks map[string]*pendingAck
	history     *list.List

	statsMu sync.Mutex
	stats   BusStats
	latencies []float64

	events *EventBus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type pendingAck struct {
	msg       Message
	timer     *time.Timer
	attempts  int
}

// NewBus constructs a message bus with the given per-destination queue
// depth limit.
func NewBus(maxQueueSize int, logger *logrus.Logger, events *EventBus) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		logger:       logger,
		maxQueueSize: maxQueueSize,
		retryConfig:  DefaultRetryConfig(),
		queues:       make(map[string][4]*list.List),
		subscribers:  make(map[string]Subscriber),
		limiters:     make(map[string]*rate.Limiter),
		pendingAcks:  make(map[string]*pendingAck),
		history:      list.New(),
		events:       events,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (b *Bus) queueFor(to string) [4]*list.List {
	qs, ok := b.queues[to]
	if !ok {
		qs = [4]*list.List{list.New(), list.New(), list.New(), list.New()}
		b.queues[to] = qs
	}
	return qs
}

func (b *Bus) queueDepth(to string) int {
	qs, ok := b.queues[to]
	if !ok {
		return 0
	}
	n := 0
	for _, q := range qs {
		n += q.Len()
	}
	return n
}

// Send enqueues a message to its destination, assigning id and timestamp.
// Fails fast (CapacityExceeded) when the destination queue is full.
func (b *Bus) Send(m Message) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.queueDepth(m.To) >= b.maxQueueSize {
		b.statsMu.Lock()
		b.stats.Dropped++
		b.statsMu.Unlock()
		metrics.MessageBusDropped.Inc()
		return "", capacityErr("queue_full", "destination queue full: "+m.To)
	}
	m.ID = NewID()
	m.Timestamp = time.Now()
	qs := b.queueFor(m.To)
	qs[priorityRank(m.Priority)].PushBack(m)

	b.statsMu.Lock()
	b.stats.Enqueued++
	b.statsMu.Unlock()

	if m.RequiresAck {
		b.scheduleAckTimeout(m)
	}
	return m.ID, nil
}

// Broadcast enqueues a copy of the message for every subscribed agent.
func (b *Bus) Broadcast(m Message) {
	b.mu.Lock()
	subs := make([]string, 0, len(b.subscribers))
	for id := range b.subscribers {
		subs = append(subs, id)
	}
	b.mu.Unlock()
	sort.Strings(subs)
	for _, id := range subs {
		cp := m
		cp.To = id
		_, _ = b.Send(cp)
	}
}

// Subscribe registers (or replaces) agentID's delivery handler.
func (b *Bus) Subscribe(agentID string, cb Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[agentID] = cb
	b.limiters[agentID] = rate.NewLimiter(rate.Limit(1000), 200)
}

// Unsubscribe removes agentID's delivery handler.
func (b *Bus) Unsubscribe(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, agentID)
	delete(b.limiters, agentID)
}

// Acknowledge cancels the pending-ack timer for messageID; on failure it
// triggers a bounded retry, then records a permanent failure.
func (b *Bus) Acknowledge(ack Ack) {
	b.mu.Lock()
	pa, ok := b.pendingAcks[ack.MessageID]
	if ok {
		delete(b.pendingAcks, ack.MessageID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	pa.timer.Stop()
	if ack.Status == AckOK {
		b.statsMu.Lock()
		b.stats.Delivered++
		b.statsMu.Unlock()
		metrics.MessageBusDelivered.Inc()
		return
	}
	b.retryOrFail(pa)
}

// scheduleAckTimeout registers a pending ack for m. Caller holds b.mu.
func (b *Bus) scheduleAckTimeout(m Message) {
	const ackTimeout = 3 * time.Second
	pa := &pendingAck{msg: m, attempts: m.retryCount}
	pa.timer = time.AfterFunc(ackTimeout, func() {
		b.mu.Lock()
		_, still := b.pendingAcks[m.ID]
		b.mu.Unlock()
		if still {
			b.retryOrFail(pa)
		}
	})
	b.pendingAcks[m.ID] = pa
}

func (b *Bus) retryOrFail(pa *pendingAck) {
	pa.attempts++
	if pa.attempts > b.retryConfig.MaxAttempts {
		b.statsMu.Lock()
		b.stats.Failed++
		b.statsMu.Unlock()
		metrics.MessageBusFailed.Inc()
		if b.events != nil {
			b.events.Publish(Event{Type: "message.failed", Source: "bus", Data: map[string]interface{}{"messageId": pa.msg.ID}})
		}
		return
	}
	remaining := time.Duration(pa.msg.TTLMs)*time.Millisecond - time.Since(pa.msg.Timestamp)
	delay := b.retryConfig.backoff(pa.attempts)
	if remaining > 0 && delay > remaining {
		delay = remaining
	}
	if remaining <= 0 {
		b.statsMu.Lock()
		b.stats.Failed++
		b.statsMu.Unlock()
		metrics.MessageBusFailed.Inc()
		return
	}
	retry := pa.msg
	retry.retryCount = pa.attempts
	time.AfterFunc(delay, func() {
		_, _ = b.Send(retry)
	})
}

// Start launches the background drain loop that dispatches queued messages
// to subscribers in priority order.
func (b *Bus) Start() {
	b.wg.Add(1)
	go b.drainLoop()
}

// Stop halts the drain loop.
func (b *Bus) Stop() {
	b.cancel()
	b.wg.Wait()
}

func (b *Bus) drainLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.drainOnce()
		}
	}
}

func (b *Bus) drainOnce() {
	b.mu.Lock()
	destinations := make([]string, 0, len(b.queues))
	for to := range b.queues {
		destinations = append(destinations, to)
	}
	sort.Strings(destinations)

	type delivery struct {
		msg Message
		cb  Subscriber
	}
	var deliveries []delivery
	now := time.Now()

	for _, to := range destinations {
		cb, subscribed := b.subscribers[to]
		limiter := b.limiters[to]
		qs := b.queues[to]
	ranks:
		for rank := 0; rank < 4; rank++ {
			q := qs[rank]
			for e := q.Front(); e != nil; {
				next := e.Next()
				m := e.Value.(Message)
				if m.expired(now) {
					q.Remove(e)
					b.statsMu.Lock()
					b.stats.Dropped++
					b.statsMu.Unlock()
					metrics.MessageBusDropped.Inc()
					e = next
					continue
				}
				if subscribed {
					if limiter != nil && !limiter.Allow() {
						// Rate-limited for this tick; leave queued and retry
						// the destination next drain instead of dropping it.
						break ranks
					}
					q.Remove(e)
					deliveries = append(deliveries, delivery{msg: m, cb: cb})
				}
				e = next
			}
		}
	}
	b.mu.Unlock()

	for _, d := range deliveries {
		b.recordHistory(d.msg)
		d.cb(d.msg)
		if !d.msg.RequiresAck {
			b.statsMu.Lock()
			b.stats.Delivered++
			b.statsMu.Unlock()
			metrics.MessageBusDelivered.Inc()
		}
	}
}

func (b *Bus) recordHistory(m Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history.PushBack(m)
	if b.history.Len() > maxHistory {
		b.history.Remove(b.history.Front())
	}
}

// RecordLatency adds a bounded sample used for p50/p99 reporting.
func (b *Bus) RecordLatency(ms float64) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	b.latencies = append(b.latencies, ms)
	if len(b.latencies) > maxLatencySamples {
		b.latencies = b.latencies[1:]
	}
}

// Percentiles returns p50/p99 of the recorded latency samples.
func (b *Bus) Percentiles() (p50, p99 float64) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return percentile(b.latencies, 0.50), percentile(b.latencies, 0.99)
}

func percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

// Stats returns a copy of the running counters.
func (b *Bus) Stats() BusStats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return b.stats
}

// QueueDepth exposes a destination's current queue depth.
func (b *Bus) QueueDepth(to string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queueDepth(to)
}
