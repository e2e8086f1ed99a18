package swarm

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PoolConfig tunes a single agent pool's sizing and health-check behaviour.
type PoolConfig struct {
	MinSize           int
	MaxSize           int
	ScaleUpThreshold  float64
	ScaleDownThreshold float64
	ScaleCooldown     time.Duration
	HealthInterval    time.Duration
}

// DefaultPoolConfig returns the nominal scaling thresholds for a domain pool.
func DefaultPoolConfig(min, max int) PoolConfig {
	return PoolConfig{
		MinSize:            min,
		MaxSize:            max,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.2,
		ScaleCooldown:      30 * time.Second,
		HealthInterval:     10 * time.Second,
	}
}

// AgentFactory creates a new agent on demand for a pool, e.g. when scaling
// up or replacing an unhealthy member.
type AgentFactory func() *Agent

// Pool owns a homogeneous subset of agents (by type or by domain) and
// supports acquire/release/scale with bounded size and auto-scaling.
type Pool struct {
	logger  *logrus.Logger
	cfg     PoolConfig
	factory AgentFactory
	events  *EventBus
	name    string

	mu        sync.Mutex
	available map[string]*Agent
	busy      map[string]*Agent
	lastScale time.Time
	order     []string // registration order for LRU scale-down of available
}

// NewPool constructs an empty pool.
func NewPool(name string, cfg PoolConfig, factory AgentFactory, logger *logrus.Logger, events *EventBus) *Pool {
	return &Pool{
		logger:    logger,
		cfg:       cfg,
		factory:   factory,
		events:    events,
		name:      name,
		available: make(map[string]*Agent),
		busy:      make(map[string]*Agent),
	}
}

func (p *Pool) size() int { return len(p.available) + len(p.busy) }

func (p *Pool) utilization() float64 {
	total := p.size()
	if total == 0 {
		return 0
	}
	return float64(len(p.busy)) / float64(total)
}

// Add inserts an existing agent into the pool's available set.
func (p *Pool) Add(a *Agent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available[a.ID] = a
	p.order = append(p.order, a.ID)
}

// Remove takes an agent out of the pool entirely.
func (p *Pool) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.available, id)
	delete(p.busy, id)
	p.removeFromOrder(id)
}

func (p *Pool) removeFromOrder(id string) {
	for i, x := range p.order {
		if x == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			return
		}
	}
}

// Acquire returns an available agent, moving it to busy. If none is
// available and the pool has room to grow, a new agent is created on
// demand. Returns nil if the pool is exhausted.
func (p *Pool) Acquire() *Agent {
	return p.acquire(nil)
}

// AcquireForTask behaves like Acquire but, when more than one agent is
// available, picks the highest scoreAgentForTask candidate instead of an
// arbitrary one.
func (p *Pool) AcquireForTask(task *Task) *Agent {
	return p.acquire(task)
}

func (p *Pool) acquire(task *Task) *Agent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var chosen *Agent
	if task == nil {
		for _, a := range p.available {
			chosen = a
			break
		}
	} else {
		bestScore := 0.0
		for _, a := range p.available {
			order := int64(p.registrationOrder(a.ID))
			score := scoreAgentForTask(task, a, order)
			if chosen == nil || score > bestScore {
				chosen, bestScore = a, score
			}
		}
	}
	if chosen == nil && p.size() < p.cfg.MaxSize && p.factory != nil {
		chosen = p.factory()
		if chosen != nil {
			p.order = append(p.order, chosen.ID)
		}
	}
	if chosen == nil {
		if p.events != nil {
			p.events.Publish(Event{Type: "pool.exhausted", Source: p.name})
		}
		return nil
	}
	delete(p.available, chosen.ID)
	p.busy[chosen.ID] = chosen
	p.maybeScaleLocked()
	return chosen
}

func (p *Pool) registrationOrder(id string) int {
	for i, oid := range p.order {
		if oid == id {
			return i
		}
	}
	return len(p.order)
}

// Release moves agentID from busy back to available, clearing its current
// task.
func (p *Pool) Release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.busy[id]
	if !ok {
		return
	}
	delete(p.busy, id)
	a.CurrentTask = ""
	p.available[id] = a
	p.maybeScaleLocked()
}

// Scale honours the cooldown; positive delta adds agents up to MaxSize,
// negative removes least-recently-used available agents down to MinSize.
func (p *Pool) Scale(delta int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scaleLocked(delta)
}

func (p *Pool) scaleLocked(delta int) bool {
	if time.Since(p.lastScale) < p.cfg.ScaleCooldown {
		return false
	}
	p.lastScale = time.Now()
	if delta > 0 {
		for i := 0; i < delta && p.size() < p.cfg.MaxSize && p.factory != nil; i++ {
			a := p.factory()
			if a == nil {
				break
			}
			p.available[a.ID] = a
			p.order = append(p.order, a.ID)
		}
		if p.events != nil {
			p.events.Publish(Event{Type: "pool.scaled_up", Source: p.name, Data: map[string]interface{}{"size": p.size()}})
		}
		return true
	}
	removed := 0
	for _, id := range append([]string(nil), p.order...) {
		if removed >= -delta || p.size() <= p.cfg.MinSize {
			break
		}
		if _, ok := p.available[id]; ok {
			delete(p.available, id)
			p.removeFromOrder(id)
			removed++
		}
	}
	if removed > 0 && p.events != nil {
		p.events.Publish(Event{Type: "pool.scaled_down", Source: p.name, Data: map[string]interface{}{"size": p.size()}})
	}
	return removed > 0
}

// maybeScaleLocked applies the utilization-driven scaling policy, checked on
// every acquire/release.
func (p *Pool) maybeScaleLocked() {
	u := p.utilization()
	if u >= p.cfg.ScaleUpThreshold && p.size() < p.cfg.MaxSize {
		p.scaleLocked(1)
	} else if u <= p.cfg.ScaleDownThreshold && p.size() > p.cfg.MinSize {
		p.scaleLocked(-1)
	}
}

// CheckHealth ages agents: one not heard from for > 3x the health interval
// has health decremented by 0.2 and status set to error; at health <= 0 it
// is removed and, if busy or the pool is under-min, replaced synchronously.
func (p *Pool) CheckHealth(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stale := 3 * p.cfg.HealthInterval

	checkSet := func(set map[string]*Agent, wasBusy bool) {
		for id, a := range set {
			if now.Sub(a.LastHeartbeat) <= stale {
				continue
			}
			a.Health -= 0.2
			if a.Health < 0 {
				a.Health = 0
			}
			a.Status = StatusError
			if a.Health <= 0 {
				delete(set, id)
				p.removeFromOrder(id)
				if (wasBusy || p.size() < p.cfg.MinSize) && p.factory != nil {
					repl := p.factory()
					if repl == nil {
						continue
					}
					p.available[repl.ID] = repl
					p.order = append(p.order, repl.ID)
					if p.events != nil {
						p.events.Publish(Event{Type: "agent.replaced", Source: p.name, Data: map[string]interface{}{"old": id, "new": repl.ID}})
					}
				}
			}
		}
	}
	checkSet(p.busy, true)
	checkSet(p.available, false)
}

// Size returns the total, available and busy counts.
func (p *Pool) Size() (total, available, busy int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size(), len(p.available), len(p.busy)
}
