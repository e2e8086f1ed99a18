package swarm

import (
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kooshapari/swarmcoordinator/internal/metrics"
)

// queenOverrideAllowed lists the only decision types queen-override may
// decide unilaterally.
var queenOverrideAllowed = map[string]bool{
	"emergency-action":  true,
	"agent-termination": true,
	"priority-override":  true,
}

// algoTimeout returns the default deadline window per algorithm class.
func algoTimeout(algo ConsensusAlgorithm) time.Duration {
	switch algo {
	case AlgoMajority:
		return 5 * time.Second
	case AlgoSupermajority:
		return 10 * time.Second
	case AlgoUnanimous:
		return 30 * time.Second
	default:
		return 5 * time.Second
	}
}

func algoThreshold(algo ConsensusAlgorithm) float64 {
	switch algo {
	case AlgoMajority:
		return 0.5
	case AlgoSupermajority:
		return 2.0 / 3.0
	case AlgoUnanimous:
		return 1.0
	default:
		return 0.5
	}
}

// WeightFunc resolves a voter's weighted-consensus weight; the coordinator's
// voterWeight derives it from agent state (successRate * health).
type WeightFunc func(voter string) float64

type proposalState struct {
	proposal Proposal
	votes    map[string]Vote
	voters   map[string]struct{}
	done     chan struct{}
	result   *ConsensusResult
	mu       sync.Mutex
}

// Consensus runs the proposal/vote protocol with a pluggable algorithm
// family. Insertion of votes and the threshold check are serialized per
// proposal to avoid double counting.
type Consensus struct {
	logger     *logrus.Logger
	weightFunc WeightFunc
	bus        *Bus
	events     *EventBus

	mu        sync.Mutex
	voters    map[string]struct{}
	proposals map[string]*proposalState
}

// NewConsensus constructs a consensus engine. weightFunc resolves a voter's
// weight for the weighted algorithm; bus/events may be nil in tests.
func NewConsensus(weightFunc WeightFunc, bus *Bus, events *EventBus, logger *logrus.Logger) *Consensus {
	return &Consensus{
		logger:     logger,
		weightFunc: weightFunc,
		bus:        bus,
		events:     events,
		voters:     make(map[string]struct{}),
		proposals:  make(map[string]*proposalState),
	}
}

// RegisterVoter adds a node as an eligible voter.
func (c *Consensus) RegisterVoter(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voters[id] = struct{}{}
}

// UnregisterVoter removes a node from the voter roll.
func (c *Consensus) UnregisterVoter(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.voters, id)
}

// Propose broadcasts a new proposal with a deadline and returns it.
func (c *Consensus) Propose(value interface{}, proposer string, algo ConsensusAlgorithm, decisionType string, requireQuorum bool, requiredQuorum float64) (*Proposal, error) {
	if algo == AlgoQueenOverride {
		if !queenOverrideAllowed[decisionType] {
			return nil, preconditionErr("override_not_allowed", "queen-override not permitted for decision type: "+decisionType)
		}
	}

	p := Proposal{
		ID:             NewID(),
		Value:          value,
		Proposer:       proposer,
		Algorithm:      algo,
		DecisionType:   decisionType,
		CreatedAt:      time.Now(),
		Deadline:       time.Now().Add(algoTimeout(algo)),
		Threshold:      algoThreshold(algo),
		RequireQuorum:  requireQuorum,
		RequiredQuorum: requiredQuorum,
	}

	c.mu.Lock()
	ps := &proposalState{
		proposal: p,
		votes:    make(map[string]Vote),
		voters:   make(map[string]struct{}, len(c.voters)),
		done:     make(chan struct{}),
	}
	for v := range c.voters {
		ps.voters[v] = struct{}{}
	}
	c.proposals[p.ID] = ps
	c.mu.Unlock()

	if algo == AlgoQueenOverride {
		res := &ConsensusResult{ProposalID: p.ID, Approved: true, ApprovalRate: 1.0, ParticipationRate: 1.0, FinalValue: value, Rounds: 1}
		ps.mu.Lock()
		ps.result = res
		close(ps.done)
		ps.mu.Unlock()
		return &p, nil
	}

	if c.bus != nil {
		payload := map[string]interface{}{"proposalId": p.ID, "value": value, "deadline": p.Deadline}
		for voter := range ps.voters {
			_, _ = c.bus.Send(Message{Type: MsgBroadcast, From: proposer, To: voter, Payload: payload, Priority: MsgHigh, TTLMs: algoTimeout(algo).Milliseconds()})
		}
	}

	time.AfterFunc(time.Until(p.Deadline), func() { c.finalize(p.ID) })

	return &p, nil
}

// Vote records a voter's decision on a proposal.
func (c *Consensus) Vote(v Vote) error {
	c.mu.Lock()
	ps, ok := c.proposals[v.ProposalID]
	c.mu.Unlock()
	if !ok {
		return preconditionErr("unknown_proposal", "no such proposal: "+v.ProposalID)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.result != nil {
		return nil // past deadline; discarded
	}
	if time.Now().After(ps.proposal.Deadline) {
		return nil
	}
	ps.votes[v.Voter] = v
	c.evaluateLocked(ps)
	return nil
}

// evaluateLocked checks whether the threshold has been crossed or rejection
// is inevitable, finalizing the proposal if so. Caller holds ps.mu.
func (c *Consensus) evaluateLocked(ps *proposalState) {
	algo := ps.proposal.Algorithm
	total := len(ps.voters)
	if total == 0 {
		return
	}

	approvals, rejections, participated := 0.0, 0.0, 0
	weightTotal := 0.0
	for voter, v := range ps.votes {
		participated++
		w := 1.0
		if algo == AlgoWeighted && c.weightFunc != nil {
			w = c.weightFunc(voter)
		}
		weightTotal += w
		switch v.Decision {
		case VoteApprove:
			approvals += w
		case VoteReject:
			rejections += w
		}
	}

	if algo == AlgoUnanimous && rejections > 0 {
		c.completeLocked(ps, false, approvals, participated, total)
		return
	}

	denom := weightTotal
	if algo != AlgoWeighted {
		denom = float64(total)
	}
	if denom <= 0 {
		return
	}
	rate := approvals / denom

	if ps.proposal.RequireQuorum {
		participation := float64(participated) / float64(total)
		if participation < ps.proposal.RequiredQuorum {
			return
		}
	}

	if rate > ps.proposal.Threshold || (algo == AlgoUnanimous && rate >= ps.proposal.Threshold && participated == total) {
		c.completeLocked(ps, true, approvals, participated, total)
		return
	}
	if algo != AlgoWeighted && algo != AlgoUnanimous && approvals+float64(total-participated) <= ps.proposal.Threshold*denom {
		c.completeLocked(ps, false, approvals, participated, total)
		return
	}
	if participated == total {
		c.completeLocked(ps, rate > ps.proposal.Threshold, approvals, participated, total)
	}
}

func (c *Consensus) completeLocked(ps *proposalState, approved bool, approvals float64, participated, total int) {
	if ps.result != nil {
		return
	}
	participation := 1.0
	if total > 0 {
		participation = float64(participated) / float64(total)
	}
	rate := 0.0
	if total > 0 {
		rate = approvals / float64(total)
	}
	ps.result = &ConsensusResult{
		ProposalID:        ps.proposal.ID,
		Approved:          approved,
		ApprovalRate:      rate,
		ParticipationRate: participation,
		FinalValue:        ps.proposal.Value,
		Rounds:            1,
		DurationMs:        time.Since(ps.proposal.CreatedAt).Milliseconds(),
	}
	close(ps.done)

	metrics.ConsensusRounds.WithLabelValues(string(ps.proposal.Algorithm), strconv.FormatBool(approved)).Inc()
	metrics.ConsensusDuration.Observe(time.Since(ps.proposal.CreatedAt).Seconds())

	if c.events != nil {
		evt := "consensus.achieved"
		if !approved {
			evt = "consensus.failed"
		}
		c.events.Publish(Event{Type: evt, Source: "consensus", Data: map[string]interface{}{"proposalId": ps.proposal.ID}})
	}
}

func (c *Consensus) finalize(proposalID string) {
	c.mu.Lock()
	ps, ok := c.proposals[proposalID]
	c.mu.Unlock()
	if !ok {
		return
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.result != nil {
		return
	}
	approvals := 0.0
	for _, v := range ps.votes {
		if v.Decision == VoteApprove {
			approvals++
		}
	}
	c.completeLocked(ps, false, approvals, len(ps.votes), len(ps.voters))
}

// AwaitConsensus blocks until the proposal's result is available or the
// deadline has passed, whichever comes first.
func (c *Consensus) AwaitConsensus(proposalID string) (*ConsensusResult, error) {
	c.mu.Lock()
	ps, ok := c.proposals[proposalID]
	c.mu.Unlock()
	if !ok {
		return nil, preconditionErr("unknown_proposal", "no such proposal: "+proposalID)
	}
	<-ps.done
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.result, nil
}
