package swarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConsensusWithVoters(n int) (*Consensus, []string) {
	c := NewConsensus(func(string) float64 { return 1.0 }, nil, nil, testLogger())
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = NewID()
		c.RegisterVoter(ids[i])
	}
	return c, ids
}

func TestConsensusMajorityApproval(t *testing.T) {
	c, voters := newConsensusWithVoters(15)
	p, err := c.Propose("deploy", "coordinator", AlgoMajority, "generic", false, 0)
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		require.NoError(t, c.Vote(Vote{ProposalID: p.ID, Voter: voters[i], Decision: VoteApprove}))
	}
	for i := 8; i < 14; i++ {
		require.NoError(t, c.Vote(Vote{ProposalID: p.ID, Voter: voters[i], Decision: VoteReject}))
	}
	require.NoError(t, c.Vote(Vote{ProposalID: p.ID, Voter: voters[14], Decision: VoteAbstain}))

	res, err := c.AwaitConsensus(p.ID)
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.InDelta(t, 8.0/15.0, res.ApprovalRate, 0.01)
	assert.Equal(t, 1, res.Rounds)
}

func TestConsensusUnanimousFailsOnSingleReject(t *testing.T) {
	c, voters := newConsensusWithVoters(3)
	p, err := c.Propose("policy", "coordinator", AlgoUnanimous, "generic", false, 0)
	require.NoError(t, err)

	require.NoError(t, c.Vote(Vote{ProposalID: p.ID, Voter: voters[0], Decision: VoteApprove}))
	require.NoError(t, c.Vote(Vote{ProposalID: p.ID, Voter: voters[1], Decision: VoteReject}))

	res, err := c.AwaitConsensus(p.ID)
	require.NoError(t, err)
	assert.False(t, res.Approved)
}

func TestConsensusQueenOverrideRejectsDisallowedDecisionType(t *testing.T) {
	c, _ := newConsensusWithVoters(3)
	_, err := c.Propose("assign", "queen", AlgoQueenOverride, "task-assignment", false, 0)
	assert.Error(t, err)
}

func TestConsensusQueenOverrideAllowedForEmergency(t *testing.T) {
	c, _ := newConsensusWithVoters(3)
	p, err := c.Propose("halt", "queen", AlgoQueenOverride, "emergency-action", false, 0)
	require.NoError(t, err)
	res, err := c.AwaitConsensus(p.ID)
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.Equal(t, 1.0, res.ApprovalRate)
	assert.Equal(t, 1, res.Rounds)
}

func TestConsensusDeadlineExpiryYieldsUnapproved(t *testing.T) {
	c, voters := newConsensusWithVoters(5)
	p, err := c.Propose("x", "coordinator", AlgoMajority, "generic", false, 0)
	require.NoError(t, err)
	require.NoError(t, c.Vote(Vote{ProposalID: p.ID, Voter: voters[0], Decision: VoteApprove}))

	res, err := c.AwaitConsensus(p.ID)
	require.NoError(t, err)
	assert.False(t, res.Approved)
	assert.LessOrEqual(t, res.DurationMs, algoTimeout(AlgoMajority).Milliseconds()+2000)
	_ = time.Now()
}
