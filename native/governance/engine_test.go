package governance

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"stablemortgage/core/types"
	"stablemortgage/crypto"
	"stablemortgage/native/params"
)

type mockState struct {
	seq       uint64
	proposals map[uint64]*Proposal
	votes     map[string]*Vote
	accounts  map[string]*types.Account
}

func newMockState() *mockState {
	return &mockState{
		proposals: make(map[uint64]*Proposal),
		votes:     make(map[string]*Vote),
		accounts:  make(map[string]*types.Account),
	}
}

func (m *mockState) GovernanceNextProposalID() (uint64, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockState) GovernanceGetProposal(id uint64) (*Proposal, bool, error) {
	proposal, ok := m.proposals[id]
	if !ok {
		return nil, false, nil
	}
	return proposal.Clone(), true, nil
}

func (m *mockState) GovernancePutProposal(p *Proposal) error {
	m.proposals[p.ID] = p.Clone()
	return nil
}

func voteID(id uint64, voter crypto.Address) string {
	return voter.String() + "/" + string(rune(id))
}

func (m *mockState) GovernanceGetVote(id uint64, voter crypto.Address) (*Vote, bool, error) {
	vote, ok := m.votes[voteID(id, voter)]
	if !ok {
		return nil, false, nil
	}
	return vote.Clone(), true, nil
}

func (m *mockState) GovernancePutVote(v *Vote) error {
	m.votes[voteID(v.ProposalID, v.Voter)] = v.Clone()
	return nil
}

func (m *mockState) GetAccount(addr crypto.Address) (*types.Account, error) {
	if acc, ok := m.accounts[addr.String()]; ok {
		return acc.Clone(), nil
	}
	return &types.Account{}, nil
}

// mockApplier records applied parameter changes.
type mockApplier struct {
	appliedKey   params.Key
	appliedValue uint64
	calls        int
}

func (m *mockApplier) Update(key params.Key, value uint64) (params.Parameters, error) {
	m.appliedKey = key
	m.appliedValue = value
	m.calls++
	return params.Parameters{}, nil
}

func testAddr(seed byte) crypto.Address {
	return crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{seed}, 20))
}

type harness struct {
	engine  *Engine
	state   *mockState
	applier *mockApplier
	clock   *time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	state := newMockState()
	applier := &mockApplier{}
	now := time.Unix(1_700_000_000, 0)
	clock := &now

	engine := NewEngine()
	engine.SetState(state)
	engine.SetParamStore(applier)
	engine.SetNowFunc(func() time.Time { return *clock })
	return &harness{engine: engine, state: state, applier: applier, clock: clock}
}

func (h *harness) advance(d time.Duration) { *h.clock = h.clock.Add(d) }

func (h *harness) fundVoter(seed byte, balance uint64) crypto.Address {
	voter := testAddr(seed)
	h.state.accounts[voter.String()] = &types.Account{BalanceStable: balance}
	return voter
}

func (h *harness) propose(t *testing.T) *Proposal {
	t.Helper()
	proposal, err := h.engine.Propose(testAddr(0x01), "Lower threshold", "Reduce the liquidation threshold", "liquidation_threshold", 70)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	return proposal
}

func TestProposeValidatesTextLimits(t *testing.T) {
	h := newHarness(t)
	proposer := testAddr(0x01)

	if _, err := h.engine.Propose(proposer, "", "", "liquidation_threshold", 70); !errors.Is(err, ErrEmptyTitle) {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
	if _, err := h.engine.Propose(proposer, strings.Repeat("t", MaxTitleLen+1), "", "liquidation_threshold", 70); !errors.Is(err, ErrTitleLength) {
		t.Fatalf("expected ErrTitleLength, got %v", err)
	}
	if _, err := h.engine.Propose(proposer, "t", strings.Repeat("d", MaxDescriptionLen+1), "liquidation_threshold", 70); !errors.Is(err, ErrDescriptionLength) {
		t.Fatalf("expected ErrDescriptionLength, got %v", err)
	}
	if _, err := h.engine.Propose(proposer, "t", "", strings.Repeat("k", MaxKeyLen+1), 70); !errors.Is(err, ErrKeyLength) {
		t.Fatalf("expected ErrKeyLength, got %v", err)
	}
	if _, err := h.engine.Propose(proposer, "t", "", "max_leverage", 70); !errors.Is(err, params.ErrInvalidParameter) {
		t.Fatalf("expected params.ErrInvalidParameter, got %v", err)
	}
}

func TestProposeAllocatesSequentialIDs(t *testing.T) {
	h := newHarness(t)
	first := h.propose(t)
	second := h.propose(t)
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("proposal ids: %d, %d", first.ID, second.ID)
	}
	if first.Status != ProposalStatusActive {
		t.Fatalf("new proposal status: %v", first.Status)
	}
}

func TestCastVoteOncePerVoter(t *testing.T) {
	h := newHarness(t)
	proposal := h.propose(t)
	voter := h.fundVoter(0x02, 1_000)

	if err := h.engine.CastVote(voter, proposal.ID, 500, true); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := h.engine.CastVote(voter, proposal.ID, 100, false); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}

	stored, _, err := h.state.GovernanceGetProposal(proposal.ID)
	if err != nil {
		t.Fatalf("get proposal: %v", err)
	}
	if stored.YesVotes != 500 || stored.NoVotes != 0 {
		t.Fatalf("tally: yes=%d no=%d", stored.YesVotes, stored.NoVotes)
	}
}

func TestCastVoteBoundedByBalance(t *testing.T) {
	h := newHarness(t)
	proposal := h.propose(t)
	voter := h.fundVoter(0x02, 100)

	if err := h.engine.CastVote(voter, proposal.ID, 101, true); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
	if err := h.engine.CastVote(voter, proposal.ID, 0, true); !errors.Is(err, ErrInvalidVote) {
		t.Fatalf("expected ErrInvalidVote, got %v", err)
	}
}

func TestCastVoteClosesAtExecutionTime(t *testing.T) {
	h := newHarness(t)
	proposal := h.propose(t)
	voter := h.fundVoter(0x02, 1_000)

	h.advance(DefaultVotingPeriod)
	if err := h.engine.CastVote(voter, proposal.ID, 100, true); !errors.Is(err, ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed, got %v", err)
	}
}

func TestExecuteAppliesPassedProposal(t *testing.T) {
	h := newHarness(t)
	proposal := h.propose(t)
	yes := h.fundVoter(0x02, 1_000)
	no := h.fundVoter(0x03, 1_000)

	if err := h.engine.CastVote(yes, proposal.ID, 600, true); err != nil {
		t.Fatalf("yes vote: %v", err)
	}
	if err := h.engine.CastVote(no, proposal.ID, 400, false); err != nil {
		t.Fatalf("no vote: %v", err)
	}

	if _, err := h.engine.Execute(proposal.ID); !errors.Is(err, ErrVotingOpen) {
		t.Fatalf("early execute: expected ErrVotingOpen, got %v", err)
	}

	h.advance(DefaultVotingPeriod)
	executed, err := h.engine.Execute(proposal.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if executed.Status != ProposalStatusExecuted {
		t.Fatalf("status: %v", executed.Status)
	}
	if h.applier.calls != 1 || h.applier.appliedKey != params.KeyLiquidationThreshold || h.applier.appliedValue != 70 {
		t.Fatalf("parameter change not applied: %+v", h.applier)
	}

	if _, err := h.engine.Execute(proposal.ID); !errors.Is(err, ErrNotActive) {
		t.Fatalf("double execute: expected ErrNotActive, got %v", err)
	}
}

func TestExecuteRejectsFailedTally(t *testing.T) {
	h := newHarness(t)
	proposal := h.propose(t)
	voter := h.fundVoter(0x02, 1_000)
	if err := h.engine.CastVote(voter, proposal.ID, 500, false); err != nil {
		t.Fatalf("vote: %v", err)
	}

	h.advance(DefaultVotingPeriod)
	rejected, err := h.engine.Execute(proposal.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if rejected.Status != ProposalStatusRejected {
		t.Fatalf("returned status: %v", rejected.Status)
	}
	stored, _, _ := h.state.GovernanceGetProposal(proposal.ID)
	if stored.Status != ProposalStatusRejected {
		t.Fatalf("stored status: %v", stored.Status)
	}
	if h.applier.calls != 0 {
		t.Fatalf("rejected proposal applied a change")
	}

	if _, err := h.engine.Execute(proposal.ID); !errors.Is(err, ErrNotActive) {
		t.Fatalf("re-execute after rejection: expected ErrNotActive, got %v", err)
	}
}

func TestExecuteExpiresStaleProposal(t *testing.T) {
	h := newHarness(t)
	proposal := h.propose(t)
	voter := h.fundVoter(0x02, 1_000)
	if err := h.engine.CastVote(voter, proposal.ID, 500, true); err != nil {
		t.Fatalf("vote: %v", err)
	}

	h.advance(DefaultVotingPeriod + DefaultExecutionWindow + time.Second)
	expired, err := h.engine.Execute(proposal.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if expired.Status != ProposalStatusExpired {
		t.Fatalf("returned status: %v", expired.Status)
	}
	stored, _, _ := h.state.GovernanceGetProposal(proposal.ID)
	if stored.Status != ProposalStatusExpired {
		t.Fatalf("stored status: %v", stored.Status)
	}
	if h.applier.calls != 0 {
		t.Fatalf("expired proposal applied a change")
	}

	if _, err := h.engine.Execute(proposal.ID); !errors.Is(err, ErrNotActive) {
		t.Fatalf("re-execute after expiry: expected ErrNotActive, got %v", err)
	}
}
