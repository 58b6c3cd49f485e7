package governance

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"stablemortgage/core/events"
	"stablemortgage/core/types"
	"stablemortgage/crypto"
	"stablemortgage/native/common"
	"stablemortgage/native/params"
)

const moduleName = "governance"

const (
	EventTypeProposed = "governance.proposed"
	EventTypeVoteCast = "governance.vote"
	EventTypeExecuted = "governance.executed"
	EventTypeRejected = "governance.rejected"
	EventTypeExpired  = "governance.expired"
)

// DefaultVotingPeriod is the span between proposal admission and the earliest
// execution time when no policy override is configured.
const DefaultVotingPeriod = 7 * 24 * time.Hour

// DefaultExecutionWindow bounds how long after the execution time a passed
// proposal may still be executed before it lapses.
const DefaultExecutionWindow = 30 * 24 * time.Hour

var (
	ErrNilState          = errors.New("governance: state not configured")
	ErrNilParamStore     = errors.New("governance: parameter store not configured")
	ErrNotFound          = errors.New("governance: proposal not found")
	ErrNotActive         = errors.New("governance: proposal is not active")
	ErrTitleLength       = errors.New("governance: title exceeds maximum length")
	ErrDescriptionLength = errors.New("governance: description exceeds maximum length")
	ErrKeyLength         = errors.New("governance: parameter key exceeds maximum length")
	ErrEmptyTitle        = errors.New("governance: title must not be empty")
	ErrInvalidVote       = errors.New("governance: vote amount must be positive")
	ErrInsufficientStake = errors.New("governance: vote amount exceeds voter balance")
	ErrAlreadyVoted      = errors.New("governance: voter has already voted on this proposal")
	ErrVotingClosed      = errors.New("governance: voting period has ended")
	ErrVotingOpen        = errors.New("governance: voting period has not ended")
)

type engineState interface {
	GovernanceNextProposalID() (uint64, error)
	GovernanceGetProposal(id uint64) (*Proposal, bool, error)
	GovernancePutProposal(p *Proposal) error
	GovernanceGetVote(id uint64, voter crypto.Address) (*Vote, bool, error)
	GovernancePutVote(v *Vote) error
	GetAccount(addr crypto.Address) (*types.Account, error)
}

// paramApplier is the slice of the parameter store the engine needs to apply
// a passed proposal.
type paramApplier interface {
	Update(key params.Key, value uint64) (params.Parameters, error)
}

// Engine runs the tally-and-apply proposal machine that controls the global
// loan parameters.
type Engine struct {
	state           engineState
	paramStore      paramApplier
	emitter         events.Emitter
	pauses          common.PauseView
	nowFn           func() time.Time
	votingPeriod    time.Duration
	executionWindow time.Duration
}

// NewEngine constructs a governance engine with default no-op dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter:         events.NoopEmitter{},
		nowFn:           func() time.Time { return time.Now().UTC() },
		votingPeriod:    DefaultVotingPeriod,
		executionWindow: DefaultExecutionWindow,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetParamStore wires the parameter store mutated by executed proposals.
func (e *Engine) SetParamStore(store paramApplier) { e.paramStore = store }

// SetPauses wires the module pause switchboard.
func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Nil restores the no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

// SetVotingPeriod overrides the default voting period. Non-positive values
// are ignored.
func (e *Engine) SetVotingPeriod(period time.Duration) {
	if e == nil || period <= 0 {
		return
	}
	e.votingPeriod = period
}

// SetExecutionWindow overrides the default execution window. Non-positive
// values are ignored.
func (e *Engine) SetExecutionWindow(window time.Duration) {
	if e == nil || window <= 0 {
		return
	}
	e.executionWindow = window
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn().Unix()
}

func (e *Engine) load(id uint64) (*Proposal, error) {
	proposal, ok, err := e.state.GovernanceGetProposal(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return proposal, nil
}

// Propose admits a parameter change proposal. The key string is validated
// and parsed up front so only the seven recognised parameters ever reach the
// voting stage.
func (e *Engine) Propose(proposer crypto.Address, title, description, key string, newValue uint64) (*Proposal, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if len(title) > MaxTitleLen {
		return nil, ErrTitleLength
	}
	if len(description) > MaxDescriptionLen {
		return nil, ErrDescriptionLength
	}
	if len(key) > MaxKeyLen {
		return nil, ErrKeyLength
	}
	parsedKey, err := params.ParseKey(key)
	if err != nil {
		return nil, err
	}

	id, err := e.state.GovernanceNextProposalID()
	if err != nil {
		return nil, err
	}
	now := e.now()
	proposal := &Proposal{
		ID:            id,
		Proposer:      proposer,
		Title:         title,
		Description:   description,
		ParameterKey:  parsedKey,
		NewValue:      newValue,
		CreatedAt:     now,
		ExecutionTime: now + int64(e.votingPeriod/time.Second),
		Status:        ProposalStatusActive,
	}
	if err := e.state.GovernancePutProposal(proposal); err != nil {
		return nil, err
	}
	e.emit(proposedEvent(proposal))
	return proposal.Clone(), nil
}

// CastVote records a weighted ballot. A voter gets one ballot per proposal
// and the weight is capped by the voter's stable balance at vote time.
func (e *Engine) CastVote(voter crypto.Address, proposalID uint64, amount uint64, support bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidVote
	}
	proposal, err := e.load(proposalID)
	if err != nil {
		return err
	}
	if proposal.Status != ProposalStatusActive {
		return ErrNotActive
	}
	now := e.now()
	if now >= proposal.ExecutionTime {
		return ErrVotingClosed
	}
	if _, voted, err := e.state.GovernanceGetVote(proposalID, voter); err != nil {
		return err
	} else if voted {
		return ErrAlreadyVoted
	}

	account, err := e.state.GetAccount(voter)
	if err != nil {
		return err
	}
	if account == nil || account.BalanceStable < amount {
		return ErrInsufficientStake
	}

	if support {
		tallied, err := common.AddU64(proposal.YesVotes, amount)
		if err != nil {
			return err
		}
		proposal.YesVotes = tallied
	} else {
		tallied, err := common.AddU64(proposal.NoVotes, amount)
		if err != nil {
			return err
		}
		proposal.NoVotes = tallied
	}

	vote := &Vote{
		ProposalID: proposalID,
		Voter:      voter,
		Amount:     amount,
		Support:    support,
		Timestamp:  now,
	}
	if err := e.state.GovernancePutVote(vote); err != nil {
		return err
	}
	if err := e.state.GovernancePutProposal(proposal); err != nil {
		return err
	}
	e.emit(voteEvent(vote))
	return nil
}

// Execute finalises a proposal once its execution time has arrived. Passing
// proposals apply their parameter change through the typed store; failing
// ones transition to Rejected; proposals executed after the execution window
// lapse to Expired. Every terminal transition is a successful state change
// so callers running inside a transaction persist it; the returned proposal
// carries the outcome in its Status. Each transition happens at most once.
func (e *Engine) Execute(proposalID uint64) (*Proposal, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if e.paramStore == nil {
		return nil, ErrNilParamStore
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	proposal, err := e.load(proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.Status != ProposalStatusActive {
		return nil, ErrNotActive
	}
	now := e.now()
	if now < proposal.ExecutionTime {
		return nil, ErrVotingOpen
	}
	if now > proposal.ExecutionTime+int64(e.executionWindow/time.Second) {
		proposal.Status = ProposalStatusExpired
		if err := e.state.GovernancePutProposal(proposal); err != nil {
			return nil, err
		}
		e.emit(statusEvent(EventTypeExpired, proposal))
		return proposal.Clone(), nil
	}
	if proposal.YesVotes <= proposal.NoVotes {
		proposal.Status = ProposalStatusRejected
		if err := e.state.GovernancePutProposal(proposal); err != nil {
			return nil, err
		}
		e.emit(statusEvent(EventTypeRejected, proposal))
		return proposal.Clone(), nil
	}

	if _, err := e.paramStore.Update(proposal.ParameterKey, proposal.NewValue); err != nil {
		return nil, err
	}
	proposal.Status = ProposalStatusExecuted
	if err := e.state.GovernancePutProposal(proposal); err != nil {
		return nil, err
	}
	e.emit(statusEvent(EventTypeExecuted, proposal))
	return proposal.Clone(), nil
}

// Get loads a proposal snapshot by identifier.
func (e *Engine) Get(proposalID uint64) (*Proposal, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	proposal, err := e.load(proposalID)
	if err != nil {
		return nil, err
	}
	return proposal.Clone(), nil
}

type governanceEvent struct {
	evt *types.Event
}

func (g governanceEvent) EventType() string {
	if g.evt == nil {
		return ""
	}
	return g.evt.Type
}

func (g governanceEvent) Event() *types.Event { return g.evt }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(governanceEvent{evt: evt})
}

func proposedEvent(p *Proposal) *types.Event {
	return &types.Event{Type: EventTypeProposed, Attributes: map[string]string{
		"id":            strconv.FormatUint(p.ID, 10),
		"proposer":      p.Proposer.String(),
		"parameterKey":  p.ParameterKey.String(),
		"newValue":      strconv.FormatUint(p.NewValue, 10),
		"executionTime": strconv.FormatInt(p.ExecutionTime, 10),
	}}
}

func voteEvent(v *Vote) *types.Event {
	return &types.Event{Type: EventTypeVoteCast, Attributes: map[string]string{
		"id":      strconv.FormatUint(v.ProposalID, 10),
		"voter":   v.Voter.String(),
		"amount":  strconv.FormatUint(v.Amount, 10),
		"support": strconv.FormatBool(v.Support),
	}}
}

func statusEvent(eventType string, p *Proposal) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"id":       strconv.FormatUint(p.ID, 10),
		"status":   p.Status.String(),
		"yesVotes": strconv.FormatUint(p.YesVotes, 10),
		"noVotes":  strconv.FormatUint(p.NoVotes, 10),
	}}
}
