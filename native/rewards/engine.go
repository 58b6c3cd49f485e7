package rewards

import (
	"errors"
	"time"

	"stablemortgage/core/events"
	"stablemortgage/core/types"
	"stablemortgage/crypto"
	"stablemortgage/native/bank"
	"stablemortgage/native/common"
)

const moduleName = "rewards"

var (
	ErrNilState           = errors.New("rewards: state not configured")
	ErrAlreadyInitialized = errors.New("rewards: ledger already initialised")
	ErrNotInitialized     = errors.New("rewards: ledger not initialised")
	ErrInactive           = errors.New("rewards: ledger is not active")
	ErrNoRewardsToClaim   = errors.New("rewards: nothing to claim")
	ErrPoolEmpty          = errors.New("rewards: reward source is empty")
	ErrUnauthorized       = errors.New("rewards: caller is not the ledger authority")
	ErrInvalidConfig      = errors.New("rewards: invalid configuration")
)

// LedgerConfig is the one-time setup for the rewards program: who funds it,
// from which address, and how much one completed payment earns.
type LedgerConfig struct {
	Authority         crypto.Address `json:"authority"`
	RewardSource      crypto.Address `json:"rewardSource"`
	RewardsPerPayment uint64         `json:"rewardsPerPayment"`
	TotalDistributed  uint64         `json:"totalDistributed"`
	Active            bool           `json:"active"`
}

// Clone returns a copy of the ledger configuration.
func (c *LedgerConfig) Clone() *LedgerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// UserRewards accumulates earned and claimed incentive tokens for one user.
// Claimed never exceeds Earned.
type UserRewards struct {
	User        crypto.Address `json:"user"`
	Earned      uint64         `json:"earned"`
	Claimed     uint64         `json:"claimed"`
	LastClaimAt int64          `json:"lastClaimAt"`
}

// Claimable returns the unclaimed balance, saturating at zero.
func (u *UserRewards) Claimable() uint64 {
	if u == nil {
		return 0
	}
	return common.SaturatingSubU64(u.Earned, u.Claimed)
}

// Clone returns a copy of the user record.
func (u *UserRewards) Clone() *UserRewards {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

type engineState interface {
	RewardsConfigGet() (*LedgerConfig, bool, error)
	RewardsConfigPut(config *LedgerConfig) error
	UserRewardsGet(user crypto.Address) (*UserRewards, bool, error)
	UserRewardsPut(rewards *UserRewards) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// Engine holds the incentive accrual ledger. The mortgage engine credits it
// on each successful payment and users claim through it.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  common.PauseView
	nowFn   func() time.Time
}

// NewEngine constructs a rewards engine with default no-op dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

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

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn().Unix()
}

func (e *Engine) loadConfig() (*LedgerConfig, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	config, ok, err := e.state.RewardsConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return config, nil
}

func (e *Engine) ensureUser(user crypto.Address) (*UserRewards, error) {
	record, ok, err := e.state.UserRewardsGet(user)
	if err != nil {
		return nil, err
	}
	if !ok {
		record = &UserRewards{User: user}
	}
	return record, nil
}

// Initialize performs the one-time ledger setup.
func (e *Engine) Initialize(authority, rewardSource crypto.Address, rewardsPerPayment uint64) (*LedgerConfig, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if rewardsPerPayment == 0 || rewardSource.IsZero() {
		return nil, ErrInvalidConfig
	}
	if _, exists, err := e.state.RewardsConfigGet(); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrAlreadyInitialized
	}
	config := &LedgerConfig{
		Authority:         authority,
		RewardSource:      rewardSource,
		RewardsPerPayment: rewardsPerPayment,
		Active:            true,
	}
	if err := e.state.RewardsConfigPut(config); err != nil {
		return nil, err
	}
	return config.Clone(), nil
}

// Credit accrues the per-payment reward onto the user's earned total. The
// call is best-effort by design: a reward that would overflow the earned
// counter is skipped with an event rather than failing the triggering
// payment, the one documented exception to the abort-on-error policy.
func (e *Engine) Credit(user crypto.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return false, err
	}
	config, err := e.loadConfig()
	if err != nil {
		return false, err
	}
	if !config.Active {
		return false, ErrInactive
	}
	record, err := e.ensureUser(user)
	if err != nil {
		return false, err
	}
	newEarned, err := common.AddU64(record.Earned, config.RewardsPerPayment)
	if err != nil {
		e.emit(rewardSkippedEvent(user, config.RewardsPerPayment, "earned counter overflow"))
		return false, nil
	}
	record.Earned = newEarned
	if err := e.state.UserRewardsPut(record); err != nil {
		return false, err
	}
	e.emit(rewardCreditedEvent(user, config.RewardsPerPayment, record.Earned))
	return true, nil
}

// Claim pays out the user's entire unclaimed balance from the reward source.
func (e *Engine) Claim(user crypto.Address) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	config, err := e.loadConfig()
	if err != nil {
		return 0, err
	}
	if !config.Active {
		return 0, ErrInactive
	}
	record, err := e.ensureUser(user)
	if err != nil {
		return 0, err
	}
	claimable := record.Claimable()
	if claimable == 0 {
		return 0, ErrNoRewardsToClaim
	}

	sourceAcc, err := e.state.GetAccount(config.RewardSource)
	if err != nil {
		return 0, err
	}
	if sourceAcc.BalanceReward < claimable {
		return 0, ErrPoolEmpty
	}
	if err := bank.Transfer(e.state, config.RewardSource, user, claimable, bank.TokenReward); err != nil {
		return 0, err
	}

	newClaimed, err := common.AddU64(record.Claimed, claimable)
	if err != nil {
		return 0, err
	}
	newDistributed, err := common.AddU64(config.TotalDistributed, claimable)
	if err != nil {
		return 0, err
	}

	record.Claimed = newClaimed
	record.LastClaimAt = e.now()
	config.TotalDistributed = newDistributed

	if err := e.state.UserRewardsPut(record); err != nil {
		return 0, err
	}
	if err := e.state.RewardsConfigPut(config); err != nil {
		return 0, err
	}
	e.emit(rewardClaimedEvent(user, claimable))
	return claimable, nil
}

// Balance loads the user's reward record; an untouched user has zero totals.
func (e *Engine) Balance(user crypto.Address) (*UserRewards, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	record, err := e.ensureUser(user)
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}
