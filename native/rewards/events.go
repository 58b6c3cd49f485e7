package rewards

import (
	"strconv"

	"stablemortgage/core/types"
	"stablemortgage/crypto"
)

const (
	EventTypeRewardCredited = "rewards.credited"
	EventTypeRewardSkipped  = "rewards.skipped"
	EventTypeRewardClaimed  = "rewards.claimed"
)

type rewardEvent struct {
	evt *types.Event
}

func (r rewardEvent) EventType() string {
	if r.evt == nil {
		return ""
	}
	return r.evt.Type
}

func (r rewardEvent) Event() *types.Event { return r.evt }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(rewardEvent{evt: evt})
}

func rewardCreditedEvent(user crypto.Address, amount, earned uint64) *types.Event {
	return &types.Event{Type: EventTypeRewardCredited, Attributes: map[string]string{
		"user":   user.String(),
		"amount": strconv.FormatUint(amount, 10),
		"earned": strconv.FormatUint(earned, 10),
	}}
}

func rewardSkippedEvent(user crypto.Address, amount uint64, reason string) *types.Event {
	return &types.Event{Type: EventTypeRewardSkipped, Attributes: map[string]string{
		"user":   user.String(),
		"amount": strconv.FormatUint(amount, 10),
		"reason": reason,
	}}
}

func rewardClaimedEvent(user crypto.Address, amount uint64) *types.Event {
	return &types.Event{Type: EventTypeRewardClaimed, Attributes: map[string]string{
		"user":   user.String(),
		"amount": strconv.FormatUint(amount, 10),
	}}
}
