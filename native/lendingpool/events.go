package lendingpool

import (
	"strconv"

	"stablemortgage/core/types"
	"stablemortgage/crypto"
)

const (
	EventTypePoolCreated     = "lendingpool.created"
	EventTypePoolDeposit     = "lendingpool.deposit"
	EventTypePoolWithdraw    = "lendingpool.withdraw"
	EventTypePoolDeactivated = "lendingpool.deactivated"
)

type poolEvent struct {
	evt *types.Event
}

func (p poolEvent) EventType() string {
	if p.evt == nil {
		return ""
	}
	return p.evt.Type
}

func (p poolEvent) Event() *types.Event { return p.evt }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(poolEvent{evt: evt})
}

func poolAttributes(pool *Pool) map[string]string {
	return map[string]string{
		"pool":           pool.ID,
		"totalDeposited": strconv.FormatUint(pool.TotalDeposited, 10),
		"totalBorrowed":  strconv.FormatUint(pool.TotalBorrowed, 10),
	}
}

func poolCreatedEvent(pool *Pool) *types.Event {
	attrs := poolAttributes(pool)
	attrs["authority"] = pool.Authority.String()
	attrs["interestRateBps"] = strconv.FormatUint(pool.InterestRateBps, 10)
	attrs["loanDuration"] = strconv.FormatUint(pool.LoanDuration, 10)
	return &types.Event{Type: EventTypePoolCreated, Attributes: attrs}
}

func poolDepositEvent(pool *Pool, lender crypto.Address, amount uint64) *types.Event {
	attrs := poolAttributes(pool)
	attrs["lender"] = lender.String()
	attrs["amount"] = strconv.FormatUint(amount, 10)
	return &types.Event{Type: EventTypePoolDeposit, Attributes: attrs}
}

func poolWithdrawEvent(pool *Pool, lender crypto.Address, amount uint64) *types.Event {
	attrs := poolAttributes(pool)
	attrs["lender"] = lender.String()
	attrs["amount"] = strconv.FormatUint(amount, 10)
	return &types.Event{Type: EventTypePoolWithdraw, Attributes: attrs}
}

func poolDeactivatedEvent(pool *Pool) *types.Event {
	return &types.Event{Type: EventTypePoolDeactivated, Attributes: poolAttributes(pool)}
}
