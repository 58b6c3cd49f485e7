package mortgage

import (
	"encoding/hex"
	"strconv"

	"stablemortgage/core/types"
)

const (
	EventTypeCreated    = "mortgage.created"
	EventTypeFunded     = "mortgage.funded"
	EventTypePayment    = "mortgage.payment"
	EventTypePaidOff    = "mortgage.paid_off"
	EventTypeLiquidated = "mortgage.liquidated"
	EventTypeClosed     = "mortgage.closed"
)

type mortgageEvent struct {
	evt *types.Event
}

func (m mortgageEvent) EventType() string {
	if m.evt == nil {
		return ""
	}
	return m.evt.Type
}

func (m mortgageEvent) Event() *types.Event { return m.evt }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(mortgageEvent{evt: evt})
}

func mortgageAttributes(record *Mortgage) map[string]string {
	return map[string]string{
		"mortgage": hex.EncodeToString(record.ID[:]),
		"borrower": record.Borrower.String(),
		"pool":     record.PoolID,
		"property": hex.EncodeToString(record.PropertyID[:]),
		"balance":  strconv.FormatUint(record.RemainingBalance, 10),
	}
}

func createdEvent(record *Mortgage) *types.Event {
	attrs := mortgageAttributes(record)
	attrs["loanAmount"] = strconv.FormatUint(record.LoanAmount, 10)
	attrs["propertyValue"] = strconv.FormatUint(record.PropertyValue, 10)
	attrs["periodicPayment"] = strconv.FormatUint(record.PeriodicPayment, 10)
	return &types.Event{Type: EventTypeCreated, Attributes: attrs}
}

func fundedEvent(record *Mortgage) *types.Event {
	attrs := mortgageAttributes(record)
	attrs["nextPaymentDue"] = strconv.FormatInt(record.NextPaymentDue, 10)
	return &types.Event{Type: EventTypeFunded, Attributes: attrs}
}

func paymentEvent(record *Mortgage, amount, principal, interest uint64) *types.Event {
	attrs := mortgageAttributes(record)
	attrs["amount"] = strconv.FormatUint(amount, 10)
	attrs["principal"] = strconv.FormatUint(principal, 10)
	attrs["interest"] = strconv.FormatUint(interest, 10)
	attrs["paymentsMade"] = strconv.FormatUint(record.PaymentsMade, 10)
	return &types.Event{Type: EventTypePayment, Attributes: attrs}
}

func paidOffEvent(record *Mortgage) *types.Event {
	attrs := mortgageAttributes(record)
	attrs["paymentsMade"] = strconv.FormatUint(record.PaymentsMade, 10)
	return &types.Event{Type: EventTypePaidOff, Attributes: attrs}
}

func liquidatedEvent(record *Mortgage) *types.Event {
	return &types.Event{Type: EventTypeLiquidated, Attributes: mortgageAttributes(record)}
}

func closedEvent(record *Mortgage) *types.Event {
	return &types.Event{Type: EventTypeClosed, Attributes: mortgageAttributes(record)}
}
