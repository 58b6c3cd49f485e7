package collateral

import (
	"stablemortgage/crypto"
)

// MaxDescriptorLen bounds the free-text property descriptor persisted with
// each collateral record.
const MaxDescriptorLen = 100

// Property captures the ownership and lock state of a single collateral item.
// A property may back at most one mortgage at a time: Locked is set iff
// LockedBy carries the identifier of the mortgage holding the lock.
type Property struct {
	ID           [32]byte       `json:"id"`
	Owner        crypto.Address `json:"owner"`
	Value        uint64         `json:"value"`
	Descriptor   string         `json:"descriptor"`
	Locked       bool           `json:"locked"`
	LockedBy     [32]byte       `json:"lockedBy"`
	RegisteredAt int64          `json:"registeredAt"`
}

// Clone returns a deep copy of the property record.
func (p *Property) Clone() *Property {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
