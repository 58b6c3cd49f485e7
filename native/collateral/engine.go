package collateral

import (
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"stablemortgage/crypto"
)

var (
	ErrNilState          = errors.New("collateral: state not configured")
	ErrNotFound          = errors.New("collateral: property not found")
	ErrAlreadyRegistered = errors.New("collateral: property already registered")
	ErrAlreadyLocked     = errors.New("collateral: property already locked")
	ErrNotLocked         = errors.New("collateral: property not locked")
	ErrNotOwner          = errors.New("collateral: caller is not the property owner")
	ErrInvalidValue      = errors.New("collateral: property value must be positive")
	ErrDescriptorLength  = errors.New("collateral: descriptor exceeds maximum length")
	ErrLockedTransfer    = errors.New("collateral: ownership transfer requires the lock holder")
)

type engineState interface {
	CollateralGet(id [32]byte) (*Property, bool, error)
	CollateralPut(property *Property) error
}

// Engine owns the collateral registry: registration, lock bookkeeping and
// the forced ownership transfer performed during liquidation.
type Engine struct {
	state engineState
	nowFn func() time.Time
}

// NewEngine constructs a registry engine with the default wall clock.
func NewEngine() *Engine {
	return &Engine{nowFn: func() time.Time { return time.Now().UTC() }}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetNowFunc overrides the time source used when stamping registrations.
// Primarily intended for tests.
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

// Register creates a collateral record owned by the caller. The identifier is
// derived from the owner and a caller-supplied nonce so registrations stay
// deterministic.
func (e *Engine) Register(owner crypto.Address, nonce uint64, value uint64, descriptor string) (*Property, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if value == 0 {
		return nil, ErrInvalidValue
	}
	trimmed := strings.TrimSpace(descriptor)
	if len(trimmed) > MaxDescriptorLen {
		return nil, ErrDescriptorLength
	}

	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	id := crypto.RecordID(owner.Bytes(), nonceBytes[:])

	if _, exists, err := e.state.CollateralGet(id); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrAlreadyRegistered
	}

	property := &Property{
		ID:           id,
		Owner:        owner,
		Value:        value,
		Descriptor:   trimmed,
		RegisteredAt: e.now(),
	}
	if err := e.state.CollateralPut(property); err != nil {
		return nil, err
	}
	return property.Clone(), nil
}

// Get loads a property record by identifier.
func (e *Engine) Get(id [32]byte) (*Property, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	property, ok, err := e.state.CollateralGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return property.Clone(), nil
}

// Lock marks the property as collateral held by the given mortgage. A locked
// property cannot be locked again until the holder releases it.
func (e *Engine) Lock(id [32]byte, holder [32]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	property, ok, err := e.state.CollateralGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if property.Locked {
		return ErrAlreadyLocked
	}
	property.Locked = true
	property.LockedBy = holder
	return e.state.CollateralPut(property)
}

// Unlock clears the lock. Only meaningful for locked properties; unlocking an
// unlocked property is a state error.
func (e *Engine) Unlock(id [32]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	property, ok, err := e.state.CollateralGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if !property.Locked {
		return ErrNotLocked
	}
	property.Locked = false
	property.LockedBy = [32]byte{}
	return e.state.CollateralPut(property)
}

// Seize transfers ownership of a locked property to the recipient and clears
// the lock in one step. The caller must supply the mortgage currently holding
// the lock; liquidation is the only flow that uses this.
func (e *Engine) Seize(id [32]byte, holder [32]byte, recipient crypto.Address) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	property, ok, err := e.state.CollateralGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if !property.Locked {
		return ErrNotLocked
	}
	if property.LockedBy != holder {
		return ErrLockedTransfer
	}
	property.Owner = recipient
	property.Locked = false
	property.LockedBy = [32]byte{}
	return e.state.CollateralPut(property)
}
