package params

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const storeKey = "params/global"

// StoreState captures the subset of state manager capabilities required by the
// parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Store provides typed accessors for the governance-controlled parameters.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// Set persists the supplied parameters under the canonical store key after
// validating them. Values are marshalled as JSON to align with governance
// proposal payloads.
func (s *Store) Set(p Parameters) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("params: encode parameters: %w", err)
	}
	return state.ParamStoreSet(storeKey, encoded)
}

// Get loads the persisted parameters. The boolean result reports whether a
// value was present.
func (s *Store) Get() (Parameters, bool, error) {
	state, err := s.withState()
	if err != nil {
		return Parameters{}, false, err
	}
	raw, ok, err := state.ParamStoreGet(storeKey)
	if err != nil {
		return Parameters{}, false, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return Parameters{}, false, nil
	}
	var p Parameters
	if err := json.Unmarshal(raw, &p); err != nil {
		return Parameters{}, false, fmt.Errorf("params: decode parameters: %w", err)
	}
	return p, true, nil
}

// Update applies a single governance change on top of the persisted
// parameters and writes the result back.
func (s *Store) Update(key Key, value uint64) (Parameters, error) {
	current, ok, err := s.Get()
	if err != nil {
		return Parameters{}, err
	}
	if !ok {
		return Parameters{}, fmt.Errorf("params: parameters not initialised")
	}
	updated, err := current.Apply(key, value)
	if err != nil {
		return Parameters{}, err
	}
	if err := s.Set(updated); err != nil {
		return Parameters{}, err
	}
	return updated, nil
}
