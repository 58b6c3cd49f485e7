package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"stablemortgage/core/types"
	"stablemortgage/crypto"
	"stablemortgage/storage"
)

// Key prefixes for the record families stored by the manager. Every record is
// JSON-encoded under a typed key so the layout stays inspectable in the raw
// database.
const (
	accountPrefix     = "account/"
	paramPrefix       = "param/"
	poolPrefix        = "pool/"
	positionPrefix    = "position/"
	collateralPrefix  = "collateral/"
	riskPrefix        = "risk/"
	mortgagePrefix    = "mortgage/"
	rewardsConfigKey  = "rewards/config"
	rewardsUserPrefix = "rewards/user/"
	proposalPrefix    = "governance/proposal/"
	votePrefix        = "governance/vote/"
	proposalSeqKey    = "governance/seq"
)

var (
	// ErrNoTransaction is returned by Commit and Rollback outside a Begin.
	ErrNoTransaction = errors.New("state: no transaction in progress")
	// ErrInTransaction is returned by Begin while a transaction is open.
	ErrInTransaction = errors.New("state: transaction already in progress")
)

// Manager persists every module's records on a key-value database. Writes
// between Begin and Commit are buffered in an overlay so a failed operation
// can be rolled back without touching the database, which gives every engine
// call all-or-nothing semantics.
//
// The manager serialises access internally; engines may share one instance.
type Manager struct {
	mu      sync.Mutex
	db      storage.Database
	overlay map[string][]byte
}

// NewManager constructs a manager over the given database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a write overlay. Reads observe the overlay first, then the
// database; writes stay in the overlay until Commit.
func (m *Manager) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overlay != nil {
		return ErrInTransaction
	}
	m.overlay = make(map[string][]byte)
	return nil
}

// Commit flushes the overlay to the database and closes the transaction.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overlay == nil {
		return ErrNoTransaction
	}
	for key, value := range m.overlay {
		if err := m.db.Put([]byte(key), value); err != nil {
			return fmt.Errorf("state: commit %q: %w", key, err)
		}
	}
	m.overlay = nil
	return nil
}

// Rollback discards the overlay, leaving the database untouched.
func (m *Manager) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overlay == nil {
		return ErrNoTransaction
	}
	m.overlay = nil
	return nil
}

// WithTransaction runs fn inside a Begin/Commit pair, rolling back when fn
// returns an error.
func (m *Manager) WithTransaction(fn func() error) error {
	if err := m.Begin(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := m.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return m.Commit()
}

func (m *Manager) readRaw(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overlay != nil {
		if value, ok := m.overlay[key]; ok {
			return value, true, nil
		}
	}
	value, err := m.db.Get([]byte(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (m *Manager) writeRaw(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overlay != nil {
		m.overlay[key] = value
		return nil
	}
	return m.db.Put([]byte(key), value)
}

func (m *Manager) readRecord(key string, dest interface{}) (bool, error) {
	raw, ok, err := m.readRaw(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) writeRecord(key string, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.writeRaw(key, encoded)
}

// GetAccount loads an account, returning a zero-valued account for unknown
// addresses so callers never see a nil record.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	account := &types.Account{}
	if _, err := m.readRecord(accountPrefix+addr.String(), account); err != nil {
		return nil, err
	}
	return account, nil
}

// PutAccount stores an account record.
func (m *Manager) PutAccount(addr crypto.Address, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account for %s", addr.String())
	}
	return m.writeRecord(accountPrefix+addr.String(), account)
}

// ParamStoreSet writes a named parameter blob.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	return m.writeRaw(paramPrefix+name, append([]byte(nil), value...))
}

// ParamStoreGet reads a named parameter blob.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	return m.readRaw(paramPrefix + name)
}

// GovernanceNextProposalID allocates the next proposal identifier, starting
// at 1. The increment participates in the overlay like any other write.
func (m *Manager) GovernanceNextProposalID() (uint64, error) {
	raw, ok, err := m.readRaw(proposalSeqKey)
	if err != nil {
		return 0, err
	}
	var next uint64 = 1
	if ok && len(raw) == 8 {
		next = binary.BigEndian.Uint64(raw) + 1
	}
	var encoded [8]byte
	binary.BigEndian.PutUint64(encoded[:], next)
	if err := m.writeRaw(proposalSeqKey, encoded[:]); err != nil {
		return 0, err
	}
	return next, nil
}
