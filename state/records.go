package state

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"stablemortgage/crypto"
	"stablemortgage/native/collateral"
	"stablemortgage/native/governance"
	"stablemortgage/native/lendingpool"
	"stablemortgage/native/mortgage"
	"stablemortgage/native/rewards"
	"stablemortgage/native/risk"
)

func poolKey(id string) string { return poolPrefix + id }

func positionKey(poolID string, owner crypto.Address) string {
	return positionPrefix + poolID + "/" + owner.String()
}

func collateralKey(id [32]byte) string { return collateralPrefix + hex.EncodeToString(id[:]) }

func riskKey(propertyID [32]byte) string { return riskPrefix + hex.EncodeToString(propertyID[:]) }

func mortgageKey(id [32]byte) string { return mortgagePrefix + hex.EncodeToString(id[:]) }

func proposalKey(id uint64) string { return proposalPrefix + strconv.FormatUint(id, 10) }

func voteKey(id uint64, voter crypto.Address) string {
	return votePrefix + strconv.FormatUint(id, 10) + "/" + voter.String()
}

// PoolGet loads a lending pool record.
func (m *Manager) PoolGet(id string) (*lendingpool.Pool, bool, error) {
	pool := &lendingpool.Pool{}
	ok, err := m.readRecord(poolKey(id), pool)
	if err != nil || !ok {
		return nil, false, err
	}
	return pool, true, nil
}

// PoolPut stores a lending pool record.
func (m *Manager) PoolPut(pool *lendingpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("state: nil pool")
	}
	return m.writeRecord(poolKey(pool.ID), pool)
}

// PositionGet loads a lender position for a (pool, owner) pair.
func (m *Manager) PositionGet(poolID string, owner crypto.Address) (*lendingpool.LenderPosition, bool, error) {
	position := &lendingpool.LenderPosition{}
	ok, err := m.readRecord(positionKey(poolID, owner), position)
	if err != nil || !ok {
		return nil, false, err
	}
	return position, true, nil
}

// PositionPut stores a lender position.
func (m *Manager) PositionPut(position *lendingpool.LenderPosition) error {
	if position == nil {
		return fmt.Errorf("state: nil position")
	}
	return m.writeRecord(positionKey(position.PoolID, position.Owner), position)
}

// CollateralGet loads a registered property.
func (m *Manager) CollateralGet(id [32]byte) (*collateral.Property, bool, error) {
	property := &collateral.Property{}
	ok, err := m.readRecord(collateralKey(id), property)
	if err != nil || !ok {
		return nil, false, err
	}
	return property, true, nil
}

// CollateralPut stores a property record.
func (m *Manager) CollateralPut(property *collateral.Property) error {
	if property == nil {
		return fmt.Errorf("state: nil property")
	}
	return m.writeRecord(collateralKey(property.ID), property)
}

// RiskAssessmentGet loads the assessment for a property.
func (m *Manager) RiskAssessmentGet(propertyID [32]byte) (*risk.Assessment, bool, error) {
	assessment := &risk.Assessment{}
	ok, err := m.readRecord(riskKey(propertyID), assessment)
	if err != nil || !ok {
		return nil, false, err
	}
	return assessment, true, nil
}

// RiskAssessmentPut stores an assessment.
func (m *Manager) RiskAssessmentPut(assessment *risk.Assessment) error {
	if assessment == nil {
		return fmt.Errorf("state: nil assessment")
	}
	return m.writeRecord(riskKey(assessment.PropertyID), assessment)
}

// MortgageGet loads a mortgage record.
func (m *Manager) MortgageGet(id [32]byte) (*mortgage.Mortgage, bool, error) {
	record := &mortgage.Mortgage{}
	ok, err := m.readRecord(mortgageKey(id), record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record, true, nil
}

// MortgagePut stores a mortgage record.
func (m *Manager) MortgagePut(record *mortgage.Mortgage) error {
	if record == nil {
		return fmt.Errorf("state: nil mortgage")
	}
	return m.writeRecord(mortgageKey(record.ID), record)
}

// RewardsConfigGet loads the singleton rewards ledger configuration.
func (m *Manager) RewardsConfigGet() (*rewards.LedgerConfig, bool, error) {
	config := &rewards.LedgerConfig{}
	ok, err := m.readRecord(rewardsConfigKey, config)
	if err != nil || !ok {
		return nil, false, err
	}
	return config, true, nil
}

// RewardsConfigPut stores the rewards ledger configuration.
func (m *Manager) RewardsConfigPut(config *rewards.LedgerConfig) error {
	if config == nil {
		return fmt.Errorf("state: nil rewards config")
	}
	return m.writeRecord(rewardsConfigKey, config)
}

// UserRewardsGet loads a user's reward counters.
func (m *Manager) UserRewardsGet(user crypto.Address) (*rewards.UserRewards, bool, error) {
	record := &rewards.UserRewards{}
	ok, err := m.readRecord(rewardsUserPrefix+user.String(), record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record, true, nil
}

// UserRewardsPut stores a user's reward counters.
func (m *Manager) UserRewardsPut(record *rewards.UserRewards) error {
	if record == nil {
		return fmt.Errorf("state: nil user rewards")
	}
	return m.writeRecord(rewardsUserPrefix+record.User.String(), record)
}

// GovernanceGetProposal loads a proposal by identifier.
func (m *Manager) GovernanceGetProposal(id uint64) (*governance.Proposal, bool, error) {
	proposal := &governance.Proposal{}
	ok, err := m.readRecord(proposalKey(id), proposal)
	if err != nil || !ok {
		return nil, false, err
	}
	return proposal, true, nil
}

// GovernancePutProposal stores a proposal.
func (m *Manager) GovernancePutProposal(proposal *governance.Proposal) error {
	if proposal == nil {
		return fmt.Errorf("state: nil proposal")
	}
	return m.writeRecord(proposalKey(proposal.ID), proposal)
}

// GovernanceGetVote loads a voter's ballot on a proposal.
func (m *Manager) GovernanceGetVote(id uint64, voter crypto.Address) (*governance.Vote, bool, error) {
	vote := &governance.Vote{}
	ok, err := m.readRecord(voteKey(id, voter), vote)
	if err != nil || !ok {
		return nil, false, err
	}
	return vote, true, nil
}

// GovernancePutVote stores a ballot.
func (m *Manager) GovernancePutVote(vote *governance.Vote) error {
	if vote == nil {
		return fmt.Errorf("state: nil vote")
	}
	return m.writeRecord(voteKey(vote.ProposalID, vote.Voter), vote)
}
