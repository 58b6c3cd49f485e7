package governance

import (
	"stablemortgage/crypto"
	"stablemortgage/native/params"
)

// Text field limits enforced at proposal admission.
const (
	MaxTitleLen       = 100
	MaxDescriptionLen = 500
	MaxKeyLen         = 50
)

// ProposalStatus tracks a proposal through its lifecycle. Proposals start
// Active and end in exactly one terminal status.
type ProposalStatus uint8

const (
	ProposalStatusUnspecified ProposalStatus = iota
	ProposalStatusActive
	ProposalStatusExecuted
	ProposalStatusRejected
	ProposalStatusExpired
)

// String renders the status for events and RPC payloads.
func (s ProposalStatus) String() string {
	switch s {
	case ProposalStatusActive:
		return "active"
	case ProposalStatusExecuted:
		return "executed"
	case ProposalStatusRejected:
		return "rejected"
	case ProposalStatusExpired:
		return "expired"
	default:
		return ""
	}
}

// Proposal is a single parameter change put to a vote. The key is parsed at
// admission so stored proposals always reference a recognised parameter.
type Proposal struct {
	ID            uint64         `json:"id"`
	Proposer      crypto.Address `json:"proposer"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	ParameterKey  params.Key     `json:"parameterKey"`
	NewValue      uint64         `json:"newValue"`
	CreatedAt     int64          `json:"createdAt"`
	ExecutionTime int64          `json:"executionTime"`
	YesVotes      uint64         `json:"yesVotes"`
	NoVotes       uint64         `json:"noVotes"`
	Status        ProposalStatus `json:"status"`
}

// Clone returns a copy safe for the caller to retain.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Vote records one voter's weighted ballot on a proposal. A voter may vote at
// most once per proposal.
type Vote struct {
	ProposalID uint64         `json:"proposalId"`
	Voter      crypto.Address `json:"voter"`
	Amount     uint64         `json:"amount"`
	Support    bool           `json:"support"`
	Timestamp  int64          `json:"timestamp"`
}

// Clone returns a copy safe for the caller to retain.
func (v *Vote) Clone() *Vote {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}
