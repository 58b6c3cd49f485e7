package rpc

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"stablemortgage/crypto"
	"stablemortgage/native/collateral"
	"stablemortgage/native/governance"
	"stablemortgage/native/lendingpool"
	"stablemortgage/native/mortgage"
	"stablemortgage/native/risk"
	"stablemortgage/observability"
)

func (s *Server) getParams(w http.ResponseWriter, _ *http.Request) {
	current, ok, err := s.paramStore.Get()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "parameters not initialised"})
		return
	}
	writeJSON(w, http.StatusOK, current)
}

type createPoolRequest struct {
	Authority       string `json:"authority"`
	PoolID          string `json:"poolId"`
	Vault           string `json:"vault"`
	InterestRateBps uint64 `json:"interestRateBps"`
	LoanDuration    uint64 `json:"loanDuration"`
}

func (s *Server) createPool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	authority, err := parseAddress(req.Authority)
	if err != nil {
		s.writeError(w, err)
		return
	}
	vault, err := parseAddress(req.Vault)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var pool *lendingpool.Pool
	err = s.transact("lendingpool", "create", func() error {
		pool, err = s.pools.CreatePool(authority, req.PoolID, vault, req.InterestRateBps, req.LoanDuration)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	observability.Modules().SetPoolLiquidity(pool.ID, pool.TotalDeposited, pool.TotalBorrowed)
	writeJSON(w, http.StatusCreated, pool)
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.pools.Get(chi.URLParam(r, "poolID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

type amountRequest struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	s.poolBalanceOp(w, r, "deposit", s.pools.Deposit)
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	s.poolBalanceOp(w, r, "withdraw", s.pools.Withdraw)
}

func (s *Server) poolBalanceOp(w http.ResponseWriter, r *http.Request, name string, op func(lender crypto.Address, poolID string, amount uint64) (*lendingpool.LenderPosition, error)) {
	poolID := chi.URLParam(r, "poolID")
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	lender, err := parseAddress(req.Address)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var position *lendingpool.LenderPosition
	err = s.transact("lendingpool", name, func() error {
		position, err = op(lender, poolID, req.Amount)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if pool, perr := s.pools.Get(poolID); perr == nil {
		observability.Modules().SetPoolLiquidity(pool.ID, pool.TotalDeposited, pool.TotalBorrowed)
	}
	writeJSON(w, http.StatusOK, position)
}

type authorityRequest struct {
	Authority string `json:"authority"`
}

func (s *Server) deactivatePool(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")
	var req authorityRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	authority, err := parseAddress(req.Authority)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var pool *lendingpool.Pool
	err = s.transact("lendingpool", "deactivate", func() error {
		pool, err = s.pools.Deactivate(authority, poolID)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	position, err := s.pools.Position(chi.URLParam(r, "poolID"), owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, position)
}

type registerPropertyRequest struct {
	Owner      string `json:"owner"`
	Nonce      uint64 `json:"nonce"`
	Value      uint64 `json:"value"`
	Descriptor string `json:"descriptor"`
}

func (s *Server) registerProperty(w http.ResponseWriter, r *http.Request) {
	var req registerPropertyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var property *collateral.Property
	err = s.transact("collateral", "register", func() error {
		property, err = s.registry.Register(owner, req.Nonce, req.Value, req.Descriptor)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, property)
}

func (s *Server) getProperty(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(chi.URLParam(r, "propertyID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	property, err := s.registry.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, property)
}

type assessmentRequest struct {
	Authority      string `json:"authority"`
	PropertyID     string `json:"propertyId,omitempty"`
	AppraisedValue uint64 `json:"appraisedValue"`
	RiskScore      uint8  `json:"riskScore"`
}

func (s *Server) createAssessment(w http.ResponseWriter, r *http.Request) {
	var req assessmentRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	authority, err := parseAddress(req.Authority)
	if err != nil {
		s.writeError(w, err)
		return
	}
	propertyID, err := parseRecordID(req.PropertyID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var assessment *risk.Assessment
	err = s.transact("risk", "create", func() error {
		assessment, err = s.assessor.Create(authority, propertyID, req.AppraisedValue, req.RiskScore)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, assessment)
}

func (s *Server) refreshAssessment(w http.ResponseWriter, r *http.Request) {
	propertyID, err := parseRecordID(chi.URLParam(r, "propertyID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req assessmentRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	authority, err := parseAddress(req.Authority)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var assessment *risk.Assessment
	err = s.transact("risk", "refresh", func() error {
		assessment, err = s.assessor.Refresh(authority, propertyID, req.AppraisedValue, req.RiskScore)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (s *Server) invalidateAssessment(w http.ResponseWriter, r *http.Request) {
	propertyID, err := parseRecordID(chi.URLParam(r, "propertyID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req authorityRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	authority, err := parseAddress(req.Authority)
	if err != nil {
		s.writeError(w, err)
		return
	}
	err = s.transact("risk", "invalidate", func() error {
		return s.assessor.Invalidate(authority, propertyID)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getAssessment(w http.ResponseWriter, r *http.Request) {
	propertyID, err := parseRecordID(chi.URLParam(r, "propertyID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	assessment, err := s.assessor.Lookup(propertyID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

type createMortgageRequest struct {
	Borrower      string `json:"borrower"`
	PoolID        string `json:"poolId"`
	PropertyID    string `json:"propertyId"`
	Nonce         uint64 `json:"nonce"`
	LoanAmount    uint64 `json:"loanAmount"`
	PropertyValue uint64 `json:"propertyValue"`
}

func (s *Server) createMortgage(w http.ResponseWriter, r *http.Request) {
	var req createMortgageRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	borrower, err := parseAddress(req.Borrower)
	if err != nil {
		s.writeError(w, err)
		return
	}
	propertyID, err := parseRecordID(req.PropertyID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var record *mortgage.Mortgage
	err = s.transact("mortgage", "create", func() error {
		record, err = s.mortgages.Create(borrower, req.PoolID, propertyID, req.Nonce, req.LoanAmount, req.PropertyValue)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mortgageResponse(record))
}

type callerRequest struct {
	Caller string `json:"caller"`
}

type paymentRequest struct {
	Caller string `json:"caller"`
	Amount uint64 `json:"amount"`
}

func parseProposalID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid proposal id %q", raw)
	}
	return id, nil
}

func (s *Server) mortgageTransition(w http.ResponseWriter, r *http.Request, name string, run func(caller crypto.Address, id [32]byte) (*mortgage.Mortgage, error)) {
	id, err := parseRecordID(chi.URLParam(r, "mortgageID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req callerRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var record *mortgage.Mortgage
	err = s.transact("mortgage", name, func() error {
		record, err = run(caller, id)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mortgageResponse(record))
}

func (s *Server) fundMortgage(w http.ResponseWriter, r *http.Request) {
	s.mortgageTransition(w, r, "fund", s.mortgages.Fund)
}

func (s *Server) liquidateMortgage(w http.ResponseWriter, r *http.Request) {
	s.mortgageTransition(w, r, "liquidate", s.mortgages.Liquidate)
}

func (s *Server) closeMortgage(w http.ResponseWriter, r *http.Request) {
	s.mortgageTransition(w, r, "close", s.mortgages.Close)
}

func (s *Server) makePayment(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(chi.URLParam(r, "mortgageID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req paymentRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var record *mortgage.Mortgage
	err = s.transact("mortgage", "payment", func() error {
		record, err = s.mortgages.MakePayment(caller, id, req.Amount)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mortgageResponse(record))
}

func (s *Server) getMortgage(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(chi.URLParam(r, "mortgageID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	record, err := s.mortgages.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mortgageResponse(record))
}

// mortgageView decorates the stored record with its derived status and a
// printable identifier.
type mortgageView struct {
	*mortgage.Mortgage
	IDHex  string `json:"idHex"`
	Status string `json:"status"`
}

func mortgageResponse(record *mortgage.Mortgage) mortgageView {
	return mortgageView{
		Mortgage: record,
		IDHex:    hex.EncodeToString(record.ID[:]),
		Status:   string(record.Status()),
	}
}

type claimRequest struct {
	Address string `json:"address"`
}

func (s *Server) claimRewards(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	user, err := parseAddress(req.Address)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var claimed uint64
	err = s.transact("rewards", "claim", func() error {
		claimed, err = s.ledger.Claim(user)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"claimed": claimed})
}

func (s *Server) getRewards(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	balance, err := s.ledger.Balance(user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

type proposeRequest struct {
	Proposer     string `json:"proposer"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ParameterKey string `json:"parameterKey"`
	NewValue     uint64 `json:"newValue"`
}

func (s *Server) propose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	proposer, err := parseAddress(req.Proposer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var proposal *governance.Proposal
	err = s.transact("governance", "propose", func() error {
		proposal, err = s.gov.Propose(proposer, req.Title, req.Description, req.ParameterKey, req.NewValue)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, proposal)
}

type voteRequest struct {
	Voter   string `json:"voter"`
	Amount  uint64 `json:"amount"`
	Support bool   `json:"support"`
}

func (s *Server) castVote(w http.ResponseWriter, r *http.Request) {
	proposalID, err := parseProposalID(chi.URLParam(r, "proposalID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	voter, err := parseAddress(req.Voter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	err = s.transact("governance", "vote", func() error {
		return s.gov.CastVote(voter, proposalID, req.Amount, req.Support)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) executeProposal(w http.ResponseWriter, r *http.Request) {
	proposalID, err := parseProposalID(chi.URLParam(r, "proposalID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var proposal *governance.Proposal
	err = s.transact("governance", "execute", func() error {
		proposal, err = s.gov.Execute(proposalID)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

func (s *Server) getProposal(w http.ResponseWriter, r *http.Request) {
	proposalID, err := parseProposalID(chi.URLParam(r, "proposalID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	proposal, err := s.gov.Get(proposalID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}
