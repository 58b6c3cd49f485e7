package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stablemortgage/crypto"
	"stablemortgage/native/collateral"
	"stablemortgage/native/governance"
	"stablemortgage/native/lendingpool"
	"stablemortgage/native/mortgage"
	"stablemortgage/native/params"
	"stablemortgage/native/rewards"
	"stablemortgage/native/risk"
	"stablemortgage/observability"
	"stablemortgage/state"
)

const requestLimit = 1 << 20 // 1 MiB

// Server exposes the module engines over HTTP. Every mutating endpoint runs
// inside a state transaction so a failed operation leaves no partial writes.
type Server struct {
	log        *slog.Logger
	state      *state.Manager
	pools      *lendingpool.Engine
	registry   *collateral.Engine
	assessor   *risk.Engine
	ledger     *rewards.Engine
	mortgages  *mortgage.Engine
	gov        *governance.Engine
	paramStore *params.Store
}

// Deps bundles the collaborators a Server needs.
type Deps struct {
	Log        *slog.Logger
	State      *state.Manager
	Pools      *lendingpool.Engine
	Collateral *collateral.Engine
	Risk       *risk.Engine
	Rewards    *rewards.Engine
	Mortgages  *mortgage.Engine
	Governance *governance.Engine
	ParamStore *params.Store
}

// NewServer constructs the HTTP surface over the supplied engines.
func NewServer(deps Deps) (*Server, error) {
	if deps.State == nil {
		return nil, fmt.Errorf("rpc: state manager required")
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:        log,
		state:      deps.State,
		pools:      deps.Pools,
		registry:   deps.Collateral,
		assessor:   deps.Risk,
		ledger:     deps.Rewards,
		mortgages:  deps.Mortgages,
		gov:        deps.Governance,
		paramStore: deps.ParamStore,
	}, nil
}

// Router builds the chi router with all module routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/params", s.getParams)

		r.Route("/pools", func(r chi.Router) {
			r.Post("/", s.createPool)
			r.Get("/{poolID}", s.getPool)
			r.Post("/{poolID}/deposit", s.deposit)
			r.Post("/{poolID}/withdraw", s.withdraw)
			r.Post("/{poolID}/deactivate", s.deactivatePool)
			r.Get("/{poolID}/positions/{address}", s.getPosition)
		})

		r.Route("/collateral", func(r chi.Router) {
			r.Post("/", s.registerProperty)
			r.Get("/{propertyID}", s.getProperty)
		})

		r.Route("/risk", func(r chi.Router) {
			r.Post("/assessments", s.createAssessment)
			r.Post("/assessments/{propertyID}/refresh", s.refreshAssessment)
			r.Post("/assessments/{propertyID}/invalidate", s.invalidateAssessment)
			r.Get("/assessments/{propertyID}", s.getAssessment)
		})

		r.Route("/mortgages", func(r chi.Router) {
			r.Post("/", s.createMortgage)
			r.Get("/{mortgageID}", s.getMortgage)
			r.Post("/{mortgageID}/fund", s.fundMortgage)
			r.Post("/{mortgageID}/payments", s.makePayment)
			r.Post("/{mortgageID}/liquidate", s.liquidateMortgage)
			r.Post("/{mortgageID}/close", s.closeMortgage)
		})

		r.Route("/rewards", func(r chi.Router) {
			r.Post("/claim", s.claimRewards)
			r.Get("/{address}", s.getRewards)
		})

		r.Route("/governance/proposals", func(r chi.Router) {
			r.Post("/", s.propose)
			r.Get("/{proposalID}", s.getProposal)
			r.Post("/{proposalID}/votes", s.castVote)
			r.Post("/{proposalID}/execute", s.executeProposal)
		})
	})

	return r
}

// transact runs fn inside a state transaction and records the outcome.
func (s *Server) transact(module, operation string, fn func() error) error {
	start := time.Now()
	err := s.state.WithTransaction(fn)
	observability.Modules().RecordOperation(module, operation, err, time.Since(start))
	if err != nil {
		s.log.Warn("operation failed", "module", module, "operation", operation, "error", err)
	}
	return err
}

func decodeBody(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, requestLimit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parseAddress(raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	return addr, nil
}

func parseRecordID(raw string) ([32]byte, error) {
	var id [32]byte
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) != 32 {
		return id, fmt.Errorf("invalid record id %q", raw)
	}
	copy(id[:], decoded)
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps module sentinel errors onto HTTP statuses: validation and
// malformed input map to 400, missing records to 404, authorization to 403,
// lifecycle-state conflicts to 409, and balance shortfalls to 422.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, lendingpool.ErrNotFound),
		errors.Is(err, collateral.ErrNotFound),
		errors.Is(err, risk.ErrNotFound),
		errors.Is(err, mortgage.ErrNotFound),
		errors.Is(err, governance.ErrNotFound),
		errors.Is(err, rewards.ErrNotInitialized):
		return http.StatusNotFound
	case errors.Is(err, lendingpool.ErrUnauthorized),
		errors.Is(err, risk.ErrUnauthorized),
		errors.Is(err, rewards.ErrUnauthorized),
		errors.Is(err, collateral.ErrNotOwner),
		errors.Is(err, mortgage.ErrNotBorrower):
		return http.StatusForbidden
	case errors.Is(err, lendingpool.ErrInsufficientLiquidity),
		errors.Is(err, lendingpool.ErrInsufficientDeposit),
		errors.Is(err, mortgage.ErrInsufficientPayment),
		errors.Is(err, rewards.ErrNoRewardsToClaim),
		errors.Is(err, rewards.ErrPoolEmpty),
		errors.Is(err, governance.ErrInsufficientStake):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lendingpool.ErrPoolInactive),
		errors.Is(err, lendingpool.ErrPoolExists),
		errors.Is(err, collateral.ErrAlreadyLocked),
		errors.Is(err, collateral.ErrNotLocked),
		errors.Is(err, collateral.ErrAlreadyRegistered),
		errors.Is(err, collateral.ErrLockedTransfer),
		errors.Is(err, risk.ErrAlreadyAssessed),
		errors.Is(err, risk.ErrAssessmentTooEarly),
		errors.Is(err, risk.ErrInvalidAssessment),
		errors.Is(err, mortgage.ErrInactive),
		errors.Is(err, mortgage.ErrDefaulted),
		errors.Is(err, mortgage.ErrNoPaymentDue),
		errors.Is(err, mortgage.ErrAlreadyFunded),
		errors.Is(err, mortgage.ErrAlreadyExists),
		errors.Is(err, mortgage.ErrOutstandingBalance),
		errors.Is(err, governance.ErrNotActive),
		errors.Is(err, governance.ErrAlreadyVoted),
		errors.Is(err, governance.ErrVotingClosed),
		errors.Is(err, governance.ErrVotingOpen),
		errors.Is(err, rewards.ErrAlreadyInitialized),
		errors.Is(err, rewards.ErrInactive):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
