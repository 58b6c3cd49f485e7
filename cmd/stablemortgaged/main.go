package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"stablemortgage/config"
	"stablemortgage/core/events"
	"stablemortgage/crypto"
	"stablemortgage/native/collateral"
	"stablemortgage/native/governance"
	"stablemortgage/native/lendingpool"
	"stablemortgage/native/mortgage"
	"stablemortgage/native/params"
	"stablemortgage/native/rewards"
	"stablemortgage/native/risk"
	"stablemortgage/observability/logging"
	"stablemortgage/rpc"
	"stablemortgage/state"
	"stablemortgage/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "stablemortgaged: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.Setup("stablemortgaged", cfg.LogLevel)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "records"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("close database", "error", closeErr)
		}
	}()

	mgr := state.NewManager(db)
	paramStore := params.NewStore(mgr)
	if err := seedGenesis(mgr, paramStore, cfg); err != nil {
		return err
	}

	emitter := events.LogEmitter{Log: log}
	paramSource := func() (params.Parameters, error) {
		current, ok, err := paramStore.Get()
		if err != nil {
			return params.Parameters{}, err
		}
		if !ok {
			return params.Parameters{}, fmt.Errorf("parameters not initialised")
		}
		return current, nil
	}

	pools := lendingpool.NewEngine()
	pools.SetState(mgr)
	pools.SetParameters(paramSource)
	pools.SetEmitter(emitter)

	registry := collateral.NewEngine()
	registry.SetState(mgr)

	assessor := risk.NewEngine()
	assessor.SetState(mgr)

	ledger := rewards.NewEngine()
	ledger.SetState(mgr)
	ledger.SetEmitter(emitter)

	mortgages := mortgage.NewEngine()
	mortgages.SetState(mgr)
	mortgages.SetPoolEngine(pools)
	mortgages.SetCollateralEngine(registry)
	mortgages.SetRiskEngine(assessor)
	mortgages.SetRewardsEngine(ledger)
	mortgages.SetParameters(paramSource)
	mortgages.SetEmitter(emitter)

	gov := governance.NewEngine()
	gov.SetState(mgr)
	gov.SetParamStore(paramStore)
	gov.SetEmitter(emitter)
	if cfg.Governance.VotingPeriodSeconds > 0 {
		gov.SetVotingPeriod(time.Duration(cfg.Governance.VotingPeriodSeconds) * time.Second)
	}
	if cfg.Governance.ExecutionWindowSeconds > 0 {
		gov.SetExecutionWindow(time.Duration(cfg.Governance.ExecutionWindowSeconds) * time.Second)
	}

	server, err := rpc.NewServer(rpc.Deps{
		Log:        log,
		State:      mgr,
		Pools:      pools,
		Collateral: registry,
		Risk:       assessor,
		Rewards:    ledger,
		Mortgages:  mortgages,
		Governance: gov,
		ParamStore: paramStore,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "address", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// seedGenesis writes the configured parameters and rewards ledger on first
// start. Existing records always win so governance changes survive restarts.
func seedGenesis(mgr *state.Manager, paramStore *params.Store, cfg *config.Config) error {
	_, ok, err := paramStore.Get()
	if err != nil {
		return err
	}
	if !ok {
		if err := paramStore.Set(cfg.Genesis.Parameters); err != nil {
			return fmt.Errorf("seed parameters: %w", err)
		}
	}

	if cfg.Rewards.Authority == "" || cfg.Rewards.RewardSource == "" {
		return nil
	}
	if _, ok, err := mgr.RewardsConfigGet(); err != nil {
		return err
	} else if ok {
		return nil
	}
	authority, err := crypto.DecodeAddress(cfg.Rewards.Authority)
	if err != nil {
		return fmt.Errorf("rewards authority: %w", err)
	}
	source, err := crypto.DecodeAddress(cfg.Rewards.RewardSource)
	if err != nil {
		return fmt.Errorf("rewards source: %w", err)
	}
	ledger := rewards.NewEngine()
	ledger.SetState(mgr)
	if _, err := ledger.Initialize(authority, source, cfg.Rewards.RewardsPerPayment); err != nil {
		return fmt.Errorf("seed rewards ledger: %w", err)
	}
	return nil
}
