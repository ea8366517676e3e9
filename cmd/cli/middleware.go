package cli

// ──────────────────────────────────────────────────────────────────────────────
// Meridian Engine CLI - shared middleware
//
// Every sub-command wires the same lazy-initialised engine: configuration
// via .env + pkg/config, a logrus logger, and an in-memory engine whose
// committed batches are journalled to a JSON file so state survives
// between invocations (replayed on start, the same way a WAL would be).
//
// Env variables (add to .env):
//   MERIDIAN_STATE   - path of the state journal (default ./meridian-state.json)
//   MERIDIAN_ENV     - config environment to merge (optional)
//   LOG_LEVEL        - trace|debug|info|warn|error (default info)
// ──────────────────────────────────────────────────────────────────────────────

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"meridian-network/core"
	"meridian-network/pkg/config"
	"meridian-network/pkg/journal"
	"meridian-network/pkg/utils"
)

var (
	cliLogger = logrus.StandardLogger()
	cliOnce   sync.Once
	cliErr    error

	engine    *core.Engine
	stateFile string
	network   core.NetworkDefinition
)

func initMiddleware(cmd *cobra.Command, _ []string) error {
	cliOnce.Do(func() {
		_ = godotenv.Load()

		lvlStr := utils.EnvOrDefault("LOG_LEVEL", "info")
		lvl, err := logrus.ParseLevel(lvlStr)
		if err != nil {
			cliErr = fmt.Errorf("invalid LOG_LEVEL: %w", err)
			return
		}
		cliLogger.SetLevel(lvl)

		cfg, err := config.LoadFromEnv()
		if err != nil {
			// Config files are optional for the CLI; fall back to defaults.
			cfg = &config.Config{}
			cfg.Network.ID = 242
			cfg.Network.Name = "sim"
			cfg.Genesis.DevMode = true
			cfg.Genesis.RoundsPerEpoch = 100
			cfg.Genesis.FaucetSupply = "1000000000"
			cliLogger.Debugf("config load failed, using defaults: %v", err)
		}
		network = core.NetworkDefinition{ID: uint8(cfg.Network.ID), Name: cfg.Network.Name}
		if network.Name == "" {
			network = core.NetworkDefinition{ID: 242, Name: "sim"}
		}

		stateFile = utils.EnvOrDefault("MERIDIAN_STATE", "meridian-state.json")
		engine, err = openEngine(cfg)
		if err != nil {
			cliErr = fmt.Errorf("open engine: %w", err)
		}
	})
	return cliErr
}

func openEngine(cfg *config.Config) (*core.Engine, error) {
	store := core.NewMemorySubstateStore()
	e := core.NewEngine(store, core.NewMemoryTreeStore(), network)
	if cfg.Engine.TraceExecution {
		e.EnableTrace()
	}

	batches, err := journal.Load(stateFile)
	if err != nil {
		return nil, err
	}
	if batches == nil {
		genesis := core.DefaultGenesis()
		if cfg.Genesis.RoundsPerEpoch > 0 {
			genesis.RoundsPerEpoch = uint64(cfg.Genesis.RoundsPerEpoch)
		}
		if cfg.Genesis.InitialEpoch > 0 {
			genesis.InitialEpoch = uint64(cfg.Genesis.InitialEpoch)
		}
		if cfg.Genesis.FaucetSupply != "" {
			supply, err := core.ParseDecimal(cfg.Genesis.FaucetSupply)
			if err != nil {
				return nil, err
			}
			genesis.FaucetSupply = supply
		}
		genesis.DevMode = cfg.Genesis.DevMode
		for _, keyHex := range cfg.Genesis.ValidatorKeys {
			key, err := hex.DecodeString(keyHex)
			if err != nil {
				return nil, fmt.Errorf("validator key: %w", err)
			}
			genesis.ValidatorKeys = append(genesis.ValidatorKeys, key)
		}
		if _, err := e.Bootstrap(genesis); err != nil {
			return nil, err
		}
		cliLogger.Infof("bootstrapped fresh state at %s", stateFile)
		return e, journal.Save(stateFile, store)
	}
	if err := e.ReplayBatches(batches); err != nil {
		return nil, err
	}
	cliLogger.Debugf("replayed %d batches from %s (root %s)", len(batches), stateFile, e.StateRoot().Hex()[:16])
	return e, nil
}

// runAndPersist executes one envelope and, on commit, rewrites the journal.
func runAndPersist(env *core.TransactionEnvelope) (*core.Receipt, error) {
	receipt := engine.ExecuteTransaction(env)
	if receipt.IsCommitSuccess() {
		if err := journal.Save(stateFile, engine.Store().(*core.MemorySubstateStore)); err != nil {
			return receipt, err
		}
	}
	return receipt, nil
}

// exitCode maps a receipt onto the CLI exit convention: 0 only on commit
// success, otherwise non-zero with the error kind printed.
func exitCode(receipt *core.Receipt) int {
	if receipt.IsCommitSuccess() {
		return 0
	}
	fmt.Fprintf(os.Stderr, "%s: %s\n", receipt.ErrorKind, receipt.ErrorMessage)
	if receipt.Result == core.ResultRejected {
		return 2
	}
	return 1
}

func printReceipt(receipt *core.Receipt) {
	out, _ := json.MarshalIndent(receipt, "", "  ")
	fmt.Println(string(out))
}
