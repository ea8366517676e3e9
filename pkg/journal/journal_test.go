package journal

import (
	"testing"

	"meridian-network/core"
	"meridian-network/internal/testutil"
)

func TestJournalRoundTrip(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	defer sb.Cleanup()
	path := sb.Path("state.json")

	network := core.NetworkDefinition{ID: 242, Name: "sim"}
	store := core.NewMemorySubstateStore()
	engine := core.NewEngine(store, core.NewMemoryTreeStore(), network)
	cfg := core.DefaultGenesis()
	cfg.FaucetSupply = core.MustDecimal("1000")
	if _, err := engine.Bootstrap(cfg); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := Save(path, store); err != nil {
		t.Fatalf("save: %v", err)
	}

	batches, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(batches) == 0 {
		t.Fatal("journal is empty after genesis")
	}

	replayStore := core.NewMemorySubstateStore()
	replayEngine := core.NewEngine(replayStore, core.NewMemoryTreeStore(), network)
	if err := replayEngine.ReplayBatches(batches); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayEngine.StateRoot() != engine.StateRoot() {
		t.Fatalf("replayed root %s differs from original %s", replayEngine.StateRoot(), engine.StateRoot())
	}
	if replayEngine.StateVersion() != engine.StateVersion() {
		t.Fatal("replayed version differs")
	}

	balance, err := core.AccountBalanceFromStore(replayStore, core.FaucetAddress, core.ResourceMRD)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Equal(core.MustDecimal("1000")) {
		t.Fatalf("faucet balance after replay: %s", balance)
	}
}

func TestLoadMissingFile(t *testing.T) {
	batches, err := Load("/nonexistent/state.json")
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if batches != nil {
		t.Fatal("missing file must yield nil batches")
	}
}
