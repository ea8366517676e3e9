package main

import (
	"meridian-network/core"
	"meridian-network/pkg/journal"
)

// StateService replays a state journal into a read-only engine view.
type StateService struct {
	Engine *core.Engine
	Store  *core.MemorySubstateStore
}

// NewStateService loads the journal at path; a missing file serves an
// empty state.
func NewStateService(path string) (*StateService, error) {
	store := core.NewMemorySubstateStore()
	engine := core.NewEngine(store, core.NewMemoryTreeStore(), core.NetworkDefinition{ID: 242, Name: "sim"})
	batches, err := journal.Load(path)
	if err != nil {
		return nil, err
	}
	if err := engine.ReplayBatches(batches); err != nil {
		return nil, err
	}
	return &StateService{Engine: engine, Store: store}, nil
}

// Epoch returns the committed epoch, if bootstrapped.
func (s *StateService) Epoch() (uint64, bool) {
	return core.EpochFromStore(s.Store)
}

// Balance resolves an account balance.
func (s *StateService) Balance(account, resource core.NodeID) (core.Decimal, error) {
	return core.AccountBalanceFromStore(s.Store, account, resource)
}
