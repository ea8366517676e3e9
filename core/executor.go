package core

// The engine executor: pre-execution rejection checks, kernel and
// processor wiring, fee settlement, commit invariant checks, hash-tree
// journaling and the final atomic commit. A transaction either commits in
// full at a new version or leaves the store untouched.

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// NetworkDefinition names the network a transaction must target.
type NetworkDefinition struct {
	ID   uint8
	Name string
}

// Engine executes transactions sequentially against one store.
type Engine struct {
	mu      sync.Mutex
	store   SubstateStore
	tree    *StateHashTree
	wasm    *WASMHost
	network NetworkDefinition
	trace   bool

	seenIntents map[Hash]struct{}
	logger      *logrus.Entry
}

// NewEngine wires an engine over a store and a tree store.
func NewEngine(store SubstateStore, treeStore TreeStore, network NetworkDefinition) *Engine {
	return &Engine{
		store:       store,
		tree:        NewStateHashTree(treeStore),
		wasm:        NewWASMHost(),
		network:     network,
		seenIntents: make(map[Hash]struct{}),
		logger:      logrus.WithField("network", network.Name),
	}
}

// EnableTrace turns on execution tracing for subsequent transactions.
func (e *Engine) EnableTrace() { e.trace = true }

// Store exposes the underlying substate store for read-only hosts (CLI,
// explorer).
func (e *Engine) Store() SubstateStore { return e.store }

// ReplayBatches re-applies previously committed batches into a fresh
// engine, rebuilding the hash tree. The batches must be dense from
// version 1; the reconstructed roots are a pure function of the replayed
// substate sets.
func (e *Engine) ReplayBatches(batches []*CommitBatch) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, b := range batches {
		if _, _, err := e.tree.PutAtNextVersion(b.Version, b.Updates); err != nil {
			return err
		}
		if err := e.store.CommitBatch(b); err != nil {
			return err
		}
	}
	return nil
}

// StateRoot returns the root of the last committed version.
func (e *Engine) StateRoot() Hash { return e.tree.CurrentRoot() }

// StateVersion returns the last committed version.
func (e *Engine) StateVersion() uint64 { return e.tree.Version() }

// currentEpoch reads the committed consensus state, if bootstrapped.
func (e *Engine) currentEpoch() (uint64, bool) {
	payload, ok := e.store.ReadSubstate(ConsensusManagerAddress, PartitionMain, FieldKey(0))
	if !ok {
		return 0, false
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return 0, false
	}
	state, err := consensusManagerFromValue(v)
	if err != nil {
		return 0, false
	}
	return state.Epoch, true
}

// ExecuteTransaction runs one envelope and returns its receipt. The store
// is only touched on commit success.
func (e *Engine) ExecuteTransaction(env *TransactionEnvelope) *Receipt {
	e.mu.Lock()
	defer e.mu.Unlock()

	receipt := &Receipt{NewStateRoot: e.tree.CurrentRoot(), StateVersion: e.tree.Version()}

	intentHash, err := env.IntentHash()
	if err != nil {
		return rejected(receipt, err)
	}
	receipt.IntentHash = intentHash

	// Pre-execution rejection checks.
	if env.NetworkID != e.network.ID {
		return rejected(receipt, errRejection("transaction targets network %d, engine runs %d", env.NetworkID, e.network.ID))
	}
	if _, seen := e.seenIntents[intentHash]; seen {
		return rejected(receipt, errRejection("duplicate intent hash %s", intentHash))
	}
	if epoch, ok := e.currentEpoch(); ok {
		if epoch < env.StartEpochInclusive {
			return rejected(receipt, errRejection("transaction not yet valid: epoch %d < %d", epoch, env.StartEpochInclusive))
		}
		if epoch >= env.EndEpochExclusive {
			return rejected(receipt, errRejection("transaction expired: epoch %d >= %d", epoch, env.EndEpochExclusive))
		}
	}
	e.seenIntents[intentHash] = struct{}{}

	fees := NewFeeReserve(env.TipPercentage)
	kernel := NewKernel(e.store, intentHash, fees, e.wasm)
	if e.trace {
		kernel.EnableTrace()
	}

	execErr := fees.ConsumeExecution(CostTxBase, 1)
	var proc *Processor
	if execErr == nil {
		proc, execErr = NewProcessor(kernel, env.SignerBadges(), env.Blobs)
	}
	if execErr == nil {
		execErr = proc.Run(env.Instructions)
	}

	receipt.Events = kernel.Events()
	receipt.ApplicationLogs = kernel.Logs()
	receipt.TraceLog = kernel.TraceLog()

	if execErr != nil {
		summary, _ := fees.Finalize(false)
		receipt.FeeSummary = summary
		receipt.Result = ResultCommitFailure
		if IsAbort(execErr) {
			receipt.Result = ResultAborted
		}
		receipt.ErrorKind = KindOf(execErr)
		receipt.ErrorMessage = execErr.Error()
		receipt.Events = nil // failed transactions commit no effects
		e.logger.WithFields(logrus.Fields{
			"intent": intentHash.Hex()[:16],
			"kind":   receipt.ErrorKind.String(),
		}).Info("transaction failed")
		return receipt
	}

	// Pre-settlement storage charge for the pending writes.
	pendingUpdates, _ := kernel.track.TakeUpdates()
	if err := fees.ConsumeStorage(CostStateTreeWrite, uint64(len(pendingUpdates))); err != nil {
		summary, _ := fees.Finalize(false)
		receipt.FeeSummary = summary
		receipt.Result = ResultCommitFailure
		receipt.ErrorKind = KindOf(err)
		receipt.ErrorMessage = err.Error()
		receipt.Events = nil
		return receipt
	}

	summary, credits := fees.Finalize(true)
	receipt.FeeSummary = summary
	if err := e.settleFees(kernel, summary, credits); err != nil {
		receipt.Result = ResultCommitFailure
		receipt.ErrorKind = KindOf(err)
		receipt.ErrorMessage = err.Error()
		receipt.Events = nil
		return receipt
	}

	updates, stateUpdates := kernel.TakeUpdates()
	if err := verifyCommitInvariants(updates); err != nil {
		receipt.Result = ResultCommitFailure
		receipt.ErrorKind = KindOf(err)
		receipt.ErrorMessage = err.Error()
		receipt.Events = nil
		return receipt
	}

	if len(updates) > 0 {
		version := e.store.LatestVersion() + 1
		root, stale, err := e.tree.PutAtNextVersion(version, updates)
		if err != nil {
			receipt.Result = ResultCommitFailure
			receipt.ErrorKind = ErrKindSystem
			receipt.ErrorMessage = err.Error()
			return receipt
		}
		batch := &CommitBatch{Version: version, Updates: updates, StaleTreeParts: stale}
		if err := e.store.CommitBatch(batch); err != nil {
			receipt.Result = ResultCommitFailure
			receipt.ErrorKind = ErrKindSystem
			receipt.ErrorMessage = err.Error()
			return receipt
		}
		receipt.NewStateRoot = root
		receipt.StateVersion = version
	}
	receipt.StateUpdates = stateUpdates
	receipt.Result = ResultCommitSuccess
	receipt.EventsRoot = EventsCommitment(receipt.Events)
	receipt.NextEpoch = extractNextEpoch(receipt.Events)

	e.logger.WithFields(logrus.Fields{
		"intent":  intentHash.Hex()[:16],
		"version": receipt.StateVersion,
		"updates": len(stateUpdates),
		"units":   summary.ExecutionUnits + summary.StorageUnits,
	}).Info("transaction committed")
	return receipt
}

func rejected(receipt *Receipt, err error) *Receipt {
	receipt.Result = ResultRejected
	receipt.ErrorKind = ErrKindRejection
	receipt.ErrorMessage = err.Error()
	return receipt
}

// settleFees applies the commit-side fee movements directly on the track:
// surplus refunds and royalty credits back into their vaults, the burned
// share onto the MRD supply ledger and the validator share into the fee
// collector's vault, so that resource conservation holds across fees.
func (e *Engine) settleFees(k *Kernel, summary FeeSummary, credits map[NodeID]Decimal) error {
	for vault, amount := range credits {
		if err := creditVaultDirect(k, vault, amount); err != nil {
			return err
		}
	}
	if _, bootstrapped := e.currentEpoch(); !bootstrapped {
		return nil
	}
	if !summary.Burned.IsZero() {
		payload, ok := k.track.Read(ResourceMRD, PartitionMain, FieldKey(0))
		if !ok {
			return nil
		}
		v, err := DecodePayload(payload)
		if err != nil {
			return err
		}
		state, err := resourceManagerFromValue(v)
		if err != nil {
			return err
		}
		if state.TotalBurned, err = state.TotalBurned.Add(summary.Burned); err != nil {
			return err
		}
		k.track.Write(ResourceMRD, PartitionMain, FieldKey(0), MustEncodePayload(state.toValue()))
	}
	if summary.ToValidators.IsPositive() {
		if vault, ok := feeCollectorVault(k); ok {
			if err := creditVaultDirect(k, vault, summary.ToValidators); err != nil {
				return err
			}
		}
	}
	return nil
}

// creditVaultDirect adds to a vault's liquid balance through the track,
// outside frame visibility (commit-side accounting only).
func creditVaultDirect(k *Kernel, vault NodeID, amount Decimal) error {
	payload, ok := k.track.Read(vault, PartitionMain, FieldKey(0))
	if !ok {
		return errResource("fee settlement: vault %s missing", vault)
	}
	l, err := decodeFungibleBalance(payload)
	if err != nil {
		return err
	}
	if l.Amount, err = l.Amount.Add(amount); err != nil {
		return err
	}
	k.track.Write(vault, PartitionMain, FieldKey(0), encodeFungibleBalance(l))
	return nil
}

// feeCollectorVault resolves the MRD vault of the fee collector account.
func feeCollectorVault(k *Kernel) (NodeID, bool) {
	payload, ok := k.track.Read(FeeCollectorAddress, PartitionMainMap, accountVaultKey(ResourceMRD))
	if !ok {
		return NodeID{}, false
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return NodeID{}, false
	}
	vault, err := v.AsOwn()
	if err != nil {
		return NodeID{}, false
	}
	return vault, true
}

// verifyCommitInvariants enforces the structural invariants over a commit
// batch: no transient entities persist, and no owned node appears under
// two owners within the batch.
func verifyCommitInvariants(updates []SubstateUpdate) error {
	owners := map[NodeID]int{}
	for _, u := range updates {
		if u.NodeID.EntityType().IsTransient() {
			return errKernel("transient node %s in commit batch", u.NodeID)
		}
		if u.IsDelete() || len(u.Value) == 0 {
			continue
		}
		v, err := DecodePayload(u.Value)
		if err != nil {
			continue // opaque payloads (none today) are skipped
		}
		owns, _ := CollectIndexed(v)
		for _, child := range owns {
			if child.EntityType().IsTransient() {
				return errResource("transient node %s owned by committed substate", child)
			}
			owners[child]++
			if owners[child] > 1 {
				return errKernel("node %s has two owners in commit batch", child)
			}
		}
	}
	return nil
}

// extractNextEpoch surfaces an epoch change event in the receipt.
func extractNextEpoch(events []Event) *NextEpochInfo {
	for _, ev := range events {
		if ev.Name != "EpochChangeEvent" {
			continue
		}
		v, err := DecodePayload(ev.Payload)
		if err != nil {
			continue
		}
		fields, err := v.AsTuple()
		if err != nil || len(fields) != 2 {
			continue
		}
		epoch, err := fields[0].AsU64()
		if err != nil {
			continue
		}
		validators, err := validatorsFromValue(fields[1])
		if err != nil {
			continue
		}
		return &NextEpochInfo{Epoch: epoch, ValidatorSet: validators}
	}
	return nil
}
