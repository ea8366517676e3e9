package core

// Genesis bootstrap: the system transaction that installs the native
// resource managers, the consensus manager, the clock, the fee collector
// and a funded faucet account. It runs through the same kernel as every
// other transaction, so the committed genesis state satisfies the same
// invariants.

import (
	"github.com/sirupsen/logrus"
)

// FeeCollectorAddress accrues the validator share of transaction fees
// until distribution.
var FeeCollectorAddress = wellKnownAddress(EntityTypeGlobalAccount, "component/fee_collector")

// GenesisConfig parameterises bootstrap.
type GenesisConfig struct {
	InitialEpoch   uint64
	RoundsPerEpoch uint64
	// ValidatorKeys authorise next_round and set_current_time.
	ValidatorKeys [][]byte
	// FaucetSupply is minted into the faucet account at genesis.
	FaucetSupply Decimal
	// FaucetOwnerKey controls the faucet account; an empty key leaves the
	// faucet open (dev networks).
	FaucetOwnerKey []byte
	// DevMode opens set_epoch and set_current_time to anyone.
	DevMode bool
}

// DefaultGenesis is the dev-network shape the CLI and tests use.
func DefaultGenesis() GenesisConfig {
	return GenesisConfig{
		InitialEpoch:   1,
		RoundsPerEpoch: 100,
		FaucetSupply:   MustDecimal("1000000000"),
		DevMode:        true,
	}
}

// FaucetAddress is where the genesis supply lands.
var FaucetAddress = wellKnownAddress(EntityTypeGlobalAccount, "component/faucet")

// Bootstrap installs genesis state at version 1. It fails on an already
// bootstrapped store.
func (e *Engine) Bootstrap(cfg GenesisConfig) (*Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.store.ReadSubstate(ResourceMRD, PartitionTypeInfo, FieldKey(0)); ok {
		return nil, errRejection("store is already bootstrapped")
	}

	genesisHash := HashOf([]byte("meridian/genesis"), []byte{e.network.ID})
	fees := NewFeeReserve(0)
	fees.loanRemaining = 1 << 40 // system transactions are not fee-bound
	k := NewKernel(e.store, genesisHash, fees, e.wasm)

	validatorRule := e.validatorRule(cfg)
	systemRule := DenyAll()
	if cfg.DevMode {
		systemRule = AllowAll()
	}

	if err := bootstrapResources(k, cfg, validatorRule, systemRule); err != nil {
		return nil, err
	}
	if err := NewConsensusManagerNode(k, cfg.InitialEpoch, cfg.RoundsPerEpoch, validatorInfos(cfg), validatorRule, systemRule); err != nil {
		return nil, err
	}
	if err := NewClockNode(k, validatorOrSystem(validatorRule, systemRule), systemRule); err != nil {
		return nil, err
	}
	if err := bootstrapAccounts(k, cfg); err != nil {
		return nil, err
	}
	if err := k.AssertFrameClean(); err != nil {
		return nil, err
	}

	updates, stateUpdates := k.TakeUpdates()
	if err := verifyCommitInvariants(updates); err != nil {
		return nil, err
	}
	version := e.store.LatestVersion() + 1
	root, stale, err := e.tree.PutAtNextVersion(version, updates)
	if err != nil {
		return nil, err
	}
	if err := e.store.CommitBatch(&CommitBatch{Version: version, Updates: updates, StaleTreeParts: stale}); err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"version": version,
		"root":    root.Hex()[:16],
		"epoch":   cfg.InitialEpoch,
	}).Info("genesis committed")

	return &Receipt{
		Result:       ResultCommitSuccess,
		IntentHash:   genesisHash,
		StateUpdates: stateUpdates,
		NewStateRoot: root,
		StateVersion: version,
		Events:       k.Events(),
		EventsRoot:   EventsCommitment(k.Events()),
	}, nil
}

func (e *Engine) validatorRule(cfg GenesisConfig) AccessRule {
	if len(cfg.ValidatorKeys) == 0 {
		if cfg.DevMode {
			return AllowAll()
		}
		return DenyAll()
	}
	rules := make([]AccessRule, 0, len(cfg.ValidatorKeys))
	for _, key := range cfg.ValidatorKeys {
		rules = append(rules, RequireNonFungible(SignatureBadgeID(key)))
	}
	if len(rules) == 1 {
		return rules[0]
	}
	return RequireAnyOf(rules...)
}

func validatorOrSystem(validatorRule, systemRule AccessRule) AccessRule {
	if systemRule.Kind == AccessRuleAllowAll {
		return AllowAll()
	}
	return validatorRule
}

func validatorInfos(cfg GenesisConfig) []ValidatorInfo {
	out := make([]ValidatorInfo, 0, len(cfg.ValidatorKeys))
	for _, key := range cfg.ValidatorKeys {
		out = append(out, ValidatorInfo{Key: key, Stake: ZeroDecimal()})
	}
	return out
}

func bootstrapResources(k *Kernel, cfg GenesisConfig, validatorRule, systemRule AccessRule) error {
	// MRD: the native fee resource. Post-genesis minting is closed.
	mrdRoles := ResourceRoles{
		Owner:                 systemRule,
		Mint:                  DenyAll(),
		Burn:                  AllowAll(), // anyone may destroy own holdings
		Withdraw:              AllowAll(),
		Deposit:               AllowAll(),
		Recall:                DenyAll(),
		Freeze:                DenyAll(),
		UpdateNonFungibleData: DenyAll(),
	}
	if _, err := createResourceManagerNode(k, ResourceMRD, true, DecimalScale, 0,
		map[string]string{"name": "Meridian", "symbol": "MRD"}, mrdRoles); err != nil {
		return err
	}

	// Signature badges are purely virtual: nothing mints or moves them.
	badgeRoles := ResourceRoles{
		Owner: DenyAll(), Mint: DenyAll(), Burn: DenyAll(),
		Withdraw: DenyAll(), Deposit: DenyAll(), Recall: DenyAll(),
		Freeze: DenyAll(), UpdateNonFungibleData: DenyAll(),
	}
	if _, err := createResourceManagerNode(k, ResourceSignatureBadge, false, 0, NFIDBytes,
		map[string]string{"name": "Signature Badges"}, badgeRoles); err != nil {
		return err
	}

	// Package owner badges are minted by the package blueprint itself.
	if _, err := createResourceManagerNode(k, ResourcePackageOwnerBadge, false, 0, NFIDBytes,
		map[string]string{"name": "Package Owner Badges"}, ResourceRoles{
			Owner: systemRule, Mint: DenyAll(), Burn: AllowAll(),
			Withdraw: AllowAll(), Deposit: AllowAll(), Recall: DenyAll(),
			Freeze: DenyAll(), UpdateNonFungibleData: DenyAll(),
		}); err != nil {
		return err
	}
	return nil
}

func bootstrapAccounts(k *Kernel, cfg GenesisConfig) error {
	faucetOwner := AllowAll()
	if len(cfg.FaucetOwnerKey) > 0 {
		faucetOwner = RequireNonFungible(SignatureBadgeID(cfg.FaucetOwnerKey))
	}
	if err := newAccountNode(k, FaucetAddress, faucetOwner); err != nil {
		return err
	}
	if err := newAccountNode(k, FeeCollectorAddress, DenyAll()); err != nil {
		return err
	}

	// Fee collector needs a resident MRD vault for commit-side credits.
	vaultVal, err := k.CallMethod(ResourceMRD, "create_empty_vault", VTuple())
	if err != nil {
		return err
	}
	vault, err := vaultVal.AsOwn()
	if err != nil {
		return err
	}
	if err := k.substateWrite(FeeCollectorAddress, PartitionMainMap, accountVaultKey(ResourceMRD), MustEncodePayload(VOwn(vault))); err != nil {
		return err
	}

	if cfg.FaucetSupply.IsPositive() {
		bucket, err := mintFungible(k, ResourceMRD, cfg.FaucetSupply)
		if err != nil {
			return err
		}
		if _, err := k.CallMethod(FaucetAddress, "deposit", VTuple(VOwn(bucket))); err != nil {
			return err
		}
	}
	return nil
}
