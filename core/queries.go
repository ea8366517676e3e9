package core

// Read-only state queries over a committed store, used by the CLI, the
// explorer and conservation checks in tests. These bypass the kernel on
// purpose: no fees, no locks, no frame - they can only observe.

// AccountBalanceFromStore reads an account's balance of a resource.
func AccountBalanceFromStore(store SubstateStore, account, resource NodeID) (Decimal, error) {
	payload, ok := store.ReadSubstate(account, PartitionMainMap, accountVaultKey(resource))
	if !ok {
		return ZeroDecimal(), nil
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return Decimal{}, err
	}
	vault, err := v.AsOwn()
	if err != nil {
		return Decimal{}, err
	}
	return VaultBalanceFromStore(store, vault)
}

// VaultBalanceFromStore reads a vault's liquid amount.
func VaultBalanceFromStore(store SubstateStore, vault NodeID) (Decimal, error) {
	payload, ok := store.ReadSubstate(vault, PartitionMain, FieldKey(0))
	if !ok {
		return ZeroDecimal(), nil
	}
	if vault.EntityType() == EntityTypeInternalNonFungibleVault {
		l, err := decodeNonFungibleBalance(payload)
		if err != nil {
			return Decimal{}, err
		}
		return l.Amount(), nil
	}
	l, err := decodeFungibleBalance(payload)
	if err != nil {
		return Decimal{}, err
	}
	return l.Amount, nil
}

// AccountVaultFromStore resolves the vault an account holds for a
// resource, if any.
func AccountVaultFromStore(store SubstateStore, account, resource NodeID) (NodeID, bool) {
	payload, ok := store.ReadSubstate(account, PartitionMainMap, accountVaultKey(resource))
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

// ResourceSupplyFromStore reads a resource's recorded supply ledger.
func ResourceSupplyFromStore(store SubstateStore, resource NodeID) (minted, burned Decimal, err error) {
	payload, ok := store.ReadSubstate(resource, PartitionMain, FieldKey(0))
	if !ok {
		return Decimal{}, Decimal{}, errResource("resource %s not found", resource)
	}
	v, err := DecodePayload(payload)
	if err != nil {
		return Decimal{}, Decimal{}, err
	}
	state, err := resourceManagerFromValue(v)
	if err != nil {
		return Decimal{}, Decimal{}, err
	}
	return state.TotalMinted, state.TotalBurned, nil
}

// EpochFromStore reads the committed epoch, if bootstrapped.
func EpochFromStore(store SubstateStore) (uint64, bool) {
	payload, ok := store.ReadSubstate(ConsensusManagerAddress, PartitionMain, FieldKey(0))
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

// TotalVaultedFromStore sums every committed vault of a resource; the
// resource conservation property compares this against minted - burned.
func TotalVaultedFromStore(store *MemorySubstateStore, resource NodeID) (Decimal, error) {
	total := ZeroDecimal()
	var walkErr error
	store.EachSubstate(func(id NodeID, part PartitionNumber, key SubstateKey, value []byte) bool {
		if part != PartitionTypeInfo || !id.EntityType().IsVault() {
			return true
		}
		info, err := decodeTypeInfo(value)
		if err != nil || info.Outer != resource {
			return true
		}
		amount, err := VaultBalanceFromStore(store, id)
		if err != nil {
			walkErr = err
			return false
		}
		if total, err = total.Add(amount); err != nil {
			walkErr = err
			return false
		}
		return true
	})
	return total, walkErr
}
