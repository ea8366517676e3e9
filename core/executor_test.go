package core

import (
	"bytes"
	"encoding/json"
	"testing"
)

// ------------------------------------------------------------
// Harness
// ------------------------------------------------------------

var testNetwork = NetworkDefinition{ID: 242, Name: "sim"}

func newTestEngine(t *testing.T, cfg GenesisConfig) *Engine {
	t.Helper()
	e := NewEngine(NewMemorySubstateStore(), NewMemoryTreeStore(), testNetwork)
	if _, err := e.Bootstrap(cfg); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return e
}

func devGenesis() GenesisConfig {
	cfg := DefaultGenesis()
	cfg.FaucetSupply = MustDecimal("1000000")
	return cfg
}

func runTx(t *testing.T, e *Engine, nonce uint32, signers [][]byte, instructions ...Instruction) *Receipt {
	t.Helper()
	return e.ExecuteTransaction(&TransactionEnvelope{
		NetworkID:         testNetwork.ID,
		EndEpochExclusive: ^uint64(0),
		Nonce:             nonce,
		Instructions:      instructions,
		SignerPublicKeys:  signers,
	})
}

func mustCommit(t *testing.T, r *Receipt) *Receipt {
	t.Helper()
	if !r.IsCommitSuccess() {
		t.Fatalf("expected commit success, got %s: %s", r.Result, r.ErrorMessage)
	}
	return r
}

// createdNode finds the first freshly created node of the given entity
// class in a receipt.
func createdNode(t *testing.T, r *Receipt, entity EntityType) NodeID {
	t.Helper()
	for _, u := range r.StateUpdates {
		if u.NodeID.EntityType() == entity && u.Partition == PartitionTypeInfo && u.OldHash == nil {
			return u.NodeID
		}
	}
	t.Fatalf("no created node of class %s in receipt", entity)
	return NodeID{}
}

var (
	keyAlice = []byte("alice-public-key-000000000000001")
	keyBob   = []byte("bob-public-key-00000000000000002")
)

func fundAccount(t *testing.T, e *Engine, nonce uint32, account NodeID, amount string) {
	t.Helper()
	mustCommit(t, runTx(t, e, nonce, nil,
		CallMethod(FaucetAddress, "withdraw",
			ArgLiteral(VAddress(ResourceMRD)), ArgLiteral(VDecimal(MustDecimal(amount)))),
		TakeAllFromWorktop(ResourceMRD),
		CallMethod(account, "deposit", ArgBucket(0)),
	))
}

// ------------------------------------------------------------
// Scenario 1: empty manifest
// ------------------------------------------------------------

func TestEmptyManifestCommits(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	rootBefore := e.StateRoot()
	versionBefore := e.StateVersion()

	r := mustCommit(t, runTx(t, e, 1, [][]byte{keyAlice}))
	if r.NewStateRoot != rootBefore {
		t.Fatalf("empty manifest moved the state root")
	}
	if r.StateVersion != versionBefore {
		t.Fatalf("empty manifest advanced the version")
	}
	if len(r.StateUpdates) != 0 {
		t.Fatalf("empty manifest produced %d updates", len(r.StateUpdates))
	}
	if r.FeeSummary.ExecutionUnits == 0 {
		t.Fatal("base cost missing from fee summary")
	}
}

// ------------------------------------------------------------
// Scenario 2: mint 100, burn 60, keep 40
// ------------------------------------------------------------

func createTestResource(t *testing.T, e *Engine, nonce uint32, minter []byte) NodeID {
	t.Helper()
	roles := DefaultResourceRoles(AllowAll())
	roles.Mint = RequireNonFungible(SignatureBadgeID(minter))
	roles.Burn = RequireNonFungible(SignatureBadgeID(minter))
	r := mustCommit(t, runTx(t, e, nonce, nil,
		CallFunction(PackageResource, BlueprintFungibleResourceManager, "create",
			ArgLiteral(VU8(18)),
			ArgLiteral(VMap(ValueKindString, ValueKindString,
				MapEntry{Key: VString("symbol"), Value: VString("TST")})),
			ArgLiteral(roles.toValue()),
			ArgLiteral(VEnum(0))),
	))
	return createdNode(t, r, EntityTypeGlobalFungibleResource)
}

func TestMintBurnSupply(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	resource := createTestResource(t, e, 1, keyAlice)
	account := VirtualAccountID(keyAlice)

	mustCommit(t, runTx(t, e, 2, [][]byte{keyAlice},
		CallMethod(resource, "mint", ArgLiteral(VDecimal(NewDecimal(100)))),
		TakeFromWorktop(resource, NewDecimal(60)),
		BurnResource(0),
		TakeAllFromWorktop(resource),
		CallMethod(account, "deposit", ArgBucket(1)),
	))

	minted, burned, err := ResourceSupplyFromStore(e.Store(), resource)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if !minted.Equal(NewDecimal(100)) || !burned.Equal(NewDecimal(60)) {
		t.Fatalf("supply ledger: minted %s burned %s", minted, burned)
	}
	balance, err := AccountBalanceFromStore(e.Store(), account, resource)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Equal(NewDecimal(40)) {
		t.Fatalf("account balance %s, want 40", balance)
	}

	// P2: sum of vaults equals minted - burned.
	vaulted, err := TotalVaultedFromStore(e.Store().(*MemorySubstateStore), resource)
	if err != nil {
		t.Fatalf("vault walk: %v", err)
	}
	expected, _ := minted.Sub(burned)
	if !vaulted.Equal(expected) {
		t.Fatalf("conservation: vaulted %s != minted-burned %s", vaulted, expected)
	}
}

func TestMintWithoutRoleDenied(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	resource := createTestResource(t, e, 1, keyAlice)

	r := runTx(t, e, 2, [][]byte{keyBob},
		CallMethod(resource, "mint", ArgLiteral(VDecimal(NewDecimal(1)))),
	)
	if r.Result != ResultCommitFailure || r.ErrorKind != ErrKindAuthorization {
		t.Fatalf("expected authorization failure, got %s / %s", r.Result, r.ErrorKind)
	}
}

// ------------------------------------------------------------
// Scenario 3: unauthorized withdraw
// ------------------------------------------------------------

func TestUnauthorizedWithdraw(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	alice := VirtualAccountID(keyAlice)
	fundAccount(t, e, 1, alice, "100")
	rootBefore := e.StateRoot()

	// Bob signs, but Alice's account demands Alice's badge.
	r := runTx(t, e, 2, [][]byte{keyBob},
		CallMethod(alice, "withdraw",
			ArgLiteral(VAddress(ResourceMRD)), ArgLiteral(VDecimal(OneDecimal()))),
	)
	if r.Result != ResultCommitFailure {
		t.Fatalf("expected failure, got %s", r.Result)
	}
	if r.ErrorKind != ErrKindAuthorization {
		t.Fatalf("expected Authorization error, got %s (%s)", r.ErrorKind, r.ErrorMessage)
	}
	if e.StateRoot() != rootBefore {
		t.Fatal("failed transaction mutated state")
	}
	if r.FeeSummary.ExecutionUnits == 0 {
		t.Fatal("failure must still report consumed fees")
	}
	if len(r.StateUpdates) != 0 {
		t.Fatal("failure must carry no state updates")
	}

	// The rightful signer succeeds.
	mustCommit(t, runTx(t, e, 3, [][]byte{keyAlice},
		CallMethod(alice, "withdraw",
			ArgLiteral(VAddress(ResourceMRD)), ArgLiteral(VDecimal(OneDecimal()))),
		TakeAllFromWorktop(ResourceMRD),
		CallMethod(alice, "deposit", ArgBucket(0)),
	))
}

// ------------------------------------------------------------
// Scenario 4: epoch advance
// ------------------------------------------------------------

func TestEpochAdvance(t *testing.T) {
	cfg := devGenesis()
	cfg.InitialEpoch = 5
	cfg.RoundsPerEpoch = 2
	e := newTestEngine(t, cfg)

	r1 := mustCommit(t, runTx(t, e, 1, nil,
		CallMethod(ConsensusManagerAddress, "next_round", ArgLiteral(VU64(1))),
	))
	if r1.NextEpoch != nil {
		t.Fatal("first round must not change the epoch")
	}
	if epoch, _ := EpochFromStore(e.Store()); epoch != 5 {
		t.Fatalf("epoch %d after round 1", epoch)
	}

	r2 := mustCommit(t, runTx(t, e, 2, nil,
		CallMethod(ConsensusManagerAddress, "next_round", ArgLiteral(VU64(2))),
	))
	if r2.NextEpoch == nil || r2.NextEpoch.Epoch != 6 {
		t.Fatalf("expected next_epoch 6, got %+v", r2.NextEpoch)
	}
	if epoch, _ := EpochFromStore(e.Store()); epoch != 6 {
		t.Fatalf("epoch %d after rollover", epoch)
	}
}

func TestEpochWindowRejection(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	r := e.ExecuteTransaction(&TransactionEnvelope{
		NetworkID:           testNetwork.ID,
		StartEpochInclusive: 99,
		EndEpochExclusive:   100,
	})
	if r.Result != ResultRejected {
		t.Fatalf("expected rejection, got %s", r.Result)
	}
	r2 := e.ExecuteTransaction(&TransactionEnvelope{
		NetworkID:         testNetwork.ID,
		EndEpochExclusive: 1, // current epoch is 1, window is exclusive
	})
	if r2.Result != ResultRejected {
		t.Fatalf("expected expiry rejection, got %s", r2.Result)
	}
}

func TestDuplicateIntentRejected(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	env := &TransactionEnvelope{NetworkID: testNetwork.ID, EndEpochExclusive: ^uint64(0), Nonce: 7}
	if r := e.ExecuteTransaction(env); !r.IsCommitSuccess() {
		t.Fatalf("first run: %s", r.ErrorMessage)
	}
	if r := e.ExecuteTransaction(env); r.Result != ResultRejected {
		t.Fatalf("duplicate intent not rejected: %s", r.Result)
	}
}

func TestWrongNetworkRejected(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	r := e.ExecuteTransaction(&TransactionEnvelope{NetworkID: 7, EndEpochExclusive: ^uint64(0)})
	if r.Result != ResultRejected {
		t.Fatalf("expected network rejection, got %s", r.Result)
	}
}

// ------------------------------------------------------------
// Scenario 5 is covered in hash_tree_test.go; scenario 6 below.
// ------------------------------------------------------------

func TestDanglingBucketFailsTransaction(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	rootBefore := e.StateRoot()

	r := runTx(t, e, 1, nil,
		CallMethod(FaucetAddress, "withdraw",
			ArgLiteral(VAddress(ResourceMRD)), ArgLiteral(VDecimal(NewDecimal(10)))),
		TakeFromWorktop(ResourceMRD, NewDecimal(10)),
		// bucket 0 is never deposited
	)
	if r.Result != ResultCommitFailure {
		t.Fatalf("expected failure, got %s", r.Result)
	}
	if r.ErrorKind != ErrKindResource {
		t.Fatalf("expected Resource error, got %s (%s)", r.ErrorKind, r.ErrorMessage)
	}
	if e.StateRoot() != rootBefore {
		t.Fatal("failed transaction mutated state")
	}
}

func TestLeftoverWorktopFailsTransaction(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	r := runTx(t, e, 1, nil,
		CallMethod(FaucetAddress, "withdraw",
			ArgLiteral(VAddress(ResourceMRD)), ArgLiteral(VDecimal(NewDecimal(10)))),
		// resources stay on the worktop
	)
	if r.Result != ResultCommitFailure || r.ErrorKind != ErrKindResource {
		t.Fatalf("expected Resource failure, got %s / %s", r.Result, r.ErrorKind)
	}
}

// ------------------------------------------------------------
// P1: determinism
// ------------------------------------------------------------

func TestDeterministicExecution(t *testing.T) {
	run := func() ([]*Receipt, Hash) {
		e := NewEngine(NewMemorySubstateStore(), NewMemoryTreeStore(), testNetwork)
		if _, err := e.Bootstrap(devGenesis()); err != nil {
			t.Fatalf("bootstrap: %v", err)
		}
		var receipts []*Receipt
		alice := VirtualAccountID(keyAlice)
		bob := VirtualAccountID(keyBob)
		receipts = append(receipts, runTx(t, e, 1, nil,
			CallMethod(FaucetAddress, "withdraw",
				ArgLiteral(VAddress(ResourceMRD)), ArgLiteral(VDecimal(NewDecimal(500)))),
			TakeAllFromWorktop(ResourceMRD),
			CallMethod(alice, "deposit", ArgBucket(0))))
		receipts = append(receipts, runTx(t, e, 2, [][]byte{keyAlice},
			CallMethod(alice, "withdraw",
				ArgLiteral(VAddress(ResourceMRD)), ArgLiteral(VDecimal(NewDecimal(123)))),
			TakeAllFromWorktop(ResourceMRD),
			CallMethod(bob, "deposit", ArgBucket(0))))
		return receipts, e.StateRoot()
	}

	receiptsA, rootA := run()
	receiptsB, rootB := run()
	if rootA != rootB {
		t.Fatalf("state roots diverge: %s vs %s", rootA, rootB)
	}
	for i := range receiptsA {
		a, _ := json.Marshal(receiptsA[i])
		b, _ := json.Marshal(receiptsB[i])
		if !bytes.Equal(a, b) {
			t.Fatalf("receipt %d diverges:\n%s\n%s", i, a, b)
		}
	}
}

// ------------------------------------------------------------
// Transfers, proofs and fees
// ------------------------------------------------------------

func TestAccountTransfer(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	alice := VirtualAccountID(keyAlice)
	bob := VirtualAccountID(keyBob)
	fundAccount(t, e, 1, alice, "250")

	mustCommit(t, runTx(t, e, 2, [][]byte{keyAlice},
		CallMethod(alice, "withdraw",
			ArgLiteral(VAddress(ResourceMRD)), ArgLiteral(VDecimal(NewDecimal(100)))),
		AssertWorktopContains(ResourceMRD, NewDecimal(100)),
		TakeAllFromWorktop(ResourceMRD),
		CallMethod(bob, "deposit", ArgBucket(0)),
	))

	aliceBal, _ := AccountBalanceFromStore(e.Store(), alice, ResourceMRD)
	bobBal, _ := AccountBalanceFromStore(e.Store(), bob, ResourceMRD)
	if !aliceBal.Equal(NewDecimal(150)) || !bobBal.Equal(NewDecimal(100)) {
		t.Fatalf("balances after transfer: alice %s bob %s", aliceBal, bobBal)
	}
}

func TestWorktopAssertFails(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	r := runTx(t, e, 1, nil,
		CallMethod(FaucetAddress, "withdraw",
			ArgLiteral(VAddress(ResourceMRD)), ArgLiteral(VDecimal(NewDecimal(5)))),
		AssertWorktopContains(ResourceMRD, NewDecimal(10)),
	)
	if r.Result != ResultCommitFailure || r.ErrorKind != ErrKindResource {
		t.Fatalf("expected worktop assertion failure, got %s / %s", r.Result, r.ErrorKind)
	}
}

func TestProofLifecycle(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	alice := VirtualAccountID(keyAlice)
	fundAccount(t, e, 1, alice, "50")

	mustCommit(t, runTx(t, e, 2, [][]byte{keyAlice},
		CallMethod(alice, "create_proof_of_amount",
			ArgLiteral(VAddress(ResourceMRD)), ArgLiteral(VDecimal(NewDecimal(10)))),
		// The returned proof lands on the auth zone; pop, clone, drop both.
		PopFromAuthZone(),
		CloneProof(0),
		DropProof(0),
		DropProof(1),
	))

	// Proofs never change balances.
	balance, _ := AccountBalanceFromStore(e.Store(), alice, ResourceMRD)
	if !balance.Equal(NewDecimal(50)) {
		t.Fatalf("proof moved resources: %s", balance)
	}
}

func TestLockFeeSettlement(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	alice := VirtualAccountID(keyAlice)
	fundAccount(t, e, 1, alice, "100")

	r := mustCommit(t, runTx(t, e, 2, [][]byte{keyAlice},
		CallMethod(alice, "lock_fee", ArgLiteral(VDecimal(NewDecimal(10)))),
	))
	if !r.FeeSummary.LoanRepaid {
		t.Fatal("locked 10 MRD must repay the loan")
	}
	if r.FeeSummary.Refunded.IsZero() {
		t.Fatal("surplus fee must be refunded")
	}

	balance, _ := AccountBalanceFromStore(e.Store(), alice, ResourceMRD)
	charged, _ := NewDecimal(100).Sub(balance)
	if !charged.Equal(r.FeeSummary.TotalCharged) {
		t.Fatalf("vault lost %s but summary charged %s", charged, r.FeeSummary.TotalCharged)
	}

	// P2 across fee burn and validator routing.
	minted, burned, err := ResourceSupplyFromStore(e.Store(), ResourceMRD)
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	vaulted, err := TotalVaultedFromStore(e.Store().(*MemorySubstateStore), ResourceMRD)
	if err != nil {
		t.Fatalf("vault walk: %v", err)
	}
	expected, _ := minted.Sub(burned)
	if !vaulted.Equal(expected) {
		t.Fatalf("conservation across fees: vaulted %s != %s", vaulted, expected)
	}
}

// ------------------------------------------------------------
// P8: cost monotonicity and exhaustion
// ------------------------------------------------------------

func TestCostExhaustionAborts(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	alice := VirtualAccountID(keyAlice)
	fundAccount(t, e, 1, alice, "100")

	// A self-transfer loop long enough to exhaust the start-up loan.
	var instructions []Instruction
	for i := 0; i < 2000; i++ {
		instructions = append(instructions,
			CallMethod(alice, "withdraw",
				ArgLiteral(VAddress(ResourceMRD)), ArgLiteral(VDecimal(OneDecimal()))),
			TakeAllFromWorktop(ResourceMRD),
			CallMethod(alice, "deposit", ArgBucket(uint32(i))),
		)
	}
	r := runTx(t, e, 2, [][]byte{keyAlice}, instructions...)
	if r.Result != ResultAborted && r.Result != ResultCommitFailure {
		t.Fatalf("expected abort, got %s", r.Result)
	}
	if r.ErrorKind != ErrKindAbort && r.ErrorKind != ErrKindSystem {
		t.Fatalf("expected Abort (or limit breach), got %s: %s", r.ErrorKind, r.ErrorMessage)
	}
	if len(r.StateUpdates) != 0 {
		t.Fatal("aborted transaction carried state updates")
	}
}

// ------------------------------------------------------------
// Package publication via blob
// ------------------------------------------------------------

func TestPublishPackageWithBlob(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	// A minimal (empty) module passes validation; execution would require
	// exports, but publication does not execute.
	code := append([]byte{}, wasmMagic...)
	codeHash := HashOf(code)

	blueprintDef := VTuple(
		VString("Main"),
		VMap(ValueKindString, ValueKindEnum),
		VMap(ValueKindString, ValueKindDecimal),
	)
	r := e.ExecuteTransaction(&TransactionEnvelope{
		NetworkID:         testNetwork.ID,
		EndEpochExclusive: ^uint64(0),
		Nonce:             1,
		Blobs:             map[Hash][]byte{codeHash: code},
		Instructions: []Instruction{
			CallFunction(PackagePackage, BlueprintPackage, "publish_wasm",
				ArgBlob(codeHash),
				ArgLiteral(VArray(ValueKindTuple, blueprintDef)),
				ArgLiteral(VMap(ValueKindString, ValueKindString))),
			CallMethod(FaucetAddress, "deposit_batch", ArgExpression(ExprEntireWorktop)),
		},
	})
	mustCommit(t, r)

	pkg := createdNode(t, r, EntityTypeGlobalPackage)
	payload, ok := e.Store().ReadSubstate(pkg, PartitionMain, FieldKey(0))
	if !ok {
		t.Fatal("package code substate missing")
	}
	v, err := DecodePayload(payload)
	if err != nil {
		t.Fatalf("decode code substate: %v", err)
	}
	sub, err := packageCodeFromValue(v)
	if err != nil {
		t.Fatalf("code substate: %v", err)
	}
	if sub.CodeHash != codeHash {
		t.Fatal("stored code hash differs from published blob")
	}

	// The attached blob must match what an unknown hash rejects.
	r2 := e.ExecuteTransaction(&TransactionEnvelope{
		NetworkID:         testNetwork.ID,
		EndEpochExclusive: ^uint64(0),
		Nonce:             2,
		Instructions: []Instruction{
			CallFunction(PackagePackage, BlueprintPackage, "publish_wasm",
				ArgBlob(codeHash),
				ArgLiteral(VArray(ValueKindTuple)),
				ArgLiteral(VMap(ValueKindString, ValueKindString))),
		},
	})
	if r2.Result != ResultCommitFailure || r2.ErrorKind != ErrKindDecode {
		t.Fatalf("missing blob must fail decode, got %s / %s", r2.Result, r2.ErrorKind)
	}
}

// ------------------------------------------------------------
// Direct vault access (recall) and worktop returns
// ------------------------------------------------------------

func TestVaultRecallDirect(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	roles := DefaultResourceRoles(AllowAll())
	roles.Mint = RequireNonFungible(SignatureBadgeID(keyAlice))
	roles.Recall = RequireNonFungible(SignatureBadgeID(keyAlice))
	r := mustCommit(t, runTx(t, e, 1, nil,
		CallFunction(PackageResource, BlueprintFungibleResourceManager, "create",
			ArgLiteral(VU8(18)),
			ArgLiteral(VMap(ValueKindString, ValueKindString)),
			ArgLiteral(roles.toValue()),
			ArgLiteral(VEnum(0))),
	))
	resource := createdNode(t, r, EntityTypeGlobalFungibleResource)
	bob := VirtualAccountID(keyBob)

	mustCommit(t, runTx(t, e, 2, [][]byte{keyAlice},
		CallMethod(resource, "mint", ArgLiteral(VDecimal(NewDecimal(20)))),
		TakeAllFromWorktop(resource),
		CallMethod(bob, "deposit", ArgBucket(0)),
	))
	vault, ok := AccountVaultFromStore(e.Store(), bob, resource)
	if !ok {
		t.Fatal("bob's vault missing")
	}

	// Recall 5 out of Bob's vault without Bob's signature, under the
	// recall role, and pay it to Alice.
	alice := VirtualAccountID(keyAlice)
	mustCommit(t, runTx(t, e, 3, [][]byte{keyAlice},
		CallDirectVaultMethod(vault, "recall", ArgLiteral(VDecimal(NewDecimal(5)))),
		TakeAllFromWorktop(resource),
		CallMethod(alice, "deposit", ArgBucket(0)),
	))

	bobBal, _ := AccountBalanceFromStore(e.Store(), bob, resource)
	aliceBal, _ := AccountBalanceFromStore(e.Store(), alice, resource)
	if !bobBal.Equal(NewDecimal(15)) || !aliceBal.Equal(NewDecimal(5)) {
		t.Fatalf("balances after recall: bob %s alice %s", bobBal, aliceBal)
	}

	// Without the recall badge the direct path is denied.
	r2 := runTx(t, e, 4, [][]byte{keyBob},
		CallDirectVaultMethod(vault, "recall", ArgLiteral(VDecimal(OneDecimal()))),
	)
	if r2.Result != ResultCommitFailure || r2.ErrorKind != ErrKindAuthorization {
		t.Fatalf("expected authorization failure, got %s / %s", r2.Result, r2.ErrorKind)
	}
}

func TestReturnToWorktop(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	alice := VirtualAccountID(keyAlice)
	fundAccount(t, e, 1, alice, "30")

	mustCommit(t, runTx(t, e, 2, [][]byte{keyAlice},
		CallMethod(alice, "withdraw",
			ArgLiteral(VAddress(ResourceMRD)), ArgLiteral(VDecimal(NewDecimal(30)))),
		TakeFromWorktop(ResourceMRD, NewDecimal(12)),
		ReturnToWorktop(0),
		AssertWorktopContains(ResourceMRD, NewDecimal(30)),
		TakeAllFromWorktop(ResourceMRD),
		CallMethod(alice, "deposit", ArgBucket(1)),
	))
	balance, _ := AccountBalanceFromStore(e.Store(), alice, ResourceMRD)
	if !balance.Equal(NewDecimal(30)) {
		t.Fatalf("balance after return: %s", balance)
	}
}

// ------------------------------------------------------------
// Events
// ------------------------------------------------------------

func TestWithdrawEmitsEvents(t *testing.T) {
	e := newTestEngine(t, devGenesis())
	alice := VirtualAccountID(keyAlice)
	fundAccount(t, e, 1, alice, "10")

	r := mustCommit(t, runTx(t, e, 2, [][]byte{keyAlice},
		CallMethod(alice, "withdraw",
			ArgLiteral(VAddress(ResourceMRD)), ArgLiteral(VDecimal(NewDecimal(3)))),
		TakeAllFromWorktop(ResourceMRD),
		CallMethod(alice, "deposit", ArgBucket(0)),
	))
	var sawWithdraw, sawDeposit bool
	for _, ev := range r.Events {
		switch ev.Name {
		case "WithdrawResourceEvent":
			sawWithdraw = true
		case "DepositResourceEvent":
			sawDeposit = true
		}
	}
	if !sawWithdraw || !sawDeposit {
		t.Fatalf("missing resource events: %+v", r.Events)
	}
}
