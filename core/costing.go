package core

// Fee reserve: the single monotone meter every subsystem draws from. It is
// pre-funded by a bounded loan and by lock_fee transfers out of vaults of
// the native MRD resource; when the balance cannot cover a charge the
// transaction aborts at that instant and nothing commits.

import "math/big"

// Fee policy constants, denominated in cost units and MRD subunits.
const (
	// FeeLoanUnits is the bounded start-up loan: enough to reach the first
	// lock_fee instruction (or finish a small transaction outright).
	FeeLoanUnits uint64 = 5_000_000
	// CostUnitPriceSubunits is the MRD subunit price of one cost unit.
	CostUnitPriceSubunits uint64 = 1_000_000 // 1e-12 MRD per unit
	// FeeBurnPercent of the collected execution fee is burned at commit.
	FeeBurnPercent uint64 = 50
)

// FeeSummary is the receipt-facing accounting of a transaction's cost.
type FeeSummary struct {
	ExecutionUnits uint64  `json:"execution_units"`
	StorageUnits   uint64  `json:"storage_units"`
	RoyaltyTotal   Decimal `json:"royalty_total"`
	TipTotal       Decimal `json:"tip_total"`
	TotalCharged   Decimal `json:"total_charged"`
	Burned         Decimal `json:"burned"`
	ToValidators   Decimal `json:"to_validators"`
	Refunded       Decimal `json:"refunded"`
	LoanRepaid     bool    `json:"loan_repaid"`
}

// feeLock records one lock_fee contribution so surpluses can be refunded
// to the last locker.
type feeLock struct {
	vault      NodeID
	amount     Decimal
	contingent bool
}

// FeeReserve meters every chargeable operation of one transaction.
type FeeReserve struct {
	tipPercentage uint16

	loanRemaining  uint64
	lockedUnits    uint64 // units purchasable from locked fees
	consumedExec   uint64
	consumedStore  uint64
	royaltyOwed    Decimal
	royaltyTargets map[NodeID]Decimal // royalty vault -> amount owed
	locks          []feeLock
	aborted        bool
}

// NewFeeReserve opens a reserve carrying only the start-up loan.
func NewFeeReserve(tipPercentage uint16) *FeeReserve {
	return &FeeReserve{
		tipPercentage:  tipPercentage,
		loanRemaining:  FeeLoanUnits,
		royaltyTargets: make(map[NodeID]Decimal),
	}
}

func (r *FeeReserve) available() uint64 { return r.loanRemaining + r.lockedUnits }

// ConsumeExecution charges n operations of the given kind.
func (r *FeeReserve) ConsumeExecution(kind CostKind, n uint64) error {
	return r.consume(&r.consumedExec, CostUnits(kind)*n)
}

// ConsumeStorage charges storage units (state-tree writes, substate
// persistence).
func (r *FeeReserve) ConsumeStorage(kind CostKind, n uint64) error {
	return r.consume(&r.consumedStore, CostUnits(kind)*n)
}

func (r *FeeReserve) consume(counter *uint64, units uint64) error {
	if r.aborted {
		return ErrOutOfCostUnits
	}
	if units > r.available() {
		r.aborted = true
		return ErrOutOfCostUnits
	}
	if units <= r.lockedUnits {
		r.lockedUnits -= units
	} else {
		rest := units - r.lockedUnits
		r.lockedUnits = 0
		r.loanRemaining -= rest
	}
	*counter += units
	return nil
}

// LockFee credits the reserve with fee resource taken from a vault. The
// vault blueprint has already debited the liquid balance; the reserve only
// remembers where a surplus refund must go.
func (r *FeeReserve) LockFee(vault NodeID, amount Decimal, contingent bool) error {
	if amount.IsNegative() || amount.IsZero() {
		return errResource("lock_fee amount %s must be positive", amount)
	}
	units, err := unitsFromFee(amount)
	if err != nil {
		return err
	}
	if !contingent {
		r.lockedUnits += units
	}
	r.locks = append(r.locks, feeLock{vault: vault, amount: amount, contingent: contingent})
	return nil
}

// AddRoyalty accrues a royalty charge payable to the given royalty vault.
func (r *FeeReserve) AddRoyalty(vault NodeID, amount Decimal) error {
	if r.aborted {
		return ErrOutOfCostUnits
	}
	units, err := unitsFromFee(amount)
	if err != nil {
		return err
	}
	if err := r.consume(&r.consumedExec, units); err != nil {
		return err
	}
	sum, err := r.royaltyOwed.Add(amount)
	if err != nil {
		return err
	}
	r.royaltyOwed = sum
	prev := r.royaltyTargets[vault]
	if r.royaltyTargets[vault], err = prev.Add(amount); err != nil {
		return err
	}
	return nil
}

// ConsumedUnits returns total units drawn so far (P8 monotonicity hook).
func (r *FeeReserve) ConsumedUnits() uint64 { return r.consumedExec + r.consumedStore }

// unitsFromFee converts an MRD amount into whole cost units.
func unitsFromFee(amount Decimal) (uint64, error) {
	sub := amount.Subunits()
	sub.Quo(sub, new(big.Int).SetUint64(CostUnitPriceSubunits))
	if !sub.IsUint64() {
		return 0, errResource("fee amount %s out of range", amount)
	}
	return sub.Uint64(), nil
}

func feeFromUnits(units uint64) Decimal {
	sub := new(big.Int).Mul(new(big.Int).SetUint64(units), new(big.Int).SetUint64(CostUnitPriceSubunits))
	d, _ := DecimalFromSubunits(sub)
	return d
}

// Finalize settles the reserve after execution. success selects whether
// contingent locks participate. The returned summary carries the refund
// owed to the last locking vault; the executor writes the balances back.
func (r *FeeReserve) Finalize(success bool) (FeeSummary, map[NodeID]Decimal) {
	summary := FeeSummary{
		ExecutionUnits: r.consumedExec,
		StorageUnits:   r.consumedStore,
		RoyaltyTotal:   r.royaltyOwed,
	}

	locked := ZeroDecimal()
	for _, l := range r.locks {
		if l.contingent && !success {
			continue
		}
		if sum, err := locked.Add(l.amount); err == nil {
			locked = sum
		}
	}

	consumed := feeFromUnits(r.consumedExec + r.consumedStore)
	tip, _ := consumed.Mul(NewDecimal(int64(r.tipPercentage)))
	tip, _ = tip.Div(NewDecimal(100))
	summary.TipTotal = tip

	charged, _ := consumed.Add(tip)
	summary.TotalCharged = charged
	summary.LoanRepaid = locked.GTE(charged)

	// Only fees actually collected through lock_fee move resources; the
	// start-up loan portion is accounting-only and never touches vaults.
	collected := charged
	if locked.LT(charged) {
		collected = locked
	}
	refund, _ := locked.Sub(collected)
	summary.Refunded = refund

	burned, _ := collected.Mul(NewDecimal(int64(FeeBurnPercent)))
	burned, _ = burned.Div(NewDecimal(100))
	summary.Burned = burned
	toValidators, _ := collected.Sub(burned)
	summary.ToValidators = toValidators

	refunds := make(map[NodeID]Decimal)
	if !refund.IsZero() && len(r.locks) > 0 {
		last := r.locks[len(r.locks)-1]
		refunds[last.vault] = refund
	}
	for vault, amount := range r.royaltyTargets {
		if !success {
			break
		}
		prev := refunds[vault]
		if sum, err := prev.Add(amount); err == nil {
			refunds[vault] = sum
		}
	}
	return summary, refunds
}
