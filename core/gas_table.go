// Meridian Network - Core Cost Schedule
// -------------------------------------
// This file contains the canonical cost-unit pricing table for every
// metered operation recognised by the Meridian engine. The numbers reflect
// the relative CPU, memory and storage cost of each operation and are
// DoS-resistant; dynamic portions (per-byte fees, per-fuel WASM charges)
// multiply the base price by the observed size.
//
// IMPORTANT
//   - The table MUST contain a unique entry for every CostKind declared in
//     this file.
//   - Unknown / un-priced kinds fall back to DefaultCostUnits, which is set
//     deliberately high and logged exactly once per missing kind.
//   - All reads from the table are fully concurrent-safe.

package core

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// CostKind identifies one metered operation class.
type CostKind uint8

const (
	CostTxBase CostKind = iota
	CostInvoke
	CostAllocateNodeID
	CostCreateNode
	CostDropNode
	CostGlobalize
	CostOpenSubstate
	CostReadSubstatePerByte
	CostWriteSubstatePerByte
	CostCloseSubstate
	CostEmitEventPerByte
	CostEmitLogPerByte
	CostWASMFuel
	CostWASMInstantiatePerByte
	CostStateTreeWrite
	CostGenerateRUID
	CostAuthCheck
)

// DefaultCostUnits is charged for any kind that has slipped through the
// cracks. The value is intentionally punitive.
const DefaultCostUnits uint64 = 100_000

var costTable = map[CostKind]uint64{
	CostTxBase:                 50_000,
	CostInvoke:                 500,
	CostAllocateNodeID:         100,
	CostCreateNode:             500,
	CostDropNode:               100,
	CostGlobalize:              1_000,
	CostOpenSubstate:           250,
	CostReadSubstatePerByte:    2,
	CostWriteSubstatePerByte:   4,
	CostCloseSubstate:          100,
	CostEmitEventPerByte:       4,
	CostEmitLogPerByte:         2,
	CostWASMFuel:               1,
	CostWASMInstantiatePerByte: 1,
	CostStateTreeWrite:         1_000,
	CostGenerateRUID:           100,
	CostAuthCheck:              200,
}

var missingCostOnce sync.Map // CostKind -> struct{}

// CostUnits returns the base price for a single operation of the given
// kind. Callers multiply by their dynamic size where applicable.
func CostUnits(kind CostKind) uint64 {
	if cost, ok := costTable[kind]; ok {
		return cost
	}
	if _, logged := missingCostOnce.LoadOrStore(kind, struct{}{}); !logged {
		logrus.Warnf("cost table: missing price for kind %d - charging default", kind)
	}
	return DefaultCostUnits
}
