package cli

// ──────────────────────────────────────────────────────────────────────────────
// Package sub-commands
//
//   package publish <code.wasm>   - validate and publish a WASM package
//
// Blueprint definitions ride along as a JSON sidecar (<code>.blueprints.json)
// when present; otherwise a single permissive blueprint named "Main" is
// assumed.
// ──────────────────────────────────────────────────────────────────────────────

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"meridian-network/core"
)

type blueprintSidecar struct {
	Name      string            `json:"name"`
	Functions map[string]string `json:"functions"` // fn -> "public" | "owner-like rule names unsupported here"
}

var packagePublishCmd = &cobra.Command{
	Use:   "publish [code.wasm]",
	Short: "validate a WASM module and publish it as a package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		// Validate up front so a bad module fails before a transaction is
		// even assembled.
		if _, err := core.ValidateWASMModule(code); err != nil {
			return fmt.Errorf("module rejected: %w", err)
		}

		blueprints := []core.Value{blueprintDefValue("Main")}
		sidecarPath := args[0] + ".blueprints.json"
		if raw, err := os.ReadFile(sidecarPath); err == nil {
			var sidecars []blueprintSidecar
			if err := json.Unmarshal(raw, &sidecars); err != nil {
				return fmt.Errorf("decode %s: %w", sidecarPath, err)
			}
			blueprints = blueprints[:0]
			for _, sc := range sidecars {
				blueprints = append(blueprints, blueprintDefValue(sc.Name))
			}
		}

		// The code rides as a blob addressed by hash, keeping the
		// instruction stream small.
		codeHash := core.HashOf(code)
		env := &core.TransactionEnvelope{
			NetworkID:         network.ID,
			EndEpochExclusive: ^uint64(0),
			Blobs:             map[core.Hash][]byte{codeHash: code},
			Instructions: []core.Instruction{
				core.CallFunction(core.PackagePackage, core.BlueprintPackage, "publish_wasm",
					core.ArgBlob(codeHash),
					core.ArgLiteral(core.VArray(core.ValueKindTuple, blueprints...)),
					core.ArgLiteral(core.VMap(core.ValueKindString, core.ValueKindString))),
				core.CallMethod(core.FaucetAddress, "deposit_batch", core.ArgExpression(core.ExprEntireWorktop)),
			},
		}
		receipt, err := runAndPersist(env)
		if err != nil {
			return err
		}
		printReceipt(receipt)
		if code := exitCode(receipt); code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

// blueprintDefValue renders an all-public blueprint definition tuple.
func blueprintDefValue(name string) core.Value {
	return core.VTuple(
		core.VString(name),
		core.VMap(core.ValueKindString, core.ValueKindEnum),
		core.VMap(core.ValueKindString, core.ValueKindDecimal),
	)
}

func packageCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "package", PersistentPreRunE: initMiddleware}
	cmd.AddCommand(packagePublishCmd)
	return cmd
}
