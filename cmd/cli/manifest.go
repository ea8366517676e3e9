package cli

// ──────────────────────────────────────────────────────────────────────────────
// Manifest sub-commands
//
//   manifest run <file.json> [--signer <hexkey>]...
//
// The JSON form is the CLI's thin binding onto the engine's instruction
// structs; the full manifest text language (parser / decompiler) lives
// outside this repository.
//
// Example file:
//   [
//     {"op": "CALL_METHOD", "address": "account_sim1...", "function": "withdraw",
//      "args": [{"address": "resource_sim1..."}, {"decimal": "10"}]},
//     {"op": "TAKE_ALL_FROM_WORKTOP", "resource": "resource_sim1..."},
//     {"op": "CALL_METHOD", "address": "account_sim1...", "function": "deposit",
//      "args": [{"bucket": 0}]}
//   ]
// ──────────────────────────────────────────────────────────────────────────────

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"meridian-network/core"
)

type manifestJSONArg struct {
	Address    *string          `json:"address,omitempty"`
	Decimal    *string          `json:"decimal,omitempty"`
	String     *string          `json:"string,omitempty"`
	U64        *uint64          `json:"u64,omitempty"`
	Bool       *bool            `json:"bool,omitempty"`
	Bucket     *uint32          `json:"bucket,omitempty"`
	Proof      *uint32          `json:"proof,omitempty"`
	Expression *string          `json:"expression,omitempty"`
	Bytes      *string          `json:"bytes,omitempty"` // hex
	Enum       *manifestEnumArg `json:"enum,omitempty"`
}

type manifestEnumArg struct {
	Discriminator uint8             `json:"discriminator"`
	Fields        []manifestJSONArg `json:"fields"`
}

type manifestJSONInstruction struct {
	Op        string            `json:"op"`
	Resource  string            `json:"resource,omitempty"`
	Amount    string            `json:"amount,omitempty"`
	IDs       []string          `json:"ids,omitempty"`
	Bucket    uint32            `json:"bucket,omitempty"`
	Proof     uint32            `json:"proof,omitempty"`
	Package   string            `json:"package,omitempty"`
	Blueprint string            `json:"blueprint,omitempty"`
	Function  string            `json:"function,omitempty"`
	Address   string            `json:"address,omitempty"`
	Vault     string            `json:"vault,omitempty"`
	Args      []manifestJSONArg `json:"args,omitempty"`
}

func (a manifestJSONArg) toManifestArg() (core.ManifestArg, error) {
	switch {
	case a.Bucket != nil:
		return core.ArgBucket(*a.Bucket), nil
	case a.Proof != nil:
		return core.ArgProof(*a.Proof), nil
	case a.Expression != nil:
		switch *a.Expression {
		case "ENTIRE_WORKTOP":
			return core.ArgExpression(core.ExprEntireWorktop), nil
		case "ENTIRE_AUTH_ZONE":
			return core.ArgExpression(core.ExprEntireAuthZone), nil
		default:
			return core.ManifestArg{}, fmt.Errorf("unknown expression %q", *a.Expression)
		}
	default:
		v, err := a.toValue()
		if err != nil {
			return core.ManifestArg{}, err
		}
		return core.ArgLiteral(v), nil
	}
}

func (a manifestJSONArg) toValue() (core.Value, error) {
	switch {
	case a.Address != nil:
		id, err := core.DecodeAddress(*a.Address)
		if err != nil {
			return core.Value{}, err
		}
		return core.VAddress(id), nil
	case a.Decimal != nil:
		d, err := core.ParseDecimal(*a.Decimal)
		if err != nil {
			return core.Value{}, err
		}
		return core.VDecimal(d), nil
	case a.String != nil:
		return core.VString(*a.String), nil
	case a.U64 != nil:
		return core.VU64(*a.U64), nil
	case a.Bool != nil:
		return core.VBool(*a.Bool), nil
	case a.Bytes != nil:
		raw, err := hex.DecodeString(*a.Bytes)
		if err != nil {
			return core.Value{}, err
		}
		return core.VBytes(raw), nil
	case a.Enum != nil:
		fields := make([]core.Value, 0, len(a.Enum.Fields))
		for _, f := range a.Enum.Fields {
			fv, err := f.toValue()
			if err != nil {
				return core.Value{}, err
			}
			fields = append(fields, fv)
		}
		return core.VEnum(a.Enum.Discriminator, fields...), nil
	default:
		return core.Value{}, fmt.Errorf("empty manifest argument")
	}
}

func (ins manifestJSONInstruction) toInstruction() (core.Instruction, error) {
	resource := func() (core.NodeID, error) { return core.DecodeAddress(ins.Resource) }
	amount := func() (core.Decimal, error) { return core.ParseDecimal(ins.Amount) }
	ids := func() (core.NonFungibleIDSet, error) {
		var set core.NonFungibleIDSet
		for _, s := range ins.IDs {
			id, err := core.ParseNonFungibleLocalID(s)
			if err != nil {
				return set, err
			}
			set.Insert(id)
		}
		return set, nil
	}
	args := func() ([]core.ManifestArg, error) {
		out := make([]core.ManifestArg, 0, len(ins.Args))
		for _, a := range ins.Args {
			arg, err := a.toManifestArg()
			if err != nil {
				return nil, err
			}
			out = append(out, arg)
		}
		return out, nil
	}

	switch ins.Op {
	case "TAKE_ALL_FROM_WORKTOP":
		r, err := resource()
		if err != nil {
			return core.Instruction{}, err
		}
		return core.TakeAllFromWorktop(r), nil
	case "TAKE_FROM_WORKTOP":
		r, err := resource()
		if err != nil {
			return core.Instruction{}, err
		}
		amt, err := amount()
		if err != nil {
			return core.Instruction{}, err
		}
		return core.TakeFromWorktop(r, amt), nil
	case "TAKE_NON_FUNGIBLES_FROM_WORKTOP":
		r, err := resource()
		if err != nil {
			return core.Instruction{}, err
		}
		set, err := ids()
		if err != nil {
			return core.Instruction{}, err
		}
		return core.TakeNonFungiblesFromWorktop(r, set), nil
	case "RETURN_TO_WORKTOP":
		return core.ReturnToWorktop(ins.Bucket), nil
	case "ASSERT_WORKTOP_CONTAINS_ANY":
		r, err := resource()
		if err != nil {
			return core.Instruction{}, err
		}
		return core.AssertWorktopContainsAny(r), nil
	case "ASSERT_WORKTOP_CONTAINS":
		r, err := resource()
		if err != nil {
			return core.Instruction{}, err
		}
		amt, err := amount()
		if err != nil {
			return core.Instruction{}, err
		}
		return core.AssertWorktopContains(r, amt), nil
	case "POP_FROM_AUTH_ZONE":
		return core.PopFromAuthZone(), nil
	case "PUSH_TO_AUTH_ZONE":
		return core.PushToAuthZone(ins.Proof), nil
	case "DROP_AUTH_ZONE_PROOFS":
		return core.DropAuthZoneProofs(), nil
	case "CREATE_PROOF_FROM_AUTH_ZONE_OF_AMOUNT":
		r, err := resource()
		if err != nil {
			return core.Instruction{}, err
		}
		amt, err := amount()
		if err != nil {
			return core.Instruction{}, err
		}
		return core.CreateProofFromAuthZoneOfAmount(r, amt), nil
	case "CREATE_PROOF_FROM_BUCKET_OF_ALL":
		return core.CreateProofFromBucketOfAll(ins.Bucket), nil
	case "CLONE_PROOF":
		return core.CloneProof(ins.Proof), nil
	case "DROP_PROOF":
		return core.DropProof(ins.Proof), nil
	case "DROP_ALL_PROOFS":
		return core.DropAllProofs(), nil
	case "BURN_RESOURCE":
		return core.BurnResource(ins.Bucket), nil
	case "CALL_FUNCTION":
		pkg, err := core.DecodeAddress(ins.Package)
		if err != nil {
			return core.Instruction{}, err
		}
		a, err := args()
		if err != nil {
			return core.Instruction{}, err
		}
		return core.CallFunction(pkg, ins.Blueprint, ins.Function, a...), nil
	case "CALL_METHOD":
		addr, err := core.DecodeAddress(ins.Address)
		if err != nil {
			return core.Instruction{}, err
		}
		a, err := args()
		if err != nil {
			return core.Instruction{}, err
		}
		return core.CallMethod(addr, ins.Function, a...), nil
	case "CALL_DIRECT_VAULT_METHOD":
		vault, err := core.ParseNodeIDHex(ins.Vault)
		if err != nil {
			return core.Instruction{}, err
		}
		a, err := args()
		if err != nil {
			return core.Instruction{}, err
		}
		return core.CallDirectVaultMethod(vault, ins.Function, a...), nil
	default:
		return core.Instruction{}, fmt.Errorf("unknown op %q", ins.Op)
	}
}

var manifestRunCmd = &cobra.Command{
	Use:   "run [manifest.json]",
	Short: "execute a manifest file against the local state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var jsonInstructions []manifestJSONInstruction
		if err := json.Unmarshal(raw, &jsonInstructions); err != nil {
			return fmt.Errorf("decode manifest: %w", err)
		}
		instructions := make([]core.Instruction, 0, len(jsonInstructions))
		for i, ji := range jsonInstructions {
			ins, err := ji.toInstruction()
			if err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
			instructions = append(instructions, ins)
		}

		signers, _ := cmd.Flags().GetStringArray("signer")
		nonce, _ := cmd.Flags().GetUint32("nonce")
		env := &core.TransactionEnvelope{
			NetworkID:         network.ID,
			EndEpochExclusive: ^uint64(0),
			Nonce:             nonce,
			Instructions:      instructions,
		}
		for _, s := range signers {
			key, err := hex.DecodeString(s)
			if err != nil {
				return fmt.Errorf("signer key: %w", err)
			}
			env.SignerPublicKeys = append(env.SignerPublicKeys, key)
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

func manifestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "manifest", PersistentPreRunE: initMiddleware}
	manifestRunCmd.Flags().StringArray("signer", nil, "signer public key (hex), repeatable")
	manifestRunCmd.Flags().Uint32("nonce", 0, "intent nonce")
	cmd.AddCommand(manifestRunCmd)
	return cmd
}
