package cli

// ──────────────────────────────────────────────────────────────────────────────
// Epoch sub-commands (dev networks)
//
//   epoch get       - print the committed epoch
//   epoch set <n>   - force the epoch; gated on the set_epoch role, which
//                     dev-mode genesis leaves open
// ──────────────────────────────────────────────────────────────────────────────

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"meridian-network/core"
)

var epochGetCmd = &cobra.Command{
	Use:   "get",
	Short: "print the current epoch",
	RunE: func(cmd *cobra.Command, args []string) error {
		epoch, ok := core.EpochFromStore(engine.Store())
		if !ok {
			return fmt.Errorf("store is not bootstrapped")
		}
		fmt.Println(epoch)
		return nil
	},
}

var epochSetCmd = &cobra.Command{
	Use:   "set [epoch]",
	Short: "force the current epoch (dev only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		epoch, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return err
		}
		env := &core.TransactionEnvelope{
			NetworkID:         network.ID,
			EndEpochExclusive: ^uint64(0),
			Instructions: []core.Instruction{
				core.CallMethod(core.ConsensusManagerAddress, "set_epoch",
					core.ArgLiteral(core.VU64(epoch))),
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

func epochCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "epoch", PersistentPreRunE: initMiddleware}
	cmd.AddCommand(epochGetCmd, epochSetCmd)
	return cmd
}
