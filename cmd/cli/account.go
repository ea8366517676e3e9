package cli

// ──────────────────────────────────────────────────────────────────────────────
// Account sub-commands
//
//   account new               - generate a key, derive the virtual address
//   account fund <addr> <amt> - draw MRD from the dev faucet
//   account balance <addr> <resource?>
//
// Keys are development keystores only; production signing happens in the
// wallet, outside this repository.
// ──────────────────────────────────────────────────────────────────────────────

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"meridian-network/core"
	"meridian-network/pkg/utils"
)

type keystoreFile struct {
	ID         string `json:"id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	Address    string `json:"address"`
}

func keystoreDir() string {
	return utils.EnvOrDefault("MERIDIAN_KEYSTORE", "keystore")
}

var accountNewCmd = &cobra.Command{
	Use:   "new",
	Short: "generate a key pair and derive its virtual account address",
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return err
		}
		address := core.VirtualAccountID(pub)
		text, err := core.EncodeAddress(address, network.Name)
		if err != nil {
			return err
		}
		ks := keystoreFile{
			ID:         uuid.New().String(),
			PublicKey:  hex.EncodeToString(pub),
			PrivateKey: hex.EncodeToString(priv),
			Address:    text,
		}
		if err := os.MkdirAll(keystoreDir(), 0o700); err != nil {
			return err
		}
		raw, _ := json.MarshalIndent(ks, "", "  ")
		path := filepath.Join(keystoreDir(), ks.ID+".json")
		if err := os.WriteFile(path, raw, 0o600); err != nil {
			return err
		}
		cliLogger.Infof("keystore written to %s", path)
		fmt.Println(text)
		return nil
	},
}

var accountFundCmd = &cobra.Command{
	Use:   "fund [address] [amount]",
	Short: "transfer MRD from the dev faucet into an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := core.DecodeAddress(args[0])
		if err != nil {
			return err
		}
		amount, err := core.ParseDecimal(args[1])
		if err != nil {
			return err
		}
		env := &core.TransactionEnvelope{
			NetworkID:         network.ID,
			EndEpochExclusive: ^uint64(0),
			Instructions: []core.Instruction{
				core.CallMethod(core.FaucetAddress, "withdraw",
					core.ArgLiteral(core.VAddress(core.ResourceMRD)),
					core.ArgLiteral(core.VDecimal(amount))),
				core.TakeAllFromWorktop(core.ResourceMRD),
				core.CallMethod(address, "deposit", core.ArgBucket(0)),
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

var accountBalanceCmd = &cobra.Command{
	Use:   "balance [address] [resource]",
	Short: "read an account balance straight from committed state",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := core.DecodeAddress(args[0])
		if err != nil {
			return err
		}
		resource := core.ResourceMRD
		if len(args) == 2 {
			if resource, err = core.DecodeAddress(args[1]); err != nil {
				return err
			}
		}
		amount, err := core.AccountBalanceFromStore(engine.Store(), address, resource)
		if err != nil {
			return err
		}
		fmt.Println(amount)
		return nil
	},
}

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "account", PersistentPreRunE: initMiddleware}
	cmd.AddCommand(accountNewCmd, accountFundCmd, accountBalanceCmd)
	return cmd
}
