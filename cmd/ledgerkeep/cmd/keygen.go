package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgerkeep/ledgerkeep/internal/util"
	"github.com/ledgerkeep/ledgerkeep/vault"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a random master secret",
	Long: `Prints a new hex-encoded master secret suitable for LEDGERKEEP_MASTER_SECRET.

Changing the master secret of a running deployment makes every stored
credential unreadable. Generate one per environment and keep it out of
source control.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := newMasterSecret()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), secret)
		return nil
	},
}

func newMasterSecret() (string, error) {
	b, err := util.RandomBytes(vault.MinMasterSecretLength)
	if err != nil {
		return "", fmt.Errorf("generating master secret: %w", err)
	}
	defer util.WipeBytes(b)
	return util.HexEncode(b), nil
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
