package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ledgerkeep/ledgerkeep/internal/config"
)

var cfg = func() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	return c
}()

var rootCmd = &cobra.Command{
	Use:   "ledgerkeep",
	Short: "ledgerkeep stores third-party API credentials encrypted per user",
	Long: `ledgerkeep is the credential vault behind the net worth tracker.
It keeps bank aggregator and market data API keys encrypted at rest under
a key derived for each user from a server-held master secret.

Every flag can also be set through a LEDGERKEEP_* environment variable,
for example LEDGERKEEP_MASTER_SECRET for --master-secret.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.ApplyEnv(cmd.Flags(), os.LookupEnv)
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cfg.BindFlags(rootCmd.PersistentFlags())
}
