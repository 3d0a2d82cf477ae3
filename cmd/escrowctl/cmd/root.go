package cmd

import (
	"github.com/spf13/cobra"
)

type globalFlags struct {
	wallet      string
	output      string
	tokenCache  string
	metricsAddr string
	verbose     bool
}

// NewRootCmd returns the root command for escrowctl.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "escrowctl",
		Short:         "Connect a wallet and fund escrow contracts",
		Long:          "escrowctl connects a wallet, keeps a backend session alive and runs the escrow funding and dispute flows.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.wallet, "wallet", "", "wallet to use: embedded|relay (default $ESCROW_WALLET or embedded)")
	pf.StringVar(&flags.output, "output", "text", "output format: text|json|yaml")
	pf.StringVar(&flags.tokenCache, "token-cache", "", "auth token store: memory|sqlite://path|postgres://...|redis://... (default $ESCROW_TOKEN_CACHE)")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address while the command runs")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(newConnectCmd(flags))
	rootCmd.AddCommand(newWhoamiCmd(flags))
	rootCmd.AddCommand(newFundCmd(flags))
	rootCmd.AddCommand(newDisputeCmd(flags))
	rootCmd.AddCommand(newLogoutCmd(flags))
	rootCmd.AddCommand(newNetworksCmd(flags))
	rootCmd.AddCommand(newHealthCmd(flags))
	rootCmd.AddCommand(newVersionCmd(flags))

	return rootCmd
}
