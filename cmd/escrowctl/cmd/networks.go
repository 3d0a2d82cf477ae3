package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
)

type networkRow struct {
	ChainID  int64  `json:"chainId" yaml:"chainId"`
	Name     string `json:"name" yaml:"name"`
	Display  string `json:"displayName" yaml:"displayName"`
	USDC     string `json:"usdc" yaml:"usdc"`
	RPC      string `json:"rpc" yaml:"rpc"`
	Explorer string `json:"explorer,omitempty" yaml:"explorer,omitempty"`
	Testnet  bool   `json:"testnet" yaml:"testnet"`
}

func newNetworksCmd(flags *globalFlags) *cobra.Command {
	var testnets bool

	cmd := &cobra.Command{
		Use:   "networks",
		Short: "List supported networks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []networkRow
			for _, n := range chain.SortedNetworks(testnets) {
				rows = append(rows, networkRow{
					ChainID:  n.ChainID,
					Name:     n.Name,
					Display:  n.DisplayName,
					USDC:     n.USDCContract,
					RPC:      n.RPCEndpoint(),
					Explorer: n.ExplorerURL,
					Testnet:  n.IsTestnet,
				})
			}
			return render(cmd.OutOrStdout(), flags.output, rows, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "CHAIN ID\tNAME\tUSDC\tRPC")
				for _, r := range rows {
					name := r.Display
					if r.Testnet {
						name += " (testnet)"
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ChainID, name, r.USDC, r.RPC)
				}
				_ = tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&testnets, "testnets", false, "include test networks")
	return cmd
}
