package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conduit-ucpi/webapp-sub000/pkg/version"
)

func newVersionCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.GetInfo()
			return render(cmd.OutOrStdout(), flags.output, info, func(w io.Writer) {
				fmt.Fprintf(w, "escrowctl %s (%s, built %s)\n", info.Version, version.GetShortCommit(), info.BuildDate)
			})
		},
	}
}
