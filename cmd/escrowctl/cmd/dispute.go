package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/conduit-ucpi/webapp-sub000/pkg/escrow"
)

func newDisputeCmd(flags *globalFlags) *cobra.Command {
	var req escrow.DisputeRequest

	cmd := &cobra.Command{
		Use:   "dispute <contract-address>",
		Short: "Raise a dispute on an escrow contract",
		Long: `Raise a dispute on chain, wait for it to confirm, then record the reason
and requested refund with the backend. A failed backend update is reported
but does not undo the on-chain dispute.

Examples:
  escrowctl dispute 0xContract --contract-id 42 --reason "Not delivered" --refund-percent 100`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ContractAddress = args[0]
			if err := req.Validate(); err != nil {
				return err
			}

			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if _, err := a.connect(ctx); err != nil {
				return err
			}
			waiter, network, err := a.waiter(ctx)
			if err != nil {
				return err
			}
			ops, err := a.escrowOps()
			if err != nil {
				return err
			}

			result, err := escrow.NewDisputes(a.provider, ops, waiter, a.logger).Raise(ctx, req)
			if err != nil {
				return err
			}
			return render(a.out, flags.output, result, func(w io.Writer) {
				success(w, "Dispute raised")
				field(w, "tx", network.TxURLOrHash(result.TxHash))
				if !result.Notified && req.ContractID != "" {
					warn(w, "Backend was not updated; the dispute is still recorded on chain")
				}
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.ContractID, "contract-id", "", "backend contract id to update")
	f.StringVar(&req.Reason, "reason", "", "why the dispute is raised")
	f.IntVar(&req.RefundPercent, "refund-percent", 100, "refund requested, 0-100")
	return cmd
}
