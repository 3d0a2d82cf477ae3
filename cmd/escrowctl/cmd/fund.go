package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
	"github.com/conduit-ucpi/webapp-sub000/pkg/funding"
)

// fundFile is the YAML request format. Amount is in display units.
type fundFile struct {
	Token       string `yaml:"token"`
	Buyer       string `yaml:"buyer"`
	Seller      string `yaml:"seller"`
	Amount      string `yaml:"amount"`
	Expiry      string `yaml:"expiry"`
	Description string `yaml:"description"`
}

func readFundFile(path string) (fundFile, error) {
	var f fundFile
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

// merge lets flags override values from the file.
func (f fundFile) merge(over fundFile) fundFile {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&f.Token, over.Token)
	set(&f.Buyer, over.Buyer)
	set(&f.Seller, over.Seller)
	set(&f.Amount, over.Amount)
	set(&f.Expiry, over.Expiry)
	set(&f.Description, over.Description)
	return f
}

// request builds the funding request, defaulting the token to the
// network's USDC and the buyer to the connected address.
func (f fundFile) request(network chain.Network, buyer string, now time.Time) (funding.Request, error) {
	req := funding.Request{
		TokenAddress: f.Token,
		Buyer:        f.Buyer,
		Seller:       f.Seller,
		Description:  f.Description,
	}
	if req.TokenAddress == "" {
		req.TokenAddress = network.USDCContract
	}
	if req.Buyer == "" {
		req.Buyer = buyer
	}
	if req.Seller == "" {
		return req, fmt.Errorf("seller is required")
	}
	amount, err := toMicroUnits(f.Amount)
	if err != nil {
		return req, err
	}
	req.Amount = amount
	if req.ExpiryTimestamp, err = parseExpiry(f.Expiry, now); err != nil {
		return req, err
	}
	return req, req.Validate()
}

func newFundCmd(flags *globalFlags) *cobra.Command {
	var (
		file string
		in   fundFile
	)

	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Create an escrow contract and deposit into it",
		Long: `Create an escrow contract through the backend, approve the token and
deposit, waiting for each transaction to confirm before the next.

Examples:
  escrowctl fund --seller 0xSeller --amount 25.00 --expiry 720h --description "Logo design"
  escrowctl fund --file request.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := in
			if file != "" {
				fromFile, err := readFundFile(file)
				if err != nil {
					return err
				}
				spec = fromFile.merge(in)
			}

			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			state, err := a.connect(ctx)
			if err != nil {
				return err
			}
			waiter, network, err := a.waiter(ctx)
			if err != nil {
				return err
			}
			req, err := spec.request(network, state.User.WalletAddress, time.Now())
			if err != nil {
				return err
			}
			ops, err := a.escrowOps()
			if err != nil {
				return err
			}

			seq := funding.NewSequencer(a.provider, ops, waiter,
				funding.WithLogger(a.logger),
				funding.WithObserver(a.metrics),
			)
			progress := cmd.ErrOrStderr()
			if flags.output == "text" {
				fmt.Fprintf(progress, "Funding %s USDC to %s on %s\n", fromMicroUnits(req.Amount), req.Seller, network.DisplayName)
			}
			result, err := seq.Fund(ctx, req, func(stage funding.Stage) {
				fmt.Fprintf(progress, "  %s %s\n", stepColor.Sprint("→"), stage)
			})
			if err != nil {
				return err
			}

			return render(a.out, flags.output, result, func(w io.Writer) {
				success(w, "Escrow funded")
				field(w, "contract", result.ContractAddress)
				field(w, "creation tx", network.TxURLOrHash(result.ContractCreationTxHash))
				field(w, "approval tx", network.TxURLOrHash(result.ApprovalTxHash))
				field(w, "deposit tx", network.TxURLOrHash(result.DepositTxHash))
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "YAML request file")
	f.StringVar(&in.Token, "token", "", "token address (default: the network's USDC)")
	f.StringVar(&in.Buyer, "buyer", "", "buyer address (default: the connected wallet)")
	f.StringVar(&in.Seller, "seller", "", "seller address")
	f.StringVar(&in.Amount, "amount", "", "amount in USDC, e.g. 25.00")
	f.StringVar(&in.Expiry, "expiry", "", "expiry as RFC 3339, unix seconds, or a duration from now")
	f.StringVar(&in.Description, "description", "", "contract description")
	return cmd
}
