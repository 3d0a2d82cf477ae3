package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/conduit-ucpi/webapp-sub000/pkg/unifiedauth"
)

func newConnectCmd(flags *globalFlags) *cobra.Command {
	var signIn bool

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect a wallet and sign in to the backend",
		Long: `Connect the configured wallet. With --sign-in (the default) a backend
session is established right away, reusing a cached auth token for the
address when one is less than 24 hours old.

Examples:
  escrowctl connect
  escrowctl connect --wallet relay
  escrowctl connect --sign-in=false   # only open the wallet session`,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			if signIn {
				if _, err := a.provider.Authenticate(ctx); err != nil {
					return err
				}
				state = a.provider.State()
			}
			return render(a.out, flags.output, state, func(w io.Writer) {
				success(w, "Connected with %s", state.ProviderName)
				printUser(w, state)
			})
		},
	}

	cmd.Flags().BoolVar(&signIn, "sign-in", true, "establish a backend session after connecting")
	return cmd
}

func printUser(w io.Writer, state unifiedauth.AuthState) {
	if state.User == nil {
		return
	}
	field(w, "address", state.User.WalletAddress)
	field(w, "user id", state.User.UserID)
	field(w, "email", state.User.Email)
	field(w, "user type", state.User.UserType)
	if state.Token != "" {
		field(w, "session", "active")
	} else {
		field(w, "session", "signs in on first request")
	}
}
