package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-ucpi/webapp-sub000/pkg/auth"
)

func newLogoutCmd(flags *globalFlags) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the backend session and disconnect the wallet",
		Long: `Disconnect the wallet, end the backend session and drop the cached auth
token. With --address the wallet is not opened; the cached token for that
address is used to end its session and then removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if address == "" {
				if _, err := a.connect(ctx); err != nil {
					return err
				}
				a.provider.Disconnect(ctx)
				success(a.out, "Logged out")
				return nil
			}

			normalized, err := auth.NormalizeEthAddress(address)
			if err != nil {
				return err
			}
			if token, ok := a.tokens.Lookup(ctx, normalized); ok {
				a.backend.SetToken(token)
				if err := a.backend.Logout(ctx); err != nil {
					warn(cmd.ErrOrStderr(), "Backend logout failed: %v", err)
				}
			}
			if err := a.tokens.Forget(ctx, normalized); err != nil {
				return fmt.Errorf("forget cached token: %w", err)
			}
			success(a.out, "Logged out %s", normalized)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "log out this address without opening the wallet")
	return cmd
}
