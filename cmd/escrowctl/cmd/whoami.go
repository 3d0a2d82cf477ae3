package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/conduit-ucpi/webapp-sub000/pkg/session"
)

const identityPath = "/api/auth/identity"

func newWhoamiCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the backend identity for the connected wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if _, err := a.connect(ctx); err != nil {
				return err
			}

			resp, err := a.provider.AuthenticatedFetch(ctx, http.MethodGet, identityPath, nil, nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read identity: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				msg := session.ParseErrorMessage(body)
				if msg == "" {
					msg = resp.Status
				}
				return fmt.Errorf("identity lookup failed: %s", msg)
			}

			var identity session.Identity
			if err := json.Unmarshal(body, &identity); err != nil {
				return fmt.Errorf("decode identity: %w", err)
			}
			return render(a.out, flags.output, identity, func(w io.Writer) {
				success(w, "Signed in")
				field(w, "address", identity.WalletAddress)
				field(w, "user id", identity.UserID)
				field(w, "email", identity.Email)
				field(w, "user type", identity.UserType)
				field(w, "name", identity.DisplayName)
			})
		},
	}
}
