package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conduit-ucpi/webapp-sub000/pkg/monitoring"
)

func newHealthCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check configuration, backend, RPC and Kafka reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			hc := a.healthChecker()
			status := hc.CheckHealth()
			if err := render(a.out, flags.output, status, func(w io.Writer) {
				for _, name := range hc.Names() {
					res := status.Checks[name]
					var mark string
					switch res.Status {
					case monitoring.StatusHealthy:
						mark = okColor.Sprint("✓")
					case monitoring.StatusDegraded:
						mark = warnColor.Sprint("!")
					default:
						mark = failColor.Sprint("✗")
					}
					fmt.Fprintf(w, "%s %-8s %s\n", mark, name, res.Message)
				}
			}); err != nil {
				return err
			}
			if status.Status == monitoring.StatusUnhealthy {
				return fmt.Errorf("health check failed")
			}
			return nil
		},
	}
}
