package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store size, gate state and model status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			h, err := a.svc.Health(cmd.Context())
			if err != nil {
				return sysError("%w", err)
			}
			out := cmd.OutOrStdout()
			if flags.jsonMode {
				return printJSON(out, h)
			}
			fmt.Fprintf(out, "backend:   %s\n", a.settings.Store.Backend)
			fmt.Fprintf(out, "records:   %d\n", h.Records)
			fmt.Fprintf(out, "threshold: %d\n", h.Threshold)
			fmt.Fprintf(out, "gate open: %t\n", h.GateOpen)
			fmt.Fprintf(out, "model:     %s\n", h.Learner.State)
			return nil
		},
	}
}
