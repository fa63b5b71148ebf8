package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fmlearn/internal/server"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listen string
	var warm bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			cfg := a.settings.Server
			if listen != "" {
				cfg.Addr = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if warm {
				if terr := a.svc.Train(ctx); terr != nil {
					a.logger.Warn().Err(terr).Msg("warm start training skipped")
				}
			}

			if err := server.New(a.svc, cfg, a.logger).Run(ctx); err != nil {
				return sysError("serve: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config listen)")
	cmd.Flags().BoolVar(&warm, "warm", false, "train on stored records before accepting requests")
	return cmd
}
