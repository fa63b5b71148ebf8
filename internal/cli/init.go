package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fmlearn/internal/paths"
)

func newInitCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration and storage",
		Long:  "Create the configuration directory and a default config.yaml, then create the metric store schema.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			configDir, err := paths.ResolveConfigDir(flags.configDir)
			if err != nil {
				return sysError("resolve config dir: %w", err)
			}
			if err := os.MkdirAll(configDir, 0o755); err != nil {
				return sysError("create config directory: %w", err)
			}
			written, err := writeConfigIfMissing(configDir, flags.dataDir)
			if err != nil {
				return sysError("write config: %w", err)
			}

			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			out := cmd.OutOrStdout()
			if flags.jsonMode {
				return printJSON(out, map[string]any{
					"config_dir":     configDir,
					"config_written": written,
					"backend":        a.settings.Store.Backend,
					"data_dir":       a.settings.Store.DataDir,
				})
			}
			fmt.Fprintf(out, "config: %s\n", configDir)
			fmt.Fprintf(out, "store:  %s (%s)\n", a.settings.Store.Backend, a.settings.Store.DataDir)
			fmt.Fprintln(out, "fmlearn initialized successfully")
			return nil
		},
	}
}
