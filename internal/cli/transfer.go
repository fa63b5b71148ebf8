package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fmlearn/internal/jsonl"
)

func newExportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.jsonl>",
		Short: "Write every stored record to a JSONL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			n, err := jsonl.Export(cmd.Context(), a.repo, args[0])
			if err != nil {
				return sysError("export: %w", err)
			}
			out := cmd.OutOrStdout()
			if flags.jsonMode {
				return printJSON(out, map[string]any{"path": args[0], "exported": n})
			}
			fmt.Fprintf(out, "exported %d records to %s\n", n, args[0])
			return nil
		},
	}
}

func newImportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Load records from a JSONL file, keeping their ids",
		Long: `Load records exported by "fmlearn export". Records whose id already exists
are skipped, and malformed lines are counted and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			res, err := jsonl.Import(cmd.Context(), a.repo, args[0])
			if err != nil {
				return sysError("import: %w", err)
			}
			out := cmd.OutOrStdout()
			if flags.jsonMode {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "read %d, loaded %d, skipped %d malformed lines\n", res.Read, res.Loaded, res.Skipped)
			return nil
		},
	}
}
