package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fmlearn/internal/recommender"
	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

func newRetrieveCmd(flags *rootFlags) *cobra.Command {
	var best string
	cmd := &cobra.Command{
		Use:   "retrieve <dataset-hash>",
		Short: "List stored records for a dataset",
		Long: `List every stored record for a dataset, or with --best min|max only the
record with the lowest or highest metric value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			var order types.Order
			if best != "" {
				if order, err = types.ParseOrder(best); err != nil {
					return userError("--best: %w", err)
				}
			}

			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			var res *recommender.Result
			if best == "" {
				res, err = a.svc.RetrieveAll(cmd.Context(), args[0])
			} else {
				res, err = a.svc.RetrieveBest(cmd.Context(), args[0], order)
			}
			if err != nil {
				if recommender.IsMalformed(err) {
					return userError("%w", err)
				}
				return sysError("%w", err)
			}

			out := cmd.OutOrStdout()
			if res.Status != recommender.StatusOK {
				return printSoft(out, flags.jsonMode, res.Status.Message())
			}
			return printRecords(out, flags.jsonMode, res.Records)
		},
	}
	cmd.Flags().StringVar(&best, "best", "", "return only the min or max record")
	return cmd
}
