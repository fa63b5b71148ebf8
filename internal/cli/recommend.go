package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fmlearn/internal/recommender"
	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

func newRecommendCmd(flags *rootFlags) *cobra.Command {
	var (
		hash       string
		targetType string
		features   []string
	)
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend the best algorithm per metric for a new dataset",
		Long: `Recommend trains on the stored records when the store holds more than
threshold of them, then returns the best stored record per metric type from
the most similar past dataset.`,
		Example: `  fmlearn recommend --hash d41d8 --target-type classification \
    --feature rows=150 --feature classes=3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			req := &types.RecommendationRequest{DatasetHash: hash, TargetType: targetType}
			for _, f := range features {
				name, value, ok := strings.Cut(f, "=")
				if !ok {
					return userError("feature %q: want name=value", f)
				}
				req.MetaFeatures = append(req.MetaFeatures, types.MetaFeature{
					Name:  strings.TrimSpace(name),
					Value: strings.TrimSpace(value),
				})
			}

			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			ctx := cmd.Context()
			h, err := a.svc.Health(ctx)
			if err != nil {
				return sysError("%w", err)
			}
			// A one-shot process has ingested nothing itself, so it trains
			// explicitly once the store holds enough records.
			if h.Records > a.settings.Recommender.Threshold {
				if err := a.svc.Train(ctx); err != nil {
					return sysError("train: %w", err)
				}
			}

			res, err := a.svc.Recommend(ctx, req)
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
	cmd.Flags().StringVar(&hash, "hash", "", "dataset hash of the new dataset")
	cmd.Flags().StringVar(&targetType, "target-type", "", "target type, e.g. classification or regression")
	cmd.Flags().StringArrayVar(&features, "feature", nil, "meta-feature as name=value (repeatable)")
	_ = cmd.MarkFlagRequired("hash")
	_ = cmd.MarkFlagRequired("target-type")
	return cmd
}
