package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/estimate"
	"github.com/sells-group/pricing-cli/internal/prior"
)

var (
	estimateTechnology string
	estimateMaterial   string
	estimateParts      int
	estimatePriorsFile string
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate a price band for one prospective job",
	Long: `Estimate low/median/high price quantiles for a prospective job.

By default priors are looked up in the configured Postgres store. With
--priors-file the estimate runs offline against a YAML snapshot instead.

Examples:
  # Against the configured store
  estimate --technology CNC --material "Aluminum 6061" --parts 2

  # Offline against a snapshot file
  estimate --technology CNC --parts 12 --priors-file priors.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var est *estimate.Estimate

		if estimatePriorsFile != "" {
			rows, err := prior.LoadFile(estimatePriorsFile)
			if err != nil {
				return err
			}
			priors, dropped := prior.NormalizeAll(rows)
			if dropped > 0 {
				zap.L().Warn("dropped malformed prior rows",
					zap.String("file", estimatePriorsFile),
					zap.Int("dropped", dropped))
			}
			idx := estimate.BuildIndex(priors, zap.L())
			est = estimate.FromIndex(idx, estimateTechnology, estimateMaterial, estimateParts)
		} else {
			priorStore, closeStore, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			est, err = estimate.New(priorStore, zap.L()).Estimate(ctx, estimateTechnology, estimateMaterial, estimateParts)
			if err != nil {
				return err
			}
		}

		if est == nil {
			fmt.Println("no estimate available")
			return nil
		}

		fmt.Println(formatEstimate(est))
		return nil
	},
}

// formatEstimate renders a band for terminal output. Presentation only;
// the library hands back raw quantiles.
func formatEstimate(est *estimate.Estimate) string {
	return fmt.Sprintf("p10 $%.2f  p50 $%.2f  p90 $%.2f  (confidence: %s, source: %s)",
		est.P10, est.P50, est.P90, est.Confidence, est.Source)
}

func init() {
	f := estimateCmd.Flags()
	f.StringVar(&estimateTechnology, "technology", "", "manufacturing technology (e.g., CNC)")
	f.StringVar(&estimateMaterial, "material", "", "material (e.g., \"Aluminum 6061\")")
	f.IntVar(&estimateParts, "parts", 0, "part count (0 = unspecified)")
	f.StringVar(&estimatePriorsFile, "priors-file", "", "YAML priors snapshot; estimates offline instead of querying the store")

	rootCmd.AddCommand(estimateCmd)
}
