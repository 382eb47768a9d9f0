package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/prior"
)

var priorsLoadFile string

var priorsCmd = &cobra.Command{
	Use:   "priors",
	Short: "Manage the stored priors snapshot",
}

var priorsMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the priors schema and table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		priorStore, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := priorStore.Migrate(ctx); err != nil {
			return err
		}
		zap.L().Info("priors schema migrated")
		return nil
	},
}

var priorsLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Replace the stored priors with a YAML snapshot",
	Long: `Load a YAML snapshot of pre-aggregated prior rows, replacing the
current contents of the priors table. Malformed rows are dropped and
counted; the load is transactional.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rows, err := prior.LoadFile(priorsLoadFile)
		if err != nil {
			return err
		}
		priors, dropped := prior.NormalizeAll(rows)

		priorStore, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		n, err := priorStore.ReplaceAll(ctx, priors)
		if err != nil {
			return err
		}

		zap.L().Info("priors snapshot loaded",
			zap.String("file", priorsLoadFile),
			zap.Int64("loaded", n),
			zap.Int("dropped", dropped))
		fmt.Printf("loaded %d priors (%d malformed rows dropped)\n", n, dropped)
		return nil
	},
}

var priorsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored prior counts per fallback level",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		priorStore, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		ok, err := priorStore.Supported(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("priors table does not exist (run: priors migrate)")
			return nil
		}

		stats, err := priorStore.Stats(ctx)
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			fmt.Println("priors table is empty")
			return nil
		}

		fmt.Printf("%-16s %10s %12s\n", "level", "rows", "samples")
		for _, st := range stats {
			fmt.Printf("%-16s %10d %12d\n", st.Source, st.Rows, st.Samples)
		}
		return nil
	},
}

func init() {
	priorsLoadCmd.Flags().StringVar(&priorsLoadFile, "file", "", "YAML priors snapshot path")
	_ = priorsLoadCmd.MarkFlagRequired("file")

	priorsCmd.AddCommand(priorsMigrateCmd)
	priorsCmd.AddCommand(priorsLoadCmd)
	priorsCmd.AddCommand(priorsStatusCmd)
	rootCmd.AddCommand(priorsCmd)
}
