package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/config"
	"github.com/sells-group/pricing-cli/internal/db"
	"github.com/sells-group/pricing-cli/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pricing-cli",
	Short: "Price-band estimation for prospective manufacturing jobs",
	Long:  "Estimates low/median/high price quantiles for a prospective job from pre-aggregated historical priors, with hierarchical cohort fallback and small-sample shrinkage.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// openStore connects the configured Postgres backend and wraps it in a
// PriorStore. The returned close func releases the pool.
func openStore(ctx context.Context) (*store.PriorStore, func(), error) {
	pool, err := openPool(ctx)
	if err != nil {
		return nil, nil, err
	}
	return store.New(pool), pool.Close, nil
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, fmt.Errorf("store.database_url is not configured (set PRICING_STORE_DATABASE_URL or config.yaml)")
	}
	return db.Connect(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
