package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lesson-forge-api/internal/application/guardrail/registry"
	"lesson-forge-api/internal/config"
	"lesson-forge-api/internal/wire"
	"lesson-forge-api/pkg/logger"
)

var seedForce bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Publish rule set files to postgres as new versions",
	Long: `Publishes every rule set in --dir. Keys that already have a published version are
skipped unless --force is given, in which case the file becomes the next version.`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().BoolVar(&seedForce, "force", false, "publish a new version even when the key already exists")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Init(cfg.Observability.Logging.Level, "text")

	rulesets, err := registry.ReadRuleSets(os.DirFS(ruleDir), ".")
	if err != nil {
		return err
	}

	admin, cleanup, err := wire.InitializeRuleAdmin(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize postgres: %w", err)
	}
	defer cleanup()

	var cached *registry.CachedSource
	if admin.Cache != nil {
		cached = registry.NewCachedSource(registry.NewRepositorySource(admin.RuleSetRepo), admin.Cache, cfg.Guardrail.CacheTTL)
	}

	out := cmd.OutOrStdout()
	published := 0
	for _, rs := range rulesets {
		latest, err := admin.RuleSetRepo.GetLatestVersionNo(ctx, rs.Category, rs.Key)
		if err != nil {
			return err
		}
		if latest > 0 && !seedForce {
			fmt.Fprintf(out, "skip %s:%s (latest @%d)\n", rs.Category, rs.Key, latest)
			continue
		}

		next, err := registry.Publish(ctx, admin.RuleSetRepo, rs)
		if err != nil {
			return fmt.Errorf("failed to publish %s:%s: %w", rs.Category, rs.Key, err)
		}
		published++
		fmt.Fprintf(out, "published %s:%s@%d\n", next.Category, next.Key, next.Version)

		if cached != nil {
			if err := cached.Invalidate(ctx, next.Category, next.Key); err != nil {
				logger.Warn(ctx, "failed to invalidate rule cache", "key", next.Key, "error", err.Error())
			}
		}
	}

	fmt.Fprintf(out, "%d rule set(s) published\n", published)
	return nil
}
