package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache management commands",
	Long: `Commands for managing the persistent caches.

Image features (embeddings and hashes) are cached in PostgreSQL when
DATABASE_URL is set. Extracted text is cached in Redis when REDIS_ADDR is set,
otherwise in PostgreSQL.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the number of cached entries",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached entries",
	Long: `Remove cached entries. Both caches are cleared unless --features or
--texts selects one of them.`,
	Args: cobra.NoArgs,
	RunE: runCacheClear,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	cacheClearCmd.Flags().Bool("features", false, "Clear only the feature cache")
	cacheClearCmd.Flags().Bool("texts", false, "Clear only the text cache")
}

var errNoPersistentCache = errors.New("no persistent cache configured (set DATABASE_URL or REDIS_ADDR)")

func openPersistentStores(ctx context.Context) (*stores, error) {
	cfg := config.Load()
	if cfg.Database.URL == "" && cfg.Redis.Addr == "" {
		return nil, errNoPersistentCache
	}
	return openStores(ctx, cfg)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, err := openPersistentStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	featureCount, err := st.features.CountFeatures(ctx)
	if err != nil {
		return fmt.Errorf("failed to count features: %w", err)
	}
	textCount, err := st.texts.CountTexts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count texts: %w", err)
	}

	fmt.Printf("Cached features: %d\n", featureCount)
	fmt.Printf("Cached texts:    %d\n", textCount)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	onlyFeatures := mustGetBool(cmd, "features")
	onlyTexts := mustGetBool(cmd, "texts")
	clearFeatures := onlyFeatures || !onlyTexts
	clearTexts := onlyTexts || !onlyFeatures

	ctx := context.Background()
	st, err := openPersistentStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if clearFeatures {
		n, err := st.features.ClearFeatures(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear features: %w", err)
		}
		fmt.Printf("Removed %d cached features\n", n)
	}
	if clearTexts {
		n, err := st.texts.ClearTexts(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear texts: %w", err)
		}
		fmt.Printf("Removed %d cached texts\n", n)
	}
	return nil
}
