package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/spf13/cobra"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and the backends it would use",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(os.Stdout, config.Load())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// printVersion writes build metadata followed by the embedding server, OCR
// engine and caches selected by the environment.
func printVersion(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "photo-dedup %s\n", Version)
	fmt.Fprintf(w, "  Commit:    %s\n", CommitSHA)
	fmt.Fprintf(w, "  Built:     %s\n", BuildDate)

	embedding := cfg.Embedding.URL
	if embedding == "" {
		embedding = "http://localhost:8000"
	}
	if cfg.Embedding.Model != "" {
		embedding += " (" + cfg.Embedding.Model + ")"
	}
	provider := cfg.OCR.Provider
	if provider == "" {
		provider = "tesseract"
	}
	featureCache, textCache := "memory", "memory"
	if cfg.Database.URL != "" {
		featureCache, textCache = "postgres", "postgres"
	}
	if cfg.Redis.Addr != "" {
		textCache = "redis"
	}

	fmt.Fprintf(w, "  Embedding: %s\n", embedding)
	fmt.Fprintf(w, "  OCR:       %s (%s)\n", provider, cfg.OCR.Language)
	fmt.Fprintf(w, "  Caches:    features=%s texts=%s\n", featureCache, textCache)
}
