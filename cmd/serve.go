package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the Photo Dedup HTTP API server.

Grouping runs are started with POST /api/v1/runs and execute in the
background. Their progress is streamed as server-sent events from
GET /api/v1/runs/{id}/events. POST /api/v1/match compares one image
against a folder synchronously.

Set IMAGE_ROOT to restrict the folders the API may read.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("preset-file", "", "YAML file with additional presets")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	presets, err := config.LoadPresets(mustGetString(cmd, "preset-file"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, st, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, port, host, web.Backends{
		Runner:   p,
		Presets:  presets,
		Features: st.features,
		Texts:    st.texts,
	}, slog.Default())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Photo Dedup API on http://%s:%d\n", host, port)
	if cfg.Web.ImageRoot != "" {
		fmt.Printf("Serving folders below %s\n", cfg.Web.ImageRoot)
	}
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
