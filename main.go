// NeonBoard exporter: Tautulli, qBittorrent and host metrics for Prometheus.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/vesaa/neonboard/internal/collector"
	"github.com/vesaa/neonboard/internal/config"
	"github.com/vesaa/neonboard/internal/metrics"
	"github.com/vesaa/neonboard/internal/server"
)

const version = "v0.1.0"

func main() {
	var envFile string

	root := &cobra.Command{
		Use:   "neonboard",
		Short: "NeonBoard exporter: Tautulli, qBittorrent and host metrics for Prometheus",
		Long: `NeonBoard collects Tautulli stream activity, the qBittorrent download disk
and local system statistics on every scrape and serves them in the Prometheus
text exposition format.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before reading configuration")

	// ── serve subcommand ──────────────────────────────────────────────────────
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /metrics (default port 9814)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if port, _ := cmd.Flags().GetInt("port"); port != 0 {
				cfg.Port = port
			}

			log := newLogger(cfg)
			scraper, err := buildScraper(cfg, log)
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			srv := &http.Server{
				Addr:              cfg.Addr(),
				Handler:           server.NewEngine(scraper, log),
				ReadHeaderTimeout: 10 * time.Second,
			}

			log.Info().
				Str("addr", cfg.Addr()).
				Str("version", version).
				Str("tautulli", cfg.TautulliURL).
				Str("qbittorrent", cfg.QBitURL).
				Msg("starting NeonBoard exporter")

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-quit:
				log.Info().Msg("shutting down")
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}
	serveCmd.Flags().Int("port", 0, "Listen port (overrides exporter_port)")

	// ── collect subcommand ────────────────────────────────────────────────────
	collectCmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one collection pass and print the exposition to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			log := newLogger(cfg)
			scraper, err := buildScraper(cfg, log)
			if err != nil {
				return err
			}
			body, err := scraper.Scrape(cmd.Context())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}

	// ── version subcommand ────────────────────────────────────────────────────
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print NeonBoard version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "NeonBoard exporter %s\n", version)
		},
	}

	root.AddCommand(serveCmd, collectCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildScraper constructs the registry and every collector from cfg.
func buildScraper(cfg *config.Config, log zerolog.Logger) (*server.Scraper, error) {
	reg, err := metrics.NewRegistry(metrics.DefaultInstruments(), cfg.StalePolicy)
	if err != nil {
		return nil, fmt.Errorf("building registry: %w", err)
	}

	if cfg.TautulliAPIKey == "" {
		log.Warn().Msg("TAUTULLI_API_KEY not set; Tautulli metrics will read 0")
	}
	if cfg.QBitURL == "" {
		log.Warn().Str("fallback", cfg.MountFallback).Msg("QBIT_URL not set; using fallback download mount")
	}

	sessions := collector.NewSessionCollector(cfg.TautulliURL, cfg.TautulliAPIKey, cfg.UpstreamTimeout)
	mounts := collector.NewMountResolver(collector.ResolverOptions{
		BaseURL:    cfg.QBitURL,
		Username:   cfg.QBitUser,
		Password:   cfg.QBitPass,
		Candidates: cfg.MountCandidates,
		Fallback:   cfg.MountFallback,
		Timeout:    cfg.UpstreamTimeout,
		CacheTTL:   cfg.MountCacheTTL,
	})
	system := collector.NewSystemCollector(collector.NewHostPlatform(), collector.SystemOptions{
		RootPath:  cfg.RootPath,
		CPUWindow: cfg.CPUSampleWindow,
		TopN:      cfg.TopProcesses,
	})
	return server.NewScraper(sessions, mounts, system, reg, log), nil
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if cfg.LogFormat == "json" {
		base = zerolog.New(os.Stderr)
	} else {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return base.Level(level).With().Timestamp().Logger()
}
