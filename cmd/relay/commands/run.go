package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blikh/discord-translation-relay/internal/config"
	"github.com/blikh/discord-translation-relay/internal/relay"
)

func newRunCommand(v *viper.Viper, version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and start relaying translations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRelay(cmd.Context(), v, version)
		},
	}
	cmd.Flags().String("listen", "", "dashboard listen address (overrides config and PORT)")
	bindFlags(v, cmd.Flags(), map[string]string{"listen": "dashboard.listen"})
	return cmd
}

func runRelay(ctx context.Context, v *viper.Viper, version string) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.ParseLogLevel()}))
	logger.Info("starting discord-translation-relay", "version", version)
	if bi, ok := debug.ReadBuildInfo(); ok {
		var buildAttrs []any
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs", "vcs.revision", "vcs.time", "vcs.modified":
				buildAttrs = append(buildAttrs, s.Key, s.Value)
			}
		}
		if len(buildAttrs) > 0 {
			logger.Info("build info", buildAttrs...)
		}
	}

	startObservability(cfg.ObservabilityHTTP, logger)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := relay.New(cfg, logger).Run(ctx); err != nil {
		logger.Error("relay error", "err", err)
		return err
	}
	return nil
}

func startObservability(obs config.ObservabilityHTTPConfig, logger *slog.Logger) {
	if obs.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	if obs.Pprof {
		// net/http/pprof registers on DefaultServeMux.
		mux.HandleFunc("/debug/pprof/", http.DefaultServeMux.ServeHTTP)
	}
	if obs.Metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	go func() {
		logger.Info("starting observability server", "addr", obs.Addr, "pprof", obs.Pprof, "metrics", obs.Metrics)
		if err := http.ListenAndServe(obs.Addr, mux); err != nil {
			logger.Error("observability server failed", "err", err)
		}
	}()
}
