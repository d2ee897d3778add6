// Package relay wires the components together and runs them until the
// context is cancelled.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blikh/discord-translation-relay/internal/archive"
	"github.com/blikh/discord-translation-relay/internal/commands"
	"github.com/blikh/discord-translation-relay/internal/config"
	"github.com/blikh/discord-translation-relay/internal/dashboard"
	"github.com/blikh/discord-translation-relay/internal/directory"
	"github.com/blikh/discord-translation-relay/internal/discord"
	"github.com/blikh/discord-translation-relay/internal/eventlog"
	"github.com/blikh/discord-translation-relay/internal/gate"
	"github.com/blikh/discord-translation-relay/internal/history"
	"github.com/blikh/discord-translation-relay/internal/pipeline"
	"github.com/blikh/discord-translation-relay/internal/provider"
	"github.com/blikh/discord-translation-relay/internal/stats"
	"github.com/blikh/discord-translation-relay/internal/store"
)

const dashboardStopTimeout = 6 * time.Second

type Relay struct {
	cfg    *config.Config
	logger *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) *Relay {
	return &Relay{cfg: cfg, logger: logger}
}

// Run connects to Discord, starts the dashboard and the provider health
// checker, and blocks until ctx is cancelled. Pending state is flushed
// before it returns.
func (r *Relay) Run(ctx context.Context) error {
	cfg := r.cfg
	logger := r.logger

	st := store.New(cfg.State.Path, cfg.State.FlushDelayDuration(), logger)
	if err := st.Load(); err != nil {
		return fmt.Errorf("relay: load state: %w", err)
	}
	defer func() {
		if err := st.Flush(); err != nil {
			logger.Error("relay: failed to flush state", "path", cfg.State.Path, "err", err)
		}
	}()
	snap := st.Snapshot()
	logger.Info("relay: state loaded",
		"path", cfg.State.Path,
		"channels", len(snap.Channels),
		"provider", snap.AIProvider,
		"model", snap.Model,
	)

	events := eventlog.New(logger)
	hist := history.New()
	agg := stats.New(cfg.Cache.StatsTTLDuration())
	registry := provider.NewDefaultRegistry(logger)

	var arch *archive.Store
	if cfg.Archive.Enabled {
		var err error
		arch, err = archive.Open(cfg.Archive.Path, logger)
		if err != nil {
			return fmt.Errorf("relay: %w", err)
		}
		defer arch.Close()
		events.AddSink(arch.Sink())
		logger.Info("relay: archive opened", "path", cfg.Archive.Path)
	}

	client, err := discord.New(cfg.Discord.Token, logger)
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	dir := directory.New(discord.NewSource(client), cfg.Cache.DirectoryTTLDuration(), logger)

	deps := pipeline.Deps{
		Store:     st,
		Gate:      gate.New(cfg.Discord.CommandPrefix, client, logger),
		Registry:  registry,
		Directory: dir,
		History:   hist,
		Stats:     agg,
		Events:    events,
		Platform:  client,
	}
	if arch != nil {
		deps.Archive = arch
	}
	p := pipeline.New(deps, logger)

	svc := commands.NewService(st, registry, dir, events, cfg.Discord.CommandPrefix, logger)
	discord.NewHandler(client, p, svc, cfg.Discord.CommandPrefix, logger).Attach(ctx)
	events.AddSink(discord.NewMirror(client, st, logger))

	if err := client.Open(); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	defer client.Close()
	events.Info("Bot started")

	if cfg.Discord.RegisterCommands {
		if err := client.Register(cfg.Discord.GuildID); err != nil {
			logger.Warn("relay: slash command registration failed", "err", err)
			events.Error(fmt.Sprintf("Slash command registration failed: %v", err))
		}
	}

	if cfg.HealthCheck.Enabled {
		mon := newProviderMonitor(registry, st.ProviderSettings, events, cfg.HealthCheck.IntervalDuration(), logger)
		go mon.run(ctx)
		logger.Info("relay: provider health checker started", "interval", cfg.HealthCheck.IntervalDuration())
	}

	dashDone := make(chan error, 1)
	if cfg.Dashboard.Enabled {
		ddeps := dashboard.Deps{
			Store:     st,
			Registry:  registry,
			Directory: dir,
			Pipeline:  p,
			History:   hist,
			Stats:     agg,
			Events:    events,
			Bot:       client,
		}
		if arch != nil {
			ddeps.Audit = arch
		}
		srv := dashboard.New(ddeps, cfg.Dashboard.Listen, cfg.Dashboard.APIKey, logger)
		go func() { dashDone <- srv.Run(ctx) }()
		if cfg.Dashboard.APIKey == "" {
			logger.Warn("relay: dashboard has no API key, mutating routes are open", "listen", cfg.Dashboard.Listen)
		}
	} else {
		close(dashDone)
	}

	logger.Info("relay running", "prefix", cfg.Discord.CommandPrefix, "dashboard", cfg.Dashboard.Enabled)

	select {
	case <-ctx.Done():
	case err := <-dashDone:
		if err != nil {
			return err
		}
		<-ctx.Done()
	}

	logger.Info("shutting down relay")
	select {
	case err := <-dashDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("relay: dashboard stopped with error", "err", err)
		}
	case <-time.After(dashboardStopTimeout):
		logger.Warn("relay: dashboard did not stop in time")
	}
	return nil
}
