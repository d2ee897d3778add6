package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blikh/discord-translation-relay/internal/eventlog"
	"github.com/blikh/discord-translation-relay/internal/metrics"
	"github.com/blikh/discord-translation-relay/internal/provider"
)

// providerMonitor periodically probes the active provider, exports the
// result as a gauge and reports availability changes to the event log.
type providerMonitor struct {
	registry *provider.Registry
	settings func() provider.Settings
	events   *eventlog.Log
	interval time.Duration
	logger   *slog.Logger

	// lastOnline tracks the last observed availability per provider.
	lastOnline map[provider.ID]bool
}

func newProviderMonitor(registry *provider.Registry, settings func() provider.Settings, events *eventlog.Log, interval time.Duration, logger *slog.Logger) *providerMonitor {
	return &providerMonitor{
		registry:   registry,
		settings:   settings,
		events:     events,
		interval:   interval,
		logger:     logger,
		lastOnline: make(map[provider.ID]bool),
	}
}

func (m *providerMonitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *providerMonitor) check(ctx context.Context) provider.Status {
	st := m.registry.Status(ctx, m.settings())
	if ctx.Err() != nil {
		return st
	}

	online := 0.0
	if st.Online {
		online = 1
	}
	metrics.ProviderOnline.WithLabelValues(string(st.Provider)).Set(online)

	prev, known := m.lastOnline[st.Provider]
	m.lastOnline[st.Provider] = st.Online

	switch {
	case !st.Online && (!known || prev):
		m.logger.Warn("provider monitor: unavailable", "provider", st.Provider, "err", st.Error)
		m.events.Error(fmt.Sprintf("AI provider %s is unavailable: %s", st.Name, st.Error))
	case st.Online && known && !prev:
		m.logger.Info("provider monitor: back online", "provider", st.Provider)
		m.events.Info(fmt.Sprintf("AI provider %s is back online", st.Name))
	default:
		m.logger.Debug("provider monitor: check", "provider", st.Provider, "state", st.State)
	}
	return st
}
