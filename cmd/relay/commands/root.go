// Package commands implements the relay command line.
package commands

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/blikh/discord-translation-relay/internal/config"
)

const defaultConfigPath = "configs/relay.yaml"

// NewRootCommand builds the relay command tree.
func NewRootCommand(version string) *cobra.Command {
	v := newViper()

	root := &cobra.Command{
		Use:   "relay",
		Short: "Discord translation relay",
		Long: `relay watches configured Discord channels and replies to every message
with a translation into the channel's target language, using a local or
hosted AI provider. Image attachments can be run through text extraction
first. Channels, roles and the provider are managed with the /translate
command or the dashboard API.

Environment:
  DISCORD_TOKEN       bot token (discord.token)
  DASHBOARD_API_KEY   dashboard API key (dashboard.api_key)
  PORT                dashboard port, listens on :PORT
  RELAY_<KEY>         any config key, dots replaced by underscores`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", defaultConfigPath, "path to config file")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	bindFlags(v, root.PersistentFlags(), map[string]string{
		"config":    "config",
		"log-level": "log_level",
	})

	root.AddCommand(
		newRunCommand(v, version),
		newInitCommand(v),
		newTranslateCommand(v),
		newStatsCommand(v),
	)
	return root
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("discord.token", "RELAY_DISCORD_TOKEN", "DISCORD_TOKEN")
	v.BindEnv("dashboard.api_key", "RELAY_DASHBOARD_API_KEY", "DASHBOARD_API_KEY")
	v.BindEnv("port", "PORT")
	return v
}

// bindFlags binds flags of fs to config keys, keyed by flag name.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		v.BindPFlag(key, fs.Lookup(name))
	}
}

// loadConfig reads the config file named by --config and applies flag and
// environment overrides.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return nil, err
	}
	applyOverrides(v, cfg)
	return cfg, nil
}

func applyOverrides(v *viper.Viper, cfg *config.Config) {
	str := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	str("log_level", &cfg.LogLevel)
	str("discord.token", &cfg.Discord.Token)
	str("discord.command_prefix", &cfg.Discord.CommandPrefix)
	str("discord.guild_id", &cfg.Discord.GuildID)
	if port := v.GetString("port"); port != "" {
		cfg.Dashboard.Listen = ":" + port
	}
	str("dashboard.listen", &cfg.Dashboard.Listen)
	str("dashboard.api_key", &cfg.Dashboard.APIKey)
	str("state.path", &cfg.State.Path)
	str("archive.path", &cfg.Archive.Path)
	str("observability_http.addr", &cfg.ObservabilityHTTP.Addr)
}

func stderrLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.ParseLogLevel()}))
}
