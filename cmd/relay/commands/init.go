package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blikh/discord-translation-relay/internal/config"
)

func newInitCommand(v *viper.Viper) *cobra.Command {
	var (
		token   string
		apiKey  string
		archive bool
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := v.GetString("config")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			cfg := config.Default()
			cfg.Discord.Token = token
			cfg.Dashboard.APIKey = apiKey
			cfg.Archive.Enabled = archive
			cfg.ObservabilityHTTP = config.ObservabilityHTTPConfig{Addr: "127.0.0.1:9090", Metrics: true}
			if err := cfg.Save(path); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== Config initialized ===")
			fmt.Fprintf(out, "Config:     %s\n", path)
			fmt.Fprintf(out, "State:      %s\n", cfg.State.Path)
			fmt.Fprintf(out, "Dashboard:  %s\n", cfg.Dashboard.Listen)
			fmt.Fprintf(out, "Metrics:    http://%s/metrics\n", cfg.ObservabilityHTTP.Addr)
			fmt.Fprintln(out)
			if token == "" {
				fmt.Fprintln(out, "Set discord.token in the config or export DISCORD_TOKEN.")
			}
			if apiKey == "" {
				fmt.Fprintln(out, "No dashboard API key set: mutating dashboard routes are open.")
			}
			fmt.Fprintln(out, "Run 'relay run' to start.")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Discord bot token")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "dashboard API key")
	cmd.Flags().BoolVar(&archive, "archive", false, "enable the SQLite archive")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}
