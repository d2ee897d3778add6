package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blikh/discord-translation-relay/internal/provider"
	"github.com/blikh/discord-translation-relay/internal/store"
)

func newTranslateCommand(v *viper.Viper) *cobra.Command {
	var text, language string
	cmd := &cobra.Command{
		Use:   "translate [text...]",
		Short: "Translate text once with the provider from the state file",
		Example: `  relay translate --language spanish "Good morning"
  echo "Good morning" | xargs relay translate -l german`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" {
				text = strings.Join(args, " ")
			}
			if strings.TrimSpace(text) == "" {
				return errors.New("nothing to translate: pass --text or arguments")
			}

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			logger := stderrLogger(cfg)

			st := store.New(cfg.State.Path, cfg.State.FlushDelayDuration(), logger)
			if err := st.Load(); err != nil {
				return fmt.Errorf("loading state: %w", err)
			}
			registry := provider.NewDefaultRegistry(logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), provider.TranslateTimeout)
			defer cancel()
			out, err := registry.Translate(ctx, st.ProviderSettings(), text, language)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "text to translate")
	cmd.Flags().StringVarP(&language, "language", "l", "", "target language")
	cmd.MarkFlagRequired("language")
	return cmd
}
