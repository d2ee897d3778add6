package commands

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blikh/discord-translation-relay/internal/archive"
)

func newStatsCommand(v *viper.Viper) *cobra.Command {
	var (
		language string
		channel  string
		since    time.Duration
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show archived translation counts and recent translations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Archive.Path); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no archive at %s (enable archive in the config)", cfg.Archive.Path)
			}

			db, err := archive.Open(cfg.Archive.Path, stderrLogger(cfg))
			if err != nil {
				return err
			}
			defer db.Close()

			counts, err := db.LanguageCounts(cmd.Context())
			if err != nil {
				return err
			}
			q := archive.TranslationQuery{Language: language, Channel: channel, Limit: limit}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			recent, err := db.Translations(cmd.Context(), q)
			if err != nil {
				return err
			}

			langs := make([]string, 0, len(counts))
			var total int64
			for l, n := range counts {
				langs = append(langs, l)
				total += n
			}
			sort.Slice(langs, func(i, j int) bool {
				if counts[langs[i]] != counts[langs[j]] {
					return counts[langs[i]] > counts[langs[j]]
				}
				return langs[i] < langs[j]
			})

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "LANGUAGE\tTRANSLATIONS\n")
			for _, l := range langs {
				fmt.Fprintf(w, "%s\t%d\n", l, counts[l])
			}
			fmt.Fprintf(w, "total\t%d\n\n", total)

			fmt.Fprintf(w, "TIME\tCHANNEL\tAUTHOR\tLANGUAGE\tOCR\tTRANSLATION\n")
			for _, r := range recent {
				fmt.Fprintf(w, "%s\t#%s\t%s\t%s\t%v\t%s\n",
					r.Time.Format(time.DateTime), r.Channel, r.Author, r.Language, r.OCR, oneLine(r.Translated, 60))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "only show translations into this language")
	cmd.Flags().StringVar(&channel, "channel", "", "only show translations from this channel name")
	cmd.Flags().DurationVar(&since, "since", 0, "only show translations newer than this (e.g. 24h)")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of recent translations to show")
	return cmd
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
