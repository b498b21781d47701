package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/cuecard/internal/playback"
	"github.com/dgnsrekt/cuecard/internal/script"
	"github.com/dgnsrekt/cuecard/internal/store"
	"github.com/dgnsrekt/cuecard/internal/voicecache"
)

var errNotDurable = errors.New("the durable cache is off (cache.durable: false)")

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the voice cache",
		Args:  cobra.NoArgs,
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show what the durable cache holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cfg.Cache.Durable {
				return errNotDurable
			}
			st, err := store.Open(cfg.Cache.DBPath, store.WithCompressionLevel(cfg.Cache.CompressionLevel))
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			n, size, err := st.Count(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := st.VoiceStats(cmd.Context())
			if err != nil {
				return err
			}
			printCacheStats(cmd.OutOrStdout(), cfg.Cache.DBPath, n, size, stats)
			return nil
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached clip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := newServices(cfg, log.Default())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			if err := svc.voices.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
			return nil
		},
	}

	preloadSpacing = voicecache.DefaultPreloadSpacing

	cachePreloadCmd = &cobra.Command{
		Use:     "preload SCRIPT",
		Short:   "Synthesize every voiced line of a script ahead of time",
		Example: paragraph("cuecard cache preload scene.yml --role ALICE"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.Cache.Durable {
				log.Warn("durable cache is off; preloaded clips last only for this run")
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			sc, err := script.Load(path)
			if err != nil {
				return err
			}

			svc, err := newServices(cfg, log.Default())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			roster, err := svc.cast(cmd.Context(), sc, path, role)
			if err != nil {
				return err
			}

			spacing := cfg.Cache.PreloadSpacing
			if cmd.Flags().Changed("spacing") {
				spacing = preloadSpacing
			}
			report, err := svc.voices.Preload(cmd.Context(), preloadItems(sc, roster, cfg.Playback.Settings), spacing)
			fmt.Fprintf(cmd.OutOrStdout(), "%d lines: %d cached, %d synthesized, %d failed\n",
				report.Requested, report.Skipped, report.Synthesized, report.Failed)
			return err
		},
	}
)

// preloadItems lists the clips a session would request, voice on.
func preloadItems(sc *script.Script, casting playback.Casting, settings playback.Settings) []voicecache.Item {
	settings.VoiceEnabled = true
	var items []voicecache.Item
	for _, out := range playback.Plan(sc.Lines, casting, settings) {
		if out.Skip != playback.SkipNone {
			continue
		}
		items = append(items, voicecache.Item{Text: sc.Lines[out.Index].Text, VoiceID: out.VoiceID})
	}
	return items
}

func printCacheStats(w io.Writer, path string, entries, size int64, stats []store.VoiceStat) {
	fmt.Fprintf(w, "%s %s\n", header("Cache:"), path)
	fmt.Fprintf(w, "%s clips, %s\n\n", humanize.Comma(entries), humanize.Bytes(uint64(max(size, 0))))
	if len(stats) == 0 {
		return
	}
	fmt.Fprintln(w, header(fmt.Sprintf("%-24s %8s %10s %10s", "VOICE", "CLIPS", "PLAYS", "SIZE")))
	for _, s := range stats {
		fmt.Fprintf(w, "%-24s %8s %10s %10s\n", s.VoiceID,
			humanize.Comma(s.Entries), humanize.Comma(s.Accesses), humanize.Bytes(uint64(max(s.Bytes, 0))))
	}
}

func init() {
	cachePreloadCmd.Flags().DurationVar(&preloadSpacing, "spacing", voicecache.DefaultPreloadSpacing, "pause between synthesis requests")
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cachePreloadCmd)
}
