package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/cuecard/internal/audio"
	"github.com/dgnsrekt/cuecard/internal/playback"
	"github.com/dgnsrekt/cuecard/internal/voice"
)

var (
	sayVoice string
	sayOut   string

	sayCmd = &cobra.Command{
		Use:     "say TEXT...",
		Short:   "Speak one line",
		Long:    paragraph(fmt.Sprintf("\nSynthesize a line through the %s and play it, or write it to a WAV file.", keyword("voice cache"))),
		Example: paragraph("cuecard say \"We're out of milk.\"\ncuecard say --voice 21m00Tcm4TlvDq8ikWAM --out line.wav Again?"),
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			svc, err := newServices(cfg, log.Default())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			voiceID := sayVoice
			if voiceID == "" {
				voiceID = cfg.Playback.NarratorVoice
			}
			if voiceID == "" {
				voiceID = voice.NarratorVoice(svc.client.Voices(cmd.Context()))
			}
			if voiceID == "" {
				return errors.New("no voice available; pass --voice")
			}

			h, src := svc.voices.FetchSource(cmd.Context(), text, voiceID)
			log.Debug("say", "voice", voiceID, "source", src)

			if sayOut != "" {
				data, _, ok := svc.objects.Resolve(h)
				if !ok {
					return errors.New("clip was released before it could be written")
				}
				if err := os.WriteFile(sayOut, data, 0o644); err != nil { //nolint:gosec
					return fmt.Errorf("unable to write %s: %w", sayOut, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", sayOut, src)
				return nil
			}

			player, err := audio.NewPlayer(cfg.PlayerConfig(), svc.objects)
			if err != nil {
				return fmt.Errorf("unable to open audio device: %w", err)
			}
			return player.Play(cmd.Context(), h, playback.Rate(cfg.Playback.WordsPerMinute))
		},
	}
)

func init() {
	sayCmd.Flags().StringVar(&sayVoice, "voice", "", "voice id (default: the narrator voice)")
	sayCmd.Flags().StringVarP(&sayOut, "out", "o", "", "write the clip to a WAV file instead of playing it")
}
