package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/cuecard/internal/synth"
)

var (
	voiceSearch string

	voicesCmd = &cobra.Command{
		Use:     "voices",
		Short:   "List the voices available for casting",
		Long:    paragraph(fmt.Sprintf("\nList %s voices. Without an API key the built-in voices are shown.", keyword("ElevenLabs"))),
		Example: paragraph("cuecard voices\ncuecard voices --search rach"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := synth.New(cfg.ClientConfig())
			voices := filterVoices(client.Voices(cmd.Context()), voiceSearch)
			printVoices(cmd.OutOrStdout(), voices)
			return nil
		},
	}
)

type voiceNames []synth.Voice

func (v voiceNames) String(i int) string { return v[i].Name }
func (v voiceNames) Len() int            { return len(v) }

// filterVoices keeps voices whose name fuzzy-matches query, best first.
func filterVoices(voices []synth.Voice, query string) []synth.Voice {
	if strings.TrimSpace(query) == "" {
		return voices
	}
	matches := fuzzy.FindFrom(query, voiceNames(voices))
	out := make([]synth.Voice, 0, len(matches))
	for _, m := range matches {
		out = append(out, voices[m.Index])
	}
	return out
}

func printVoices(w io.Writer, voices []synth.Voice) {
	if len(voices) == 0 {
		fmt.Fprintln(w, faint("no voices"))
		return
	}
	fmt.Fprintf(w, "%s\n", header(fmt.Sprintf("%-24s %-16s %-8s %s", "ID", "NAME", "GENDER", "CATEGORY")))
	for _, v := range voices {
		category := v.Category
		if synth.IsFallbackVoice(v.VoiceID) {
			category = "built-in"
		}
		fmt.Fprintf(w, "%-24s %-16s %-8s %s\n", v.VoiceID, v.Name, v.Gender(), faint(category))
	}
}

func init() {
	voicesCmd.Flags().StringVarP(&voiceSearch, "search", "s", "", "fuzzy filter by voice name")
}
