package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/cuecard/internal/script"
	"github.com/dgnsrekt/cuecard/internal/voice"
)

var (
	castAssign []string

	castCmd = &cobra.Command{
		Use:   "cast SCRIPT",
		Short: "Show or change which voice reads each character",
		Long: paragraph(fmt.Sprintf("\nShow the cast of a script. Missing voices are picked automatically and saved next to the script in %s.",
			keyword("SCRIPT.voices.yaml"))),
		Example: paragraph("cuecard cast scene.yml\ncuecard cast scene.yml --assign BOB=pNInz6obpgDQGcFmaJgB"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if len(castAssign) > 0 {
				for _, a := range castAssign {
					name, id, ok := strings.Cut(a, "=")
					if !ok || strings.TrimSpace(name) == "" {
						return fmt.Errorf("bad assignment %q: use NAME=VOICE_ID", a)
					}
					roster.Assign(name, strings.TrimSpace(id))
				}
				if err := roster.Save(voice.SidecarPath(path)); err != nil {
					return err
				}
			}

			printCast(cmd.OutOrStdout(), roster, sc.LineCounts())
			return nil
		},
	}
)

func printCast(w io.Writer, roster *voice.Roster, counts map[string]int) {
	fmt.Fprintln(w, header(fmt.Sprintf("%-20s %6s  %s", "CHARACTER", "LINES", "VOICE")))
	fmt.Fprintf(w, "%-20s %6s  %s\n", script.NarratorName, "", roster.NarratorVoice())
	for _, a := range roster.Assignments() {
		id := a.VoiceID
		switch {
		case roster.IsFocused(a.Character):
			id = keyword("you")
		case id == "":
			id = faint("silent")
		}
		fmt.Fprintf(w, "%-20s %6d  %s\n", a.Character, counts[a.Character], id)
	}
}

func init() {
	castCmd.Flags().StringArrayVarP(&castAssign, "assign", "a", nil, "set a voice, NAME=VOICE_ID (repeatable)")
}
