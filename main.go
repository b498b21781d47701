// Package main provides the entry point for the cuecard CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/cuecard/internal/audio"
	"github.com/dgnsrekt/cuecard/internal/config"
	"github.com/dgnsrekt/cuecard/internal/playback"
	"github.com/dgnsrekt/cuecard/internal/queue"
	"github.com/dgnsrekt/cuecard/internal/script"
	"github.com/dgnsrekt/cuecard/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	envFile    string
	debug      bool
	role       string
	width      int
	mouse      bool
	noVoice    bool

	// cfg is filled in by loadConfig before any command runs.
	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "cuecard SCRIPT",
		Short: "Rehearse lines with a voiced teleprompter",
		Long: paragraph(
			fmt.Sprintf("\nScroll through a script while the %s read every part but yours.", keyword("other characters")),
		),
		Example:           paragraph("cuecard scene.yml\ncuecard scene.yml --role ALICE"),
		SilenceErrors:     false,
		SilenceUsage:      true,
		TraverseChildren:  true,
		Args:              cobra.ExactArgs(1),
		PersistentPreRunE: loadConfig,
		RunE:              execute,
	}
)

func loadConfig(cmd *cobra.Command, _ []string) error {
	var envFiles []string
	if envFile != "" {
		envFiles = append(envFiles, envFile)
	}
	secrets, err := config.LoadSecrets(envFiles...)
	if err != nil {
		return err
	}
	if debug || secrets.Debug {
		log.SetLevel(log.DebugLevel)
	}

	dirs, err := config.Dirs(secrets.ConfigHome)
	if err != nil {
		return err
	}
	cfg, err = config.Load(configFile, dirs, secrets)
	if err != nil {
		return err
	}

	if cfg.File != "" {
		log.Debug("Using configuration file", "path", cfg.File)
	}
	if cmd.Flags().Changed("width") {
		cfg.UI.Width = width
	}
	if mouse {
		cfg.UI.Mouse = true
	}
	if noVoice {
		cfg.Playback.VoiceEnabled = false
	}
	return nil
}

func execute(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("the teleprompter needs a terminal; try 'cuecard say' for one-off lines")
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("unable to get absolute path: %w", err)
	}
	sc, err := script.Load(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	return runTUI(ctx, path, sc)
}

func runTUI(ctx context.Context, path string, sc *script.Script) error {
	logger := log.Default()
	svc, err := newServices(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	roster, err := svc.cast(ctx, sc, path, role)
	if err != nil {
		return err
	}

	player, err := audio.NewPlayer(cfg.PlayerConfig(), svc.objects)
	if err != nil {
		return fmt.Errorf("unable to open audio device: %w", err)
	}

	lookahead := queue.New(svc.voices, queue.DefaultMaxSize, logger)
	defer func() { _ = lookahead.Close() }()

	seq := playback.NewSequencer(svc.voices, player,
		playback.WithLogger(logger),
		playback.WithObserver(svc.observer),
		playback.WithSettings(cfg.Playback.Settings),
		playback.WithPrefetcher(lookahead),
	)
	defer seq.Wait()

	// Read environment to get debugging stuff
	uiCfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	uiCfg.Path = path
	uiCfg.Title = sc.Title
	if uiCfg.Title == "" {
		uiCfg.Title = filepath.Base(path)
	}
	uiCfg.MaxWidth = cfg.UI.Width
	uiCfg.ScrollSpeed = cfg.UI.ScrollSpeed
	uiCfg.EnableMouse = cfg.UI.Mouse

	if err := ui.Run(ctx, uiCfg, seq, roster, sc); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default cuecard.yml in the config dir)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "read secrets from this file instead of ./.env")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log debug output")
	rootCmd.PersistentFlags().StringVarP(&role, "role", "r", "", "your character; its lines stay silent")
	rootCmd.Flags().IntVarP(&width, "width", "w", 0, "text column width (0 fits the terminal)")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel")
	rootCmd.Flags().BoolVar(&noVoice, "no-voice", false, "start with voice turned off")
	_ = rootCmd.Flags().MarkHidden("mouse")

	rootCmd.AddCommand(configCmd, manCmd, voicesCmd, sayCmd, cacheCmd, castCmd)
}
