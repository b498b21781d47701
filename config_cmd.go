package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/cuecard/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the cuecard config file",
	Long:    paragraph(fmt.Sprintf("\n%s the cuecard config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("cuecard config\ncuecard config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	// A broken file must still be editable, so skip loading it.
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		file, err := configPath()
		if err != nil {
			return err
		}
		if err := ensureConfigFile(file); err != nil {
			return err
		}

		c, err := editor.Cmd("cuecard", file)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Wrote config file to:", file)
		return nil
	},
}

// configPath is --config if given, else the first cuecard.yml found in
// the config dirs, else where a new one should go.
func configPath() (string, error) {
	if configFile != "" {
		return homedir.Expand(configFile)
	}
	dirs, err := config.Dirs(os.Getenv("CUECARD_CONFIG_HOME"))
	if err != nil {
		return "", err
	}
	for _, d := range dirs {
		for _, ext := range []string{".yml", ".yaml"} {
			p := filepath.Join(d, config.Name+ext)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	return filepath.Join(dirs[0], config.Name+".yml"), nil
}

func ensureConfigFile(file string) error {
	if ext := path.Ext(file); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(file)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(config.Template); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
