package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// Name is used for the config file, env prefix and app directories.
const Name = "cuecard"

// Dirs returns the directories searched for cuecard.yml, most specific
// first: configHome, $XDG_CONFIG_HOME/cuecard, then the platform dirs.
func Dirs(configHome string) ([]string, error) {
	scope := gap.NewScope(gap.User, Name)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, fmt.Errorf("could not find configuration directory: %w", err)
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, Name)}, dirs...)
	}
	if configHome != "" {
		dirs = append([]string{configHome}, dirs...)
	}
	return dirs, nil
}

// DefaultDBPath is where the durable cache lives unless configured.
func DefaultDBPath() (string, error) {
	return gap.NewScope(gap.User, Name).DataPath("voices.db")
}

// LoadSecrets reads secrets from the environment after loading any of
// envFiles that exist. With no files, ./.env is tried.
func LoadSecrets(envFiles ...string) (Secrets, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	var present []string
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) > 0 {
		if err := godotenv.Load(present...); err != nil {
			return Secrets{}, fmt.Errorf("loading env file: %w", err)
		}
	}

	s, err := env.ParseAs[Secrets]()
	if err != nil {
		return Secrets{}, fmt.Errorf("parsing environment: %w", err)
	}
	return s, nil
}

// Load builds the configuration. Values come from the built-in template,
// then the config file (path, or cuecard.yml in dirs), then CUECARD_*
// environment variables such as CUECARD_PLAYBACK_WORDS_PER_MINUTE. A
// missing file is not an error.
func Load(path string, dirs []string, secrets Secrets) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(Template)); err != nil {
		return Config{}, fmt.Errorf("reading default config: %w", err)
	}

	v.SetEnvPrefix(Name)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return Config{}, fmt.Errorf("expanding %s: %w", path, err)
		}
		v.SetConfigFile(expanded)
	} else {
		v.SetConfigName(Name)
		for _, d := range dirs {
			v.AddConfigPath(d)
		}
	}

	cfg := DefaultConfig()
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		cfg.File = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Secrets = secrets

	if cfg.Cache.Durable {
		if cfg.Cache.DBPath == "" {
			p, err := DefaultDBPath()
			if err != nil {
				return Config{}, err
			}
			cfg.Cache.DBPath = p
		}
		p, err := homedir.Expand(cfg.Cache.DBPath)
		if err != nil {
			return Config{}, fmt.Errorf("expanding cache.db_path: %w", err)
		}
		cfg.Cache.DBPath = p
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
