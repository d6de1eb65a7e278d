// Package config resolves the mailsweep config directory and user settings.
// The resolved Config value is passed explicitly into the services that need
// it; nothing reads the environment after startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/joshsymonds/mailsweep/internal/gmail"
)

// EnvConfigDir overrides the default config directory location.
const EnvConfigDir = "MAILSWEEP_CONFIG_DIR"

// Config carries everything the commands need from disk and environment.
type Config struct {
	Dir               string
	Accounts          []string
	UnreadLabel       string
	InboxLabel        string
	DefaultLimit      int
	RequestsPerSecond int
}

// Load resolves the config directory and reads the optional config file
// inside it. A missing config file yields defaults; a malformed one is an
// error.
func Load() (Config, error) {
	dir := os.Getenv(EnvConfigDir)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".mailsweep")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetDefault("accounts", []string{"default"})
	v.SetDefault("labels.unread", string(gmail.DefaultMarkers().Unread))
	v.SetDefault("labels.inbox", string(gmail.DefaultMarkers().Inbox))
	v.SetDefault("apply.limit", 50)
	v.SetDefault("apply.rps", 4)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config in %s: %w", dir, err)
		}
	}

	cfg := Config{
		Dir:               dir,
		Accounts:          v.GetStringSlice("accounts"),
		UnreadLabel:       v.GetString("labels.unread"),
		InboxLabel:        v.GetString("labels.inbox"),
		DefaultLimit:      v.GetInt("apply.limit"),
		RequestsPerSecond: v.GetInt("apply.rps"),
	}
	if len(cfg.Accounts) == 0 {
		cfg.Accounts = []string{"default"}
	}
	return cfg, nil
}

// Markers returns the configured well-known label set.
func (c Config) Markers() gmail.Markers {
	return gmail.Markers{
		Unread: gmail.LabelID(c.UnreadLabel),
		Inbox:  gmail.LabelID(c.InboxLabel),
	}
}

// RulesPath is the rule store file.
func (c Config) RulesPath() string { return filepath.Join(c.Dir, "rules.json") }

// DeletionLogPath is the append-only deletion audit log.
func (c Config) DeletionLogPath() string { return filepath.Join(c.Dir, "deletion-log.json") }

// ArchiveLogPath is the append-only archive audit log.
func (c Config) ArchiveLogPath() string { return filepath.Join(c.Dir, "archive-log.json") }

// UndoLogPath is the undo record file.
func (c Config) UndoLogPath() string { return filepath.Join(c.Dir, "undo-log.json") }

// CredentialsDir holds per-account OAuth material.
func (c Config) CredentialsDir(account string) string {
	return filepath.Join(c.Dir, "accounts", account)
}
