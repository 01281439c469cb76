// Package config loads and watches the YAML configuration file.
package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notifier  NotifierConfig  `yaml:"notifier"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `yaml:"poll_timeout"`

	// AllowedIDs is the chat allow-list: user or group chat ids permitted
	// to use the bot. An entry of 0 allows everyone; an empty list allows
	// no one. Hot-reloaded.
	AllowedIDs []int64 `yaml:"allowed_ids"`
}

type LoggingConfig struct {
	Level   string      `yaml:"level"`
	Console bool        `yaml:"console"`
	File    LoggingFile `yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type StorageConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout"` // Go duration string (sqlite)
}

// SchedulerConfig controls the dispatch loop.
//
// Tick defaults to "60s". Sub-minute ticks only make the due-scan more
// eager; reminders still have one-minute granularity.
type SchedulerConfig struct {
	Tick    string `yaml:"tick"`
	Workers int    `yaml:"workers"`
}

type NotifierConfig struct {
	RatePerSec  int    `yaml:"rate_per_sec"`
	SendTimeout string `yaml:"send_timeout"`
}

// Validate checks fields that must be caught before services start.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	for _, field := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"scheduler.tick", c.Scheduler.Tick},
		{"notifier.send_timeout", c.Notifier.SendTimeout},
	} {
		if _, err := ParseDurationField(field.path, field.raw); err != nil {
			return err
		}
	}
	return nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
