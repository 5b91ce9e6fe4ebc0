// Package config loads bid-scout settings from a JSON5 file.
//
// A sibling "<name>.local.<ext>" file, when present, is merged over the main
// one. Unset fields take the values from Default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"

	"github.com/pfrederiksen/bid-scout/internal/fetch"
	"github.com/pfrederiksen/bid-scout/internal/normalize"
	"github.com/pfrederiksen/bid-scout/internal/schedule"
	"github.com/pfrederiksen/bid-scout/internal/telemetry"
)

// DefaultFile is the config file looked up when none is given
const DefaultFile = "bid-scout.json5"

type Database struct {
	File string `json:"file"`
}

type Documents struct {
	Root string `json:"root"`
}

type HTTP struct {
	// Timeout is a Go duration string such as "30s"
	Timeout            string `json:"timeout"`
	UserAgent          string `json:"user_agent"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`
}

type ComprasNet struct {
	BaseURL string `json:"base_url"`
}

type Portal struct {
	ComprasNet ComprasNet `json:"comprasnet"`
	// Location is the IANA zone portal dates are read in
	Location string `json:"location"`
}

type Reconcile struct {
	ReviewerRole string `json:"reviewer_role"`
	Workers      int    `json:"workers"`
}

type Telegram struct {
	BotToken string            `json:"bot_token"`
	Chats    map[string]string `json:"chats"`
}

type Notify struct {
	Telegram Telegram `json:"telegram"`
	// DryRun prints notifications instead of storing them
	DryRun bool `json:"dry_run"`
}

type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type Schedule struct {
	Jobs []schedule.Job `json:"jobs"`
}

// Config is the full bid-scout configuration
type Config struct {
	Database  Database         `json:"database"`
	Documents Documents        `json:"documents"`
	HTTP      HTTP             `json:"http"`
	Portal    Portal           `json:"portal"`
	Reconcile Reconcile        `json:"reconcile"`
	Notify    Notify           `json:"notify"`
	Log       Log              `json:"log"`
	Telemetry telemetry.Config `json:"telemetry"`
	Schedule  Schedule         `json:"schedule"`

	// Source is the file the config was read from, empty for defaults
	Source string `json:"-"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Database:  Database{File: "~/.local/share/bid-scout/bid-scout.db"},
		Documents: Documents{Root: "~/.local/share/bid-scout/documents"},
		HTTP: HTTP{
			Timeout:   fetch.DefaultTimeout.String(),
			UserAgent: fetch.DefaultUserAgent,
		},
		Portal: Portal{
			Location: "America/Sao_Paulo",
		},
		Reconcile: Reconcile{ReviewerRole: "analyst", Workers: 1},
		Log:       Log{Level: "info", Format: "text"},
		Schedule:  Schedule{Jobs: schedule.DefaultJobs()},
	}
}

// Load reads path and fills unset fields from Default. A missing file yields
// the defaults; an empty path reads DefaultFile.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultFile
	}

	cfg, err := ReadConfig[Config](path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = Config{}
	case err != nil:
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	default:
		cfg.Source = path
	}

	if err := mergo.Merge(&cfg, Default()); err != nil {
		return Config{}, fmt.Errorf("applying config defaults: %w", err)
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Notify.Telegram.BotToken = token
	}
	return cfg, cfg.Validate()
}

// Validate checks values that cannot be checked by type alone
func (c Config) Validate() error {
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Reconcile.Workers < 1 {
		return fmt.Errorf("reconcile.workers must be at least 1, got %d", c.Reconcile.Workers)
	}
	return nil
}

// Timeout parses http.timeout
func (c Config) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.HTTP.Timeout)
	if err != nil {
		return 0, fmt.Errorf("http.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("http.timeout must be positive, got %s", c.HTTP.Timeout)
	}
	return d, nil
}

// Location resolves portal.location. The default zone maps to the fixed
// UTC-3 offset portals publish in.
func (c Config) Location() (*time.Location, error) {
	if c.Portal.Location == "" || c.Portal.Location == normalize.DefaultLocation.String() {
		return normalize.DefaultLocation, nil
	}
	loc, err := time.LoadLocation(c.Portal.Location)
	if err != nil {
		return nil, fmt.Errorf("portal.location: %w", err)
	}
	return loc, nil
}

// Expand resolves a leading "~/" against the user's home directory
func Expand(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[2:]), nil
}
