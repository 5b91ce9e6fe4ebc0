package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfrederiksen/bid-scout/internal/fetch"
	"github.com/pfrederiksen/bid-scout/internal/normalize"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json5"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Empty(t, cfg.Source)

	timeout, err := cfg.Timeout()
	require.NoError(t, err)
	assert.Equal(t, fetch.DefaultTimeout, timeout)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Same(t, normalize.DefaultLocation, loc)
}

func TestLoad_MergesLocalOverride(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "bid-scout.json5")

	writeFile(t, path, `{
		// comments and trailing commas are fine
		database: { file: "/var/lib/bid-scout.db" },
		http: { timeout: "45s", insecure_skip_verify: true },
		reconcile: { workers: 4 },
		notify: { telegram: { chats: { analyst: "-100123" } } },
	}`)
	writeFile(t, filepath.Join(dir, "bid-scout.local.json5"), `{
		http: { timeout: "5s" },
		log: { level: "debug" },
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Source)
	assert.Equal(t, "/var/lib/bid-scout.db", cfg.Database.File)
	assert.Equal(t, "5s", cfg.HTTP.Timeout)
	assert.True(t, cfg.HTTP.InsecureSkipVerify)
	assert.Equal(t, fetch.DefaultUserAgent, cfg.HTTP.UserAgent)
	assert.Equal(t, 4, cfg.Reconcile.Workers)
	assert.Equal(t, "analyst", cfg.Reconcile.ReviewerRole)
	assert.Equal(t, map[string]string{"analyst": "-100123"}, cfg.Notify.Telegram.Chats)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Len(t, cfg.Schedule.Jobs, 2)
}

func TestLoad_TokenFromEnvironment(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json5"))
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Notify.Telegram.BotToken)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "syntax", content: `{ http: `, wantErr: "reading config"},
		{name: "timeout", content: `{ http: { timeout: "soon" } }`, wantErr: "http.timeout"},
		{name: "negative timeout", content: `{ http: { timeout: "-1s" } }`, wantErr: "http.timeout must be positive"},
		{name: "location", content: `{ portal: { location: "Mars/Olympus" } }`, wantErr: "portal.location"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.json5")
			writeFile(t, path, tt.content)
			_, err := Load(path)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLocation_Named(t *testing.T) {
	cfg := Default()
	cfg.Portal.Location = "UTC"
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestExpand(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := Expand("~/data/db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data/db"), got)

	got, err = Expand("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}
