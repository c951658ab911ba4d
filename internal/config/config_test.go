package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "rest", cfg.Store.Driver)
	assert.Equal(t, 1000, cfg.Store.ChunkSize)
	assert.Equal(t, 3, cfg.Store.Retries)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "gpt-4.1-mini", cfg.OpenAI.Model)
	assert.Equal(t, int64(1024), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "https://accounts.zoho.com", cfg.Zoho.AccountsURL)
	assert.False(t, cfg.Zoho.Writeback)
	assert.Equal(t, "zoho", cfg.CRM.Provider)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.InDelta(t, 15.0, cfg.Policy.MaxBudgetChangePct, 0.001)
	assert.Equal(t, []string{"increase_budget", "decrease_budget", "no_change"}, cfg.Policy.AllowedActions)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: file:growth.db
log:
  level: debug
  format: console
server:
  port: 9090
policy:
  max_budget_change_pct: 10
google_ads:
  customer_ids: ["111", "222"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "file:growth.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 10.0, cfg.Policy.MaxBudgetChangePct, 0.001)
	assert.Equal(t, []string{"111", "222"}, cfg.GoogleAds.CustomerIDs)
	// Defaults still apply for unset values.
	assert.Equal(t, 1000, cfg.Store.ChunkSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 9090\n"), 0o644))
	t.Setenv("GROWTH_SERVER_PORT", "7070")
	t.Setenv("GROWTH_STORE_URL", "https://abc.supabase.co")
	t.Setenv("GROWTH_STORE_KEY", "service-role")
	t.Setenv("GROWTH_ZOHO_WRITEBACK", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "https://abc.supabase.co", cfg.Store.URL)
	assert.Equal(t, "service-role", cfg.Store.Key)
	assert.True(t, cfg.Zoho.Writeback)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestRequire(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		wantErr string
	}{
		{name: "all present", pairs: []string{"store.url", "https://x", "store.key", "k"}},
		{name: "one missing", pairs: []string{"store.url", "", "store.key", "k"}, wantErr: "config: missing store.url"},
		{name: "blank counts as missing", pairs: []string{"openai.key", "   "}, wantErr: "openai.key"},
		{name: "two missing", pairs: []string{"a", "", "b", ""}, wantErr: "config: missing a, b"},
		{name: "odd args", pairs: []string{"a"}, wantErr: "key/value pairs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Require(tt.pairs...)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitLogger(t *testing.T) {
	orig := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(orig) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
