package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultAppKey, cfg.App.AppKey)
	assert.Equal(t, DefaultAppSec, cfg.App.AppSec)
	assert.Equal(t, "https://passport.bilibili.com", cfg.Provider.BaseURL)
	assert.Equal(t, DefaultCredentialPath, cfg.Storage.CredentialPath)
	assert.Equal(t, CaptchaModePrompt, cfg.Captcha.Mode)
	assert.Equal(t, 20*time.Second, cfg.Provider.Timeout())
	assert.Equal(t, 0, cfg.Provider.Retry.Count)
	assert.Empty(t, cfg.Storage.SQLitePath)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
provider:
  baseURL: http://127.0.0.1:8080
  timeoutMs: 5000
storage:
  credentialPath: ./creds.json
  sqlitePath: ./data/archive.db
captcha:
  mode: page
limits:
  qps: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8080", cfg.Provider.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Provider.Timeout())
	assert.Equal(t, "./creds.json", cfg.Storage.CredentialPath)
	assert.Equal(t, "./data/archive.db", cfg.Storage.SQLitePath)
	assert.Equal(t, CaptchaModePage, cfg.Captcha.Mode)
	assert.Equal(t, 2.0, cfg.Limits.QPS)
	assert.Equal(t, 1, cfg.Limits.Burst)
	assert.Equal(t, DefaultAppKey, cfg.App.AppKey)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "half key pair", content: "app:\n  appKey: onlykey\n"},
		{name: "unknown captcha mode", content: "captcha:\n  mode: robot\n"},
		{name: "broken yaml", content: "provider: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantKey string
		wantSec string
		wantErr bool
	}{
		{
			name:    "neither set keeps defaults",
			env:     map[string]string{},
			wantKey: DefaultAppKey,
			wantSec: DefaultAppSec,
		},
		{
			name:    "both set overrides",
			env:     map[string]string{EnvAppKey: "k1", EnvAppSec: "s1"},
			wantKey: "k1",
			wantSec: "s1",
		},
		{
			name:    "only key set",
			env:     map[string]string{EnvAppKey: "k1"},
			wantErr: true,
		},
		{
			name:    "only secret set",
			env:     map[string]string{EnvAppSec: "s1"},
			wantErr: true,
		},
		{
			name:    "both set but empty",
			env:     map[string]string{EnvAppKey: "", EnvAppSec: ""},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := cfg.ApplyEnv(envLookup(tt.env))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, cfg.App.AppKey)
			assert.Equal(t, tt.wantSec, cfg.App.AppSec)
		})
	}
}
