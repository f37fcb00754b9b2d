package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"bili_passport/internal/config"
	"bili_passport/internal/provider"
)

// overridesFor 用真实的命令定义解析 args，返回覆盖后的默认配置。
func overridesFor(t *testing.T, args ...string) config.Config {
	t.Helper()
	cfg := config.Default()
	capture := func(_ context.Context, cmd *cli.Command) error {
		applyFlagOverrides(&cfg, cmd)
		return nil
	}
	root := newApp()
	root.Action = capture
	for _, sub := range root.Commands {
		if sub.Action != nil {
			sub.Action = capture
		}
	}
	require.NoError(t, root.Run(context.Background(), append([]string{"bililogin"}, args...)))
	return cfg
}

func TestFlagOverrides_TimeoutOnlyWhenGiven(t *testing.T) {
	def := config.Default()

	cfg := overridesFor(t, "qr-confirm", "--qr", "ABC")
	assert.Equal(t, def.Provider.TimeoutMs, cfg.Provider.TimeoutMs)

	cfg = overridesFor(t, "qr-confirm", "--qr", "ABC", "--timeout", "5")
	assert.Equal(t, 5000, cfg.Provider.TimeoutMs)

	cfg = overridesFor(t, "sms-login", "--tel", "13800000000")
	assert.Equal(t, def.Provider.TimeoutMs, cfg.Provider.TimeoutMs)
}

func TestFlagOverrides_GlobalFlags(t *testing.T) {
	cfg := overridesFor(t, "--captcha", "page", "--log-level", "debug", "qr-confirm", "--qr", "ABC")
	assert.Equal(t, config.CaptchaModePage, cfg.Captcha.Mode)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"remote", fmt.Errorf("login: %w", &provider.RemoteError{API: "loginBySms", Code: 86206}), exitRemoteRejected},
		{"bad response", &provider.ResponseFormatError{API: "getWebKey", Status: 502}, exitBadResponse},
		{"missing field", provider.MissingField("tel is required"), exitMissingField},
		{"other", errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
