package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"bili_passport/internal/captcha"
	"bili_passport/internal/config"
	"bili_passport/internal/engine"
	"bili_passport/internal/logbus"
	"bili_passport/internal/notify"
	"bili_passport/internal/provider/bili"
	"bili_passport/internal/store/sqlite"
	"bili_passport/internal/utils"
)

type app struct {
	cfg    config.Config
	bus    *logbus.Bus
	prompt *captcha.Prompter
	store  *sqlite.Store
	engine *engine.Engine
}

// setupApp 组装一次运行需要的全部组件。
func setupApp(ctx context.Context, cmd *cli.Command) (*app, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(&cfg, cmd)
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	bus := logbus.New(200)
	bus.AttachLogger(newLogger(cfg.Log))
	prompt := captcha.NewPrompter(os.Stdin, os.Stdout)

	rt := &app{cfg: cfg, bus: bus, prompt: prompt}

	prov, err := bili.New(bili.Options{
		Provider: cfg.Provider,
		Limits:   cfg.Limits,
		Signer:   utils.NewAppSigner(cfg.App.AppKey, cfg.App.AppSec),
		Bus:      bus,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	id := prov.Identity()
	bus.Log("debug", "device identity", map[string]any{"buvid": id.Buvid, "device_id": id.DeviceID})

	var resolver captcha.Resolver
	switch cfg.Captcha.Mode {
	case config.CaptchaModePage:
		resolver = captcha.NewPageResolver(cfg.Captcha.Addr, cfg.Captcha.OpenBrowser, cfg.Captcha.Wait(), prompt, bus)
	default:
		resolver = captcha.NewPromptResolver(prompt)
	}

	opts := engine.Options{
		Provider:       prov,
		Resolver:       resolver,
		Bus:            bus,
		CredentialPath: cfg.Storage.CredentialPath,
		Report:         responsePrinter(prompt, cmd.Bool("show-secrets")),
	}
	if cfg.Storage.SQLitePath != "" {
		store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		rt.store = store
		opts.Archive = store
	}
	if cfg.Notify.Email.Enabled {
		opts.Notifier = notify.NewEmailNotifier(cfg.Notify.Email, bus)
	}

	eng, err := engine.New(opts)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.engine = eng
	return rt, nil
}

// applyFlagOverrides 只覆盖命令行上显式给出的项。
func applyFlagOverrides(cfg *config.Config, cmd *cli.Command) {
	if v := strings.TrimSpace(cmd.String("captcha")); v != "" {
		cfg.Captcha.Mode = v
	}
	if v := strings.TrimSpace(cmd.String("log-level")); v != "" {
		cfg.Log.Level = v
	}
	if cmd.IsSet("timeout") {
		if sec := cmd.Int("timeout"); sec > 0 {
			cfg.Provider.TimeoutMs = int(sec) * 1000
		}
	}
}

func (rt *app) Close() {
	if rt.store != nil {
		_ = rt.store.Close()
	}
	rt.bus.Close()
}

func newLogger(cfg config.LogConfig) *log.Logger {
	l := log.New()
	l.SetOutput(os.Stderr)
	if cfg.JSON {
		l.SetFormatter(&log.JSONFormatter{})
	} else {
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	lvl, err := log.ParseLevel(cfg.Level)
	if err != nil {
		l.Warnf("unknown log level %q, using info", cfg.Level)
		lvl = log.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

func responsePrinter(p *captcha.Prompter, showSecrets bool) func(string, json.RawMessage) {
	return func(api string, raw json.RawMessage) {
		if !showSecrets {
			raw = redactResponse(raw)
		}
		p.Printf("[%s] %s\n", api, strings.TrimSpace(string(raw)))
	}
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
