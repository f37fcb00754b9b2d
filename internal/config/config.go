package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bili_passport/internal/model"
	"bili_passport/internal/utils"
)

const (
	DefaultAppKey = "dfca71928277209b"
	DefaultAppSec = "b5475a8825547a4fc26c7d518eaaa02e"

	EnvAppKey = "BILI_APP_KEY"
	EnvAppSec = "BILI_APP_SEC"

	DefaultCredentialPath = "bili_credentials.json"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Provider ProviderConfig `yaml:"provider"`
	Storage  StorageConfig  `yaml:"storage"`
	Limits   LimitsConfig   `yaml:"limits"`
	Captcha  CaptchaConfig  `yaml:"captcha"`
	Notify   NotifyConfig   `yaml:"notify"`
	Log      LogConfig      `yaml:"log"`
}

// AppConfig 是签名用的 appkey/appsec。
// 重要：用某组 key 拿到的 access_token，后续的签名接口必须继续用同一组。
type AppConfig struct {
	AppKey string `yaml:"appKey"`
	AppSec string `yaml:"appSec"`
}

type ProviderConfig struct {
	BaseURL      string           `yaml:"baseURL"`
	TimeoutMs    int              `yaml:"timeoutMs"`
	Retry        ProviderRetryCfg `yaml:"retry"`
	UserAgent    string           `yaml:"userAgent"`
	CookieDomain string           `yaml:"cookieDomain"`
	Proxy        string           `yaml:"proxy"`
}

type ProviderRetryCfg struct {
	Count     int `yaml:"count"`
	WaitMs    int `yaml:"waitMs"`
	MaxWaitMs int `yaml:"maxWaitMs"`
}

type StorageConfig struct {
	CredentialPath string `yaml:"credentialPath"`
	// SQLitePath 非空时，每次登录成功后额外把凭证归档到 sqlite。
	SQLitePath string `yaml:"sqlitePath"`
}

type LimitsConfig struct {
	// QPS <= 0 表示不限速。
	QPS   float64 `yaml:"qps"`
	Burst int     `yaml:"burst"`
}

type CaptchaConfig struct {
	// Mode: prompt（终端输入）或 page（本地网页完成极验）。
	Mode        string `yaml:"mode"`
	Addr        string `yaml:"addr"`
	OpenBrowser bool   `yaml:"openBrowser"`
	WaitSeconds int    `yaml:"waitSeconds"`
}

type NotifyConfig struct {
	Email model.EmailSettings `yaml:"email"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

const (
	CaptchaModePrompt = "prompt"
	CaptchaModePage   = "page"
)

func (c ProviderConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c ProviderRetryCfg) Wait() time.Duration {
	if c.WaitMs <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.WaitMs) * time.Millisecond
}

func (c ProviderRetryCfg) MaxWait() time.Duration {
	if c.MaxWaitMs <= 0 {
		return 1200 * time.Millisecond
	}
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

func (c CaptchaConfig) Wait() time.Duration {
	if c.WaitSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.WaitSeconds) * time.Second
}

// Default 返回不依赖配置文件的默认配置。
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load 读取 yaml 配置；path 为空时直接使用默认值。
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv 用环境变量覆盖 appkey/appsec，两者必须同时设置或都不设置。
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	key, keySet := lookup(EnvAppKey)
	sec, secSet := lookup(EnvAppSec)
	if keySet != secSet {
		return fmt.Errorf("%s and %s must be set together, or neither to use the defaults", EnvAppKey, EnvAppSec)
	}
	if keySet {
		c.App.AppKey = strings.TrimSpace(key)
		c.App.AppSec = strings.TrimSpace(sec)
	}
	return c.validate()
}

func (c *Config) applyDefaults() {
	if c.App.AppKey == "" && c.App.AppSec == "" {
		c.App.AppKey = DefaultAppKey
		c.App.AppSec = DefaultAppSec
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://passport.bilibili.com"
	}
	if c.Provider.UserAgent == "" {
		c.Provider.UserAgent = utils.DefaultAndroidHDUserAgent()
	}
	if c.Provider.CookieDomain == "" {
		c.Provider.CookieDomain = ".bilibili.com"
	}
	if c.Provider.Retry.Count < 0 {
		c.Provider.Retry.Count = 0
	}
	if c.Storage.CredentialPath == "" {
		c.Storage.CredentialPath = DefaultCredentialPath
	}
	if c.Limits.Burst <= 0 {
		c.Limits.Burst = 1
	}
	if c.Captcha.Mode == "" {
		c.Captcha.Mode = CaptchaModePrompt
	}
	if c.Captcha.Addr == "" {
		c.Captcha.Addr = "127.0.0.1:8765"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c Config) validate() error {
	if c.App.AppKey == "" || c.App.AppSec == "" {
		return errors.New("app.appKey and app.appSec must be configured as a pair")
	}
	if c.Provider.BaseURL == "" {
		return errors.New("provider.baseURL is required")
	}
	switch c.Captcha.Mode {
	case CaptchaModePrompt, CaptchaModePage:
	default:
		return fmt.Errorf("captcha.mode must be %q or %q", CaptchaModePrompt, CaptchaModePage)
	}
	return nil
}
