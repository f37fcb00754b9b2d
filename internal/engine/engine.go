package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bili_passport/internal/captcha"
	"bili_passport/internal/config"
	"bili_passport/internal/logbus"
	"bili_passport/internal/model"
	"bili_passport/internal/notify"
	"bili_passport/internal/provider"
	"bili_passport/internal/store/credfile"
)

type LoginState string

const (
	StateInit             LoginState = "INIT"
	StateKeyFetched       LoginState = "KEY_FETCHED"
	StateSMSSent          LoginState = "SMS_SENT"
	StateCaptchaRequired  LoginState = "CAPTCHA_REQUIRED"
	StateSMSRetried       LoginState = "SMS_RETRIED"
	StateLoginSubmitted   LoginState = "LOGIN_SUBMITTED"
	StateCredentialsSaved LoginState = "CREDENTIALS_SAVED"
)

const defaultCID = 86

// Archive 是可选的凭证归档（sqlite）。
type Archive interface {
	UpsertAccount(ctx context.Context, acc model.Account) (model.Account, error)
	LoadCredential(ctx context.Context, mid int64) (model.Credential, error)
}

type Options struct {
	Provider provider.Provider
	Resolver captcha.Resolver
	Bus      *logbus.Bus
	Archive  Archive
	Notifier notify.Notifier
	// CredentialPath 是 Login/ConfirmQR 未指定路径时使用的凭证文件。
	CredentialPath string
	// Report 收到每个接口的原始响应，命令行用它把响应打印出来。
	Report func(api string, raw json.RawMessage)
	Now    func() time.Time
}

type Engine struct {
	provider provider.Provider
	resolver captcha.Resolver
	bus      *logbus.Bus
	archive  Archive
	notifier notify.Notifier
	credPath string
	report   func(string, json.RawMessage)
	now      func() time.Time
}

type LoginParams struct {
	Tel string
	// CID 为 0 时按 86 处理。
	CID     int
	SMSCode string
	Output  string
}

type LoginOutcome struct {
	Credential model.Credential
	Path       string
	// CaptchaSolved 表示发短信时走过一次人机验证。
	CaptchaSolved bool
}

type ConfirmParams struct {
	Input    string
	CredPath string
	// Mid > 0 时从归档读取凭证而不是凭证文件。
	Mid int64
}

type ConfirmOutcome struct {
	Target provider.QRTarget
	Result provider.ConfirmResult
}

func New(opts Options) (*Engine, error) {
	if opts.Provider == nil {
		return nil, errors.New("provider is required")
	}
	credPath := strings.TrimSpace(opts.CredentialPath)
	if credPath == "" {
		credPath = config.DefaultCredentialPath
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		provider: opts.Provider,
		resolver: opts.Resolver,
		bus:      opts.Bus,
		archive:  opts.Archive,
		notifier: opts.Notifier,
		credPath: credPath,
		report:   opts.Report,
		now:      now,
	}, nil
}

// Login 跑完整的短信登录流程，成功后凭证已经写入文件。
func (e *Engine) Login(ctx context.Context, p LoginParams) (LoginOutcome, error) {
	tel := strings.TrimSpace(p.Tel)
	if tel == "" {
		return LoginOutcome{}, provider.MissingField("tel is required")
	}
	cid := p.CID
	if cid <= 0 {
		cid = defaultCID
	}
	output := strings.TrimSpace(p.Output)
	if output == "" {
		output = e.credPath
	}
	fields := map[string]any{"tel": notify.MaskTel(tel), "cid": cid}
	e.setState(StateInit, fields)

	key, err := e.provider.GetWebKey(ctx)
	if err != nil {
		return LoginOutcome{}, fmt.Errorf("fetch web key failed, check network/proxy settings: %w", err)
	}
	e.setState(StateKeyFetched, fields)

	sms, err := e.provider.SendSMSCode(ctx, provider.SMSRequest{Tel: tel, CID: cid})
	if err != nil {
		return LoginOutcome{}, err
	}
	e.emit("sendSmsCode", sms.Raw)
	e.setState(StateSMSSent, fields)

	var out LoginOutcome
	if sms.Code != 0 && sms.RecaptchaURL != "" {
		e.setState(StateCaptchaRequired, fields)
		sms, err = e.retryWithCaptcha(ctx, tel, cid, sms.RecaptchaURL)
		if err != nil {
			return LoginOutcome{}, err
		}
		out.CaptchaSolved = true
		e.setState(StateSMSRetried, fields)
	}
	if sms.Code != 0 {
		return LoginOutcome{}, &provider.RemoteError{API: "sendSmsCode", Code: sms.Code, Message: sms.Message}
	}
	if sms.CaptchaKey == "" {
		return LoginOutcome{}, provider.MissingField("sendSmsCode response has no captcha_key")
	}

	code := strings.TrimSpace(p.SMSCode)
	if code == "" {
		if e.resolver == nil {
			return LoginOutcome{}, provider.MissingField("sms code is required")
		}
		code, err = e.resolver.SMSCode(ctx, tel)
		if err != nil {
			return LoginOutcome{}, fmt.Errorf("read sms code: %w", err)
		}
		code = strings.TrimSpace(code)
		if code == "" {
			return LoginOutcome{}, provider.MissingField("sms code is required")
		}
	}

	login, err := e.provider.LoginBySMS(ctx, provider.LoginRequest{
		Tel:          tel,
		CID:          cid,
		SMSCode:      code,
		CaptchaKey:   sms.CaptchaKey,
		PublicKeyPEM: key.Key,
	})
	if err != nil {
		return LoginOutcome{}, err
	}
	e.emit("loginBySms", login.Raw)
	if login.Code != 0 {
		return LoginOutcome{}, &provider.RemoteError{API: "loginBySms", Code: login.Code, Message: login.Message}
	}
	e.setState(StateLoginSubmitted, fields)

	if model.IsEmptyJSON(login.Data.TokenInfo) {
		return LoginOutcome{}, provider.MissingField("loginBySms response has no token_info (status=%d)", login.Data.Status)
	}
	if model.IsEmptyJSON(login.Data.CookieInfo) {
		return LoginOutcome{}, provider.MissingField("loginBySms response has no cookie_info (status=%d)", login.Data.Status)
	}
	cred, err := model.NewCredential(e.now().Unix(), login.Data)
	if err != nil {
		return LoginOutcome{}, fmt.Errorf("build credential: %w", err)
	}
	if err := credfile.New(output).Save(cred); err != nil {
		return LoginOutcome{}, err
	}
	fields["mid"] = cred.Mid
	fields["path"] = output
	e.setState(StateCredentialsSaved, fields)

	e.archiveCredential(ctx, tel, cred)
	if e.notifier != nil {
		e.notifier.Notify(ctx, notify.Event{
			Kind: notify.EventLogin,
			At:   e.now().UnixMilli(),
			Mid:  cred.Mid,
			Tel:  tel,
		})
	}

	out.Credential = cred
	out.Path = output
	return out, nil
}

// retryWithCaptcha 只重发一次；第二次仍失败由调用方按业务错误处理。
func (e *Engine) retryWithCaptcha(ctx context.Context, tel string, cid int, recaptchaURL string) (provider.SMSResult, error) {
	if e.resolver == nil {
		return provider.SMSResult{}, errors.New("captcha required but no resolver configured")
	}
	info, err := captcha.ParseRecaptchaURL(recaptchaURL)
	if err != nil {
		return provider.SMSResult{}, err
	}
	e.bus.Log("info", "触发人机验证", map[string]any{
		"recaptcha_token": info.RecaptchaToken,
		"gee_gt":          info.GeeGT,
		"gee_challenge":   info.GeeChallenge,
	})
	solved, err := e.resolver.SolveGeetest(ctx, info)
	if err != nil {
		return provider.SMSResult{}, fmt.Errorf("solve captcha: %w", err)
	}
	sms, err := e.provider.SendSMSCode(ctx, provider.SMSRequest{Tel: tel, CID: cid, Captcha: solved})
	if err != nil {
		return provider.SMSResult{}, err
	}
	e.emit("sendSmsCode retry", sms.Raw)
	return sms, nil
}

func (e *Engine) archiveCredential(ctx context.Context, tel string, cred model.Credential) {
	if e.archive == nil {
		return
	}
	if cred.Mid <= 0 {
		e.bus.Log("warn", "凭证缺少 mid，跳过归档", nil)
		return
	}
	if _, err := e.archive.UpsertAccount(ctx, model.Account{Mid: cred.Mid, Tel: tel, Credential: cred}); err != nil {
		e.bus.Log("warn", "凭证归档失败", map[string]any{"mid": cred.Mid, "error": err.Error()})
		return
	}
	e.bus.Log("debug", "凭证已归档", map[string]any{"mid": cred.Mid})
}

// ConfirmQR 用已保存的凭证确认另一台设备上的扫码登录。
// 业务 code 非 0（二维码过期等）通过 Result 返回，不作为 error。
func (e *Engine) ConfirmQR(ctx context.Context, p ConfirmParams) (ConfirmOutcome, error) {
	target, err := ParseQRInput(p.Input)
	if err != nil {
		return ConfirmOutcome{}, err
	}
	cred, err := e.loadCredential(ctx, p)
	if err != nil {
		return ConfirmOutcome{}, err
	}
	if len(cred.Cookies) == 0 {
		return ConfirmOutcome{}, provider.MissingField("credential has no cookies")
	}
	if cred.CSRF() == "" {
		return ConfirmOutcome{}, provider.MissingField("credential cookies lack %s, cannot confirm qrcode", model.CSRFCookieName)
	}

	variant := "tv"
	if target.QRCodeKey != "" {
		variant = "web"
	}
	e.bus.Log("info", "提交扫码确认", map[string]any{"variant": variant, "mid": cred.Mid})

	res, err := e.provider.ConfirmQRCode(ctx, cred, target)
	if err != nil {
		return ConfirmOutcome{}, err
	}
	e.emit("qrcodeConfirm", res.Raw)

	level := "info"
	if !res.OK() {
		level = "warn"
	}
	e.bus.Log(level, "扫码确认结果", map[string]any{"variant": variant, "code": res.Code, "message": res.Message})
	if e.notifier != nil {
		e.notifier.Notify(ctx, notify.Event{
			Kind:    notify.EventQRConfirm,
			At:      e.now().UnixMilli(),
			Mid:     cred.Mid,
			Code:    res.Code,
			Message: res.Message,
			Target:  target.AuthCode + target.QRCodeKey,
		})
	}
	return ConfirmOutcome{Target: target, Result: res}, nil
}

func (e *Engine) loadCredential(ctx context.Context, p ConfirmParams) (model.Credential, error) {
	if p.Mid > 0 {
		if e.archive == nil {
			return model.Credential{}, errors.New("credential archive is not configured (storage.sqlitePath)")
		}
		return e.archive.LoadCredential(ctx, p.Mid)
	}
	path := strings.TrimSpace(p.CredPath)
	if path == "" {
		path = e.credPath
	}
	return credfile.New(path).Load()
}

func (e *Engine) setState(state LoginState, fields map[string]any) {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["state"] = string(state)
	e.bus.Log("debug", "登录状态变更", out)
	if e.bus != nil {
		e.bus.Publish("login_state", out)
	}
}

func (e *Engine) emit(api string, raw json.RawMessage) {
	if e.report != nil && len(raw) > 0 {
		e.report(api, raw)
	}
}
