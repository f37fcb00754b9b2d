package provider

import (
	"context"
	"encoding/json"

	"bili_passport/internal/model"
)

type WebKey struct {
	Hash string `json:"hash"`
	Key  string `json:"key"`
}

type SMSRequest struct {
	Tel     string
	CID     int
	Captcha model.CaptchaInfo
}

// SMSResult 不把非 0 的 code 当成错误返回：调用方需要根据 recaptcha_url 决定是否走人机验证。
type SMSResult struct {
	Code         int             `json:"code"`
	Message      string          `json:"message,omitempty"`
	CaptchaKey   string          `json:"captchaKey,omitempty"`
	RecaptchaURL string          `json:"recaptchaUrl,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

type LoginRequest struct {
	Tel          string
	CID          int
	SMSCode      string
	CaptchaKey   string
	PublicKeyPEM string
}

type LoginResult struct {
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Data    model.LoginData `json:"data"`
	Raw     json.RawMessage `json:"-"`
}

// QRTarget 二选一：QRCodeKey 非空时走 Web 扫码确认，否则用 AuthCode 走 TV 扫码确认。
type QRTarget struct {
	AuthCode  string
	QRCodeKey string
}

type ConfirmResult struct {
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

func (r ConfirmResult) OK() bool { return r.Code == 0 }

type Provider interface {
	Name() string

	GetWebKey(ctx context.Context) (WebKey, error)
	SendSMSCode(ctx context.Context, req SMSRequest) (SMSResult, error)
	LoginBySMS(ctx context.Context, req LoginRequest) (LoginResult, error)
	ConfirmQRCode(ctx context.Context, cred model.Credential, target QRTarget) (ConfirmResult, error)
}
