package model

import (
	"encoding/json"
	"strings"
)

// Credential 是登录成功后落盘的凭证，字段名与旧脚本生成的 bili_credentials.json 保持一致。
type Credential struct {
	SavedAt       int64             `json:"saved_at"`
	AccessToken   string            `json:"access_token"`
	RefreshToken  string            `json:"refresh_token"`
	ExpiresIn     int64             `json:"expires_in"`
	Mid           int64             `json:"mid"`
	Cookies       map[string]string `json:"cookies"`
	RawTokenInfo  json.RawMessage   `json:"raw_token_info,omitempty"`
	RawCookieInfo json.RawMessage   `json:"raw_cookie_info,omitempty"`
}

// CSRF 返回 bili_jct cookie。
func (c Credential) CSRF() string {
	return strings.TrimSpace(c.Cookies[CSRFCookieName])
}

// CaptchaInfo 是发送短信时可能需要的极验参数，只在重发那一次携带 validate/seccode。
type CaptchaInfo struct {
	RecaptchaToken string `json:"recaptcha_token,omitempty"`
	GeeGT          string `json:"gee_gt,omitempty"`
	GeeChallenge   string `json:"gee_challenge,omitempty"`
	GeeValidate    string `json:"gee_validate,omitempty"`
	GeeSeccode     string `json:"gee_seccode,omitempty"`
}

type TokenInfo struct {
	Mid          int64  `json:"mid"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type CookieInfo struct {
	Cookies []CookieInfoEntry `json:"cookies"`
	Domains []string          `json:"domains,omitempty"`
}

type CookieInfoEntry struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	HttpOnly int    `json:"http_only,omitempty"`
	Expires  int64  `json:"expires,omitempty"`
	Secure   int    `json:"secure,omitempty"`
}

// LoginData 是短信登录接口 data 字段中用得到的部分，token_info/cookie_info 同时保留原始 JSON。
type LoginData struct {
	Status     int             `json:"status"`
	Message    string          `json:"message,omitempty"`
	URL        string          `json:"url,omitempty"`
	TokenInfo  json.RawMessage `json:"token_info,omitempty"`
	CookieInfo json.RawMessage `json:"cookie_info,omitempty"`
}

// NewCredential 由登录返回构造凭证。raw_cookie_info 只保存 cookie 列表本身。
func NewCredential(savedAt int64, data LoginData) (Credential, error) {
	var token TokenInfo
	if !IsEmptyJSON(data.TokenInfo) {
		if err := json.Unmarshal(data.TokenInfo, &token); err != nil {
			return Credential{}, err
		}
	}
	var cookieInfo struct {
		Cookies json.RawMessage `json:"cookies"`
	}
	var entries []CookieInfoEntry
	if !IsEmptyJSON(data.CookieInfo) {
		if err := json.Unmarshal(data.CookieInfo, &cookieInfo); err != nil {
			return Credential{}, err
		}
		if !IsEmptyJSON(cookieInfo.Cookies) {
			if err := json.Unmarshal(cookieInfo.Cookies, &entries); err != nil {
				return Credential{}, err
			}
		}
	}
	rawCookies := cookieInfo.Cookies
	if IsEmptyJSON(rawCookies) {
		rawCookies = json.RawMessage("[]")
	}
	return Credential{
		SavedAt:       savedAt,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		ExpiresIn:     token.ExpiresIn,
		Mid:           token.Mid,
		Cookies:       CookiesFromInfo(entries),
		RawTokenInfo:  data.TokenInfo,
		RawCookieInfo: rawCookies,
	}, nil
}

// IsEmptyJSON 判断 null / {} / [] / 空串。
func IsEmptyJSON(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "{}", "[]":
		return true
	}
	return false
}
