package engine

import (
	"net/url"
	"strings"

	"bili_passport/internal/provider"
)

var authCodeKeys = []string{"auth_code", "authCode", "code"}

func isHTTPURL(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

// ParseQRInput 把扫码得到的链接（或直接粘贴的 auth_code）转成确认目标。
// 带 qrcode_key 的 http(s) 链接走 Web 确认，其余一律按 TV auth_code 处理。
func ParseQRInput(input string) (provider.QRTarget, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return provider.QRTarget{}, provider.MissingField("qr input is empty")
	}
	if isHTTPURL(raw) && strings.Contains(raw, "qrcode_key=") {
		key, err := ExtractQRCodeKey(raw)
		if err != nil {
			return provider.QRTarget{}, err
		}
		return provider.QRTarget{QRCodeKey: key}, nil
	}
	code, err := ExtractAuthCode(raw)
	if err != nil {
		return provider.QRTarget{}, err
	}
	return provider.QRTarget{AuthCode: code}, nil
}

// ExtractAuthCode 非链接输入原样作为 auth_code；链接依次查找 auth_code、authCode、code。
func ExtractAuthCode(input string) (string, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return "", provider.MissingField("qr input is empty")
	}
	if !strings.Contains(raw, "http://") && !strings.Contains(raw, "https://") {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", provider.MissingField("auth_code not found: unparseable url: %v", err)
	}
	q := u.Query()
	for _, key := range authCodeKeys {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			return v, nil
		}
	}
	return "", provider.MissingField("auth_code not found in qr url, pass the full decoded link")
}

func ExtractQRCodeKey(input string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(input))
	if err != nil {
		return "", provider.MissingField("qrcode_key not found: unparseable url: %v", err)
	}
	key := strings.TrimSpace(u.Query().Get("qrcode_key"))
	if key == "" {
		return "", provider.MissingField("qrcode_key not found in url query")
	}
	return key, nil
}
