package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bili_passport/internal/provider"
)

func TestExtractAuthCode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"auth_code query", "https://x/y?auth_code=ABC123", "ABC123"},
		{"bare code", "ABC123", "ABC123"},
		{"bare code trimmed", "  ABC123\n", "ABC123"},
		{"camel case", "https://x/y?authCode=C2", "C2"},
		{"code fallback", "http://x/y?code=C3", "C3"},
		{"auth_code preferred", "https://x/y?code=C3&authCode=C2&auth_code=C1", "C1"},
		{"blank auth_code skipped", "https://x/y?auth_code=%20&code=C3", "C3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractAuthCode(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractAuthCode_Missing(t *testing.T) {
	_, err := ExtractAuthCode("https://x/y?foo=1")
	require.Error(t, err)
	assert.True(t, provider.IsMissingField(err))

	_, err = ExtractAuthCode("")
	assert.True(t, provider.IsMissingField(err))
}

func TestParseQRInput(t *testing.T) {
	target, err := ParseQRInput("https://account.bilibili.com/h5/account-h5/auth/scan-web?qrcode_key=abc&from=")
	require.NoError(t, err)
	assert.Equal(t, provider.QRTarget{QRCodeKey: "abc"}, target)

	target, err = ParseQRInput("https://passport.bilibili.com/x/passport-tv-login/h5/qrcode/auth?auth_code=tv1")
	require.NoError(t, err)
	assert.Equal(t, provider.QRTarget{AuthCode: "tv1"}, target)

	// 非链接输入即使包含 qrcode_key= 也按 auth_code 处理
	target, err = ParseQRInput("qrcode_key=abc")
	require.NoError(t, err)
	assert.Equal(t, provider.QRTarget{AuthCode: "qrcode_key=abc"}, target)

	_, err = ParseQRInput("https://x/y?qrcode_key=&a=1")
	assert.True(t, provider.IsMissingField(err))
}
