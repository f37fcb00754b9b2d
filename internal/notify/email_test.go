package notify

import (
	"bytes"
	"context"
	"errors"
	"mime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"bili_passport/internal/model"
)

func TestSMTPConfigForEmail(t *testing.T) {
	tests := []struct {
		email  string
		host   string
		port   int
		useSSL bool
	}{
		{"a@qq.com", "smtp.qq.com", 465, true},
		{"a@126.com", "smtp.163.com", 465, true},
		{"a@gmail.com", "smtp.gmail.com", 587, false},
		{"a@hotmail.com", "smtp.office365.com", 587, false},
		{"a@example.org", "smtp.example.org", 465, true},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			host, port, useSSL, err := smtpConfigForEmail(tt.email)
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
			assert.Equal(t, tt.useSSL, useSSL)
		})
	}

	_, _, _, err := smtpConfigForEmail("nobody")
	assert.Error(t, err)
}

func TestValidateEmailSettings(t *testing.T) {
	assert.NoError(t, validateEmailSettings(model.EmailSettings{Email: "a@qq.com", AuthCode: "x"}))
	assert.Error(t, validateEmailSettings(model.EmailSettings{AuthCode: "x"}))
	assert.Error(t, validateEmailSettings(model.EmailSettings{Email: "not an email", AuthCode: "x"}))
	assert.Error(t, validateEmailSettings(model.EmailSettings{Email: "a@qq.com"}))
}

func TestMaskTel(t *testing.T) {
	assert.Equal(t, "138****0000", MaskTel("13800000000"))
	assert.Equal(t, "1234", MaskTel("1234"))
	assert.Equal(t, "", MaskTel(" "))
}

func TestBuildEmailBody(t *testing.T) {
	htmlBody, textBody, err := buildEmailBody(Event{Kind: EventLogin, At: 1700000000000, Mid: 42, Tel: "13800000000"})
	require.NoError(t, err)
	assert.Contains(t, htmlBody, "短信登录成功：UID 42")
	assert.Contains(t, htmlBody, "138****0000")
	assert.NotContains(t, htmlBody, "13800000000")
	assert.Contains(t, textBody, "UID：42")

	_, textBody, err = buildEmailBody(Event{Kind: EventQRConfirm, Code: 86038, Message: "二维码已失效", Target: "ABC"})
	require.NoError(t, err)
	assert.Contains(t, textBody, "扫码确认失败（code 86038）")
	assert.Contains(t, textBody, "二维码：ABC")
}

func TestEmailNotifier_Notify(t *testing.T) {
	settings := model.EmailSettings{Enabled: true, Email: "me@qq.com", AuthCode: "auth"}
	n := NewEmailNotifier(settings, nil)

	var sent []*gomail.Message
	var dialer *gomail.Dialer
	n.dial = func(d *gomail.Dialer, msg *gomail.Message) error {
		dialer = d
		sent = append(sent, msg)
		return nil
	}

	n.Notify(context.Background(), Event{Kind: EventQRConfirm, Target: "ABC"})
	require.Len(t, sent, 1)
	subject := sent[0].GetHeader("Subject")
	require.Len(t, subject, 1)
	decoded, err := new(mime.WordDecoder).DecodeHeader(subject[0])
	require.NoError(t, err)
	assert.Equal(t, "扫码登录已确认", decoded)
	assert.Equal(t, []string{"me@qq.com"}, sent[0].GetHeader("To"))
	assert.Equal(t, "smtp.qq.com", dialer.Host)
	assert.True(t, dialer.SSL)

	var buf bytes.Buffer
	_, err = sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "text/html")
}

func TestEmailNotifier_DisabledOrFailing(t *testing.T) {
	calls := 0
	dial := func(*gomail.Dialer, *gomail.Message) error {
		calls++
		return errors.New("smtp down")
	}

	off := NewEmailNotifier(model.EmailSettings{Email: "me@qq.com", AuthCode: "auth"}, nil)
	off.dial = dial
	off.Notify(context.Background(), Event{Kind: EventLogin})
	assert.Equal(t, 0, calls)

	invalid := NewEmailNotifier(model.EmailSettings{Enabled: true, Email: "me@qq.com"}, nil)
	invalid.dial = dial
	invalid.Notify(context.Background(), Event{Kind: EventLogin})
	assert.Equal(t, 0, calls)

	failing := NewEmailNotifier(model.EmailSettings{Enabled: true, Email: "me@qq.com", AuthCode: "auth"}, nil)
	failing.dial = dial
	failing.Notify(context.Background(), Event{Kind: EventLogin})
	assert.Equal(t, 1, calls)
}
