package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"bili_passport/internal/logbus"
	"bili_passport/internal/model"
)

const senderName = "B站登录助手"

type EmailNotifier struct {
	settings model.EmailSettings
	bus      *logbus.Bus

	dial func(d *gomail.Dialer, msg *gomail.Message) error
}

func NewEmailNotifier(settings model.EmailSettings, bus *logbus.Bus) *EmailNotifier {
	return &EmailNotifier{
		settings: settings,
		bus:      bus,
		dial: func(d *gomail.Dialer, msg *gomail.Message) error {
			return d.DialAndSend(msg)
		},
	}
}

// Notify 同步发送，命令行进程很快就会退出，没有必要排队。
func (n *EmailNotifier) Notify(ctx context.Context, evt Event) {
	if !n.settings.Enabled {
		n.bus.Log("debug", "邮件通知未启用", map[string]any{"kind": evt.Kind})
		return
	}
	if err := validateEmailSettings(n.settings); err != nil {
		n.bus.Log("warn", "邮件配置无效", map[string]any{"error": err.Error()})
		return
	}
	if err := n.send(ctx, evt); err != nil {
		n.bus.Log("warn", "邮件发送失败", map[string]any{"error": err.Error(), "kind": evt.Kind})
		return
	}
	n.bus.Log("info", "通知邮件已发送", map[string]any{
		"kind": evt.Kind,
		"to":   strings.TrimSpace(n.settings.Email),
	})
}

func (n *EmailNotifier) send(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, d, err := buildMessage(n.settings, evt)
	if err != nil {
		return err
	}
	return n.dial(d, msg)
}

func buildMessage(settings model.EmailSettings, evt Event) (*gomail.Message, *gomail.Dialer, error) {
	email := strings.TrimSpace(settings.Email)
	host, port, useSSL, err := smtpConfigForEmail(email)
	if err != nil {
		return nil, nil, err
	}
	htmlBody, textBody, err := buildEmailBody(evt)
	if err != nil {
		return nil, nil, err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(email, senderName))
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", buildSubject(evt))
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(host, port, email, strings.TrimSpace(settings.AuthCode))
	d.SSL = useSSL
	return msg, d, nil
}

func validateEmailSettings(s model.EmailSettings) error {
	email := strings.TrimSpace(s.Email)
	if email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email")
	}
	if strings.TrimSpace(s.AuthCode) == "" {
		return errors.New("authCode is required")
	}
	return nil
}

func smtpConfigForEmail(email string) (host string, port int, useSSL bool, err error) {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return "", 0, false, errors.New("invalid email format")
	}
	domain := strings.ToLower(strings.TrimSpace(parts[1]))

	switch {
	case domain == "qq.com" || strings.HasSuffix(domain, ".qq.com") || domain == "foxmail.com" || strings.HasSuffix(domain, ".foxmail.com"):
		return "smtp.qq.com", 465, true, nil
	case domain == "163.com" || strings.HasSuffix(domain, ".163.com") ||
		domain == "126.com" || strings.HasSuffix(domain, ".126.com") ||
		domain == "yeah.net" || strings.HasSuffix(domain, ".yeah.net"):
		return "smtp.163.com", 465, true, nil
	case domain == "gmail.com" || strings.HasSuffix(domain, ".gmail.com"):
		return "smtp.gmail.com", 587, false, nil
	case domain == "outlook.com" || strings.HasSuffix(domain, ".outlook.com") ||
		domain == "hotmail.com" || strings.HasSuffix(domain, ".hotmail.com") ||
		domain == "live.com" || strings.HasSuffix(domain, ".live.com"):
		return "smtp.office365.com", 587, false, nil
	case domain == "sina.com" || strings.HasSuffix(domain, ".sina.com"):
		return "smtp.sina.com", 465, true, nil
	case domain == "aliyun.com" || strings.HasSuffix(domain, ".aliyun.com"):
		return "smtp.aliyun.com", 465, true, nil
	default:
		return "smtp." + domain, 465, true, nil
	}
}

func buildSubject(evt Event) string {
	ok := evt.Code == 0
	switch evt.Kind {
	case EventQRConfirm:
		if ok {
			return "扫码登录已确认"
		}
		return fmt.Sprintf("扫码确认失败（code %d）", evt.Code)
	default:
		if evt.Mid > 0 {
			return fmt.Sprintf("短信登录成功：UID %d", evt.Mid)
		}
		return "短信登录成功"
	}
}

var emailHTMLTpl = template.Must(template.New("email").Parse(`
<!doctype html>
<html lang="zh-CN">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width" />
    <title>{{ .Title }}</title>
  </head>
  <body style="margin:0;padding:0;background:#f6f8fb;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,'Helvetica Neue',Arial,'PingFang SC','Hiragino Sans GB','Microsoft YaHei',sans-serif;">
    <div style="max-width:720px;margin:0 auto;padding:24px;">
      <div style="background:#ffffff;border:1px solid #e6e8ef;border-radius:14px;overflow:hidden;">
        <div style="padding:18px 22px;background:linear-gradient(135deg,#fb7299,#23ade5);color:#ffffff;">
          <div style="font-size:16px;font-weight:700;letter-spacing:.2px;">{{ .Title }}</div>
          <div style="margin-top:6px;font-size:12px;opacity:.95;">{{ .Sender }}通知</div>
        </div>

        <div style="padding:22px;">
          <div style="border:1px solid #eef0f6;border-radius:12px;overflow:hidden;">
            <table role="presentation" cellspacing="0" cellpadding="0" border="0" style="width:100%;border-collapse:collapse;">
              <tbody>
                {{ range .Rows }}
                <tr>
                  <td style="width:160px;padding:12px 14px;background:#fafbff;border-bottom:1px solid #eef0f6;color:#6b7280;font-size:12px;">{{ .K }}</td>
                  <td style="padding:12px 14px;border-bottom:1px solid #eef0f6;color:#111827;font-size:12px;font-weight:600;">{{ .V }}</td>
                </tr>
                {{ end }}
              </tbody>
            </table>
          </div>

          <div style="margin-top:14px;color:#9ca3af;font-size:12px;line-height:1.6;">
            此邮件由系统自动发送；如非本人操作，请尽快修改密码并退出其他设备。
          </div>
        </div>
      </div>
    </div>
  </body>
</html>
`))

type rowKV struct {
	K string
	V string
}

func buildEmailBody(evt Event) (htmlBody string, textBody string, err error) {
	at := time.Now()
	if evt.At > 0 {
		at = time.UnixMilli(evt.At)
	}

	rows := []rowKV{
		{K: "时间", V: at.Format("2006-01-02 15:04:05")},
		{K: "类型", V: kindLabel(evt.Kind)},
	}
	if evt.Mid > 0 {
		rows = append(rows, rowKV{K: "UID", V: fmt.Sprint(evt.Mid)})
	}
	if tel := MaskTel(evt.Tel); tel != "" {
		rows = append(rows, rowKV{K: "手机号", V: tel})
	}
	if evt.Target != "" {
		rows = append(rows, rowKV{K: "二维码", V: evt.Target})
	}
	rows = append(rows, rowKV{K: "结果", V: fmt.Sprintf("code=%d %s", evt.Code, strings.TrimSpace(evt.Message))})

	title := buildSubject(evt)
	data := struct {
		Title  string
		Sender string
		Rows   []rowKV
	}{
		Title:  title,
		Sender: senderName,
		Rows:   rows,
	}

	var buf bytes.Buffer
	if err := emailHTMLTpl.Execute(&buf, data); err != nil {
		return "", "", err
	}

	text := new(strings.Builder)
	text.WriteString(title + "\n")
	for _, r := range rows {
		text.WriteString(r.K + "：" + r.V + "\n")
	}
	return buf.String(), text.String(), nil
}

func kindLabel(kind string) string {
	switch kind {
	case EventQRConfirm:
		return "扫码确认"
	default:
		return "短信登录"
	}
}

// MaskTel 只保留前三位和后四位。
func MaskTel(tel string) string {
	tel = strings.TrimSpace(tel)
	r := []rune(tel)
	if len(r) <= 7 {
		return tel
	}
	return string(r[:3]) + strings.Repeat("*", len(r)-7) + string(r[len(r)-4:])
}
