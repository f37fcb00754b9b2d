// Package mockpassport 是一个本地假 passport 服务：校验签名、解密 dt、按配置触发人机验证，
// 用于测试和在不碰真实账号的情况下跑通整个流程。
package mockpassport

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"bili_passport/internal/model"
	"bili_passport/internal/utils"
)

const (
	CodeOK              = 0
	CodeBadRequest      = -400
	CodeSignInvalid     = -3
	CodeCsrfInvalid     = -111
	CodeNeedCaptcha     = 86207
	CodeSMSCodeInvalid  = 86206
	CodeCaptchaKeyWrong = 1006
	CodeQRCodeNotFound  = 86038
)

type Options struct {
	AppKey string
	AppSec string
	// SMSCode 是登录时要求的验证码。
	SMSCode string
	// RequireCaptcha 为 true 时，第一次未携带极验结果的发短信请求会被要求人机验证。
	RequireCaptcha bool
	// SignedWebKeyOnly 为 true 时，未签名的 web key 请求返回非 0 code，用来走回退分支。
	SignedWebKeyOnly bool
	// OmitCookieInfo 为 true 时登录返回里不带 cookie_info。
	OmitCookieInfo bool
	Mid            int64
	KeyBits        int
}

type Server struct {
	opts   Options
	signer utils.AppSigner
	priv   *rsa.PrivateKey
	pubPEM string

	mu          sync.Mutex
	captchaKeys map[string]string
	confirmed   []url.Values

	smsSends atomic.Int64
}

func New(opts Options) (*Server, error) {
	if opts.SMSCode == "" {
		opts.SMSCode = "123456"
	}
	if opts.Mid == 0 {
		opts.Mid = 10086
	}
	if opts.KeyBits <= 0 {
		opts.KeyBits = 2048
	}
	priv, err := rsa.GenerateKey(rand.Reader, opts.KeyBits)
	if err != nil {
		return nil, err
	}
	pubPEM, err := utils.EncodePublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Server{
		opts:        opts,
		signer:      utils.AppSigner{AppKey: opts.AppKey, AppSec: opts.AppSec},
		priv:        priv,
		pubPEM:      pubPEM,
		captchaKeys: make(map[string]string),
	}, nil
}

// ExpectedSMSCode 返回登录时要求的短信验证码。
func (s *Server) ExpectedSMSCode() string { return s.opts.SMSCode }

// SMSSends 返回收到的发短信请求次数。
func (s *Server) SMSSends() int64 { return s.smsSends.Load() }

// Confirmed 返回收到的扫码确认请求表单。
func (s *Server) Confirmed() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]url.Values, len(s.confirmed))
	copy(out, s.confirmed)
	return out
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})
	mux.HandleFunc("/x/passport-login/web/key", s.handleWebKey)
	mux.HandleFunc("/x/passport-login/sms/send", s.handleSMSSend)
	mux.HandleFunc("/x/passport-login/login/sms", s.handleSMSLogin)
	mux.HandleFunc("/x/passport-tv-login/h5/qrcode/confirm", s.handleConfirm("auth_code"))
	mux.HandleFunc("/x/passport-login/h5/qrcode/confirm", s.handleConfirm("qrcode_key"))
	return mux
}

func (s *Server) handleWebKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	params := flatten(r.URL.Query())
	if s.opts.SignedWebKeyOnly && !s.signer.Verify(params) {
		writeJSON(w, envelope(CodeBadRequest, "请求错误", nil))
		return
	}
	writeJSON(w, envelope(CodeOK, "0", map[string]any{
		"hash": utils.RandomString(16),
		"key":  s.pubPEM,
	}))
}

func (s *Server) handleSMSSend(w http.ResponseWriter, r *http.Request) {
	params, ok := s.signedForm(w, r)
	if !ok {
		return
	}
	s.smsSends.Add(1)

	if params["tel"] == "" || params["cid"] == "" {
		writeJSON(w, envelope(CodeBadRequest, "tel/cid required", nil))
		return
	}
	if s.opts.RequireCaptcha && (params["gee_validate"] == "" || params["gee_seccode"] == "") {
		q := url.Values{}
		q.Set("ct", "geetest")
		q.Set("recaptcha_token", "mock_recaptcha_"+utils.RandomString(8))
		q.Set("gee_gt", "mock_gt_"+utils.RandomString(8))
		q.Set("gee_challenge", "mock_challenge_"+utils.RandomString(8))
		writeJSON(w, envelope(CodeNeedCaptcha, "需要人机验证", map[string]any{
			"captcha_key":   "",
			"recaptcha_url": "https://www.bilibili.com/h5/project-msg-auth/verify?" + q.Encode(),
		}))
		return
	}

	key := utils.RandomString(32)
	s.mu.Lock()
	s.captchaKeys[key] = params["tel"]
	s.mu.Unlock()
	writeJSON(w, envelope(CodeOK, "0", map[string]any{
		"captcha_key":   key,
		"recaptcha_url": "",
	}))
}

func (s *Server) handleSMSLogin(w http.ResponseWriter, r *http.Request) {
	params, ok := s.signedForm(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	tel, known := s.captchaKeys[params["captcha_key"]]
	s.mu.Unlock()
	if !known || tel != params["tel"] {
		writeJSON(w, envelope(CodeCaptchaKeyWrong, "captcha_key 无效", nil))
		return
	}
	if params["code"] != s.opts.SMSCode {
		writeJSON(w, envelope(CodeSMSCodeInvalid, "短信验证码错误", nil))
		return
	}
	plain, err := utils.DecryptPayload(s.priv, params["dt"])
	if err != nil || len(plain) != 16 {
		writeJSON(w, envelope(CodeBadRequest, "dt 解密失败", nil))
		return
	}
	if params["device_id"] == "" || params["device_id"] != params["bili_local_id"] {
		writeJSON(w, envelope(CodeBadRequest, "device_id 无效", nil))
		return
	}

	session := "mock_sess_" + utils.RandomString(16)
	csrf := utils.MD5Hex(session)
	data := map[string]any{
		"status":  0,
		"message": "",
		"url":     "",
		"token_info": map[string]any{
			"mid":           s.opts.Mid,
			"access_token":  "mock_at_" + utils.RandomString(16),
			"refresh_token": "mock_rt_" + utils.RandomString(16),
			"expires_in":    15552000,
		},
	}
	if !s.opts.OmitCookieInfo {
		data["cookie_info"] = map[string]any{
			"cookies": []map[string]any{
				{"name": "SESSDATA", "value": session, "http_only": 1, "expires": 1900000000, "secure": 1},
				{"name": "bili_jct", "value": csrf, "http_only": 0, "expires": 1900000000, "secure": 0},
				{"name": "DedeUserID", "value": fmt.Sprint(s.opts.Mid), "http_only": 0, "expires": 1900000000, "secure": 0},
			},
			"domains": []string{".bilibili.com"},
		}
	}
	writeJSON(w, envelope(CodeOK, "0", data))
}

func (s *Server) handleConfirm(field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sess, errSess := r.Cookie(model.SessionCookieName)
		jct, errJct := r.Cookie(model.CSRFCookieName)
		if errSess != nil || errJct != nil || sess.Value == "" {
			writeJSON(w, envelope(-101, "账号未登录", nil))
			return
		}
		if r.PostForm.Get("csrf") != jct.Value {
			writeJSON(w, envelope(CodeCsrfInvalid, "csrf 校验失败", nil))
			return
		}
		value := strings.TrimSpace(r.PostForm.Get(field))
		if value == "" || strings.HasPrefix(value, "expired") {
			writeJSON(w, envelope(CodeQRCodeNotFound, "二维码已失效", nil))
			return
		}
		s.mu.Lock()
		s.confirmed = append(s.confirmed, r.PostForm)
		s.mu.Unlock()
		writeJSON(w, envelope(CodeOK, "0", nil))
	}
}

// signedForm 解析表单并校验 appkey/sign。
func (s *Server) signedForm(w http.ResponseWriter, r *http.Request) (map[string]string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	params := flatten(r.PostForm)
	if params["appkey"] != s.opts.AppKey || !s.signer.Verify(params) {
		writeJSON(w, envelope(CodeSignInvalid, "API校验密匙错误", nil))
		return nil, false
	}
	return params, true
}

func flatten(v url.Values) map[string]string {
	out := make(map[string]string, len(v))
	for k := range v {
		out[k] = v.Get(k)
	}
	return out
}

func envelope(code int, message string, data any) map[string]any {
	return map[string]any{
		"code":    code,
		"message": message,
		"ttl":     1,
		"data":    data,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
