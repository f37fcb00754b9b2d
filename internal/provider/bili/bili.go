package bili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"bili_passport/internal/config"
	"bili_passport/internal/logbus"
	"bili_passport/internal/model"
	"bili_passport/internal/provider"
	"bili_passport/internal/utils"
)

const (
	PathWebKey          = "/x/passport-login/web/key"
	PathSMSSend         = "/x/passport-login/sms/send"
	PathSMSLogin        = "/x/passport-login/login/sms"
	PathTVQRCodeConfirm = "/x/passport-tv-login/h5/qrcode/confirm"
	PathWebQRConfirm    = "/x/passport-login/h5/qrcode/confirm"
)

// android_hd 客户端固定参数，需要与 UA 中的 build/mobi_app 一致。
const (
	clientBuild   = "2001100"
	clientMobiApp = "android_hd"
	clientChannel = "master"
	clientLocale  = "zh_CN"
	statistics    = `{"appId":5,"platform":3,"version":"2.0.1","abtest":""}`
	traceID       = "11111111111111111111111111111111:1111111111111111:0:0"
)

type Provider struct {
	cfg      config.ProviderConfig
	signer   utils.AppSigner
	identity utils.DeviceIdentity
	bus      *logbus.Bus
	baseURL  *url.URL
	limiter  *rate.Limiter

	client *resty.Client
	jar    *cookiejar.Jar
}

type Options struct {
	Provider config.ProviderConfig
	Limits   config.LimitsConfig
	Signer   utils.AppSigner
	Identity utils.DeviceIdentity
	Bus      *logbus.Bus
}

// New 建立本次运行唯一的会话：一个 cookiejar、一组设备标识。
func New(opts Options) (*Provider, error) {
	u, err := url.Parse(strings.TrimRight(opts.Provider.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse provider.baseURL: %w", err)
	}
	identity := opts.Identity
	if identity.Buvid == "" || identity.DeviceID == "" {
		identity = utils.NewDeviceIdentity()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.Limits.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Limits.QPS), opts.Limits.Burst)
	}
	p := &Provider{
		cfg:      opts.Provider,
		signer:   opts.Signer,
		identity: identity,
		bus:      opts.Bus,
		baseURL:  u,
		limiter:  limiter,
	}
	if err := p.initClient(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) Name() string { return "bili" }

func (p *Provider) Identity() utils.DeviceIdentity { return p.identity }

type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data"`
}

type smsSendData struct {
	CaptchaKey   string `json:"captcha_key"`
	RecaptchaURL string `json:"recaptcha_url"`
}

func (p *Provider) GetWebKey(ctx context.Context) (provider.WebKey, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		Get(PathWebKey)
	if err != nil {
		return provider.WebKey{}, err
	}
	if resp.StatusCode() == http.StatusOK {
		env, err := decodeEnvelope("getWebKey", resp)
		if err != nil {
			return provider.WebKey{}, err
		}
		if env.Code == 0 && !model.IsEmptyJSON(env.Data) {
			return decodeWebKey(env.Data)
		}
	}

	p.log("debug", "web key 回退到签名请求", map[string]any{"status": resp.StatusCode()})
	resp, err = p.client.R().
		SetContext(ctx).
		SetQueryParams(p.signer.Sign(map[string]string{
			"disable_rcmd": "0",
			"local_id":     p.identity.Buvid,
		})).
		Get(PathWebKey)
	if err != nil {
		return provider.WebKey{}, err
	}
	env, err := decodeEnvelope("getWebKey(fallback)", resp)
	if err != nil {
		return provider.WebKey{}, err
	}
	if env.Code != 0 {
		return provider.WebKey{}, &provider.RemoteError{API: "getWebKey", Code: env.Code, Message: env.Message}
	}
	return decodeWebKey(env.Data)
}

func (p *Provider) SendSMSCode(ctx context.Context, req provider.SMSRequest) (provider.SMSResult, error) {
	tsMs := time.Now().UnixMilli()
	payload := map[string]string{
		"build":            clientBuild,
		"buvid":            p.identity.Buvid,
		"c_locale":         clientLocale,
		"channel":          clientChannel,
		"cid":              strconv.Itoa(req.CID),
		"disable_rcmd":     "0",
		"gee_challenge":    req.Captcha.GeeChallenge,
		"gee_seccode":      req.Captcha.GeeSeccode,
		"gee_validate":     req.Captcha.GeeValidate,
		"local_id":         p.identity.Buvid,
		"login_session_id": utils.MD5Hex(p.identity.Buvid + strconv.FormatInt(tsMs, 10)),
		"mobi_app":         clientMobiApp,
		"platform":         "android",
		"recaptcha_token":  req.Captcha.RecaptchaToken,
		"s_locale":         clientLocale,
		"statistics":       statistics,
		"tel":              req.Tel,
		"ts":               strconv.FormatInt(tsMs/1000, 10),
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetFormData(p.signer.Sign(payload)).
		Post(PathSMSSend)
	if err != nil {
		return provider.SMSResult{}, err
	}
	env, err := decodeEnvelope("sendSmsCode", resp)
	if err != nil {
		return provider.SMSResult{}, err
	}
	var data smsSendData
	if !model.IsEmptyJSON(env.Data) {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return provider.SMSResult{}, fmt.Errorf("sendSmsCode: decode data: %w", err)
		}
	}
	return provider.SMSResult{
		Code:         env.Code,
		Message:      env.Message,
		CaptchaKey:   strings.TrimSpace(data.CaptchaKey),
		RecaptchaURL: strings.TrimSpace(data.RecaptchaURL),
		Raw:          resp.Body(),
	}, nil
}

func (p *Provider) LoginBySMS(ctx context.Context, req provider.LoginRequest) (provider.LoginResult, error) {
	dt, err := utils.EncryptPayload(req.PublicKeyPEM, utils.RandomString(16))
	if err != nil {
		return provider.LoginResult{}, fmt.Errorf("loginBySms: encrypt dt: %w", err)
	}
	payload := map[string]string{
		"bili_local_id":   p.identity.DeviceID,
		"build":           clientBuild,
		"buvid":           p.identity.Buvid,
		"c_locale":        clientLocale,
		"captcha_key":     req.CaptchaKey,
		"channel":         clientChannel,
		"cid":             strconv.Itoa(req.CID),
		"code":            req.SMSCode,
		"device":          "phone",
		"device_id":       p.identity.DeviceID,
		"device_name":     "vivo",
		"device_platform": "Android14vivo",
		"disable_rcmd":    "0",
		"dt":              dt,
		"from_pv":         "main.my-information.my-login.0.click",
		"from_url":        url.QueryEscape("bilibili://user_center/mine"),
		"local_id":        p.identity.Buvid,
		"mobi_app":        clientMobiApp,
		"platform":        "android",
		"s_locale":        clientLocale,
		"statistics":      statistics,
		"tel":             req.Tel,
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetFormData(p.signer.Sign(payload)).
		Post(PathSMSLogin)
	if err != nil {
		return provider.LoginResult{}, err
	}
	env, err := decodeEnvelope("loginBySms", resp)
	if err != nil {
		return provider.LoginResult{}, err
	}
	var data model.LoginData
	if !model.IsEmptyJSON(env.Data) {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return provider.LoginResult{}, fmt.Errorf("loginBySms: decode data: %w", err)
		}
	}
	return provider.LoginResult{
		Code:    env.Code,
		Message: env.Message,
		Data:    data,
		Raw:     resp.Body(),
	}, nil
}

func (p *Provider) ConfirmQRCode(ctx context.Context, cred model.Credential, target provider.QRTarget) (provider.ConfirmResult, error) {
	csrf := cred.CSRF()
	if csrf == "" {
		return provider.ConfirmResult{}, provider.MissingField("credential cookies lack %s (csrf)", model.CSRFCookieName)
	}
	p.importCookies(cred.Cookies)

	path := PathTVQRCodeConfirm
	form := map[string]string{
		"auth_code":     target.AuthCode,
		"csrf":          csrf,
		"scanning_type": "1",
	}
	if target.QRCodeKey != "" {
		path = PathWebQRConfirm
		form = map[string]string{
			"qrcode_key": target.QRCodeKey,
			"csrf":       csrf,
			"source":     "main-fe-header",
		}
	}

	origin := "https://passport.bilibili.com"
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Referer", origin+"/").
		SetHeader("Origin", origin).
		SetFormData(form).
		Post(path)
	if err != nil {
		return provider.ConfirmResult{}, err
	}
	env, err := decodeEnvelope("qrcodeConfirm", resp)
	if err != nil {
		return provider.ConfirmResult{}, err
	}
	return provider.ConfirmResult{
		Code:    env.Code,
		Message: env.Message,
		Raw:     resp.Body(),
	}, nil
}

func (p *Provider) initClient() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}

	client := resty.New().
		SetBaseURL(p.baseURL.String()).
		SetTimeout(p.cfg.Timeout()).
		SetCookieJar(jar).
		SetRetryCount(p.cfg.Retry.Count).
		SetRetryWaitTime(p.cfg.Retry.Wait()).
		SetRetryMaxWaitTime(p.cfg.Retry.MaxWait()).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			if r == nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	if p.cfg.Proxy != "" {
		client.SetProxy(p.cfg.Proxy)
	}

	client.SetHeaders(map[string]string{
		"User-Agent":         utils.NormalizeAppUserAgent(p.cfg.UserAgent),
		"Accept":             "application/json, text/plain, */*",
		"Accept-Language":    "zh-CN,zh;q=0.9",
		"buvid":              p.identity.Buvid,
		"env":                "prod",
		"app-key":            clientMobiApp,
		"x-bili-trace-id":    traceID,
		"x-bili-aurora-eid":  "",
		"x-bili-aurora-zone": "",
		"bili-http-engine":   "cronet",
	})

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if err := p.limiter.Wait(req.Context()); err != nil {
			return err
		}
		p.log("debug", "http request", map[string]any{
			"method": req.Method,
			"url":    req.URL,
		})
		return nil
	})

	p.client = client
	p.jar = jar
	return nil
}

// importCookies 把凭证中的 cookie 放进 jar。base URL 不在 cookieDomain 之下时（例如本地 mock）退化为 host-only。
func (p *Provider) importCookies(cookies map[string]string) {
	u := *p.baseURL
	u.Path = "/"
	domain := p.cfg.CookieDomain
	if domain != "" && !hostInDomain(u.Hostname(), domain) {
		domain = ""
	}
	p.jar.SetCookies(&u, model.CookiesToHTTP(cookies, domain))
}

func (p *Provider) log(level, msg string, fields map[string]any) {
	if p.bus != nil {
		p.bus.Log(level, msg, fields)
	}
}

func hostInDomain(host, domain string) bool {
	d := strings.TrimPrefix(strings.ToLower(domain), ".")
	h := strings.ToLower(host)
	return h == d || strings.HasSuffix(h, "."+d)
}

func decodeEnvelope(api string, resp *resty.Response) (apiEnvelope, error) {
	body := resp.Body()
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return apiEnvelope{}, provider.NewResponseFormatError(api, resp.StatusCode(), resp.Header().Get("Content-Type"), body)
	}
	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return apiEnvelope{}, provider.NewResponseFormatError(api, resp.StatusCode(), resp.Header().Get("Content-Type"), body)
	}
	return env, nil
}

func decodeWebKey(raw json.RawMessage) (provider.WebKey, error) {
	var key provider.WebKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return provider.WebKey{}, fmt.Errorf("getWebKey: decode data: %w", err)
	}
	if strings.TrimSpace(key.Key) == "" {
		return provider.WebKey{}, provider.MissingField("getWebKey response has no key")
	}
	return key, nil
}
