package mockpassport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bili_passport/internal/utils"
)

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	opts.AppKey = "key"
	opts.AppSec = "sec"
	opts.KeyBits = 1024
	s, err := New(opts)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func postForm(t *testing.T, client *http.Client, target string, form url.Values, cookies ...*http.Cookie) map[string]any {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func toValues(m map[string]string) url.Values {
	v := url.Values{}
	for k, val := range m {
		v.Set(k, val)
	}
	return v
}

func TestSMSSend_RejectsBadSign(t *testing.T) {
	s, srv := newTestServer(t, Options{})
	signed := utils.NewAppSigner("key", "other").Sign(map[string]string{"tel": "13800000000", "cid": "86"})

	out := postForm(t, srv.Client(), srv.URL+"/x/passport-login/sms/send", toValues(signed))
	assert.EqualValues(t, CodeSignInvalid, out["code"])
	assert.EqualValues(t, 0, s.SMSSends())
}

func TestSMSSend_CaptchaThenAccepted(t *testing.T) {
	s, srv := newTestServer(t, Options{RequireCaptcha: true})
	signer := utils.NewAppSigner("key", "sec")
	target := srv.URL + "/x/passport-login/sms/send"

	out := postForm(t, srv.Client(), target, toValues(signer.Sign(map[string]string{"tel": "13800000000", "cid": "86"})))
	require.EqualValues(t, CodeNeedCaptcha, out["code"])
	data := out["data"].(map[string]any)
	assert.Contains(t, data["recaptcha_url"], "gee_gt=")

	out = postForm(t, srv.Client(), target, toValues(signer.Sign(map[string]string{
		"tel":          "13800000000",
		"cid":          "86",
		"gee_validate": "v",
		"gee_seccode":  "v|jordan",
	})))
	require.EqualValues(t, CodeOK, out["code"])
	assert.NotEmpty(t, out["data"].(map[string]any)["captcha_key"])
	assert.EqualValues(t, 2, s.SMSSends())
}

func TestSMSLogin_UnknownCaptchaKey(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	signed := utils.NewAppSigner("key", "sec").Sign(map[string]string{
		"tel":         "13800000000",
		"code":        "123456",
		"captcha_key": "nope",
	})

	out := postForm(t, srv.Client(), srv.URL+"/x/passport-login/login/sms", toValues(signed))
	assert.EqualValues(t, CodeCaptchaKeyWrong, out["code"])
}

func TestConfirm_ChecksSessionAndCSRF(t *testing.T) {
	s, srv := newTestServer(t, Options{})
	target := srv.URL + "/x/passport-tv-login/h5/qrcode/confirm"
	form := url.Values{"auth_code": {"A1"}, "csrf": {"jct"}, "scanning_type": {"1"}}

	out := postForm(t, srv.Client(), target, form)
	assert.EqualValues(t, -101, out["code"])

	out = postForm(t, srv.Client(), target, form,
		&http.Cookie{Name: "SESSDATA", Value: "s"},
		&http.Cookie{Name: "bili_jct", Value: "other"})
	assert.EqualValues(t, CodeCsrfInvalid, out["code"])

	out = postForm(t, srv.Client(), target, form,
		&http.Cookie{Name: "SESSDATA", Value: "s"},
		&http.Cookie{Name: "bili_jct", Value: "jct"})
	assert.EqualValues(t, CodeOK, out["code"])
	require.Len(t, s.Confirmed(), 1)
	assert.Equal(t, "A1", s.Confirmed()[0].Get("auth_code"))
}

func TestWebKey_SignedOnly(t *testing.T) {
	_, srv := newTestServer(t, Options{SignedWebKeyOnly: true})

	resp, err := srv.Client().Get(srv.URL + "/x/passport-login/web/key")
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	assert.EqualValues(t, CodeBadRequest, out["code"])

	q := toValues(utils.NewAppSigner("key", "sec").Sign(map[string]string{"disable_rcmd": "0"}))
	resp, err = srv.Client().Get(srv.URL + "/x/passport-login/web/key?" + q.Encode())
	require.NoError(t, err)
	out = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	require.EqualValues(t, CodeOK, out["code"])
	assert.Contains(t, out["data"].(map[string]any)["key"], "BEGIN PUBLIC KEY")
}
