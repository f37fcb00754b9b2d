package utils

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"
)

// AppSigner 实现 App 接口的 sign 规则：
// 1) 丢弃空值，补上 appkey 与秒级 ts
// 2) 按 key 字典序拼成 urlencode 串（空格为 +）
// 3) 末尾拼接 appsec 后取 md5 hex
type AppSigner struct {
	AppKey string
	AppSec string
	Now    func() time.Time
}

func NewAppSigner(appKey, appSec string) AppSigner {
	return AppSigner{AppKey: appKey, AppSec: appSec, Now: time.Now}
}

// Sign 返回新的参数表，原表不修改。
func (s AppSigner) Sign(params map[string]string) map[string]string {
	out := make(map[string]string, len(params)+3)
	for k, v := range params {
		if v == "" {
			continue
		}
		out[k] = v
	}
	out["appkey"] = s.AppKey
	out["ts"] = strconv.FormatInt(s.now().Unix(), 10)
	out["sign"] = s.digest(out)
	return out
}

// Verify 校验一组已签名参数，供 mock 服务端与测试使用。
func (s AppSigner) Verify(params map[string]string) bool {
	got := params["sign"]
	if got == "" {
		return false
	}
	return s.digest(params) == got
}

func (s AppSigner) digest(params map[string]string) string {
	values := make(url.Values, len(params))
	for k, v := range params {
		if k == "sign" {
			continue
		}
		values.Set(k, v)
	}
	sum := md5.Sum([]byte(values.Encode() + s.AppSec))
	return hex.EncodeToString(sum[:])
}

func (s AppSigner) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// MD5Hex 是各处拼 login_session_id 之类字段时用的小工具。
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
