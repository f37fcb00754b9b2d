package utils

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSigner() AppSigner {
	return AppSigner{
		AppKey: "dfca71928277209b",
		AppSec: "b5475a8825547a4fc26c7d518eaaa02e",
		Now:    func() time.Time { return time.Unix(1700000000, 0) },
	}
}

// referenceSign 独立地按规则手工计算 sign。
func referenceSign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(params[k]))
	}
	sum := md5.Sum([]byte(strings.Join(parts, "&") + secret))
	return hex.EncodeToString(sum[:])
}

func TestAppSigner_Sign(t *testing.T) {
	s := fixedSigner()
	in := map[string]string{
		"tel":         "13800000000",
		"cid":         "86",
		"statistics":  `{"appId":5,"platform":3,"version":"2.0.1","abtest":""}`,
		"gee_seccode": "",
		"c_locale":    "zh_CN",
		"note":        "a b~c/d",
	}

	out := s.Sign(in)

	assert.Equal(t, "dfca71928277209b", out["appkey"])
	assert.Equal(t, "1700000000", out["ts"])
	_, hasEmpty := out["gee_seccode"]
	assert.False(t, hasEmpty, "empty values are dropped")
	_, mutated := in["appkey"]
	assert.False(t, mutated, "input map is not modified")

	withoutSign := make(map[string]string, len(out))
	for k, v := range out {
		if k != "sign" {
			withoutSign[k] = v
		}
	}
	assert.Equal(t, referenceSign(withoutSign, s.AppSec), out["sign"])
	assert.Len(t, out["sign"], 32)
}

func TestAppSigner_Deterministic(t *testing.T) {
	s := fixedSigner()
	in := map[string]string{"b": "2", "a": "1"}
	assert.Equal(t, s.Sign(in), s.Sign(in))

	other := s
	other.AppSec = "another-secret"
	assert.NotEqual(t, s.Sign(in)["sign"], other.Sign(in)["sign"])

	later := s
	later.Now = func() time.Time { return time.Unix(1700000001, 0) }
	assert.NotEqual(t, s.Sign(in)["sign"], later.Sign(in)["sign"])
}

func TestAppSigner_Verify(t *testing.T) {
	s := fixedSigner()
	signed := s.Sign(map[string]string{"local_id": "X", "disable_rcmd": "0"})
	require.True(t, s.Verify(signed))

	signed["local_id"] = "Y"
	assert.False(t, s.Verify(signed))
	assert.False(t, s.Verify(map[string]string{"a": "1"}))
}

func TestMD5Hex(t *testing.T) {
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", MD5Hex("abc"))
}
