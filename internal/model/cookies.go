package model

import (
	"net/http"
	"sort"
	"strings"
)

const (
	CSRFCookieName    = "bili_jct"
	SessionCookieName = "SESSDATA"
)

// CookiesFromInfo 把 cookie_info.cookies 摊平为 name->value，空名字丢弃，同名后者覆盖。
func CookiesFromInfo(in []CookieInfoEntry) map[string]string {
	out := make(map[string]string, len(in))
	for _, c := range in {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		out[name] = c.Value
	}
	return out
}

// CookiesToHTTP 按名字排序生成 http.Cookie，domain 为空时由 cookiejar 视为 host-only。
func CookiesToHTTP(in map[string]string, domain string) []*http.Cookie {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		out = append(out, &http.Cookie{
			Name:   name,
			Value:  in[name],
			Path:   "/",
			Domain: domain,
		})
	}
	return out
}
