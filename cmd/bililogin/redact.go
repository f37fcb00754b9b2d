package main

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var secretPaths = []string{
	"data.token_info.access_token",
	"data.token_info.refresh_token",
}

// redactResponse 打印前遮掉 token 和 cookie 值，只保留前 4 位。
func redactResponse(raw []byte) []byte {
	if !gjson.ValidBytes(raw) {
		return raw
	}
	out := raw
	for _, path := range secretPaths {
		v := gjson.GetBytes(out, path)
		if v.Type != gjson.String {
			continue
		}
		if next, err := sjson.SetBytes(out, path, maskSecret(v.String())); err == nil {
			out = next
		}
	}
	n := int(gjson.GetBytes(out, "data.cookie_info.cookies.#").Int())
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("data.cookie_info.cookies.%d.value", i)
		v := gjson.GetBytes(out, path)
		if v.Type != gjson.String {
			continue
		}
		if next, err := sjson.SetBytes(out, path, maskSecret(v.String())); err == nil {
			out = next
		}
	}
	return out
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", 8)
}
