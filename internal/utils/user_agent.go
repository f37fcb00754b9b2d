package utils

import "strings"

const defaultAndroidHDUserAgent = "Mozilla/5.0 BiliDroid/2.0.1 (bbcallen@gmail.com) os/android model/android_hd mobi_app/android_hd build/2001100 channel/master innerVer/2001100 osVer/15 network/2"

// DefaultAndroidHDUserAgent 返回 android_hd 客户端的 UA，签名接口校验 UA 与 mobi_app/build 是否匹配。
func DefaultAndroidHDUserAgent() string {
	return defaultAndroidHDUserAgent
}

// NormalizeAppUserAgent 当入参为空或不像 BiliDroid UA 时返回默认 UA。
func NormalizeAppUserAgent(ua string) string {
	v := strings.TrimSpace(ua)
	if v == "" {
		return defaultAndroidHDUserAgent
	}
	if looksLikeAppUA(v) {
		return v
	}
	return defaultAndroidHDUserAgent
}

func looksLikeAppUA(ua string) bool {
	s := strings.ToLower(ua)
	if strings.Contains(s, "bilidroid") || strings.Contains(s, "bili-universal") {
		return true
	}
	return strings.Contains(s, "mobi_app/")
}
