package utils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"net/url"
	"strings"
)

const randomAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// EncryptPayload 用 web key 接口返回的 PEM 公钥对 input 做 RSA PKCS#1 v1.5 加密，
// 结果先 base64 再整体百分号转义（登录接口的 dt 字段就是这个格式，随后还会被表单编码一次）。
func EncryptPayload(publicKeyPEM, input string) (string, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return "", err
	}
	enc, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(input))
	if err != nil {
		return "", fmt.Errorf("rsa encrypt: %w", err)
	}
	return url.QueryEscape(base64.StdEncoding.EncodeToString(enc)), nil
}

// DecryptPayload 是 EncryptPayload 的逆过程，mock 服务端用来校验 dt。
func DecryptPayload(priv *rsa.PrivateKey, payload string) (string, error) {
	b64, err := url.QueryUnescape(payload)
	if err != nil {
		return "", err
	}
	enc, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", err
	}
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, priv, enc)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func ParsePublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(publicKeyPEM)))
	if block == nil {
		return nil, errors.New("invalid public key: no PEM block")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		if rsaKey, errPKCS1 := x509.ParsePKCS1PublicKey(block.Bytes); errPKCS1 == nil {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("invalid public key: not RSA")
	}
	return rsaKey, nil
}

// EncodePublicKey 把公钥编码成 PKIX PEM。
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// RandomString 返回由字母数字组成的随机串。
func RandomString(n int) string {
	if n <= 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(randomAlphabet[mrand.IntN(len(randomAlphabet))])
	}
	return sb.String()
}
