package provider

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseFormatError(t *testing.T) {
	err := NewResponseFormatError("getWebKey", 502, "text/html", []byte("not json"))
	msg := err.Error()
	assert.Contains(t, msg, "502")
	assert.Contains(t, msg, "not json")
	assert.Contains(t, msg, "text/html")
	assert.True(t, IsResponseFormatError(fmt.Errorf("wrapped: %w", err)))
}

func TestResponseFormatError_TruncatesAndEscapes(t *testing.T) {
	body := "line1\nline2\n" + strings.Repeat("中", 500)
	err := NewResponseFormatError("sendSmsCode", 200, "text/html", []byte(body))
	assert.Equal(t, 400, len([]rune(strings.ReplaceAll(err.Body, `\n`, "\n"))))
	assert.True(t, strings.HasPrefix(err.Body, `line1\nline2\n`))
}

func TestMissingField(t *testing.T) {
	err := MissingField("credential cookies lack %s", "bili_jct")
	assert.True(t, errors.Is(err, ErrMissingField))
	assert.True(t, IsMissingField(err))
	assert.Contains(t, err.Error(), "bili_jct")
}

func TestRemoteError(t *testing.T) {
	err := fmt.Errorf("login: %w", &RemoteError{API: "loginBySms", Code: 86206, Message: "验证码错误"})
	assert.True(t, IsRemoteError(err))
	assert.Contains(t, err.Error(), "86206")
	assert.False(t, IsRemoteError(errors.New("plain")))
}
