package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingField 表示请求或本地数据缺少必需字段（凭证里没有 bili_jct、链接里没有 auth_code 等）。
var ErrMissingField = errors.New("missing field")

// MissingField wraps ErrMissingField with a description.
func MissingField(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMissingField, fmt.Sprintf(format, args...))
}

const bodyPreviewLimit = 400

// ResponseFormatError 表示接口返回的不是 JSON（常见于代理/风控返回 HTML）。
type ResponseFormatError struct {
	API         string
	Status      int
	ContentType string
	Body        string
}

func NewResponseFormatError(api string, status int, contentType string, body []byte) *ResponseFormatError {
	return &ResponseFormatError{
		API:         api,
		Status:      status,
		ContentType: contentType,
		Body:        bodyPreview(body),
	}
}

func (e *ResponseFormatError) Error() string {
	return fmt.Sprintf("%s returned non-JSON response: HTTP %d, Content-Type=%s, body[:%d]=%s",
		e.API, e.Status, e.ContentType, bodyPreviewLimit, e.Body)
}

// RemoteError 表示接口返回了非 0 的业务 code。
type RemoteError struct {
	API     string
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s rejected: code=%d", e.API, e.Code)
	}
	return fmt.Sprintf("%s rejected: code=%d message=%s", e.API, e.Code, e.Message)
}

func IsMissingField(err error) bool {
	return errors.Is(err, ErrMissingField)
}

func IsResponseFormatError(err error) bool {
	var fe *ResponseFormatError
	return errors.As(err, &fe)
}

func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

func bodyPreview(body []byte) string {
	runes := []rune(string(body))
	if len(runes) > bodyPreviewLimit {
		runes = runes[:bodyPreviewLimit]
	}
	return strings.ReplaceAll(string(runes), "\n", `\n`)
}
