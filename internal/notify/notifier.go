package notify

import "context"

const (
	EventLogin     = "login"
	EventQRConfirm = "qr_confirm"
)

type Event struct {
	Kind    string `json:"kind"`
	At      int64  `json:"atMs"`
	Mid     int64  `json:"mid,omitempty"`
	Tel     string `json:"tel,omitempty"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	// Target 是扫码确认时的 auth_code / qrcode_key。
	Target string `json:"target,omitempty"`
}

// Notifier 的实现自己处理失败（记日志），调用方不关心结果。
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}
