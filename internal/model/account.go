package model

import "time"

// Account 是 sqlite 归档里的一行：每个 mid 只保留最近一次登录的凭证。
type Account struct {
	Mid        int64      `json:"mid"`
	Tel        string     `json:"tel,omitempty"`
	Credential Credential `json:"credential"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
