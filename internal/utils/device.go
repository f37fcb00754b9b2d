package utils

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeviceIdentity 每次运行生成一次，之后所有请求复用。
type DeviceIdentity struct {
	Buvid    string
	DeviceID string
}

func NewDeviceIdentity() DeviceIdentity {
	return DeviceIdentity{
		Buvid:    GenBuvid3(),
		DeviceID: GenDeviceID(time.Now()),
	}
}

// GenBuvid3: 大写 UUID + 5 位随机数 + "infoc"。
func GenBuvid3() string {
	return fmt.Sprintf("%s%05dinfoc", strings.ToUpper(uuid.NewString()), mrand.IntN(100000))
}

// GenDeviceID: md5(16 随机字节 + BCD 时间 + 8 随机字节) 的 hex，再拼上一字节校验和的 hex。
func GenDeviceID(now time.Time) string {
	head := make([]byte, 16)
	tail := make([]byte, 8)
	_, _ = rand.Read(head)
	_, _ = rand.Read(tail)
	return deviceIDFrom(head, now, tail)
}

func deviceIDFrom(head []byte, now time.Time, tail []byte) string {
	buf := make([]byte, 0, len(head)+7+len(tail))
	buf = append(buf, head...)
	buf = append(buf,
		dec2bcd((now.Year()/100)%100),
		dec2bcd(now.Year()%100),
		dec2bcd(int(now.Month())),
		dec2bcd(now.Day()),
		dec2bcd(now.Hour()),
		dec2bcd(now.Minute()),
		dec2bcd(now.Second()),
	)
	buf = append(buf, tail...)

	var sum int
	for _, b := range buf {
		sum += int(b)
	}
	digest := md5.Sum(buf)
	return hex.EncodeToString(digest[:]) + fmt.Sprintf("%02x", sum&0xFF)
}

func dec2bcd(n int) byte {
	return byte(((n / 10) << 4) | (n % 10))
}
