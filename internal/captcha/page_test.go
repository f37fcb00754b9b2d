package captcha

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bili_passport/internal/logbus"
	"bili_passport/internal/model"
)

func TestPageResolver_SolveGeetest(t *testing.T) {
	r := NewPageResolver("127.0.0.1:0", true, 5*time.Second, NewPrompter(strings.NewReader(""), io.Discard), nil)

	pageBody := make(chan string, 1)
	r.openURL = func(pageURL string) error {
		go func() {
			resp, err := http.Get(pageURL)
			if err != nil {
				pageBody <- err.Error()
				return
			}
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			pageBody <- string(b)

			bad, err := http.Post(pageURL+"submit", "application/json", strings.NewReader(`{"validate":""}`))
			if err == nil {
				bad.Body.Close()
			}
			ok, err := http.Post(pageURL+"submit", "application/json", strings.NewReader(`{"validate":"v1","seccode":"v1|jordan"}`))
			if err == nil {
				ok.Body.Close()
			}
		}()
		return nil
	}

	info, err := r.SolveGeetest(context.Background(), model.CaptchaInfo{RecaptchaToken: "tok", GeeGT: "gt-1", GeeChallenge: "ch-1"})
	require.NoError(t, err)
	assert.Equal(t, "tok", info.RecaptchaToken)
	assert.Equal(t, "v1", info.GeeValidate)
	assert.Equal(t, "v1|jordan", info.GeeSeccode)

	body := <-pageBody
	assert.Contains(t, body, "initGeetest")
	assert.Contains(t, body, "gt-1")
	assert.Contains(t, body, "ch-1")
}

func TestPageResolver_Timeout(t *testing.T) {
	r := NewPageResolver("127.0.0.1:0", false, 50*time.Millisecond, nil, nil)
	_, err := r.SolveGeetest(context.Background(), model.CaptchaInfo{GeeGT: "gt", GeeChallenge: "ch"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not completed")
}

func TestPageResolver_MissingChallenge(t *testing.T) {
	r := NewPageResolver("127.0.0.1:0", false, time.Second, nil, nil)
	_, err := r.SolveGeetest(context.Background(), model.CaptchaInfo{GeeGT: "gt"})
	assert.Error(t, err)
}

func TestPageResolver_SMSCodeUsesPrompt(t *testing.T) {
	r := NewPageResolver("127.0.0.1:0", false, time.Second, NewPrompter(strings.NewReader("111222\n"), io.Discard), nil)
	code, err := r.SMSCode(context.Background(), "13800000000")
	require.NoError(t, err)
	assert.Equal(t, "111222", code)
}

func TestPageResolver_StreamsProgress(t *testing.T) {
	bus := logbus.New(50)
	defer bus.Close()
	r := NewPageResolver("127.0.0.1:0", true, 5*time.Second, nil, bus)

	got := make(chan logbus.Message, 1)
	r.openURL = func(pageURL string) error {
		go func() {
			wsURL := "ws" + strings.TrimPrefix(pageURL, "http") + "ws"
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			if err == nil {
				var msg logbus.Message
				_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
				if conn.ReadJSON(&msg) == nil {
					got <- msg
				}
				conn.Close()
			}
			resp, err := http.Post(pageURL+"submit", "application/json", strings.NewReader(`{"validate":"v","seccode":"s"}`))
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	_, err := r.SolveGeetest(context.Background(), model.CaptchaInfo{GeeGT: "gt", GeeChallenge: "ch"})
	require.NoError(t, err)

	select {
	case msg := <-got:
		assert.Equal(t, "log", msg.Type)
	case <-time.After(3 * time.Second):
		t.Fatal("no progress message streamed")
	}
}
