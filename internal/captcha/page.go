package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/skratchdot/open-golang/open"

	"bili_passport/internal/logbus"
	"bili_passport/internal/model"
	"bili_passport/internal/ws"
)

var geetestPageTpl = template.Must(template.New("geetest").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1, maximum-scale=1, user-scalable=no" />
    <title>Geetest</title>
    <style>
      body {
        margin: 0;
        background: #f5f5f5;
        font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', 'PingFang SC', 'Hiragino Sans GB', 'Microsoft YaHei', sans-serif;
        display: flex;
        align-items: center;
        justify-content: center;
        height: 100vh;
        color: #303133;
      }
      .card {
        width: min(420px, 92vw);
        background: #fff;
        border-radius: 12px;
        padding: 18px 16px 20px;
        box-shadow: 0 6px 30px rgba(0, 0, 0, 0.08);
        text-align: center;
      }
      .title {
        font-size: 18px;
        font-weight: 600;
        margin-bottom: 12px;
      }
      #progress {
        margin-top: 8px;
        font-size: 12px;
        color: #606266;
        min-height: 18px;
      }
      #status {
        margin-top: 12px;
        font-size: 12px;
        color: #909399;
        min-height: 18px;
      }
    </style>
    <script src="https://static.geetest.com/static/tools/gt.js"></script>
  </head>
  <body>
    <div class="card">
      <div class="title">请完成人机验证</div>
      <div id="captcha-element"></div>
      <div id="status">Loading...</div>
      <div id="progress"></div>
    </div>
    <script>
      (function () {
        const statusEl = document.getElementById('status');
        const setStatus = (msg) => {
          if (statusEl) statusEl.textContent = msg;
        };
        const submit = async (result) => {
          setStatus('Verified, submitting...');
          try {
            const resp = await fetch('/submit', {
              method: 'POST',
              headers: { 'Content-Type': 'application/json' },
              body: JSON.stringify({
                validate: result.geetest_validate,
                seccode: result.geetest_seccode,
              }),
            });
            const data = await resp.json().catch(() => ({}));
            if (!resp.ok) {
              throw new Error(data.error || 'Submit failed');
            }
            setStatus('Submitted. You can close this tab.');
            setTimeout(() => {
              try {
                window.close();
              } catch (e) {}
            }, 800);
          } catch (err) {
            const msg = err && err.message ? err.message : 'Unknown error';
            setStatus('Submit failed: ' + msg);
          }
        };
        const progressEl = document.getElementById('progress');
        try {
          const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
          ws.onmessage = (ev) => {
            const msg = JSON.parse(ev.data || '{}');
            const data = msg.data || {};
            if (msg.type === 'login_state' && progressEl) {
              progressEl.textContent = 'state: ' + (data.state || '');
            } else if (msg.type === 'log' && progressEl && data.msg) {
              progressEl.textContent = data.msg;
            }
          };
        } catch (e) {}
        if (typeof window.initGeetest !== 'function') {
          setStatus('Captcha script failed to load');
          return;
        }
        window.initGeetest({
          gt: "{{.GeeGT}}",
          challenge: "{{.GeeChallenge}}",
          offline: false,
          new_captcha: true,
          product: "popup",
          width: "100%",
        }, function (captchaObj) {
          captchaObj.appendTo('#captcha-element');
          captchaObj.onReady(function () {
            setStatus('Click to verify');
          });
          captchaObj.onSuccess(function () {
            submit(captchaObj.getValidate());
          });
          captchaObj.onError(function () {
            setStatus('Verify failed, please retry');
          });
        });
      })();
    </script>
  </body>
</html>`))

type geetestSubmitPayload struct {
	Validate string `json:"validate"`
	Seccode  string `json:"seccode"`
}

// PageResolver 在本地起一个临时页面加载极验，浏览器里完成后把 validate/seccode 回传。
// 短信验证码仍然走终端输入。
type PageResolver struct {
	Addr        string
	OpenBrowser bool
	Wait        time.Duration
	Prompt      *Prompter
	Bus         *logbus.Bus

	// openURL 默认是 open.Run，测试里替换掉。
	openURL func(string) error
}

func NewPageResolver(addr string, openBrowser bool, wait time.Duration, p *Prompter, bus *logbus.Bus) *PageResolver {
	return &PageResolver{
		Addr:        addr,
		OpenBrowser: openBrowser,
		Wait:        wait,
		Prompt:      p,
		Bus:         bus,
		openURL:     open.Run,
	}
}

func (r *PageResolver) SMSCode(ctx context.Context, tel string) (string, error) {
	if r.Prompt == nil {
		return "", errors.New("no prompt available for sms code")
	}
	return NewPromptResolver(r.Prompt).SMSCode(ctx, tel)
}

func (r *PageResolver) SolveGeetest(ctx context.Context, info model.CaptchaInfo) (model.CaptchaInfo, error) {
	if strings.TrimSpace(info.GeeGT) == "" || strings.TrimSpace(info.GeeChallenge) == "" {
		return model.CaptchaInfo{}, errors.New("gee_gt/gee_challenge missing in recaptcha_url")
	}

	ln, err := net.Listen("tcp", r.Addr)
	if err != nil {
		return model.CaptchaInfo{}, fmt.Errorf("listen captcha page: %w", err)
	}

	results := make(chan geetestSubmitPayload, 1)
	// ws 连接被 hijack 后 Shutdown 不会等它们，靠 base context 通知退出。
	baseCtx, cancelBase := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           r.handler(info, results),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.Bus.Log("warn", "captcha page server stopped", map[string]any{"error": err.Error()})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	pageURL := "http://" + ln.Addr().String() + "/"
	r.Bus.Log("info", "等待在浏览器中完成人机验证", map[string]any{"url": pageURL})
	if r.Prompt != nil {
		r.Prompt.Printf("\n请在浏览器中打开并完成人机验证: %s\n", pageURL)
	}
	if r.OpenBrowser && r.openURL != nil {
		if err := r.openURL(pageURL); err != nil {
			r.Bus.Log("warn", "open browser failed, please open the url manually", map[string]any{"url": pageURL, "error": err.Error()})
		}
	}

	wait := r.Wait
	if wait <= 0 {
		wait = 10 * time.Minute
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case res := <-results:
		info.GeeValidate = res.Validate
		info.GeeSeccode = res.Seccode
		return info, nil
	case <-timer.C:
		return model.CaptchaInfo{}, fmt.Errorf("captcha not completed within %s", wait)
	case <-ctx.Done():
		return model.CaptchaInfo{}, ctx.Err()
	}
}

func (r *PageResolver) handler(info model.CaptchaInfo, results chan<- geetestSubmitPayload) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := geetestPageTpl.Execute(w, info); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		}
	})
	if r.Bus != nil {
		mux.Handle("/ws", ws.NewHandler(r.Bus, "login_state", "log"))
	}
	mux.HandleFunc("/submit", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}
		var body geetestSubmitPayload
		if err := json.NewDecoder(io.LimitReader(req.Body, 1<<16)).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		body.Validate = strings.TrimSpace(body.Validate)
		body.Seccode = strings.TrimSpace(body.Seccode)
		if body.Validate == "" || body.Seccode == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validate and seccode are required"})
			return
		}
		select {
		case results <- body:
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"accepted": true}})
		default:
			writeJSON(w, http.StatusConflict, map[string]any{"error": "already submitted"})
		}
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
