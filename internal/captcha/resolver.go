package captcha

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"bili_passport/internal/model"
)

// Resolver 把需要人参与的步骤抽象出来：极验结果和短信验证码。
type Resolver interface {
	SolveGeetest(ctx context.Context, info model.CaptchaInfo) (model.CaptchaInfo, error)
	SMSCode(ctx context.Context, tel string) (string, error)
}

// ParseRecaptchaURL 从 sendSmsCode 返回的 recaptcha_url 中取出极验参数。
func ParseRecaptchaURL(raw string) (model.CaptchaInfo, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return model.CaptchaInfo{}, fmt.Errorf("parse recaptcha_url: %w", err)
	}
	q := u.Query()
	return model.CaptchaInfo{
		RecaptchaToken: q.Get("recaptcha_token"),
		GeeGT:          q.Get("gee_gt"),
		GeeChallenge:   q.Get("gee_challenge"),
	}, nil
}

// Prompter 逐行读取操作员输入。
type Prompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask 打印提示并读取一行（去掉首尾空白）。输入结束且没有内容时返回 io.ErrUnexpectedEOF。
func (p *Prompter) Ask(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := fmt.Fprint(p.out, label); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Printf 向操作员输出提示信息。
func (p *Prompter) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// PromptResolver 在终端里让操作员外部完成极验后回填 validate/seccode。
type PromptResolver struct {
	Prompt *Prompter
}

func NewPromptResolver(p *Prompter) *PromptResolver {
	return &PromptResolver{Prompt: p}
}

func (r *PromptResolver) SolveGeetest(ctx context.Context, info model.CaptchaInfo) (model.CaptchaInfo, error) {
	r.Prompt.Printf("\n触发人机验证，请在外部完成 Geetest 后填写以下参数：\n")
	r.Prompt.Printf("recaptcha_token: %s\n", info.RecaptchaToken)
	r.Prompt.Printf("gee_gt: %s\n", info.GeeGT)
	r.Prompt.Printf("gee_challenge: %s\n", info.GeeChallenge)

	validate, err := r.Prompt.Ask(ctx, "gee_validate: ")
	if err != nil {
		return model.CaptchaInfo{}, err
	}
	seccode, err := r.Prompt.Ask(ctx, "gee_seccode: ")
	if err != nil {
		return model.CaptchaInfo{}, err
	}
	info.GeeValidate = validate
	info.GeeSeccode = seccode
	return info, nil
}

func (r *PromptResolver) SMSCode(ctx context.Context, _ string) (string, error) {
	return r.Prompt.Ask(ctx, "请输入短信验证码: ")
}
