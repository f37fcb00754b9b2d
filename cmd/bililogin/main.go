package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"bili_passport/internal/provider"
)

func main() {
	if wd, err := os.Getwd(); err == nil {
		if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil && !errors.Is(errLoad, os.ErrNotExist) {
			log.Printf("load .env: %v", errLoad)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		log.Printf("%v", err)
		os.Exit(exitCode(err))
	}
}

const (
	exitFailure        = 1
	exitRemoteRejected = 3
	exitBadResponse    = 4
	exitMissingField   = 5
)

// exitCode 让脚本能区分接口拒绝、响应异常和缺字段。
func exitCode(err error) int {
	switch {
	case provider.IsRemoteError(err):
		return exitRemoteRejected
	case provider.IsResponseFormatError(err):
		return exitBadResponse
	case provider.IsMissingField(err):
		return exitMissingField
	default:
		return exitFailure
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "bililogin",
		Usage: "B 站 App 短信登录，并用保存的凭证确认扫码登录",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to config.yaml (optional)"},
			&cli.StringFlag{Name: "captcha", Usage: "captcha resolver: prompt or page"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		// 不带子命令时保持旧行为：直接走短信登录。
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runLogin(ctx, cmd)
		},
		Commands: []*cli.Command{
			{
				Name:    "sms-login",
				Aliases: []string{"login"},
				Usage:   "短信验证码登录并保存凭证",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tel", Usage: "phone number without country prefix"},
					&cli.IntFlag{Name: "cid", Usage: "country code (86 for mainland China)"},
					&cli.StringFlag{Name: "sms-code", Usage: "sms code; prompted when empty"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "credential file path"},
					&cli.BoolFlag{Name: "show-secrets", Usage: "print responses without masking tokens and cookies"},
				},
				Action: runLogin,
			},
			{
				Name:    "qr-confirm",
				Aliases: []string{"confirm"},
				Usage:   "用已保存的凭证确认扫码登录",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "qr", Usage: "decoded qr link, or the auth_code itself", Required: true},
					&cli.StringFlag{Name: "cred", Usage: "credential file path"},
					&cli.Int64Flag{Name: "mid", Usage: "load the credential of this mid from the sqlite archive"},
					&cli.IntFlag{Name: "timeout", Usage: "request timeout in seconds (default: provider.timeoutMs)"},
				},
				Action: runConfirm,
			},
			{
				Name:  "accounts",
				Usage: "查看或删除 sqlite 归档中的账号",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "列出归档的账号",
						Action: runAccountsList,
					},
					{
						Name:  "delete",
						Usage: "删除某个 mid 的归档凭证",
						Flags: []cli.Flag{
							&cli.Int64Flag{Name: "mid", Usage: "account mid", Required: true},
						},
						Action: runAccountsDelete,
					},
				},
			},
		},
	}
}
