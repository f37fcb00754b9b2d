package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"bili_passport/internal/engine"
	"bili_passport/internal/notify"
)

func runLogin(ctx context.Context, cmd *cli.Command) error {
	rt, err := setupApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.prompt.Printf("=== B 站 App 短信登录 ===\n")
	rt.prompt.Printf("当前签名 APP_KEY: %s\n", rt.cfg.App.AppKey)
	rt.prompt.Printf("提示：同一批 token + sign 接口必须使用同一组 APP_KEY/APP_SEC。\n")

	tel := strings.TrimSpace(cmd.String("tel"))
	if tel == "" {
		if tel, err = rt.prompt.Ask(ctx, "手机号(不含+): "); err != nil {
			return err
		}
	}
	cid := int(cmd.Int("cid"))
	if !cmd.IsSet("cid") {
		raw, err := rt.prompt.Ask(ctx, "国家码(中国大陆填86，默认86): ")
		if err != nil {
			return err
		}
		if raw != "" {
			if cid, err = strconv.Atoi(raw); err != nil {
				return fmt.Errorf("invalid country code %q: %w", raw, err)
			}
		}
	}

	out, err := rt.engine.Login(ctx, engine.LoginParams{
		Tel:     tel,
		CID:     cid,
		SMSCode: cmd.String("sms-code"),
		Output:  cmd.String("output"),
	})
	if err != nil {
		return err
	}
	rt.prompt.Printf("登录成功，凭证已保存到: %s\n", absPath(out.Path))
	return nil
}

func runConfirm(ctx context.Context, cmd *cli.Command) error {
	rt, err := setupApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	out, err := rt.engine.ConfirmQR(ctx, engine.ConfirmParams{
		Input:    cmd.String("qr"),
		CredPath: cmd.String("cred"),
		Mid:      cmd.Int64("mid"),
	})
	if err != nil {
		return err
	}
	if !out.Result.OK() {
		return cli.Exit(fmt.Sprintf("扫码确认失败: code=%d message=%s", out.Result.Code, out.Result.Message), 1)
	}
	rt.prompt.Printf("扫码确认成功。\n")
	return nil
}

func runAccountsList(ctx context.Context, cmd *cli.Command) error {
	rt, err := setupApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	if rt.store == nil {
		return errArchiveNotConfigured
	}

	accounts, err := rt.store.ListAccounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		rt.prompt.Printf("归档中没有账号。\n")
		return nil
	}
	for _, acc := range accounts {
		rt.prompt.Printf("mid=%d tel=%s saved_at=%s updated_at=%s\n",
			acc.Mid,
			notify.MaskTel(acc.Tel),
			time.Unix(acc.Credential.SavedAt, 0).Format(time.DateTime),
			acc.UpdatedAt.Local().Format(time.DateTime),
		)
	}
	return nil
}

func runAccountsDelete(ctx context.Context, cmd *cli.Command) error {
	rt, err := setupApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	if rt.store == nil {
		return errArchiveNotConfigured
	}

	mid := cmd.Int64("mid")
	if err := rt.store.DeleteAccount(ctx, mid); err != nil {
		return err
	}
	rt.prompt.Printf("已删除 mid=%d 的归档凭证。\n", mid)
	return nil
}

var errArchiveNotConfigured = errors.New("credential archive is not configured (storage.sqlitePath)")
