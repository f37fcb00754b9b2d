package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bili_passport/internal/config"
	"bili_passport/internal/mockpassport"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	smsCode := flag.String("sms-code", "123456", "sms code accepted by the login endpoint")
	captcha := flag.Bool("captcha", false, "require geetest before sending sms")
	signedKey := flag.Bool("signed-web-key", false, "reject unsigned web key requests to exercise the fallback")
	omitCookies := flag.Bool("omit-cookie-info", false, "return login responses without cookie_info")
	mid := flag.Int64("mid", 10086, "mid returned in token_info")
	flag.Parse()

	appKey, appSec := config.DefaultAppKey, config.DefaultAppSec
	if v, ok := os.LookupEnv(config.EnvAppKey); ok {
		appKey = v
	}
	if v, ok := os.LookupEnv(config.EnvAppSec); ok {
		appSec = v
	}

	mock, err := mockpassport.New(mockpassport.Options{
		AppKey:           appKey,
		AppSec:           appSec,
		SMSCode:          *smsCode,
		RequireCaptcha:   *captcha,
		SignedWebKeyOnly: *signedKey,
		OmitCookieInfo:   *omitCookies,
		Mid:              *mid,
	})
	if err != nil {
		log.Fatalf("init mock: %v", err)
	}

	server := &http.Server{
		Addr:              *addr,
		Handler:           mock.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("mock passport listening on %s (sms code %s, captcha=%t)", *addr, *smsCode, *captcha)
		serverErr <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Printf("shutdown signal received: %s", sig)
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}
