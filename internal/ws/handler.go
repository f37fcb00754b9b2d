// Package ws 把 logbus 的消息推给浏览器页面（人机验证页用它展示登录进度）。
package ws

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"bili_passport/internal/logbus"
)

type Handler struct {
	bus      *logbus.Bus
	types    map[string]bool
	upgrader websocket.Upgrader
}

// NewHandler 只转发 types 中列出的消息类型；types 为空时全部转发。
func NewHandler(bus *logbus.Bus, types ...string) *Handler {
	h := &Handler{bus: bus}
	if len(types) > 0 {
		h.types = make(map[string]bool, len(types))
		for _, t := range types {
			h.types[t] = true
		}
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: sameOrigin,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	for _, msg := range h.bus.Snapshot() {
		if !h.wants(msg) {
			continue
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}

	ch, cancel := h.bus.Subscribe(256)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !h.wants(msg) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func (h *Handler) wants(msg logbus.Message) bool {
	return h.types == nil || h.types[msg.Type]
}

// sameOrigin 页面和 ws 由同一个本地服务提供，只接受同源请求。
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
