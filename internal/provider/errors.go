package provider

import (
	"fmt"
	"net/url"
	"strings"
)

// HTTPStatusError 是页面请求得到的非 2xx 响应。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string // 3xx 时的跳转目标
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	msg := fmt.Sprintf("HTTP %d", e.StatusCode)
	if h := hostOf(e.URL); h != "" {
		msg += " " + h
	}
	if loc := strings.TrimSpace(e.Location); loc != "" {
		msg += " -> " + loc
	}
	return msg
}

// Temporary 报告该状态是否值得稍后重试（限流或服务端错误）。
func (e *HTTPStatusError) Temporary() bool {
	return e != nil && (e.StatusCode == 429 || e.StatusCode >= 500)
}

// BlockedError 表示拿到的是验证/拦截页而不是轮次页面。不做绕过。
type BlockedError struct {
	URL    string
	Reason string // captcha, cloudflare, ...
}

func (e *BlockedError) Error() string {
	if e == nil {
		return "blocked"
	}
	r := strings.TrimSpace(e.Reason)
	if r == "" {
		r = "unknown"
	}
	if h := hostOf(e.URL); h != "" {
		return fmt.Sprintf("blocked by %s: %s", h, r)
	}
	return "blocked: " + r
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return u.Host
}
