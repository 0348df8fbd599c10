package web

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	providerx "github.com/xavivs/la-quiniela/internal/provider"
)

// Provider 直接 GET 页面，拿到的是服务端渲染的 HTML（不执行 JS）。
//
// 约束：
// - 不做缓存/解析（由上层统一控制）
// - 重试与压缩解码交给注入的 http.Client（httpx.NewClient）
type Provider struct {
	Client *http.Client

	// MaxBytes 限制响应体大小；<=0 表示使用默认值。
	MaxBytes int64
}

const defaultMaxBytes = 8 << 20

func New(c *http.Client) *Provider { return &Provider{Client: c} }

func (*Provider) Name() string { return providerx.NameWeb }

func (p *Provider) Fetch(ctx context.Context, pageURL string) ([]byte, string, error) {
	if p == nil || p.Client == nil {
		return nil, "", errors.New("http client 不能为空")
	}
	if strings.TrimSpace(pageURL) == "" {
		return nil, "", errors.New("pageURL 不能为空")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	limit := p.MaxBytes
	if limit <= 0 {
		limit = defaultMaxBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, "", err
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if reason := blockedReason(resp, b); reason != "" {
		return nil, finalURL, &providerx.BlockedError{URL: finalURL, Reason: reason}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		loc := strings.TrimSpace(resp.Header.Get("Location"))
		return nil, finalURL, &providerx.HTTPStatusError{URL: pageURL, StatusCode: resp.StatusCode, Location: loc}
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, finalURL, errors.New("empty response body")
	}
	return b, finalURL, nil
}

var blockMarkers = []struct {
	needle string
	reason string
}{
	{"g-recaptcha", "captcha"},
	{"h-captcha", "captcha"},
	{"cf-challenge", "challenge"},
	{"challenge-platform", "challenge"},
	{"Request unsuccessful. Incapsula", "incapsula"},
	{"_Incapsula_Resource", "incapsula"},
}

// blockedReason 只识别明确的拦截页标记；403 本身不算 blocked（交给 HTTPStatusError）。
func blockedReason(resp *http.Response, body []byte) string {
	head := body
	if len(head) > 64<<10 {
		head = head[:64<<10]
	}
	for _, m := range blockMarkers {
		if bytes.Contains(head, []byte(m.needle)) {
			return m.reason
		}
	}
	if resp.StatusCode == http.StatusForbidden && strings.EqualFold(resp.Header.Get("Server"), "cloudflare") {
		return "challenge"
	}
	return ""
}
