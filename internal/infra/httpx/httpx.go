package httpx

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
)

const (
	defaultTimeout  = 20 * time.Second
	defaultRetryMax = 2
	defaultLanguage = "es-ES,es;q=0.9"
	acceptHTML      = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptEncoding  = "gzip, deflate, br"
)

// Options 描述抓取 client 的网络策略。零值可用。
type Options struct {
	ProxyURL string
	Timeout  time.Duration
	// RetryMax 是最大重试次数（不含首次）；<0 表示不重试，0 取默认值。
	RetryMax int
	// Language 是 Accept-Language；空值为西语。
	Language string
}

// Transport 统一网络策略：UA 池、西语请求头、压缩协商与解码、代理下禁用 keep-alive、有界重试。
//
// 上层只负责“拿到页面 + 解析”，拿到的 Body 总是已解压的。
type Transport struct {
	Base *http.Transport

	ua *uaPool

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int

	Language string

	// DisableKeepAlives 让每个 Request 带 Close=true。
	// 真正禁用 keep-alive 依赖 Base.DisableKeepAlives。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		r := t.prepare(req)
		resp, err := t.Base.RoundTrip(r)
		if err == nil && retryableStatus(resp.StatusCode) && attempt < max {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		} else if err == nil {
			if err := decodeBody(resp); err != nil {
				_ = resp.Body.Close()
				return nil, err
			}
			return resp, nil
		} else {
			lastErr = err
		}
		if req.Context().Err() != nil {
			// ctx 已取消：不再重试。
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// prepare 复制请求并补齐默认请求头，不修改调用方的 request。
func (t *Transport) prepare(req *http.Request) *http.Request {
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", t.ua.random())
	}
	if r.Header.Get("Accept") == "" {
		r.Header.Set("Accept", acceptHTML)
	}
	if r.Header.Get("Accept-Language") == "" {
		lang := t.Language
		if lang == "" {
			lang = defaultLanguage
		}
		r.Header.Set("Accept-Language", lang)
	}
	if r.Header.Get("Accept-Encoding") == "" {
		r.Header.Set("Accept-Encoding", acceptEncoding)
	}
	if t.DisableKeepAlives {
		r.Close = true
	}
	return r
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// decodeBody 按 Content-Encoding 原地替换 resp.Body 为解压流。
func decodeBody(resp *http.Response) error {
	enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	var body io.Reader
	switch enc {
	case "", "identity":
		return nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("gzip 解码失败: %w", err)
		}
		body = zr
	case "br":
		body = brotli.NewReader(resp.Body)
	case "deflate":
		// 多数服务器发 zlib 包装的 deflate，少数发裸 deflate。
		br := bufio.NewReader(resp.Body)
		if b, err := br.Peek(1); err == nil && b[0]&0x0f == 0x08 {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return fmt.Errorf("deflate 解码失败: %w", err)
			}
			body = zr
		} else {
			body = flate.NewReader(br)
		}
	default:
		return fmt.Errorf("不支持的 Content-Encoding: %q", enc)
	}
	resp.Body = &decodedBody{Reader: body, raw: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

type decodedBody struct {
	io.Reader
	raw io.ReadCloser
}

func (d *decodedBody) Close() error {
	if c, ok := d.Reader.(io.Closer); ok {
		_ = c.Close()
	}
	return d.raw.Close()
}

// NewClient 构造页面抓取用的 HTTP client。
//
// 规则：
// - ProxyURL 非空：必须走代理，且禁用 keep-alive（每请求新连接）
// - 内置 UA 池：每个请求随机 UA
// - 有界重试 + 总超时
func NewClient(opts Options) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
	disableKeepAlives := false

	if proxyURL := strings.TrimSpace(opts.ProxyURL); proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	retry := opts.RetryMax
	if retry == 0 {
		retry = defaultRetryMax
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	tr := &Transport{
		Base:              base,
		ua:                globalUA,
		RetryMax:          retry,
		Language:          opts.Language,
		DisableKeepAlives: disableKeepAlives,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// UserAgent 返回 UA 池中的一个随机 UA（供浏览器渲染等非 http.Client 场景使用）。
func UserAgent() string { return globalUA.random() }

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
