package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	providerx "github.com/xavivs/la-quiniela/internal/provider"
)

// Options 控制无头浏览器渲染。
type Options struct {
	ProxyURL  string
	UserAgent string
	Timeout   time.Duration
	// Install 为 true 时，首次启动会自动下载 chromium（需要网络）。
	Install bool
}

// Provider 用无头 chromium 打开页面并等待网络空闲后返回渲染后的 DOM。
// 用于官方结果页这类由 JS 注入数据的页面；浏览器在首次 Fetch 时惰性启动并复用。
type Provider struct {
	opts Options

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

const defaultTimeout = 45 * time.Second

func New(opts Options) *Provider {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Provider{opts: opts}
}

func (*Provider) Name() string { return providerx.NameBrowser }

func (p *Provider) Fetch(ctx context.Context, pageURL string) ([]byte, string, error) {
	if strings.TrimSpace(pageURL) == "" {
		return nil, "", errors.New("pageURL 不能为空")
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	b, err := p.ensure()
	if err != nil {
		return nil, "", err
	}

	bctx, err := b.NewContext(p.contextOptions())
	if err != nil {
		return nil, "", fmt.Errorf("创建浏览器上下文失败: %w", err)
	}
	defer func() { _ = bctx.Close() }()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, "", fmt.Errorf("创建页面失败: %w", err)
	}

	resp, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(p.timeout(ctx).Milliseconds())),
	})
	if err != nil {
		return nil, "", fmt.Errorf("浏览器加载失败: %w", err)
	}
	if resp != nil && (resp.Status() < 200 || resp.Status() >= 400) {
		return nil, page.URL(), &providerx.HTTPStatusError{URL: pageURL, StatusCode: resp.Status()}
	}

	html, err := page.Content()
	if err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(html) == "" {
		return nil, page.URL(), errors.New("empty rendered page")
	}
	return []byte(html), page.URL(), nil
}

// Close 释放浏览器与 driver 进程；未启动时为 no-op。
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.browser != nil {
		errs = append(errs, p.browser.Close())
		p.browser = nil
	}
	if p.pw != nil {
		errs = append(errs, p.pw.Stop())
		p.pw = nil
	}
	return errors.Join(errs...)
}

func (p *Provider) ensure() (playwright.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser != nil {
		return p.browser, nil
	}

	if p.opts.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("安装 chromium 失败: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("启动 playwright 失败: %w", err)
	}
	b, err := pw.Chromium.Launch(p.launchOptions())
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("启动 chromium 失败: %w", err)
	}
	p.pw = pw
	p.browser = b
	return b, nil
}

func (p *Provider) launchOptions() playwright.BrowserTypeLaunchOptions {
	o := playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(true)}
	if s := strings.TrimSpace(p.opts.ProxyURL); s != "" {
		o.Proxy = &playwright.Proxy{Server: s}
	}
	return o
}

func (p *Provider) contextOptions() playwright.BrowserNewContextOptions {
	o := playwright.BrowserNewContextOptions{Locale: playwright.String("es-ES")}
	if s := strings.TrimSpace(p.opts.UserAgent); s != "" {
		o.UserAgent = playwright.String(s)
	}
	return o
}

// timeout 取配置超时与 ctx 截止时间中较小者。
func (p *Provider) timeout(ctx context.Context) time.Duration {
	d := p.opts.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < d {
			d = left
		}
	}
	if d < time.Second {
		d = time.Second
	}
	return d
}
