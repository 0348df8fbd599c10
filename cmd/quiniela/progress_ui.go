package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/xavivs/la-quiniela/internal/app/run"
	"github.com/xavivs/la-quiniela/internal/config"
	"github.com/xavivs/la-quiniela/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出。
//
// 约束：
// - 只写到 stderr（或 fallback 到 stdout 的 TTY），不污染 stdout 的 JSON 契约
// - 浏览器渲染可能持续数十秒：长时间无事件时定期打印一行 keepalive
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time
	op          string
	attempts    int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(op string, eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	// 一次命令可能触发多个操作（例如 results --apply），配置只打印一次。
	first := p.startedAt.IsZero()
	if first {
		p.startedAt = now
	}
	p.op = op

	fmt.Fprintf(p.w, "[%s] quiniela %s\n", now.Format("15:04:05"), op)
	if first {
		fmt.Fprintln(p.w, "配置（生效）:")
		if eff.ConfigPath != "" {
			fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
		}
		fmt.Fprintf(p.w, "  season: %s\n", eff.Season)
		fmt.Fprintf(p.w, "  providers: %s\n", providerChain(eff.Providers, eff.Offline))
		fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
		fmt.Fprintf(p.w, "  cache: %s\n", formatCache(eff))
		fmt.Fprintf(p.w, "  db: %s\n", eff.DBDriver)
		fmt.Fprintln(p.w)
	}

	p.lastPrinted = time.Now()
	if !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "fetch":
		fmt.Fprintf(p.w, "抓取: source=%s attempts=%d (%s)\n",
			stringField(fields, "source"), intField(fields, "attempts"), formatShortDuration(dur),
		)
	case "pdf":
		fmt.Fprintf(p.w, "PDF: chars=%d (%s)\n", intField(fields, "chars"), formatShortDuration(dur))
	case "extract":
		fmt.Fprintf(p.w, "抽取: matches=%d strategies=%d (%s)\n",
			intField(fields, "matches"), intField(fields, "strategies"), formatShortDuration(dur),
		)
	case "results":
		fmt.Fprintf(p.w, "结果: jornadas=%d (%s)\n", intField(fields, "jornadas"), formatShortDuration(dur))
	case "apply":
		fmt.Fprintf(p.w, "写入: jornada=%d updated=%d (%s)\n",
			intField(fields, "jornada"), intField(fields, "updated"), formatShortDuration(dur),
		)
	case "sheet":
		fmt.Fprintf(p.w, "表格: players=%d jornadas=%d entries=%d (%s)\n",
			intField(fields, "players"), intField(fields, "jornadas"), intField(fields, "entries"), formatShortDuration(dur),
		)
	case "store":
		fmt.Fprintf(p.w, "入库: points=%d created=%d errors=%d (%s)\n",
			intField(fields, "points"), intField(fields, "created"), intField(fields, "errors"), formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnAttempt(a domain.ProviderAttempt, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts++
	status := "OK"
	if a.Stage != "ok" {
		status = "FAIL"
	}
	line := fmt.Sprintf("  [%d] %s %s", p.attempts, a.Provider, status)
	if a.ErrorCode != "" {
		line += " " + a.Stage + ":" + a.ErrorCode
	}
	if a.ErrorMsg != "" {
		line += ": " + truncate(a.ErrorMsg, 120)
	}
	if dur > 0 {
		line += " (" + formatShortDuration(dur) + ")"
	}
	fmt.Fprintln(p.w, line)
	p.lastPrinted = time.Now()
}

// Stop 停止 keepalive；可重复调用。
func (p *progressUI) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stopCh := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "等待中: op=%s attempts=%d elapsed=%s\n",
						p.op, p.attempts, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

func providerChain(providers []string, offline bool) string {
	if offline {
		return "cache (offline)"
	}
	chain := append([]string{"cache"}, providers...)
	return strings.Join(chain, " -> ")
}

func formatCache(eff config.EffectiveConfig) string {
	switch {
	case strings.TrimSpace(eff.RedisAddr) != "":
		return fmt.Sprintf("redis %s (ttl=%s)", eff.RedisAddr, eff.CacheTTL)
	case strings.TrimSpace(eff.CacheDir) != "":
		mode := ""
		if eff.Offline {
			mode = ", read-only"
		}
		return fmt.Sprintf("%s (ttl=%s%s)", eff.CacheDir, eff.CacheTTL, mode)
	default:
		return "off"
	}
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatAttemptChain(attempts []domain.ProviderAttempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		s := strings.TrimSpace(a.Provider) + ":" + strings.TrimSpace(a.Stage)
		if ec := strings.TrimSpace(a.ErrorCode); ec != "" {
			s += ":" + ec
		}
		if em := strings.TrimSpace(a.ErrorMsg); em != "" {
			s += ":" + truncate(em, 80)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ";")
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

func intField(fields map[string]any, key string) int {
	switch x := fields[key].(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	default:
		return 0
	}
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
