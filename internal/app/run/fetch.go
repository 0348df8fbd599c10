package run

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xavivs/la-quiniela/internal/domain"
	"github.com/xavivs/la-quiniela/internal/infra/cache"
	"github.com/xavivs/la-quiniela/internal/provider"
)

// ErrOffline 表示离线模式下没有可用缓存。
var ErrOffline = errors.New("离线模式：没有当天的缓存页面")

const cacheAttempt = "cache"

// page 是一次“取页面 + 解析”的结果。
// found=false 时 value 为零值；fetched 表示至少有一个来源返回了页面（只是解析不出足够数据）。
type page[T any] struct {
	value    T
	score    int
	provider string
	url      string
	found    bool
	fetched  bool
}

// partial 把“解析出了一些、但不够”的结果带出回退链，同时让链继续尝试下一个来源。
type partial[T any] struct {
	value T
	score int
}

func (p *partial[T]) Error() string {
	return fmt.Sprintf("%v（仅 %d 项）", provider.ErrNoData, p.score)
}

func (p *partial[T]) Unwrap() error { return provider.ErrNoData }

// fetchPage 先查当天缓存，再按配置的来源顺序抓取；score>=need 视为成功并写回缓存。
// 所有来源都不达标时返回得分最高的部分结果（score>0）。
func fetchPage[T any](ctx context.Context, r *Runner, source, pageURL string, need int, parse func(html []byte) (T, int)) (page[T], []domain.ProviderAttempt, error) {
	var (
		best     page[T]
		attempts []domain.ProviderAttempt
	)
	key := cache.KeyFor(source, r.now())

	cacheStarted := r.now()
	if b, ok, err := r.cache.Get(ctx, key); err != nil {
		r.log.Warn("cache read failed", "source", source, "error", err)
	} else if ok {
		v, score := parse(b)
		a := domain.ProviderAttempt{Provider: cacheAttempt, Stage: "ok"}
		if score < need {
			a.Stage = "parse"
			a.ErrorCode = domain.ErrCodeParseFailed
			a.ErrorMsg = fmt.Sprintf("缓存页面数据不足（%d 项）", score)
		}
		attempts = append(attempts, a)
		r.obs.OnAttempt(a, r.since(cacheStarted))
		best = page[T]{value: v, score: score, provider: cacheAttempt, url: pageURL, found: score > 0, fetched: true}
		if score >= need {
			r.log.Debug("cache hit", "source", source, "day", key.Day)
			return best, attempts, nil
		}
	}

	if r.eff.Offline {
		if best.found {
			return best, attempts, nil
		}
		return best, attempts, ErrOffline
	}

	fetchStarted := r.now()
	out, trace, err := provider.FetchParseTrace(ctx, r.reg, r.eff.Providers, pageURL, func(html []byte, _ string) (T, error) {
		v, score := parse(html)
		if score < need {
			return v, &partial[T]{value: v, score: score}
		}
		return v, nil
	})
	for _, a := range trace {
		da := toDomainAttempt(a)
		attempts = append(attempts, da)
		r.obs.OnAttempt(da, 0)

		var p *partial[T]
		if a.Stage == "parse" {
			best.fetched = true
			if errors.As(a.Err, &p) && p.score > best.score {
				best = page[T]{value: p.value, score: p.score, provider: a.Provider, url: pageURL, found: true, fetched: true}
			}
		}
	}
	r.obs.OnPhaseDone("fetch", map[string]any{
		"source":   source,
		"attempts": len(trace),
	}, r.since(fetchStarted))

	if err == nil {
		if perr := r.cache.Put(ctx, key, out.HTML); perr != nil && !errors.Is(perr, cache.ErrReadOnly) {
			r.log.Warn("cache write failed", "source", source, "error", perr)
		}
		r.log.Info("page fetched", "source", source, "provider", out.Provider, "url", out.URL)
		return page[T]{value: out.Value, score: need, provider: out.Provider, url: out.URL, found: true, fetched: true}, attempts, nil
	}

	r.log.Warn("page fetch incomplete", "source", source, "error", err, "best_score", best.score)
	if best.found {
		return best, attempts, nil
	}
	return best, attempts, err
}

func toDomainAttempt(a provider.Attempt) domain.ProviderAttempt {
	out := domain.ProviderAttempt{Provider: a.Provider, Stage: a.Stage}
	switch a.Stage {
	case "fetch":
		out.ErrorCode = domain.ErrCodeFetchFailed
		out.ErrorMsg = humanizeFetchError(a.Provider, a.Err)
	case "parse":
		out.ErrorCode = domain.ErrCodeParseFailed
		out.ErrorMsg = humanizeParseError(a.Provider, a.Err)
	}
	return out
}

// errorCode 把抓取链的最终错误归类为报告中的 error_code。
func errorCode(err error) string {
	var pe *provider.Error
	if errors.As(err, &pe) && pe.Stage == "parse" {
		return domain.ErrCodeParseFailed
	}
	return domain.ErrCodeFetchFailed
}

func errorMsg(err error) string {
	var pe *provider.Error
	if errors.As(err, &pe) {
		if pe.Stage == "parse" {
			return humanizeParseError(pe.Provider, pe.Err)
		}
		return humanizeFetchError(pe.Provider, pe.Err)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func humanizeFetchError(providerName string, err error) string {
	if err == nil {
		return providerName + " 抓取失败"
	}

	var be *provider.BlockedError
	if errors.As(err, &be) {
		return fmt.Sprintf("%s 被站点拦截（%s）。当前不支持绕过；建议启用 browser 或配置 proxy.url 后重试。", providerName, be.Reason)
	}

	var hs *provider.HTTPStatusError
	if errors.As(err, &hs) {
		switch hs.StatusCode {
		case 403, 429:
			return fmt.Sprintf("%s 返回 HTTP %d（可能触发反爬/限流）。建议稍后重试或配置 proxy.url。", providerName, hs.StatusCode)
		case 404:
			return fmt.Sprintf("%s 返回 HTTP 404（页面地址可能已变更，检查 sources / results_url）。", providerName)
		}
		if hs.Temporary() {
			return fmt.Sprintf("%s 返回 HTTP %d（站点暂时不可用），请稍后重试。", providerName, hs.StatusCode)
		}
		if loc := strings.TrimSpace(hs.Location); loc != "" {
			return fmt.Sprintf("%s 返回 HTTP %d（重定向）：%s", providerName, hs.StatusCode, loc)
		}
		return fmt.Sprintf("%s 返回 HTTP %d。", providerName, hs.StatusCode)
	}

	low := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(low, "timeout") {
		return fmt.Sprintf("%s 抓取超时。建议检查网络/代理后重试。", providerName)
	}
	if strings.Contains(low, "tls") || strings.Contains(low, "handshake") || strings.Contains(low, "ssl") {
		return fmt.Sprintf("%s 连接失败（TLS/SSL）。建议配置 proxy.url 或稍后重试。", providerName)
	}
	if strings.Contains(low, "playwright") || strings.Contains(low, "chromium") {
		return fmt.Sprintf("%s 无法启动浏览器（可设置 browser.install=true 自动安装 chromium）：%v", providerName, err)
	}
	return fmt.Sprintf("%s 抓取失败：%v", providerName, err)
}

func humanizeParseError(providerName string, err error) string {
	if err == nil {
		return providerName + " 解析失败"
	}
	if errors.Is(err, provider.ErrNoData) {
		return fmt.Sprintf("%s 页面缺少数据（可能由 JS 加载）：%v", providerName, err)
	}
	return fmt.Sprintf("%s 解析失败（站点结构可能变化）：%v", providerName, err)
}
