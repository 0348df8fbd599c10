package provider

import (
	"context"
	"fmt"
	"strings"
)

// Attempt 记录一次 provider 尝试（用于解释回退原因）。
type Attempt struct {
	Provider string // provider name（小写）
	Stage    string // "fetch" / "parse" / "ok"
	Err      error  // nil when Stage=="ok"
}

// Error 是 provider 阶段的可追溯错误。
// 上层据此把失败归类为 fetch_failed / parse_failed。
type Error struct {
	Provider string
	Stage    string // "fetch" 或 "parse"
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider=%s stage=%s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Outcome 是回退链成功时的结果。
type Outcome[T any] struct {
	Value    T
	Provider string
	URL      string
	HTML     []byte
}

// FetchParseTrace 按 order 依次抓取 pageURL 并用 parse 解析，第一个成功者胜出。
// 抓取失败或解析失败（含 ErrNoData）都会继续尝试下一个；attempts 总是返回完整链路。
func FetchParseTrace[T any](
	ctx context.Context,
	reg Registry,
	order []string,
	pageURL string,
	parse func(html []byte, pageURL string) (T, error),
) (out Outcome[T], attempts []Attempt, err error) {
	if strings.TrimSpace(pageURL) == "" {
		return out, nil, fmt.Errorf("pageURL 不能为空")
	}
	if len(order) == 0 {
		order = reg.Order()
	}

	var lastErr error
	for _, name := range order {
		name = strings.ToLower(strings.TrimSpace(name))
		if err := ctx.Err(); err != nil {
			return out, attempts, err
		}
		p, ok := reg.Get(name)
		if !ok {
			lastErr = &Error{Provider: name, Stage: "fetch", Err: fmt.Errorf("provider 未注册：%q", name)}
			attempts = append(attempts, Attempt{Provider: name, Stage: "fetch", Err: lastErr})
			continue
		}

		html, finalURL, ferr := p.Fetch(ctx, pageURL)
		if ferr != nil {
			lastErr = &Error{Provider: name, Stage: "fetch", Err: ferr}
			attempts = append(attempts, Attempt{Provider: name, Stage: "fetch", Err: ferr})
			continue
		}
		if finalURL == "" {
			finalURL = pageURL
		}

		v, perr := parse(html, finalURL)
		if perr != nil {
			lastErr = &Error{Provider: name, Stage: "parse", Err: perr}
			attempts = append(attempts, Attempt{Provider: name, Stage: "parse", Err: perr})
			continue
		}

		attempts = append(attempts, Attempt{Provider: name, Stage: "ok"})
		return Outcome[T]{Value: v, Provider: name, URL: finalURL, HTML: html}, attempts, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("无可用 provider")
	}
	return out, attempts, lastErr
}
