package provider

import (
	"context"
	"errors"
)

// Provider 把“页面怎么拿到”限制在 provider 包内部；上层只拿 HTML 并自行解析。
//
// 约束：
// - Fetch 不做缓存、不做解析（缓存由 run 层统一处理，解析由调用方传入）
// - 返回的 finalURL 用于报告追溯
type Provider interface {
	Name() string
	Fetch(ctx context.Context, pageURL string) (html []byte, finalURL string, err error)
}

// ErrNoData 表示页面拿到了，但解析不出任何可用数据（通常是内容由 JS 渲染）。
// 解析函数返回它时，回退链会继续尝试下一个 provider。
var ErrNoData = errors.New("página sin datos")

// 约定的 provider 名称。
const (
	NameWeb     = "web"
	NameBrowser = "browser"
)
