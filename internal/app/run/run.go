// Package run 把解析器、页面来源、缓存与存储串成面向用户的操作。
//
// 每个操作都返回对外稳定的报告（domain.*Report），尽量把错误“降级”为报告中的 error_code，
// 而不是让整个调用失败。
package run

import (
	"errors"
	"log/slog"
	"time"

	"github.com/xavivs/la-quiniela/internal/config"
	"github.com/xavivs/la-quiniela/internal/extract"
	"github.com/xavivs/la-quiniela/internal/infra/cache"
	"github.com/xavivs/la-quiniela/internal/provider"
	"github.com/xavivs/la-quiniela/internal/store"
)

// ErrNoStore 表示操作需要数据库，但 Runner 未配置 Store。
var ErrNoStore = errors.New("store 未配置")

// Deps 是 Runner 的协作者；零值字段会被替换为无副作用的默认实现。
type Deps struct {
	Parser   *extract.Parser
	Registry provider.Registry
	Cache    cache.Store
	Store    *store.Store
	Logger   *slog.Logger
	Observer Observer
	Now      func() time.Time
}

type Runner struct {
	eff config.EffectiveConfig

	parser *extract.Parser
	reg    provider.Registry
	cache  cache.Store
	store  *store.Store
	log    *slog.Logger
	obs    Observer
	now    func() time.Time
}

func New(eff config.EffectiveConfig, d Deps) *Runner {
	r := &Runner{
		eff:    eff,
		parser: d.Parser,
		reg:    d.Registry,
		cache:  d.Cache,
		store:  d.Store,
		log:    d.Logger,
		obs:    d.Observer,
		now:    d.Now,
	}
	if r.parser == nil {
		r.parser = extract.New()
	}
	if r.cache == nil {
		r.cache = cache.Nop{}
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.obs == nil {
		r.obs = nopObserver{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Config 返回生效配置（只读副本）。
func (r *Runner) Config() config.EffectiveConfig { return r.eff }

// WithObserver 返回共享协作者、但事件发往 obs 的浅拷贝（CLI 用它挂接进度输出）。
func (r *Runner) WithObserver(obs Observer) *Runner {
	c := *r
	if obs == nil {
		obs = nopObserver{}
	}
	c.obs = obs
	return &c
}

func (r *Runner) since(t time.Time) time.Duration { return r.now().Sub(t) }
