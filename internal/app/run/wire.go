package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/xavivs/la-quiniela/internal/config"
	"github.com/xavivs/la-quiniela/internal/extract"
	"github.com/xavivs/la-quiniela/internal/infra/cache"
	"github.com/xavivs/la-quiniela/internal/infra/httpx"
	"github.com/xavivs/la-quiniela/internal/noise"
	"github.com/xavivs/la-quiniela/internal/provider"
	"github.com/xavivs/la-quiniela/internal/provider/browser"
	"github.com/xavivs/la-quiniela/internal/provider/web"
	"github.com/xavivs/la-quiniela/internal/store"
)

// BuildOptions 控制 Build 需要初始化哪些协作者。
type BuildOptions struct {
	// WithStore 为 false 时不打开数据库（parse/teams 不需要）。
	WithStore bool
}

// Build 按生效配置组装 Runner：噪声词表 -> 解析器，HTTP 客户端 -> 页面来源，缓存，数据库。
// 返回的关闭函数释放浏览器、Redis 连接与数据库。
func Build(ctx context.Context, eff config.EffectiveConfig, logger *slog.Logger, opts BuildOptions) (_ *Runner, _ func() error, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	defer func() {
		if err != nil {
			_ = closeAll()
		}
	}()

	parser, err := buildParser(eff)
	if err != nil {
		return nil, nil, &config.Error{Code: config.ErrCodeInvalid, Path: eff.NoiseTables, Err: err}
	}

	retry := eff.RetryMax
	if retry == 0 {
		retry = -1
	}
	client, err := httpx.NewClient(httpx.Options{ProxyURL: eff.ProxyURL, Timeout: eff.HTTPTimeout, RetryMax: retry})
	if err != nil {
		return nil, nil, &config.Error{Code: config.ErrCodeInvalid, Path: eff.ConfigPath, Err: fmt.Errorf("proxy.url 无效：%w", err)}
	}
	providers := []provider.Provider{web.New(client)}
	for _, name := range eff.Providers {
		if name != provider.NameBrowser {
			continue
		}
		b := browser.New(browser.Options{
			ProxyURL:  eff.ProxyURL,
			UserAgent: httpx.UserAgent(),
			Timeout:   eff.BrowserTimeout,
			Install:   eff.BrowserInstall,
		})
		closers = append(closers, b.Close)
		providers = append(providers, b)
	}
	reg, err := provider.NewRegistry(providers...)
	if err != nil {
		return nil, nil, err
	}

	pages, cacheClose := buildCache(eff, logger)
	if cacheClose != nil {
		closers = append(closers, cacheClose)
	}

	var st *store.Store
	if opts.WithStore {
		st, err = store.Open(ctx, store.Config{Driver: eff.DBDriver, DSN: eff.DBDSN}, logger)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, st.Close)
		if err := st.Migrate(ctx); err != nil {
			return nil, nil, err
		}
	}

	r := New(eff, Deps{
		Parser:   parser,
		Registry: reg,
		Cache:    pages,
		Store:    st,
		Logger:   logger,
	})
	return r, closeAll, nil
}

func buildParser(eff config.EffectiveConfig) (*extract.Parser, error) {
	if strings.TrimSpace(eff.NoiseTables) == "" {
		return extract.New(), nil
	}
	t, err := noise.LoadTables(eff.NoiseTables)
	if err != nil {
		return nil, err
	}
	c, err := noise.Compile(t)
	if err != nil {
		return nil, err
	}
	return extract.New(extract.WithCleaner(c)), nil
}

// buildCache：配置了 redis_addr 用 Redis（多实例共享），否则用本地目录；离线模式只读。
func buildCache(eff config.EffectiveConfig, logger *slog.Logger) (cache.Store, func() error) {
	if addr := strings.TrimSpace(eff.RedisAddr); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		logger.Debug("page cache: redis", "addr", addr, "ttl", eff.CacheTTL)
		return cache.NewRedisStore(client, eff.CacheTTL), client.Close
	}
	if strings.TrimSpace(eff.CacheDir) == "" {
		return cache.Nop{}, nil
	}
	fs := cache.NewFileStore(eff.CacheDir, eff.Offline)
	fs.TTL = eff.CacheTTL
	logger.Debug("page cache: dir", "dir", eff.CacheDir, "ttl", eff.CacheTTL, "read_only", eff.Offline)
	return fs, nil
}
