// Package cache 缓存抓取到的页面，避免同一天内重复请求官方网站。
//
// 两种实现：FileStore（<dir>/pages/<source>/<day>.html，原子写入）与 RedisStore（带 TTL，多实例共享）。
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/xavivs/la-quiniela/internal/infra/fsx"
)

var ErrReadOnly = errors.New("cache: read-only")

// Key 定位一条缓存：页面来源 + 日期（YYYY-MM-DD）。
type Key struct {
	Source string
	Day    string
}

// KeyFor 用 t 的 UTC 日期构造 Key。
func KeyFor(source string, t time.Time) Key {
	return Key{Source: source, Day: t.UTC().Format(time.DateOnly)}
}

var (
	sourceRE = regexp.MustCompile(`^[a-z0-9_\-]+$`)
	dayRE    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

func (k Key) validate() (Key, error) {
	k.Source = strings.ToLower(strings.TrimSpace(k.Source))
	if k.Source == "" {
		return k, fmt.Errorf("source 不能为空")
	}
	// 最小约束：避免路径穿越。
	if !sourceRE.MatchString(k.Source) {
		return k, fmt.Errorf("非法 source：%q", k.Source)
	}
	if !dayRE.MatchString(k.Day) {
		return k, fmt.Errorf("非法日期：%q", k.Day)
	}
	return k, nil
}

// Store 是页面缓存的最小接口。未命中返回 ok=false 且 err=nil。
type Store interface {
	Get(ctx context.Context, k Key) (data []byte, ok bool, err error)
	Put(ctx context.Context, k Key, data []byte) error
}

// Nop 不缓存任何东西（cache 未配置时使用）。
type Nop struct{}

func (Nop) Get(context.Context, Key) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Put(context.Context, Key, []byte) error         { return nil }

// FileStore 把页面存到本地目录。
//
// 约束：
// - ReadOnly=true：只读（例如只想复用已有缓存、不落盘）
// - TTL>0：超过 TTL 的文件视为未命中
type FileStore struct {
	Dir      string
	ReadOnly bool
	TTL      time.Duration
}

func NewFileStore(dir string, readOnly bool) FileStore {
	return FileStore{Dir: filepath.Clean(strings.TrimSpace(dir)), ReadOnly: readOnly}
}

func (s FileStore) Path(k Key) (string, error) {
	k, err := k.validate()
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, "pages", k.Source, k.Day+".html"), nil
}

func (s FileStore) Get(_ context.Context, k Key) ([]byte, bool, error) {
	path, err := s.Path(k)
	if err != nil {
		return nil, false, err
	}
	if s.TTL > 0 {
		fi, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, false, nil
			}
			return nil, false, err
		}
		if time.Since(fi.ModTime()) > s.TTL {
			return nil, false, nil
		}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s FileStore) Put(_ context.Context, k Key, data []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.Path(k)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), data)
}
