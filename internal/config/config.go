package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	// ErrCodeNotFound 表示显式指定的配置文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析/校验，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

// FileName 是工作目录下默认读取的配置文件名（可选）。
const FileName = "quiniela.json"

const (
	DefaultSeason      = "2024-25"
	DefaultSourceName  = "loterias"
	DefaultSourceURL   = "https://www.loteriasyapuestas.es/es/resultados/quiniela"
	DefaultCacheDir    = ".quiniela-cache"
	DefaultDBDriver    = "sqlite"
	DefaultDBDSN       = "quiniela.db"
	DefaultListen      = ":8080"
	DefaultHTTPTimeout = 20 * time.Second
	DefaultRetryMax    = 2
	DefaultCacheTTL    = 6 * time.Hour
	DefaultBrowserWait = 45 * time.Second
)

// DefaultPlayers 是未配置 players 时的默认参与者。
var DefaultPlayers = []string{"Xavi", "Laura", "Montse", "Lluís", "Jordi", "Neus", "Denci", "Marià"}

//go:embed schema.json
var schemaJSON []byte

// CLIArgs 是 CLI 暴露的覆盖项，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --browser=false 必须能覆盖 browser.enabled=true。
type CLIArgs struct {
	// ConfigPath 显式指定配置文件；为空时读取 <cwd>/quiniela.json（可选）。
	ConfigPath string

	Season    string
	SeasonSet bool

	DSN    string
	DSNSet bool

	Listen    string
	ListenSet bool

	Browser    bool
	BrowserSet bool

	// Offline 为 true 时只读缓存、不发网络请求。
	Offline bool
}

// FileConfig 对应 quiniela.json 的解析结构。
type FileConfig struct {
	Season      string         `json:"season"`
	Players     []string       `json:"players"`
	Sources     []SourceConfig `json:"sources"`
	ResultsURL  string         `json:"results_url"`
	Browser     *BrowserConfig `json:"browser"`
	Proxy       *ProxyConfig   `json:"proxy"`
	HTTP        *HTTPConfig    `json:"http"`
	Cache       *CacheConfig   `json:"cache"`
	DB          *DBConfig      `json:"db"`
	NoiseTables string         `json:"noise_tables"`
	Listen      string         `json:"listen"`
}

type SourceConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type BrowserConfig struct {
	Enabled    bool `json:"enabled"`
	Install    bool `json:"install"`
	TimeoutSec int  `json:"timeout_sec"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

type HTTPConfig struct {
	TimeoutSec int  `json:"timeout_sec"`
	RetryMax   *int `json:"retry_max"`
}

type CacheConfig struct {
	Dir       string `json:"dir"`
	RedisAddr string `json:"redis_addr"`
	TTLSec    *int   `json:"ttl_sec"`
}

type DBConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// Source 是一个可抓取的对阵列表页面。
type Source struct {
	Name string
	URL  string
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigPath 为空表示未读取任何配置文件（全部来自默认值/CLI）。
	ConfigPath string

	Season     string
	Players    []string
	Sources    []Source
	ResultsURL string

	// Providers 是抓取回退顺序（web 优先；browser 仅在启用时出现）。
	Providers      []string
	BrowserInstall bool
	BrowserTimeout time.Duration

	ProxyURL    string
	HTTPTimeout time.Duration
	RetryMax    int

	CacheDir  string
	RedisAddr string
	CacheTTL  time.Duration
	Offline   bool

	DBDriver string
	DBDSN    string

	NoiseTables string
	Listen      string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 ConfigPath：必须存在
// 2) 否则尝试 <cwd>/quiniela.json（可选，不存在则全部使用默认值）
//
// 覆盖优先级（固定）：CLI（显式指定）> 配置文件 > 内置默认。
// 配置中的相对路径（cache.dir、sqlite dsn、noise_tables）以配置文件所在目录为基准；
// 没有配置文件时以 cwd 为基准。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	required := false
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		required = true
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		if required {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
		return merge(cwdAbs, "", cli, FileConfig{})
	}
	return merge(filepath.Dir(cfgPath), cfgPath, cli, fc)
}

func merge(base, cfgPath string, cli CLIArgs, fc FileConfig) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	eff := EffectiveConfig{
		ConfigPath:     cfgPath,
		Season:         DefaultSeason,
		Players:        append([]string(nil), DefaultPlayers...),
		Sources:        []Source{{Name: DefaultSourceName, URL: DefaultSourceURL}},
		ResultsURL:     DefaultSourceURL,
		BrowserTimeout: DefaultBrowserWait,
		HTTPTimeout:    DefaultHTTPTimeout,
		RetryMax:       DefaultRetryMax,
		CacheDir:       filepath.Join(base, DefaultCacheDir),
		CacheTTL:       DefaultCacheTTL,
		Offline:        cli.Offline,
		DBDriver:       DefaultDBDriver,
		DBDSN:          filepath.Join(base, DefaultDBDSN),
		Listen:         DefaultListen,
	}

	// season：CLI > config > 默认
	if strings.TrimSpace(fc.Season) != "" {
		eff.Season = strings.TrimSpace(fc.Season)
	}
	if cli.SeasonSet {
		eff.Season = strings.TrimSpace(cli.Season)
	}
	if eff.Season == "" {
		return invalid(errors.New("season 不能为空"))
	}

	if len(fc.Players) > 0 {
		eff.Players = normPlayers(fc.Players)
	}
	if len(fc.Sources) > 0 {
		eff.Sources = eff.Sources[:0]
		seen := make(map[string]struct{}, len(fc.Sources))
		for _, s := range fc.Sources {
			if _, ok := seen[s.Name]; ok {
				return invalid(fmt.Errorf("sources 中重复的 name：%q", s.Name))
			}
			seen[s.Name] = struct{}{}
			eff.Sources = append(eff.Sources, Source{Name: s.Name, URL: strings.TrimSpace(s.URL)})
		}
	}
	if u := strings.TrimSpace(fc.ResultsURL); u != "" {
		eff.ResultsURL = u
	}

	browser := false
	if fc.Browser != nil {
		browser = fc.Browser.Enabled
		eff.BrowserInstall = fc.Browser.Install
		if fc.Browser.TimeoutSec > 0 {
			eff.BrowserTimeout = time.Duration(fc.Browser.TimeoutSec) * time.Second
		}
	}
	if cli.BrowserSet {
		browser = cli.Browser
	}
	eff.Providers = []string{"web"}
	if browser {
		eff.Providers = append(eff.Providers, "browser")
	}

	if fc.Proxy != nil {
		eff.ProxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if eff.ProxyURL != "" {
		u, err := url.Parse(eff.ProxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid(fmt.Errorf("proxy.url 无效：%q", eff.ProxyURL))
		}
	}

	if fc.HTTP != nil {
		if fc.HTTP.TimeoutSec > 0 {
			eff.HTTPTimeout = time.Duration(fc.HTTP.TimeoutSec) * time.Second
		}
		if fc.HTTP.RetryMax != nil {
			eff.RetryMax = *fc.HTTP.RetryMax
		}
	}

	if fc.Cache != nil {
		if d := strings.TrimSpace(fc.Cache.Dir); d != "" {
			eff.CacheDir = absCleanFrom(base, d)
		}
		eff.RedisAddr = strings.TrimSpace(fc.Cache.RedisAddr)
		if fc.Cache.TTLSec != nil {
			eff.CacheTTL = time.Duration(*fc.Cache.TTLSec) * time.Second
		}
	}

	if fc.DB != nil {
		if d := strings.TrimSpace(fc.DB.Driver); d != "" {
			eff.DBDriver = d
		}
		if dsn := strings.TrimSpace(fc.DB.DSN); dsn != "" {
			eff.DBDSN = dsn
		} else if eff.DBDriver != DefaultDBDriver {
			return invalid(fmt.Errorf("db.driver=%s 时 db.dsn 必填", eff.DBDriver))
		}
	}
	if cli.DSNSet {
		eff.DBDSN = strings.TrimSpace(cli.DSN)
	}
	if eff.DBDriver == DefaultDBDriver && !strings.HasPrefix(eff.DBDSN, "file:") && eff.DBDSN != ":memory:" {
		eff.DBDSN = absCleanFrom(base, eff.DBDSN)
	}

	if p := strings.TrimSpace(fc.NoiseTables); p != "" {
		eff.NoiseTables = absCleanFrom(base, p)
	}

	if l := strings.TrimSpace(fc.Listen); l != "" {
		eff.Listen = l
	}
	if cli.ListenSet {
		eff.Listen = strings.TrimSpace(cli.Listen)
	}
	return eff, nil
}

func normPlayers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("quiniela.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("add schema: %v", err))
	}
	return c.MustCompile("quiniela.schema.json")
}

// readFileConfig 读取、按 schema 校验并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := Validate(b); err != nil {
		return FileConfig{}, true, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

// Validate 按内置 JSON Schema 校验原始配置内容。
func Validate(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("JSON 解析失败: %w", err)
	}
	if err := compiledSchema.Validate(v); err != nil {
		return fmt.Errorf("不符合 schema: %w", err)
	}
	return nil
}
