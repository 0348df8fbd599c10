package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEffective_DefaultsWithoutConfig(t *testing.T) {
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ConfigPath != "" {
		t.Fatalf("期望未读取配置文件，实际=%q", eff.ConfigPath)
	}
	if eff.Season != DefaultSeason {
		t.Fatalf("期望 season=%q，实际=%q", DefaultSeason, eff.Season)
	}
	if len(eff.Players) != 8 || eff.Players[0] != "Xavi" {
		t.Fatalf("期望默认 8 名参与者，实际=%v", eff.Players)
	}
	if len(eff.Sources) != 1 || eff.Sources[0].URL != DefaultSourceURL {
		t.Fatalf("期望默认 source，实际=%+v", eff.Sources)
	}
	if len(eff.Providers) != 1 || eff.Providers[0] != "web" {
		t.Fatalf("期望 providers=[web]，实际=%v", eff.Providers)
	}
	if eff.DBDSN != filepath.Join(cwd, DefaultDBDSN) {
		t.Fatalf("期望 sqlite dsn 以 cwd 为基准，实际=%q", eff.DBDSN)
	}
	if eff.CacheDir != filepath.Join(cwd, DefaultCacheDir) {
		t.Fatalf("期望 cache dir 以 cwd 为基准，实际=%q", eff.CacheDir)
	}
}

func TestLoadEffective_ExplicitConfigNotFound(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{ConfigPath: "missing.json"})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_FileValues(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{
		"season": "2025-26",
		"players": ["Ana", " Pau "],
		"sources": [{"name": "mirror", "url": "https://example.com/q"}],
		"browser": {"enabled": true, "timeout_sec": 10},
		"proxy": {"url": "http://127.0.0.1:7890"},
		"cache": {"dir": "c", "redis_addr": "127.0.0.1:6379", "ttl_sec": 60},
		"db": {"driver": "sqlite", "dsn": "data/q.db"},
		"noise_tables": "noise.json",
		"listen": ":9090"
	}`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Season != "2025-26" {
		t.Fatalf("期望 season=2025-26，实际=%q", eff.Season)
	}
	if len(eff.Players) != 2 || eff.Players[1] != "Pau" {
		t.Fatalf("players 不符合预期：%v", eff.Players)
	}
	if eff.Sources[0].Name != "mirror" {
		t.Fatalf("sources 不符合预期：%+v", eff.Sources)
	}
	if len(eff.Providers) != 2 || eff.Providers[1] != "browser" {
		t.Fatalf("期望 browser 加入回退链，实际=%v", eff.Providers)
	}
	if eff.BrowserTimeout != 10*time.Second {
		t.Fatalf("期望 browser timeout=10s，实际=%v", eff.BrowserTimeout)
	}
	if eff.CacheDir != filepath.Join(cwd, "c") || eff.CacheTTL != time.Minute || eff.RedisAddr != "127.0.0.1:6379" {
		t.Fatalf("cache 配置不符合预期：%+v", eff)
	}
	if eff.DBDSN != filepath.Join(cwd, "data", "q.db") {
		t.Fatalf("期望相对 dsn 以配置目录为基准，实际=%q", eff.DBDSN)
	}
	if eff.NoiseTables != filepath.Join(cwd, "noise.json") {
		t.Fatalf("noise_tables 不符合预期：%q", eff.NoiseTables)
	}
	if eff.Listen != ":9090" {
		t.Fatalf("listen 不符合预期：%q", eff.Listen)
	}
}

func TestLoadEffective_CLIOverrides(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{"season":"2025-26","browser":{"enabled":true},"listen":":9090"}`))

	eff, err := LoadEffective(cwd, CLIArgs{
		Season: "2023-24", SeasonSet: true,
		Browser: false, BrowserSet: true, // --browser=false
		Listen: ":1", ListenSet: true,
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Season != "2023-24" {
		t.Fatalf("期望 CLI season 覆盖，实际=%q", eff.Season)
	}
	if len(eff.Providers) != 1 {
		t.Fatalf("期望 --browser=false 覆盖配置，实际=%v", eff.Providers)
	}
	if eff.Listen != ":1" {
		t.Fatalf("期望 CLI listen 覆盖，实际=%q", eff.Listen)
	}
}

func TestLoadEffective_ExplicitConfigRelativeBase(t *testing.T) {
	cwd := t.TempDir()
	dir := filepath.Join(cwd, "etc")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	writeFile(t, filepath.Join(dir, "q.json"), []byte(`{"cache":{"dir":"cache"}}`))

	eff, err := LoadEffective(cwd, CLIArgs{ConfigPath: "etc/q.json"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.CacheDir != filepath.Join(dir, "cache") {
		t.Fatalf("期望以配置文件目录为基准，实际=%q", eff.CacheDir)
	}
}

func TestLoadEffective_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"syntax":        `{`,
		"unknown field": `{"provider":"javbus"}`,
		"bad season":    `{"season":"2024"}`,
		"bad driver":    `{"db":{"driver":"mysql"}}`,
		"bad source":    `{"sources":[{"name":"x","url":"ftp://x"}]}`,
		"negative ttl":  `{"cache":{"ttl_sec":-1}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			cwd := t.TempDir()
			writeFile(t, filepath.Join(cwd, FileName), []byte(body))
			_, err := LoadEffective(cwd, CLIArgs{})
			if Code(err) != ErrCodeInvalid {
				t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
			}
		})
	}
}

func TestLoadEffective_PostgresRequiresDSN(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{"db":{"driver":"postgres"}}`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func TestLoadEffective_DuplicateSourceName(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{"sources":[{"name":"a","url":"https://a"},{"name":"a","url":"https://b"}]}`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func TestLoadEffective_InvalidProxyURL(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{"proxy":{"url":"http://[::1"}}`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}
