package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/xavivs/la-quiniela/internal/api"
	"github.com/xavivs/la-quiniela/internal/app/run"
	"github.com/xavivs/la-quiniela/internal/config"
	"github.com/xavivs/la-quiniela/internal/domain"
	"github.com/xavivs/la-quiniela/internal/infra/fsx"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	var code int
	switch args[0] {
	case "parse", "teams", "results", "jornada", "history", "ranking", "points", "serve":
		code = runCmd(args[0], args[1:])
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		code = 2
	}
	if code != 0 {
		os.Exit(code)
	}
}

func runCmd(cmd string, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printUsage()
			return 0
		}
	}

	ca, err := parseArgs(cmd, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	logger := newLogger(os.Stderr, ca.Verbose, ca.LogJSON)
	slog.SetDefault(logger)

	eff, err := config.LoadEffective(cwd, ca.Config)
	if err != nil {
		emitFailure(cmd, config.Code(err), err.Error())
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	needStore := cmd == "jornada" || cmd == "history" || cmd == "ranking" || cmd == "points" || cmd == "serve" || (cmd == "results" && ca.Apply)
	r, closeFn, err := run.Build(ctx, eff, logger, run.BuildOptions{WithStore: needStore})
	if err != nil {
		code := config.Code(err)
		if code == "" {
			code = domain.ErrCodeStoreFailed
		}
		emitFailure(cmd, code, err.Error())
		return 1
	}
	defer func() {
		if err := closeFn(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	if cmd == "serve" {
		return serveCmd(ctx, r, eff, logger)
	}

	progressW, interactive := pickProgressWriter()
	if interactive {
		ui := newProgressUI(progressW)
		defer ui.Stop()
		r = r.WithObserver(ui)
	}

	var (
		out     any
		ok      bool
		summary string
	)
	switch cmd {
	case "parse":
		rep := r.ParseFile(ctx, ca.Input)
		out, ok, summary = rep, rep.Status != domain.StatusFailed, parseSummary(rep)
	case "teams":
		rep := r.FetchTeams(ctx, ca.Source)
		out, ok, summary = rep, rep.Status != domain.StatusFailed, parseSummary(rep)
	case "results":
		var rep domain.ResultsReport
		if ca.Apply {
			rep = r.ApplyLatestResults(ctx)
		} else {
			rep = r.FetchResults(ctx)
		}
		out, ok, summary = rep, rep.Status != domain.StatusFailed, resultsSummary(rep)
	case "history":
		rep := importHistory(ctx, r, ca.Input)
		out, ok, summary = rep, rep.Status != domain.StatusFailed, historySummary(rep)
	case "ranking":
		rank, err := r.Ranking(ctx, eff.Season)
		if err != nil {
			emitFailure(cmd, domain.ErrCodeStoreFailed, err.Error())
			return 1
		}
		out, ok, summary = map[string]any{"season": eff.Season, "ranking": rank}, true, rankingSummary(eff.Season, rank)
	case "points":
		points, err := r.PointsHistory(ctx, eff.Season)
		if err != nil {
			emitFailure(cmd, domain.ErrCodeStoreFailed, err.Error())
			return 1
		}
		out, ok, summary = map[string]any{"season": eff.Season, "points": points}, true, pointsSummary(eff.Season, points)
	case "jornada":
		v, s, err := jornadaCmd(ctx, r, ca)
		if err != nil {
			emitFailure(cmd, domain.ErrCodeStoreFailed, err.Error())
			return 1
		}
		out, ok, summary = v, true, s
	}

	if ca.Out != "" {
		if err := writeReportFile(ca.Out, out, ca.Force); err != nil {
			switch {
			case errors.Is(err, os.ErrExist):
				fmt.Fprintf(os.Stderr, "%s 已存在（使用 --force 覆盖）\n", ca.Out)
			case fsx.IsPathTypeConflict(err):
				fmt.Fprintf(os.Stderr, "无法写入报告：%v\n", err)
			default:
				fmt.Fprintf(os.Stderr, "写入 %s 失败：%v\n", ca.Out, err)
			}
			emitReport(out, summary)
			return 1
		}
	}
	emitReport(out, summary)
	if interactive && ca.Out != "" {
		fmt.Fprintf(progressW, "report: %s\n", ca.Out)
	}
	if !ok {
		return 1
	}
	return 0
}

func serveCmd(ctx context.Context, r *run.Runner, eff config.EffectiveConfig, logger *slog.Logger) int {
	h := api.NewHandler(r, logger)
	srv := api.NewServer(eff.Listen, h.Routes())
	if err := api.Serve(ctx, srv, logger); err != nil {
		logger.Error("server stopped", "error", err)
		return 1
	}
	return 0
}

func importHistory(ctx context.Context, r *run.Runner, path string) domain.HistoryReport {
	f, err := os.Open(path)
	if err != nil {
		now := time.Now().UTC()
		rep := domain.HistoryReport{
			Source:     path,
			StartedAt:  now,
			FinishedAt: now,
			Status:     domain.StatusFailed,
			ErrorCode:  domain.ErrCodeInputFailed,
			ErrorMsg:   fmt.Sprintf("读取文件失败：%v", err),
		}
		rep.Finalize()
		return rep
	}
	defer f.Close()
	return r.ImportHistory(ctx, f, path)
}

// jornadaCmd 处理 jornada 的子命令：create <number> [--from file|--from-web] / list / get <id>。
func jornadaCmd(ctx context.Context, r *run.Runner, ca cliArgs) (any, string, error) {
	switch ca.Sub {
	case "list":
		list, err := r.ListJornadas(ctx, "")
		if err != nil {
			return nil, "", err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "jornadas: %d", len(list))
		for _, j := range list {
			fmt.Fprintf(&b, "\n  %s  #%d  %s", j.ID, j.Number, j.Season)
		}
		return map[string]any{"jornadas": list}, b.String(), nil
	case "get":
		j, err := r.GetJornada(ctx, ca.Input)
		if err != nil {
			return nil, "", err
		}
		return j, jornadaSummary(j.Number, j.Season, j.Matches), nil
	default:
		var matches []domain.MatchPair
		switch {
		case ca.FromWeb:
			rep := r.FetchTeams(ctx, ca.Source)
			if rep.Status == domain.StatusFailed {
				return nil, "", fmt.Errorf("%s: %s", rep.ErrorCode, rep.ErrorMsg)
			}
			matches = rep.Matches
		case ca.From != "":
			rep := r.ParseFile(ctx, ca.From)
			if rep.Status == domain.StatusFailed {
				return nil, "", fmt.Errorf("%s: %s", rep.ErrorCode, rep.ErrorMsg)
			}
			matches = rep.Matches
		}
		j, err := r.CreateJornada(ctx, ca.Number, "", matches)
		if err != nil {
			return nil, "", err
		}
		return j, jornadaSummary(j.Number, j.Season, j.Matches), nil
	}
}

type cliArgs struct {
	Config config.CLIArgs

	Sub     string
	Input   string
	Number  int
	Source  string
	Apply   bool
	From    string
	FromWeb bool
	Out     string
	Force   bool
	Verbose bool
	LogJSON bool
}

// parseArgs 解析全局参数（--config/--season/--dsn/--listen/--browser/--offline）与各子命令的参数。
func parseArgs(cmd string, args []string) (cliArgs, error) {
	ca := cliArgs{}
	var positional []string

	value := func(i *int, name string) (string, error) {
		a := args[*i]
		if v, ok := strings.CutPrefix(a, name+"="); ok {
			return v, nil
		}
		if *i+1 >= len(args) {
			return "", fmt.Errorf("%s 需要一个值", name)
		}
		*i++
		return args[*i], nil
	}
	is := func(a, name string) bool { return a == name || strings.HasPrefix(a, name+"=") }

	for i := 0; i < len(args); i++ {
		a := args[i]
		var err error
		switch {
		case is(a, "--config"):
			ca.Config.ConfigPath, err = value(&i, "--config")
		case is(a, "--season"):
			ca.Config.Season, err = value(&i, "--season")
			ca.Config.SeasonSet = true
		case is(a, "--dsn"):
			ca.Config.DSN, err = value(&i, "--dsn")
			ca.Config.DSNSet = true
		case is(a, "--listen"):
			ca.Config.Listen, err = value(&i, "--listen")
			ca.Config.ListenSet = true
		case is(a, "--source"):
			ca.Source, err = value(&i, "--source")
		case is(a, "--from"):
			ca.From, err = value(&i, "--from")
		case is(a, "--out"):
			ca.Out, err = value(&i, "--out")
		case a == "--browser":
			ca.Config.Browser = true
			ca.Config.BrowserSet = true
		case strings.HasPrefix(a, "--browser="):
			ca.Config.Browser, err = parseBool("--browser", strings.TrimPrefix(a, "--browser="))
			ca.Config.BrowserSet = true
		case a == "--apply":
			ca.Apply = true
		case a == "--offline":
			ca.Config.Offline = true
		case a == "--from-web":
			ca.FromWeb = true
		case a == "--force":
			ca.Force = true
		case a == "-v" || a == "--verbose":
			ca.Verbose = true
		case a == "--log-json":
			ca.LogJSON = true
		case a == "-" || !strings.HasPrefix(a, "-"):
			positional = append(positional, a)
		default:
			return cliArgs{}, fmt.Errorf("未知参数 %q", a)
		}
		if err != nil {
			return cliArgs{}, err
		}
	}
	if ca.Config.SeasonSet && strings.TrimSpace(ca.Config.Season) == "" {
		return cliArgs{}, fmt.Errorf("--season 不能为空")
	}

	switch cmd {
	case "parse":
		if len(positional) > 1 {
			return cliArgs{}, fmt.Errorf("parse 只接受一个输入文件")
		}
		ca.Input = "-"
		if len(positional) == 1 {
			ca.Input = positional[0]
		}
	case "history":
		if len(positional) != 1 {
			return cliArgs{}, fmt.Errorf("history 需要一个 .xlsx 文件")
		}
		ca.Input = positional[0]
	case "jornada":
		if len(positional) == 0 {
			return cliArgs{}, fmt.Errorf("jornada 需要子命令：create|list|get")
		}
		ca.Sub = positional[0]
		switch ca.Sub {
		case "list":
			if len(positional) != 1 {
				return cliArgs{}, fmt.Errorf("jornada list 不接受额外参数")
			}
		case "get":
			if len(positional) != 2 {
				return cliArgs{}, fmt.Errorf("jornada get 需要一个 id")
			}
			ca.Input = positional[1]
		case "create":
			if len(positional) != 2 {
				return cliArgs{}, fmt.Errorf("jornada create 需要轮次号")
			}
			n, err := strconv.Atoi(positional[1])
			if err != nil {
				return cliArgs{}, fmt.Errorf("轮次号必须是整数，实际是 %q", positional[1])
			}
			ca.Number = n
			if ca.From != "" && ca.FromWeb {
				return cliArgs{}, fmt.Errorf("--from 与 --from-web 不能同时使用")
			}
		default:
			return cliArgs{}, fmt.Errorf("未知的 jornada 子命令 %q", ca.Sub)
		}
	default:
		if len(positional) > 0 {
			return cliArgs{}, fmt.Errorf("%s 不接受位置参数：%q", cmd, positional[0])
		}
	}
	if ca.Apply && cmd != "results" {
		return cliArgs{}, fmt.Errorf("--apply 只用于 results")
	}
	return ca, nil
}

func parseBool(name, v string) (bool, error) {
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", name, v)
	}
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  quiniela parse [file|-]                 解析 OCR 文本 / HTML / PDF（默认读 stdin）
  quiniela teams [--source name]          抓取对阵页面并抽取 15 场比赛
  quiniela results [--apply]              抓取官方结果；--apply 写入最新轮次
  quiniela jornada create <n> [--from file|--from-web]
  quiniela jornada list
  quiniela jornada get <id>
  quiniela history <file.xlsx>            导入历史积分表
  quiniela ranking                        当前赛季积分排名
  quiniela points                         当前赛季逐轮次得分
  quiniela serve                          启动 HTTP 接口

全局参数：
  --config <path>       配置文件（默认 ./quiniela.json，可选）
  --season <YYYY-YY>    赛季
  --dsn <dsn>           数据库 DSN
  --listen <addr>       serve 监听地址
  --browser[=bool]      启用无头浏览器渲染作为后备来源
  --offline             只读缓存，不发网络请求
  --out <path>          额外把 JSON 报告写入文件（已存在时需 --force）
  --force               允许 --out 覆盖已有文件
  -v, --verbose         输出调试日志
  --log-json            日志使用 JSON 格式
  -h, --help            显示帮助
`)
}

func newLogger(w io.Writer, verbose, asJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelWarn}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// emitReport：stdout 是 TTY 时打印人类可读摘要；否则 stdout 只输出一个 JSON（摘要走 stderr）。
func emitReport(v any, summary string) {
	if isTTY(os.Stdout) {
		fmt.Fprintln(os.Stdout, summary)
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
	if line, _, _ := strings.Cut(summary, "\n"); line != "" {
		fmt.Fprintln(os.Stderr, line)
	}
}

type failureReport struct {
	Command   string `json:"command"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

func emitFailure(cmd, code, msg string) {
	emitReport(failureReport{
		Command:   cmd,
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}, fmt.Sprintf("失败：%s %s", code, msg))
}

// writeReportFile 原子写入报告；force=false 时不覆盖已有文件。
func writeReportFile(path string, v any, force bool) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if force {
		return fsx.WriteFileAtomicReplace(filepath.Dir(abs), filepath.Base(abs), b)
	}
	return fsx.WriteFileAtomicNoOverwrite(filepath.Dir(abs), filepath.Base(abs), b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度只在交互终端启用；默认走 stderr。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}
