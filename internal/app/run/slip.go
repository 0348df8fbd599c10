package run

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xavivs/la-quiniela/internal/domain"
	"github.com/xavivs/la-quiniela/internal/extract"
	"github.com/xavivs/la-quiniela/internal/pdftext"
)

// maxInputBytes 限制单次上传/读取的输入大小。
const maxInputBytes = 16 << 20

// ParseSlip 解析一段已有的文本（OCR 输出、粘贴的列表等）。
// 解析本身不会失败：识别不到任何对阵时报告为 empty/no_matches。
func (r *Runner) ParseSlip(ctx context.Context, raw domain.RawText, source string) domain.ParseReport {
	started := r.now()
	r.obs.OnStart("parse", r.eff)

	if raw.Origin == "" {
		raw.Origin = domain.OriginOCR
	}
	rep := domain.ParseReport{Source: source, Origin: raw.Origin, StartedAt: started}
	if err := ctx.Err(); err != nil {
		return r.failParse(rep, domain.ErrCodeInputFailed, err.Error())
	}

	var res extract.Result
	if raw.Origin == domain.OriginHTML {
		res = r.parser.ParseHTML([]byte(raw.Text))
	} else {
		res = r.parser.Parse(raw)
	}
	r.obs.OnPhaseDone("extract", map[string]any{
		"matches":    len(res.Matches),
		"strategies": len(res.Attempts),
	}, r.since(started))

	rep.Matches = res.Matches
	rep.Strategies = res.Attempts
	rep.ViaData = res.ViaData
	rep.FinishedAt = r.now()
	rep.Finalize()
	r.log.Debug("slip parsed", "source", source, "origin", raw.Origin, "count", rep.Count)
	return rep
}

// ParseFile 读取本地文件（.pdf / .html / 其他按纯文本）并解析；path 为 "-" 时读 stdin。
func (r *Runner) ParseFile(ctx context.Context, path string) domain.ParseReport {
	if strings.TrimSpace(path) == "-" {
		return r.ParseReader(ctx, os.Stdin, "-")
	}
	f, err := os.Open(path)
	if err != nil {
		rep := domain.ParseReport{Source: path, Origin: originFor(path, nil), StartedAt: r.now()}
		return r.failParse(rep, domain.ErrCodeInputFailed, fmt.Sprintf("读取输入失败：%v", err))
	}
	defer f.Close()
	return r.ParseReader(ctx, f, path)
}

// ParseReader 按文件名后缀与内容嗅探决定来源类型，然后解析。
func (r *Runner) ParseReader(ctx context.Context, in io.Reader, name string) domain.ParseReport {
	started := r.now()
	data, err := io.ReadAll(io.LimitReader(in, maxInputBytes+1))
	if err != nil {
		rep := domain.ParseReport{Source: name, Origin: originFor(name, nil), StartedAt: started}
		return r.failParse(rep, domain.ErrCodeInputFailed, fmt.Sprintf("读取输入失败：%v", err))
	}
	origin := originFor(name, data)
	if len(data) > maxInputBytes {
		rep := domain.ParseReport{Source: name, Origin: origin, StartedAt: started}
		return r.failParse(rep, domain.ErrCodeInputFailed, fmt.Sprintf("输入超过 %d MiB", maxInputBytes>>20))
	}

	text := string(data)
	if origin == domain.OriginPDF {
		t, err := pdftext.Read(data)
		if err != nil {
			rep := domain.ParseReport{Source: name, Origin: origin, StartedAt: started}
			return r.failParse(rep, domain.ErrCodeInputFailed, fmt.Sprintf("PDF 文本提取失败：%v", err))
		}
		r.obs.OnPhaseDone("pdf", map[string]any{"chars": len(t)}, r.since(started))
		text = t
	}

	rep := r.ParseSlip(ctx, domain.RawText{Text: text, Origin: origin}, name)
	rep.StartedAt = started.UTC()
	return rep
}

func (r *Runner) failParse(rep domain.ParseReport, code, msg string) domain.ParseReport {
	rep.Status = domain.StatusFailed
	rep.ErrorCode = code
	rep.ErrorMsg = msg
	rep.FinishedAt = r.now()
	rep.Finalize()
	r.log.Warn("parse failed", "source", rep.Source, "error_code", code, "error", msg)
	return rep
}

// originFor：后缀优先，其次看内容（%PDF- 魔数 / HTML 标签）。
func originFor(name string, data []byte) domain.Origin {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return domain.OriginPDF
	case ".html", ".htm":
		return domain.OriginHTML
	}
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return domain.OriginPDF
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	low := bytes.ToLower(bytes.TrimSpace(head))
	if bytes.HasPrefix(low, []byte("<!doctype html")) || bytes.HasPrefix(low, []byte("<html")) {
		return domain.OriginHTML
	}
	return domain.OriginOCR
}
