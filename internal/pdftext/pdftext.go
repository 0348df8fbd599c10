// Package pdftext 读取带文字层的 PDF 投注单/结果单，输出按行排列的纯文本。
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoText 表示 PDF 没有可提取的文字层（扫描件需要先 OCR）。
var ErrNoText = errors.New("pdf 没有文字层")

// ReadFile 打开并读取本地 PDF。
func ReadFile(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("打开 PDF 失败: %w", err)
	}
	defer f.Close()
	return extract(r)
}

// Read 从内存中的 PDF 读取文本（HTTP 上传场景）。
func Read(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("解析 PDF 失败: %w", err)
	}
	return extract(r)
}

// extract 优先按行拼接（每行内的文字片段以空格连接），保留“一行一场比赛”的结构；
// 按行提取失败时退回整份纯文本。
func extract(r *pdf.Reader) (string, error) {
	text, err := byRows(r)
	if err != nil || strings.TrimSpace(text) == "" {
		text, err = plain(r)
		if err != nil {
			return "", err
		}
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

func byRows(r *pdf.Reader) (string, error) {
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("第 %d 页: %w", i, err)
		}
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, t := range row.Content {
				if s := strings.TrimSpace(t.S); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				b.WriteString(strings.Join(parts, " "))
				b.WriteByte('\n')
			}
		}
	}
	return b.String(), nil
}

func plain(r *pdf.Reader) (string, error) {
	rd, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("提取 PDF 文本失败: %w", err)
	}
	data, err := io.ReadAll(rd)
	if err != nil {
		return "", fmt.Errorf("读取 PDF 文本失败: %w", err)
	}
	return string(data), nil
}
