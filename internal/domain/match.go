package domain

import (
	"fmt"
	"strings"
)

// SlotCount 是一张 quiniela 的固定槽位数：14 个 1X2 + 第 15 个 Pleno al 15。
const (
	SlotCount    = 15
	RegularCount = 14
)

// Origin 标记原始文本的来源，决定提示文案与入口路径。
type Origin string

const (
	OriginOCR  Origin = "ocr"
	OriginHTML Origin = "html"
	OriginPDF  Origin = "pdf"
)

// Scanned 报告文本是否来自扫描/OCR 类来源（未标注视为 OCR）。
// 网页派生文本有大量导航行，不适用“无分隔符双词”启发式。
func (o Origin) Scanned() bool { return o != OriginHTML }

// RawText 是一次解析调用的输入（不可变）。
type RawText struct {
	Text   string
	Origin Origin
}

// CandidatePair 是任一抽取策略产出的、尚未清洗/校验的 (home, away)。
// SourceLine 为 -1 表示来自整段文本（blob）而非某一行。
type CandidatePair struct {
	HomeRaw    string `json:"home_raw"`
	AwayRaw    string `json:"away_raw"`
	SourceLine int    `json:"source_line_index"`
}

// MatchPair 是对外输出单元。
type MatchPair struct {
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`
}

func (p MatchPair) IsEmpty() bool {
	return strings.TrimSpace(p.HomeTeam) == "" && strings.TrimSpace(p.AwayTeam) == ""
}

// Key 用于单次解析内的去重（大小写不敏感）。
func (p MatchPair) Key() string {
	return strings.ToUpper(p.HomeTeam) + "|" + strings.ToUpper(p.AwayTeam)
}

func (p MatchPair) String() string {
	return p.HomeTeam + " - " + p.AwayTeam
}

// PadMatches 把 0..n 个结果补齐/截断为恰好 15 个槽位（空槽为 ""）。
func PadMatches(list []MatchPair) []MatchPair {
	out := make([]MatchPair, SlotCount)
	copy(out, list)
	return out
}

// CountFilled 统计非空槽位数。
func CountFilled(list []MatchPair) int {
	n := 0
	for _, m := range list {
		if !m.IsEmpty() {
			n++
		}
	}
	return n
}

// StatusMessage 返回面向用户的计数提示（西语，与前端文案一致）。
// viaData=true 表示结果来自页面内嵌的结构化数据。
func StatusMessage(origin Origin, n int, viaData bool) string {
	switch origin {
	case OriginHTML:
		if n == 0 {
			return "No se encontraron partidos en el HTML (la página puede cargar datos por JavaScript). Rellena los equipos a mano o prueba más tarde."
		}
		if viaData {
			return fmt.Sprintf("Se encontraron %d partidos (desde datos de la página).", n)
		}
		return fmt.Sprintf("Se encontraron %d partidos. Revisa y corrige si hace falta.", n)
	default:
		label := "OCR"
		if origin == OriginPDF {
			label = "PDF"
		}
		if n == 0 {
			return label + " no detectó partidos (Local - Visitante). Revisa el texto leído o sube otro archivo."
		}
		return fmt.Sprintf("%s: %d partidos detectados. Revisa la tabla.", label, n)
	}
}
