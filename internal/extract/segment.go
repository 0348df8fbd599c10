package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/xavivs/la-quiniela/internal/domain"
	"github.com/xavivs/la-quiniela/internal/textnorm"
)

// bannerScanLines 是横幅检测只看的开头行数。
const bannerScanLines = 8

var (
	sectionMarkerRE = regexp.MustCompile(`(?i)\bjornada\s*(?:n[º°o]\.?\s*)?\d{1,3}\b`)
	bannerRE        = regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(?:PRONOSTICOS?|QUINIELA|JORNADA|DIA/HORA|DIA|HORA|1X2|PART\.?|LOTERIAS|APUESTAS|LOCAL|VISITANTE|PARTIDO|LUNES|MARTES|MIERCOLES|JUEVES|VIERNES|SABADO|DOMINGO)(?:$|[^\p{L}\p{N}])`)
)

// Document 是一次解析的工作视图：规范化文本 + 非空行 + 起始行。
type Document struct {
	Text   string
	Lines  []string
	Start  int
	Origin domain.Origin

	// spans[i] 是 Lines[i] 在 Text 中的字节区间 [start, end)。
	spans []span
}

type span struct{ start, end int }

func (a span) overlaps(b span) bool { return a.start < b.end && b.start < a.end }

// Segment 把规范化文本拆成行并定位比赛列表的起点。
//
// 起点规则（依次）：
// 1) 第一个轮次标记行（"Jornada 12"）之后，且其后确实还有带分隔符的行；
// 2) 开头几行中最后一个横幅行之后；
// 3) 否则从 0 开始（不跳过任何行）。
func Segment(normalized string) *Document {
	lines := textnorm.Lines(normalized)
	return &Document{
		Text:  normalized,
		Lines: lines,
		Start: startIndex(lines),
		spans: lineSpans(normalized),
	}
}

// lineSpans 与 textnorm.Lines 一一对应：同样按换行切分、去掉首尾空白、跳过空行。
func lineSpans(s string) []span {
	var out []span
	off := 0
	for _, raw := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" {
			lead := len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace))
			out = append(out, span{start: off + lead, end: off + lead + len(trimmed)})
		}
		off += len(raw) + 1
	}
	return out
}

func (d *Document) lineSpan(i int) (span, bool) {
	if i < 0 || i >= len(d.spans) {
		return span{}, false
	}
	return d.spans[i], true
}

func startIndex(lines []string) int {
	for i, ln := range lines {
		if strings.Contains(ln, textnorm.Sep) || !sectionMarkerRE.MatchString(ln) {
			continue
		}
		if anySep(lines[i+1:]) {
			return i + 1
		}
		break
	}

	start := 0
	for i := 0; i < len(lines) && i < bannerScanLines; i++ {
		if textnorm.HasSep(lines[i]) {
			continue
		}
		if bannerRE.MatchString(textnorm.Fold(lines[i])) {
			start = i + 1
		}
	}
	return start
}

func anySep(lines []string) bool {
	for _, ln := range lines {
		if textnorm.HasSep(ln) {
			return true
		}
	}
	return false
}
