// Package textnorm 把 OCR / HTML 派生文本规范化为下游统一消费的形式：
// 各种横线统一为 " - "，空白折叠，换行保留。
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Sep 是规范化后的唯一分隔符。
const Sep = " - "

// dashClass 覆盖 ASCII 连字符、U+2010..U+2015 与数学减号。
const dashClass = `\-\x{2010}-\x{2015}\x{2212}`

var (
	dashEntityRE = regexp.MustCompile(`(?i)&(?:ndash|mdash|#8211|#8212|#x2013|#x2014);`)
	nbspEntityRE = regexp.MustCompile(`(?i)&(?:nbsp|#160|#xa0);`)

	// "P-15" 是第 15 场的标记，不是主客分隔。
	plenoTagRE = regexp.MustCompile(`(?i)\bP[ \t]*[` + dashClass + `][ \t]*15\b[ \t]*`)
	dotDashRE  = regexp.MustCompile(`([\p{L}\p{N}])\.[ \t]*[` + dashClass + `]+[ \t]*([\p{L}\p{N}])`)
	dashRunRE  = regexp.MustCompile(`[ \t]*[` + dashClass + `]+[ \t]*`)

	hspaceRE = regexp.MustCompile(`[\t\f\v \x{00A0}\x{2000}-\x{200B}\x{202F}\x{205F}\x{3000}]+`)
)

// Normalize 是全函数：任何输入（含空串）都有输出，且 Normalize(Normalize(s)) == Normalize(s)。
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = dashEntityRE.ReplaceAllString(s, Sep)
	s = nbspEntityRE.ReplaceAllString(s, " ")
	s = plenoTagRE.ReplaceAllString(s, "P15 ")
	// 连续的 "A.-B.-C" 需要多轮；每轮至少消去一个点，必然终止。
	for {
		next := dotDashRE.ReplaceAllString(s, "$1"+Sep+"$2")
		if next == s {
			break
		}
		s = next
	}
	s = dashRunRE.ReplaceAllString(s, Sep)

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, ln := range lines {
		ln = strings.TrimSpace(hspaceRE.ReplaceAllString(ln, " "))
		out = append(out, ln)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Lines 把规范化文本拆为非空行（保持原顺序）。
func Lines(s string) []string {
	raw := strings.Split(s, "\n")
	out := make([]string, 0, len(raw))
	for _, ln := range raw {
		ln = strings.TrimSpace(ln)
		if ln != "" {
			out = append(out, ln)
		}
	}
	return out
}

// HasSep 判断一行是否包含任意横线类分隔符。
func HasSep(s string) bool {
	return strings.ContainsFunc(s, IsDash)
}

func IsDash(r rune) bool {
	return r == '-' || (r >= 0x2010 && r <= 0x2015) || r == 0x2212
}

var foldChain = func() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Fold 去掉重音并转大写，用于词表匹配（"Pronóstico" -> "PRONOSTICO"）。
func Fold(s string) string {
	out, _, err := transform.String(foldChain(), s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(out)
}
