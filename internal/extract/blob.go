package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/xavivs/la-quiniela/internal/domain"
	"github.com/xavivs/la-quiniela/internal/noise"
	"github.com/xavivs/la-quiniela/internal/textnorm"
)

const (
	// blobCaptureMax 是分隔符扫描中单侧捕获的最大字符数。
	blobCaptureMax = 40
	// segmentBlobMin：按分隔符切开后至少这么多段，才把文本当成一整块 ~15 对。
	segmentBlobMin = 30
)

var (
	blobTerminatorRE = regexp.MustCompile(`[,;|\n]|\.{2,}|…|\d|\bP15\b`)
	genericPairRE    = regexp.MustCompile(`(?:^|\s)([\p{L}\p{N}.'’/][\p{L}\p{N}.'’/ ]{1,34}?) - ([\p{L}\p{N}.'’/ ]{2,35})`)
)

// blobCandidate 是带源区间的候选，区间是规范化文本中的字节偏移。
type blobCandidate struct {
	domain.CandidatePair
	span span
}

// candidateStrategy 把纯函数 Document -> 候选列表 适配为 Strategy。
type candidateStrategy struct {
	name string
	fn   func(doc *Document, c *noise.Cleaner) []blobCandidate
}

func (s candidateStrategy) Name() string { return s.name }

func (s candidateStrategy) Run(doc *Document, col *Collector) {
	for _, bc := range s.fn(doc, col.cleaner) {
		if col.Full() {
			return
		}
		col.offerSpan(bc.CandidatePair, bc.span)
	}
}

// separatorScan 在整段文本上找 "name - name"：主队取左侧最后一个终止符之后的部分，
// 客队取右侧第一个终止符之前的部分（终止符：标点、数字/赔率、下一场标记、换行）。
// 相邻两对不重叠；两个分隔符之间没有终止符时，这段词串由前一对的客队和后一对的主队平分。
// 整块分段文本留给 segmentPairs 按位置配对。
func separatorScan(doc *Document, c *noise.Cleaner) []blobCandidate {
	text := doc.Text
	if segmentBlob(text) {
		return nil
	}
	seps := sepIndexes(text)
	out := make([]blobCandidate, 0, len(seps))
	from := 0
	for n, p := range seps {
		if p < from {
			continue
		}
		left := text[from:p]
		if locs := blobTerminatorRE.FindAllStringIndex(left, -1); len(locs) > 0 {
			left = left[locs[len(locs)-1][1]:]
		}
		left = lastWords(left, blobCaptureMax)

		rightStart := p + len(textnorm.Sep)
		end := len(text)
		if n+1 < len(seps) {
			end = seps[n+1]
		}
		right := text[rightStart:end]
		next := rightStart + len(right)
		if loc := blobTerminatorRE.FindStringIndex(right); loc != nil {
			right = right[:loc[0]]
			next = rightStart + len(right)
		} else if n+1 < len(seps) {
			if k := sharedSplit(c, right); k > 0 {
				next = rightStart + k
				right = right[:k]
			}
		}
		right = firstWords(right, blobCaptureMax)

		if strings.TrimSpace(left) == "" || strings.TrimSpace(right) == "" {
			from = rightStart
			continue
		}
		out = append(out, blobCandidate{
			CandidatePair: domain.CandidatePair{HomeRaw: left, AwayRaw: right, SourceLine: -1},
			span:          span{start: p - len(left), end: rightStart + len(right)},
		})
		from = next
	}
	return out
}

// sharedSplit 给夹在两个分隔符之间的词串找切点，返回客队部分的字节长度；0 表示不切。
// 优先切在复合队名词头（REAL、AT.）之前，否则词数为偶数时对半切。
func sharedSplit(c *noise.Cleaner, run string) int {
	words := strings.Fields(run)
	if len(words) < 2 {
		return 0
	}
	k := 0
	for i := len(words) - 1; i >= 1; i-- {
		if c.IsCompoundHead(words[i]) && i+1 < len(words) {
			k = i
			break
		}
	}
	if k == 0 {
		if len(words)%2 != 0 {
			return 0
		}
		k = len(words) / 2
	}
	// 第 k 个词在 run 中的起点。
	off := 0
	for i := 0; i < k; i++ {
		idx := strings.Index(run[off:], words[i])
		off += idx + len(words[i])
	}
	return off
}

// segmentPairs 处理没有换行的整块 OCR：按分隔符切段，段数足够时按位置两两配对。
func segmentPairs(doc *Document, _ *noise.Cleaner) []blobCandidate {
	text := strings.ReplaceAll(doc.Text, "\n", " ")
	parts := strings.Split(text, textnorm.Sep)
	if len(parts) < segmentBlobMin {
		return nil
	}
	offs := make([]int, len(parts))
	off := 0
	for i, part := range parts {
		offs[i] = off
		off += len(part) + len(textnorm.Sep)
	}
	out := make([]blobCandidate, 0, len(parts)/2)
	for i := 0; i+1 < len(parts); i += 2 {
		out = append(out, blobCandidate{
			CandidatePair: domain.CandidatePair{HomeRaw: parts[i], AwayRaw: parts[i+1], SourceLine: -1},
			span:          span{start: offs[i], end: offs[i+1] + len(parts[i+1])},
		})
	}
	return out
}

// genericPairs 是最宽松的兜底：逐行匹配 "X - Y"，两侧都从词边界开始/结束。
func genericPairs(doc *Document, _ *noise.Cleaner) []blobCandidate {
	var out []blobCandidate
	for i, ln := range doc.Lines {
		base, ok := doc.lineSpan(i)
		if !ok {
			continue
		}
		for _, m := range genericPairRE.FindAllStringSubmatchIndex(ln, -1) {
			home := ln[m[2]:m[3]]
			away := ln[m[4]:m[5]]
			if m[5] < len(ln) && isWordRune(firstRune(ln[m[5]:])) {
				away = trimPartialTail(away)
			}
			if strings.TrimSpace(away) == "" {
				continue
			}
			out = append(out, blobCandidate{
				CandidatePair: domain.CandidatePair{HomeRaw: home, AwayRaw: away, SourceLine: i},
				span:          span{start: base.start + m[2], end: base.start + m[4] + len(away)},
			})
		}
	}
	return out
}

func segmentBlob(text string) bool {
	return strings.Count(strings.ReplaceAll(text, "\n", " "), textnorm.Sep)+1 >= segmentBlobMin
}

func sepIndexes(s string) []int {
	var out []int
	for off := 0; ; {
		idx := strings.Index(s[off:], textnorm.Sep)
		if idx < 0 {
			return out
		}
		out = append(out, off+idx)
		off += idx + len(textnorm.Sep)
	}
}

// lastWords 取末尾至多 n 个字符；截断落在词中间时丢掉残词。
func lastWords(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := len(r) - n
	if unicode.IsSpace(r[cut-1]) || unicode.IsSpace(r[cut]) {
		return string(r[cut:])
	}
	tail := string(r[cut:])
	idx := strings.IndexFunc(tail, unicode.IsSpace)
	if idx < 0 {
		return ""
	}
	return tail[idx:]
}

// firstWords 取开头至多 n 个字符；截断落在词中间时丢掉残词。
func firstWords(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if unicode.IsSpace(r[n]) || unicode.IsSpace(r[n-1]) {
		return string(r[:n])
	}
	return trimPartialTail(string(r[:n]))
}

func trimPartialTail(s string) string {
	idx := strings.LastIndexFunc(s, unicode.IsSpace)
	if idx < 0 {
		return ""
	}
	return s[:idx]
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func isWordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
