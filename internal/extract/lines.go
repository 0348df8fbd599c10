package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xavivs/la-quiniela/internal/domain"
	"github.com/xavivs/la-quiniela/internal/noise"
	"github.com/xavivs/la-quiniela/internal/textnorm"
)

const (
	// plenoTailLines 是兜底 Pleno 扫描回看的行数。
	plenoTailLines = 5
	// plenoNearEnd：距末尾这么多行以内时，两行 Pleno 启发式总是先尝试。
	plenoNearEnd = 3
)

var (
	capTokenRE        = regexp.MustCompile(`^\p{Lu}[\p{L}\p{M}.'’/&]*$`)
	onlyMatchNumberRE = regexp.MustCompile(`^\s*(?:P15|\d{1,2}[.)]?)\s*$`)
)

// stopTokens 会终止“首部大写词串”：日期列、赔率列。
var stopTokens = map[string]struct{}{
	"X": {}, "LUN": {}, "MAR": {}, "MIE": {}, "JUE": {}, "VIE": {}, "SAB": {}, "DOM": {},
}

// lineStrategy 是逐行抽取：两行 Pleno -> 分隔符切分 -> 无分隔符双词启发式。
type lineStrategy struct{}

func (lineStrategy) Name() string { return "lines" }

func (lineStrategy) Run(doc *Document, col *Collector) {
	lines := doc.Lines
	for i := doc.Start; i < len(lines) && !col.Full(); i++ {
		line := lines[i]
		next := ""
		if i+1 < len(lines) {
			next = lines[i+1]
		}

		if plenoTriggered(col.Len(), i, len(lines), line, next) && tryPleno(col, lines, i) {
			i++
			continue
		}
		if home, away, ok := splitDash(col.cleaner, line); ok {
			col.Offer(domain.CandidatePair{HomeRaw: home, AwayRaw: away, SourceLine: i})
			continue
		}
		if !doc.Origin.Scanned() {
			continue
		}
		if home, away, ok := splitTwoTokens(col.cleaner, line); ok {
			col.Offer(domain.CandidatePair{HomeRaw: home, AwayRaw: away, SourceLine: i})
		}
	}
}

// plenoTailStrategy 在主扫描后回看最后几行，给第 15 场第二次机会。
// 不看计数触发条件；最后才用种子表按唯一读到的队名猜对手。
type plenoTailStrategy struct{}

func (plenoTailStrategy) Name() string { return "pleno-tail" }

func (plenoTailStrategy) Run(doc *Document, col *Collector) {
	lines := doc.Lines
	from := len(lines) - plenoTailLines
	if from < doc.Start {
		from = doc.Start
	}
	for k := from; k+1 < len(lines) && !col.Full(); k++ {
		if col.UsedLine(k) || col.UsedLine(k+1) {
			continue
		}
		if textnorm.HasSep(lines[k]) || textnorm.HasSep(lines[k+1]) {
			continue
		}
		if tryPleno(col, lines, k) {
			return
		}
	}
	for k := from; k < len(lines) && !col.Full(); k++ {
		if col.UsedLine(k) || textnorm.HasSep(lines[k]) {
			continue
		}
		seen := strings.Join(leadingRun(col.cleaner, col.cleaner.Clean(lines[k])), " ")
		if seen == "" {
			continue
		}
		if home, ok := col.cleaner.PlenoHint(seen); ok {
			if col.Offer(domain.CandidatePair{HomeRaw: home, AwayRaw: seen, SourceLine: k}) {
				return
			}
		}
	}
}

func plenoTriggered(count, i, total int, line, next string) bool {
	if next == "" || textnorm.HasSep(line) || textnorm.HasSep(next) {
		return false
	}
	return count == domain.RegularCount-1 || count == domain.RegularCount || i >= total-plenoNearEnd
}

// tryPleno 处理跨两行、无分隔符的第 15 场：第 k 行是主队（可能带赔率列），第 k+1 行是客队
// （可能带点线与页码）。两行都像“双词比赛行”时让给双词启发式。
func tryPleno(col *Collector, lines []string, k int) bool {
	if k+1 >= len(lines) {
		return false
	}
	c := col.cleaner
	homeRun := leadingRun(c, plenoHomeSource(c, lines[k]))
	awayRun := leadingRun(c, c.CutColumns(c.Clean(lines[k+1])))
	if len(homeRun) == 0 || len(awayRun) == 0 {
		return false
	}
	if len(groupTeams(c, homeRun)) == 2 && len(groupTeams(c, awayRun)) == 2 {
		return false
	}
	ok := col.Offer(domain.CandidatePair{
		HomeRaw:    strings.Join(homeRun, " "),
		AwayRaw:    strings.Join(awayRun, " "),
		SourceLine: k,
	})
	if ok {
		col.MarkLine(k + 1)
	}
	return ok
}

func plenoHomeSource(c *noise.Cleaner, line string) string {
	return c.Clean(c.StripMatchNumber(line))
}

// splitDash 在第一个可用分隔符处切分：优先 " - "，否则任意单个横线字符。
// 左侧只剩场次编号（"1 - Ajax - Olimpiacos"）时跳到下一个分隔符。
func splitDash(c *noise.Cleaner, line string) (string, string, bool) {
	for off := 0; off < len(line); {
		idx := strings.Index(line[off:], textnorm.Sep)
		if idx < 0 {
			break
		}
		idx += off
		left, right := line[:idx], line[idx+len(textnorm.Sep):]
		if strings.TrimSpace(right) == "" {
			break
		}
		if strings.TrimSpace(left) != "" && !onlyMatchNumberRE.MatchString(left) {
			return left, right, true
		}
		off = idx + len(textnorm.Sep)
	}

	idx := strings.IndexFunc(line, textnorm.IsDash)
	if idx <= 0 {
		return "", "", false
	}
	_, size := utf8.DecodeRuneInString(line[idx:])
	left, right := line[:idx], line[idx+size:]
	if strings.TrimSpace(right) == "" || onlyMatchNumberRE.MatchString(left) {
		return "", "", false
	}
	return left, right, true
}

// splitTwoTokens 处理 OCR 丢掉分隔符的行（"CELTA RAYO"）：取行首大写词串，
// 按复合队名词头分组，恰好两组才接受。
func splitTwoTokens(c *noise.Cleaner, line string) (string, string, bool) {
	run := leadingRun(c, c.Clean(c.StripMatchNumber(line)))
	if len(run) < 2 {
		return "", "", false
	}
	groups := groupTeams(c, run)
	if len(groups) != 2 {
		return "", "", false
	}
	return groups[0], groups[1], true
}

// leadingRun 返回行首连续的大写开头词（允许夹带小写连接词），遇到赔率/日期列即停。
func leadingRun(c *noise.Cleaner, s string) []string {
	toks := strings.Fields(s)
	run := make([]string, 0, len(toks))
	for i, t := range toks {
		if capTokenRE.MatchString(t) {
			if _, stop := stopTokens[textnorm.Fold(strings.TrimSuffix(t, "."))]; stop {
				break
			}
			run = append(run, t)
			continue
		}
		if len(run) > 0 && c.IsConnector(t) && i+1 < len(toks) && capTokenRE.MatchString(toks[i+1]) {
			run = append(run, t)
			continue
		}
		break
	}
	return run
}

// groupTeams 把词串分组成队名："REAL MADRID BARCELONA" -> [REAL MADRID, BARCELONA]。
func groupTeams(c *noise.Cleaner, toks []string) []string {
	var groups []string
	for i := 0; i < len(toks); {
		g := []string{toks[i]}
		i++
		for c.IsCompoundHead(g[len(g)-1]) && i < len(toks) && !c.IsConnector(toks[i]) {
			g = append(g, toks[i])
			i++
		}
		for i+1 < len(toks) && c.IsConnector(toks[i]) {
			g = append(g, toks[i], toks[i+1])
			i += 2
		}
		groups = append(groups, strings.Join(g, " "))
	}
	return groups
}
