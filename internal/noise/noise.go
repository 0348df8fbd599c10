// Package noise 负责队名候选的清洗与判定：表头/噪声分类、前后缀垃圾剥离、列泄漏截断与接受性检查。
package noise

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xavivs/la-quiniela/internal/textnorm"
)

const (
	// MaxPasses 限制前/后缀剥离的轮数，保证在病态输入上也能终止。
	MaxPasses = 8

	MinNameLen = 2
	MaxNameLen = 50

	shortNoiseLen = 10
)

var (
	onlyDotsRE = regexp.MustCompile(`^[.\s]+$`)
	timeRE     = regexp.MustCompile(`\d{1,2}:\d{2}\s*(?:LUN|MAR|MIE|JUE|VIE|SAB|DOM)|(?:LUN|MAR|MIE|JUE|VIE|SAB|DOM)[A-Z]*\.?\s*\d{1,2}:\d{2}`)
	oddsCellRE = regexp.MustCompile(`^\d\s*X\s*\d$`)
	spacesRE   = regexp.MustCompile(`\s+`)
	wordRE     = regexp.MustCompile(`[\p{L}\p{M}]+`)

	matchNumberRE = []*regexp.Regexp{
		regexp.MustCompile(`^P15\s*`),
		regexp.MustCompile(`^\d{1,2}\s*[.):\-]\s*`),
		regexp.MustCompile(`^\d{1,2}\s+`),
		regexp.MustCompile(`^[lI]\.\s*`),
	}
)

type compiledRule struct {
	name    string
	re      *regexp.Regexp
	replace string
}

// Cleaner 是编译后的词表，可被多个 goroutine 并发使用（只读）。
type Cleaner struct {
	prefixes []compiledRule
	suffixes []compiledRule

	strongRE *regexp.Regexp
	shortRE  *regexp.Regexp
	colRE    []*regexp.Regexp

	canonical  map[string]string
	heads      map[string]struct{}
	connectors map[string]struct{}
	hints      []hint
}

type hint struct {
	prefix   string
	opponent string
}

// Compile 把 Tables 编译为 Cleaner；任一规则无法编译即返回错误。
func Compile(t Tables) (*Cleaner, error) {
	c := &Cleaner{
		canonical:  make(map[string]string, len(t.Canonical)),
		heads:      make(map[string]struct{}, len(t.CompoundHeads)),
		connectors: make(map[string]struct{}, len(t.Connectors)),
	}
	var err error
	if c.prefixes, err = compileRules(t.JunkPrefixes, "junk_prefixes"); err != nil {
		return nil, err
	}
	if c.suffixes, err = compileRules(t.JunkSuffixes, "junk_suffixes"); err != nil {
		return nil, err
	}
	c.strongRE = vocabRE(t.StrongVocab)
	c.shortRE = vocabRE(t.ShortNoise)
	c.colRE = columnREs(t.ShortNoise)

	for k, v := range t.Canonical {
		c.canonical[textnorm.Fold(k)] = v
	}
	for _, h := range t.CompoundHeads {
		c.heads[textnorm.Fold(h)] = struct{}{}
	}
	for _, w := range t.Connectors {
		c.connectors[strings.ToLower(w)] = struct{}{}
	}
	for k, v := range t.PlenoHints {
		c.hints = append(c.hints, hint{prefix: textnorm.Fold(k), opponent: v})
	}
	// 长前缀优先，结果与 map 遍历顺序无关。
	sort.Slice(c.hints, func(i, j int) bool {
		if len(c.hints[i].prefix) != len(c.hints[j].prefix) {
			return len(c.hints[i].prefix) > len(c.hints[j].prefix)
		}
		return c.hints[i].prefix < c.hints[j].prefix
	})
	return c, nil
}

// MustCompile 与 Compile 相同，但失败时 panic（仅用于内置词表）。
func MustCompile(t Tables) *Cleaner {
	c, err := Compile(t)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultCleaner = MustCompile(DefaultTables())

// Default 返回基于内置种子词表的 Cleaner。
func Default() *Cleaner { return defaultCleaner }

func compileRules(rules []Rule, field string) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if strings.TrimSpace(r.Pattern) == "" {
			return nil, fmt.Errorf("%s[%d] pattern 不能为空", field, i)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%s[%d] (%s) 无效：%w", field, i, r.Name, err)
		}
		out = append(out, compiledRule{name: r.Name, re: re, replace: r.Replace})
	}
	return out, nil
}

// vocabRE 构造整词匹配的正则：词前后必须是非字母数字或边界。
func vocabRE(words []string) *regexp.Regexp {
	alts := make([]string, 0, len(words))
	for _, w := range words {
		w = textnorm.Fold(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		alts = append(alts, regexp.QuoteMeta(w))
	}
	if len(alts) == 0 {
		return nil
	}
	// 长词优先，避免 "DIA" 抢先于 "DIA HORA"。
	sort.SliceStable(alts, func(i, j int) bool { return len(alts[i]) > len(alts[j]) })
	return regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(?:` + strings.Join(alts, "|") + `)(?:$|[^\p{L}\p{N}])`)
}

func columnREs(shortNoise []string) []*regexp.Regexp {
	tokens := []string{"LUN", "MAR", "MIE", "MIÉ", "JUE", "VIE", "SAB", "SÁB", "DOM"}
	for _, w := range shortNoise {
		if w = strings.TrimSpace(w); w != "" {
			tokens = append(tokens, regexp.QuoteMeta(w))
		}
	}
	return []*regexp.Regexp{
		regexp.MustCompile(`,`),
		regexp.MustCompile(`\.{2,}|…`),
		// 相邻列泄漏：1–2 位数字后跟更多数字（时间、赔率、页码）。
		regexp.MustCompile(`\s+\d{1,2}(?:[\s.:,]*\d|\s*[xX]\s*\d)`),
		regexp.MustCompile(`(?i)\s+\d{1,2}\s*(?:` + strings.Join(tokens, "|") + `)(?:$|[^\p{L}])`),
		regexp.MustCompile(`\s+[12X](?:\s+[12X]){2}(?:$|\s)`),
		// 下一场的场次编号："Olimpiacos 2.Celtic"。
		regexp.MustCompile(`\s+\d{1,2}[.)]\s*\p{L}`),
		regexp.MustCompile(` - `),
		regexp.MustCompile(`\bP15\b`),
	}
}

// IsNoise 判断候选名是否为表头/横幅/OCR 垃圾。它偏向精确：宁可放过，也不误杀
// "R.Sociedad" 这类带单个内部点的短队名。
func (c *Cleaner) IsNoise(name string) bool {
	s := strings.TrimSpace(name)
	n := utf8.RuneCountInString(s)
	if n < MinNameLen {
		return true
	}
	if onlyDotsRE.MatchString(s) {
		return true
	}
	if strings.Count(s, ".") >= 3 || strings.Contains(s, "..") {
		return true
	}
	f := textnorm.Fold(s)
	if c.strongRE != nil && c.strongRE.MatchString(f) {
		return true
	}
	if timeRE.MatchString(f) || oddsCellRE.MatchString(f) {
		return true
	}
	if n < shortNoiseLen && c.shortRE != nil && c.shortRE.MatchString(f) {
		return true
	}
	return false
}

// Valid 是单侧接受性检查：长度在 [2,50]、含字母、非噪声。
func (c *Cleaner) Valid(name string) bool {
	n := utf8.RuneCountInString(name)
	if n < MinNameLen || n > MaxNameLen {
		return false
	}
	if name != strings.TrimSpace(name) {
		return false
	}
	if !strings.ContainsFunc(name, unicode.IsLetter) {
		return false
	}
	return !c.IsNoise(name)
}

// Accept 是一对候选的接受性检查。
func (c *Cleaner) Accept(home, away string) bool {
	if !c.Valid(home) || !c.Valid(away) {
		return false
	}
	return !strings.EqualFold(home, away)
}

// StripMatchNumber 去掉主队一侧的场次编号（"1.", "14 ", "P15 "，以及 OCR 把 1 读成 l/I 的 "l."）。
func (c *Cleaner) StripMatchNumber(s string) string {
	s = strings.TrimSpace(s)
	for _, re := range matchNumberRE {
		if loc := re.FindStringIndex(s); loc != nil && loc[1] < len(s) {
			s = strings.TrimSpace(s[loc[1]:])
		}
	}
	return s
}

// CutColumns 在第一个“列泄漏”位置截断：逗号、省略号、数字列、赔率、下一场编号、分隔符。
func (c *Cleaner) CutColumns(s string) string {
	cut := len(s)
	for _, re := range c.colRE {
		if loc := re.FindStringIndex(s); loc != nil && loc[0] < cut {
			cut = loc[0]
		}
	}
	return strings.TrimSpace(s[:cut])
}

// Clean 对单个队名做前缀剥离（到不动点）、后缀剥离（到不动点）与规范化。
// 规则只会剥掉明确命中的部分；若某条规则会把名字剥空，则保留剥离前的结果。
func (c *Cleaner) Clean(name string) string {
	s := collapse(name)
	s = stripToFixedPoint(s, c.prefixes)
	s = stripToFixedPoint(s, c.suffixes)
	// 行内的 '|' 几乎总是 OCR 把 I 读错。
	s = collapse(strings.ReplaceAll(s, "|", "I"))
	return c.canonicalize(s)
}

// CleanHome / CleanAway 是单一清洗流水线的两侧入口：所有策略产出的候选都经过它们。
func (c *Cleaner) CleanHome(raw string) string {
	s := c.Clean(c.StripMatchNumber(raw))
	return c.Clean(c.CutColumns(s))
}

func (c *Cleaner) CleanAway(raw string) string {
	s := c.Clean(raw)
	return c.Clean(c.CutColumns(s))
}

// IsCompoundHead 判断 token 是否是复合队名的词头（REAL、AT.）。
func (c *Cleaner) IsCompoundHead(token string) bool {
	_, ok := c.heads[textnorm.Fold(token)]
	return ok
}

func (c *Cleaner) IsConnector(token string) bool {
	_, ok := c.connectors[strings.ToLower(token)]
	return ok
}

// PlenoHint 返回种子表中与 seen 对阵的主队猜测。
func (c *Cleaner) PlenoHint(seen string) (string, bool) {
	f := textnorm.Fold(seen)
	for _, h := range c.hints {
		if strings.HasPrefix(f, h.prefix) {
			return h.opponent, true
		}
	}
	return "", false
}

func stripToFixedPoint(s string, rules []compiledRule) string {
	for pass := 0; pass < MaxPasses; pass++ {
		before := s
		for _, r := range rules {
			next := strings.TrimSpace(r.re.ReplaceAllString(s, r.replace))
			if next == "" {
				continue
			}
			s = next
		}
		if s == before {
			break
		}
	}
	return s
}

func (c *Cleaner) canonicalize(s string) string {
	if len(c.canonical) == 0 {
		return s
	}
	return wordRE.ReplaceAllStringFunc(s, func(w string) string {
		v, ok := c.canonical[textnorm.Fold(w)]
		if !ok {
			return w
		}
		return matchCase(w, v)
	})
}

// matchCase 让替换词沿用原词的大小写风格（全大写 / 首字母大写）。
func matchCase(orig, repl string) string {
	if strings.ToUpper(orig) == orig {
		return strings.ToUpper(repl)
	}
	lower := []rune(strings.ToLower(repl))
	if len(lower) > 0 {
		lower[0] = unicode.ToUpper(lower[0])
	}
	return string(lower)
}

func collapse(s string) string {
	return strings.TrimSpace(spacesRE.ReplaceAllString(s, " "))
}
