package extract

import (
	"strings"

	"github.com/xavivs/la-quiniela/internal/domain"
	"github.com/xavivs/la-quiniela/internal/noise"
	"github.com/xavivs/la-quiniela/internal/textnorm"
)

// Collector 是所有策略共享的唯一清洗/校验/去重流水线。
// 它只活在一次 Parse 调用内，不跨调用共享。
//
// 除了按队名去重，Collector 还记录已被消费的源文本区间：兜底策略重新扫到同一段文字时，
// 即使切出的队名不同也不会再产出一对。
type Collector struct {
	cleaner *noise.Cleaner
	max     int
	doc     *Document

	seen    map[string]struct{}
	used    map[int]struct{}
	claimed []span
	out     []domain.MatchPair
	found   int
	taken   int
}

func newCollector(c *noise.Cleaner, max int, doc *Document) *Collector {
	return &Collector{
		cleaner: c,
		max:     max,
		doc:     doc,
		seen:    make(map[string]struct{}, max),
		used:    make(map[int]struct{}, max),
		out:     make([]domain.MatchPair, 0, max),
	}
}

// Offer 清洗并尝试接受一个候选；返回是否被接受。
func (c *Collector) Offer(cp domain.CandidatePair) bool {
	c.found++
	if c.Full() {
		return false
	}
	m := domain.MatchPair{
		HomeTeam: c.cleaner.CleanHome(cp.HomeRaw),
		AwayTeam: c.cleaner.CleanAway(cp.AwayRaw),
	}
	if !c.cleaner.Accept(m.HomeTeam, m.AwayTeam) {
		return false
	}
	key := m.Key()
	if _, dup := c.seen[key]; dup {
		return false
	}
	c.seen[key] = struct{}{}
	c.out = append(c.out, m)
	c.taken++
	if cp.SourceLine >= 0 {
		c.MarkLine(cp.SourceLine)
	}
	return true
}

// offerSpan 用于兜底策略：与已消费区间重叠的候选直接跳过；接受后登记该区间。
func (c *Collector) offerSpan(cp domain.CandidatePair, sp span) bool {
	if c.overlapsClaimed(sp) {
		c.found++
		return false
	}
	if !c.Offer(cp) {
		return false
	}
	c.claimed = append(c.claimed, sp)
	return true
}

func (c *Collector) overlapsClaimed(sp span) bool {
	for _, cl := range c.claimed {
		if cl.overlaps(sp) {
			return true
		}
	}
	return false
}

func (c *Collector) Len() int   { return len(c.out) }
func (c *Collector) Full() bool { return len(c.out) >= c.max }

// MarkLine 标记某行已被消费（例如两行 Pleno 的第二行），整行区间随之登记。
// 含多个分隔符的行（没换行的整块）只按队名去重，留给兜底策略逐对切分。
func (c *Collector) MarkLine(i int) {
	c.used[i] = struct{}{}
	if c.doc == nil || i >= len(c.doc.Lines) || strings.Count(c.doc.Lines[i], textnorm.Sep) > 1 {
		return
	}
	if sp, ok := c.doc.lineSpan(i); ok {
		c.claimed = append(c.claimed, sp)
	}
}

func (c *Collector) UsedLine(i int) bool {
	_, ok := c.used[i]
	return ok
}

// Matches 返回结果副本；没有结果时是空切片而不是 nil。
func (c *Collector) Matches() []domain.MatchPair {
	out := make([]domain.MatchPair, len(c.out))
	copy(out, c.out)
	return out
}

func (c *Collector) counters() (found, taken int) { return c.found, c.taken }
