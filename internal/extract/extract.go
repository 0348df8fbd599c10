// Package extract 把 OCR / 网页派生文本恢复为至多 15 个有序的主客队对。
//
// 整个流程是纯函数：不做 I/O，不共享可变状态；去重集合只活在单次调用内。
// 任何畸形输入都只会得到空或部分结果，不会报错。
package extract

import (
	"github.com/xavivs/la-quiniela/internal/domain"
	"github.com/xavivs/la-quiniela/internal/noise"
	"github.com/xavivs/la-quiniela/internal/textnorm"
)

// Strategy 是一种抽取手段。策略只负责定位候选；清洗/校验/去重统一由 Collector 完成。
type Strategy interface {
	Name() string
	Run(doc *Document, col *Collector)
}

type stage struct {
	strategy Strategy
	when     func(n int) bool
}

func always(int) bool { return true }

// insufficient：行抽取不足 14 对时才进入整块兜底链。
func insufficient(n int) bool { return n < domain.RegularCount }

// needPleno：14 对常规比赛已齐，只差第 15 场。
func needPleno(n int) bool { return n == domain.RegularCount }

// Result 是一次解析的输出；Attempts 解释每个策略的贡献。
type Result struct {
	Matches  []domain.MatchPair
	Attempts []domain.StrategyAttempt
	ViaData  bool
}

type Parser struct {
	cleaner *noise.Cleaner
	stages  []stage
}

type Option func(*Parser)

// WithCleaner 替换噪声词表（例如从配置加载的扩展词表）。
func WithCleaner(c *noise.Cleaner) Option {
	return func(p *Parser) {
		if c != nil {
			p.cleaner = c
		}
	}
}

func New(opts ...Option) *Parser {
	p := &Parser{cleaner: noise.Default()}
	for _, o := range opts {
		o(p)
	}
	p.stages = []stage{
		{strategy: lineStrategy{}, when: always},
		{strategy: plenoTailStrategy{}, when: needPleno},
		{strategy: candidateStrategy{name: "separator-scan", fn: separatorScan}, when: insufficient},
		{strategy: candidateStrategy{name: "segment-pairs", fn: segmentPairs}, when: insufficient},
		{strategy: candidateStrategy{name: "generic", fn: genericPairs}, when: insufficient},
		{strategy: plenoTailStrategy{}, when: needPleno},
	}
	return p
}

var defaultParser = New()

// Parse 用内置词表解析一段文本（视为 OCR 来源）。
func Parse(text string) []domain.MatchPair {
	return defaultParser.Parse(domain.RawText{Text: text, Origin: domain.OriginOCR}).Matches
}

// Parse 运行完整流水线：规范化 -> 分行/跳表头 -> 逐行抽取 -> 兜底链。
func (p *Parser) Parse(raw domain.RawText) Result {
	doc := Segment(textnorm.Normalize(raw.Text))
	doc.Origin = raw.Origin
	col := newCollector(p.cleaner, domain.SlotCount, doc)

	attempts := make([]domain.StrategyAttempt, 0, len(p.stages))
	for _, st := range p.stages {
		if col.Full() {
			break
		}
		if !st.when(col.Len()) {
			continue
		}
		f0, t0 := col.counters()
		st.strategy.Run(doc, col)
		f1, t1 := col.counters()
		attempts = append(attempts, domain.StrategyAttempt{
			Strategy: st.strategy.Name(),
			Found:    f1 - f0,
			Accepted: t1 - t0,
		})
	}
	return Result{Matches: col.Matches(), Attempts: attempts}
}
