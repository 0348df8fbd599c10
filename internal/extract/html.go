package extract

import (
	"github.com/xavivs/la-quiniela/internal/domain"
	"github.com/xavivs/la-quiniela/internal/htmltext"
	"github.com/xavivs/la-quiniela/internal/sniff"
)

// ParseHTML 是网页入口：先找内嵌 JSON（命中即权威），否则把页面压成文本再走文本流水线；
// 第一种渲染不足 14 对时，用 Markdown 渲染再试一次，取对数更多者。
func (p *Parser) ParseHTML(page []byte) Result {
	if m, ok := sniff.Sniff(page, p.cleaner); ok {
		return Result{
			Matches:  m,
			Attempts: []domain.StrategyAttempt{{Strategy: "json-sniff", Found: len(m), Accepted: len(m)}},
			ViaData:  true,
		}
	}

	best := Result{Matches: []domain.MatchPair{}}
	if text, err := htmltext.Render(page); err == nil {
		best = p.Parse(domain.RawText{Text: text, Origin: domain.OriginHTML})
	}
	if len(best.Matches) >= domain.RegularCount {
		return best
	}
	if text, err := htmltext.Markdown(page, ""); err == nil {
		alt := p.Parse(domain.RawText{Text: text, Origin: domain.OriginHTML})
		if len(alt.Matches) > len(best.Matches) {
			return alt
		}
	}
	return best
}

// ParseHTML 用内置词表解析网页。
func ParseHTML(page []byte) Result { return defaultParser.ParseHTML(page) }
