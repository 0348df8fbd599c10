// Package results 从官方结果页的 HTML 中按轮次抽取 1X2 结果与 Pleno al 15 比分。
package results

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/xavivs/la-quiniela/internal/domain"
)

const (
	minJornada = 1
	maxJornada = 60

	// headingMaxLen 以上的文本不当作轮次标题（容器节点的整段文字会很长）。
	headingMaxLen = 80
)

// headingSel 是可能承载 "JORNADA N" 标题的节点。
const headingSel = "h1,h2,h3,h4,h5,h6,caption,header,[class*=jornada],[class*=Jornada],[class*=titulo],[class*=title]"

// resultSel 是带结果语义的容器；命中的叶子节点优先作为 1X2 单元格。
const resultSel = "[class*=resultado],[class*=result],[class*=signo],[class*=pronostico],[class*=celda],[class*=casilla]"

var (
	headingRE = regexp.MustCompile(`(?i)^(?:la\s+quiniela\s*[-:]?\s*)?jornada\s*(?:n[º°o]\.?\s*)?(\d{1,2})\s*ª?(?:$|[\s\-:(,|])|^(\d{1,2})\s*ª(?:\s+jornada)?(?:$|[\s\-:(,|])`)
	quotedRE  = regexp.MustCompile(`["']([1Xx2])["']`)
)

// plenoREs 依次尝试：标签在前（"Pleno al 15: 2 - M"）、比分在前（"1-0 Pleno"）、括号比分（"(1-0)"）。
// 比分两侧必须是独立的记号，避免把 1X2 单元格或 "15" 读成比分。
var plenoREs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:P-?15|pleno\s*al\s*15|pleno)\D*?\b([012M])(?:\s*-\s*|\s+)([012M])\b`),
	regexp.MustCompile(`(?i)\b([012M])\s*-\s*([012M])\s*\(?\s*(?:pleno|P-?15)\b`),
	regexp.MustCompile(`(?i)\(\s*([012M])\s*-\s*([012M])\s*\)`),
}

// section 是两个轮次标题之间的页面内容，按文档顺序收集。
type section struct {
	number int
	hinted []domain.Sign // 结果容器内的单元格
	plain  []domain.Sign // 其余只含一个符号的单元格
	text   strings.Builder
}

// ParseByJornada 按 "JORNADA N" / "Nª" 标题切分页面，逐段抽取结果。
// 没有任何标题时整页视为一段，轮次号为 0（调用方视为“最新”）。
// 既无 1X2 也无 Pleno 的段会被丢弃。
func ParseByJornada(page string) []domain.JornadaResults {
	out := []domain.JornadaResults{}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return out
	}

	var scripts strings.Builder
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scripts.WriteString(s.Text())
		scripts.WriteByte('\n')
	})
	doc.Find("script,style,noscript,template").Remove()

	hinted := map[*html.Node]domain.Sign{}
	plain := map[*html.Node]domain.Sign{}
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 {
			return
		}
		sign, ok := domain.ParseSign(s.Text())
		if !ok {
			return
		}
		switch {
		case s.Closest(resultSel).Length() > 0:
			hinted[s.Get(0)] = sign
		case s.Is("td:first-child,th"):
			// 行首单元格通常是场次编号（1、2），不是结果。
		default:
			plain[s.Get(0)] = sign
		}
	})

	// 标题节点内不能有结果单元格：那是整段容器，不是标题。
	headings := map[*html.Node]int{}
	doc.Find(headingSel).Each(func(_ int, s *goquery.Selection) {
		n, ok := jornadaNumber(s.Text())
		if !ok {
			return
		}
		for _, d := range s.Find("*").Nodes {
			if _, cell := hinted[d]; cell {
				return
			}
			if _, cell := plain[d]; cell {
				return
			}
		}
		headings[s.Get(0)] = n
	})

	secs := splitSections(doc, headings, hinted, plain)
	for _, sec := range secs {
		r, ok := sec.results()
		if !ok {
			continue
		}
		r.Number = sec.number
		out = append(out, r)
	}
	if len(headings) == 0 && len(out) == 0 {
		// 结果只存在于脚本变量中（例如 var r = ["1","X",...]）。
		if signs := quotedSigns(scripts.String()); len(signs) >= domain.RegularCount {
			out = append(out, domain.JornadaResults{Signs: signs[:domain.RegularCount]})
		}
	}
	return out
}

// splitSections 按文档顺序遍历节点；遇到标题就开启新的一段。
// 有标题时，第一个标题之前的内容不属于任何轮次。
func splitSections(doc *goquery.Document, headings map[*html.Node]int, hinted, plain map[*html.Node]domain.Sign) []*section {
	var secs []*section
	var cur *section
	if len(headings) == 0 {
		cur = &section{}
		secs = append(secs, cur)
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if num, ok := headings[n]; ok {
			cur = &section{number: num}
			secs = append(secs, cur)
			return
		}
		if cur != nil {
			if s, ok := hinted[n]; ok {
				cur.hinted = append(cur.hinted, s)
			} else if s, ok := plain[n]; ok {
				cur.plain = append(cur.plain, s)
			}
			if n.Type == html.TextNode {
				cur.text.WriteString(n.Data)
				cur.text.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return secs
}

func (s *section) results() (domain.JornadaResults, bool) {
	var r domain.JornadaResults

	signs := s.hinted
	if len(signs) < domain.RegularCount {
		signs = s.plain
	}
	if len(signs) >= domain.RegularCount {
		r.Signs = append([]domain.Sign(nil), signs[:domain.RegularCount]...)
	}

	text := strings.Join(strings.Fields(s.text.String()), " ")
	if p, ok := pleno(text); ok {
		r.Pleno = &p
	}
	return r, r.Signs != nil || r.Pleno != nil
}

// Latest 返回轮次号最大的那一段（无标题时即唯一一段）。
func Latest(list []domain.JornadaResults) (domain.JornadaResults, bool) {
	if len(list) == 0 {
		return domain.JornadaResults{}, false
	}
	best := list[0]
	for _, r := range list[1:] {
		if r.Number > best.Number {
			best = r
		}
	}
	return best, true
}

func jornadaNumber(text string) (int, bool) {
	t := strings.Join(strings.Fields(text), " ")
	if t == "" || len([]rune(t)) > headingMaxLen {
		return 0, false
	}
	m := headingRE.FindStringSubmatch(t)
	if m == nil {
		return 0, false
	}
	g := m[1]
	if g == "" {
		g = m[2]
	}
	n, err := strconv.Atoi(g)
	if err != nil || n < minJornada || n > maxJornada {
		return 0, false
	}
	return n, true
}

func quotedSigns(js string) []domain.Sign {
	var out []domain.Sign
	for _, m := range quotedRE.FindAllStringSubmatch(js, -1) {
		if s, ok := domain.ParseSign(m[1]); ok {
			out = append(out, s)
		}
	}
	return out
}

func pleno(text string) (domain.Pleno, bool) {
	for _, re := range plenoREs {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		home, ok1 := domain.ParseGoals(m[1])
		away, ok2 := domain.ParseGoals(m[2])
		if ok1 && ok2 {
			return domain.Pleno{Home: home, Away: away}, true
		}
	}
	return domain.Pleno{}, false
}
