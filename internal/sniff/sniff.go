// Package sniff 在抓取到的网页里寻找内嵌的结构化比赛数据（JSON script 块）。
//
// 命中时结果是权威的：调用方应跳过全部文本启发式。
package sniff

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/xavivs/la-quiniela/internal/domain"
)

// minEntries 是数组被视为“一张 quiniela”所需的最少有效条目数。
const minEntries = domain.RegularCount

var (
	listKeys = []string{"partidos", "matches", "equipos", "resultados"}
	homeKeys = []string{"local", "home", "home_team", "homeTeam", "equipo1", "equipoLocal"}
	awayKeys = []string{"visitante", "away", "away_team", "awayTeam", "equipo2", "equipoVisitante"}
	nameKeys = []string{"nombre", "name", "shortName"}

	// 普通 script 里的数组字面量入口："partidos": [
	listKeyRE = regexp.MustCompile(`["'](?:partidos|matches|equipos|resultados)["']\s*:\s*\[`)
	hintRE    = regexp.MustCompile(`(?i)partidos|visitante|matches`)
)

// Filter 判定一对条目能否作为比赛；noise.Cleaner 满足该接口。
type Filter interface {
	Accept(home, away string) bool
}

// Sniff 依次检查：type 含 json 的 script、#__NEXT_DATA__、正文提到比赛字段的任意 script。
// 条目只做首尾空白裁剪，再经 f 过滤并按队名去重，返回前 15 个；f 为 nil 时只要求两侧非空。
// 没有可用数据时 ok=false。
func Sniff(html []byte, f Filter) ([]domain.MatchPair, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, false
	}

	var found []domain.MatchPair
	try := func(raw string) bool {
		if m, ok := fromJSON(raw, f); ok {
			found = m
			return true
		}
		return false
	}

	doc.Find(`script[type*="json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		return !try(s.Text())
	})
	if found != nil {
		return found, true
	}
	if s := doc.Find("script#__NEXT_DATA__"); s.Length() > 0 && try(s.First().Text()) {
		return found, true
	}
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		body := s.Text()
		if !hintRE.MatchString(body) {
			return true
		}
		for _, arr := range embeddedArrays(body) {
			if m, ok := fromArray(arr, f); ok {
				found = m
				return false
			}
		}
		return true
	})
	return found, found != nil
}

func fromJSON(raw string, f Filter) ([]domain.MatchPair, bool) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err != nil {
		return nil, false
	}
	return search(v, f)
}

func fromArray(raw string, f Filter) ([]domain.MatchPair, bool) {
	var v []any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false
	}
	return pairs(v, f)
}

// search 深度优先查找第一个位于比赛列表键下、可用的数组。
func search(v any, f Filter) ([]domain.MatchPair, bool) {
	switch t := v.(type) {
	case map[string]any:
		for _, k := range listKeys {
			if arr, ok := lookup(t, k).([]any); ok {
				if m, ok := pairs(arr, f); ok {
					return m, true
				}
			}
		}
		for _, child := range t {
			if m, ok := search(child, f); ok {
				return m, true
			}
		}
	case []any:
		for _, child := range t {
			if m, ok := search(child, f); ok {
				return m, true
			}
		}
	}
	return nil, false
}

func pairs(arr []any, f Filter) ([]domain.MatchPair, bool) {
	out := make([]domain.MatchPair, 0, domain.SlotCount)
	seen := make(map[string]bool, domain.SlotCount)
	for _, e := range arr {
		obj, ok := e.(map[string]any)
		if !ok {
			continue
		}
		m := domain.MatchPair{
			HomeTeam: firstString(obj, homeKeys),
			AwayTeam: firstString(obj, awayKeys),
		}
		if m.HomeTeam == "" || m.AwayTeam == "" {
			continue
		}
		if f != nil && !f.Accept(m.HomeTeam, m.AwayTeam) {
			continue
		}
		if seen[m.Key()] {
			continue
		}
		seen[m.Key()] = true
		out = append(out, m)
		if len(out) == domain.SlotCount {
			break
		}
	}
	if len(out) < minEntries {
		return nil, false
	}
	return out, true
}

// firstString 取第一个存在的键；值可以是字符串，也可以是带 nombre/name 的对象。
func firstString(obj map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := lookup(obj, k).(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case map[string]any:
			if s := firstString(v, nameKeys); s != "" {
				return s
			}
		}
	}
	return ""
}

// lookup 大小写不敏感地取键。
func lookup(obj map[string]any, key string) any {
	if v, ok := obj[key]; ok {
		return v
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

// embeddedArrays 从任意 JS 源码里截出 `"partidos": [...]` 这类数组字面量（按括号配对，跳过字符串）。
func embeddedArrays(src string) []string {
	var out []string
	for _, loc := range listKeyRE.FindAllStringIndex(src, -1) {
		start := loc[1] - 1
		if end := matchBracket(src, start); end > start {
			out = append(out, src[start:end+1])
		}
	}
	return out
}

func matchBracket(s string, start int) int {
	depth := 0
	var quote byte
	for i := start; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			switch ch {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			quote = ch
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
