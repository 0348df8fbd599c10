package domain

import (
	"fmt"
	"strings"
)

// Sign 是 1-14 号比赛的 1X2 结果。
type Sign string

const (
	SignHome Sign = "1"
	SignDraw Sign = "X"
	SignAway Sign = "2"
)

func ParseSign(s string) (Sign, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1":
		return SignHome, true
	case "X":
		return SignDraw, true
	case "2":
		return SignAway, true
	default:
		return "", false
	}
}

// Goals 是 Pleno al 15 的进球档位：0 / 1 / 2 / M（3 球及以上）。
type Goals string

func ParseGoals(s string) (Goals, bool) {
	switch v := strings.ToUpper(strings.TrimSpace(s)); v {
	case "0", "1", "2", "M":
		return Goals(v), true
	default:
		return "", false
	}
}

type Pleno struct {
	Home Goals `json:"home"`
	Away Goals `json:"away"`
}

func (p Pleno) String() string { return fmt.Sprintf("%s-%s", p.Home, p.Away) }

// JornadaResults 是某一轮次从结果页解析出的结果。
// Number=0 表示页面没有可识别的轮次标题（调用方按“最新”处理）。
type JornadaResults struct {
	Number int    `json:"number"`
	Signs  []Sign `json:"result_1x2"`
	Pleno  *Pleno `json:"pleno_15"`
}

// Count 与前端 raw_count 语义一致：1X2 个数 + (Pleno ? 1 : 0)。
func (r JornadaResults) Count() int {
	n := len(r.Signs)
	if r.Pleno != nil {
		n++
	}
	return n
}
