// Package scoring 计算一轮 quiniela 的得分。
//
// 规则：第 1-14 场每猜中一个 1X2 得 1 分；第 15 场（Pleno al 15）只有在前 14 场全中
// 且比分完全一致时才额外得 1 分。没有结果的场次不计分。
package scoring

import (
	"strconv"

	"github.com/xavivs/la-quiniela/internal/domain"
)

// Outcome 是一场比赛的官方结果；未出结果的字段为 nil。
type Outcome struct {
	Order int
	Sign  *domain.Sign
	Home  *domain.Goals
	Away  *domain.Goals
}

// Pick 是玩家对一场比赛的预测。
type Pick struct {
	Order int           `json:"match_order"`
	Sign  *domain.Sign  `json:"predicted_1x2,omitempty"`
	Home  *domain.Goals `json:"predicted_home,omitempty"`
	Away  *domain.Goals `json:"predicted_away,omitempty"`
}

// Correct 判断单场是否猜中。
func Correct(o Outcome, p Pick) bool {
	if o.Order <= domain.RegularCount {
		return o.Sign != nil && p.Sign != nil && *o.Sign == *p.Sign
	}
	if o.Home == nil || o.Away == nil || p.Home == nil || p.Away == nil {
		return false
	}
	return *o.Home == *p.Home && *o.Away == *p.Away
}

// Decided 判断这一轮是否已有任何结果；没有结果的轮次不参与排名。
func Decided(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Order <= domain.RegularCount && o.Sign != nil {
			return true
		}
		if o.Order == domain.SlotCount && o.Home != nil && o.Away != nil {
			return true
		}
	}
	return false
}

// Jornada 计算一名玩家一轮的得分，以及前 14 场猜中的场数。
func Jornada(outcomes []Outcome, picks []Pick) (points, hits int) {
	byOrder := make(map[int]Pick, len(picks))
	for _, p := range picks {
		byOrder[p.Order] = p
	}
	var pleno *Outcome
	for i := range outcomes {
		o := outcomes[i]
		if o.Order == domain.SlotCount {
			pleno = &outcomes[i]
			continue
		}
		if p, ok := byOrder[o.Order]; ok && Correct(o, p) {
			hits++
		}
	}
	points = hits
	if pleno != nil && hits == domain.RegularCount {
		if p, ok := byOrder[domain.SlotCount]; ok && Correct(*pleno, p) {
			points++
		}
	}
	return points, hits
}

// Validate 检查一组预测：场次在 1-15 且不重复；第 1-14 场需要 1X2，第 15 场需要两个比分。
func Validate(picks []Pick) error {
	seen := make(map[int]bool, len(picks))
	for _, p := range picks {
		if p.Order < 1 || p.Order > domain.SlotCount {
			return &PickError{Order: p.Order, Reason: "场次必须在 1-15 之间"}
		}
		if seen[p.Order] {
			return &PickError{Order: p.Order, Reason: "场次重复"}
		}
		seen[p.Order] = true
		if p.Order <= domain.RegularCount && p.Sign == nil {
			return &PickError{Order: p.Order, Reason: "缺少 1X2 预测"}
		}
		if p.Order == domain.SlotCount && (p.Home == nil || p.Away == nil) {
			return &PickError{Order: p.Order, Reason: "Pleno al 15 需要两个比分（0/1/2/M）"}
		}
		if p.Sign != nil {
			if v, ok := domain.ParseSign(string(*p.Sign)); !ok || v != *p.Sign {
				return &PickError{Order: p.Order, Reason: "1X2 只能是 1、X、2"}
			}
		}
		for _, g := range []*domain.Goals{p.Home, p.Away} {
			if g == nil {
				continue
			}
			if v, ok := domain.ParseGoals(string(*g)); !ok || v != *g {
				return &PickError{Order: p.Order, Reason: "比分只能是 0、1、2、M"}
			}
		}
	}
	return nil
}

// PickError 表示某场预测不合法。
type PickError struct {
	Order  int
	Reason string
}

func (e *PickError) Error() string {
	return "第 " + strconv.Itoa(e.Order) + " 场：" + e.Reason
}
