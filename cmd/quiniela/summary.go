package main

import (
	"fmt"
	"strings"

	"github.com/xavivs/la-quiniela/internal/domain"
	"github.com/xavivs/la-quiniela/internal/store"
)

// parseSummary 打印 15 个槽位；第 15 行标为 P15。
func parseSummary(rep domain.ParseReport) string {
	var b strings.Builder
	if rep.Status == domain.StatusFailed {
		fmt.Fprintf(&b, "失败：%s %s", rep.ErrorCode, rep.ErrorMsg)
		if chain := formatAttemptChain(rep.Attempts); chain != "" {
			fmt.Fprintf(&b, "\nattempts=%s", chain)
		}
		return b.String()
	}
	fmt.Fprintf(&b, "完成：status=%s count=%d pleno=%v", rep.Status, rep.Count, rep.HasPleno)
	if rep.ProviderUsed != "" {
		fmt.Fprintf(&b, " provider=%s", rep.ProviderUsed)
	}
	fmt.Fprintf(&b, "\n%s", rep.Message)
	for i, m := range rep.Matches {
		if m.IsEmpty() {
			continue
		}
		label := fmt.Sprintf("%2d", i+1)
		if i == domain.SlotCount-1 {
			label = "P15"
		}
		fmt.Fprintf(&b, "\n%3s  %s - %s", label, m.HomeTeam, m.AwayTeam)
	}
	return b.String()
}

func resultsSummary(rep domain.ResultsReport) string {
	var b strings.Builder
	if rep.Status == domain.StatusFailed {
		fmt.Fprintf(&b, "失败：%s %s", rep.ErrorCode, rep.ErrorMsg)
		if chain := formatAttemptChain(rep.Attempts); chain != "" {
			fmt.Fprintf(&b, "\nattempts=%s", chain)
		}
		return b.String()
	}
	fmt.Fprintf(&b, "完成：status=%s jornadas=%d applied=%v updated=%d\n%s",
		rep.Status, len(rep.Jornadas), rep.Applied, rep.Updated, rep.Message,
	)
	for _, jr := range rep.Jornadas {
		signs := make([]string, 0, len(jr.Signs))
		for _, s := range jr.Signs {
			signs = append(signs, string(s))
		}
		pleno := "-"
		if jr.Pleno != nil {
			pleno = jr.Pleno.String()
		}
		fmt.Fprintf(&b, "\n  jornada %d: %s  P15 %s", jr.Number, strings.Join(signs, " "), pleno)
	}
	return b.String()
}

func historySummary(rep domain.HistoryReport) string {
	if rep.Status == domain.StatusFailed {
		return fmt.Sprintf("失败：%s %s", rep.ErrorCode, rep.ErrorMsg)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "完成：status=%s rows=%d points=%d jornadas_created=%d errors=%d",
		rep.Status, rep.RowsProcessed, rep.PointsInserted, len(rep.JornadasCreated), len(rep.Errors),
	)
	for _, e := range rep.Errors {
		fmt.Fprintf(&b, "\n  %s", e)
	}
	return b.String()
}

func rankingSummary(season string, rank []store.RankingEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ranking %s", season)
	for i, e := range rank {
		fmt.Fprintf(&b, "\n%2d. %-10s %4d  (%d jornadas)", i+1, e.Player, e.Points, e.Jornadas)
		if e.Prizes > 0 {
			fmt.Fprintf(&b, "  %.2f €", e.Prizes)
		}
	}
	return b.String()
}

func pointsSummary(season string, points []store.JornadaPoints) string {
	var b strings.Builder
	fmt.Fprintf(&b, "points %s", season)
	last := 0
	for _, p := range points {
		if p.Number != last {
			fmt.Fprintf(&b, "\njornada %d", p.Number)
			last = p.Number
		}
		fmt.Fprintf(&b, "\n  %-10s %3d  [%s]", p.Player, p.Points, p.Source)
	}
	return b.String()
}

func jornadaSummary(number int, season string, matches []store.Match) string {
	var b strings.Builder
	fmt.Fprintf(&b, "jornada %d (%s)", number, season)
	for _, m := range matches {
		res := ""
		if m.Result1X2 != nil {
			res = "  " + string(*m.Result1X2)
		}
		if m.ResultHome != nil && m.ResultAway != nil {
			res = fmt.Sprintf("  %s-%s", *m.ResultHome, *m.ResultAway)
		}
		fmt.Fprintf(&b, "\n%2d  %s - %s%s", m.Order, m.HomeTeam, m.AwayTeam, res)
	}
	return b.String()
}
