package run

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xavivs/la-quiniela/internal/config"
	"github.com/xavivs/la-quiniela/internal/domain"
	"github.com/xavivs/la-quiniela/internal/extract"
	"github.com/xavivs/la-quiniela/internal/results"
	"github.com/xavivs/la-quiniela/internal/store"
)

// ResultsSource 是结果页在缓存中的来源名。
const ResultsSource = "resultados"

// FetchTeams 抓取对阵列表页面并抽取 15 场比赛。
// name 为空时使用第一个配置的来源。
func (r *Runner) FetchTeams(ctx context.Context, name string) domain.ParseReport {
	started := r.now()
	r.obs.OnStart("teams", r.eff)

	rep := domain.ParseReport{Origin: domain.OriginHTML, StartedAt: started}
	src, ok := r.source(name)
	if !ok {
		rep.Source = name
		return r.failParse(rep, domain.ErrCodeInputFailed, fmt.Sprintf("未知来源：%q", name))
	}
	rep.Source = src.Name

	pg, attempts, err := fetchPage(ctx, r, src.Name, src.URL, domain.RegularCount, func(html []byte) (extract.Result, int) {
		res := r.parser.ParseHTML(html)
		return res, len(res.Matches)
	})
	rep.Attempts = attempts
	if err != nil && !pg.fetched {
		return r.failParse(rep, errorCode(err), errorMsg(err))
	}

	rep.ProviderUsed = pg.provider
	rep.Matches = pg.value.Matches
	rep.Strategies = pg.value.Attempts
	rep.ViaData = pg.value.ViaData
	rep.FinishedAt = r.now()
	rep.Finalize()
	return rep
}

func (r *Runner) source(name string) (config.Source, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range r.eff.Sources {
		if name == "" || strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return config.Source{}, false
}

// FetchResults 抓取官方结果页，按轮次返回 1X2 与 Pleno al 15。
func (r *Runner) FetchResults(ctx context.Context) domain.ResultsReport {
	started := r.now()
	r.obs.OnStart("results", r.eff)

	rep := domain.ResultsReport{Source: r.eff.ResultsURL, StartedAt: started}
	pg, attempts, err := fetchPage(ctx, r, ResultsSource, r.eff.ResultsURL, 1, func(html []byte) ([]domain.JornadaResults, int) {
		list := results.ParseByJornada(string(html))
		return list, len(list)
	})
	rep.Attempts = attempts
	if err != nil && !pg.fetched {
		return r.failResults(rep, errorCode(err), errorMsg(err))
	}

	rep.ProviderUsed = pg.provider
	rep.Jornadas = pg.value
	r.obs.OnPhaseDone("results", map[string]any{"jornadas": len(pg.value)}, r.since(started))
	rep.FinishedAt = r.now()
	rep.Finalize()
	return rep
}

// ApplyLatestResults 抓取结果并写入数据库中最新的轮次。
//
// 页面上有与最新轮次同号的结果时优先使用它；否则使用页面上号数最大的那一轮。
func (r *Runner) ApplyLatestResults(ctx context.Context) domain.ResultsReport {
	rep := r.FetchResults(ctx)
	if rep.Status != domain.StatusOK {
		return rep
	}
	if r.store == nil {
		return r.failResults(rep, domain.ErrCodeStoreFailed, ErrNoStore.Error())
	}

	started := r.now()
	j, err := r.store.LatestJornada(ctx)
	if err != nil {
		return r.failResults(rep, storeErrorCode(err), err.Error())
	}
	pick, ok := pickResults(rep.Jornadas, j.Number)
	if !ok {
		return r.failResults(rep, domain.ErrCodeNoMatches, "No se pudieron extraer resultados (la página puede cargar datos por JS).")
	}
	n, err := r.store.ApplyResults(ctx, j.ID, pick)
	if err != nil {
		return r.failResults(rep, storeErrorCode(err), err.Error())
	}
	r.obs.OnPhaseDone("apply", map[string]any{"jornada": j.Number, "updated": n}, r.since(started))
	r.log.Info("results applied", "jornada", j.Number, "season", j.Season, "web_jornada", pick.Number, "updated", n)

	rep.Applied = true
	rep.JornadaID = j.ID
	rep.Updated = n
	rep.FinishedAt = r.now()
	rep.Finalize()
	return rep
}

// storeErrorCode 区分“前置条件不满足”（没有轮次/轮次不足 15 场）与数据库故障。
func storeErrorCode(err error) string {
	if errors.Is(err, store.ErrNoJornada) || errors.Is(err, store.ErrIncomplete) {
		return domain.ErrCodeNoJornada
	}
	return domain.ErrCodeStoreFailed
}

func pickResults(list []domain.JornadaResults, number int) (domain.JornadaResults, bool) {
	for _, jr := range list {
		if jr.Number == number {
			return jr, true
		}
	}
	return results.Latest(list)
}

func (r *Runner) failResults(rep domain.ResultsReport, code, msg string) domain.ResultsReport {
	rep.Status = domain.StatusFailed
	rep.ErrorCode = code
	rep.ErrorMsg = msg
	rep.Message = msg
	rep.FinishedAt = r.now()
	rep.Finalize()
	r.log.Warn("results failed", "error_code", code, "error", msg)
	return rep
}
